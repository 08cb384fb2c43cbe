// Package bridgeurl builds the handoff URL that carries a token to the destination app.
package bridgeurl

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	// TokenParam carries the URL-encoded signed token
	TokenParam = "token"
	// StampParam carries the cache-bust timestamp in epoch milliseconds
	StampParam = "t"
)

var (
	ErrEmptyToken  = errors.New("token is required")
	ErrInvalidBase = errors.New("base endpoint must be an absolute http(s) URL")
)

// Build appends the token and a millisecond cache-bust stamp to base. The stamp is not a
// claim; it only makes every handoff URL distinct so the destination never serves a
// response cached for an earlier token.
func Build(base, token string, now time.Time) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	u, err := parseBase(base)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Del(TokenParam)
	q.Del(StampParam)

	query := q.Encode()
	if query != "" {
		query += "&"
	}
	query += TokenParam + "=" + url.QueryEscape(token)
	query += "&" + StampParam + "=" + strconv.FormatInt(now.UnixMilli(), 10)
	u.RawQuery = query

	return u.String(), nil
}

// Parse extracts the token and stamp from a URL produced by Build
func Parse(raw string) (token string, stamp time.Time, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parsing bridge url: %w", err)
	}

	q := u.Query()
	token = q.Get(TokenParam)
	if token == "" {
		return "", time.Time{}, ErrEmptyToken
	}

	ms, err := strconv.ParseInt(q.Get(StampParam), 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parsing %s parameter: %w", StampParam, err)
	}
	return token, time.UnixMilli(ms), nil
}

// ValidateBase checks that base can be used as a destination endpoint
func ValidateBase(base string) error {
	_, err := parseBase(base)
	return err
}

func parseBase(base string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBase, base)
	}
	u.Fragment = ""
	return u, nil
}
