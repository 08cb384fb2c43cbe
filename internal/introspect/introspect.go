// Package introspect decodes the header and payload of a signed token for display.
//
// Nothing here validates a signature, an expiry or an audience. A Report is a debugging
// aid and must never be used to decide whether a caller is allowed to do something.
package introspect

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// NotSet is reported for claims the token does not carry
const NotSet = "not set"

// ExpiryLayout is how the exp claim is rendered
const ExpiryLayout = time.RFC1123

// ErrMalformedToken is returned when the token has fewer than two segments
var ErrMalformedToken = errors.New("malformed token")

// ClaimDecodeError reports a header or payload segment that is not base64url JSON
type ClaimDecodeError struct {
	Segment string // "header" or "payload"
	Err     error
}

func (e *ClaimDecodeError) Error() string {
	return fmt.Sprintf("decoding token %s: %v", e.Segment, e.Err)
}

func (e *ClaimDecodeError) Unwrap() error {
	return e.Err
}

// emailClaims are the claim names identity providers commonly put an address under
var emailClaims = []string{"email", "email_address", "primary_email_address", "mail", "emailAddress"}

// Report is the decoded, unverified view of a token
type Report struct {
	Length    int            `json:"length"`
	Segments  int            `json:"segments"`
	Algorithm string         `json:"algorithm"`
	KeyID     string         `json:"key_id"`
	Type      string         `json:"type"`
	Header    map[string]any `json:"header"`
	Claims    jwt.MapClaims  `json:"claims"`

	HasAudience bool       `json:"has_audience"`
	Audience    string     `json:"audience"`
	UserID      string     `json:"user_id"`
	Username    string     `json:"username"`
	Issuer      string     `json:"issuer"`
	Subject     string     `json:"subject"`
	Expiry      string     `json:"expiry"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`

	// Emails maps claim path (e.g. "email", "user.mail") to its value
	Emails map[string]string `json:"emails,omitempty"`
}

var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// Inspect splits the token and decodes its header and payload. The signature segment
// is never read.
func Inspect(token string) (*Report, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, ErrMalformedToken
	}

	header, err := decodeSegment("header", parts[0])
	if err != nil {
		return nil, err
	}
	payload, err := decodeSegment("payload", parts[1])
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims(payload)
	r := &Report{
		Length:    len(token),
		Segments:  len(parts),
		Algorithm: stringOr(header["alg"], NotSet),
		KeyID:     stringOr(header["kid"], NotSet),
		Type:      stringOr(header["typ"], NotSet),
		Header:    header,
		Claims:    claims,
		UserID:    stringOr(claims["user_id"], NotSet),
		Username:  stringOr(claims["username"], NotSet),
		Issuer:    NotSet,
		Subject:   NotSet,
		Audience:  NotSet,
		Expiry:    NotSet,
	}

	if iss, err := claims.GetIssuer(); err == nil && iss != "" {
		r.Issuer = iss
	} else if err != nil {
		r.Issuer = invalid(claims["iss"])
	}

	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		r.Subject = sub
	} else if err != nil {
		r.Subject = invalid(claims["sub"])
	}

	if aud, err := claims.GetAudience(); err == nil && len(aud) > 0 {
		r.HasAudience = true
		r.Audience = strings.Join(aud, ", ")
	} else if err != nil {
		r.Audience = invalid(claims["aud"])
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		at := exp.Time.UTC()
		r.ExpiresAt = &at
		r.Expiry = at.Format(ExpiryLayout)
	} else if err != nil {
		r.Expiry = invalid(claims["exp"])
	}

	r.Emails = findEmails(claims)
	return r, nil
}

// Expired reports whether the exp claim is before now. A token without exp never expires
// as far as this report is concerned.
func (r *Report) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Lines renders the report as the labelled lines shown to an operator
func (r *Report) Lines() []string {
	lines := []string{
		fmt.Sprintf("Token length: %d", r.Length),
		fmt.Sprintf("Algorithm: %s", r.Algorithm),
		fmt.Sprintf("Key ID: %s", r.KeyID),
		fmt.Sprintf("Has \"aud\" claim: %t", r.HasAudience),
		fmt.Sprintf("Audience: %s", r.Audience),
		fmt.Sprintf("User ID: %s", r.UserID),
		fmt.Sprintf("Username: %s", r.Username),
		fmt.Sprintf("Issuer: %s", r.Issuer),
		fmt.Sprintf("Subject: %s", r.Subject),
		fmt.Sprintf("Expiration: %s", r.Expiry),
	}

	if len(r.Emails) == 0 {
		lines = append(lines, "Email: "+NotSet)
		return lines
	}
	keys := make([]string, 0, len(r.Emails))
	for k := range r.Emails {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("Email (%s): %s", k, r.Emails[k]))
	}
	return lines
}

func decodeSegment(name, segment string) (map[string]any, error) {
	raw, err := parser.DecodeSegment(segment)
	if err != nil {
		return nil, &ClaimDecodeError{Segment: name, Err: err}
	}

	// numbers stay json.Number so numeric ids render as written
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, &ClaimDecodeError{Segment: name, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ClaimDecodeError{Segment: name, Err: errors.New("trailing data after JSON object")}
	}
	if out == nil {
		return nil, &ClaimDecodeError{Segment: name, Err: errors.New("not a JSON object")}
	}
	return out, nil
}

func findEmails(claims jwt.MapClaims) map[string]string {
	found := make(map[string]string)
	for _, key := range emailClaims {
		if v, ok := claims[key].(string); ok && v != "" {
			found[key] = v
		}
	}
	if user, ok := claims["user"].(map[string]any); ok {
		for _, key := range emailClaims {
			if v, ok := user[key].(string); ok && v != "" {
				found["user."+key] = v
			}
		}
	}
	if len(found) == 0 {
		return nil
	}
	return found
}

func stringOr(v any, fallback string) string {
	switch val := v.(type) {
	case nil:
		return fallback
	case string:
		if val == "" {
			return fallback
		}
		return val
	default:
		return fmt.Sprint(val)
	}
}

func invalid(v any) string {
	return fmt.Sprintf("invalid (%v)", v)
}
