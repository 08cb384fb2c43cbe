package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/launch-bridge/internal/session"
	"golang.org/x/oauth2"
)

// maxTokenResponse bounds how much of a token response is read
const maxTokenResponse = 64 << 10

// RemoteIssuer asks a hosted identity provider to mint a token from one of its
// templates: POST {endpoint}/v1/sessions/{sessionID}/tokens/{template}.
type RemoteIssuer struct {
	endpoint string
	client   *http.Client
}

type remoteTokenResponse struct {
	JWT string `json:"jwt"`
}

// NewRemoteIssuer creates an issuer authenticating with secretKey as a bearer token
func NewRemoteIssuer(ctx context.Context, endpoint, secretKey string, timeout time.Duration) *RemoteIssuer {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: secretKey,
		TokenType:   "Bearer",
	}))
	client.Timeout = timeout

	return &RemoteIssuer{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

// IssueToken requests a token for the session's provider session. A 404 means the
// provider has no token for it and is reported as ("", nil).
func (r *RemoteIssuer) IssueToken(ctx context.Context, sess session.Session, template string) (string, error) {
	if sess.ID == "" {
		return "", ErrNoProviderSession
	}

	reqURL := fmt.Sprintf("%s/v1/sessions/%s/tokens/%s",
		r.endpoint, url.PathEscape(sess.ID), url.PathEscape(template))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var tokenResp remoteTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenResponse)).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	return tokenResp.JWT, nil
}
