package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/stretchr/testify/mock"
)

// MockTokenIssuer is a testify mock of idp.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) IssueToken(ctx context.Context, sess session.Session, template string) (string, error) {
	args := m.Called(ctx, sess, template)
	return args.String(0), args.Error(1)
}

type MockEncryptor struct {
	mock.Mock
}

func (m *MockEncryptor) Encrypt(plaintext string) (string, error) {
	args := m.Called(plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockEncryptor) Decrypt(ciphertext string) (string, error) {
	args := m.Called(ciphertext)
	return args.String(0), args.Error(1)
}

// GatedCall is one pending IssueToken call on a GatedIssuer
type GatedCall struct {
	Template string
	reply    chan gatedReply
}

type gatedReply struct {
	token string
	err   error
}

// Resolve lets the call return token and err
func (c *GatedCall) Resolve(token string, err error) {
	c.reply <- gatedReply{token: token, err: err}
}

// GatedIssuer holds every IssueToken call until the test resolves it, so tests
// can choose the order in which concurrent acquisitions complete.
type GatedIssuer struct {
	calls chan *GatedCall

	mu    sync.Mutex
	count int
}

// NewGatedIssuer creates a GatedIssuer that can queue up to buffer pending calls
func NewGatedIssuer(buffer int) *GatedIssuer {
	return &GatedIssuer{calls: make(chan *GatedCall, buffer)}
}

func (g *GatedIssuer) IssueToken(ctx context.Context, sess session.Session, template string) (string, error) {
	g.mu.Lock()
	g.count++
	g.mu.Unlock()

	call := &GatedCall{Template: template, reply: make(chan gatedReply, 1)}
	g.calls <- call

	select {
	case r := <-call.reply:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Next returns the next pending call in arrival order
func (g *GatedIssuer) Next(ctx context.Context) (*GatedCall, error) {
	select {
	case call := <-g.calls:
		return call, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for issuer call: %w", ctx.Err())
	}
}

// Count returns how many IssueToken calls were made
func (g *GatedIssuer) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}
