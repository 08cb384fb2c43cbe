package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/dgellow/launch-bridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCleanupManager_EvictsIdleBridges(t *testing.T) {
	issuer := &testutil.MockTokenIssuer{}
	issuer.On("IssueToken", mock.Anything, mock.Anything, "crawlmind").Return("a.b.c", nil)

	mc := newMockClock()
	r := NewRegistry(testConfig(), issuer, WithClock(mc))
	defer r.Close()

	entry, err := r.Get(t.Context(), &session.Session{UserID: "u1"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return entry.Controller.Snapshot().State == StateReady
	}, 2*time.Second, 5*time.Millisecond)

	cm := NewCleanupManager(r, 10*time.Minute, time.Minute, WithClock(mc))
	cm.Start(t.Context())

	// the ticker only fires once the mock clock moves; give the loop time to register it
	assert.Eventually(t, func() bool {
		mc.Add(time.Minute)
		return r.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	cm.Stop()
	select {
	case <-cm.Done():
	default:
		t.Fatal("cleanup loop still running after Stop")
	}
}

func TestCleanupManager_StopsOnContextCancel(t *testing.T) {
	r := NewRegistry(testConfig(), &testutil.MockTokenIssuer{})
	defer r.Close()

	cm := NewCleanupManager(r, time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(t.Context())
	cm.Start(ctx)
	cancel()

	select {
	case <-cm.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup loop did not exit on context cancel")
	}
}
