package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgellow/launch-bridge/internal/dashboard"
	"github.com/dgellow/launch-bridge/internal/idp"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/metrics"
	"github.com/dgellow/launch-bridge/internal/notify"
	"github.com/dgellow/launch-bridge/internal/session"
)

// Entry is everything held in memory for one dashboard user
type Entry struct {
	Controller *Controller
	Queue      *notify.Queue
	View       *dashboard.View

	lastSeen time.Time
}

// Registry holds one Entry per user, keyed by user id
type Registry struct {
	cfg     Config
	issuer  idp.TokenIssuer
	opts    []Option
	clock   clock.Clock
	metrics *metrics.Metrics
	ttl     time.Duration

	mu      sync.Mutex
	entries map[string]*Entry
	closed  bool

	// in-flight SessionLoaded calls started by Get
	loads sync.WaitGroup
}

// NewRegistry creates an empty registry. opts apply to every controller it creates.
func NewRegistry(cfg Config, issuer idp.TokenIssuer, opts ...Option) *Registry {
	o := buildOptions(opts)
	return &Registry{
		cfg:     cfg,
		issuer:  issuer,
		opts:    opts,
		clock:   o.clock,
		metrics: o.metrics,
		ttl:     o.notificationTTL,
		entries: make(map[string]*Entry),
	}
}

var errRegistryClosed = errors.New("registry closed")

// Get returns the user's entry, creating it on first access. A new entry gets its
// session in the background so the caller is not held up by the first refresh.
func (r *Registry) Get(ctx context.Context, sess *session.Session) (*Entry, error) {
	if !sess.Loaded() {
		return nil, ErrSessionUnavailable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errRegistryClosed
	}

	if entry, ok := r.entries[sess.UserID]; ok {
		entry.lastSeen = r.clock.Now()
		if err := entry.Controller.Attach(sess); err != nil {
			return nil, err
		}
		return entry, nil
	}

	queue := notify.NewQueue(notify.WithClock(r.clock), notify.WithTTL(r.ttl), notify.WithMetrics(r.metrics))
	entry := &Entry{
		Controller: NewController(r.cfg, nil, r.issuer, queue, r.opts...),
		Queue:      queue,
		View:       dashboard.NewView(),
		lastSeen:   r.clock.Now(),
	}
	r.entries[sess.UserID] = entry
	r.metrics.SetActiveBridges(len(r.entries))

	log.LogInfoWithFields("bridge", "Created bridge for user", map[string]any{
		"user_id": sess.UserID,
	})

	s := *sess
	loadCtx := context.WithoutCancel(ctx)
	r.loads.Add(1)
	go func() {
		defer r.loads.Done()
		if err := entry.Controller.SessionLoaded(loadCtx, &s); err != nil {
			log.LogDebugWithFields("bridge", "Initial refresh did not produce a bridge", map[string]any{
				"user_id": s.UserID,
				"error":   err.Error(),
			})
		}
	}()

	return entry, nil
}

// Lookup returns the user's entry without creating one
func (r *Registry) Lookup(userID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[userID]
	if ok {
		entry.lastSeen = r.clock.Now()
	}
	return entry, ok
}

// Len returns the number of entries
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep removes entries not seen for longer than idle. Entries with a refresh in
// progress are kept.
func (r *Registry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-idle)
	removed := 0
	for userID, entry := range r.entries {
		if entry.lastSeen.After(cutoff) {
			continue
		}
		if entry.Controller.Snapshot().State == StateGenerating {
			continue
		}
		entry.Queue.Close()
		delete(r.entries, userID)
		removed++
	}
	r.metrics.SetActiveBridges(len(r.entries))
	return removed
}

// Close waits for background session loads and closes every queue
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.loads.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, entry := range r.entries {
		entry.Queue.Close()
		delete(r.entries, userID)
	}
	r.metrics.SetActiveBridges(0)
}
