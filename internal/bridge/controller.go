// Package bridge drives the launch bridge lifecycle: acquire a fresh token, build the
// handoff URL, and report progress through notifications.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgellow/launch-bridge/internal/bridgeurl"
	"github.com/dgellow/launch-bridge/internal/idp"
	"github.com/dgellow/launch-bridge/internal/introspect"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/metrics"
	"github.com/dgellow/launch-bridge/internal/notify"
	"github.com/dgellow/launch-bridge/internal/session"
	"github.com/dgellow/launch-bridge/internal/tokens"
)

var (
	// ErrSessionUnavailable is returned when no loaded session is attached.
	// Nothing changes and nothing is acquired.
	ErrSessionUnavailable = errors.New("session not loaded")

	// ErrSuperseded is returned when a later refresh was issued while this one was
	// acquiring. Its outcome is discarded.
	ErrSuperseded = errors.New("refresh superseded by a later refresh")
)

// Config is what a controller needs to know about the destination
type Config struct {
	Destination    string
	Template       string
	AcquireTimeout time.Duration
}

type options struct {
	clock           clock.Clock
	metrics         *metrics.Metrics
	notificationTTL time.Duration
}

// Option configures a Controller or a Registry
type Option func(*options)

// WithClock sets the clock used for stamps and timestamps
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithMetrics records refresh outcomes and acquisition latency
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithNotificationTTL sets the TTL of queues created by a Registry
func WithNotificationTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.notificationTTL = ttl
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New(), notificationTTL: notify.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Controller owns one user's bridge. State and URL only change together under mu;
// the token request itself runs without holding it.
type Controller struct {
	cfg     Config
	issuer  idp.TokenIssuer
	queue   *notify.Queue
	clock   clock.Clock
	metrics *metrics.Metrics

	mu        sync.Mutex
	sess      *session.Session
	state     State
	url       string
	issued    uint64 // sequence of the latest refresh started
	lastStamp int64  // last handoff stamp, epoch ms
	updatedAt time.Time
	acquired  bool
	lastError string

	loadOnce sync.Once
}

// NewController creates an idle controller. sess may be nil until SessionLoaded.
func NewController(cfg Config, sess *session.Session, issuer idp.TokenIssuer, queue *notify.Queue, opts ...Option) *Controller {
	o := buildOptions(opts)
	c := &Controller{
		cfg:       cfg,
		issuer:    issuer,
		queue:     queue,
		clock:     o.clock,
		metrics:   o.metrics,
		state:     StateIdle,
		updatedAt: o.clock.Now(),
	}
	if sess.Loaded() {
		s := *sess
		c.sess = &s
	}
	return c
}

// Attach replaces the session used for future acquisitions
func (c *Controller) Attach(sess *session.Session) error {
	if !sess.Loaded() {
		return ErrSessionUnavailable
	}
	s := *sess
	c.mu.Lock()
	c.sess = &s
	c.mu.Unlock()
	return nil
}

// SessionLoaded attaches sess and, the first time a valid session arrives, runs
// exactly one Refresh. Later calls only attach.
func (c *Controller) SessionLoaded(ctx context.Context, sess *session.Session) error {
	if err := c.Attach(sess); err != nil {
		return err
	}
	var err error
	c.loadOnce.Do(func() {
		err = c.Refresh(ctx)
	})
	return err
}

// Refresh acquires a fresh token and rebuilds the handoff URL. Concurrent refreshes
// are allowed; the outcome of the most recently started one wins and every other
// outcome is discarded with ErrSuperseded.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if !c.sess.Loaded() {
		c.mu.Unlock()
		return ErrSessionUnavailable
	}
	c.issued++
	seq := c.issued
	c.state = StateGenerating
	c.url = ""
	c.lastError = ""
	c.updatedAt = c.clock.Now()
	svc := tokens.NewService(c.issuer, *c.sess)
	c.mu.Unlock()

	c.notify(msgGenerating, notify.SeverityInfo)
	log.LogDebugWithFields("bridge", "Refreshing bridge", map[string]any{
		"user_id":  svc.Session().UserID,
		"sequence": seq,
	})

	token, acquireErr := c.acquire(ctx, svc)

	c.mu.Lock()
	defer c.mu.Unlock()

	if acquireErr == nil {
		c.acquired = true
	}

	if seq != c.issued {
		c.metrics.ObserveRefresh(metrics.OutcomeSuperseded)
		log.LogDebugWithFields("bridge", "Discarding superseded refresh outcome", map[string]any{
			"sequence": seq,
			"latest":   c.issued,
		})
		return ErrSuperseded
	}

	if acquireErr != nil {
		msg := msgIssuerError
		if errors.Is(acquireErr, tokens.ErrNoToken) {
			msg = msgNoToken
		}
		c.failLocked(msg, acquireErr)
		return acquireErr
	}

	url, err := bridgeurl.Build(c.cfg.Destination, token, time.UnixMilli(c.nextStampLocked()))
	if err != nil {
		c.failLocked(msgIssuerError, err)
		return fmt.Errorf("building bridge url: %w", err)
	}

	c.state = StateReady
	c.url = url
	c.updatedAt = c.clock.Now()
	c.metrics.ObserveRefresh(metrics.OutcomeSuccess)
	c.notify(msgGenerated, notify.SeveritySuccess)

	log.LogInfoWithFields("bridge", "Bridge ready", map[string]any{
		"user_id":      c.sess.UserID,
		"sequence":     seq,
		"token_length": len(token),
	})
	return nil
}

// DebugInspect acquires a fresh token and decodes it for display. It never touches the
// bridge state or URL. When the bridge is idle or no token was ever acquired it does
// nothing and returns (nil, nil).
func (c *Controller) DebugInspect(ctx context.Context) (*introspect.Report, error) {
	c.mu.Lock()
	if c.state == StateIdle || !c.acquired || !c.sess.Loaded() {
		c.mu.Unlock()
		return nil, nil
	}
	svc := tokens.NewService(c.issuer, *c.sess)
	c.mu.Unlock()

	token, err := c.acquire(ctx, svc)
	if err != nil {
		msg := msgIssuerError
		if errors.Is(err, tokens.ErrNoToken) {
			msg = msgNoToken
		}
		c.notify(msg, notify.SeverityError)
		log.LogWarnWithFields("bridge", "Failed to acquire token for inspection", map[string]any{
			"user_id": svc.Session().UserID,
			"error":   err.Error(),
		})
		return nil, err
	}

	report, err := introspect.Inspect(token)
	if err != nil {
		c.notify(msgDecodeFailed, notify.SeverityError)
		log.LogWarnWithFields("bridge", "Failed to decode token for inspection", map[string]any{
			"user_id": svc.Session().UserID,
			"error":   err.Error(),
		})
		return nil, err
	}

	for _, line := range report.Lines() {
		log.LogDebugWithFields("bridge", line, map[string]any{"user_id": svc.Session().UserID})
	}
	return report, nil
}

// Snapshot returns state and URL read together
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:         c.state,
		URL:           c.url,
		Sequence:      c.issued,
		UpdatedAt:     c.updatedAt,
		TokenAcquired: c.acquired,
		LastError:     c.lastError,
	}
}

// Session returns a copy of the attached session, or nil
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	s := *c.sess
	return &s
}

func (c *Controller) acquire(ctx context.Context, svc *tokens.Service) (string, error) {
	if c.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AcquireTimeout)
		defer cancel()
	}
	start := c.clock.Now()
	token, err := svc.Acquire(ctx, c.cfg.Template)
	c.metrics.ObserveAcquire(c.clock.Since(start))
	return token, err
}

func (c *Controller) failLocked(msg string, err error) {
	c.state = StateFailed
	c.url = ""
	c.lastError = err.Error()
	c.updatedAt = c.clock.Now()
	c.metrics.ObserveRefresh(metrics.OutcomeFailed)
	c.notify(msg, notify.SeverityError)

	log.LogWarnWithFields("bridge", "Bridge refresh failed", map[string]any{
		"user_id": c.sess.UserID,
		"error":   err.Error(),
	})
}

// nextStampLocked returns a handoff stamp strictly greater than the previous one,
// even when the clock has not advanced
func (c *Controller) nextStampLocked() int64 {
	stamp := c.clock.Now().UnixMilli()
	if stamp <= c.lastStamp {
		stamp = c.lastStamp + 1
	}
	c.lastStamp = stamp
	return stamp
}

func (c *Controller) notify(message string, severity notify.Severity) {
	c.queue.Push(message, severity)
}
