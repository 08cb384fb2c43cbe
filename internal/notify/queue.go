// Package notify keeps the short-lived status messages shown to a dashboard user.
// Each notification expires on its own timer.
package notify

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgellow/launch-bridge/internal/log"
	"github.com/dgellow/launch-bridge/internal/metrics"
	"github.com/google/uuid"
)

// DefaultTTL is how long a notification stays in the active set
const DefaultTTL = 5 * time.Second

// Severity tags a notification for display
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Notification is a transient status message
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue holds active notifications. Every notification schedules its own removal
// when pushed, so expiry does not depend on any other activity on the queue.
type Queue struct {
	mu      sync.Mutex
	clock   clock.Clock
	metrics *metrics.Metrics
	ttl     time.Duration
	items   []Notification
	timers  map[string]*clock.Timer
	subs    map[int]chan []Notification
	nextSub int
	closed  bool
}

// Option configures a Queue
type Option func(*Queue)

// WithClock sets the clock used for timestamps and expiry timers
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithMetrics counts pushed notifications and tracks how many are active
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithTTL sets how long notifications stay active
func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// NewQueue creates an empty notification queue
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		clock:  clock.New(),
		ttl:    DefaultTTL,
		timers: make(map[string]*clock.Timer),
		subs:   make(map[int]chan []Notification),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push adds a notification and schedules its expiry
func (q *Queue) Push(message string, severity Severity) Notification {
	n := Notification{
		ID:        newID(),
		Message:   message,
		Severity:  severity,
		CreatedAt: q.clock.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return n
	}

	q.items = append(q.items, n)
	q.metrics.ObserveNotification(string(severity))
	q.timers[n.ID] = q.clock.AfterFunc(q.ttl, func() {
		q.expire(n.ID)
	})
	q.publishLocked()

	log.LogTraceWithFields("notify", "Notification queued", map[string]any{
		"id":       n.ID,
		"severity": string(severity),
	})
	return n
}

// Active returns the current notifications, oldest first
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Len returns the number of active notifications
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Subscribe returns a feed of active-set snapshots, one per change. Slow readers only
// ever see the latest snapshot. The returned func unsubscribes and closes the feed.
func (q *Queue) Subscribe() (<-chan []Notification, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan []Notification, 1)
	if q.closed {
		close(ch)
		return ch, func() {}
	}

	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch
	ch <- q.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.mu.Lock()
			defer q.mu.Unlock()
			if sub, ok := q.subs[id]; ok {
				delete(q.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops all pending expiry timers and closes every subscription
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.metrics.ObserveNotificationsExpired(len(q.items))
	q.items = nil
	for id, sub := range q.subs {
		delete(q.subs, id)
		close(sub)
	}
}

func (q *Queue) expire(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.timers, id)
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.metrics.ObserveNotificationsExpired(1)
			q.publishLocked()
			return
		}
	}
}

func (q *Queue) snapshotLocked() []Notification {
	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) publishLocked() {
	if len(q.subs) == 0 {
		return
	}
	snapshot := q.snapshotLocked()
	for _, sub := range q.subs {
		// drop the stale snapshot so the reader always gets the latest one
		select {
		case <-sub:
		default:
		}
		sub <- snapshot
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
