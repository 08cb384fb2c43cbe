package bridge

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgellow/launch-bridge/internal/log"
)

// CleanupManager periodically evicts idle bridges from a Registry
type CleanupManager struct {
	registry *Registry
	idle     time.Duration
	interval time.Duration
	clock    clock.Clock
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(registry *Registry, idle, interval time.Duration, opts ...Option) *CleanupManager {
	o := buildOptions(opts)
	return &CleanupManager{
		registry: registry,
		idle:     idle,
		interval: interval,
		clock:    o.clock,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting bridge cleanup manager", map[string]any{
		"interval":     cm.interval.String(),
		"idle_timeout": cm.idle.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	log.Logf("Stopping bridge cleanup manager...")
	close(cm.stopChan)
	<-cm.doneChan // Wait for cleanup loop to finish
	log.Logf("Bridge cleanup manager stopped")
}

// Done is closed once the loop has exited
func (cm *CleanupManager) Done() <-chan struct{} {
	return cm.doneChan
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := cm.clock.Ticker(cm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.cleanup()
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup() {
	if count := cm.registry.Sweep(cm.idle); count > 0 {
		log.LogInfoWithFields("cleanup", "Evicted idle bridges", map[string]any{
			"count":     count,
			"remaining": cm.registry.Len(),
		})
	}
}
