package storage

import (
	"context"
	"time"

	"github.com/dgellow/depo-front/internal/log"
)

// CleanupManager periodically removes users not seen within the retention
// period
type CleanupManager struct {
	store     UserStore
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(store UserStore, interval, retention time.Duration) *CleanupManager {
	return &CleanupManager{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting user directory cleanup manager", map[string]any{
		"interval":  cm.interval.String(),
		"retention": cm.retention.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.Logf("User directory cleanup manager stopped")
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.store.DeleteUsersNotSeenSince(ctx, cm.now().Add(-cm.retention))
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to remove stale users", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Removed stale users", map[string]any{
			"count": count,
		})
	}
}
