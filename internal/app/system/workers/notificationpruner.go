// internal/app/system/workers/notificationpruner.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReadNotificationDeleter removes read notifications older than a cutoff.
type ReadNotificationDeleter interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationPruner is a background worker that deletes read
// notifications once they are older than the retention period.
type NotificationPruner struct {
	notes     ReadNotificationDeleter
	log       *zap.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewNotificationPruner creates a pruner that runs every interval and
// removes read notifications created more than retention ago.
func NewNotificationPruner(notes ReadNotificationDeleter, logger *zap.Logger, interval, retention time.Duration) *NotificationPruner {
	return &NotificationPruner{
		notes:     notes,
		log:       logger,
		interval:  interval,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		stopCh:    make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *NotificationPruner) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("notification pruner started",
		zap.Duration("interval", w.interval),
		zap.Duration("retention", w.retention))
}

// Stop signals the worker to stop and waits for it to finish. Calling it
// more than once is harmless.
func (w *NotificationPruner) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("notification pruner stopped")
	})
}

func (w *NotificationPruner) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Prune(context.Background())
		}
	}
}

// Prune runs one pass and returns how many notifications were removed.
func (w *NotificationPruner) Prune(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := w.notes.DeleteReadBefore(ctx, w.now().Add(-w.retention))
	if err != nil {
		w.log.Error("failed to prune read notifications", zap.Error(err))
		return 0
	}
	if count > 0 {
		w.log.Info("pruned read notifications", zap.Int64("count", count))
	}
	return count
}
