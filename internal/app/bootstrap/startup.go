// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"sync"

	notificationstore "github.com/dalemusser/flathub/internal/app/store/notifications"
	"github.com/dalemusser/flathub/internal/app/system/ratelimit"
	"github.com/dalemusser/flathub/internal/app/system/timeouts"
	"github.com/dalemusser/flathub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// background holds what Startup and BuildHandler start and Shutdown stops.
var background struct {
	mu     sync.Mutex
	pruner *workers.NotificationPruner
	writes *ratelimit.Limiter
}

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		cur := timeouts.Current()
		logger.Info("timeouts overridden from environment",
			zap.Int("overrides", n),
			zap.Duration("ping", cur.Ping),
			zap.Duration("short", cur.Short),
			zap.Duration("medium", cur.Medium),
			zap.Duration("long", cur.Long))
	}

	if appCfg.PrunesNotifications() {
		pruner := workers.NewNotificationPruner(
			notificationstore.New(deps.FlatHubMongoDatabase),
			logger, appCfg.PruneInterval, appCfg.NotificationRetention)
		pruner.Start()

		background.mu.Lock()
		background.pruner = pruner
		background.mu.Unlock()
	}
	return nil
}

// stopBackground stops the pruner and the write limiter's cleanup loop.
func stopBackground() {
	background.mu.Lock()
	defer background.mu.Unlock()
	if background.pruner != nil {
		background.pruner.Stop()
		background.pruner = nil
	}
	if background.writes != nil {
		background.writes.Stop()
		background.writes = nil
	}
}
