// internal/app/bootstrap/services.go
package bootstrap

import (
	"time"

	joinsvc "github.com/dalemusser/flathub/internal/app/services/joinrequests"
	"github.com/dalemusser/flathub/internal/app/services/ledger"
	notifysvc "github.com/dalemusser/flathub/internal/app/services/notifications"
	flatsvc "github.com/dalemusser/flathub/internal/app/services/sharedflats"
	eventstore "github.com/dalemusser/flathub/internal/app/store/events"
	joinrequeststore "github.com/dalemusser/flathub/internal/app/store/joinrequests"
	notificationstore "github.com/dalemusser/flathub/internal/app/store/notifications"
	sharedflatstore "github.com/dalemusser/flathub/internal/app/store/sharedflats"
	userstore "github.com/dalemusser/flathub/internal/app/store/users"
	"github.com/dalemusser/flathub/internal/app/system/flatlock"
	"github.com/dalemusser/flathub/internal/app/system/notifybus"
	"go.uber.org/zap"
)

// lockRetry is how often a Redis lock waiter polls.
const lockRetry = 25 * time.Millisecond

// Services bundles the domain services the HTTP features are built on.
type Services struct {
	Flats  *flatsvc.Service
	Joins  *joinsvc.Workflow
	Ledger *ledger.Service
	Notify *notifysvc.Dispatcher
}

// BuildServices wires stores, the locker and the notification bus into the
// domain services. With Redis configured, locks and live notifications are
// shared across instances; otherwise they stay in-process.
func BuildServices(appCfg AppConfig, deps DBDeps, logger *zap.Logger) Services {
	db := deps.FlatHubMongoDatabase

	flats := sharedflatstore.New(db)
	users := userstore.New(db)
	requests := joinrequeststore.New(db)
	events := eventstore.New(db)
	notes := notificationstore.New(db)

	var (
		locker flatlock.Locker     = flatlock.NewLocal()
		bus    notifybus.Publisher = notifybus.Nop{}
	)
	if deps.Redis != nil {
		locker = flatlock.NewRedis(deps.Redis, appCfg.LockTTL, lockRetry, logger)
		bus = notifybus.NewRedis(deps.Redis, appCfg.RedisChannel)
	}
	locker = flatlock.Bounded{Locker: locker, Wait: appCfg.LockWait}

	dispatcher := notifysvc.New(notes, users, bus, logger)
	flatService := flatsvc.New(flats, users, requests, locker, logger)

	return Services{
		Flats:  flatService,
		Joins:  joinsvc.New(flats, requests, users, flatService, dispatcher, locker, logger),
		Ledger: ledger.New(events, flatService, dispatcher, locker, appCfg.NeedTTL, logger),
		Notify: dispatcher,
	}
}
