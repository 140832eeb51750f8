// Package agent wires the stayline components together: one explicitly
// constructed store injected into the upload queue, notification log,
// response cache and device registry, plus the coordinator that replays
// deferred work.
package agent

import (
	"context"

	_ "modernc.org/sqlite"

	"stayline/internal/api"
	"stayline/internal/cache"
	"stayline/internal/config"
	"stayline/internal/device"
	"stayline/internal/events"
	"stayline/internal/logging"
	"stayline/internal/notify"
	"stayline/internal/store"
	"stayline/internal/syncer"
	"stayline/internal/uploads"
)

// intentRegistrar defers the queue→coordinator edge so both can be
// constructed without a cycle.
type intentRegistrar struct {
	c *syncer.Coordinator
}

func (r *intentRegistrar) RegisterIntent(tag string) {
	if r.c != nil {
		r.c.RegisterIntent(tag)
	}
}

type App struct {
	cfg *config.Config
	log logging.Logger

	store *store.Store

	Bus           *events.Bus
	API           *api.HTTPClient
	Uploads       *uploads.Service
	Notifications *notify.Log
	Cache         *cache.Cache
	Devices       *device.Registry
	Coordinator   *syncer.Coordinator
}

// New opens the store and builds every component. A store that cannot be
// opened is fatal here: the agent exists to provide durability, unlike a
// UI which would degrade instead.
func New(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	st := store.New(cfg.DatabasePath, log)
	if err := st.Open(ctx); err != nil {
		return nil, err
	}

	client := api.NewHTTPClient(cfg.ServerBaseURL, log)
	bus := events.NewBus()

	notifications := notify.New(st, log)
	notifications.Attach(bus)

	reg := &intentRegistrar{}
	up := uploads.NewService(st, client, reg, log, cfg.ReplayRatePerSecond)
	coord := syncer.New(up, client, log, cfg.OnlineCheckInterval, true)
	reg.c = coord

	app := &App{
		cfg:           cfg,
		log:           log.With("component", "agent"),
		store:         st,
		Bus:           bus,
		API:           client,
		Uploads:       up,
		Notifications: notifications,
		Cache:         cache.New(st, client, log),
		Devices:       device.NewRegistry(st, client, log, cfg.Platform, []string{"push", "media"}),
		Coordinator:   coord,
	}

	// a sync prompt from the platform means the durable log changed
	// underneath us; consumers re-read it on demand, so just surface it
	bus.Subscribe(events.TypeSyncNotificationLog, func(ctx context.Context, _ events.Message) {
		n, err := notifications.Unread(ctx)
		if err != nil {
			app.log.Warn(ctx, "notification log refresh failed", "error", err)
			return
		}
		app.log.Info(ctx, "notification log refreshed", "unread", n)
	})

	return app, nil
}

// Run starts the background pieces and blocks until ctx is cancelled.
// Anything left queued from a previous run is flushed up front, which is
// the whole recovery path when no background wake-ups exist.
func (a *App) Run(ctx context.Context) error {
	a.Cache.StartSweeper(ctx, a.cfg.SweepInterval)

	if _, err := a.Devices.Ensure(ctx); err != nil {
		a.log.Warn(ctx, "device registration unavailable", "error", err)
	}

	go a.Coordinator.Run(ctx)

	if err := a.Coordinator.FlushNow(ctx); err != nil {
		a.log.Warn(ctx, "startup flush incomplete", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Close releases the store. Queued work survives for the next run.
func (a *App) Close() error {
	return a.store.Close()
}
