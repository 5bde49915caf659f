package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"cwlogd/internal/api"
	"cwlogd/internal/bus"
	"cwlogd/internal/chatwork"
	"cwlogd/internal/config"
	"cwlogd/internal/fetch"
	"cwlogd/internal/lock"
	"cwlogd/internal/logging"
	"cwlogd/internal/paths"
	"cwlogd/internal/scheduler"
	"cwlogd/internal/store"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config  *config.Config
	DataDir string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideLocation,
			provideClient,
			provideFetcher,
			provideScheduler,
			provideRoomService,
			provideMessageService,
			provideWatchService,
			provideLogService,
			provideTokenService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(paths.LogPath(p.DataDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := paths.EnsureDir(p.DataDir); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", p.DataDir))
	l, err := lock.Acquire(p.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.DBPath(p.DataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideLocation(p Params) (*time.Location, error) {
	return p.Config.Location()
}

func provideClient(p Params) *chatwork.Client {
	return chatwork.New(
		p.Config.Upstream.BaseURL,
		time.Duration(p.Config.Upstream.RequestTimeoutSecs)*time.Second,
	)
}

func provideFetcher(p Params, client *chatwork.Client, loc *time.Location, logger *zap.Logger) *fetch.Fetcher {
	return fetch.New(
		client,
		p.Config.Upstream.WindowSpanDays,
		time.Duration(p.Config.Upstream.RateLimitMillis)*time.Millisecond,
		loc,
		logger,
	)
}

func provideScheduler(p Params, db *store.DB, fetcher *fetch.Fetcher, b *bus.Bus, logger *zap.Logger, loc *time.Location) *scheduler.Scheduler {
	return scheduler.New(db, fetcher, b, logger, nil, loc, scheduler.Options{
		WatchCap:     p.Config.AutoSave.WatchCap,
		LogCap:       p.Config.AutoSave.LogCap,
		RoomDelay:    time.Duration(p.Config.Upstream.RateLimitMillis) * time.Millisecond,
		InitialDelay: time.Duration(p.Config.AutoSave.InitialDelaySecs) * time.Second,
		Period:       time.Duration(p.Config.AutoSave.PassPeriodMins) * time.Minute,
	})
}

func provideRoomService(client *chatwork.Client, db *store.DB, logger *zap.Logger) *api.RoomService {
	return api.NewRoomService(client, db, logger)
}

func provideMessageService(p Params, fetcher *fetch.Fetcher, db *store.DB, b *bus.Bus, logger *zap.Logger, loc *time.Location) *api.MessageService {
	return api.NewMessageService(fetcher, db, b, logger, loc, p.Config.AutoSave.LogCap)
}

func provideWatchService(p Params, db *store.DB, sched *scheduler.Scheduler, logger *zap.Logger) *api.WatchService {
	return api.NewWatchService(db, sched, logger, p.Config.AutoSave.WatchCap, p.Config.AutoSave.DefaultIntervalDays)
}

func provideLogService(db *store.DB) *api.LogService {
	return api.NewLogService(db)
}

func provideTokenService(db *store.DB) *api.TokenService {
	return api.NewTokenService(db)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, sched *scheduler.Scheduler, db *store.DB, b *bus.Bus, logger *zap.Logger) {
	watchCtx, watchCancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Mirror save/failure events into the daemon log.
			ch, unsub := b.Subscribe("autosave.", 64)
			go func() {
				defer unsub()
				for {
					select {
					case evt := <-ch:
						logger.Info("auto-save event", zap.String("kind", evt.Kind))
					case <-watchCtx.Done():
						return
					}
				}
			}()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()

			sched.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			watchCancel()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
