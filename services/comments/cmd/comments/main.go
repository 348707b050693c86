package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	platformconfig "github.com/example/oration/internal/platform/config"
	"github.com/example/oration/internal/platform/db"
	"github.com/example/oration/internal/platform/events"
	"github.com/example/oration/internal/platform/httpserver"
	"github.com/example/oration/internal/platform/logging"
	"github.com/example/oration/internal/platform/natsconn"
	"github.com/example/oration/internal/platform/run"
	"github.com/example/oration/services/comments/internal/cache"
	"github.com/example/oration/services/comments/internal/comments"
	"github.com/example/oration/services/comments/internal/config"
	"github.com/example/oration/services/comments/internal/grpcapi"
	"github.com/example/oration/services/comments/internal/handlers"
	"github.com/example/oration/services/comments/internal/notify"
	"github.com/example/oration/services/comments/internal/store"
	"github.com/example/oration/services/comments/internal/threads"
	"github.com/example/oration/services/comments/internal/tree"
)

func main() {
	app, err := platformconfig.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(app.LogLevel, app.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load("")
	if err != nil {
		log.Error("load config", zap.Error(err))
		run.Exit(1)
	}

	// closed in reverse order before exit; run.Exit skips deferred calls
	var closers []func()
	st, closeStore := initStore(log, app, cfg)
	c, closeCache := initCache(log, app, cfg)
	pub, closeNATS := initEvents(log, cfg)
	closers = append(closers, closeStore, closeCache, closeNATS)

	svc := comments.NewService(st, c, log, cfg.EditTimeout)
	trees := tree.NewAssembler(st, c, log)

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "blog",
		MaxRequests: cfg.PathCheck.MaxRequests,
		Interval:    cfg.PathCheck.Interval,
		Timeout:     cfg.PathCheck.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.PathCheck.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	resolver := threads.New(st,
		threads.WithCircuitBreaker(cb),
		threads.WithLogger(log),
		threads.WithHTTPClient(&http.Client{Timeout: cfg.PathCheck.Timeout}))

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:  st.Ping,
		Logger:     log,
		Metrics:    true,
		TrustProxy: cfg.TrustProxy,
	})
	handlers.Routes(r, handlers.Deps{
		Config:   cfg,
		Comments: svc,
		Trees:    trees,
		Threads:  resolver,
		Notifier: notify.New(pub, cfg.Notifications.NewComment, cfg.Host, cfg.BlogName, cfg.Notifications.Recipients),
		Limiter:  httpserver.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Log:      log,
	})
	srv := httpserver.New(httpserver.Options{Addr: app.HTTP.Addr, ServiceName: app.ServiceName, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	grpcapi.Register(grpcSrv, &grpcapi.CommentService{Comments: svc, Trees: trees, Log: log})
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(context.Context) error {
		return srv.Start(log)
	})
	runner.Graceful(stopGRPC(grpcSrv), srv.Shutdown)

	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] != nil {
			closers[i]()
		}
	}
	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

func stopGRPC(s *grpc.Server) func(context.Context) error {
	return func(ctx context.Context) error {
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			s.Stop()
		}
		return nil
	}
}

// initStore selects the storage backend. In production it requires a
// working Postgres and terminates the process otherwise.
func initStore(log *zap.Logger, app platformconfig.AppConfig, cfg config.Config) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		if app.IsProduction() {
			log.Error("database_url is required in production")
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("database_url not set, using in-memory store (development only)")
		return store.NewInMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		if app.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory store", zap.Error(err))
		return store.NewInMemoryStore(), nil
	}
	if err := store.Migrate(ctx, pool, log); err != nil {
		pool.Close()
		log.Error("migrations failed", zap.Error(err))
		_ = log.Sync()
		run.Exit(1)
	}

	log.Info("comments store: postgres")
	return store.NewPostgresStore(pool), pool.Close
}

// initCache connects Redis when configured; without it reads go straight
// to the store.
func initCache(log *zap.Logger, app platformconfig.AppConfig, cfg config.Config) (cache.Cache, func()) {
	if cfg.RedisURL == "" {
		log.Info("redis_url not set, caching disabled")
		return cache.Noop{}, nil
	}
	rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rc.Ping(ctx)
		cancel()
		if err != nil {
			_ = rc.Close()
		}
	}
	if err != nil {
		if app.IsProduction() {
			log.Error("redis configured but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("redis unavailable, caching disabled", zap.Error(err))
		return cache.Noop{}, nil
	}
	return rc, func() { _ = rc.Close() }
}

// initEvents connects JetStream for comment notifications. Failures are
// not fatal; the publisher then drops events.
func initEvents(log *zap.Logger, cfg config.Config) (*events.Publisher, func()) {
	if !cfg.Notifications.NewComment {
		return events.New(nil, log), nil
	}
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: "oration-comments"})
	if err != nil {
		log.Warn("nats unavailable, notifications disabled", zap.Error(err))
		return events.New(nil, log), nil
	}
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err == nil {
		err = natsconn.EnsureStream(js, events.StreamName, events.SubjectAll)
	}
	if err != nil {
		nc.Close()
		log.Warn("jetstream unavailable, notifications disabled", zap.Error(err))
		return events.New(nil, log), nil
	}
	return events.New(js, log), func() {
		select {
		case <-js.PublishAsyncComplete():
		case <-time.After(5 * time.Second):
		}
		nc.Close()
	}
}
