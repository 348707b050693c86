package main

import (
	"context"
	"errors"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	platformconfig "github.com/example/oration/internal/platform/config"
	"github.com/example/oration/internal/platform/events"
	"github.com/example/oration/internal/platform/httpserver"
	"github.com/example/oration/internal/platform/logging"
	"github.com/example/oration/internal/platform/natsconn"
	"github.com/example/oration/internal/platform/run"
	"github.com/example/oration/services/notifier/internal/config"
	"github.com/example/oration/services/notifier/internal/consumer"
	"github.com/example/oration/services/notifier/internal/mailer"
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

	cfg := config.Load()
	m := mailer.New(cfg.SMTP)
	if !m.IsConfigured() {
		log.Warn("SMTP not configured, notifications will be dropped")
	}

	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: "oration-notifier"})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Error("jetstream", zap.Error(err))
		run.Exit(1)
	}
	if err := natsconn.EnsureStream(js, events.StreamName, events.SubjectAll); err != nil {
		log.Error("ensure stream", zap.Error(err))
		run.Exit(1)
	}
	sub, err := js.PullSubscribe(events.SubjectCommentCreated, consumer.Durable)
	if err != nil {
		log.Error("pull subscribe", zap.Error(err))
		run.Exit(1)
	}

	c := &consumer.Consumer{
		Mailer:     m,
		Enabled:    m.IsConfigured(),
		Recipients: cfg.Recipients,
		BatchSize:  cfg.BatchSize,
		MaxWait:    cfg.FetchMaxWait,
		Log:        log,
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func(context.Context) error {
			if nc.Status() != nats.CONNECTED {
				return errors.New("nats " + nc.Status().String())
			}
			return nil
		},
		Logger:  log,
		Metrics: true,
	})
	srv := httpserver.New(httpserver.Options{Addr: app.HTTP.Addr, ServiceName: app.ServiceName, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			if err := c.Run(ctx, sub); err != nil {
				log.Error("consumer stopped", zap.Error(err))
			}
		}()
		return srv.Start(log)
	})
	runner.Graceful(srv.Shutdown)

	_ = sub.Drain()
	nc.Close()
	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}
