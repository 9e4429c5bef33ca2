package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/config"
	"github.com/astriondesign-guinea/quickshop/internal/db"
	"github.com/astriondesign-guinea/quickshop/internal/events"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
	"github.com/astriondesign-guinea/quickshop/internal/provider/card"
	"github.com/astriondesign-guinea/quickshop/internal/provider/momo"
	"github.com/astriondesign-guinea/quickshop/internal/reconcile"
	"github.com/astriondesign-guinea/quickshop/internal/store"
	"github.com/astriondesign-guinea/quickshop/internal/worker"
)

var loggerDevF = flag.Bool("logger-dev", false, "Enable development logger.")

func main() {
	flag.Parse()

	l := newLogger(*loggerDevF)
	defer func() { _ = l.Sync() }()

	cfg, err := config.Load("")
	if err != nil {
		l.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		l.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool)
	registry := provider.NewRegistry(
		card.New(cfg.Providers.Card.SecretKey, cfg.Providers.Card.WebhookSecret, l),
		momo.NewOrangeMoney(cfg.Providers.OrangeMoney.BaseURL, cfg.Providers.OrangeMoney.Secret, l),
		momo.NewMTNMoMo(cfg.Providers.MTNMoMo.BaseURL, cfg.Providers.MTNMoMo.Secret, l),
	)

	var pub events.Publisher = events.Nop{}
	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(cfg.Events.NATSURL, l)
		if err != nil {
			l.Fatal("nats connect failed", zap.Error(err))
		}
		defer nc.Close()
		pub = nc
	}

	engine := reconcile.NewEngine(st, registry, pub, l)
	w := &worker.Worker{
		Ledger:    st,
		Providers: registry,
		Engine:    engine,
		Interval:  time.Duration(cfg.Worker.IntervalSeconds) * time.Second,
		MinAge:    time.Duration(cfg.Worker.MinAgeSeconds) * time.Second,
		L:         l.Named("worker"),
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	l.Info("worker started",
		zap.Duration("interval", w.Interval),
		zap.Duration("min_age", w.MinAge),
	)
	w.Run(ctx)
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return l
	}
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return l
}
