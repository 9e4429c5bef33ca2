package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/config"
	"github.com/astriondesign-guinea/quickshop/internal/db"
	"github.com/astriondesign-guinea/quickshop/internal/events"
	internalhttp "github.com/astriondesign-guinea/quickshop/internal/http"
	"github.com/astriondesign-guinea/quickshop/internal/pricing"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
	"github.com/astriondesign-guinea/quickshop/internal/provider/card"
	"github.com/astriondesign-guinea/quickshop/internal/provider/momo"
	"github.com/astriondesign-guinea/quickshop/internal/reconcile"
	"github.com/astriondesign-guinea/quickshop/internal/services"
	"github.com/astriondesign-guinea/quickshop/internal/store"
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

	ctx := context.Background()
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
	checkout := &services.CheckoutService{
		Ledger:    st,
		Providers: registry,
		Pricing: pricing.Service{
			BaseCurrency:      cfg.Pricing.BaseCurrency,
			AlternateCurrency: cfg.Pricing.AlternateCurrency,
			ExchangeRate:      cfg.Pricing.ExchangeRate,
		},
		L: l.Named("checkout"),
	}

	h := internalhttp.NewHandler(checkout, engine, registry)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		l.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
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
