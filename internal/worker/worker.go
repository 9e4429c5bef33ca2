// Package worker is the polling fallback for providers whose webhooks
// were missed: pending payments past a minimum age are re-checked against
// the provider and fed through the same reconciliation engine.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/models"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
	"github.com/astriondesign-guinea/quickshop/internal/reconcile"
)

type Ledger interface {
	ListPendingPayments(ctx context.Context, olderThan time.Time) ([]*models.Payment, error)
}

type Worker struct {
	Ledger    Ledger
	Providers provider.Registry
	Engine    *reconcile.Engine
	Interval  time.Duration
	// MinAge keeps freshly opened payments out of the sweep; their
	// webhook is usually still in flight.
	MinAge time.Duration
	L      *zap.Logger
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		if err := w.SyncOnce(ctx); err != nil {
			w.L.Warn("sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) SyncOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.MinAge)
	payments, err := w.Ledger.ListPendingPayments(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(payments) == 0 {
		return nil
	}
	w.L.Info("sweeping pending payments", zap.Int("count", len(payments)))

	for _, p := range payments {
		if err := w.checkPayment(ctx, p); err != nil {
			w.L.Warn("check payment failed",
				zap.String("payment_id", p.PaymentID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (w *Worker) checkPayment(ctx context.Context, p *models.Payment) error {
	ad, ok := w.Providers.Get(p.Provider)
	if !ok {
		w.L.Warn("no adapter for provider",
			zap.String("payment_id", p.PaymentID),
			zap.String("provider", string(p.Provider)),
		)
		return nil
	}
	if p.ProviderRef == "" {
		return nil
	}

	n, err := ad.QueryTransaction(ctx, p.ProviderRef)
	if err != nil {
		return err
	}
	// Some providers do not echo the external reference on status reads.
	if n.Reference == "" {
		n.Reference = p.PaymentID
	}

	outcome, err := w.Engine.Apply(ctx, n, nil)
	if err != nil {
		return err
	}
	if outcome == reconcile.OutcomePaid || outcome == reconcile.OutcomeFailed {
		w.L.Info("payment reconciled by poll",
			zap.String("payment_id", p.PaymentID),
			zap.String("outcome", string(outcome)),
		)
	}
	return nil
}
