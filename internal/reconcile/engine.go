// Package reconcile applies inbound provider notifications to the payment
// ledger and materializes orders for confirmed payments exactly once.
package reconcile

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/events"
	"github.com/astriondesign-guinea/quickshop/internal/models"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
)

var (
	// ErrUnknownReference means the notification does not correlate to any
	// known payment. No ledger row is touched.
	ErrUnknownReference = stderrors.New("notification references unknown payment")
	ErrUnknownProvider  = stderrors.New("unknown provider")
)

// Outcome reports what a notification did, for logging and responses.
type Outcome string

const (
	// OutcomePaid: this delivery won the pending→paid transition and the
	// order was materialized.
	OutcomePaid Outcome = "paid"
	// OutcomeFailed: this delivery won the pending→failed transition.
	OutcomeFailed Outcome = "failed"
	// OutcomeRecorded: correlated but not finalizing (pending-equivalent
	// or unrecognized token); raw payload stored for audit.
	OutcomeRecorded Outcome = "recorded"
	// OutcomeNoOp: duplicate or late delivery for a finalized payment.
	OutcomeNoOp Outcome = "no_op"
)

// Ledger is the slice of the payment store the engine needs. MarkPaid and
// MarkFailed are conditional updates succeeding for exactly one concurrent
// caller; InsertOrder reports false when the unique constraint on the
// source payment absorbed a duplicate.
type Ledger interface {
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	RecordProviderData(ctx context.Context, paymentID string, raw []byte) error
	MarkPaid(ctx context.Context, paymentID string) (bool, error)
	MarkFailed(ctx context.Context, paymentID string) (bool, error)
	InsertOrder(ctx context.Context, o *models.Order) (bool, error)
	GetOrderIDByPayment(ctx context.Context, paymentID string) (string, error)
	SetOrderRef(ctx context.Context, paymentID, orderID string) (bool, error)
}

type Engine struct {
	Ledger    Ledger
	Providers provider.Registry
	Events    events.Publisher
	L         *zap.Logger
}

func NewEngine(ledger Ledger, providers provider.Registry, pub events.Publisher, l *zap.Logger) *Engine {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{
		Ledger:    ledger,
		Providers: providers,
		Events:    pub,
		L:         l.Named("reconcile"),
	}
}

// HandleWebhook verifies, parses and applies a raw provider webhook.
func (e *Engine) HandleWebhook(ctx context.Context, name models.Provider, raw []byte, signature string) (Outcome, error) {
	ad, ok := e.Providers.Get(name)
	if !ok {
		return "", errors.Wrapf(ErrUnknownProvider, "%q", name)
	}
	n, err := ad.ParseNotification(raw, signature)
	if err != nil {
		return "", err
	}
	return e.Apply(ctx, n, raw)
}

// Apply runs the state machine for a normalized notification. raw, when
// non-nil, is stored on the payment for audit regardless of whether a
// transition happens.
func (e *Engine) Apply(ctx context.Context, n provider.Notification, raw []byte) (Outcome, error) {
	if n.Reference == "" {
		return "", ErrUnknownReference
	}

	p, err := e.Ledger.GetPayment(ctx, n.Reference)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return "", errors.Wrapf(ErrUnknownReference, "reference %q", n.Reference)
		}
		return "", errors.Wrap(err, "load payment")
	}

	if raw != nil {
		if err := e.Ledger.RecordProviderData(ctx, p.PaymentID, raw); err != nil {
			return "", errors.Wrap(err, "record provider data")
		}
	}

	if p.Status.Finalized() {
		// Duplicate or late delivery. The only work left is completing a
		// materialization a previous paid delivery started but did not
		// finish; the materializer is idempotent, so this cannot create a
		// second order.
		if p.Status == models.PaymentPaid && p.OrderID == nil {
			if err := e.materialize(ctx, p); err != nil {
				return "", err
			}
		}
		e.L.Info("notification ignored for finalized payment",
			zap.String("payment_id", p.PaymentID),
			zap.String("status", string(p.Status)),
		)
		return OutcomeNoOp, nil
	}

	switch n.Status {
	case provider.StatusPaid:
		won, err := e.Ledger.MarkPaid(ctx, p.PaymentID)
		if err != nil {
			return "", errors.Wrap(err, "mark paid")
		}
		if !won {
			// A concurrent delivery finalized the payment first.
			return OutcomeNoOp, nil
		}
		e.L.Info("payment confirmed",
			zap.String("payment_id", p.PaymentID),
			zap.String("provider", string(p.Provider)),
		)
		e.Events.PaymentUpdated(events.PaymentUpdate{
			PaymentID: p.PaymentID,
			Provider:  p.Provider,
			Status:    models.PaymentPaid,
		})
		if err := e.materialize(ctx, p); err != nil {
			return "", err
		}
		return OutcomePaid, nil

	case provider.StatusFailed:
		won, err := e.Ledger.MarkFailed(ctx, p.PaymentID)
		if err != nil {
			return "", errors.Wrap(err, "mark failed")
		}
		if !won {
			return OutcomeNoOp, nil
		}
		e.L.Info("payment failed",
			zap.String("payment_id", p.PaymentID),
			zap.String("provider", string(p.Provider)),
		)
		e.Events.PaymentUpdated(events.PaymentUpdate{
			PaymentID: p.PaymentID,
			Provider:  p.Provider,
			Status:    models.PaymentFailed,
		})
		return OutcomeFailed, nil

	default:
		// Pending-equivalent or unrecognized token: audit only.
		return OutcomeRecorded, nil
	}
}

// materialize creates the order for a paid payment. The unique constraint
// on orders.source_payment_id is the second safety net: a concurrent or
// duplicate invocation loses the insert, adopts the existing order id and
// reports success.
func (e *Engine) materialize(ctx context.Context, p *models.Payment) error {
	order := &models.Order{
		OrderID:         uuid.NewString(),
		SourcePaymentID: p.PaymentID,
		Contact:         p.Customer.Contact(),
		Items:           p.Cart,
		Total:           p.Amount,
		Currency:        p.Currency,
		Status:          models.OrderFulfilmentPending,
	}

	inserted, err := e.Ledger.InsertOrder(ctx, order)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}
	if !inserted {
		existing, err := e.Ledger.GetOrderIDByPayment(ctx, p.PaymentID)
		if err != nil {
			return errors.Wrap(err, "load existing order")
		}
		order.OrderID = existing
	}

	if _, err := e.Ledger.SetOrderRef(ctx, p.PaymentID, order.OrderID); err != nil {
		return errors.Wrap(err, "set order ref")
	}

	if inserted {
		e.L.Info("order materialized",
			zap.String("payment_id", p.PaymentID),
			zap.String("order_id", order.OrderID),
		)
		e.Events.OrderCreated(events.OrderCreated{
			OrderID:         order.OrderID,
			SourcePaymentID: p.PaymentID,
			Total:           order.Total,
			Currency:        order.Currency,
		})
	}
	return nil
}
