// Package events publishes payment lifecycle updates for downstream
// consumers (fulfilment, customer notification). Publishing is
// best-effort: reconciliation correctness never depends on it.
package events

import (
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/models"
)

const (
	SubjectPaymentUpdated = "payments.update"
	SubjectOrderCreated   = "orders.created"
)

type PaymentUpdate struct {
	PaymentID string               `json:"payment_id"`
	Provider  models.Provider      `json:"provider"`
	Status    models.PaymentStatus `json:"status"`
}

type OrderCreated struct {
	OrderID         string `json:"order_id"`
	SourcePaymentID string `json:"source_payment_id"`
	Total           int64  `json:"total"`
	Currency        string `json:"currency"`
}

type Publisher interface {
	PaymentUpdated(u PaymentUpdate)
	OrderCreated(o OrderCreated)
}

// Nop is used when no broker is configured and in tests.
type Nop struct{}

func (Nop) PaymentUpdated(PaymentUpdate) {}
func (Nop) OrderCreated(OrderCreated)    {}

type NATS struct {
	nc *nats.EncodedConn
	l  *zap.Logger
}

func Connect(url string, l *zap.Logger) (*NATS, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to nats")
	}
	nc, err := nats.NewEncodedConn(conn, nats.JSON_ENCODER)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "wrap nats connection")
	}
	return &NATS{nc: nc, l: l.Named("events")}, nil
}

func (p *NATS) PaymentUpdated(u PaymentUpdate) {
	if err := p.nc.Publish(SubjectPaymentUpdated, &u); err != nil {
		p.l.Warn("failed to publish payment update",
			zap.String("payment_id", u.PaymentID),
			zap.Error(err),
		)
	}
}

func (p *NATS) OrderCreated(o OrderCreated) {
	if err := p.nc.Publish(SubjectOrderCreated, &o); err != nil {
		p.l.Warn("failed to publish order created",
			zap.String("order_id", o.OrderID),
			zap.Error(err),
		)
	}
}

func (p *NATS) Close() {
	p.nc.Close()
}
