// Package card adapts the Stripe card gateway to the provider contract.
package card

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	stripe "github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/client"
	"github.com/stripe/stripe-go/webhook"

	"github.com/astriondesign-guinea/quickshop/internal/models"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
)

// metadataKey is the PaymentIntent metadata field carrying our payment id
// back on every webhook.
const metadataKey = "payment_id"

type Adapter struct {
	sc            *client.API
	webhookSecret string
	l             *zap.Logger
}

func New(secretKey, webhookSecret string, l *zap.Logger) *Adapter {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Adapter{
		sc:            sc,
		webhookSecret: webhookSecret,
		l:             l.Named("card_provider"),
	}
}

func (a *Adapter) Name() models.Provider { return models.ProviderCard }

func (a *Adapter) SignatureHeader() string { return "Stripe-Signature" }

func (a *Adapter) OpenTransaction(ctx context.Context, req provider.OpenRequest) (provider.Handle, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		PaymentMethodTypes: []*string{
			stripe.String("card"),
		},
	}
	params.AddMetadata(metadataKey, req.PaymentID)
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Customer.Email)
	}

	intent, err := a.sc.PaymentIntents.New(params)
	if err != nil {
		a.l.Warn("failed to create payment intent",
			zap.String("payment_id", req.PaymentID),
			zap.Error(err),
		)
		return provider.Handle{}, errors.Wrap(err, "create payment intent")
	}
	return provider.Handle{
		ProviderRef: intent.ID,
		ClientToken: intent.ClientSecret,
	}, nil
}

func (a *Adapter) ParseNotification(raw []byte, signature string) (provider.Notification, error) {
	event, err := webhook.ConstructEvent(raw, signature, a.webhookSecret)
	if err != nil {
		a.l.Warn("webhook signature verification failed", zap.Error(err))
		return provider.Notification{}, provider.ErrBadSignature
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return provider.Notification{}, provider.ErrBadPayload
	}

	return provider.Notification{
		Reference:   intent.Metadata[metadataKey],
		ProviderRef: intent.ID,
		Status:      normalizeEventType(event.Type),
	}, nil
}

func (a *Adapter) QueryTransaction(ctx context.Context, providerRef string) (provider.Notification, error) {
	intent, err := a.sc.PaymentIntents.Get(providerRef, nil)
	if err != nil {
		return provider.Notification{}, errors.Wrap(err, "get payment intent")
	}
	return provider.Notification{
		Reference:   intent.Metadata[metadataKey],
		ProviderRef: intent.ID,
		Status:      normalizeIntentStatus(intent.Status),
	}, nil
}

func normalizeEventType(eventType string) provider.Status {
	switch eventType {
	case "payment_intent.succeeded":
		return provider.StatusPaid
	case "payment_intent.payment_failed", "payment_intent.canceled":
		return provider.StatusFailed
	case "payment_intent.processing", "payment_intent.created":
		return provider.StatusPending
	default:
		return provider.StatusOther
	}
}

func normalizeIntentStatus(status stripe.PaymentIntentStatus) provider.Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return provider.StatusPaid
	case stripe.PaymentIntentStatusCanceled:
		return provider.StatusFailed
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return provider.StatusPending
	default:
		return provider.StatusOther
	}
}
