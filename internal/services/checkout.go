package services

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/models"
	"github.com/astriondesign-guinea/quickshop/internal/pricing"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
)

var (
	ErrEmptyCart           = stderrors.New("cart is empty")
	ErrInvalidItem         = stderrors.New("cart item has invalid price or quantity")
	ErrUnsupportedCurrency = stderrors.New("unsupported currency")
	ErrUnsupportedProvider = stderrors.New("unsupported provider")
	// ErrOrphanedTransaction flags a provider-side transaction that was
	// opened but whose ledger row could not be written. Surfaced for
	// manual reconciliation, never retried here.
	ErrOrphanedTransaction = stderrors.New("provider transaction opened but ledger write failed")
)

// Ledger is the slice of the payment store the checkout path needs.
type Ledger interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

type CheckoutService struct {
	Ledger    Ledger
	Providers provider.Registry
	Pricing   pricing.Service
	L         *zap.Logger
}

type CheckoutInput struct {
	Cart     []models.CartItem
	Customer models.Customer
	Provider models.Provider
	Currency string
}

type CheckoutResult struct {
	PaymentID   string
	ClientToken string
}

func (s *CheckoutService) CreateCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if len(in.Cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, it := range in.Cart {
		if it.Price <= 0 || it.Quantity < 0 {
			return nil, ErrInvalidItem
		}
	}

	currency := in.Currency
	if currency == "" {
		currency = s.Pricing.BaseCurrency
	}
	if !s.Pricing.Supported(currency) {
		return nil, errors.Wrapf(ErrUnsupportedCurrency, "%q", currency)
	}

	ad, ok := s.Providers.Get(in.Provider)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedProvider, "%q", in.Provider)
	}

	// Snapshot the cart with quantities normalized; the stored copy is
	// the canonical record of the purchase.
	cart := make([]models.CartItem, len(in.Cart))
	copy(cart, in.Cart)
	for i := range cart {
		if cart[i].Quantity == 0 {
			cart[i].Quantity = 1
		}
	}

	amount := s.Pricing.TotalMinorUnits(cart, currency)
	paymentID := uuid.NewString()

	handle, err := ad.OpenTransaction(ctx, provider.OpenRequest{
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  currency,
		Customer:  in.Customer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open provider transaction")
	}

	payment := &models.Payment{
		PaymentID:   paymentID,
		Provider:    in.Provider,
		ProviderRef: handle.ProviderRef,
		Amount:      amount,
		Currency:    currency,
		Status:      models.PaymentPending,
		Customer:    in.Customer,
		Cart:        cart,
	}
	if err := s.Ledger.CreatePayment(ctx, payment); err != nil {
		s.L.Error("orphaned provider transaction",
			zap.String("payment_id", paymentID),
			zap.String("provider", string(in.Provider)),
			zap.String("provider_ref", handle.ProviderRef),
			zap.Error(err),
		)
		return nil, errors.Wrapf(ErrOrphanedTransaction, "provider_ref %q: %v", handle.ProviderRef, err)
	}

	return &CheckoutResult{
		PaymentID:   paymentID,
		ClientToken: handle.ClientToken,
	}, nil
}

func (s *CheckoutService) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	return s.Ledger.GetPayment(ctx, paymentID)
}
