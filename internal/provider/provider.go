package provider

import (
	"context"
	"errors"

	"github.com/astriondesign-guinea/quickshop/internal/models"
)

var (
	// ErrBadSignature means the inbound notification could not be
	// authenticated. Verification happens before any parsing; an
	// unverifiable payload is rejected outright.
	ErrBadSignature = errors.New("notification signature verification failed")
	ErrBadPayload   = errors.New("notification payload is malformed")
)

// Status is the canonical shape every provider-specific status token is
// normalized into.
type Status string

const (
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
	// StatusOther covers tokens this relay does not recognize; the engine
	// records the payload and leaves the payment untouched.
	StatusOther Status = "other"
)

// OpenRequest carries everything an adapter needs to open a transaction.
// PaymentID travels to the provider as the external reference and comes
// back on every notification for correlation.
type OpenRequest struct {
	PaymentID string
	Amount    int64
	Currency  string
	Customer  models.Customer
}

// Handle identifies the opened transaction on the provider side.
// ClientToken is handed to the caller to complete the payment.
type Handle struct {
	ProviderRef string
	ClientToken string
}

// Notification is a provider webhook or poll result normalized into
// canonical fields.
type Notification struct {
	Reference   string
	ProviderRef string
	Status      Status
}

// Adapter is a pure translator between a provider's wire format and the
// canonical fields above. Adapters never touch the ledger.
type Adapter interface {
	Name() models.Provider
	// SignatureHeader names the HTTP header carrying the notification
	// signature for this provider.
	SignatureHeader() string
	OpenTransaction(ctx context.Context, req OpenRequest) (Handle, error)
	ParseNotification(raw []byte, signature string) (Notification, error)
	QueryTransaction(ctx context.Context, providerRef string) (Notification, error)
}

type Registry map[models.Provider]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Name()] = a
	}
	return r
}

func (r Registry) Get(name models.Provider) (Adapter, bool) {
	a, ok := r[name]
	return a, ok
}
