package models

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
	// PaymentUnknown closes the status domain for rows whose lifecycle is
	// indeterminate; the reconciliation engine never transitions into it.
	PaymentUnknown PaymentStatus = "unknown"
)

func (s PaymentStatus) Finalized() bool {
	return s == PaymentPaid || s == PaymentFailed
}

type Provider string

const (
	ProviderCard        Provider = "card"
	ProviderOrangeMoney Provider = "orange_money"
	ProviderMTNMoMo     Provider = "mtn_momo"
)

// CartItem is one line of the immutable cart snapshot. Price is in major
// units of the base currency.
type CartItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

type Customer struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// Contact returns the value recorded on a materialized order.
func (c Customer) Contact() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Phone
}

type Payment struct {
	PaymentID   string
	Provider    Provider
	ProviderRef string
	Amount      int64
	Currency    string
	Status      PaymentStatus
	Customer    Customer
	Cart        []CartItem
	ProviderRaw []byte
	OrderID     *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OrderFulfilmentPending is the initial fulfilment status of every order.
// Fulfilment transitions happen outside this service.
const OrderFulfilmentPending = "pending"

type Order struct {
	OrderID         string
	SourcePaymentID string
	Contact         string
	Items           []CartItem
	Total           int64
	Currency        string
	Status          string
	CreatedAt       time.Time
}
