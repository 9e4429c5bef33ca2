package pricing

import (
	"math"

	"github.com/astriondesign-guinea/quickshop/internal/models"
)

// Service converts cart totals into the smallest-unit charge amount.
// Cart prices are always denominated in the base currency, in major
// units; when the requested currency is the configured alternate one the
// total is converted at the fixed exchange rate before scaling.
type Service struct {
	BaseCurrency      string
	AlternateCurrency string
	ExchangeRate      float64
}

func (s Service) Supported(currency string) bool {
	return currency == s.BaseCurrency ||
		(s.AlternateCurrency != "" && currency == s.AlternateCurrency)
}

func (s Service) TotalMinorUnits(items []models.CartItem, currency string) int64 {
	var major float64
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		major += it.Price * float64(qty)
	}
	if s.AlternateCurrency != "" && currency == s.AlternateCurrency {
		major *= s.ExchangeRate
	}
	return int64(math.Round(major * 100))
}
