package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/astriondesign-guinea/quickshop/internal/models"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
	"github.com/astriondesign-guinea/quickshop/internal/reconcile"
	"github.com/astriondesign-guinea/quickshop/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// maxWebhookBody caps inbound notification bodies.
const maxWebhookBody = int64(65536)

type Handler struct {
	Checkout  *services.CheckoutService
	Engine    *reconcile.Engine
	Providers provider.Registry
}

func NewHandler(checkout *services.CheckoutService, engine *reconcile.Engine, providers provider.Registry) *Handler {
	return &Handler{Checkout: checkout, Engine: engine, Providers: providers}
}

type checkoutRequest struct {
	Cart     []models.CartItem `json:"cart"`
	Name     string            `json:"name,omitempty"`
	Phone    string            `json:"phone,omitempty"`
	Email    string            `json:"email,omitempty"`
	Address  string            `json:"address,omitempty"`
	Currency string            `json:"currency,omitempty"`
	Provider string            `json:"provider,omitempty"`
}

type checkoutResponse struct {
	PaymentID   string `json:"payment_id"`
	ClientToken string `json:"client_token"`
}

type paymentView struct {
	PaymentID string            `json:"payment_id"`
	Provider  string            `json:"provider"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Status    string            `json:"status"`
	Cart      []models.CartItem `json:"cart"`
	OrderID   string            `json:"order_id,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type paymentStatusResponse struct {
	Status  string      `json:"status"`
	Payment paymentView `json:"payment"`
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	prov := models.Provider(req.Provider)
	if req.Provider == "" {
		prov = models.ProviderCard
	}

	res, err := h.Checkout.CreateCheckout(r.Context(), services.CheckoutInput{
		Cart: req.Cart,
		Customer: models.Customer{
			Name:    req.Name,
			Phone:   req.Phone,
			Email:   req.Email,
			Address: req.Address,
		},
		Provider: prov,
		Currency: req.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyCart):
			writeError(w, http.StatusBadRequest, "cart is empty")
		case errors.Is(err, services.ErrInvalidItem):
			writeError(w, http.StatusBadRequest, "cart item has invalid price or quantity")
		case errors.Is(err, services.ErrUnsupportedCurrency):
			writeError(w, http.StatusBadRequest, "unsupported currency")
		case errors.Is(err, services.ErrUnsupportedProvider):
			writeError(w, http.StatusBadRequest, "unsupported provider")
		default:
			writeError(w, http.StatusInternalServerError, "checkout failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		PaymentID:   res.PaymentID,
		ClientToken: res.ClientToken,
	})
}

func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	if paymentID == "" {
		writeError(w, http.StatusBadRequest, "missing payment id")
		return
	}

	p, err := h.Checkout.GetPayment(r.Context(), paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get payment failed")
		return
	}

	view := paymentView{
		PaymentID: p.PaymentID,
		Provider:  string(p.Provider),
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		Cart:      p.Cart,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.OrderID != nil {
		view.OrderID = *p.OrderID
	}

	writeJSON(w, http.StatusOK, paymentStatusResponse{
		Status:  string(p.Status),
		Payment: view,
	})
}

func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	name := models.Provider(chi.URLParam(r, "provider"))
	ad, ok := h.Providers.Get(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown provider")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	outcome, err := h.Engine.HandleWebhook(r.Context(), name, raw, r.Header.Get(ad.SignatureHeader()))
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrBadSignature):
			writeError(w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, provider.ErrBadPayload):
			writeError(w, http.StatusBadRequest, "unparseable body")
		case errors.Is(err, reconcile.ErrUnknownReference):
			writeError(w, http.StatusBadRequest, "unknown payment reference")
		case errors.Is(err, reconcile.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "unknown provider")
		default:
			writeError(w, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": string(outcome)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
