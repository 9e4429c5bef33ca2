package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/events"
	"github.com/astriondesign-guinea/quickshop/internal/models"
	"github.com/astriondesign-guinea/quickshop/internal/pricing"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
	"github.com/astriondesign-guinea/quickshop/internal/provider/momo"
	"github.com/astriondesign-guinea/quickshop/internal/reconcile"
	"github.com/astriondesign-guinea/quickshop/internal/services"
)

const webhookSecret = "hook-secret"

type memLedger struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	orders   map[string]*models.Order
}

func newMemLedger() *memLedger {
	return &memLedger{
		payments: make(map[string]*models.Payment),
		orders:   make(map[string]*models.Order),
	}
}

func (l *memLedger) CreatePayment(_ context.Context, p *models.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *p
	l.payments[p.PaymentID] = &cp
	return nil
}

func (l *memLedger) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (l *memLedger) RecordProviderData(_ context.Context, id string, raw []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.payments[id]; ok {
		p.ProviderRaw = raw
	}
	return nil
}

func (l *memLedger) MarkPaid(_ context.Context, id string) (bool, error) {
	return l.transition(id, models.PaymentPaid)
}

func (l *memLedger) MarkFailed(_ context.Context, id string) (bool, error) {
	return l.transition(id, models.PaymentFailed)
}

func (l *memLedger) transition(id string, to models.PaymentStatus) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (l *memLedger) InsertOrder(_ context.Context, o *models.Order) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.orders[o.SourcePaymentID]; exists {
		return false, nil
	}
	cp := *o
	l.orders[o.SourcePaymentID] = &cp
	return true, nil
}

func (l *memLedger) GetOrderIDByPayment(_ context.Context, id string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return o.OrderID, nil
}

func (l *memLedger) SetOrderRef(_ context.Context, paymentID, orderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.payments[paymentID]
	if !ok || p.OrderID != nil {
		return false, nil
	}
	p.OrderID = &orderID
	return true, nil
}

func (l *memLedger) orderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}

type stubAdapter struct{ name models.Provider }

func (a *stubAdapter) Name() models.Provider   { return a.name }
func (a *stubAdapter) SignatureHeader() string { return "X-Signature" }

func (a *stubAdapter) OpenTransaction(_ context.Context, req provider.OpenRequest) (provider.Handle, error) {
	return provider.Handle{ProviderRef: "ext-" + req.PaymentID, ClientToken: "tok-" + req.PaymentID}, nil
}

func (a *stubAdapter) ParseNotification([]byte, string) (provider.Notification, error) {
	return provider.Notification{}, provider.ErrBadPayload
}

func (a *stubAdapter) QueryTransaction(context.Context, string) (provider.Notification, error) {
	return provider.Notification{}, provider.ErrBadPayload
}

func newTestServer(t *testing.T) (*Server, *memLedger) {
	t.Helper()
	ledger := newMemLedger()
	registry := provider.NewRegistry(
		&stubAdapter{name: models.ProviderCard},
		momo.NewOrangeMoney("https://om.example", webhookSecret, zap.NewNop()),
	)
	engine := reconcile.NewEngine(ledger, registry, events.Nop{}, zap.NewNop())
	checkout := &services.CheckoutService{
		Ledger:    ledger,
		Providers: registry,
		Pricing: pricing.Service{
			BaseCurrency:      "usd",
			AlternateCurrency: "gnf",
			ExchangeRate:      15,
		},
		L: zap.NewNop(),
	}
	return NewServer(NewHandler(checkout, engine, registry)), ledger
}

func doJSON(t *testing.T, srv *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutEndpoint(t *testing.T) {
	srv, ledger := newTestServer(t)

	body := []byte(`{"cart":[{"id":"sku-1","title":"Widget","price":50,"quantity":1},{"id":"sku-2","title":"Gadget","price":10,"quantity":2}],"email":"ama@example.test","currency":"usd"}`)
	rec := doJSON(t, srv, http.MethodPost, "/checkout", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.PaymentID)
	assert.Equal(t, "tok-"+resp.PaymentID, resp.ClientToken)

	p, err := ledger.GetPayment(context.Background(), resp.PaymentID)
	require.NoError(t, err)
	assert.EqualValues(t, 7000, p.Amount)
}

func TestCheckoutEndpointEmptyCart(t *testing.T) {
	srv, ledger := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/checkout", []byte(`{"cart":[]}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ledger.payments)
}

func TestCheckoutEndpointInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/checkout", []byte(`{`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentStatusEndpoint(t *testing.T) {
	srv, ledger := newTestServer(t)
	require.NoError(t, ledger.CreatePayment(context.Background(), &models.Payment{
		PaymentID: "pay-1",
		Provider:  models.ProviderOrangeMoney,
		Amount:    7000,
		Currency:  "usd",
		Status:    models.PaymentPending,
	}))

	rec := doJSON(t, srv, http.MethodGet, "/payment-status/pay-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp paymentStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "pay-1", resp.Payment.PaymentID)
}

func TestPaymentStatusEndpointNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/payment-status/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookEndpoint(t *testing.T) {
	srv, ledger := newTestServer(t)
	require.NoError(t, ledger.CreatePayment(context.Background(), &models.Payment{
		PaymentID: "pay-1",
		Provider:  models.ProviderOrangeMoney,
		Amount:    7000,
		Currency:  "usd",
		Status:    models.PaymentPending,
	}))

	body := []byte(`{"status":"SUCCESS","order_id":"pay-1","txnid":"OM-1"}`)
	headers := map[string]string{momo.SignatureHeader: momo.Sign(webhookSecret, body)}

	// First delivery confirms and materializes.
	rec := doJSON(t, srv, http.MethodPost, "/webhook/orange_money", body, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p, err := ledger.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, p.Status)
	require.NotNil(t, p.OrderID)
	assert.Equal(t, 1, ledger.orderCount())

	// Replay is still a 200 and creates nothing.
	rec = doJSON(t, srv, http.MethodPost, "/webhook/orange_money", body, headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ledger.orderCount())
}

func TestWebhookEndpointBadSignature(t *testing.T) {
	srv, ledger := newTestServer(t)
	require.NoError(t, ledger.CreatePayment(context.Background(), &models.Payment{
		PaymentID: "pay-1",
		Provider:  models.ProviderOrangeMoney,
		Status:    models.PaymentPending,
	}))

	body := []byte(`{"status":"SUCCESS","order_id":"pay-1"}`)
	rec := doJSON(t, srv, http.MethodPost, "/webhook/orange_money", body,
		map[string]string{momo.SignatureHeader: "deadbeef"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p, err := ledger.GetPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, p.Status, "rejected notification must not transition state")
}

func TestWebhookEndpointUnknownReference(t *testing.T) {
	srv, _ := newTestServer(t)

	body := []byte(`{"status":"SUCCESS","order_id":"ghost"}`)
	rec := doJSON(t, srv, http.MethodPost, "/webhook/orange_money", body,
		map[string]string{momo.SignatureHeader: momo.Sign(webhookSecret, body)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookEndpointUnknownProvider(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/webhook/bogus", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
