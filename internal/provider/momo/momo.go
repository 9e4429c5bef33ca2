// Package momo adapts the mobile-money gateways (Orange Money, MTN MoMo)
// to the provider contract. Both speak signed JSON over REST; only the
// notification field names differ, so the variants share one adapter
// parameterized by a decoder.
package momo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/astriondesign-guinea/quickshop/internal/models"
	"github.com/astriondesign-guinea/quickshop/internal/provider"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

type Adapter struct {
	name    models.Provider
	baseURL string
	secret  string
	http    *http.Client
	decode  func(raw []byte) (provider.Notification, error)
	l       *zap.Logger
}

func NewOrangeMoney(baseURL, secret string, l *zap.Logger) *Adapter {
	return &Adapter{
		name:    models.ProviderOrangeMoney,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{},
		decode:  decodeOrangeMoney,
		l:       l.Named("orange_money_provider"),
	}
}

func NewMTNMoMo(baseURL, secret string, l *zap.Logger) *Adapter {
	return &Adapter{
		name:    models.ProviderMTNMoMo,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{},
		decode:  decodeMTNMoMo,
		l:       l.Named("mtn_momo_provider"),
	}
}

func (a *Adapter) Name() models.Provider { return a.name }

func (a *Adapter) SignatureHeader() string { return SignatureHeader }

type openRequestBody struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
	Payer     string `json:"payer,omitempty"`
}

type openResponseBody struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
}

func (a *Adapter) OpenTransaction(ctx context.Context, req provider.OpenRequest) (provider.Handle, error) {
	body, err := json.Marshal(openRequestBody{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.PaymentID,
		Payer:     req.Customer.Phone,
	})
	if err != nil {
		return provider.Handle{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/collections", bytes.NewReader(body))
	if err != nil {
		return provider.Handle{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(SignatureHeader, Sign(a.secret, body))

	resp, err := a.http.Do(httpReq)
	if err != nil {
		a.l.Warn("failed to open collection",
			zap.String("payment_id", req.PaymentID),
			zap.Error(err),
		)
		return provider.Handle{}, errors.Wrap(err, "open collection")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		a.l.Warn("collection rejected",
			zap.String("payment_id", req.PaymentID),
			zap.Int("status_code", resp.StatusCode),
		)
		return provider.Handle{}, errors.Errorf("open collection: unexpected status %d", resp.StatusCode)
	}

	var out openResponseBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return provider.Handle{}, errors.Wrap(err, "decode collection response")
	}
	return provider.Handle{
		ProviderRef: out.TransactionID,
		ClientToken: out.PaymentURL,
	}, nil
}

func (a *Adapter) ParseNotification(raw []byte, signature string) (provider.Notification, error) {
	if !Verify(a.secret, raw, signature) {
		a.l.Warn("notification signature mismatch")
		return provider.Notification{}, provider.ErrBadSignature
	}
	return a.decode(raw)
}

func (a *Adapter) QueryTransaction(ctx context.Context, providerRef string) (provider.Notification, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/collections/"+providerRef, nil)
	if err != nil {
		return provider.Notification{}, err
	}
	httpReq.Header.Set(SignatureHeader, Sign(a.secret, []byte(providerRef)))

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return provider.Notification{}, errors.Wrap(err, "query collection")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.Notification{}, errors.Errorf("query collection: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return provider.Notification{}, err
	}
	return a.decode(raw)
}

// Sign computes the hex HMAC-SHA256 signature of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex HMAC-SHA256 signature in constant time.
func Verify(secret string, body []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

type orangeMoneyNotification struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	TxnID   string `json:"txnid"`
}

func decodeOrangeMoney(raw []byte) (provider.Notification, error) {
	var n orangeMoneyNotification
	if err := json.Unmarshal(raw, &n); err != nil || n.OrderID == "" {
		return provider.Notification{}, provider.ErrBadPayload
	}
	var status provider.Status
	switch n.Status {
	case "SUCCESS":
		status = provider.StatusPaid
	case "FAILED", "EXPIRED":
		status = provider.StatusFailed
	case "PENDING", "INITIATED":
		status = provider.StatusPending
	default:
		status = provider.StatusOther
	}
	return provider.Notification{
		Reference:   n.OrderID,
		ProviderRef: n.TxnID,
		Status:      status,
	}, nil
}

type mtnMoMoNotification struct {
	Status                 string `json:"status"`
	ExternalID             string `json:"externalId"`
	FinancialTransactionID string `json:"financialTransactionId"`
}

func decodeMTNMoMo(raw []byte) (provider.Notification, error) {
	var n mtnMoMoNotification
	if err := json.Unmarshal(raw, &n); err != nil || n.ExternalID == "" {
		return provider.Notification{}, provider.ErrBadPayload
	}
	var status provider.Status
	switch n.Status {
	case "SUCCESSFUL":
		status = provider.StatusPaid
	case "FAILED", "REJECTED", "TIMEOUT":
		status = provider.StatusFailed
	case "PENDING":
		status = provider.StatusPending
	default:
		status = provider.StatusOther
	}
	return provider.Notification{
		Reference:   n.ExternalID,
		ProviderRef: n.FinancialTransactionID,
		Status:      status,
	}, nil
}
