package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/astriondesign-guinea/quickshop/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	cart, err := json.Marshal(p.Cart)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO payments (
			payment_id, provider, provider_ref, amount, currency, status,
			customer_name, customer_phone, customer_email, customer_address,
			cart, provider_raw, order_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		p.PaymentID,
		p.Provider,
		p.ProviderRef,
		p.Amount,
		p.Currency,
		p.Status,
		p.Customer.Name,
		p.Customer.Phone,
		p.Customer.Email,
		p.Customer.Address,
		cart,
		p.ProviderRaw,
		p.OrderID,
	)
	return err
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT payment_id, provider, provider_ref, amount, currency, status,
			customer_name, customer_phone, customer_email, customer_address,
			cart, provider_raw, order_id, created_at, updated_at
		FROM payments WHERE payment_id=$1
	`, paymentID)
	return scanPayment(row)
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var cart []byte
	var orderID sql.NullString

	err := row.Scan(
		&p.PaymentID,
		&p.Provider,
		&p.ProviderRef,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.Customer.Name,
		&p.Customer.Phone,
		&p.Customer.Email,
		&p.Customer.Address,
		&cart,
		&p.ProviderRaw,
		&orderID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(cart) > 0 {
		if err := json.Unmarshal(cart, &p.Cart); err != nil {
			return nil, err
		}
	}
	if orderID.Valid {
		p.OrderID = &orderID.String
	}
	return &p, nil
}

// RecordProviderData overwrites the last-seen raw provider payload. It is
// an audit write and runs for every correlated notification, including
// deliveries for already finalized payments.
func (s *Store) RecordProviderData(ctx context.Context, paymentID string, raw []byte) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE payments SET provider_raw=$2, updated_at=now()
		WHERE payment_id=$1
	`, paymentID, raw)
	return err
}

// MarkPaid transitions pending→paid. The WHERE clause on status is the
// linearization point: exactly one of any number of concurrent callers
// observes true.
func (s *Store) MarkPaid(ctx context.Context, paymentID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payments SET status='paid', updated_at=now()
		WHERE payment_id=$1 AND status='pending'
	`, paymentID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) MarkFailed(ctx context.Context, paymentID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payments SET status='failed', updated_at=now()
		WHERE payment_id=$1 AND status='pending'
	`, paymentID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// InsertOrder inserts the materialized order. The unique constraint on
// source_payment_id makes a duplicate insert a silent no-op; the caller
// distinguishes the cases via the returned bool.
func (s *Store) InsertOrder(ctx context.Context, o *models.Order) (bool, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return false, err
	}
	res, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (order_id, source_payment_id, contact, items, total, currency, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (source_payment_id) DO NOTHING
	`,
		o.OrderID,
		o.SourcePaymentID,
		o.Contact,
		items,
		o.Total,
		o.Currency,
		o.Status,
	)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) GetOrderIDByPayment(ctx context.Context, paymentID string) (string, error) {
	var orderID string
	err := s.Pool.QueryRow(ctx,
		`SELECT order_id FROM orders WHERE source_payment_id=$1`, paymentID,
	).Scan(&orderID)
	return orderID, err
}

// SetOrderRef writes the back-reference once; the null guard keeps it
// immutable after the first write.
func (s *Store) SetOrderRef(ctx context.Context, paymentID, orderID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payments SET order_id=$2, updated_at=now()
		WHERE payment_id=$1 AND order_id IS NULL
	`, paymentID, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ListPendingPayments returns payments still pending and created before
// the cutoff, for the polling fallback.
func (s *Store) ListPendingPayments(ctx context.Context, olderThan time.Time) ([]*models.Payment, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT payment_id, provider, provider_ref, amount, currency, status,
			customer_name, customer_phone, customer_email, customer_address,
			cart, provider_raw, order_id, created_at, updated_at
		FROM payments
		WHERE status='pending' AND created_at < $1
		ORDER BY created_at
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
