package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrimart/fulfillment/internal/domain"
)

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, client_id, status, address, total_cents, total_items,
	order_date, paid, paid_at, external_payment_ref, receipt_ref, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ClientID, &o.Status, &o.Address, &o.TotalCents, &o.TotalItems,
		&o.OrderDate, &o.Paid, &o.PaidAt, &o.ExternalPaymentRef, &o.ReceiptRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: order", domain.ErrNotFound)
	}
	return o, err
}

// CreateOrder persists the order and its details in one transaction.
func (r *Repo) CreateOrder(ctx context.Context, o Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, client_id, status, address, total_cents, total_items, order_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.ClientID, o.Status, o.Address, o.TotalCents, o.TotalItems, o.OrderDate)
	if err != nil {
		return err
	}
	if err := insertDetails(ctx, tx, o.ID, o.Details); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertDetails(ctx context.Context, tx pgx.Tx, orderID string, details []Detail) error {
	for i, d := range details {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_details(id, order_id, line_no, product_offer_id, quantity, price_cents, subtotal_cents)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			d.ID, orderID, i, d.ProductOfferID, d.Quantity, d.PriceCents, d.SubtotalCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_offer_id, quantity, price_cents, subtotal_cents
		FROM order_details WHERE order_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d Detail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductOfferID, &d.Quantity, &d.PriceCents, &d.SubtotalCents); err != nil {
			return Order{}, err
		}
		o.Details = append(o.Details, d)
	}
	return o, rows.Err()
}

func (r *Repo) GetStatus(ctx context.Context, id string) (Status, error) {
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: order", domain.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return Status(s), nil
}

// SetStatus is a compare-and-set: the write happens only if the row still
// holds the status the caller saw. A false return means a concurrent
// transition won.
func (r *Repo) SetStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// MarkPaid transitions PENDING -> PAID and records the payment in the same
// conditional update, so a duplicate confirmation can never apply twice.
func (r *Repo) MarkPaid(ctx context.Context, id string, paidAt time.Time, paymentRef, receiptRef string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status=$2, paid=TRUE, paid_at=$3, external_payment_ref=$4, receipt_ref=$5, updated_at=now()
		WHERE id=$1 AND status=$6`,
		id, StatusPaid, paidAt, paymentRef, receiptRef, StatusPending)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ReplaceDetails swaps the full detail set and the recomputed totals while the
// order is still PENDING.
func (r *Repo) ReplaceDetails(ctx context.Context, id string, details []Detail, totalCents int64, totalItems int) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders SET total_cents=$2, total_items=$3, updated_at=now()
		WHERE id=$1 AND status=$4`, id, totalCents, totalItems, StatusPending)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: order no longer pending", domain.ErrConflict)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_details WHERE order_id=$1`, id); err != nil {
		return err
	}
	if err := insertDetails(ctx, tx, id, details); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
