package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/agrimart/fulfillment/internal/domain"
)

type Repo struct{ DB *pgxpool.Pool }

const invColumns = `id, producer_id, product_offer_id, available_quantity, unit,
	minimum_threshold, maximum_capacity, created_at, updated_at`

func scanInventory(row pgx.Row) (Inventory, error) {
	var inv Inventory
	err := row.Scan(&inv.ID, &inv.ProducerID, &inv.ProductOfferID, &inv.AvailableQuantity,
		&inv.Unit, &inv.MinimumThreshold, &inv.MaximumCapacity, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inventory{}, fmt.Errorf("%w: inventory", domain.ErrNotFound)
	}
	return inv, err
}

func (r *Repo) Create(ctx context.Context, inv Inventory) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO inventories(id, producer_id, product_offer_id, available_quantity, unit, minimum_threshold, maximum_capacity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.ProducerID, inv.ProductOfferID, inv.AvailableQuantity, inv.Unit, inv.MinimumThreshold, inv.MaximumCapacity)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: inventory already registered for offer %s", domain.ErrConflict, inv.ProductOfferID)
	}
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (Inventory, error) {
	return scanInventory(r.DB.QueryRow(ctx, `SELECT `+invColumns+` FROM inventories WHERE id=$1`, id))
}

func (r *Repo) GetByOffer(ctx context.Context, productOfferID string) (Inventory, error) {
	return scanInventory(r.DB.QueryRow(ctx,
		`SELECT `+invColumns+` FROM inventories WHERE product_offer_id=$1`, productOfferID))
}

// Update locks the row, applies the caller's merge and writes the result.
// apply sees the current state and returns the validated final state.
func (r *Repo) Update(ctx context.Context, id string, apply func(Inventory) (Inventory, error)) (Inventory, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Inventory{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanInventory(tx.QueryRow(ctx,
		`SELECT `+invColumns+` FROM inventories WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Inventory{}, err
	}
	next, err := apply(cur)
	if err != nil {
		return Inventory{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE inventories
		SET available_quantity=$2, minimum_threshold=$3, maximum_capacity=$4, updated_at=now()
		WHERE id=$1`,
		id, next.AvailableQuantity, next.MinimumThreshold, next.MaximumCapacity)
	if err != nil {
		return Inventory{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Inventory{}, err
	}
	return next, nil
}

// Decrement takes qty from the offer's stock in one guarded statement. The
// ok result is false when stock was insufficient; nothing changed in that case.
func (r *Repo) Decrement(ctx context.Context, productOfferID string, qty decimal.Decimal) (Inventory, bool, error) {
	inv, err := scanInventory(r.DB.QueryRow(ctx, `
		UPDATE inventories
		SET available_quantity = available_quantity - $2, updated_at = now()
		WHERE product_offer_id = $1 AND available_quantity >= $2
		RETURNING `+invColumns, productOfferID, qty))
	if errors.Is(err, domain.ErrNotFound) {
		// Row missing or guard failed; separate the two.
		cur, gerr := r.GetByOffer(ctx, productOfferID)
		if gerr != nil {
			return Inventory{}, false, gerr
		}
		return cur, false, nil
	}
	if err != nil {
		return Inventory{}, false, err
	}
	return inv, true, nil
}

// Increment returns qty to the offer's stock, clamped to maximum_capacity so
// the row invariants survive a restock racing a producer-side capacity change.
func (r *Repo) Increment(ctx context.Context, productOfferID string, qty decimal.Decimal) (Inventory, error) {
	return scanInventory(r.DB.QueryRow(ctx, `
		UPDATE inventories
		SET available_quantity = LEAST(maximum_capacity, available_quantity + $2), updated_at = now()
		WHERE product_offer_id = $1
		RETURNING `+invColumns, productOfferID, qty))
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM inventories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: inventory", domain.ErrNotFound)
	}
	return nil
}
