// Package inventory is the authoritative ledger for per-product stock.
// All mutations run against the caller's querier, so when the caller passes
// its transaction the sufficiency check and the decrement are evaluated
// against the same fresh row and roll back together with the order writes.
package inventory

import (
	"context"
	"errors"
	"fmt"

	ordererrors "github.com/avolkov/orderhub/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Product is a read snapshot of the catalog row at the time of the call.
type Product struct {
	ID    int64
	Name  string
	Price float64
	Stock int32
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// FindProduct returns the product snapshot or ErrProductNotFound.
func FindProduct(ctx context.Context, q Querier, id int64) (*Product, error) {
	var p Product
	err := q.QueryRow(ctx,
		`SELECT id, name, price, stock FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, ordererrors.ErrProductNotFound)
		}
		return nil, fmt.Errorf("failed to find product %d: %w", id, err)
	}
	return &p, nil
}

// ReserveStock atomically decrements stock by quantity. The conditional
// update only matches when the current stock covers the request, so
// concurrent writers can never drive stock negative. Returns the product
// snapshot taken by the same statement.
func ReserveStock(ctx context.Context, q Querier, productID int64, quantity int32) (*Product, error) {
	var p Product
	err := q.QueryRow(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2
		 RETURNING id, name, price, stock`,
		productID, quantity,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to reserve stock for product %d: %w", productID, err)
	}

	// Zero rows: either the product does not exist or stock is short.
	existing, ferr := FindProduct(ctx, q, productID)
	if ferr != nil {
		return nil, ferr
	}
	return nil, fmt.Errorf("product %q (%d): available %d, requested %d: %w",
		existing.Name, productID, existing.Stock, quantity, ordererrors.ErrInsufficientStock)
}

// RestoreStock adds quantity back to the product. A product that has been
// removed from the catalog since the order was taken is tolerated, matching
// the release semantics of the order lifecycle.
func RestoreStock(ctx context.Context, q Querier, productID int64, quantity int32) error {
	_, err := q.Exec(ctx,
		`UPDATE products SET stock = stock + $2 WHERE id = $1`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("failed to restore stock for product %d: %w", productID, err)
	}
	return nil
}
