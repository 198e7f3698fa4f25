package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	ordererrors "github.com/avolkov/orderhub/internal/errors"
	"github.com/avolkov/orderhub/internal/inventory"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a new instance of OrderStore using a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

func (p *PgStore) FindByID(ctx context.Context, id int64) (*Order, []OrderItem, error) {
	var order *Order
	var items []OrderItem

	// Transaction so the order row and its items come from one snapshot.
	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		o, err := findOrderByID(ctx, tx, id)
		if err != nil {
			return err
		}
		i, err := findOrderItems(ctx, tx, id)
		if err != nil {
			return err
		}
		order = o
		items = i
		return nil
	})
	if txErr != nil {
		return nil, nil, txErr
	}
	return order, items, nil
}

func (p *PgStore) FindAll(ctx context.Context) ([]Order, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id, name, description, date, version FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Name, &o.Description, &o.Date, &o.Version); err != nil {
			return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
	}
	return orders, nil
}

func (p *PgStore) CreateOrder(ctx context.Context, params *CreateOrderParams) (*Order, []OrderItem, error) {
	var createdOrder *Order
	var createdItems []OrderItem

	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		var order Order
		err := tx.QueryRow(ctx,
			`INSERT INTO orders (name, description, date, version) VALUES ($1, $2, $3, 1)
			 RETURNING id, name, description, date, version`,
			params.Name, params.Description, time.Now().UTC(),
		).Scan(&order.ID, &order.Name, &order.Description, &order.Date, &order.Version)
		if err != nil {
			return fmt.Errorf("%w: %w", ordererrors.ErrCreateOrder, err)
		}

		items, err := attachItems(ctx, tx, order.ID, params.Items)
		if err != nil {
			return err
		}

		createdOrder = &order
		createdItems = items
		return nil
	})
	if txErr != nil {
		return nil, nil, txErr
	}
	return createdOrder, createdItems, nil
}

func (p *PgStore) UpdateOrder(ctx context.Context, params *UpdateOrderParams) (*Order, error) {
	var updated Order

	txErr := p.withTransaction(ctx, func(tx pgx.Tx) error {
		current, err := lockOrder(ctx, tx, params.ID)
		if err != nil {
			return err
		}
		if current.Version != params.Version {
			return ordererrors.ErrVersionConflict
		}

		if params.Items != nil {
			if err := releaseItems(ctx, tx, params.ID); err != nil {
				return err
			}
			if _, err := attachItems(ctx, tx, params.ID, *params.Items); err != nil {
				return err
			}
		}

		// COALESCE keeps the stored value when the patch field is absent.
		// The version predicate is the compare-and-set; the row lock above
		// makes a zero-row outcome impossible in practice, but it is still
		// classified as a conflict rather than trusted.
		err = tx.QueryRow(ctx,
			`UPDATE orders
			 SET name = COALESCE($2, name),
			     description = COALESCE($3, description),
			     date = $4,
			     version = version + 1
			 WHERE id = $1 AND version = $5
			 RETURNING id, name, description, date, version`,
			params.ID, params.Name, params.Description, time.Now().UTC(), params.Version,
		).Scan(&updated.ID, &updated.Name, &updated.Description, &updated.Date, &updated.Version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ordererrors.ErrVersionConflict
			}
			return fmt.Errorf("%w: %w", ordererrors.ErrUpdateOrder, err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}

func (p *PgStore) DeleteOrder(ctx context.Context, id int64, version int32) error {
	return p.withTransaction(ctx, func(tx pgx.Tx) error {
		current, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Version != version {
			return ordererrors.ErrVersionConflict
		}

		if err := releaseItems(ctx, tx, id); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM orders WHERE id = $1 AND version = $2`, id, version)
		if err != nil {
			return fmt.Errorf("%w: %w", ordererrors.ErrDeleteOrder, err)
		}
		if tag.RowsAffected() == 0 {
			return ordererrors.ErrVersionConflict
		}
		return nil
	})
}

// attachItems reserves stock line by line and inserts the item snapshots.
// Any failed line aborts the caller's transaction as a whole.
func attachItems(ctx context.Context, tx pgx.Tx, orderID int64, items []NewItem) ([]OrderItem, error) {
	created := make([]OrderItem, 0, len(items))
	for _, line := range items {
		product, err := inventory.ReserveStock(ctx, tx, line.ProductID, line.Quantity)
		if err != nil {
			return nil, err
		}

		item := OrderItem{
			OrderID:      orderID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductPrice: product.Price,
			Quantity:     line.Quantity,
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, product_price, quantity)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			item.OrderID, item.ProductID, item.ProductName, item.ProductPrice, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ordererrors.ErrCreateOrderItem, err)
		}
		created = append(created, item)
	}
	return created, nil
}

// releaseItems restores stock for every attached item and removes them.
func releaseItems(ctx context.Context, tx pgx.Tx, orderID int64) error {
	items, err := findOrderItems(ctx, tx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := inventory.RestoreStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("%w: %w", ordererrors.ErrUpdateOrder, err)
	}
	return nil
}

func findOrderByID(ctx context.Context, q querier, id int64) (*Order, error) {
	return scanOrder(q.QueryRow(ctx,
		`SELECT id, name, description, date, version FROM orders WHERE id = $1`, id))
}

// lockOrder reads the order row FOR UPDATE, serializing concurrent mutations
// of the same order for the duration of the transaction.
func lockOrder(ctx context.Context, tx pgx.Tx, id int64) (*Order, error) {
	return scanOrder(tx.QueryRow(ctx,
		`SELECT id, name, description, date, version FROM orders WHERE id = $1 FOR UPDATE`, id))
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Name, &o.Description, &o.Date, &o.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ordererrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrder, err)
	}
	return &o, nil
}

func findOrderItems(ctx context.Context, q querier, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, product_name, product_price, quantity
		 FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrderItems, err)
	}
	defer rows.Close()

	items := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID,
			&item.ProductName, &item.ProductPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrderItems, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ordererrors.ErrFailedToFindOrderItems, err)
	}
	return items, nil
}

// withTransaction runs fn inside a transaction and guarantees rollback on
// every non-success exit path.
func (p *PgStore) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return ordererrors.ErrTransactionBegin
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return ordererrors.ErrTransactionRollback
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return ordererrors.ErrTransactionCommit
	}
	return nil
}
