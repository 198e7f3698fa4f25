// Package store provides the transactional order storage layer.
package store

import (
	"context"
	"time"
)

// Order is the persisted order row. Version is the optimistic concurrency
// token; it starts at 1 and grows by exactly 1 per committed mutation.
type Order struct {
	ID          int64
	Name        *string
	Description *string
	Date        time.Time
	Version     int32
}

// OrderItem snapshots the product at order time. Name and price are
// denormalized on purpose so historical orders never change retroactively.
type OrderItem struct {
	ID           int64
	OrderID      int64
	ProductID    int64
	ProductName  string
	ProductPrice float64
	Quantity     int32
}

// NewItem is one requested order line.
type NewItem struct {
	ProductID int64
	Quantity  int32
}

type CreateOrderParams struct {
	Name        *string
	Description *string
	Items       []NewItem
}

// UpdateOrderParams carries partial-update semantics: nil Name/Description
// leave the column unchanged; nil Items keeps the current lines, a non-nil
// slice replaces them all.
type UpdateOrderParams struct {
	ID          int64
	Version     int32
	Name        *string
	Description *string
	Items       *[]NewItem
}

// OrderStore is the interface for order storage operations. Each mutating
// method runs as a single transaction covering order rows, item rows and
// product stock; any failure rolls back all of them.
type OrderStore interface {
	// FindByID retrieves a single order with its items.
	// Returns ErrOrderNotFound if no order exists with the given ID.
	FindByID(ctx context.Context, id int64) (*Order, []OrderItem, error)

	// FindAll returns every order, oldest first. Used by the batch reindexer.
	FindAll(ctx context.Context) ([]Order, error)

	// CreateOrder reserves stock for every line and persists the order with
	// its item snapshots. Returns ErrProductNotFound or ErrInsufficientStock
	// without any committed side effects when a line cannot be satisfied.
	CreateOrder(ctx context.Context, params *CreateOrderParams) (*Order, []OrderItem, error)

	// UpdateOrder applies the patch under the version compare-and-set.
	// Returns ErrOrderNotFound or ErrVersionConflict with zero side effects.
	UpdateOrder(ctx context.Context, params *UpdateOrderParams) (*Order, error)

	// DeleteOrder restores stock for every item and removes the order under
	// the version compare-and-set.
	DeleteOrder(ctx context.Context, id int64, version int32) error
}
