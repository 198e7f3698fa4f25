// Package service provides the implementation of order-related business logic.
package service

import (
	"context"
	"log/slog"
	"time"

	ordererrors "github.com/avolkov/orderhub/internal/errors"
	"github.com/avolkov/orderhub/internal/order/store"
	"github.com/avolkov/orderhub/pkg/messaging"
	"github.com/avolkov/orderhub/pkg/messaging/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ordersMutated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "orderhub_orders_mutations_total",
	Help: "Committed order mutations by action.",
}, []string{"action"})

// OrderService defines the methods for managing orders.
// It abstracts the underlying business logic and data access.
type OrderService interface {
	// FindByID retrieves a single order by its unique identifier.
	// Returns ErrOrderNotFound if no order exists with the given ID.
	FindByID(ctx context.Context, id int64) (*OrderDto, error)

	// Create adds a new order, reserving stock for every line.
	Create(ctx context.Context, order OrderCreateDto) (*OrderDto, error)

	// Update applies a partial update under the optimistic version check.
	Update(ctx context.Context, id int64, version int32, order OrderUpdateDto) (*OrderDto, error)

	// Delete removes an order and restores its reserved stock.
	Delete(ctx context.Context, id int64, version int32) error
}

// Service implements OrderService and provides methods to manage orders.
type Service struct {
	orderStore store.OrderStore
	publisher  messaging.Publisher
	logger     *slog.Logger
}

// NewService creates a new instance of OrderService with the provided store and publisher.
func NewService(orderStore store.OrderStore, publisher messaging.Publisher, logger *slog.Logger) *Service {
	return &Service{
		orderStore: orderStore,
		publisher:  publisher,
		logger:     logger.With("component", "order_service"),
	}
}

// OrderDto represents the data transfer object for an order.
// Version is read-only and used for optimistic concurrency control.
type OrderDto struct {
	ID          int64          `json:"id"`
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Date        string         `json:"date"`
	Version     int32          `json:"version"`
	Items       []OrderItemDto `json:"items,omitempty"`
}

// OrderItemDto is the denormalized product snapshot carried by an order.
type OrderItemDto struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"productId"`
	ProductName  string  `json:"productName"`
	ProductPrice float64 `json:"productPrice"`
	Quantity     int32   `json:"quantity"`
}

// OrderCreateDto represents the data transfer object for creating a new order.
type OrderCreateDto struct {
	Name        *string              `json:"name" validate:"omitempty,min=3,max=100"`
	Description *string              `json:"description" validate:"omitempty,max=500"`
	Items       []OrderItemCreateDto `json:"items" validate:"required,gt=0,dive"`
}

// OrderItemCreateDto represents one requested order line.
type OrderItemCreateDto struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gt=0"`
}

// OrderUpdateDto represents the data transfer object for updating an existing
// order. Absent or null fields leave the stored value unchanged; a non-null
// items array replaces all current lines.
type OrderUpdateDto struct {
	Name        *string               `json:"name" validate:"omitempty,min=3,max=100"`
	Description *string               `json:"description" validate:"omitempty,max=500"`
	Items       *[]OrderItemCreateDto `json:"items" validate:"omitempty,gt=0,dive"`
}

// FindByID retrieves an order by its ID and returns it as an OrderDto.
// Returns ErrOrderNotFound if no order exists with the given ID.
func (s *Service) FindByID(ctx context.Context, id int64) (*OrderDto, error) {
	order, items, err := s.orderStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDto(order, items), nil
}

// Create creates a new order and returns it as an OrderDto. Stock is
// reserved inside the store transaction; the lifecycle event is published
// only after the commit succeeded.
func (s *Service) Create(ctx context.Context, order OrderCreateDto) (*OrderDto, error) {
	params := store.CreateOrderParams{
		Name:        order.Name,
		Description: order.Description,
		Items:       toNewItems(order.Items),
	}

	created, items, err := s.orderStore.CreateOrder(ctx, &params)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, created.ID, events.ActionCreated)
	ordersMutated.WithLabelValues(string(events.ActionCreated)).Inc()

	return toDto(created, items), nil
}

// Update modifies an existing order under the optimistic version check.
// A version mismatch is reported before any transaction touches state.
func (s *Service) Update(ctx context.Context, id int64, version int32, order OrderUpdateDto) (*OrderDto, error) {
	current, _, err := s.orderStore.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, ordererrors.ErrVersionConflict
	}

	params := store.UpdateOrderParams{
		ID:          id,
		Version:     version,
		Name:        order.Name,
		Description: order.Description,
	}
	if order.Items != nil {
		items := toNewItems(*order.Items)
		params.Items = &items
	}

	updated, err := s.orderStore.UpdateOrder(ctx, &params)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, updated.ID, events.ActionUpdated)
	ordersMutated.WithLabelValues(string(events.ActionUpdated)).Inc()

	return toDto(updated, nil), nil
}

// Delete removes an order, restoring stock for all its items.
func (s *Service) Delete(ctx context.Context, id int64, version int32) error {
	current, _, err := s.orderStore.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Version != version {
		return ordererrors.ErrVersionConflict
	}

	if err := s.orderStore.DeleteOrder(ctx, id, version); err != nil {
		return err
	}

	s.publish(ctx, id, events.ActionDeleted)
	ordersMutated.WithLabelValues(string(events.ActionDeleted)).Inc()

	return nil
}

// publish enqueues the lifecycle event. Publish failures never roll back the
// committed transaction; the projector catches up from the store of record.
func (s *Service) publish(ctx context.Context, orderID int64, action events.OrderAction) {
	event := events.OrderIndexEvent{OrderID: orderID, Action: action}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish order lifecycle event",
			"order_id", orderID, "action", string(action), "error", err)
	}
}

func toNewItems(items []OrderItemCreateDto) []store.NewItem {
	out := make([]store.NewItem, 0, len(items))
	for _, item := range items {
		out = append(out, store.NewItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

// toDto converts a store.Order to an OrderDto.
func toDto(order *store.Order, items []store.OrderItem) *OrderDto {
	if order == nil {
		return nil
	}

	var itemsDto []OrderItemDto
	if items != nil {
		itemsDto = make([]OrderItemDto, 0, len(items))
		for _, item := range items {
			itemsDto = append(itemsDto, OrderItemDto{
				ID:           item.ID,
				ProductID:    item.ProductID,
				ProductName:  item.ProductName,
				ProductPrice: item.ProductPrice,
				Quantity:     item.Quantity,
			})
		}
	}

	return &OrderDto{
		ID:          order.ID,
		Name:        order.Name,
		Description: order.Description,
		Date:        order.Date.Format(time.RFC3339),
		Version:     order.Version,
		Items:       itemsDto,
	}
}
