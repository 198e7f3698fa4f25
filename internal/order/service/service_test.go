package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	ordererrors "github.com/avolkov/orderhub/internal/errors"
	"github.com/avolkov/orderhub/internal/order/store"
	"github.com/avolkov/orderhub/pkg/messaging"
	"github.com/avolkov/orderhub/pkg/messaging/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOrderStore is a mock implementation of the OrderStore interface
type mockOrderStore struct {
	order       *store.Order
	items       []store.OrderItem
	error       error
	updateOrder *store.Order
	updateError error
	deleteError error
}

func (m *mockOrderStore) FindByID(_ context.Context, _ int64) (*store.Order, []store.OrderItem, error) {
	if m.error != nil {
		return nil, nil, m.error
	}
	return m.order, m.items, nil
}

func (m *mockOrderStore) FindAll(_ context.Context) ([]store.Order, error) {
	if m.error != nil {
		return nil, m.error
	}
	if m.order == nil {
		return nil, nil
	}
	return []store.Order{*m.order}, nil
}

func (m *mockOrderStore) CreateOrder(_ context.Context, _ *store.CreateOrderParams) (*store.Order, []store.OrderItem, error) {
	if m.error != nil {
		return nil, nil, m.error
	}
	return m.order, m.items, nil
}

func (m *mockOrderStore) UpdateOrder(_ context.Context, _ *store.UpdateOrderParams) (*store.Order, error) {
	if m.updateError != nil {
		return nil, m.updateError
	}
	return m.updateOrder, nil
}

func (m *mockOrderStore) DeleteOrder(_ context.Context, _ int64, _ int32) error {
	return m.deleteError
}

// mockPublisher records every published event so tests can assert on the
// lifecycle notifications without a broker.
type mockPublisher struct {
	published []messaging.Event
	error     error
}

func (m *mockPublisher) Publish(_ context.Context, event messaging.Event) error {
	if m.error != nil {
		return m.error
	}
	m.published = append(m.published, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string {
	return &s
}

func Test_OrderService_FindByID(t *testing.T) {
	date := time.Now().UTC()
	testCases := []struct {
		name        string
		mockStore   *mockOrderStore
		orderID     int64
		expected    *OrderDto
		expectError error
	}{
		{
			name: "Success - order found",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 42, Name: strPtr("Laptops"), Description: strPtr("office batch"), Date: date, Version: 3},
				items: []store.OrderItem{{ID: 7, OrderID: 42, ProductID: 11, ProductName: "Laptop", ProductPrice: 999.90, Quantity: 2}},
			},
			orderID: 42,
			expected: &OrderDto{
				ID: 42, Name: strPtr("Laptops"), Description: strPtr("office batch"),
				Date: date.Format(time.RFC3339), Version: 3,
				Items: []OrderItemDto{{ID: 7, ProductID: 11, ProductName: "Laptop", ProductPrice: 999.90, Quantity: 2}},
			},
		},
		{
			name:        "Error - order not found",
			mockStore:   &mockOrderStore{error: ordererrors.ErrOrderNotFound},
			orderID:     42,
			expectError: ordererrors.ErrOrderNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			service := NewService(tc.mockStore, &mockPublisher{}, testLogger())
			// when
			found, err := service.FindByID(context.Background(), tc.orderID)
			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, found)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, found)
		})
	}
}

func Test_OrderService_Create(t *testing.T) {
	date := time.Now().UTC()
	testCases := []struct {
		name           string
		mockStore      *mockOrderStore
		publisher      *mockPublisher
		order          OrderCreateDto
		expected       *OrderDto
		expectedEvents []messaging.Event
		expectError    error
	}{
		{
			name: "Success - order created and event published",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 1, Name: strPtr("First"), Date: date, Version: 1},
				items: []store.OrderItem{{ID: 5, OrderID: 1, ProductID: 9, ProductName: "Mouse", ProductPrice: 25, Quantity: 3}},
			},
			publisher: &mockPublisher{},
			order:     OrderCreateDto{Name: strPtr("First"), Items: []OrderItemCreateDto{{ProductID: 9, Quantity: 3}}},
			expected: &OrderDto{
				ID: 1, Name: strPtr("First"), Date: date.Format(time.RFC3339), Version: 1,
				Items: []OrderItemDto{{ID: 5, ProductID: 9, ProductName: "Mouse", ProductPrice: 25, Quantity: 3}},
			},
			expectedEvents: []messaging.Event{events.OrderIndexEvent{OrderID: 1, Action: events.ActionCreated}},
		},
		{
			name:        "Error - insufficient stock",
			mockStore:   &mockOrderStore{error: ordererrors.ErrInsufficientStock},
			publisher:   &mockPublisher{},
			order:       OrderCreateDto{Items: []OrderItemCreateDto{{ProductID: 9, Quantity: 300}}},
			expectError: ordererrors.ErrInsufficientStock,
		},
		{
			name: "Success - publish failure does not fail the call",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 2, Date: date, Version: 1},
				items: []store.OrderItem{},
			},
			publisher: &mockPublisher{error: context.DeadlineExceeded},
			order:     OrderCreateDto{Items: []OrderItemCreateDto{{ProductID: 9, Quantity: 1}}},
			expected: &OrderDto{
				ID: 2, Date: date.Format(time.RFC3339), Version: 1,
				Items: []OrderItemDto{},
			},
			expectedEvents: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			service := NewService(tc.mockStore, tc.publisher, testLogger())
			// when
			created, err := service.Create(context.Background(), tc.order)
			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, created)
				assert.Empty(t, tc.publisher.published)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, created)
			assert.Equal(t, tc.expectedEvents, tc.publisher.published)
		})
	}
}

func Test_OrderService_Update(t *testing.T) {
	date := time.Now().UTC()
	testCases := []struct {
		name           string
		mockStore      *mockOrderStore
		version        int32
		order          OrderUpdateDto
		expected       *OrderDto
		expectedEvents []messaging.Event
		expectError    error
	}{
		{
			name: "Success - order updated",
			mockStore: &mockOrderStore{
				order:       &store.Order{ID: 1, Name: strPtr("Before"), Date: date, Version: 1},
				updateOrder: &store.Order{ID: 1, Name: strPtr("After"), Date: date, Version: 2},
			},
			version:        1,
			order:          OrderUpdateDto{Name: strPtr("After")},
			expected:       &OrderDto{ID: 1, Name: strPtr("After"), Date: date.Format(time.RFC3339), Version: 2},
			expectedEvents: []messaging.Event{events.OrderIndexEvent{OrderID: 1, Action: events.ActionUpdated}},
		},
		{
			name:        "Error - order not found",
			mockStore:   &mockOrderStore{error: ordererrors.ErrOrderNotFound},
			version:     1,
			order:       OrderUpdateDto{Name: strPtr("After")},
			expectError: ordererrors.ErrOrderNotFound,
		},
		{
			name: "Error - version conflict detected before the transaction",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 1, Date: date, Version: 4},
			},
			version:     1,
			order:       OrderUpdateDto{Name: strPtr("After")},
			expectError: ordererrors.ErrVersionConflict,
		},
		{
			name: "Error - conflict inside the transaction",
			mockStore: &mockOrderStore{
				order:       &store.Order{ID: 1, Date: date, Version: 1},
				updateError: ordererrors.ErrVersionConflict,
			},
			version:     1,
			order:       OrderUpdateDto{Name: strPtr("After")},
			expectError: ordererrors.ErrVersionConflict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			publisher := &mockPublisher{}
			service := NewService(tc.mockStore, publisher, testLogger())
			// when
			updated, err := service.Update(context.Background(), 1, tc.version, tc.order)
			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Nil(t, updated)
				assert.Empty(t, publisher.published)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, updated)
			assert.Equal(t, tc.expectedEvents, publisher.published)
		})
	}
}

func Test_OrderService_Delete(t *testing.T) {
	date := time.Now().UTC()
	testCases := []struct {
		name           string
		mockStore      *mockOrderStore
		version        int32
		expectedEvents []messaging.Event
		expectError    error
	}{
		{
			name: "Success - order deleted",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 1, Date: date, Version: 2},
			},
			version:        2,
			expectedEvents: []messaging.Event{events.OrderIndexEvent{OrderID: 1, Action: events.ActionDeleted}},
		},
		{
			name:        "Error - order not found",
			mockStore:   &mockOrderStore{error: ordererrors.ErrOrderNotFound},
			version:     1,
			expectError: ordererrors.ErrOrderNotFound,
		},
		{
			name: "Error - version conflict",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 1, Date: date, Version: 5},
			},
			version:     1,
			expectError: ordererrors.ErrVersionConflict,
		},
		{
			name: "Error - store delete failure",
			mockStore: &mockOrderStore{
				order:       &store.Order{ID: 1, Date: date, Version: 1},
				deleteError: ordererrors.ErrDeleteOrder,
			},
			version:     1,
			expectError: ordererrors.ErrDeleteOrder,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			publisher := &mockPublisher{}
			service := NewService(tc.mockStore, publisher, testLogger())
			// when
			err := service.Delete(context.Background(), 1, tc.version)
			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				assert.Empty(t, publisher.published)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedEvents, publisher.published)
		})
	}
}

func Test_toDto(t *testing.T) {
	date := time.Now().UTC()
	testCases := []struct {
		name     string
		order    *store.Order
		items    []store.OrderItem
		expected *OrderDto
	}{
		{
			name:     "Nil order",
			order:    nil,
			items:    nil,
			expected: nil,
		},
		{
			name:     "Order without items keeps items nil",
			order:    &store.Order{ID: 3, Date: date, Version: 1},
			items:    nil,
			expected: &OrderDto{ID: 3, Date: date.Format(time.RFC3339), Version: 1},
		},
		{
			name:  "Order with items",
			order: &store.Order{ID: 3, Name: strPtr("Order"), Date: date, Version: 2},
			items: []store.OrderItem{
				{ID: 8, OrderID: 3, ProductID: 4, ProductName: "Keyboard", ProductPrice: 49.50, Quantity: 1},
			},
			expected: &OrderDto{
				ID: 3, Name: strPtr("Order"), Date: date.Format(time.RFC3339), Version: 2,
				Items: []OrderItemDto{
					{ID: 8, ProductID: 4, ProductName: "Keyboard", ProductPrice: 49.50, Quantity: 1},
				},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			result := toDto(tc.order, tc.items)
			// then
			assert.Equal(t, tc.expected, result)
		})
	}
}
