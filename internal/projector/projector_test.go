package projector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	ordererrors "github.com/avolkov/orderhub/internal/errors"
	"github.com/avolkov/orderhub/internal/index"
	"github.com/avolkov/orderhub/internal/order/store"
	"github.com/avolkov/orderhub/pkg/messaging/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockOrderStore is a mock implementation of the OrderStore interface
type mockOrderStore struct {
	order *store.Order
	error error
}

func (m *mockOrderStore) FindByID(_ context.Context, _ int64) (*store.Order, []store.OrderItem, error) {
	if m.error != nil {
		return nil, nil, m.error
	}
	return m.order, nil, nil
}

func (m *mockOrderStore) FindAll(_ context.Context) ([]store.Order, error) {
	return nil, nil
}

func (m *mockOrderStore) CreateOrder(_ context.Context, _ *store.CreateOrderParams) (*store.Order, []store.OrderItem, error) {
	return nil, nil, nil
}

func (m *mockOrderStore) UpdateOrder(_ context.Context, _ *store.UpdateOrderParams) (*store.Order, error) {
	return nil, nil
}

func (m *mockOrderStore) DeleteOrder(_ context.Context, _ int64, _ int32) error {
	return nil
}

// mockWriter records index mutations.
type mockWriter struct {
	upserted    []index.Doc
	deleted     []int64
	upsertError error
	deleteError error
}

func (m *mockWriter) Upsert(_ context.Context, doc index.Doc) error {
	if m.upsertError != nil {
		return m.upsertError
	}
	m.upserted = append(m.upserted, doc)
	return nil
}

func (m *mockWriter) Delete(_ context.Context, orderID int64) error {
	if m.deleteError != nil {
		return m.deleteError
	}
	m.deleted = append(m.deleted, orderID)
	return nil
}

// fakeMsg embeds jetstream.Msg so only the methods the projector touches
// need an implementation. Calling anything else panics, which is exactly
// what a test should do.
type fakeMsg struct {
	jetstream.Msg
	data   []byte
	acked  bool
	naked  bool
	termed bool
}

func (f *fakeMsg) Data() []byte    { return f.data }
func (f *fakeMsg) Subject() string { return "orders.index" }
func (f *fakeMsg) Ack() error      { f.acked = true; return nil }
func (f *fakeMsg) Nak() error      { f.naked = true; return nil }
func (f *fakeMsg) Term() error     { f.termed = true; return nil }

func eventMsg(t *testing.T, orderID int64, action events.OrderAction) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(events.OrderIndexEvent{OrderID: orderID, Action: action})
	require.NoError(t, err)
	return &fakeMsg{data: data}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string {
	return &s
}

func Test_Projector_handleMessage(t *testing.T) {
	date := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	errTransient := errors.New("connection reset")

	testCases := []struct {
		name           string
		mockStore      *mockOrderStore
		writer         *mockWriter
		msg            *fakeMsg
		expectAck      bool
		expectNak      bool
		expectTerm     bool
		expectUpserted []index.Doc
		expectDeleted  []int64
	}{
		{
			name: "Created event projects the current order state",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 42, Name: strPtr("Laptops"), Description: strPtr("office batch"), Date: date, Version: 1},
			},
			writer:    &mockWriter{},
			msg:       eventMsg(t, 42, events.ActionCreated),
			expectAck: true,
			expectUpserted: []index.Doc{
				{ID: 42, Name: "Laptops", Description: "office batch", Date: date, Version: 1},
			},
		},
		{
			name: "Updated event projects like created",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 42, Date: date, Version: 3},
			},
			writer:    &mockWriter{},
			msg:       eventMsg(t, 42, events.ActionUpdated),
			expectAck: true,
			expectUpserted: []index.Doc{
				{ID: 42, Date: date, Version: 3},
			},
		},
		{
			name:          "Deleted event removes the document without touching the store",
			mockStore:     &mockOrderStore{error: ordererrors.ErrOrderNotFound},
			writer:        &mockWriter{},
			msg:           eventMsg(t, 42, events.ActionDeleted),
			expectAck:     true,
			expectDeleted: []int64{42},
		},
		{
			name:       "Update for a vanished order is terminated",
			mockStore:  &mockOrderStore{error: ordererrors.ErrOrderNotFound},
			writer:     &mockWriter{},
			msg:        eventMsg(t, 42, events.ActionUpdated),
			expectTerm: true,
		},
		{
			name:      "Transient store failure is redelivered",
			mockStore: &mockOrderStore{error: errTransient},
			writer:    &mockWriter{},
			msg:       eventMsg(t, 42, events.ActionCreated),
			expectNak: true,
		},
		{
			name: "Transient index failure is redelivered",
			mockStore: &mockOrderStore{
				order: &store.Order{ID: 42, Date: date, Version: 1},
			},
			writer:    &mockWriter{upsertError: errTransient},
			msg:       eventMsg(t, 42, events.ActionCreated),
			expectNak: true,
		},
		{
			name:       "Malformed payload is terminated",
			mockStore:  &mockOrderStore{},
			writer:     &mockWriter{},
			msg:        &fakeMsg{data: []byte("not json")},
			expectTerm: true,
		},
		{
			name:       "Unknown action is terminated",
			mockStore:  &mockOrderStore{},
			writer:     &mockWriter{},
			msg:        eventMsg(t, 42, events.OrderAction("archived")),
			expectTerm: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			projector := NewProjector(tc.mockStore, tc.writer, testLogger())
			// when
			projector.handleMessage(context.Background(), tc.msg)
			// then
			assert.Equal(t, tc.expectAck, tc.msg.acked, "ack")
			assert.Equal(t, tc.expectNak, tc.msg.naked, "nak")
			assert.Equal(t, tc.expectTerm, tc.msg.termed, "term")
			assert.Equal(t, tc.expectUpserted, tc.writer.upserted)
			assert.Equal(t, tc.expectDeleted, tc.writer.deleted)
		})
	}
}
