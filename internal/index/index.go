// Package index maintains the denormalized order documents in RediSearch.
// The index is a read model fed asynchronously from the store of record; it
// may lag but must never resurrect deleted orders or apply stale updates.
package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Name is the RediSearch index name.
	Name = "orders_idx"
	// DocPrefix is the key prefix of all indexed order documents.
	DocPrefix = "orders:doc:"
)

// Doc is one order document as stored in the index.
type Doc struct {
	ID          int64
	Name        string
	Description string
	Date        time.Time
	Version     int32
}

// upsertScript writes the document only when the incoming version is not
// older than the version already stored. Out-of-order deliveries of the
// same order then collapse to the newest state.
var upsertScript = redis.NewScript(`
local stored = tonumber(redis.call('HGET', KEYS[1], 'version') or '0')
local incoming = tonumber(ARGV[1])
if incoming < stored then
  return 0
end
redis.call('HSET', KEYS[1],
  'version', ARGV[1],
  'name', ARGV[2],
  'description', ARGV[3],
  'date', ARGV[4],
  'ts', ARGV[5])
return 1
`)

// Writer applies document mutations to the search index.
type Writer struct {
	rdb *redis.Client
}

// NewWriter creates a Writer on top of the given Redis client.
func NewWriter(rdb *redis.Client) *Writer {
	return &Writer{rdb: rdb}
}

// EnsureIndex creates the full-text index over order documents. An index
// that already exists is left untouched.
func (w *Writer) EnsureIndex(ctx context.Context) error {
	err := w.rdb.FTCreate(ctx, Name,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []any{DocPrefix},
		},
		&redis.FieldSchema{FieldName: "name", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "description", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "date", FieldType: redis.SearchFieldTypeText, NoIndex: true},
		&redis.FieldSchema{FieldName: "ts", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
	).Err()
	if err != nil && strings.Contains(err.Error(), "Index already exists") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", Name, err)
	}
	return nil
}

// Upsert writes the document under the version guard. A document carrying a
// version lower than the stored one is dropped silently.
func (w *Writer) Upsert(ctx context.Context, doc Doc) error {
	err := upsertScript.Run(ctx, w.rdb,
		[]string{docKey(doc.ID)},
		doc.Version,
		doc.Name,
		doc.Description,
		doc.Date.Format(time.RFC3339),
		doc.Date.Unix(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to upsert document for order %d: %w", doc.ID, err)
	}
	return nil
}

// Delete removes the document. Deleting an order that was never indexed or
// is already gone succeeds, so redelivered delete events stay idempotent.
func (w *Writer) Delete(ctx context.Context, orderID int64) error {
	if err := w.rdb.Del(ctx, docKey(orderID)).Err(); err != nil {
		return fmt.Errorf("failed to delete document for order %d: %w", orderID, err)
	}
	return nil
}

// Ping verifies the index backend is reachable. Used by health checks.
func (w *Writer) Ping(ctx context.Context) error {
	return w.rdb.Ping(ctx).Err()
}

func docKey(orderID int64) string {
	return fmt.Sprintf("%s%d", DocPrefix, orderID)
}
