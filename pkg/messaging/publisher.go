// Package messaging defines the outbound queue contract used by the order
// write path. The transactional core depends only on these interfaces, never
// on a concrete broker.
package messaging

import (
	"context"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
