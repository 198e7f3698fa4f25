// Package events defines the order lifecycle events published after commit.
package events

import (
	"encoding/json"

	"github.com/avolkov/orderhub/pkg/messaging"
)

type OrderAction string

const (
	ActionCreated OrderAction = "created"
	ActionUpdated OrderAction = "updated"
	ActionDeleted OrderAction = "deleted"
)

// OrderIndexEvent tells the projector to reconcile one order document.
// The payload is the whole queue contract: {orderId, action}.
type OrderIndexEvent struct {
	OrderID int64       `json:"orderId"`
	Action  OrderAction `json:"action"`
}

func (e OrderIndexEvent) Subject() string {
	return messaging.OrdersIndexSubject
}

func (e OrderIndexEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
