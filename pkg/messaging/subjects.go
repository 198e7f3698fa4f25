package messaging

// OrdersStream is the JetStream stream holding order lifecycle events.
const OrdersStream = "ORDERS"

// OrdersIndexSubject carries {orderId, action} messages for the index projector.
const OrdersIndexSubject = "orders.index"
