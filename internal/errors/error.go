// Package errors provides custom error types for order and inventory operations.
package errors

import "errors"

var ErrOrderNotFound = errors.New("order not found")
var ErrProductNotFound = errors.New("product not found")
var ErrInsufficientStock = errors.New("insufficient stock")
var ErrVersionConflict = errors.New("version conflict: the order has been modified by another transaction")

var ErrFailedToFindOrder = errors.New("failed to find order")
var ErrFailedToFindOrderItems = errors.New("failed to find order items")
var ErrCreateOrder = errors.New("failed to create order")
var ErrCreateOrderItem = errors.New("failed to create order item")
var ErrUpdateOrder = errors.New("failed to update order")
var ErrDeleteOrder = errors.New("failed to delete order")

var ErrTransactionBegin = errors.New("failed to begin transaction")
var ErrTransactionCommit = errors.New("failed to commit transaction")
var ErrTransactionRollback = errors.New("failed to rollback transaction")
