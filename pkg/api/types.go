package api

import (
	"github.com/uhyunpark/hyperswap/pkg/order"
)

// ==============================
// REST Request Types
// ==============================

// ExecuteOrderRequest is the payload for POST /api/v1/orders/execute
type ExecuteOrderRequest struct {
	TokenIn  string  `json:"tokenIn" validate:"required,token"`
	TokenOut string  `json:"tokenOut" validate:"required,token,nefield=TokenIn"`
	Amount   float64 `json:"amount" validate:"gt=0"`
}

// ==============================
// REST Response Types
// ==============================

// ExecuteOrderResponse is returned once the order is recorded and queued
type ExecuteOrderResponse struct {
	OrderID string       `json:"orderId"`
	Status  order.Status `json:"status"` // always "pending"
}

// OrderListResponse is returned by GET /api/v1/orders
type OrderListResponse struct {
	Orders []*order.Order `json:"orders"`
	Count  int            `json:"count"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status           string `json:"status"`
	QueueDepth       int    `json:"queueDepth"`
	SubscribedOrders int    `json:"subscribedOrders"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
