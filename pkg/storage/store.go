// Package storage persists order records and the job journal.
package storage

import (
	"context"
	"errors"

	"github.com/uhyunpark/hyperswap/pkg/order"
)

var (
	ErrNotFound = errors.New("order not found")
	ErrExists   = errors.New("order already exists")
)

// OrderStore is the durable record of orders.
type OrderStore interface {
	// Create inserts a new pending order.
	Create(ctx context.Context, o *order.Order) error

	// Get returns a copy of the stored order.
	Get(ctx context.Context, id string) (*order.Order, error)

	// UpdateStatus applies a status transition and bumps updatedAt.
	// changed is false when the order was already terminal.
	UpdateStatus(ctx context.Context, id string, status order.Status, f order.Fields) (changed bool, err error)

	// List returns orders in the given status, or all orders when status is empty.
	List(ctx context.Context, status order.Status) ([]*order.Order, error)
}

func clone(o *order.Order) *order.Order {
	cp := *o
	if o.ExecutedPrice != nil {
		p := *o.ExecutedPrice
		cp.ExecutedPrice = &p
	}
	return &cp
}
