package order

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a status write would move an order
// backwards along the happy path.
var ErrInvalidTransition = errors.New("invalid status transition")

// CanTransition reports whether an order in from may be written as to.
// Statuses only move forward; failed is reachable from any non-terminal
// state.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StatusFailed:
		return true
	case StatusRouting:
		return from == StatusPending || from == StatusRouting
	case StatusBuilding:
		return from == StatusRouting
	case StatusSubmitted:
		return from == StatusBuilding
	case StatusConfirmed:
		return from == StatusSubmitted
	}
	return false
}

// Apply writes status and its associated fields onto o.
//
// It returns changed=false without touching o when o is already terminal,
// which makes repeated terminal writes safe no-ops. Fields are only applied
// for the status they belong to.
func (o *Order) Apply(status Status, f Fields, now time.Time) (bool, error) {
	if o.Status.IsTerminal() {
		return false, nil
	}
	if !CanTransition(o.Status, status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, status)
	}

	o.Status = status
	o.UpdatedAt = now
	switch status {
	case StatusBuilding:
		if f.SelectedDex != "" {
			o.SelectedDex = f.SelectedDex
		}
	case StatusConfirmed:
		if f.ExecutedPrice != nil {
			p := *f.ExecutedPrice
			o.ExecutedPrice = &p
		}
		o.TxHash = f.TxHash
	case StatusFailed:
		o.ErrorMessage = f.ErrorMessage
	}
	return true, nil
}
