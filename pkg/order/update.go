package order

import (
	"encoding/json"
	"fmt"
)

// StatusUpdate is the message delivered to listeners of an order.
// Transient and best-effort; never persisted.
type StatusUpdate struct {
	OrderID string `json:"orderId"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	// Attempt is set on the permanent failure message only.
	Attempt int `json:"attempt,omitempty"`
}

// Validate checks the outbound schema. pending is never broadcast.
func (u StatusUpdate) Validate() error {
	if u.OrderID == "" {
		return fmt.Errorf("status update: missing orderId")
	}
	if !u.Status.Valid() || u.Status == StatusPending {
		return fmt.Errorf("status update: invalid status %q", u.Status)
	}
	return nil
}

// Encode serializes u as a single JSON object.
func (u StatusUpdate) Encode() ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(u)
}

// DecodeStatusUpdate parses and validates one serialized update.
func DecodeStatusUpdate(b []byte) (StatusUpdate, error) {
	var u StatusUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		return StatusUpdate{}, fmt.Errorf("status update: %w", err)
	}
	if err := u.Validate(); err != nil {
		return StatusUpdate{}, err
	}
	return u, nil
}
