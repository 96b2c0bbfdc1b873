package storage

import (
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/queue"
)

func encodeOrder(o *order.Order) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}
	return b, nil
}

func decodeOrder(b []byte) (*order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &o, nil
}

func encodeEntry(e queue.Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return b, nil
}

func decodeEntry(b []byte) (queue.Entry, error) {
	var e queue.Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return queue.Entry{}, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return e, nil
}
