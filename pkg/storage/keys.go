package storage

import "fmt"

// Key schema for Pebble storage
//
//   ord:<orderID> → Order (JSON)
//   job:<orderID> → queue.Entry (JSON)

const (
	prefixOrder = "ord:"
	prefixJob   = "job:"
)

// orderKey returns the key for an order
// Format: "ord:{orderID}"
func orderKey(orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixOrder, orderID))
}

// jobKey returns the key for a journaled job
// Format: "job:{orderID}"
func jobKey(orderID string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixJob, orderID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
