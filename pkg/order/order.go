// Package order holds the types that flow through the execution pipeline:
// the persisted Order record, the queued Job, venue Quotes and SwapResults,
// and the StatusUpdate messages delivered to listeners.
package order

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an order.
//
// Happy path: pending -> routing -> building -> submitted -> confirmed.
// failed is terminal and reachable from any non-terminal state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRouting, StatusBuilding, StatusSubmitted, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions may occur.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Supported token symbols.
const (
	TokenSOL  = "SOL"
	TokenUSDC = "USDC"
	TokenUSDT = "USDT"
	TokenETH  = "ETH"
	TokenBTC  = "BTC"
)

var supportedTokens = map[string]bool{
	TokenSOL:  true,
	TokenUSDC: true,
	TokenUSDT: true,
	TokenETH:  true,
	TokenBTC:  true,
}

// IsSupportedToken reports whether sym can be swapped.
func IsSupportedToken(sym string) bool { return supportedTokens[sym] }

// ErrInvalidJob is wrapped by every Job validation failure.
var ErrInvalidJob = errors.New("invalid job")

// Order is the durable record of one swap request.
type Order struct {
	ID            string    `json:"id"`
	TokenIn       string    `json:"tokenIn"`
	TokenOut      string    `json:"tokenOut"`
	Amount        float64   `json:"amount"`
	Status        Status    `json:"status"`
	SelectedDex   string    `json:"selectedDex,omitempty"`
	ExecutedPrice *float64  `json:"executedPrice,omitempty"`
	TxHash        string    `json:"txHash,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// New builds the pending record for a freshly submitted job.
func New(job Job, now time.Time) *Order {
	return &Order{
		ID:        job.OrderID,
		TokenIn:   job.TokenIn,
		TokenOut:  job.TokenOut,
		Amount:    job.Amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Job is the queue payload: a projection of an Order at submission time.
type Job struct {
	OrderID  string  `json:"orderId"`
	TokenIn  string  `json:"tokenIn"`
	TokenOut string  `json:"tokenOut"`
	Amount   float64 `json:"amount"`
}

// JobFor projects o onto its queue payload.
func JobFor(o *Order) Job {
	return Job{OrderID: o.ID, TokenIn: o.TokenIn, TokenOut: o.TokenOut, Amount: o.Amount}
}

// Validate enforces the enqueue schema. The pipeline assumes every job it
// dequeues has passed this check.
func (j Job) Validate() error {
	switch {
	case j.OrderID == "":
		return fmt.Errorf("%w: missing orderId", ErrInvalidJob)
	case !IsSupportedToken(j.TokenIn):
		return fmt.Errorf("%w: unsupported tokenIn %q", ErrInvalidJob, j.TokenIn)
	case !IsSupportedToken(j.TokenOut):
		return fmt.Errorf("%w: unsupported tokenOut %q", ErrInvalidJob, j.TokenOut)
	case j.TokenIn == j.TokenOut:
		return fmt.Errorf("%w: tokenIn and tokenOut are both %s", ErrInvalidJob, j.TokenIn)
	case !(j.Amount > 0):
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidJob, j.Amount)
	}
	return nil
}

// Quote is one venue's price for a pair. Lives for a single routing decision.
type Quote struct {
	Venue string  `json:"venue"`
	Price float64 `json:"price"`
	Fee   float64 `json:"fee"`
}

// SwapResult is a venue's settlement of an executed swap.
type SwapResult struct {
	TxHash        string  `json:"txHash"`
	ExecutedPrice float64 `json:"executedPrice"`
}

// Fields carries the optional columns written alongside a status change.
// Only the fields relevant to the target status are applied by stores.
type Fields struct {
	SelectedDex   string
	ExecutedPrice *float64
	TxHash        string
	ErrorMessage  string
}
