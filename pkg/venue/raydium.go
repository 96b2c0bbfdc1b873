package venue

import (
	"context"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/order"
)

var _ Venue = (*Raydium)(nil)

// Raydium simulates a constant-product AMM pool with a flat 0.25% fee.
type Raydium struct {
	cfg SimConfig
}

func NewRaydium(cfg SimConfig) *Raydium {
	return &Raydium{cfg: cfg}
}

func (r *Raydium) Name() string { return "raydium" }

func (r *Raydium) Quote(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.Quote, error) {
	if err := r.cfg.roundTrip(ctx); err != nil {
		return order.Quote{}, fmt.Errorf("raydium quote: %w", err)
	}
	ref, err := ReferencePrice(tokenIn, tokenOut)
	if err != nil {
		return order.Quote{}, err
	}
	return order.Quote{
		Venue: r.Name(),
		Price: jitter(ref*0.98, 0.02),
		Fee:   0.0025,
	}, nil
}

func (r *Raydium) Execute(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.SwapResult, error) {
	if err := r.cfg.roundTrip(ctx); err != nil {
		return order.SwapResult{}, fmt.Errorf("raydium execute: %w", err)
	}
	ref, err := ReferencePrice(tokenIn, tokenOut)
	if err != nil {
		return order.SwapResult{}, err
	}
	if r.cfg.rejected() {
		return order.SwapResult{}, fmt.Errorf("raydium: %w: pool reserves moved", ErrExecution)
	}
	return order.SwapResult{
		TxHash:        TxHash(r.Name(), tokenIn, tokenOut, amount, r.cfg.clock().Now()),
		ExecutedPrice: jitter(ref, 0.005),
	}, nil
}
