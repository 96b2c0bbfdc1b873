package venue

import (
	"context"
	"fmt"

	"github.com/uhyunpark/hyperswap/pkg/order"
)

var _ Venue = (*Meteora)(nil)

// Meteora simulates a dynamic-liquidity pool: wider price variance and a
// fee that floats between 0.2% and 0.3% per quote.
type Meteora struct {
	cfg SimConfig
}

func NewMeteora(cfg SimConfig) *Meteora {
	return &Meteora{cfg: cfg}
}

func (m *Meteora) Name() string { return "meteora" }

func (m *Meteora) Quote(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.Quote, error) {
	if err := m.cfg.roundTrip(ctx); err != nil {
		return order.Quote{}, fmt.Errorf("meteora quote: %w", err)
	}
	ref, err := ReferencePrice(tokenIn, tokenOut)
	if err != nil {
		return order.Quote{}, err
	}
	return order.Quote{
		Venue: m.Name(),
		Price: jitter(ref*0.97, 0.05),
		Fee:   jitter(0.0025, 0.2),
	}, nil
}

func (m *Meteora) Execute(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.SwapResult, error) {
	if err := m.cfg.roundTrip(ctx); err != nil {
		return order.SwapResult{}, fmt.Errorf("meteora execute: %w", err)
	}
	ref, err := ReferencePrice(tokenIn, tokenOut)
	if err != nil {
		return order.SwapResult{}, err
	}
	if m.cfg.rejected() {
		return order.SwapResult{}, fmt.Errorf("meteora: %w: bin liquidity exhausted", ErrExecution)
	}
	return order.SwapResult{
		TxHash:        TxHash(m.Name(), tokenIn, tokenOut, amount, m.cfg.clock().Now()),
		ExecutedPrice: jitter(ref, 0.01),
	}, nil
}
