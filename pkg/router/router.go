// Package router selects the cheapest execution venue for a swap by quoting
// every registered venue concurrently.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/util"
	"github.com/uhyunpark/hyperswap/pkg/venue"
)

var (
	ErrNoVenues     = errors.New("no venues registered")
	ErrUnknownVenue = errors.New("unknown venue")
)

// Router quotes venues in declaration order. That order is also the
// tie-break priority when two quotes cost the same.
type Router struct {
	venues  []venue.Venue
	byName  map[string]venue.Venue
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// New creates a Router. timeout bounds each venue call; zero disables it.
func New(venues []venue.Venue, timeout time.Duration, logger *zap.SugaredLogger) *Router {
	byName := make(map[string]venue.Venue, len(venues))
	for _, v := range venues {
		byName[v.Name()] = v
	}
	return &Router{
		venues:  venues,
		byName:  byName,
		timeout: timeout,
		logger:  util.OrNop(logger),
	}
}

// Venue looks up a registered venue by name.
func (r *Router) Venue(name string) (venue.Venue, error) {
	v, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVenue, name)
	}
	return v, nil
}

// Timeout is the per-call bound applied to venue quotes and executions.
func (r *Router) Timeout() time.Duration { return r.timeout }

// SelectBestRoute quotes all venues concurrently and returns the quote with
// the lowest effective cost. Any venue error or timeout fails the whole call.
func (r *Router) SelectBestRoute(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.Quote, error) {
	if len(r.venues) == 0 {
		return order.Quote{}, ErrNoVenues
	}

	quotes := make([]order.Quote, len(r.venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range r.venues {
		g.Go(func() error {
			callCtx, cancel := r.bound(gctx)
			defer cancel()
			q, err := v.Quote(callCtx, tokenIn, tokenOut, amount)
			if err != nil {
				return fmt.Errorf("quote %s: %w", v.Name(), err)
			}
			q.Venue = v.Name()
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return order.Quote{}, err
	}

	best, err := Best(quotes)
	if err != nil {
		return order.Quote{}, err
	}
	r.logger.Debugw("route_selected",
		"pair", tokenIn+"/"+tokenOut,
		"venue", best.Venue,
		"price", best.Price,
		"fee", best.Fee,
		"candidates", len(quotes))
	return best, nil
}

// bound applies the per-call timeout to ctx.
func (r *Router) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// EffectiveCost is price * (1 + fee), computed in decimal so equal costs
// compare equal.
func EffectiveCost(q order.Quote) decimal.Decimal {
	return decimal.NewFromFloat(q.Price).Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(q.Fee)))
}

// Best returns the quote with the minimal effective cost. Ties go to the
// earliest quote in the slice.
func Best(quotes []order.Quote) (order.Quote, error) {
	if len(quotes) == 0 {
		return order.Quote{}, ErrNoVenues
	}
	best := quotes[0]
	bestCost := EffectiveCost(best)
	for _, q := range quotes[1:] {
		if c := EffectiveCost(q); c.LessThan(bestCost) {
			best, bestCost = q, c
		}
	}
	return best, nil
}
