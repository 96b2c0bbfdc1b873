package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/venue"
)

// fixedVenue returns a canned quote after an optional delay.
type fixedVenue struct {
	name  string
	quote order.Quote
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fixedVenue) Name() string { return f.name }

func (f *fixedVenue) Quote(ctx context.Context, _, _ string, _ float64) (order.Quote, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return order.Quote{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.quote, f.err
}

func (f *fixedVenue) Execute(context.Context, string, string, float64) (order.SwapResult, error) {
	return order.SwapResult{TxHash: "0xabc", ExecutedPrice: f.quote.Price}, nil
}

func TestEffectiveCost(t *testing.T) {
	a := EffectiveCost(order.Quote{Price: 100, Fee: 0.01})
	b := EffectiveCost(order.Quote{Price: 99, Fee: 0.02})
	assert.Equal(t, "101", a.String())
	assert.Equal(t, "100.98", b.String())
}

func TestSelectBestRoutePicksLowestEffectiveCost(t *testing.T) {
	a := &fixedVenue{name: "A", quote: order.Quote{Price: 100, Fee: 0.01}}
	b := &fixedVenue{name: "B", quote: order.Quote{Price: 99, Fee: 0.02}}
	r := New([]venue.Venue{a, b}, time.Second, nil)

	q, err := r.SelectBestRoute(context.Background(), "ETH", "USDC", 1)
	require.NoError(t, err)
	assert.Equal(t, "B", q.Venue)
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
}

func TestSelectBestRouteTieUsesDeclarationOrder(t *testing.T) {
	same := order.Quote{Price: 50, Fee: 0.003}
	first := &fixedVenue{name: "first", quote: same, delay: 5 * time.Millisecond}
	second := &fixedVenue{name: "second", quote: same}
	r := New([]venue.Venue{first, second}, time.Second, nil)

	for i := 0; i < 5; i++ {
		q, err := r.SelectBestRoute(context.Background(), "SOL", "USDC", 1)
		require.NoError(t, err)
		assert.Equal(t, "first", q.Venue)
	}
}

func TestSelectBestRouteVenueNameWins(t *testing.T) {
	// A venue that forgets to stamp its name still gets attributed correctly.
	v := &fixedVenue{name: "named", quote: order.Quote{Price: 1, Fee: 0}}
	r := New([]venue.Venue{v}, 0, nil)

	q, err := r.SelectBestRoute(context.Background(), "SOL", "USDC", 1)
	require.NoError(t, err)
	assert.Equal(t, "named", q.Venue)
}

func TestSelectBestRouteFailsOnAnyVenueError(t *testing.T) {
	boom := errors.New("venue down")
	good := &fixedVenue{name: "good", quote: order.Quote{Price: 1}}
	bad := &fixedVenue{name: "bad", err: boom}
	r := New([]venue.Venue{good, bad}, time.Second, nil)

	_, err := r.SelectBestRoute(context.Background(), "SOL", "USDC", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSelectBestRouteTimeout(t *testing.T) {
	slow := &fixedVenue{name: "slow", quote: order.Quote{Price: 1}, delay: time.Second}
	fast := &fixedVenue{name: "fast", quote: order.Quote{Price: 2}}
	r := New([]venue.Venue{slow, fast}, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := r.SelectBestRoute(context.Background(), "SOL", "USDC", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSelectBestRouteNoVenues(t *testing.T) {
	_, err := New(nil, 0, nil).SelectBestRoute(context.Background(), "SOL", "USDC", 1)
	assert.ErrorIs(t, err, ErrNoVenues)
}

func TestVenueLookup(t *testing.T) {
	a := &fixedVenue{name: "A"}
	r := New([]venue.Venue{a}, 0, nil)

	v, err := r.Venue("A")
	require.NoError(t, err)
	assert.Same(t, a, v)

	_, err = r.Venue("Z")
	assert.ErrorIs(t, err, ErrUnknownVenue)
}
