// Package venue defines the liquidity venue capability and the simulated
// venues the router quotes against.
package venue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

// Venue quotes and executes swaps for a trading pair.
// Implementations must be safe for concurrent use and hold no shared state
// that a call mutates.
type Venue interface {
	// Name returns the venue identifier recorded as an order's selectedDex.
	Name() string

	// Quote returns the venue's price and fee for swapping amount of tokenIn.
	Quote(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.Quote, error)

	// Execute settles the swap and returns the resulting transaction.
	Execute(ctx context.Context, tokenIn, tokenOut string, amount float64) (order.SwapResult, error)
}

var (
	ErrUnsupportedPair = errors.New("unsupported pair")
	ErrExecution       = errors.New("execution rejected")
)

// SimConfig controls the artificial network behaviour of simulated venues.
type SimConfig struct {
	MinLatency time.Duration
	MaxLatency time.Duration
	// FailureRate is the probability in [0,1] that Execute is rejected.
	FailureRate float64
	Clock       util.Clock
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		MinLatency: 150 * time.Millisecond,
		MaxLatency: 250 * time.Millisecond,
		Clock:      util.RealClock{},
	}
}

func (c SimConfig) clock() util.Clock {
	if c.Clock == nil {
		return util.RealClock{}
	}
	return c.Clock
}

// roundTrip suspends the caller for a latency drawn from [MinLatency, MaxLatency].
func (c SimConfig) roundTrip(ctx context.Context) error {
	d := c.MinLatency
	if span := c.MaxLatency - c.MinLatency; span > 0 {
		d += time.Duration(rand.Int64N(int64(span) + 1))
	}
	return util.Sleep(ctx, c.clock(), d)
}

func (c SimConfig) rejected() bool {
	return c.FailureRate > 0 && rand.Float64() < c.FailureRate
}

// referencePrices are indicative USD prices used to derive pair prices.
var referencePrices = map[string]float64{
	order.TokenSOL:  150,
	order.TokenUSDC: 1,
	order.TokenUSDT: 1,
	order.TokenETH:  3000,
	order.TokenBTC:  60000,
}

// ReferencePrice returns the mid price of tokenIn denominated in tokenOut.
func ReferencePrice(tokenIn, tokenOut string) (float64, error) {
	in, okIn := referencePrices[tokenIn]
	out, okOut := referencePrices[tokenOut]
	if !okIn || !okOut || tokenIn == tokenOut {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnsupportedPair, tokenIn, tokenOut)
	}
	return in / out, nil
}

// jitter scales p by a uniform factor in [1-band, 1+band].
func jitter(p, band float64) float64 {
	return p * (1 - band + 2*band*rand.Float64())
}

// TxHash derives a keccak256 transaction hash for a simulated settlement.
func TxHash(venue, tokenIn, tokenOut string, amount float64, at time.Time) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(venue))
	h.Write([]byte(tokenIn))
	h.Write([]byte(tokenOut))
	h.Write([]byte(strconv.FormatFloat(amount, 'g', -1, 64)))
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	h.Write([]byte(strconv.FormatUint(rand.Uint64(), 16)))
	return common.BytesToHash(h.Sum(nil)).Hex()
}
