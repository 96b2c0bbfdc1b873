package venue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastSim() SimConfig {
	cfg := DefaultSimConfig()
	cfg.MinLatency = time.Millisecond
	cfg.MaxLatency = 2 * time.Millisecond
	return cfg
}

func TestReferencePrice(t *testing.T) {
	p, err := ReferencePrice("ETH", "USDC")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p)

	_, err = ReferencePrice("ETH", "ETH")
	assert.ErrorIs(t, err, ErrUnsupportedPair)
	_, err = ReferencePrice("DOGE", "USDC")
	assert.ErrorIs(t, err, ErrUnsupportedPair)
}

func TestQuotesStayWithinBand(t *testing.T) {
	venues := []Venue{NewRaydium(fastSim()), NewMeteora(fastSim())}
	ref, _ := ReferencePrice("SOL", "USDC")

	for _, v := range venues {
		t.Run(v.Name(), func(t *testing.T) {
			for i := 0; i < 20; i++ {
				q, err := v.Quote(context.Background(), "SOL", "USDC", 2)
				require.NoError(t, err)
				assert.Equal(t, v.Name(), q.Venue)
				assert.InDelta(t, ref, q.Price, ref*0.10)
				assert.GreaterOrEqual(t, q.Fee, 0.0)
				assert.Less(t, q.Fee, 0.01)
			}
		})
	}
}

func TestExecuteReturnsTxHash(t *testing.T) {
	for _, v := range []Venue{NewRaydium(fastSim()), NewMeteora(fastSim())} {
		res, err := v.Execute(context.Background(), "ETH", "USDC", 1)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(res.TxHash, "0x"))
		assert.Len(t, res.TxHash, 66)
		assert.InDelta(t, 3000, res.ExecutedPrice, 300)
	}
}

func TestExecuteRejected(t *testing.T) {
	cfg := fastSim()
	cfg.FailureRate = 1
	_, err := NewRaydium(cfg).Execute(context.Background(), "ETH", "USDC", 1)
	assert.True(t, errors.Is(err, ErrExecution))
}

func TestQuoteHonoursContext(t *testing.T) {
	cfg := fastSim()
	cfg.MinLatency = time.Hour
	cfg.MaxLatency = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewMeteora(cfg).Quote(ctx, "ETH", "USDC", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTxHashUnique(t *testing.T) {
	now := time.Now()
	a := TxHash("raydium", "ETH", "USDC", 1, now)
	b := TxHash("raydium", "ETH", "USDC", 1, now)
	assert.NotEqual(t, a, b)
}
