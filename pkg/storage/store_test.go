package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/queue"
)

func newMemPebble(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStoreWithOptions("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]OrderStore {
	return map[string]OrderStore{
		"memory": NewMemoryStore(),
		"pebble": newMemPebble(t),
	}
}

func newOrder(id string, at time.Time) *order.Order {
	return order.New(order.Job{OrderID: id, TokenIn: "ETH", TokenOut: "USDC", Amount: 1}, at)
}

func TestOrderStoreLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Now().Add(-time.Minute).UTC()
			require.NoError(t, s.Create(ctx, newOrder("o1", created)))
			assert.ErrorIs(t, s.Create(ctx, newOrder("o1", created)), ErrExists)

			steps := []struct {
				status order.Status
				fields order.Fields
			}{
				{order.StatusRouting, order.Fields{}},
				{order.StatusBuilding, order.Fields{SelectedDex: "meteora"}},
				{order.StatusSubmitted, order.Fields{}},
			}
			for _, st := range steps {
				changed, err := s.UpdateStatus(ctx, "o1", st.status, st.fields)
				require.NoError(t, err)
				require.True(t, changed, st.status)
			}

			price := 2999.9
			changed, err := s.UpdateStatus(ctx, "o1", order.StatusConfirmed, order.Fields{ExecutedPrice: &price, TxHash: "0x01"})
			require.NoError(t, err)
			require.True(t, changed)

			got, err := s.Get(ctx, "o1")
			require.NoError(t, err)
			assert.Equal(t, order.StatusConfirmed, got.Status)
			assert.Equal(t, "meteora", got.SelectedDex)
			require.NotNil(t, got.ExecutedPrice)
			assert.Equal(t, price, *got.ExecutedPrice)
			assert.Equal(t, "0x01", got.TxHash)
			assert.True(t, got.UpdatedAt.After(got.CreatedAt))

			// terminal writes are no-ops
			changed, err = s.UpdateStatus(ctx, "o1", order.StatusFailed, order.Fields{ErrorMessage: "late"})
			require.NoError(t, err)
			assert.False(t, changed)
			got, _ = s.Get(ctx, "o1")
			assert.Equal(t, order.StatusConfirmed, got.Status)
			assert.Empty(t, got.ErrorMessage)
		})
	}
}

func TestOrderStoreRejectsSkips(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, newOrder("o1", time.Now())))

			_, err := s.UpdateStatus(ctx, "o1", order.StatusBuilding, order.Fields{SelectedDex: "raydium"})
			assert.ErrorIs(t, err, order.ErrInvalidTransition)

			got, _ := s.Get(ctx, "o1")
			assert.Equal(t, order.StatusPending, got.Status)
			assert.Empty(t, got.SelectedDex)
		})
	}
}

func TestOrderStoreNotFound(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.UpdateStatus(context.Background(), "missing", order.StatusRouting, order.Fields{})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOrderStoreList(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()
			require.NoError(t, s.Create(ctx, newOrder("b", base.Add(time.Second))))
			require.NoError(t, s.Create(ctx, newOrder("a", base)))
			require.NoError(t, s.Create(ctx, newOrder("c", base.Add(2*time.Second))))
			_, err := s.UpdateStatus(ctx, "c", order.StatusFailed, order.Fields{ErrorMessage: "x"})
			require.NoError(t, err)

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "a", all[0].ID)
			assert.Equal(t, "b", all[1].ID)

			failed, err := s.List(ctx, order.StatusFailed)
			require.NoError(t, err)
			require.Len(t, failed, 1)
			assert.Equal(t, "x", failed[0].ErrorMessage)
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newOrder("o1", time.Now())))

	got, _ := s.Get(ctx, "o1")
	got.Status = order.StatusConfirmed

	again, _ := s.Get(ctx, "o1")
	assert.Equal(t, order.StatusPending, again.Status)
}

func TestPebbleJournal(t *testing.T) {
	s := newMemPebble(t)
	ctx := context.Background()

	j1 := order.Job{OrderID: "o1", TokenIn: "SOL", TokenOut: "USDC", Amount: 3}
	j2 := order.Job{OrderID: "o2", TokenIn: "BTC", TokenOut: "USDT", Amount: 0.1}
	require.NoError(t, s.SaveJob(ctx, queue.Entry{Job: j1}))
	require.NoError(t, s.SaveJob(ctx, queue.Entry{Job: j2}))
	require.NoError(t, s.SaveJob(ctx, queue.Entry{Job: j1, Attempts: 2}))

	entries, err := s.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, queue.Entry{Job: j1, Attempts: 2}, entries[0])
	assert.Equal(t, queue.Entry{Job: j2}, entries[1])

	require.NoError(t, s.DeleteJob(ctx, "o1"))
	entries, err = s.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []queue.Entry{{Job: j2}}, entries)

	// journal keys never show up as orders
	orders, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, orders)
}
