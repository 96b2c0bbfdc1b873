package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/queue"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

var (
	_ OrderStore    = (*PebbleStore)(nil)
	_ queue.Journal = (*PebbleStore)(nil)
)

// PebbleStore keeps orders and the job journal in one Pebble database.
type PebbleStore struct {
	db    *pebble.DB
	clock util.Clock

	// serializes read-modify-write of order records
	mu sync.Mutex
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	return NewPebbleStoreWithOptions(path, &pebble.Options{})
}

// NewPebbleStoreWithOptions opens the store with caller-supplied options,
// e.g. an in-memory vfs for tests.
func NewPebbleStoreWithOptions(path string, opts *pebble.Options) (*PebbleStore, error) {
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &PebbleStore{db: db, clock: util.RealClock{}}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// ============================================================================
// Orders
// ============================================================================

func (s *PebbleStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(o.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, o.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.save(o)
}

func (s *PebbleStore) Get(_ context.Context, id string) (*order.Order, error) {
	return s.load(id)
}

func (s *PebbleStore) UpdateStatus(_ context.Context, id string, status order.Status, f order.Fields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.load(id)
	if err != nil {
		return false, err
	}
	changed, err := o.Apply(status, f, s.clock.Now())
	if err != nil || !changed {
		return false, err
	}
	if err := s.save(o); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) List(_ context.Context, status order.Status) ([]*order.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	defer iter.Close()

	var orders []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		o, err := decodeOrder(iter.Value())
		if err != nil {
			continue // Skip invalid entries
		}
		if status == "" || o.Status == status {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })
	return orders, nil
}

func (s *PebbleStore) load(id string) (*order.Order, error) {
	data, closer, err := s.db.Get(orderKey(id))
	if err == pebble.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()
	return decodeOrder(data)
}

func (s *PebbleStore) save(o *order.Order) error {
	data, err := encodeOrder(o)
	if err != nil {
		return err
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// ============================================================================
// Job journal
// ============================================================================

func (s *PebbleStore) SaveJob(_ context.Context, e queue.Entry) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.db.Set(jobKey(e.Job.OrderID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *PebbleStore) DeleteJob(_ context.Context, orderID string) error {
	if err := s.db.Delete(jobKey(orderID), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadJobs(_ context.Context) ([]queue.Entry, error) {
	prefix := []byte(prefixJob)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	defer iter.Close()

	var entries []queue.Entry
	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
