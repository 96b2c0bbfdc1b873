package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

var _ OrderStore = (*MemoryStore)(nil)

type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	clock  util.Clock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*order.Order),
		clock:  util.RealClock{},
	}
}

func (s *MemoryStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, o.ID)
	}
	s.orders[o.ID] = clone(o)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(o), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status order.Status, f order.Fields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o.Apply(status, f, s.clock.Now())
}

func (s *MemoryStore) List(_ context.Context, status order.Status) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
