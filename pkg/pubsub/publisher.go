package pubsub

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

var ErrPublisherClosed = errors.New("publisher closed")

// DefaultForwardTimeout bounds each Forward call made by the fanout task.
const DefaultForwardTimeout = 500 * time.Millisecond

// Forwarder receives every update after local fanout, e.g. to relay it to
// listeners attached to another process.
type Forwarder interface {
	Forward(ctx context.Context, u order.StatusUpdate, msg []byte) error
}

// Observer is notified of fanout results.
type Observer interface {
	ObserveFanout(status order.Status, delivered int)
}

// Publisher is the single point through which status updates leave the
// pipeline.
type Publisher struct {
	registry *Registry
	updates  chan order.StatusUpdate
	logger   *zap.SugaredLogger

	forward        Forwarder
	forwardTimeout time.Duration
	observer       Observer

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// PublisherOption customises a Publisher.
type PublisherOption func(*Publisher)

func WithForwarder(f Forwarder) PublisherOption { return func(p *Publisher) { p.forward = f } }

// WithForwardTimeout bounds each Forward call; d <= 0 disables the bound.
func WithForwardTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.forwardTimeout = d }
}

func WithObserver(o Observer) PublisherOption { return func(p *Publisher) { p.observer = o } }

func NewPublisher(registry *Registry, buffer int, logger *zap.SugaredLogger, opts ...PublisherOption) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	p := &Publisher{
		registry:       registry,
		updates:        make(chan order.StatusUpdate, buffer),
		logger:         util.OrNop(logger),
		forwardTimeout: DefaultForwardTimeout,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish queues u for fanout. It only waits when the buffer is full, and
// gives up when ctx ends. An update with no listeners is dropped by the
// fanout task, never queued for later.
func (p *Publisher) Publish(ctx context.Context, u order.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.updates <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the fanout task. It drains queued updates until Close is called
// (or ctx ends), then returns.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case u, ok := <-p.updates:
			if !ok {
				return
			}
			p.dispatch(ctx, u)
		case <-ctx.Done():
			return
		}
	}
}

// Close stops accepting updates and waits for queued ones to be fanned out
// if Run is active.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.updates)
	p.mu.Unlock()
}

// Done is closed when Run returns.
func (p *Publisher) Done() <-chan struct{} { return p.done }

func (p *Publisher) dispatch(ctx context.Context, u order.StatusUpdate) {
	msg, err := u.Encode()
	if err != nil {
		p.logger.Errorw("status_encode_failed", "order_id", u.OrderID, "err", err)
		return
	}

	n := p.registry.Fanout(u.OrderID, msg)
	if p.observer != nil {
		p.observer.ObserveFanout(u.Status, n)
	}
	p.logger.Debugw("status_fanout", "order_id", u.OrderID, "status", u.Status, "listeners", n)

	if p.forward != nil {
		p.forwardOne(ctx, u, msg)
	}
}

// forwardOne relays u without letting a slow forwarder hold up local fanout
// for longer than forwardTimeout.
func (p *Publisher) forwardOne(ctx context.Context, u order.StatusUpdate, msg []byte) {
	if p.forwardTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.forwardTimeout)
		defer cancel()
	}
	if err := p.forward.Forward(ctx, u, msg); err != nil {
		p.logger.Warnw("status_forward_failed", "order_id", u.OrderID, "status", u.Status, "err", err)
	}
}
