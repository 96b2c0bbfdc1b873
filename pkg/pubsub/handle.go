package pubsub

import "sync"

// ChanHandle is a buffered in-process listener. Messages that do not fit in
// the buffer are dropped.
type ChanHandle struct {
	ch     chan []byte
	mu     sync.Mutex
	closed bool
}

func NewChanHandle(buffer int) *ChanHandle {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChanHandle{ch: make(chan []byte, buffer)}
}

func (c *ChanHandle) Deliver(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- msg:
		return true
	default:
		return false
	}
}

// C returns the receive side of the handle.
func (c *ChanHandle) C() <-chan []byte { return c.ch }

// Close stops delivery and closes C. Safe to call more than once.
func (c *ChanHandle) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
