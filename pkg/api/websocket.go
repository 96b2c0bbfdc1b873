package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/pubsub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

var _ pubsub.Handle = (*Client)(nil)

// Client is one WebSocket listener attached to a single order.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	id      string
	orderID string
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
}

// Deliver queues msg for the write pump. A full buffer drops the message.
func (c *Client) Deliver(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Debugw("ws_send_buffer_full", "client", c.id, "order_id", c.orderID)
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump watches the connection for close and keeps the read deadline
// fresh. Listeners have nothing to say; inbound frames are discarded.
func (c *Client) readPump(registry *pubsub.Registry) {
	defer func() {
		registry.Unsubscribe(c.orderID, c)
		c.close()
		c.conn.Close()
		c.logger.Infow("ws_disconnected", "client", c.id, "order_id", c.orderID)
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warnw("ws_read_error", "client", c.id, "err", err)
			}
			return
		}
	}
}

// writePump writes each status update as its own text frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades GET /ws?orderId=<id> and subscribes the
// connection to that order until it closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "order_id", orderID, "err", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, s.opts.SendBuffer),
		id:      conn.RemoteAddr().String(),
		orderID: orderID,
		logger:  s.logger,
	}
	s.registry.Subscribe(orderID, client)
	s.logger.Infow("ws_connected",
		"client", client.id,
		"order_id", orderID,
		"listeners", s.registry.Count(orderID))

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump(s.registry)
}
