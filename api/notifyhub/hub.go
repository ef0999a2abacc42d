package notifyhub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

const (
	// sendBuffer frames are queued per client; beyond that frames are dropped.
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// client owns the only writer goroutine of its connection.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Int64
}

// Hub holds WebSocket connections and broadcasts notifications to all clients.
// Broadcast never blocks on a client: a slow reader loses frames instead.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*client
}

// New creates a new notify hub.
func New() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]*client),
	}
}

// register adds a WebSocket connection to the hub.
func (h *Hub) register(conn *websocket.Conn) *client {
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = cl
	return cl
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast queues the notification as JSON for every registered connection.
// Implements notify.Broadcaster.
func (h *Hub) Broadcast(notification *types.Notification) {
	if notification == nil {
		return
	}
	payload, err := sonic.Marshal(notification)
	if err != nil {
		tool.DefaultLogger.Debugf("[NotifyHub] marshal %s: %v", notification.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		select {
		case c.send <- payload:
		default:
			if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
				tool.DefaultLogger.Debugf("[NotifyHub] %s is not reading, dropped %d frames", c.conn.RemoteAddr(), n)
			}
		}
	}
}

// writePump drains the send queue and pings until done is closed or a write
// fails. Every write carries a deadline.
func (c *client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				tool.DefaultLogger.Debugf("[NotifyHub] write to %s: %v", c.conn.RemoteAddr(), err)
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
