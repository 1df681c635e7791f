package broadcast

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultWriteWait  = 5 * time.Second
	defaultSendBuffer = 256
	defaultReadLimit  = 4096
)

var (
	errConnClosed    = errors.New("connection closed")
	errSendQueueFull = errors.New("send queue full")
)

type WSConfig struct {
	WriteWait  time.Duration
	SendBuffer int
	ReadLimit  int64
	// ReadTimeout bounds the wait for any inbound frame, including ws-level pongs.
	ReadTimeout time.Duration
}

// WSHandler upgrades HTTP requests to websocket viewers of a Hub.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	cfg      WSConfig
}

func NewWSHandler(hub *Hub, cfg WSConfig) *WSHandler {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = hub.cfg.ClientTimeout
	}

	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cfg: cfg,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := newWSConn(ws, h.cfg)
	go conn.writePump()

	viewer := h.hub.Register(conn)
	conn.readPump(h.hub, viewer.ID)
}

// wsConn queues outbound frames for a single writer goroutine so Send never
// blocks on a slow peer.
type wsConn struct {
	ws   *websocket.Conn
	cfg  WSConfig
	send chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSConn(ws *websocket.Conn, cfg WSConfig) *wsConn {
	return &wsConn{
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	return nil
}

func (c *wsConn) readPump(hub *Hub, id string) {
	defer func() {
		hub.Unregister(id)
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		hub.Ack(id)
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				logrus.WithField("viewer_id", id).Info("viewer read timeout")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
				logrus.WithField("viewer_id", id).WithError(err).Warn("viewer connection lost")
			}
			return
		}

		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		hub.HandleInbound(id, raw)
	}
}

func (c *wsConn) writePump() {
	defer func() {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteWait))
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.drain()
			return
		case data := <-c.send:
			if err := c.write(data); err != nil {
				logrus.WithError(err).Debug("viewer write failed")
				return
			}
		}
	}
}

// drain flushes frames queued before Close so a final error or tickers
// message still reaches the peer.
func (c *wsConn) drain() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}
