package viewerclient

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is an open channel to the quote gateway.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

const defaultWriteWait = 5 * time.Second

type websocketDialer struct {
	dialer    *websocket.Dialer
	writeWait time.Duration
}

// NewWebsocketDialer dials the gateway with gorilla/websocket.
func NewWebsocketDialer(handshakeTimeout time.Duration) Dialer {
	return &websocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
		writeWait: defaultWriteWait,
	}
}

func (d *websocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	ws, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	return &websocketConn{ws: ws, writeWait: d.writeWait}, nil
}

type websocketConn struct {
	ws        *websocket.Conn
	writeWait time.Duration
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *websocketConn) WriteMessage(data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}
