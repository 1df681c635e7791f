package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	closed  int
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) messages(t *testing.T) []entity.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]entity.Message, 0, len(c.frames))
	for _, f := range c.frames {
		msg, err := entity.DecodeMessage(f)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) last(t *testing.T) entity.Message {
	t.Helper()
	msgs := c.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type staticLister []string

func (l staticLister) List() []string { return l }

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestHub_RegisterSendsActiveTickers(t *testing.T) {
	hub := NewHub(staticLister{"BTCUSD", "ETHUSD"}, Config{})
	conn := &fakeConn{}

	viewer := hub.Register(conn)
	require.NotEmpty(t, viewer.ID)
	assert.Equal(t, 1, hub.Count())

	msg := conn.last(t)
	assert.Equal(t, constant.MessageTypeActiveTickers, msg.Type)
	tickers, err := msg.Tickers()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSD", "ETHUSD"}, tickers)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nil, Config{})
	conn := &fakeConn{}
	viewer := hub.Register(conn)

	hub.Unregister(viewer.ID)
	hub.Unregister(viewer.ID)
	hub.Unregister("unknown")

	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 1, conn.closeCount())
}

func TestHub_BroadcastIsolatesFailingViewer(t *testing.T) {
	hub := NewHub(nil, Config{})

	healthy := make([]*fakeConn, 0, 3)
	for range 3 {
		c := &fakeConn{}
		healthy = append(healthy, c)
		hub.Register(c)
	}

	broken := &fakeConn{}
	brokenViewer := hub.Register(broken)
	broken.mu.Lock()
	broken.sendErr = errors.New("broken pipe")
	broken.mu.Unlock()

	msg := entity.NewPricesMessage([]entity.Quote{{Ticker: "BTCUSD", Price: decimal.RequireFromString("65000.12")}})
	hub.Broadcast(context.Background(), msg)

	for _, c := range healthy {
		got := c.last(t)
		assert.Equal(t, constant.MessageTypePrices, got.Type)
	}
	assert.Equal(t, 3, hub.Count())
	assert.Equal(t, 1, broken.closeCount())
	assert.False(t, hub.SendTo(brokenViewer.ID, entity.NewPingMessage()))

	hub.Broadcast(context.Background(), entity.NewPingMessage())
	for _, c := range healthy {
		assert.Equal(t, constant.MessageTypePing, c.last(t).Type)
	}
}

func TestHub_CheckHeartbeats(t *testing.T) {
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	hub := NewHub(nil, Config{ClientTimeout: 120 * time.Second}, WithClock(clock.Now))

	silent := &fakeConn{}
	silentViewer := hub.Register(silent)
	responsive := &fakeConn{}
	responsiveViewer := hub.Register(responsive)

	clock.Advance(60 * time.Second)
	assert.Empty(t, hub.CheckHeartbeats())
	assert.Equal(t, constant.MessageTypePing, silent.last(t).Type)

	hub.HandleInbound(responsiveViewer.ID, mustEncode(t, entity.NewPongMessage()))

	clock.Advance(61 * time.Second)
	evicted := hub.CheckHeartbeats()

	assert.Equal(t, []string{silentViewer.ID}, evicted)
	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, 1, silent.closeCount())

	framesBefore := len(silent.messages(t))
	hub.Broadcast(context.Background(), entity.NewPingMessage())
	assert.Len(t, silent.messages(t), framesBefore, "evicted viewer receives nothing")
	assert.Equal(t, constant.MessageTypePing, responsive.last(t).Type)
}

func TestHub_HandleInbound(t *testing.T) {
	hub := NewHub(staticLister{"BTCUSD"}, Config{})
	conn := &fakeConn{}
	viewer := hub.Register(conn)

	t.Run("malformed json keeps the viewer", func(t *testing.T) {
		hub.HandleInbound(viewer.ID, []byte("{oops"))

		msg := conn.last(t)
		assert.Equal(t, constant.MessageTypeError, msg.Type)
		text, err := msg.ErrorText()
		require.NoError(t, err)
		assert.NotEmpty(t, text)
		assert.Equal(t, 1, hub.Count())
		assert.Equal(t, 0, conn.closeCount())
	})

	t.Run("unknown type", func(t *testing.T) {
		hub.HandleInbound(viewer.ID, []byte(`{"type":"subscribe"}`))
		assert.Equal(t, constant.MessageTypeError, conn.last(t).Type)
	})

	t.Run("ping answered with pong", func(t *testing.T) {
		hub.HandleInbound(viewer.ID, mustEncode(t, entity.NewPingMessage()))
		assert.Equal(t, constant.MessageTypePong, conn.last(t).Type)
	})

	t.Run("getTickers", func(t *testing.T) {
		hub.HandleInbound(viewer.ID, mustEncode(t, entity.NewGetTickersMessage()))
		msg := conn.last(t)
		assert.Equal(t, constant.MessageTypeActiveTickers, msg.Type)
		tickers, err := msg.Tickers()
		require.NoError(t, err)
		assert.Equal(t, []string{"BTCUSD"}, tickers)
	})
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(nil, Config{})
	a, b := &fakeConn{}, &fakeConn{}
	hub.Register(a)
	hub.Register(b)

	hub.Close()

	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 1, a.closeCount())
	assert.Equal(t, 1, b.closeCount())
}

func mustEncode(t *testing.T, msg entity.Message) []byte {
	t.Helper()
	raw, err := msg.Encode()
	require.NoError(t, err)
	return raw
}
