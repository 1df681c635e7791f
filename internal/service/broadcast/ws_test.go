package broadcast

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialViewer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readMessage(t *testing.T, c *websocket.Conn) entity.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := c.ReadMessage()
	require.NoError(t, err)
	msg, err := entity.DecodeMessage(raw)
	require.NoError(t, err)
	return msg
}

func TestWSHandler_E2E(t *testing.T) {
	hub := NewHub(staticLister{"BTCUSD"}, Config{})
	srv := httptest.NewServer(NewWSHandler(hub, WSConfig{}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	first := dialViewer(t, wsURL)
	second := dialViewer(t, wsURL)

	for _, c := range []*websocket.Conn{first, second} {
		msg := readMessage(t, c)
		assert.Equal(t, constant.MessageTypeActiveTickers, msg.Type)
	}
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(context.Background(), entity.NewPricesMessage([]entity.Quote{{
		Ticker:      "BTCUSD",
		Price:       decimal.RequireFromString("65000.12"),
		RetrievedAt: time.Now(),
	}}))

	for _, c := range []*websocket.Conn{first, second} {
		msg := readMessage(t, c)
		require.Equal(t, constant.MessageTypePrices, msg.Type)
		quotes, err := msg.Quotes()
		require.NoError(t, err)
		require.Len(t, quotes, 1)
		assert.Equal(t, 65000.12, quotes[0].Price.InexactFloat64())
	}

	// malformed input is answered and the connection survives
	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, constant.MessageTypeError, readMessage(t, first).Type)

	ping, err := entity.NewPingMessage().Encode()
	require.NoError(t, err)
	require.NoError(t, first.WriteMessage(websocket.TextMessage, ping))
	assert.Equal(t, constant.MessageTypePong, readMessage(t, first).Type)
	assert.Equal(t, 2, hub.Count())

	// a viewer that goes away is unregistered
	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}
