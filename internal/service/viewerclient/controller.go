package viewerclient

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxReconnectAttempts = 3
	defaultBaseDelay            = 3 * time.Second
	defaultMaxDelay             = 10 * time.Second
	defaultBackoffFactor        = 1.5
	defaultManualReconnectDelay = time.Second
	defaultHandshakeTimeout     = 10 * time.Second
	defaultEventBuffer          = 256
	defaultInboxSize            = 64
)

type Config struct {
	URL                  string
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	BackoffFactor        float64
	ManualReconnectDelay time.Duration
	HandshakeTimeout     time.Duration
	// PingInterval enables a client ping while connected. Zero disables it.
	PingInterval time.Duration
	EventBuffer  int
}

// Timer is the handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Controller)

func WithDialer(dialer Dialer) Option {
	return func(c *Controller) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

func WithAfterFunc(afterFunc AfterFunc) Option {
	return func(c *Controller) {
		if afterFunc != nil {
			c.afterFunc = afterFunc
		}
	}
}

// Controller keeps one connection to the quote gateway alive. All transitions
// run on the goroutine started by Run, so they are never concurrent.
type Controller struct {
	cfg       Config
	dialer    Dialer
	afterFunc AfterFunc

	inbox   chan func()
	events  chan Event
	stopped chan struct{}
	current atomic.Int32

	// owned by the Run goroutine
	ctx        context.Context
	state      State
	attempts   int
	generation uint64
	conn       Conn
	retryTimer Timer
	retryID    uint64
	graceTimer Timer
	graceID    uint64
	pingTimer  Timer
}

func NewController(cfg Config, opts ...Option) *Controller {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = defaultBackoffFactor
	}
	if cfg.ManualReconnectDelay <= 0 {
		cfg.ManualReconnectDelay = defaultManualReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	c := &Controller{
		cfg:    cfg,
		dialer: NewWebsocketDialer(cfg.HandshakeTimeout),
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		inbox:   make(chan func(), defaultInboxSize),
		events:  make(chan Event, cfg.EventBuffer),
		stopped: make(chan struct{}),
		state:   Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Events is closed once Run returns.
func (c *Controller) Events() <-chan Event {
	return c.events
}

func (c *Controller) State() State {
	return State(c.current.Load())
}

func (c *Controller) Connect() {
	c.post(c.connect)
}

func (c *Controller) Disconnect() {
	c.post(c.disconnect)
}

// ManualReconnect resets the attempt counter, drops the current connection and
// connects again after the grace delay.
func (c *Controller) ManualReconnect() {
	c.post(c.manualReconnect)
}

// Run processes commands until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	c.ctx = ctx
	defer func() {
		c.stopTimers()
		c.closeConn()
		c.setState(Disconnected)
		close(c.stopped)
		close(c.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.inbox:
			fn()
		}
	}
}

func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.stopped:
	}
}

func (c *Controller) connect() {
	switch c.state {
	case Connecting, Connected:
		return
	case ReconnectPending:
		c.stopRetry()
	}

	c.dial()
}

func (c *Controller) dial() {
	c.generation++
	gen := c.generation
	c.setState(Connecting)

	ctx := c.ctx
	url := c.cfg.URL
	go func() {
		conn, err := c.dialer.Dial(ctx, url)
		c.post(func() { c.onDialed(gen, conn, err) })
	}()
}

func (c *Controller) onDialed(gen uint64, conn Conn, err error) {
	if gen != c.generation || c.state != Connecting {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"url":     c.cfg.URL,
			"attempt": c.attempts,
		}).WithError(err).Warn("quote gateway handshake failed")
		c.onLoss(err)
		return
	}

	c.conn = conn
	c.attempts = 0
	c.setState(Connected)
	logrus.WithField("url", c.cfg.URL).Info("connected to quote gateway")

	go c.readLoop(gen, conn)
	c.schedulePing(gen)
}

func (c *Controller) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.post(func() { c.onReadError(gen, err) })
			return
		}

		c.post(func() { c.onFrame(gen, data) })
	}
}

func (c *Controller) onReadError(gen uint64, err error) {
	if gen != c.generation || c.state != Connected {
		return
	}

	logrus.WithError(err).Warn("quote gateway connection lost")
	c.onLoss(err)
}

// onLoss handles an involuntary loss of the connection or a failed handshake.
func (c *Controller) onLoss(cause error) {
	c.stopPing()
	c.closeConn()

	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.setState(Failed)
		err := fmt.Errorf("%w: %d attempts: %w", entity.ErrMaxReconnectAttemptsExceeded, c.attempts, cause)
		logrus.WithError(err).Error("giving up reconnecting to quote gateway")
		c.emit(Event{Kind: EventMaxAttemptsReached, State: Failed, Err: err})
		return
	}

	c.attempts++
	delay := reconnectDelay(c.attempts, c.cfg.BaseDelay, c.cfg.MaxDelay, c.cfg.BackoffFactor)
	c.setState(ReconnectPending)

	c.retryID++
	id := c.retryID
	c.retryTimer = c.afterFunc(delay, func() {
		c.post(func() { c.onRetry(id) })
	})

	logrus.WithFields(logrus.Fields{
		"attempt":  c.attempts,
		"max":      c.cfg.MaxReconnectAttempts,
		"retry_in": delay.String(),
	}).Info("reconnect scheduled")
	c.emit(Event{Kind: EventReconnectScheduled, State: ReconnectPending, Attempt: c.attempts, Delay: delay, Err: cause})
}

func (c *Controller) onRetry(id uint64) {
	if id != c.retryID || c.state != ReconnectPending {
		return
	}

	c.retryTimer = nil
	c.dial()
}

func (c *Controller) disconnect() {
	c.stopTimers()
	c.generation++
	c.closeConn()
	c.setState(Disconnected)
}

func (c *Controller) manualReconnect() {
	c.attempts = 0
	c.disconnect()

	c.graceID++
	id := c.graceID
	c.graceTimer = c.afterFunc(c.cfg.ManualReconnectDelay, func() {
		c.post(func() { c.onGrace(id) })
	})
}

func (c *Controller) onGrace(id uint64) {
	if id != c.graceID {
		return
	}

	c.graceTimer = nil
	c.connect()
}

func (c *Controller) schedulePing(gen uint64) {
	if c.cfg.PingInterval <= 0 {
		return
	}

	c.pingTimer = c.afterFunc(c.cfg.PingInterval, func() {
		c.post(func() { c.onPing(gen) })
	})
}

func (c *Controller) onPing(gen uint64) {
	if gen != c.generation || c.state != Connected {
		return
	}

	if err := c.write(entity.NewPingMessage()); err != nil {
		logrus.WithError(err).Warn("failed to send ping")
	}
	c.schedulePing(gen)
}

func (c *Controller) onFrame(gen uint64, data []byte) {
	if gen != c.generation || c.state != Connected {
		return
	}

	msg, err := entity.DecodeMessage(data)
	if err != nil {
		logrus.WithError(err).Warn("dropping malformed message from quote gateway")
		return
	}

	switch msg.Type {
	case constant.MessageTypePrices:
		quotes, err := msg.Quotes()
		if err != nil {
			logrus.WithError(err).Warn("dropping malformed prices message")
			return
		}
		c.emit(Event{Kind: EventPrices, State: c.state, Quotes: quotes})
	case constant.MessageTypeActiveTickers:
		tickers, err := msg.Tickers()
		if err != nil {
			logrus.WithError(err).Warn("dropping malformed activeTickers message")
			return
		}
		c.emit(Event{Kind: EventActiveTickers, State: c.state, Tickers: tickers})
	case constant.MessageTypeError:
		text, err := msg.ErrorText()
		if err != nil {
			logrus.WithError(err).Warn("dropping malformed error message")
			return
		}
		c.emit(Event{Kind: EventError, State: c.state, Message: text})
	case constant.MessageTypePong:
		c.emit(Event{Kind: EventPong, State: c.state})
	case constant.MessageTypePing:
		if err := c.write(entity.NewPongMessage()); err != nil {
			logrus.WithError(err).Warn("failed to answer ping")
		}
	default:
		logrus.WithField("type", msg.Type).Warn("dropping message of unknown type")
	}
}

func (c *Controller) write(msg entity.Message) error {
	if c.conn == nil {
		return nil
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}

	c.state = s
	c.current.Store(int32(s))
	c.emit(Event{Kind: EventStateChanged, State: s})
}

// emit never blocks the actor; events are dropped when the application falls behind.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		logrus.WithField("event", ev.Kind.String()).Warn("viewer event dropped, consumer is too slow")
	}
}

func (c *Controller) closeConn() {
	if c.conn == nil {
		return
	}

	_ = c.conn.Close()
	c.conn = nil
}

func (c *Controller) stopRetry() {
	c.retryID++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Controller) stopPing() {
	if c.pingTimer != nil {
		c.pingTimer.Stop()
		c.pingTimer = nil
	}
}

func (c *Controller) stopTimers() {
	c.stopRetry()
	c.stopPing()

	c.graceID++
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}

// reconnectDelay returns min(base * factor^(attempt-1), max) for attempt >= 1.
func reconnectDelay(attempt int, base, max time.Duration, factor float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(base) * math.Pow(factor, float64(attempt-1))
	if delay > float64(max) {
		return max
	}

	return time.Duration(delay)
}
