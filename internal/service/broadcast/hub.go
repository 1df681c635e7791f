package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/krobus00/quote-service/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	defaultHeartbeatInterval = 60 * time.Second
	defaultClientTimeout     = 120 * time.Second
)

// Conn is the outbound half of a viewer channel. Send must not block; a
// failure means the channel is unusable.
type Conn interface {
	Send(data []byte) error
	Close() error
}

type TickerLister interface {
	List() []string
}

type Viewer struct {
	ID string

	conn      Conn
	lastAck   atomic.Int64 // unix nano
	closeOnce sync.Once
}

func (v *Viewer) LastAck() time.Time {
	return time.Unix(0, v.lastAck.Load())
}

func (v *Viewer) close() {
	v.closeOnce.Do(func() {
		_ = v.conn.Close()
	})
}

type Config struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
}

type Option func(*Hub)

func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// Hub owns the connected viewers and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	viewers map[string]*Viewer

	lister TickerLister
	cfg    Config
	now    func() time.Time
}

func NewHub(lister TickerLister, cfg Config, opts ...Option) *Hub {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = defaultClientTimeout
	}

	h := &Hub{
		viewers: make(map[string]*Viewer),
		lister:  lister,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Register adds conn as a viewer and sends it the current tracked list.
func (h *Hub) Register(conn Conn) *Viewer {
	v := &Viewer{ID: uuid.NewString(), conn: conn}
	v.lastAck.Store(h.now().UnixNano())

	h.mu.Lock()
	h.viewers[v.ID] = v
	count := len(h.viewers)
	h.mu.Unlock()

	metrics.Viewers.Set(float64(count))
	logrus.WithFields(logrus.Fields{
		"viewer_id": v.ID,
		"viewers":   count,
	}).Info("viewer registered")

	h.SendTo(v.ID, entity.NewActiveTickersMessage(h.tickers()))

	return v
}

// Unregister removes the viewer and closes its channel. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.evict(id, "unregister", nil)
}

func (h *Hub) evict(id string, reason string, cause error) bool {
	h.mu.Lock()
	v, ok := h.viewers[id]
	if ok {
		delete(h.viewers, id)
	}
	count := len(h.viewers)
	h.mu.Unlock()

	if !ok {
		return false
	}

	v.close()
	metrics.Viewers.Set(float64(count))
	metrics.OnEvict(reason)

	entry := logrus.WithFields(logrus.Fields{
		"viewer_id": id,
		"reason":    reason,
		"viewers":   count,
	})
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Info("viewer removed")

	return true
}

// Broadcast sends msg to every viewer. A viewer whose send fails is removed
// without affecting the others.
func (h *Hub) Broadcast(_ context.Context, msg entity.Message) {
	data, err := msg.Encode()
	if err != nil {
		logrus.WithField("type", msg.Type).WithError(err).Error("failed to encode broadcast message")
		return
	}

	for _, v := range h.snapshot() {
		h.send(v, msg.Type, data)
	}
}

// BroadcastTickers announces the tracked list to every viewer.
func (h *Hub) BroadcastTickers(tickers []string) {
	h.Broadcast(context.Background(), entity.NewActiveTickersMessage(tickers))
}

// SendTo sends msg to a single viewer. It reports false when the viewer is gone
// or was removed because the send failed.
func (h *Hub) SendTo(id string, msg entity.Message) bool {
	h.mu.RLock()
	v, ok := h.viewers[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := msg.Encode()
	if err != nil {
		logrus.WithField("type", msg.Type).WithError(err).Error("failed to encode message")
		return false
	}

	return h.send(v, msg.Type, data)
}

func (h *Hub) send(v *Viewer, messageType string, data []byte) bool {
	if err := v.conn.Send(data); err != nil {
		h.evict(v.ID, "send_failure", fmt.Errorf("%w: %w", entity.ErrViewerSendFailure, err))
		return false
	}

	metrics.ObserveSend(messageType, len(data))
	return true
}

// Ack records a heartbeat acknowledgement from the viewer.
func (h *Hub) Ack(id string) {
	h.mu.RLock()
	v, ok := h.viewers[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	v.lastAck.Store(h.now().UnixNano())
}

// CheckHeartbeats evicts viewers that have not acknowledged within ClientTimeout
// and probes the rest. It returns the evicted ids.
func (h *Hub) CheckHeartbeats() []string {
	now := h.now()

	var evicted []string
	alive := make([]*Viewer, 0)
	for _, v := range h.snapshot() {
		if now.Sub(v.LastAck()) > h.cfg.ClientTimeout {
			if h.evict(v.ID, "heartbeat_timeout", entity.ErrHeartbeatTimeout) {
				evicted = append(evicted, v.ID)
			}
			continue
		}
		alive = append(alive, v)
	}

	ping := entity.NewPingMessage()
	data, err := ping.Encode()
	if err != nil {
		return evicted
	}
	for _, v := range alive {
		h.send(v, constant.MessageTypePing, data)
	}

	return evicted
}

// Run drives the heartbeat loop until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := h.CheckHeartbeats()
			if len(evicted) > 0 {
				logrus.WithField("evicted", len(evicted)).Info("heartbeat check evicted viewers")
			}
		}
	}
}

// HandleInbound processes one frame received from a viewer. Bad frames are
// answered with an error message and the viewer stays connected.
func (h *Hub) HandleInbound(id string, raw []byte) {
	msg, err := entity.DecodeMessage(raw)
	if err != nil {
		logrus.WithField("viewer_id", id).WithError(err).Debug("malformed viewer message")
		h.SendTo(id, entity.NewErrorMessage("malformed message"))
		return
	}

	switch msg.Type {
	case constant.MessageTypePing:
		h.Ack(id)
		h.SendTo(id, entity.NewPongMessage())
	case constant.MessageTypePong:
		h.Ack(id)
	case constant.MessageTypeGetTickers:
		h.SendTo(id, entity.NewActiveTickersMessage(h.tickers()))
	default:
		h.SendTo(id, entity.NewErrorMessage(fmt.Sprintf("unknown message type: %s", msg.Type)))
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Close removes every viewer.
func (h *Hub) Close() {
	for _, v := range h.snapshot() {
		h.evict(v.ID, "shutdown", nil)
	}
}

func (h *Hub) snapshot() []*Viewer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	viewers := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}

	return viewers
}

func (h *Hub) tickers() []string {
	if h.lister == nil {
		return []string{}
	}

	return h.lister.List()
}
