package viewerclient

import (
	"time"

	"github.com/krobus00/quote-service/internal/entity"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	ReconnectPending
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ReconnectPending:
		return "reconnect_pending"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventPrices
	EventActiveTickers
	EventError
	EventPong
	EventReconnectScheduled
	EventMaxAttemptsReached
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventPrices:
		return "prices"
	case EventActiveTickers:
		return "active_tickers"
	case EventError:
		return "error"
	case EventPong:
		return "pong"
	case EventReconnectScheduled:
		return "reconnect_scheduled"
	case EventMaxAttemptsReached:
		return "max_attempts_reached"
	default:
		return "unknown"
	}
}

// Event is emitted by the Controller to the owning application.
type Event struct {
	Kind  EventKind
	State State

	Quotes  []entity.Quote
	Tickers []string
	Message string

	// set on EventReconnectScheduled
	Attempt int
	Delay   time.Duration

	Err error
}
