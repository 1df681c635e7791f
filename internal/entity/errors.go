package entity

import "errors"

var (
	ErrInvalidIdentifier            = errors.New("invalid instrument identifier")
	ErrNotTracked                   = errors.New("instrument is not tracked")
	ErrSourceUnavailable            = errors.New("quote source unavailable")
	ErrInstrumentNotFound           = errors.New("instrument not found")
	ErrRetrievalTimeout             = errors.New("quote retrieval timeout")
	ErrRetrievalFailure             = errors.New("quote retrieval failure")
	ErrViewerSendFailure            = errors.New("viewer send failure")
	ErrHeartbeatTimeout             = errors.New("viewer heartbeat timeout")
	ErrMaxReconnectAttemptsExceeded = errors.New("max reconnect attempts reached")
	ErrMalformedMessage             = errors.New("malformed message")
)
