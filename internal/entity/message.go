package entity

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/quote-service/internal/constant"
)

// Message is the envelope of every frame exchanged with viewers.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewMessage(messageType string, data any) (Message, error) {
	msg := Message{
		Type:      messageType,
		Timestamp: time.Now().UnixMilli(),
	}
	if data == nil {
		return msg, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", messageType, err)
	}
	msg.Data = raw

	return msg, nil
}

func NewPricesMessage(quotes []Quote) Message {
	// []QuotePayload holds only strings, finite floats and ints, it always encodes
	msg, _ := NewMessage(constant.MessageTypePrices, QuotesToPayloads(quotes))
	return msg
}

func NewActiveTickersMessage(tickers []string) Message {
	if tickers == nil {
		tickers = []string{}
	}

	msg, _ := NewMessage(constant.MessageTypeActiveTickers, tickers)
	return msg
}

func NewErrorMessage(text string) Message {
	msg, _ := NewMessage(constant.MessageTypeError, ErrorPayload{Message: text})
	return msg
}

func NewPingMessage() Message {
	msg, _ := NewMessage(constant.MessageTypePing, nil)
	return msg
}

func NewPongMessage() Message {
	msg, _ := NewMessage(constant.MessageTypePong, nil)
	return msg
}

func NewGetTickersMessage() Message {
	msg, _ := NewMessage(constant.MessageTypeGetTickers, nil)
	return msg
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a raw frame. Frames that are not JSON objects or carry no
// type are rejected with ErrMalformedMessage.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	return msg, nil
}

func (m Message) Quotes() ([]Quote, error) {
	var payloads []QuotePayload
	if err := json.Unmarshal(m.Data, &payloads); err != nil {
		return nil, fmt.Errorf("%w: prices: %v", ErrMalformedMessage, err)
	}

	quotes := make([]Quote, 0, len(payloads))
	for _, p := range payloads {
		quotes = append(quotes, p.ToQuote())
	}

	return quotes, nil
}

func (m Message) Tickers() ([]string, error) {
	var tickers []string
	if err := json.Unmarshal(m.Data, &tickers); err != nil {
		return nil, fmt.Errorf("%w: activeTickers: %v", ErrMalformedMessage, err)
	}

	return tickers, nil
}

func (m Message) ErrorText() (string, error) {
	var payload ErrorPayload
	if err := json.Unmarshal(m.Data, &payload); err != nil {
		return "", fmt.Errorf("%w: error: %v", ErrMalformedMessage, err)
	}

	return payload.Message, nil
}
