// Package messages defines the JSON envelopes exchanged over the streaming
// ask socket.
package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client to server types
const (
	TypeAsk    = "ask"
	TypeCancel = "cancel"
	TypePing   = "ping"
)

// Server to client types. Pipeline stages are sent under their stage name.
const (
	TypeConnected = "connected"
	TypePong      = "pong"
	TypeError     = "error"
)

// Socket level error codes. Pipeline failures use the chat codes.
const (
	CodeBadRequest = "bad_request"
	CodeBusy       = "busy"
)

// Envelope is a message sent to the client
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id,omitempty"`
}

// Inbound is a message read from the client. Data is decoded per type.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	ID   string          `json:"id,omitempty"`
}

// AskData is the payload of TypeAsk
type AskData struct {
	Question string `json:"question"`
}

// ConnectedData is sent once after the upgrade
type ConnectedData struct {
	ConnectionID string   `json:"connection_id"`
	Database     string   `json:"database"`
	DBType       string   `json:"db_type"`
	Tables       []string `json:"tables"`
}

// ErrorData is the payload of TypeError
type ErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	SQL   string `json:"sql,omitempty"`
}

// PongData is the payload of TypePong
type PongData struct {
	Timestamp int64 `json:"timestamp"`
}

// New stamps an envelope with the current time
func New(messageType, id string, data interface{}) Envelope {
	return Envelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		ID:        id,
	}
}

// Decode parses a raw client frame
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("decode message: %w", err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("decode message: missing type")
	}
	return in, nil
}

// DecodeAsk reads the payload of an ask message
func (in Inbound) DecodeAsk() (AskData, error) {
	var data AskData
	if len(in.Data) == 0 {
		return data, fmt.Errorf("ask message has no data")
	}
	if err := json.Unmarshal(in.Data, &data); err != nil {
		return data, fmt.Errorf("decode ask: %w", err)
	}
	return data, nil
}
