// Package gameclient is a reconnecting client for the BFF game socket.
//
// A Client keeps one WebSocket to /play open for as long as its Run context
// lives. Frames sent while disconnected wait in an outbound queue; frames
// that arrive before anyone subscribes wait in an inbound queue. Reconnects
// back off exponentially up to a cap, and stop for good when the server
// sends an error frame with retry:false.
package gameclient

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/textadventure/web/internal/platform/errors"
)

// Outbound frame types.
const (
	TypeGame                = "game"
	TypePing                = "ping"
	TypeAutocompleteSuggest = "autocomplete_suggest"
	TypeAutocompleteGet     = "autocomplete_get"
)

// Inbound frame types.
const (
	TypePong         = "pong"
	TypeError        = "error"
	TypeChat         = "chat"
	TypeSuggestion   = "suggestion"
	TypeAutocomplete = "autocomplete"
)

// Frame is one JSON message on the game socket.
type Frame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Retry *bool           `json:"retry,omitempty"`
}

// NewFrame builds a frame, encoding data as JSON. A nil data omits the field.
func NewFrame(frameType string, data any) (Frame, error) {
	frame := Frame{Type: frameType}
	if data == nil {
		return frame, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s frame data: %w", frameType, err)
	}
	frame.Data = payload
	return frame, nil
}

// Text returns Data as a string: JSON strings are unquoted, anything else is
// returned as raw JSON.
func (f Frame) Text() string {
	if len(f.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Data, &s); err == nil {
		return s
	}
	return string(f.Data)
}

// StopsReconnect reports whether the frame tells the client to give up.
func (f Frame) StopsReconnect() bool {
	return f.Type == TypeError && f.Retry != nil && !*f.Retry
}

// DecodeFrame parses one inbound message. Failures carry PROTOCOL_ERROR.
func DecodeFrame(payload []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return Frame{}, apperrors.Wrap(apperrors.CodeProtocolError, "decode frame", err)
	}
	if strings.TrimSpace(frame.Type) == "" {
		return Frame{}, apperrors.New(apperrors.CodeProtocolError, "frame has no type")
	}
	return frame, nil
}
