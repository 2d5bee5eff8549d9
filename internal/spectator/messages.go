// Package spectator streams persisted frames of a match to viewers, first
// replaying what is stored and then following the live broadcast.
package spectator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types sent to viewers.
const (
	TypeFrame   = "frame"
	TypeGameEnd = "game_end"
	TypeError   = "error"
)

// Error texts viewers may see.
const (
	MsgNotFound  = "Game not found"
	MsgInternal  = "Internal server error"
	MsgLagged    = "Connection lagged, please reconnect"
	MsgMalformed = "Malformed frame"
)

// ErrMalformedFrame is wrapped by ProtocolError when a stored frame fails to decode.
var ErrMalformedFrame = errors.New("spectator: malformed stored frame")

// Message is the envelope of every WebSocket message.
type Message struct {
	Type string          `json:"Type"`
	Data json.RawMessage `json:"Data"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Message string `json:"message"`
}

// EndData is the payload of a game_end message.
type EndData struct {
	Status string `json:"Status,omitempty"`
}

// ProtocolError reports a stream that had to be cut because the stored data
// could not be sent as-is.
type ProtocolError struct {
	MatchID string
	Turn    int
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("spectator: match %s turn %d: %v", e.MatchID, e.Turn, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewFrameMessage wraps an encoded frame.
func NewFrameMessage(data json.RawMessage) Message {
	return Message{Type: TypeFrame, Data: data}
}

// NewEndMessage announces the end of the match.
func NewEndMessage(status string) Message {
	data, _ := json.Marshal(EndData{Status: status})
	return Message{Type: TypeGameEnd, Data: data}
}

// NewErrorMessage carries a human readable error.
func NewErrorMessage(text string) Message {
	data, _ := json.Marshal(ErrorData{Message: text})
	return Message{Type: TypeError, Data: data}
}
