// Package buildproto defines the messages exchanged between a remote build
// client and a build server over socket.io.
package buildproto

import (
	"encoding/json"
	"fmt"
)

// Event names.
const (
	// EventCompile carries a CompileRequest from client to server.
	EventCompile = "compile"
	// EventCompiled carries a CompileReply from server to client.
	EventCompiled = "compiled"
	// EventAbort asks the server to cancel the build in flight.
	EventAbort = "abort"
)

// DefaultPath is the HTTP path the socket.io endpoint is served on.
const DefaultPath = "/socket.io/"

// CompileRequest asks for the image of Text.
type CompileRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// CompileReply answers the request with the same ID.
type CompileReply struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	AGFI  string `json:"agfi,omitempty"`
	AFI   string `json:"afi,omitempty"`
	Error string `json:"error,omitempty"`
}

// Decode converts the first argument of a socket.io event into v. Event
// payloads arrive as generic JSON values.
func Decode(args []any, v any) error {
	if len(args) == 0 {
		return fmt.Errorf("event carries no payload")
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return fmt.Errorf("failed to re-encode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
