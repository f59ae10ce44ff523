// Package cdp defines the wire frames, error taxonomy, and domain metadata
// for the Chrome DevTools Protocol bridge. It carries no connection state;
// transport and pooling live in pkg/transport and pkg/bridge.
package cdp

import (
	"encoding/json"
	"strings"
)

// Request is an outgoing command frame. IDs are allocated per connection
// and are monotonic for the lifetime of that connection.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is an incoming frame correlated to a Request by ID. Exactly one
// of Result and Error is set by the browser.
type Response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the browser's error object for a failed command,
// surfaced verbatim to callers.
type ErrorPayload struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Frame is the superset shape of every incoming message. A frame with a
// non-zero ID is a command response; a frame with a Method and no ID is an
// unsolicited event.
type Frame struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// IsEvent reports whether the frame is an unsolicited event rather than a
// command response.
func (f *Frame) IsEvent() bool {
	return f.ID == 0 && f.Method != ""
}

// MethodDomain returns the domain portion of a protocol method name,
// e.g. "Network" for "Network.requestWillBeSent". Returns "" if the method
// has no domain prefix.
func MethodDomain(method string) string {
	if i := strings.IndexByte(method, '.'); i > 0 {
		return method[:i]
	}
	return ""
}
