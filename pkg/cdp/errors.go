package cdp

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted means no connection became idle within the acquire
	// deadline. Recoverable; callers may retry later.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrDomainUnavailable means domain activation failed on at least one
	// live connection and the whole domain was rolled back to disabled.
	ErrDomainUnavailable = errors.New("protocol domain unavailable")

	// ErrCommandTimeout means no matching reply arrived before the deadline.
	// The connection remains usable; a stray late reply is discarded.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrTransportDead means the underlying socket failed. Handled inside
	// the pool via reconnect; callers only ever observe ErrPoolExhausted.
	ErrTransportDead = errors.New("transport connection dead")

	// ErrBridgeClosed is returned from every operation after shutdown.
	ErrBridgeClosed = errors.New("bridge closed")
)

// CommandError wraps the browser's error payload for a failed command.
// It is passed through unmodified; only the caller knows whether the
// specific failure is fatal to its operation.
type CommandError struct {
	Method  string
	Payload ErrorPayload
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("protocol error [%d] on %s: %s", e.Payload.Code, e.Method, e.Payload.Message)
}

// DomainError reports which domain failed to activate and why.
type DomainError struct {
	Domain string
	Err    error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain %s unavailable: %v", e.Domain, e.Err)
}

func (e *DomainError) Unwrap() error {
	return ErrDomainUnavailable
}

// IsProtocolError returns true if the error carries a browser error payload.
func IsProtocolError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// IsRetryable returns true if the error might succeed on a later attempt
// without operator intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrCommandTimeout) ||
		errors.Is(err, ErrTransportDead)
}
