package orchestrator

import (
	"errors"
	"fmt"
)

// Session failures. None of them is retried.
var (
	ErrProtocol                 = errors.New("model endpoint protocol error")
	ErrContentShape             = errors.New("unexpected message content shape")
	ErrArgumentDecode           = errors.New("decode function call arguments")
	ErrDuplicateTerminalMessage = errors.New("duplicate terminal message")
	ErrLiveness                 = errors.New("round limit exceeded")
	ErrSessionClosed            = errors.New("session already run")
)

// ProtocolError reports a failed exchange with the model endpoint: a
// transport failure, a non-200 status, an error object in the body or a
// body that does not parse. errors.Is(err, ErrProtocol) matches it.
type ProtocolError struct {
	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := "model endpoint"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" returned %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }
