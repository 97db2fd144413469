package helpdesk

import "fmt"

// ErrorCode classifies helpdesk client failures.
type ErrorCode string

const (
	// ErrorTransport covers network and timeout failures reaching the helpdesk.
	ErrorTransport ErrorCode = "TRANSPORT"
	// ErrorProtocol covers unexpected status codes or unparseable bodies.
	ErrorProtocol ErrorCode = "PROTOCOL"
)

// Error is a classified helpdesk client failure.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("helpdesk: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("helpdesk: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func transportError(reason string, err error) *Error {
	return &Error{Code: ErrorTransport, Reason: reason, Err: err}
}

func protocolError(reason string, err error) *Error {
	return &Error{Code: ErrorProtocol, Reason: reason, Err: err}
}
