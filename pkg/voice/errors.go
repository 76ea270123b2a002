package voice

import (
	"errors"
	"fmt"
)

// Code classifies voice pipeline failures.
type Code string

// Error codes.
const (
	// CodePermission means the microphone could not be acquired.
	CodePermission Code = "permission"
	// CodeConnection means the transport failed to open or failed mid-session.
	CodeConnection Code = "connection"
	// CodeMalformedAudio means an inbound audio chunk could not be decoded.
	CodeMalformedAudio Code = "malformed_audio"
	// CodeMissingCredential means no API credential is configured.
	CodeMissingCredential Code = "missing_credential"
)

// User-facing messages stored in the session error slot.
const (
	MessageStartFailed    = "Could not access microphone or connect to service."
	MessageConnectionLost = "Voice connection error. Please refresh and try again."
)

var (
	// ErrSessionActive is returned by Start when the session is not idle or
	// a stopped start attempt is still unwinding.
	ErrSessionActive = errors.New("voice: session already active")

	// ErrStopped is returned by Start when Stop was called before the
	// connection was established.
	ErrStopped = errors.New("voice: session stopped")

	// ErrCaptureEnded is the cause recorded when the microphone stream ends
	// while the session is still running.
	ErrCaptureEnded = errors.New("voice: microphone stream ended")
)

// Error is a classified voice pipeline error. Message is suitable for
// display; Err carries the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// NewError creates an Error.
func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("voice: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("voice: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError attempts to cast an error to *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsPermission reports whether err is a microphone permission failure.
func IsPermission(err error) bool {
	return hasCode(err, CodePermission)
}

// IsConnection reports whether err is a transport failure.
func IsConnection(err error) bool {
	return hasCode(err, CodeConnection)
}

// IsMalformedAudio reports whether err is an audio decode failure.
func IsMalformedAudio(err error) bool {
	return hasCode(err, CodeMalformedAudio)
}

// IsMissingCredential reports whether err is a missing credential failure.
func IsMissingCredential(err error) bool {
	return hasCode(err, CodeMissingCredential)
}

func hasCode(err error, code Code) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}
