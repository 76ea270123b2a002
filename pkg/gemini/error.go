package gemini

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// Error is a failure reported by the Gemini API, either as an HTTP error
// response or as a websocket close frame.
type Error struct {
	// Op is the operation that failed ("chat", "image", "live").
	Op string

	// Code is the HTTP status code, or the websocket close code for live
	// connections.
	Code int

	// Status is the API status string (e.g. "INVALID_ARGUMENT").
	Status string

	// Message is the server message.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %s: %d %s: %s", e.Op, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: %s: %d: %s", e.Op, e.Code, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		websocket.CloseInternalServerErr,
		websocket.CloseTryAgainLater:
		return true
	}
	return false
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// classify converts SDK and websocket failures into *Error. Anything else is
// wrapped with the operation name.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*apierror.APIError); ok {
		if e.Unwrap() != nil {
			err = e.Unwrap()
		} else if code := e.HTTPCode(); code > 0 {
			return &Error{Op: op, Code: code, Status: e.Reason(), Message: e.Error()}
		}
	}
	var ae genai.APIError
	if errors.As(err, &ae) {
		return &Error{Op: op, Code: ae.Code, Status: ae.Status, Message: ae.Message}
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &Error{Op: op, Code: ce.Code, Message: ce.Text}
	}
	return fmt.Errorf("gemini: %s: %w", op, err)
}
