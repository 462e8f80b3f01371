package realtime

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the realtime package.
var (
	// ErrNotConnected indicates there is no open event channel.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrStartAborted indicates a Start was superseded by Stop or a newer Start.
	ErrStartAborted = errors.New("realtime: start aborted")

	// ErrClosed indicates the peer or session was already torn down.
	ErrClosed = errors.New("realtime: closed")

	// ErrMissingCredentialSource indicates the controller has no way to get a token.
	ErrMissingCredentialSource = errors.New("realtime: credential source is required")

	// ErrMissingConnector indicates the controller has no peer connector.
	ErrMissingConnector = errors.New("realtime: peer connector is required")

	// ErrEmptyText indicates SendText was called with nothing to send.
	ErrEmptyText = errors.New("realtime: empty text")
)

// MediaAccessError means the microphone could not be opened.
type MediaAccessError struct {
	Cause error
}

func (e *MediaAccessError) Error() string {
	return fmt.Sprintf("realtime: microphone unavailable: %v", e.Cause)
}

func (e *MediaAccessError) Unwrap() error {
	return e.Cause
}

// SignalingError means the SDP offer/answer exchange failed.
type SignalingError struct {
	// StatusCode is the HTTP status, zero for transport failures.
	StatusCode int

	// Status is the HTTP status text, e.g. "500 Internal Server Error".
	Status string

	// Body is a short excerpt of the response body.
	Body string

	// Cause is the transport error, if any.
	Cause error
}

func (e *SignalingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("realtime: signaling failed: %s", e.Status)
	}
	return fmt.Sprintf("realtime: signaling failed: %v", e.Cause)
}

func (e *SignalingError) Unwrap() error {
	return e.Cause
}

// NewSignalingError builds a SignalingError from an HTTP response status.
func NewSignalingError(statusCode int, body string) *SignalingError {
	return &SignalingError{
		StatusCode: statusCode,
		Status:     fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Body:       body,
	}
}

// CredentialError means no usable ephemeral token could be obtained.
type CredentialError struct {
	Reason string
	Cause  error
}

func (e *CredentialError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("realtime: credential unavailable: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("realtime: credential unavailable: %s", e.Reason)
}

func (e *CredentialError) Unwrap() error {
	return e.Cause
}

// MalformedEventError is an inbound frame that is not valid JSON or lacks
// the fields its type requires. The session keeps running.
type MalformedEventError struct {
	// Type is the event type, if it could be read.
	Type string

	// Payload is a prefix of the raw frame.
	Payload string

	Cause error
}

func (e *MalformedEventError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("realtime: malformed %s event: %v", e.Type, e.Cause)
	}
	return fmt.Sprintf("realtime: malformed event: %v", e.Cause)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Cause
}

// ModelReportedError is an error frame sent by the model. The session keeps running.
type ModelReportedError struct {
	Type    string
	Code    string
	Message string
	Param   string
	EventID string

	// Raw is the untouched error payload.
	Raw []byte
}

func (e *ModelReportedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Raw)
	}
	if e.Code != "" {
		return fmt.Sprintf("realtime: model error [%s]: %s", e.Code, msg)
	}
	return fmt.Sprintf("realtime: model error: %s", msg)
}

// ConnectionDegradedError reports a peer connection that left the
// connected state. Failed and closed end the session.
type ConnectionDegradedError struct {
	State ConnectionState
}

func (e *ConnectionDegradedError) Error() string {
	return fmt.Sprintf("realtime: connection %s", e.State)
}

// Terminal reports whether the state ends the session.
func (e *ConnectionDegradedError) Terminal() bool {
	return e.State == ConnectionFailed || e.State == ConnectionClosed
}

// Error checking helpers.

// IsFatal returns true for errors that abort a session start.
func IsFatal(err error) bool {
	var media *MediaAccessError
	var sig *SignalingError
	var cred *CredentialError
	return errors.As(err, &media) || errors.As(err, &sig) || errors.As(err, &cred)
}

// IsMalformed returns true if err is a MalformedEventError.
func IsMalformed(err error) bool {
	var e *MalformedEventError
	return errors.As(err, &e)
}

// IsModelReported returns true if err came from a model error frame.
func IsModelReported(err error) bool {
	var e *ModelReportedError
	return errors.As(err, &e)
}

// errorKind labels err for metrics.
func errorKind(err error) string {
	var (
		media *MediaAccessError
		sig   *SignalingError
		cred  *CredentialError
		mal   *MalformedEventError
		model *ModelReportedError
		conn  *ConnectionDegradedError
	)
	switch {
	case errors.As(err, &media):
		return "media"
	case errors.As(err, &sig):
		return "signaling"
	case errors.As(err, &cred):
		return "credential"
	case errors.As(err, &mal):
		return "malformed"
	case errors.As(err, &model):
		return "model"
	case errors.As(err, &conn):
		return "connection"
	default:
		return "other"
	}
}
