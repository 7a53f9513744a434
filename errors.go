package tether

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// Sentinel errors for client and manager state.
var (
	ErrNotConnected     = errors.New("client is not connected")
	ErrClientClosed     = errors.New("client is closed")
	ErrConnectBusy      = errors.New("previous connect loop has not stopped")
	ErrConnectCancelled = errors.New("connect cancelled")
)

// RemoteError is an error object produced by the remote peer in a reply.
// The client never invents these, only propagates them.
type RemoteError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error [%d]: %s", e.Code, e.Message)
}

// TimeoutError indicates a call that received no reply within its timeout.
type TimeoutError struct {
	CallID string
	Method string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call %s timed out (id=%s)", e.Method, e.CallID)
}

// ConnectionClosedError resolves an in-flight call when the transport is
// torn down before its reply arrives.
type ConnectionClosedError struct {
	CallID string
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("connection closed with call in flight (id=%s)", e.CallID)
}

// EncodingError wraps a failure to serialize an outbound frame.
type EncodingError struct {
	Cause error
}

func (e *EncodingError) Error() string { return fmt.Sprintf("encode frame: %v", e.Cause) }
func (e *EncodingError) Unwrap() error { return e.Cause }

// DecodingError wraps a failure to deserialize an inbound frame.
// Callers on the receive path recover from it: log and drop the frame.
type DecodingError struct {
	Cause error
}

func (e *DecodingError) Error() string { return fmt.Sprintf("decode frame: %v", e.Cause) }
func (e *DecodingError) Unwrap() error { return e.Cause }

// ConnectionError represents a failure to open or maintain the connection
// to the remote peer.
type ConnectionError struct {
	URL    string
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error [%s]: %s", e.URL, e.Reason)
}

// TokenErrorKind classifies credential failures from the token collaborator.
type TokenErrorKind int

const (
	TokenInvalid TokenErrorKind = iota
	TokenExpired
	RefreshTokenExpired
	ApprovalPending
)

var tokenErrorKindNames = [...]string{
	TokenInvalid:        "TokenInvalid",
	TokenExpired:        "TokenExpired",
	RefreshTokenExpired: "RefreshTokenExpired",
	ApprovalPending:     "ApprovalPending",
}

func (k TokenErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenErrorKindNames) {
		return tokenErrorKindNames[k]
	}
	return fmt.Sprintf("TokenErrorKind(%d)", k)
}

// TokenError represents a credential-level failure. RequestID is set only
// for ApprovalPending, identifying the pairing request awaiting approval.
type TokenError struct {
	Kind      TokenErrorKind
	RequestID string
	Cause     error
}

func (e *TokenError) Error() string {
	if e.Kind == ApprovalPending && e.RequestID != "" {
		return fmt.Sprintf("token error [%s]: request %s", e.Kind, e.RequestID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("token error [%s]: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("token error [%s]", e.Kind)
}

func (e *TokenError) Unwrap() error { return e.Cause }

// AuthorizationError represents an authorization rejection (typically
// HTTP 401/403) during credential exchange or the transport handshake.
type AuthorizationError struct {
	Status int
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed (status %d)", e.Status)
}

// StatusCode reports the HTTP-style status carried by the failure.
func (e *AuthorizationError) StatusCode() int { return e.Status }

// statusCoder is matched by any error carrying an HTTP-style status.
type statusCoder interface {
	StatusCode() int
}

// isTerminal decides whether a connection-attempt failure stops the retry
// loop. Terminal: invalid/expired tokens, expired refresh token, or any
// failure carrying HTTP 401/403. Everything else is retryable — network
// failures, timeouts, and unknown errors keep the loop cycling.
func isTerminal(err error) bool {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		switch tokenErr.Kind {
		case TokenInvalid, TokenExpired, RefreshTokenExpired:
			return true
		}
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == 401 || code == 403
	}
	return false
}

// ErrorKind classifies SDK-level errors that cannot be returned to a
// direct caller (inbound-path failures, mostly).
type ErrorKind int

const (
	ErrDecodeFailure   ErrorKind = iota // inbound frame couldn't be decoded
	ErrStaleReply                       // reply with no matching in-flight call
	ErrNoHandler                        // notification method with no registered handler
	ErrPeerCall                         // inbound call frame; peer-initiated calls are unsupported
	ErrUnrecognized                     // frame missing the version marker or of unknown shape
	ErrTransportWrite                   // failed to write to the connection
)

var errorKindNames = [...]string{
	ErrDecodeFailure:  "ErrDecodeFailure",
	ErrStaleReply:     "ErrStaleReply",
	ErrNoHandler:      "ErrNoHandler",
	ErrPeerCall:       "ErrPeerCall",
	ErrUnrecognized:   "ErrUnrecognized",
	ErrTransportWrite: "ErrTransportWrite",
}

func (k ErrorKind) String() string {
	if int(k) >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// SDKError represents an error that the SDK could not deliver to a direct
// caller. These errors are routed to the ErrorHandler provided at client
// creation.
type SDKError struct {
	Kind      ErrorKind
	CallID    string // correlation id, if known
	Method    string // frame method, if known
	Cause     error
	Raw       []byte // raw frame (for decode failures)
	Timestamp time.Time
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (id=%s method=%s)", e.Kind, e.Cause, e.CallID, e.Method)
	}
	return fmt.Sprintf("%s (id=%s method=%s)", e.Kind, e.CallID, e.Method)
}

func (e *SDKError) Unwrap() error { return e.Cause }

// ErrorHandler is called for every SDK-level error that cannot be returned
// to a direct caller. It MUST be provided when creating a client.
type ErrorHandler func(SDKError)

// LogErrors returns an ErrorHandler that logs all SDK errors to the given logger.
func LogErrors(logger *log.Logger) ErrorHandler {
	return func(e SDKError) {
		if e.Cause != nil {
			logger.Printf("[tether] %s: %v (id=%s method=%s)", e.Kind, e.Cause, e.CallID, e.Method)
		} else {
			logger.Printf("[tether] %s (id=%s method=%s)", e.Kind, e.CallID, e.Method)
		}
	}
}
