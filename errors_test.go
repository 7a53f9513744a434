package tether

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"token invalid", &TokenError{Kind: TokenInvalid}, true},
		{"token expired", &TokenError{Kind: TokenExpired}, true},
		{"refresh token expired", &TokenError{Kind: RefreshTokenExpired}, true},
		{"approval pending is retryable", &TokenError{Kind: ApprovalPending, RequestID: "req-1"}, false},
		{"http 401", &AuthorizationError{Status: 401}, true},
		{"http 403", &AuthorizationError{Status: 403}, true},
		{"http 500 is retryable", &AuthorizationError{Status: 500}, false},
		{"wrapped token error", fmt.Errorf("exchange: %w", &TokenError{Kind: TokenInvalid}), true},
		{"wrapped 403", fmt.Errorf("handshake: %w", &AuthorizationError{Status: 403}), true},
		{"network failure", &ConnectionError{URL: "ws://x", Reason: "refused"}, false},
		{"plain error", errors.New("dial tcp: timeout"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTerminal(tt.err); got != tt.want {
				t.Errorf("isTerminal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTokenError_Error(t *testing.T) {
	pending := &TokenError{Kind: ApprovalPending, RequestID: "req-42"}
	if !strings.Contains(pending.Error(), "req-42") {
		t.Errorf("ApprovalPending message %q should carry the request id", pending.Error())
	}

	cause := errors.New("server said no")
	wrapped := &TokenError{Kind: TokenInvalid, Cause: cause}
	if !strings.Contains(wrapped.Error(), "server said no") {
		t.Errorf("message %q should carry the cause", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("TokenError should unwrap to its cause")
	}
}

func TestEncodingDecodingError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	if !errors.Is(&EncodingError{Cause: cause}, cause) {
		t.Error("EncodingError should unwrap to its cause")
	}
	if !errors.Is(&DecodingError{Cause: cause}, cause) {
		t.Error("DecodingError should unwrap to its cause")
	}
}

func TestErrorKind_String(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{ErrDecodeFailure, "ErrDecodeFailure"},
		{ErrStaleReply, "ErrStaleReply"},
		{ErrNoHandler, "ErrNoHandler"},
		{ErrPeerCall, "ErrPeerCall"},
		{ErrUnrecognized, "ErrUnrecognized"},
		{ErrTransportWrite, "ErrTransportWrite"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if got := ErrorKind(99).String(); got != "ErrorKind(99)" {
		t.Errorf("out-of-range String() = %q", got)
	}
}

func TestSDKError_Error(t *testing.T) {
	e := SDKError{Kind: ErrStaleReply, CallID: "call-1", Method: "echo"}
	msg := e.Error()
	for _, part := range []string{"ErrStaleReply", "call-1", "echo"} {
		if !strings.Contains(msg, part) {
			t.Errorf("Error() = %q, should contain %q", msg, part)
		}
	}
}

func TestLogErrors(t *testing.T) {
	var buf bytes.Buffer
	handler := LogErrors(log.New(&buf, "", 0))

	handler(SDKError{Kind: ErrNoHandler, Method: "status/changed"})
	handler(SDKError{Kind: ErrDecodeFailure, Cause: errors.New("bad json")})

	out := buf.String()
	if !strings.Contains(out, "ErrNoHandler") || !strings.Contains(out, "status/changed") {
		t.Errorf("log output %q missing kind or method", out)
	}
	if !strings.Contains(out, "bad json") {
		t.Errorf("log output %q missing cause", out)
	}
}
