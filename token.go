package tether

import (
	"context"
	"strings"
	"time"
)

// Credential prefixes. The three namespaces are disjoint, so the Manager
// can tell from the string alone whether a supplied credential needs to be
// exchanged before use.
const (
	PairingTokenPrefix = "tp_" // one-time pairing credential
	AccessTokenPrefix  = "ts_" // short-lived session/access token
	RefreshTokenPrefix = "tr_" // refresh token
)

// CredentialKind identifies the namespace of a credential string.
type CredentialKind int

const (
	CredentialUnknown CredentialKind = iota
	CredentialPairing
	CredentialAccess
	CredentialRefresh
)

// ClassifyCredential reports which namespace a credential string belongs to.
func ClassifyCredential(credential string) CredentialKind {
	switch {
	case strings.HasPrefix(credential, PairingTokenPrefix):
		return CredentialPairing
	case strings.HasPrefix(credential, AccessTokenPrefix):
		return CredentialAccess
	case strings.HasPrefix(credential, RefreshTokenPrefix):
		return CredentialRefresh
	default:
		return CredentialUnknown
	}
}

// CredentialPair is an access/refresh token pair issued by the token
// collaborator. The Manager only reads it; ownership stays with the
// TokenProvider.
type CredentialPair struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// TokenProvider is the narrow interface the Manager consumes from the
// token lifecycle service.
type TokenProvider interface {
	// Exchange trades a one-time pairing credential for an access/refresh
	// pair, scoped to the given host. Fails with a TokenError if the
	// pairing credential is invalid, expired, or pending approval.
	Exchange(ctx context.Context, pairingToken, host string) (CredentialPair, error)

	// Refresh obtains a fresh access token using the stored refresh token.
	Refresh(ctx context.Context) (CredentialPair, error)

	// ValidAccessToken returns a currently valid access token for the
	// host, if the provider holds one.
	ValidAccessToken(host string) (string, bool)
}

// TokenEvents are callbacks for token lifecycle events. Providers deliver
// them from a single goroutine; nil fields are skipped.
type TokenEvents struct {
	Refreshed       func(pair CredentialPair)
	RefreshFailed   func(err error)
	ExpiringSoon    func(expiry time.Time)
	ApprovalPending func(requestID string)
}

// TokenEventSource is implemented by providers that publish lifecycle
// events. The Manager subscribes when the capability is present.
type TokenEventSource interface {
	Subscribe(events TokenEvents)
}
