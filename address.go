package tether

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// defaultLocalPort is assumed for local targets given without a port.
// Non-local targets never get an explicit port; either the hostname
// embeds one or the scheme default applies.
const defaultLocalPort = "9480"

// socketPath is the WebSocket endpoint path on the peer.
const socketPath = "/ws"

// Target is a normalized connection target. Secure selects wss over ws and
// is derived from whether the host is classified as local.
type Target struct {
	Host   string
	Port   string
	Secure bool
}

// normalizeTarget parses a user-supplied target into host/port/scheme.
// Scheme prefixes and any path are stripped; ws/wss selection is derived
// from host locality, not from the supplied scheme.
func normalizeTarget(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"wss://", "ws://", "https://", "http://"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Target{}, fmt.Errorf("empty target host %q", raw)
	}

	host, port := splitHostPort(s)
	t := Target{Host: host, Port: port, Secure: !isLocalHost(host)}
	if !t.Secure && t.Port == "" {
		t.Port = defaultLocalPort
	}
	return t, nil
}

func splitHostPort(s string) (host, port string) {
	if h, p, err := net.SplitHostPort(s); err == nil {
		return h, p
	}
	return strings.Trim(s, "[]"), ""
}

// isLocalHost reports whether the host is loopback, a private-range
// address, or carries the reserved local-domain suffix. Local hosts are
// reached over plaintext ws; everything else gets wss.
func isLocalHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	return false
}

// socketURL builds the WebSocket URL for the target, carrying the access
// token as a query parameter.
func (t Target) socketURL(token string) string {
	scheme := "wss"
	if !t.Secure {
		scheme = "ws"
	}
	hostport := t.Host
	if t.Port != "" {
		hostport = net.JoinHostPort(t.Host, t.Port)
	}
	u := url.URL{Scheme: scheme, Host: hostport, Path: socketPath}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
