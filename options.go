package tether

import "time"

// ClientOption configures client behavior.
type ClientOption func(*Client)

// WithDefaultTimeout overrides the default timeout applied to calls that
// don't set one with WithTimeout.
func WithDefaultTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// CallOption configures a single call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// ManagerOption configures manager behavior.
type ManagerOption func(*Manager)

// WithSettleWait overrides how long a new Connect waits for a cancelled
// retry loop to actually stop before failing with ErrConnectBusy.
func WithSettleWait(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.settleWait = d
		}
	}
}

// withDialer substitutes the transport dialer. Tests use it to inject
// stub transports.
func withDialer(d dialFunc) ManagerOption {
	return func(m *Manager) {
		m.dial = d
	}
}
