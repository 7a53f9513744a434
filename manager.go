package tether

import (
	"context"
	"errors"
	"sync"
	"time"
)

// defaultSettleWait bounds how long a new Connect waits for a cancelled
// retry loop to wind down before giving up.
const defaultSettleWait = 300 * time.Millisecond

// Manager drives the connection lifecycle: it resolves credentials through
// the TokenProvider, opens the transport, runs the bounded-retry/cooldown
// loop, and hands the live transport to the correlation engine on success.
// At most one retry loop is active per manager at any time.
type Manager struct {
	cfg    Config
	client *Client
	tokens TokenProvider
	dial   dialFunc

	settleWait time.Duration

	mu           sync.Mutex
	status       ConnectionStatus
	tr           transport
	refreshed    CredentialPair // most recent pair pushed by the provider
	hasRefreshed bool
	onStatus     func(ConnectionStatus)
	onConnected  func()

	loopMu sync.Mutex
	loop   *loopCtl
}

// loopCtl is the cancellation handle for one retry loop invocation.
type loopCtl struct {
	cancel chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (l *loopCtl) requestCancel() { l.once.Do(func() { close(l.cancel) }) }

func (l *loopCtl) cancelled() bool {
	select {
	case <-l.cancel:
		return true
	default:
		return false
	}
}

// NewManager creates a connection lifecycle manager bound to the given
// correlation engine and token provider.
func NewManager(cfg Config, client *Client, tokens TokenProvider, opts ...ManagerOption) (*Manager, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if tokens == nil {
		return nil, errors.New("token provider must not be nil")
	}

	m := &Manager{
		cfg:        resolved,
		client:     client,
		tokens:     tokens,
		dial:       dialSocket,
		settleWait: defaultSettleWait,
		status:     ConnectionStatus{State: StateDisconnected},
	}
	for _, opt := range opts {
		opt(m)
	}

	if src, ok := tokens.(TokenEventSource); ok {
		src.Subscribe(TokenEvents{Refreshed: m.tokenRefreshed})
	}
	return m, nil
}

// Status returns the current connection status.
func (m *Manager) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStatus registers a callback invoked on every status transition.
// Register before Connect.
func (m *Manager) OnStatus(fn func(ConnectionStatus)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

// OnConnected registers a callback invoked after a successful connect, and
// on a Connect call that short-circuits because the manager is already
// connected. Use it to refresh dependent state.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	m.onConnected = fn
	m.mu.Unlock()
}

// Connect resolves a credential for the target and drives the retry loop
// until connected, cancelled, or terminally failed. Retryable failures
// keep the loop cycling (MaxAttempts per cycle, Cooldown between cycles),
// so Connect can block indefinitely; run it from its own goroutine and
// observe progress via OnStatus. A Connect while a loop is already active
// is a no-op.
func (m *Manager) Connect(ctx context.Context, host, credential string) error {
	if host == "" {
		host = m.cfg.Host
	}
	target, err := normalizeTarget(host)
	if err != nil {
		return err
	}

	// Already connected: nothing to dial, just refresh dependent state.
	if m.Status().State == StateConnected {
		m.notifyConnected()
		return nil
	}

	l, err := m.claimLoop()
	if err != nil || l == nil {
		return err
	}
	defer m.releaseLoop(l)

	if credential == "" {
		credential = m.cfg.Credential
	}
	fallback := ""
	switch ClassifyCredential(credential) {
	case CredentialPairing:
		// One-time pairing credential: exchange it before any dial attempt.
		pair, err := m.tokens.Exchange(ctx, credential, target.Host)
		if err != nil {
			m.setStatus(ConnectionStatus{State: StateUnreachable, Err: err})
			return err
		}
		fallback = pair.AccessToken
	case CredentialAccess:
		fallback = credential
	default:
		if tok, ok := m.tokens.ValidAccessToken(target.Host); ok {
			fallback = tok
		}
	}

	return m.runLoop(ctx, l, target, fallback)
}

// Cancel requests cancellation of the active retry loop. The loop observes
// it at its wait points and stops within the current wait/attempt boundary.
func (m *Manager) Cancel() {
	m.loopMu.Lock()
	if m.loop != nil {
		m.loop.requestCancel()
	}
	m.loopMu.Unlock()
	m.setStatusIfNotConnected(ConnectionStatus{State: StateDisconnected})
}

// Disconnect tears the connection down: cancels any retry loop, revokes
// the transport from the engine (draining in-flight calls), and closes it.
func (m *Manager) Disconnect() error {
	m.loopMu.Lock()
	if m.loop != nil {
		m.loop.requestCancel()
	}
	m.loopMu.Unlock()

	m.mu.Lock()
	tr := m.tr
	m.tr = nil
	m.mu.Unlock()

	m.client.detach()
	var err error
	if tr != nil {
		err = tr.close()
	}
	m.setStatus(ConnectionStatus{State: StateDisconnected})
	return err
}

// claimLoop reserves the single retry-loop slot. Returns (nil, nil) when
// the call should debounce because a loop is already live.
func (m *Manager) claimLoop() (*loopCtl, error) {
	m.loopMu.Lock()
	if prev := m.loop; prev != nil {
		if !prev.cancelled() {
			m.loopMu.Unlock()
			return nil, nil
		}
		m.loopMu.Unlock()
		// The previous loop was cancelled but hasn't stopped yet. Wait a
		// bounded time for it rather than racing two loops against the
		// same transport slot.
		select {
		case <-prev.done:
		case <-time.After(m.settleWait):
			return nil, ErrConnectBusy
		}
		m.loopMu.Lock()
		if m.loop != nil && m.loop != prev {
			m.loopMu.Unlock()
			return nil, nil
		}
	}
	l := &loopCtl{cancel: make(chan struct{}), done: make(chan struct{})}
	m.loop = l
	m.loopMu.Unlock()
	return l, nil
}

func (m *Manager) releaseLoop(l *loopCtl) {
	m.loopMu.Lock()
	if m.loop == l {
		m.loop = nil
	}
	m.loopMu.Unlock()
	close(l.done)
}

func (m *Manager) runLoop(ctx context.Context, l *loopCtl, target Target, fallbackToken string) error {
	cycle := newRetryCycle(m.cfg.MaxAttempts)
	for {
		if l.cancelled() || ctx.Err() != nil {
			m.setStatusIfNotConnected(ConnectionStatus{State: StateDisconnected})
			return cancelErr(ctx)
		}
		if cycle.exhausted() {
			cycle.reset()
			if !sleepInterruptible(ctx, m.cfg.Cooldown, l.cancel) {
				m.setStatusIfNotConnected(ConnectionStatus{State: StateDisconnected})
				return cancelErr(ctx)
			}
		}

		m.setStatus(ConnectionStatus{
			State:       StateConnecting,
			Attempt:     cycle.attempt,
			MaxAttempts: cycle.maxAttempts,
		})

		tr, err := m.dial(ctx, target, m.freshestToken(target.Host, fallbackToken))
		if err == nil {
			m.adopt(tr)
			m.setStatus(ConnectionStatus{State: StateConnected})
			m.notifyConnected()
			return nil
		}
		if isTerminal(err) {
			l.requestCancel()
			m.setStatus(ConnectionStatus{State: StateUnreachable, Err: err})
			return err
		}
		if !cycle.last() {
			if !sleepInterruptible(ctx, m.cfg.AttemptDelay, l.cancel) {
				m.setStatusIfNotConnected(ConnectionStatus{State: StateDisconnected})
				return cancelErr(ctx)
			}
		}
		cycle.advance()
	}
}

// freshestToken prefers a token the provider currently holds valid for the
// host, then the most recently pushed refresh, then the fallback resolved
// when the loop started.
func (m *Manager) freshestToken(host, fallback string) string {
	if tok, ok := m.tokens.ValidAccessToken(host); ok {
		return tok
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasRefreshed && (m.refreshed.AccessExpiry.IsZero() || time.Now().Before(m.refreshed.AccessExpiry)) {
		return m.refreshed.AccessToken
	}
	return fallback
}

// adopt replaces the owned transport: the previous one is closed and the
// engine drained before the new one is wired in, so the engine never holds
// a stale connection reference.
func (m *Manager) adopt(tr transport) {
	m.mu.Lock()
	old := m.tr
	m.tr = tr
	m.mu.Unlock()

	if old != nil {
		old.close()
	}
	m.client.detach()
	tr.setCloseHandler(func(err error) { m.transportClosed(tr, err) })
	tr.setReceiveHandler(m.client.handleInbound)
	m.client.attach(tr)
}

// transportClosed handles a remote/unexpected drop of the current transport.
func (m *Manager) transportClosed(tr transport, err error) {
	m.mu.Lock()
	if m.tr != tr {
		m.mu.Unlock()
		return
	}
	m.tr = nil
	m.mu.Unlock()

	m.client.detach()
	m.setStatus(ConnectionStatus{State: StateDisconnected, Err: err})
}

func (m *Manager) tokenRefreshed(pair CredentialPair) {
	m.mu.Lock()
	m.refreshed = pair
	m.hasRefreshed = true
	m.mu.Unlock()
}

func (m *Manager) setStatus(s ConnectionStatus) {
	m.mu.Lock()
	m.status = s
	fn := m.onStatus
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (m *Manager) setStatusIfNotConnected(s ConnectionStatus) {
	m.mu.Lock()
	if m.status.State == StateConnected {
		m.mu.Unlock()
		return
	}
	m.status = s
	fn := m.onStatus
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (m *Manager) notifyConnected() {
	m.mu.Lock()
	fn := m.onConnected
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func cancelErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrConnectCancelled
}
