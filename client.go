package tether

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// DefaultCallTimeout bounds calls that don't override it with WithTimeout.
const DefaultCallTimeout = 30 * time.Second

// Client is the correlation engine: it owns the table of in-flight calls,
// assigns correlation ids, matches inbound replies back to the calls that
// issued them, and routes server-pushed notifications to registered
// handlers. The live transport is injected by the Manager for the duration
// of each connection.
type Client struct {
	mu      sync.Mutex
	pending map[string]*pendingCall // correlation key → in-flight call
	tr      transport
	closed  bool

	registry *notificationRegistry
	onError  ErrorHandler

	defaultTimeout time.Duration
}

// pendingCall is the bookkeeping entry for an issued call awaiting
// resolution. The table owns it exclusively: inserted when the call is
// issued, removed exactly once by whichever of reply/timeout/cancellation
// wins.
type pendingCall struct {
	id        string
	method    string
	createdAt time.Time
	done      chan callResult // buffered, capacity 1; written after removal
}

type callResult struct {
	result json.RawMessage
	err    error
}

// NewClient creates a correlation engine. The onError handler is called
// for SDK-level errors that cannot be returned to a direct caller
// (inbound decode failures, stale replies, unhandled notifications).
// The client has no transport until a Manager connects one.
func NewClient(onError ErrorHandler, opts ...ClientOption) (*Client, error) {
	if onError == nil {
		return nil, errors.New("ErrorHandler must not be nil")
	}

	c := &Client{
		pending:        make(map[string]*pendingCall),
		registry:       newNotificationRegistry(),
		onError:        onError,
		defaultTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle registers a handler for the given notification method.
func (c *Client) Handle(method string, fn NotificationHandler) error {
	return c.registry.register(method, fn)
}

// OnNotification registers a fallback handler for notification methods
// with no dedicated handler.
func (c *Client) OnNotification(fn NotificationHandler) {
	c.registry.setFallback(fn)
}

// Call issues a request and blocks until the correlated reply arrives, the
// timeout elapses, or the call is cancelled by context or transport
// teardown. The returned bytes are the raw reply result. A remote error
// reply is returned as *RemoteError.
func (c *Client) Call(ctx context.Context, method string, params any, opts ...CallOption) (json.RawMessage, error) {
	o := callOptions{timeout: c.defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New().String()
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, &EncodingError{Cause: err}
	}
	key := idKey(rawID)

	pc := &pendingCall{
		id:        id,
		method:    method,
		createdAt: time.Now(),
		done:      make(chan callResult, 1),
	}

	// Transport check and registration are atomic: a call is never
	// registered against an absent transport.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	tr := c.tr
	if tr == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[key] = pc
	c.mu.Unlock()

	data, err := encodeCall(id, method, params)
	if err != nil {
		c.take(key)
		return nil, err
	}
	if err := tr.send(data); err != nil {
		c.take(key)
		return nil, err
	}

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	// Whichever path removes the entry from the table resolves the call;
	// a loser observing the removal waits for the winner's result instead.
	select {
	case r := <-pc.done:
		return r.result, r.err
	case <-timer.C:
		if c.take(key) != nil {
			return nil, &TimeoutError{CallID: id, Method: method}
		}
		r := <-pc.done
		return r.result, r.err
	case <-ctx.Done():
		if c.take(key) != nil {
			return nil, ctx.Err()
		}
		r := <-pc.done
		return r.result, r.err
	}
}

// Notify sends a fire-and-forget notification. It never registers a
// pending call and never waits for the peer.
func (c *Client) Notify(method string, params any) error {
	c.mu.Lock()
	closed := c.closed
	tr := c.tr
	c.mu.Unlock()

	if closed {
		return ErrClientClosed
	}
	if tr == nil {
		return ErrNotConnected
	}

	data, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	return tr.send(data)
}

// CancelAll drains the pending table, failing every in-flight call with
// ConnectionClosedError. Idempotent. Must run whenever the transport is
// torn down, and before any new transport is attached, so no call is ever
// silently abandoned.
func (c *Client) CancelAll() {
	c.mu.Lock()
	drained := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, pc := range drained {
		pc.done <- callResult{err: &ConnectionClosedError{CallID: pc.id}}
	}
}

// Close shuts the client down. Subsequent calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	c.CancelAll()
	if tr != nil {
		return tr.close()
	}
	return nil
}

// attach wires a live transport in. The Manager detaches (and drains) any
// previous transport first.
func (c *Client) attach(tr transport) {
	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()
}

// detach revokes the transport handle and drains all in-flight calls.
func (c *Client) detach() {
	c.mu.Lock()
	c.tr = nil
	c.mu.Unlock()
	c.CancelAll()
}

// take removes and returns the pending call for the key, or nil if another
// path already resolved it. Removal is the single serialization point for
// exactly-once resolution.
func (c *Client) take(key string) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	pc, ok := c.pending[key]
	if !ok {
		return nil
	}
	delete(c.pending, key)
	return pc
}

func (c *Client) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// handleInbound is the transport receive callback. Classification follows
// the wire contract's precedence order; nothing on this path is fatal.
func (c *Client) handleInbound(data []byte) {
	switch classifyFrame(data) {
	case frameReply:
		c.handleReply(data)
	case frameNotification:
		c.handleNotification(data)
	case frameCall:
		// Peer-initiated calls are not part of this client role.
		// Classified and reported rather than silently dropped.
		e := SDKError{Kind: ErrPeerCall, Raw: data, Timestamp: time.Now()}
		if f, err := decodeFrame(data); err == nil {
			e.CallID = idKey(f.ID)
			e.Method = f.Method
		}
		c.onError(e)
	default:
		c.onError(SDKError{Kind: ErrUnrecognized, Raw: data, Timestamp: time.Now()})
	}
}

func (c *Client) handleReply(data []byte) {
	f, err := decodeReply(data)
	if err != nil {
		c.onError(SDKError{Kind: ErrDecodeFailure, Cause: err, Raw: data, Timestamp: time.Now()})
		return
	}

	pc := c.take(idKey(f.ID))
	if pc == nil {
		// Stale or unknown reply: the call already timed out, was
		// cancelled, or never existed.
		c.onError(SDKError{Kind: ErrStaleReply, CallID: idKey(f.ID), Timestamp: time.Now()})
		return
	}

	if f.Error != nil {
		pc.done <- callResult{err: f.Error}
		return
	}
	pc.done <- callResult{result: f.Result}
}

func (c *Client) handleNotification(data []byte) {
	f, err := decodeFrame(data)
	if err != nil {
		c.onError(SDKError{Kind: ErrDecodeFailure, Cause: err, Raw: data, Timestamp: time.Now()})
		return
	}

	n := &Notification{Method: f.Method, params: f.Params}
	if fn, ok := c.registry.lookup(f.Method); ok {
		fn(n)
		return
	}
	if fb := c.registry.fallback(); fb != nil {
		fb(n)
		return
	}
	c.onError(SDKError{Kind: ErrNoHandler, Method: f.Method, Timestamp: time.Now()})
}
