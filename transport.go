package tether

import "context"

// transport is the internal interface for the live connection to the peer.
// The production implementation is the WebSocket transport in socket.go;
// tests substitute an in-memory stub.
type transport interface {
	// send writes one outbound frame to the connection.
	send(data []byte) error

	// setReceiveHandler registers the callback invoked for each inbound
	// frame. Delivery is single-goroutine and FIFO.
	setReceiveHandler(fn func(data []byte))

	// setCloseHandler registers the callback invoked once when the
	// connection drops for any reason other than a local close().
	setCloseHandler(fn func(err error))

	// close shuts the connection down. Idempotent.
	close() error
}

// dialFunc opens a transport to the target, authenticating with the given
// access token. The Manager's retry loop classifies any returned error as
// terminal or retryable.
type dialFunc func(ctx context.Context, target Target, token string) (transport, error)
