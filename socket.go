package tether

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
	pongWait         = 75 * time.Second
	writeWait        = 10 * time.Second
)

// socket implements transport over a WebSocket connection.
type socket struct {
	url  string
	conn *websocket.Conn

	mu sync.Mutex // protects conn writes

	receiveFn func(data []byte)
	closeFn   func(err error)

	ready     chan struct{} // closed once the receive handler is wired
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

// dialSocket opens the WebSocket connection to the target. An HTTP 401/403
// handshake rejection maps to AuthorizationError so the retry loop treats
// it as terminal; any other failure is a retryable ConnectionError.
func dialSocket(ctx context.Context, target Target, token string) (transport, error) {
	u := target.socketURL(token)
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == 401 || resp.StatusCode == 403) {
			return nil, &AuthorizationError{Status: resp.StatusCode}
		}
		return nil, &ConnectionError{URL: u, Reason: err.Error()}
	}

	s := &socket{
		url:   u,
		conn:  conn,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

func (s *socket) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *socket) setReceiveHandler(fn func(data []byte)) {
	s.receiveFn = fn
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *socket) setCloseHandler(fn func(err error)) {
	s.closeFn = fn
}

func (s *socket) close() error {
	var err error
	s.doneOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// readLoop delivers inbound frames one at a time on this goroutine, so
// handler delivery stays FIFO. It holds inbound reads until the receive
// handler is wired to avoid dropping frames that race the handoff.
func (s *socket) readLoop() {
	select {
	case <-s.ready:
	case <-s.done:
		return
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// local close, not a drop
			default:
				if s.closeFn != nil {
					s.closeFn(err)
				}
			}
			return
		}
		s.receiveFn(data)
	}
}

func (s *socket) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
