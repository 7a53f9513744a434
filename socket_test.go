package tether

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// mockPeer is a WebSocket test server. handle runs per-connection on the
// server side of the socket.
func mockPeer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) (*httptest.Server, Target) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)

	target, err := normalizeTarget(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("normalizeTarget() error: %v", err)
	}
	return srv, target
}

func TestDialSocket_SendAndReceive(t *testing.T) {
	_, target := mockPeer(t, func(conn *websocket.Conn, r *http.Request) {
		// Echo one message back.
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, data)
		// Hold the connection open until the client hangs up.
		conn.ReadMessage()
	})

	tr, err := dialSocket(context.Background(), target, "ts_token")
	if err != nil {
		t.Fatalf("dialSocket() error: %v", err)
	}
	defer tr.close()

	received := make(chan []byte, 1)
	tr.setCloseHandler(func(error) {})
	tr.setReceiveHandler(func(data []byte) { received <- data })

	if err := tr.send([]byte(`{"v":"1","method":"ping"}`)); err != nil {
		t.Fatalf("send() error: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != `{"v":"1","method":"ping"}` {
			t.Errorf("received %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo never delivered")
	}
}

func TestDialSocket_TokenQueryParam(t *testing.T) {
	tokenCh := make(chan string, 1)
	_, target := mockPeer(t, func(conn *websocket.Conn, r *http.Request) {
		tokenCh <- r.URL.Query().Get("token")
	})

	tr, err := dialSocket(context.Background(), target, "ts_secret")
	if err != nil {
		t.Fatalf("dialSocket() error: %v", err)
	}
	defer tr.close()

	select {
	case tok := <-tokenCh:
		if tok != "ts_secret" {
			t.Errorf("token query param = %q, want ts_secret", tok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the handshake")
	}
}

func TestDialSocket_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	target, _ := normalizeTarget(srv.Listener.Addr().String())
	_, err := dialSocket(context.Background(), target, "ts_bad")

	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *AuthorizationError", err)
	}
	if authErr.Status != 401 {
		t.Errorf("Status = %d, want 401", authErr.Status)
	}
	if !isTerminal(err) {
		t.Error("handshake 401 must be terminal")
	}
}

func TestDialSocket_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target, _ := normalizeTarget(srv.Listener.Addr().String())
	srv.Close()

	_, err := dialSocket(context.Background(), target, "ts_token")
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error = %v, want *ConnectionError", err)
	}
	if isTerminal(err) {
		t.Error("network failure must stay retryable")
	}
}

func TestSocket_RemoteDrop_InvokesCloseHandler(t *testing.T) {
	proceed := make(chan struct{})
	_, target := mockPeer(t, func(conn *websocket.Conn, r *http.Request) {
		<-proceed
		// defer in mockPeer closes the connection.
	})

	tr, err := dialSocket(context.Background(), target, "ts_token")
	if err != nil {
		t.Fatalf("dialSocket() error: %v", err)
	}
	defer tr.close()

	dropped := make(chan error, 1)
	tr.setCloseHandler(func(err error) { dropped <- err })
	tr.setReceiveHandler(func([]byte) {})

	close(proceed)

	select {
	case err := <-dropped:
		if err == nil {
			t.Error("close handler should carry the read error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close handler never invoked on remote drop")
	}
}

func TestSocket_LocalClose_NoCloseHandler(t *testing.T) {
	_, target := mockPeer(t, func(conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
	})

	tr, err := dialSocket(context.Background(), target, "ts_token")
	if err != nil {
		t.Fatalf("dialSocket() error: %v", err)
	}

	var mu sync.Mutex
	var invoked bool
	tr.setCloseHandler(func(error) {
		mu.Lock()
		invoked = true
		mu.Unlock()
	})
	tr.setReceiveHandler(func([]byte) {})

	if err := tr.close(); err != nil {
		t.Fatalf("close() error: %v", err)
	}
	if err := tr.close(); err != nil {
		t.Errorf("second close() error: %v, want idempotent nil", err)
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if invoked {
		t.Error("close handler must not fire for a locally initiated close")
	}
}

func TestSocket_HoldsFramesUntilHandlerWired(t *testing.T) {
	_, target := mockPeer(t, func(conn *websocket.Conn, r *http.Request) {
		// Push a frame immediately, before the client wires its handler.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"v":"1","method":"early"}`))
		conn.ReadMessage()
	})

	tr, err := dialSocket(context.Background(), target, "ts_token")
	if err != nil {
		t.Fatalf("dialSocket() error: %v", err)
	}
	defer tr.close()

	time.Sleep(50 * time.Millisecond)

	received := make(chan []byte, 1)
	tr.setCloseHandler(func(error) {})
	tr.setReceiveHandler(func(data []byte) { received <- data })

	select {
	case data := <-received:
		if string(data) != `{"v":"1","method":"early"}` {
			t.Errorf("received %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame sent before handler wiring was lost")
	}
}
