// Package tether maintains a persistent, credential-gated RPC session
// between an application and a single remote peer over WebSocket.
//
// The package has two halves. The Client is the correlation engine: it
// turns the raw duplex connection into request/response semantics
// (Call), fire-and-forget messaging (Notify), and server-pushed
// notification dispatch (Handle). The Manager is the connection
// lifecycle: it resolves credentials through a TokenProvider, opens the
// transport, and drives a bounded-retry/cooldown reconnect loop that
// keeps trying through transient failures but stops immediately on
// authorization failures.
//
// Basic usage:
//
//	client, err := tether.NewClient(tether.LogErrors(log.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.Handle("session/updated", func(n *tether.Notification) {
//	    log.Printf("session updated")
//	})
//
//	mgr, err := tether.NewManager(tether.Config{}, client, tokens)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := mgr.Connect(ctx, "devbox.local:9480", "tp_one-time-code"); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Disconnect()
//
//	result, err := client.Call(ctx, "echo", map[string]string{"msg": "hi"})
package tether
