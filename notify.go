package tether

import (
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
)

// NotificationHandler is the signature for server-pushed notification
// handlers. Handlers run on the transport delivery goroutine, so delivery
// order matches arrival order; slow handlers should hand off internally.
type NotificationHandler func(n *Notification)

// Notification is an inbound message carrying no correlation id and
// expecting no reply.
type Notification struct {
	Method string
	params json.RawMessage
}

// UnmarshalParams decodes the notification params into the provided struct.
func (n *Notification) UnmarshalParams(v any) error {
	if n.params == nil {
		return errors.New("notification has no params")
	}
	return json.Unmarshal(n.params, v)
}

type notificationRegistry struct {
	mu         sync.RWMutex
	handlers   map[string]NotificationHandler // method → handler
	fallbackFn NotificationHandler
}

func newNotificationRegistry() *notificationRegistry {
	return &notificationRegistry{
		handlers: make(map[string]NotificationHandler),
	}
}

func (r *notificationRegistry) register(method string, fn NotificationHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[method]; exists {
		return fmt.Errorf("handler already registered for method %q", method)
	}
	r.handlers[method] = fn
	return nil
}

func (r *notificationRegistry) lookup(method string) (NotificationHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[method]
	return fn, ok
}

func (r *notificationRegistry) setFallback(fn NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbackFn = fn
}

func (r *notificationRegistry) fallback() NotificationHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallbackFn
}
