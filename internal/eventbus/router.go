package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Message types routed between components.
const (
	// MessageShowNotification asks the poller to show the review notification
	// if the user enabled notifications.
	MessageShowNotification = "notification.show"
	// MessageSetBadge asks the poller to set the badge to Message.Text.
	MessageSetBadge = "badge.set"
)

var ErrNoHandler = errors.New("no handler for message")

// Message is a request sent from one component to another. Unlike Event it is
// delivered synchronously to exactly one handler, and the sender sees its error.
type Message struct {
	Type string
	Text string
}

type HandlerFunc func(ctx context.Context, msg Message) error

// Router dispatches messages by type.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRouter() *Router {
	return &Router{handlers: map[string]HandlerFunc{}}
}

// Handle registers h for messages of type typ, replacing any previous handler.
func (r *Router) Handle(typ string, h HandlerFunc) {
	typ = strings.TrimSpace(typ)
	if typ == "" || h == nil {
		return
	}
	r.mu.Lock()
	r.handlers[typ] = h
	r.mu.Unlock()
}

// Send delivers msg to its handler and returns the handler's error.
func (r *Router) Send(ctx context.Context, msg Message) error {
	r.mu.RLock()
	h := r.handlers[msg.Type]
	r.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("%w: %q", ErrNoHandler, msg.Type)
	}
	return h(ctx, msg)
}
