package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// Reserved method names. The router injects their handling itself;
// user registrations under these names are rejected.
const (
	methodInitialize    = "initialize"
	methodShutdown      = "shutdown"
	methodExit          = "exit"
	methodCancelRequest = "$/cancelRequest"
)

// method is one row of the dispatch table: an rpc name, whether the
// method carries params and expects a result, and the decoded-params
// handler invocation.
type method struct {
	name      string
	hasParams bool
	hasResult bool

	// decode performs the second decoding pass over the raw params.
	// A failure is carried as data (the reason string) rather than an
	// error so the dispatcher can still answer with the request's ID.
	decode func(raw json.RawMessage) (value any, invalid string)

	// invoke runs the handler with the decoded params (nil when the
	// method declares none). The result is ignored for notifications.
	invoke func(ctx context.Context, params any) (any, error)
}

// Router maps inbound method names onto registered handlers while
// enforcing the LSP lifecycle state machine and tracking in-flight
// requests for cancellation. It implements Service.
type Router struct {
	logger  *log.Logger
	state   state
	pending *pending
	methods map[string]*method

	initialize  *method
	shutdownFn  func(ctx context.Context) error
	requestElse func(ctx context.Context, method string, params json.RawMessage) (any, error)
}

// NewRouter creates an empty router. A nil logger logs to stderr.
func NewRouter(logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(os.Stderr, "[lspkit] ", log.LstdFlags)
	}
	return &Router{
		logger:  logger,
		pending: newPending(logger),
		methods: make(map[string]*method),
	}
}

// State returns the current lifecycle state. Transitions are driven by
// the dispatcher; this is a read-only view.
func (r *Router) State() StateKind {
	return r.state.get()
}

func (r *Router) register(m *method) error {
	switch m.name {
	case methodInitialize, methodShutdown, methodExit, methodCancelRequest:
		return fmt.Errorf("method %s is reserved", m.name)
	}
	if _, exists := r.methods[m.name]; exists {
		return fmt.Errorf("handler already registered for method %s", m.name)
	}
	r.methods[m.name] = m
	return nil
}

// decodeAs decodes raw params into *P, carrying failure as data. An
// absent or null params object on a method that declares params is a
// decode failure, not a malformed envelope.
func decodeAs[P any](raw json.RawMessage) (any, string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, "Missing params field"
	}
	p := new(P)
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err.Error()
	}
	return p, ""
}

// Initialize registers the initialize handler. The dispatcher gives it
// special lifecycle treatment: the state moves to initializing before
// the handler runs, then to initialized on success or back to
// uninitialized on error.
func Initialize[P any, R any](r *Router, h func(ctx context.Context, params *P) (R, error)) {
	r.initialize = &method{
		name:      methodInitialize,
		hasParams: true,
		hasResult: true,
		decode:    decodeAs[P],
		invoke: func(ctx context.Context, params any) (any, error) {
			return h(ctx, params.(*P))
		},
	}
}

// Shutdown registers the shutdown handler, invoked once in the
// initialized state; the state moves to shut-down before it runs.
func Shutdown(r *Router, h func(ctx context.Context) error) {
	r.shutdownFn = h
}

// RequestElse registers the catch-all for unknown methods that carry
// an ID. Without it, unknown requests are answered method-not-found.
func RequestElse(r *Router, h func(ctx context.Context, method string, params json.RawMessage) (any, error)) {
	r.requestElse = h
}

// Request registers a request handler: has params, has result.
func Request[P any, R any](r *Router, name string, h func(ctx context.Context, params *P) (R, error)) error {
	return r.register(&method{
		name:      name,
		hasParams: true,
		hasResult: true,
		decode:    decodeAs[P],
		invoke: func(ctx context.Context, params any) (any, error) {
			return h(ctx, params.(*P))
		},
	})
}

// RequestNoParams registers a request handler for a method that
// declares no parameters.
func RequestNoParams[R any](r *Router, name string, h func(ctx context.Context) (R, error)) error {
	return r.register(&method{
		name:      name,
		hasResult: true,
		invoke: func(ctx context.Context, _ any) (any, error) {
			return h(ctx)
		},
	})
}

// Notification registers a notification handler: has params, no
// result.
func Notification[P any](r *Router, name string, h func(ctx context.Context, params *P)) error {
	return r.register(&method{
		name:      name,
		hasParams: true,
		decode:    decodeAs[P],
		invoke: func(ctx context.Context, params any) (any, error) {
			h(ctx, params.(*P))
			return nil, nil
		},
	})
}

// NotificationNoParams registers a notification handler for a method
// that declares no parameters.
func NotificationNoParams(r *Router, name string, h func(ctx context.Context)) error {
	return r.register(&method{
		name: name,
		invoke: func(ctx context.Context, _ any) (any, error) {
			h(ctx)
			return nil, nil
		},
	})
}
