package server

import (
	"context"
	"errors"

	"github.com/WaylonWalker/lspkit-go/pkg/jsonrpc"
)

// ErrExited is returned by Ready once the server has observed an exit
// notification. The transport treats it as fatal to the reader and
// drains the writer.
var ErrExited = errors.New("language server has exited")

// Future resolves to the outgoing message produced for one inbound
// message, or nil when the message produces none. The transport loop
// awaits futures with bounded concurrency; responses therefore leave
// in handler-completion order, correlated by ID.
type Future func() jsonrpc.Outgoing

// readyFuture wraps an already-computed message.
func readyFuture(msg jsonrpc.Outgoing) Future {
	return func() jsonrpc.Outgoing { return msg }
}

// noneFuture is the future of messages that produce no reply.
func noneFuture() jsonrpc.Outgoing { return nil }

// Service turns one decoded request into one optional outgoing
// message. *Router is the provided implementation; anything satisfying
// the contract can be served.
//
// Call must complete any bookkeeping that later messages depend on
// (pending-request registration in particular) before returning the
// future; the future itself runs the handler.
type Service interface {
	// Ready reports whether the service can accept another message.
	// An error is fatal to the transport reader.
	Ready() error

	// Call dispatches one request envelope.
	Call(ctx context.Context, req *jsonrpc.Request) Future
}
