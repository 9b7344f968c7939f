package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/WaylonWalker/lspkit-go/pkg/jsonrpc"
)

// cancelParams is the payload of $/cancelRequest.
type cancelParams struct {
	ID jsonrpc.ID `json:"id"`
}

// Ready implements Service. It fails once the server has exited,
// which terminates the transport reader.
func (r *Router) Ready() error {
	if r.state.get() == StateExited {
		return ErrExited
	}
	return nil
}

// Call implements Service: it turns one decoded request into a future
// of one optional outgoing message, enforcing the lifecycle state
// machine. Pending-request registration happens before Call returns;
// the returned future runs the handler.
func (r *Router) Call(ctx context.Context, req *jsonrpc.Request) Future {
	if req.Method == "" {
		// A response from the client. Nothing here awaits those.
		r.logger.Printf("dropping unexpected client response")
		return readyFuture(nil)
	}

	switch req.Method {
	case methodCancelRequest:
		return r.dispatchCancel(req)
	case methodExit:
		r.logger.Printf("exit notification received, stopping")
		r.state.set(StateExited)
		r.pending.cancelAll()
		return noneFuture
	case methodInitialize:
		if r.initialize != nil {
			return r.dispatchInitialize(ctx, req)
		}
	case methodShutdown:
		if r.shutdownFn != nil {
			return r.dispatchShutdown(ctx, req)
		}
	default:
		if m, ok := r.methods[req.Method]; ok {
			return r.dispatchKnown(ctx, m, req)
		}
	}

	return r.dispatchOther(ctx, req)
}

// dispatchCancel handles $/cancelRequest. It never produces a
// response; outside the initialized state it is dropped like any other
// notification.
func (r *Router) dispatchCancel(req *jsonrpc.Request) Future {
	if r.state.get() != StateInitialized {
		return noneFuture
	}
	var params cancelParams
	if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil {
		r.logger.Printf("malformed $/cancelRequest params, ignoring")
		return noneFuture
	}
	r.pending.cancel(params.ID)
	return noneFuture
}

// dispatchInitialize applies the initialize-specific lifecycle rules.
func (r *Router) dispatchInitialize(ctx context.Context, req *jsonrpc.Request) Future {
	if req.ID == nil {
		// Request method sent as a notification; there is nothing to
		// correlate a response with.
		r.logger.Printf("method %q not found", req.Method)
		return noneFuture
	}
	id := *req.ID

	switch r.state.get() {
	case StateUninitialized:
		params, invalid := r.initialize.decode(req.Params)
		if invalid != "" {
			r.logger.Printf("invalid parameters for %q request", req.Method)
			return readyFuture(jsonrpc.NewErrorResponse(id, jsonrpc.ErrInvalidParams(invalid)))
		}
		r.state.set(StateInitializing)
		return func() jsonrpc.Outgoing {
			return r.runInitialize(ctx, id, params)
		}
	case StateInitializing:
		// The error path deliberately leaves the state at
		// initializing; the first initialize still owns it.
		r.logger.Printf("received duplicate initialize request, ignoring")
		return readyFuture(jsonrpc.NewErrorResponse(id, jsonrpc.ErrInvalidRequest()))
	default:
		return r.rejectRequest(id)
	}
}

func (r *Router) runInitialize(ctx context.Context, id jsonrpc.ID, params any) (out jsonrpc.Outgoing) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("initialize handler panicked: %v", rec)
			r.state.set(StateUninitialized)
			out = jsonrpc.NewErrorResponse(id, jsonrpc.ErrInternal(fmt.Sprintf("handler panic: %v", rec)))
		}
	}()

	result, err := r.initialize.invoke(ctx, params)
	if err != nil {
		r.state.set(StateUninitialized)
		return jsonrpc.NewErrorResponse(id, toRPCError(err))
	}
	r.logger.Printf("language server initialized")
	r.state.set(StateInitialized)
	return jsonrpc.NewResponse(id, result)
}

// dispatchShutdown moves the state to shut-down and runs the shutdown
// handler through the pending registry.
func (r *Router) dispatchShutdown(ctx context.Context, req *jsonrpc.Request) Future {
	if req.ID == nil {
		r.logger.Printf("method %q not found", req.Method)
		return noneFuture
	}
	id := *req.ID

	switch r.state.get() {
	case StateInitialized:
		r.logger.Printf("shutdown request received, shutting down")
		r.state.set(StateShutDown)
		return r.pending.execute(ctx, id, func(ctx context.Context) (any, *jsonrpc.Error) {
			if err := r.shutdownFn(ctx); err != nil {
				return nil, toRPCError(err)
			}
			return nil, nil
		})
	case StateUninitialized:
		return readyFuture(jsonrpc.NewErrorResponse(id, jsonrpc.ErrServerNotInitialized()))
	default:
		return r.rejectRequest(id)
	}
}

// dispatchKnown applies the generic policy rows to a registered
// method.
func (r *Router) dispatchKnown(ctx context.Context, m *method, req *jsonrpc.Request) Future {
	if m.hasResult {
		if req.ID == nil {
			r.logger.Printf("method %q not found", req.Method)
			return noneFuture
		}
		id := *req.ID

		switch r.state.get() {
		case StateInitialized:
		case StateUninitialized:
			return readyFuture(jsonrpc.NewErrorResponse(id, jsonrpc.ErrServerNotInitialized()))
		default:
			return r.rejectRequest(id)
		}

		var params any
		if m.hasParams {
			var invalid string
			params, invalid = m.decode(req.Params)
			if invalid != "" {
				r.logger.Printf("invalid parameters for %q request", req.Method)
				return readyFuture(jsonrpc.NewErrorResponse(id, jsonrpc.ErrInvalidParams(invalid)))
			}
		}
		return r.pending.execute(ctx, id, func(ctx context.Context) (any, *jsonrpc.Error) {
			result, err := m.invoke(ctx, params)
			if err != nil {
				return nil, toRPCError(err)
			}
			return result, nil
		})
	}

	// Notification rows: fire and forget, dropped outside the
	// initialized state.
	if r.state.get() != StateInitialized {
		return noneFuture
	}

	var params any
	if m.hasParams {
		var invalid string
		params, invalid = m.decode(req.Params)
		if invalid != "" {
			r.logger.Printf("invalid parameters for %q notification", req.Method)
			return noneFuture
		}
	}
	return func() jsonrpc.Outgoing {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Printf("handler for notification %q panicked: %v", m.name, rec)
			}
		}()
		m.invoke(ctx, params) //nolint:errcheck
		return nil
	}
}

// dispatchOther handles methods outside the table. Requests go through
// the catch-all when one is registered; unknown $/-prefixed
// notifications are ignored per the protocol. These rows apply in
// every lifecycle state.
func (r *Router) dispatchOther(ctx context.Context, req *jsonrpc.Request) Future {
	if req.ID != nil {
		id := *req.ID
		if r.requestElse == nil {
			return readyFuture(jsonrpc.NewErrorResponse(id, jsonrpc.ErrMethodNotFound()))
		}
		methodName, params := req.Method, req.Params
		return r.pending.execute(ctx, id, func(ctx context.Context) (any, *jsonrpc.Error) {
			result, err := r.requestElse(ctx, methodName, params)
			if err != nil {
				return nil, toRPCError(err)
			}
			return result, nil
		})
	}

	if !strings.HasPrefix(req.Method, "$/") {
		r.logger.Printf("method %q not found", req.Method)
	}
	return noneFuture
}

// rejectRequest answers requests received after shutdown (or in any
// other lifecycle-forbidden state).
func (r *Router) rejectRequest(id jsonrpc.ID) Future {
	return readyFuture(jsonrpc.NewErrorResponse(id, jsonrpc.ErrInvalidRequest()))
}

// toRPCError maps a handler error onto the wire: JSON-RPC errors pass
// through, anything else is an internal error.
func toRPCError(err error) *jsonrpc.Error {
	var rpcErr *jsonrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return jsonrpc.ErrInternal(err.Error())
}
