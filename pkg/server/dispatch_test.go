package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/WaylonWalker/lspkit-go/pkg/jsonrpc"
)

type initializeParams struct {
	RootURI string `json:"rootUri"`
}

type hoverParams struct {
	URI string `json:"uri"`
}

// newTestRouter wires a router with one of each handler shape.
func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter(discardLogger())

	Initialize(r, func(ctx context.Context, params *initializeParams) (map[string]any, error) {
		return map[string]any{"capabilities": map[string]any{}}, nil
	})
	Shutdown(r, func(ctx context.Context) error { return nil })

	if err := Request(r, "textDocument/hover", func(ctx context.Context, params *hoverParams) (string, error) {
		return "hover:" + params.URI, nil
	}); err != nil {
		t.Fatal(err)
	}
	return r
}

func dispatch(t *testing.T, r *Router, raw string) jsonrpc.Outgoing {
	t.Helper()
	var req jsonrpc.Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	return r.Call(context.Background(), &req)()
}

// mustInitialize drives the router into the initialized state.
func mustInitialize(t *testing.T, r *Router) {
	t.Helper()
	msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"initialize","params":{},"id":1}`)
	resp := asResponse(t, msg)
	if resp.Error != nil {
		t.Fatalf("initialize failed: %v", resp.Error)
	}
	if r.State() != StateInitialized {
		t.Fatalf("state = %v, want initialized", r.State())
	}
}

func TestDispatchInitialize(t *testing.T) {
	r := newTestRouter(t)

	msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"initialize","params":{"rootUri":"file:///w"},"id":1}`)
	resp := asResponse(t, msg)
	if resp.ID != jsonrpc.NumberID(1) {
		t.Errorf("id = %v, want 1", resp.ID)
	}
	if string(resp.Result) != `{"capabilities":{}}` {
		t.Errorf("result = %s", resp.Result)
	}
	if r.State() != StateInitialized {
		t.Errorf("state = %v, want initialized", r.State())
	}
}

func TestDispatchInitializeInvalidParams(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "absent params", raw: `{"jsonrpc":"2.0","method":"initialize","id":1}`},
		{name: "null params", raw: `{"jsonrpc":"2.0","method":"initialize","params":null,"id":1}`},
		{name: "wrong shape", raw: `{"jsonrpc":"2.0","method":"initialize","params":[1],"id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			resp := asResponse(t, dispatch(t, r, tt.raw))
			if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
				t.Errorf("error = %v, want code %d", resp.Error, jsonrpc.CodeInvalidParams)
			}
			if resp.ID != jsonrpc.NumberID(1) {
				t.Errorf("id = %v, want 1", resp.ID)
			}
			if r.State() != StateUninitialized {
				t.Errorf("state = %v, want uninitialized", r.State())
			}
		})
	}
}

func TestDispatchInitializeHandlerError(t *testing.T) {
	r := NewRouter(discardLogger())
	Initialize(r, func(ctx context.Context, params *initializeParams) (any, error) {
		return nil, errors.New("workspace unreadable")
	})

	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"initialize","params":{},"id":1}`))
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInternalError {
		t.Errorf("error = %v, want internal", resp.Error)
	}
	if r.State() != StateUninitialized {
		t.Errorf("state = %v, want uninitialized after failed initialize", r.State())
	}
}

func TestDispatchDuplicateInitialize(t *testing.T) {
	r := NewRouter(discardLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	Initialize(r, func(ctx context.Context, params *initializeParams) (any, error) {
		close(started)
		<-release
		return map[string]any{}, nil
	})

	first := make(chan jsonrpc.Outgoing, 1)
	go func() { first <- dispatchRaw(r, `{"jsonrpc":"2.0","method":"initialize","params":{},"id":1}`) }()
	<-started

	// The engine answers the duplicate without resetting the state;
	// the first initialize still owns it.
	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"initialize","params":{},"id":2}`))
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidRequest {
		t.Errorf("error = %v, want invalid request", resp.Error)
	}
	if resp.ID != jsonrpc.NumberID(2) {
		t.Errorf("id = %v, want 2", resp.ID)
	}
	if r.State() != StateInitializing {
		t.Errorf("state = %v, want initializing", r.State())
	}

	close(release)
	if resp := asResponse(t, <-first); resp.Error != nil {
		t.Errorf("first initialize error = %v", resp.Error)
	}
	if r.State() != StateInitialized {
		t.Errorf("state = %v, want initialized", r.State())
	}
}

func TestDispatchRequestBeforeInitialize(t *testing.T) {
	r := newTestRouter(t)

	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/hover","params":{"uri":"file:///a.md"},"id":7}`))
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeServerNotInitialized {
		t.Errorf("error = %v, want code %d", resp.Error, jsonrpc.CodeServerNotInitialized)
	}
	if resp.ID != jsonrpc.NumberID(7) {
		t.Errorf("id = %v, want 7", resp.ID)
	}
}

func TestDispatchNotificationBeforeInitializeDropped(t *testing.T) {
	r := newTestRouter(t)
	called := false
	if err := Notification(r, "textDocument/didOpen", func(ctx context.Context, params *hoverParams) {
		called = true
	}); err != nil {
		t.Fatal(err)
	}

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/didOpen","params":{"uri":"file:///a.md"}}`); msg != nil {
		t.Errorf("outgoing = %v, want none", msg)
	}
	if called {
		t.Error("notification handler ran before initialization")
	}
}

func TestDispatchRequest(t *testing.T) {
	r := newTestRouter(t)
	mustInitialize(t, r)

	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/hover","params":{"uri":"file:///a.md"},"id":2}`))
	if string(resp.Result) != `"hover:file:///a.md"` {
		t.Errorf("result = %s", resp.Result)
	}
	if resp.ID != jsonrpc.NumberID(2) {
		t.Errorf("id = %v, want 2", resp.ID)
	}
}

func TestDispatchRequestInvalidParams(t *testing.T) {
	r := newTestRouter(t)
	mustInitialize(t, r)

	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/hover","params":"nope","id":2}`))
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
		t.Errorf("error = %v, want invalid params", resp.Error)
	}
	if resp.ID != jsonrpc.NumberID(2) {
		t.Errorf("id = %v, want 2", resp.ID)
	}
}

func TestDispatchRequestNoParams(t *testing.T) {
	r := newTestRouter(t)
	if err := RequestNoParams(r, "workspace/symbolCount", func(ctx context.Context) (int, error) {
		return 42, nil
	}); err != nil {
		t.Fatal(err)
	}
	mustInitialize(t, r)

	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"workspace/symbolCount","id":3}`))
	if string(resp.Result) != "42" {
		t.Errorf("result = %s, want 42", resp.Result)
	}
}

func TestDispatchRequestWithoutIDIsDropped(t *testing.T) {
	r := newTestRouter(t)
	mustInitialize(t, r)

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/hover","params":{"uri":"file:///a.md"}}`); msg != nil {
		t.Errorf("outgoing = %v, want none", msg)
	}
}

func TestDispatchNotification(t *testing.T) {
	r := newTestRouter(t)
	got := make(chan string, 1)
	if err := Notification(r, "textDocument/didOpen", func(ctx context.Context, params *hoverParams) {
		got <- params.URI
	}); err != nil {
		t.Fatal(err)
	}
	mustInitialize(t, r)

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/didOpen","params":{"uri":"file:///a.md"}}`); msg != nil {
		t.Errorf("outgoing = %v, want none", msg)
	}
	select {
	case uri := <-got:
		if uri != "file:///a.md" {
			t.Errorf("uri = %q", uri)
		}
	default:
		t.Error("notification handler did not run")
	}
}

func TestDispatchNotificationInvalidParamsDropped(t *testing.T) {
	r := newTestRouter(t)
	called := false
	if err := Notification(r, "textDocument/didOpen", func(ctx context.Context, params *hoverParams) {
		called = true
	}); err != nil {
		t.Fatal(err)
	}
	mustInitialize(t, r)

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/didOpen","params":7}`); msg != nil {
		t.Errorf("outgoing = %v, want none", msg)
	}
	if called {
		t.Error("handler ran with invalid params")
	}
}

func TestDispatchShutdown(t *testing.T) {
	r := newTestRouter(t)
	mustInitialize(t, r)

	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"shutdown","id":9}`))
	if resp.Error != nil {
		t.Errorf("error = %v", resp.Error)
	}
	if string(resp.Result) != "null" {
		t.Errorf("result = %s, want null", resp.Result)
	}
	if r.State() != StateShutDown {
		t.Errorf("state = %v, want shut down", r.State())
	}

	// Requests after shutdown are invalid; notifications drop.
	resp = asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"textDocument/hover","params":{"uri":"u"},"id":10}`))
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidRequest {
		t.Errorf("error = %v, want invalid request", resp.Error)
	}
}

func TestDispatchCancelRequest(t *testing.T) {
	r := newTestRouter(t)
	release := make(chan struct{})
	started := make(chan struct{})
	if err := Request(r, "workspace/slow", func(ctx context.Context, params *hoverParams) (any, error) {
		close(started)
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}); err != nil {
		t.Fatal(err)
	}
	mustInitialize(t, r)

	result := make(chan jsonrpc.Outgoing, 1)
	go func() { result <- dispatchRaw(r, `{"jsonrpc":"2.0","method":"workspace/slow","params":{"uri":"u"},"id":5}`) }()
	<-started

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"$/cancelRequest","params":{"id":5}}`); msg != nil {
		t.Errorf("cancel produced outgoing %v, want none", msg)
	}

	select {
	case msg := <-result:
		resp := asResponse(t, msg)
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeRequestCancelled {
			t.Errorf("error = %v, want code %d", resp.Error, jsonrpc.CodeRequestCancelled)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled request did not resolve")
	}
	close(release)
}

func TestDispatchCancelUnknownID(t *testing.T) {
	r := newTestRouter(t)
	mustInitialize(t, r)

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"$/cancelRequest","params":{"id":404}}`); msg != nil {
		t.Errorf("outgoing = %v, want none", msg)
	}
}

func TestDispatchExit(t *testing.T) {
	r := newTestRouter(t)
	started := make(chan struct{})
	if err := Request(r, "workspace/slow", func(ctx context.Context, params *hoverParams) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}
	mustInitialize(t, r)

	result := make(chan jsonrpc.Outgoing, 1)
	go func() { result <- dispatchRaw(r, `{"jsonrpc":"2.0","method":"workspace/slow","params":{"uri":"u"},"id":5}`) }()
	<-started

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"exit"}`); msg != nil {
		t.Errorf("exit produced outgoing %v, want none", msg)
	}
	if r.State() != StateExited {
		t.Errorf("state = %v, want exited", r.State())
	}
	if err := r.Ready(); !errors.Is(err, ErrExited) {
		t.Errorf("Ready = %v, want ErrExited", err)
	}

	select {
	case msg := <-result:
		resp := asResponse(t, msg)
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeRequestCancelled {
			t.Errorf("error = %v, want cancelled", resp.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request did not resolve after exit")
	}
}

func TestDispatchExitWorksInAnyState(t *testing.T) {
	r := newTestRouter(t)
	if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"exit"}`); msg != nil {
		t.Errorf("outgoing = %v, want none", msg)
	}
	if r.State() != StateExited {
		t.Errorf("state = %v, want exited", r.State())
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	r := newTestRouter(t)
	mustInitialize(t, r)

	t.Run("request without catch-all", func(t *testing.T) {
		resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"workspace/unknown","id":8}`))
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeMethodNotFound {
			t.Errorf("error = %v, want method not found", resp.Error)
		}
	})

	t.Run("dollar notification ignored", func(t *testing.T) {
		if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"$/telemetry","params":{}}`); msg != nil {
			t.Errorf("outgoing = %v, want none", msg)
		}
	})

	t.Run("plain notification ignored", func(t *testing.T) {
		if msg := dispatch(t, r, `{"jsonrpc":"2.0","method":"workspace/unknownNote"}`); msg != nil {
			t.Errorf("outgoing = %v, want none", msg)
		}
	})
}

func TestDispatchRequestElse(t *testing.T) {
	r := newTestRouter(t)
	RequestElse(r, func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		return fmt.Sprintf("else:%s", method), nil
	})

	// The catch-all applies in any lifecycle state.
	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"x/custom","params":{},"id":11}`))
	if string(resp.Result) != `"else:x/custom"` {
		t.Errorf("result = %s", resp.Result)
	}
	if resp.ID != jsonrpc.NumberID(11) {
		t.Errorf("id = %v, want 11", resp.ID)
	}
}

func TestDispatchHandlerJSONRPCErrorPassesThrough(t *testing.T) {
	r := newTestRouter(t)
	if err := Request(r, "workspace/guarded", func(ctx context.Context, params *hoverParams) (any, error) {
		return nil, jsonrpc.NewError(-32010, "not allowed")
	}); err != nil {
		t.Fatal(err)
	}
	mustInitialize(t, r)

	resp := asResponse(t, dispatch(t, r, `{"jsonrpc":"2.0","method":"workspace/guarded","params":{"uri":"u"},"id":4}`))
	if resp.Error == nil || resp.Error.Code != -32010 || resp.Error.Message != "not allowed" {
		t.Errorf("error = %v, want -32010 passed through", resp.Error)
	}
}

func TestDispatchClientResponseDropped(t *testing.T) {
	r := newTestRouter(t)
	mustInitialize(t, r)

	if msg := dispatch(t, r, `{"jsonrpc":"2.0","result":{},"id":1}`); msg != nil {
		t.Errorf("outgoing = %v, want none", msg)
	}
}

func TestRegisterReservedAndDuplicate(t *testing.T) {
	r := NewRouter(discardLogger())

	for _, name := range []string{"initialize", "shutdown", "exit", "$/cancelRequest"} {
		if err := NotificationNoParams(r, name, func(ctx context.Context) {}); err == nil {
			t.Errorf("registering %q: want reserved-name error", name)
		}
	}

	if err := RequestNoParams(r, "a/b", func(ctx context.Context) (any, error) { return nil, nil }); err != nil {
		t.Fatal(err)
	}
	if err := RequestNoParams(r, "a/b", func(ctx context.Context) (any, error) { return nil, nil }); err == nil {
		t.Error("want duplicate-registration error")
	}
}

// dispatchRaw is dispatch without the test handle, for goroutines.
func dispatchRaw(r *Router, raw string) jsonrpc.Outgoing {
	var req jsonrpc.Request
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		panic(err)
	}
	return r.Call(context.Background(), &req)()
}
