package server

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/WaylonWalker/lspkit-go/pkg/jsonrpc"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func asResponse(t *testing.T, msg jsonrpc.Outgoing) *jsonrpc.Response {
	t.Helper()
	resp, ok := msg.(*jsonrpc.Response)
	if !ok {
		t.Fatalf("outgoing = %T, want *jsonrpc.Response", msg)
	}
	return resp
}

func TestPendingExecute(t *testing.T) {
	p := newPending(discardLogger())
	id := jsonrpc.NumberID(1)

	fut := p.execute(context.Background(), id, func(ctx context.Context) (any, *jsonrpc.Error) {
		return "ok", nil
	})

	resp := asResponse(t, fut())
	if resp.ID != id {
		t.Errorf("id = %v, want %v", resp.ID, id)
	}
	if string(resp.Result) != `"ok"` {
		t.Errorf("result = %s, want \"ok\"", resp.Result)
	}
	if resp.Error != nil {
		t.Errorf("error = %v, want nil", resp.Error)
	}
	if n := len(p.entries); n != 0 {
		t.Errorf("entries after completion = %d, want 0", n)
	}
}

func TestPendingExecuteError(t *testing.T) {
	p := newPending(discardLogger())
	id := jsonrpc.StringID("x")

	fut := p.execute(context.Background(), id, func(ctx context.Context) (any, *jsonrpc.Error) {
		return nil, jsonrpc.NewError(-32001, "backend gone")
	})

	resp := asResponse(t, fut())
	if resp.Error == nil || resp.Error.Code != -32001 {
		t.Errorf("error = %v, want code -32001", resp.Error)
	}
	if n := len(p.entries); n != 0 {
		t.Errorf("entries after error = %d, want 0", n)
	}
}

func TestPendingCancel(t *testing.T) {
	p := newPending(discardLogger())
	id := jsonrpc.NumberID(5)

	started := make(chan struct{})
	fut := p.execute(context.Background(), id, func(ctx context.Context) (any, *jsonrpc.Error) {
		close(started)
		<-ctx.Done()
		return nil, jsonrpc.ErrInternal("handler observed cancel")
	})

	result := make(chan jsonrpc.Outgoing, 1)
	go func() { result <- fut() }()

	<-started
	p.cancel(id)

	resp := asResponse(t, <-result)
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeRequestCancelled {
		t.Errorf("error = %v, want code %d", resp.Error, jsonrpc.CodeRequestCancelled)
	}
	if resp.ID != id {
		t.Errorf("id = %v, want %v", resp.ID, id)
	}
	if n := len(p.entries); n != 0 {
		t.Errorf("entries after cancel = %d, want 0", n)
	}
}

func TestPendingCancelAbsentIsNoop(t *testing.T) {
	p := newPending(discardLogger())
	p.cancel(jsonrpc.NumberID(99))
}

func TestPendingDuplicateIDSupersedes(t *testing.T) {
	p := newPending(discardLogger())
	id := jsonrpc.NumberID(2)

	started := make(chan struct{})
	first := p.execute(context.Background(), id, func(ctx context.Context) (any, *jsonrpc.Error) {
		close(started)
		<-ctx.Done()
		return nil, nil
	})

	firstResult := make(chan jsonrpc.Outgoing, 1)
	go func() { firstResult <- first() }()
	<-started

	second := p.execute(context.Background(), id, func(ctx context.Context) (any, *jsonrpc.Error) {
		return "winner", nil
	})

	resp := asResponse(t, <-firstResult)
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeRequestCancelled {
		t.Errorf("superseded request error = %v, want code %d", resp.Error, jsonrpc.CodeRequestCancelled)
	}

	resp = asResponse(t, second())
	if string(resp.Result) != `"winner"` {
		t.Errorf("result = %s, want \"winner\"", resp.Result)
	}
	if n := len(p.entries); n != 0 {
		t.Errorf("entries = %d, want 0", n)
	}
}

func TestPendingCancelAll(t *testing.T) {
	p := newPending(discardLogger())

	results := make(chan jsonrpc.Outgoing, 2)
	for _, id := range []jsonrpc.ID{jsonrpc.NumberID(1), jsonrpc.NumberID(2)} {
		started := make(chan struct{})
		fut := p.execute(context.Background(), id, func(ctx context.Context) (any, *jsonrpc.Error) {
			close(started)
			<-ctx.Done()
			return nil, nil
		})
		go func() { results <- fut() }()
		<-started
	}

	p.cancelAll()
	for i := 0; i < 2; i++ {
		resp := asResponse(t, <-results)
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeRequestCancelled {
			t.Errorf("error = %v, want code %d", resp.Error, jsonrpc.CodeRequestCancelled)
		}
	}

	// Idempotent.
	p.cancelAll()
}

func TestPendingHandlerPanic(t *testing.T) {
	p := newPending(discardLogger())
	id := jsonrpc.NumberID(7)

	fut := p.execute(context.Background(), id, func(ctx context.Context) (any, *jsonrpc.Error) {
		panic("boom")
	})

	resp := asResponse(t, fut())
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInternalError {
		t.Errorf("error = %v, want code %d", resp.Error, jsonrpc.CodeInternalError)
	}
	if resp.ID != id {
		t.Errorf("id = %v, want %v", resp.ID, id)
	}
	if n := len(p.entries); n != 0 {
		t.Errorf("entries after panic = %d, want 0", n)
	}
}

func TestPendingParentContextCancels(t *testing.T) {
	p := newPending(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	fut := p.execute(ctx, jsonrpc.NumberID(3), func(ctx context.Context) (any, *jsonrpc.Error) {
		close(started)
		<-ctx.Done()
		return nil, nil
	})

	result := make(chan jsonrpc.Outgoing, 1)
	go func() { result <- fut() }()
	<-started
	cancel()

	select {
	case msg := <-result:
		resp := asResponse(t, msg)
		if resp.Error == nil || resp.Error.Code != jsonrpc.CodeRequestCancelled {
			t.Errorf("error = %v, want code %d", resp.Error, jsonrpc.CodeRequestCancelled)
		}
	case <-time.After(time.Second):
		t.Fatal("future did not resolve after parent cancellation")
	}
}
