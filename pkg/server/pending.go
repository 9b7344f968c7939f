package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/WaylonWalker/lspkit-go/pkg/jsonrpc"
)

// pendingWork is a request handler invocation: it yields either a
// result value or a JSON-RPC error, never both.
type pendingWork func(ctx context.Context) (any, *jsonrpc.Error)

type pendingEntry struct {
	cancel context.CancelFunc
}

// pending tracks in-flight request IDs so concurrent handlers can be
// cancelled by client request. Critical sections never span a handler
// invocation.
type pending struct {
	logger  *log.Logger
	mu      sync.Mutex
	entries map[jsonrpc.ID]*pendingEntry
}

func newPending(logger *log.Logger) *pending {
	return &pending{
		logger:  logger,
		entries: make(map[jsonrpc.ID]*pendingEntry),
	}
}

// execute registers id and returns the future that runs work. The
// registration is complete when execute returns, so a cancel arriving
// while the future is still queued finds its target.
//
// If id is already registered the new registration wins: the prior
// handler is cancelled and resolves to a request-cancelled error.
//
// Exactly one response with id is produced per registration, and the
// id never leaks: completion, cancellation, and handler panics all
// remove it.
func (p *pending) execute(ctx context.Context, id jsonrpc.ID, work pendingWork) Future {
	cctx, cancel := context.WithCancel(ctx)
	entry := &pendingEntry{cancel: cancel}

	p.mu.Lock()
	if prev, ok := p.entries[id]; ok {
		p.logger.Printf("request %s superseded by duplicate id", id)
		prev.cancel()
	}
	p.entries[id] = entry
	p.mu.Unlock()

	return func() jsonrpc.Outgoing {
		done := make(chan *jsonrpc.Response, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Printf("handler for request %s panicked: %v", id, r)
					done <- jsonrpc.NewErrorResponse(id, jsonrpc.ErrInternal(fmt.Sprintf("handler panic: %v", r)))
				}
			}()
			result, rerr := work(cctx)
			if rerr != nil {
				done <- jsonrpc.NewErrorResponse(id, rerr)
				return
			}
			done <- jsonrpc.NewResponse(id, result)
		}()

		var resp *jsonrpc.Response
		select {
		case resp = <-done:
		case <-cctx.Done():
			// The handler is abandoned; it observes cctx and should
			// stop promptly, but the response goes out now.
			resp = jsonrpc.NewErrorResponse(id, jsonrpc.ErrRequestCancelled())
		}

		p.remove(id, entry)
		cancel()
		return resp
	}
}

// cancel signals cancellation of the entry for id, if present.
func (p *pending) cancel(id jsonrpc.ID) {
	p.mu.Lock()
	entry, ok := p.entries[id]
	p.mu.Unlock()
	if ok {
		p.logger.Printf("cancelling request %s", id)
		entry.cancel()
	}
}

// cancelAll cancels every pending entry. Idempotent.
func (p *pending) cancelAll() {
	p.mu.Lock()
	entries := make([]*pendingEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
}

// remove drops the entry for id unless a duplicate registration has
// already replaced it.
func (p *pending) remove(id jsonrpc.ID, entry *pendingEntry) {
	p.mu.Lock()
	if cur, ok := p.entries[id]; ok && cur == entry {
		delete(p.entries, id)
	}
	p.mu.Unlock()
}
