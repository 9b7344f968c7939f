// Package server implements the engine of a Language Server Protocol
// server: a transport loop multiplexing bidirectional JSON-RPC traffic
// over one framed connection, a router enforcing the LSP lifecycle
// state machine, and a registry of in-flight requests supporting
// client-driven cancellation.
//
// The engine owns the codec, the lifecycle cell, and the pending
// registry; handler semantics stay with the caller. A minimal server
// registers handlers on a Router and serves it:
//
//	router := server.NewRouter(logger)
//	server.Initialize(router, handleInitialize)
//	server.Shutdown(router, handleShutdown)
//	srv := server.NewServer(os.Stdin, os.Stdout)
//	err := srv.Serve(ctx, router)
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/WaylonWalker/lspkit-go/pkg/codec"
	"github.com/WaylonWalker/lspkit-go/pkg/jsonrpc"
)

const (
	// defaultQueueSize bounds the reader-to-writer queue, providing
	// backpressure from slow handlers into the reader.
	defaultQueueSize = 16

	// defaultConcurrency bounds how many dispatched futures run at
	// once.
	defaultConcurrency = 4
)

// Server processes requests and responses on standard I/O or any other
// byte transport.
type Server struct {
	stdin       io.Reader
	stdout      io.Writer
	interleave  <-chan jsonrpc.Outgoing
	logger      *log.Logger
	queueSize   int
	concurrency int64
}

// NewServer creates a Server reading frames from stdin and writing
// frames to stdout. For TCP, pass the two halves of the accepted
// connection.
func NewServer(stdin io.Reader, stdout io.Writer, opts ...Option) *Server {
	s := &Server{
		stdin:       stdin,
		stdout:      stdout,
		logger:      log.New(os.Stderr, "[lspkit] ", log.LstdFlags),
		queueSize:   defaultQueueSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interleave merges the given stream of server-initiated messages into
// stdout together with the responses. Each source sees its messages
// written in order; between sources there is no priority.
func (s *Server) Interleave(ch <-chan jsonrpc.Outgoing) *Server {
	s.interleave = ch
	return s
}

// Serve drives svc with messages read from stdin until the stream ends
// or the service reports a fatal error. Frames that fail to decode are
// answered with a null-ID parse error and do not stop serving. After
// the reader finishes, queued work is drained before Serve returns.
func (s *Server) Serve(ctx context.Context, svc Service) error {
	queue := make(chan Future, s.queueSize)
	out := make(chan jsonrpc.Outgoing)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.readLoop(gctx, svc, queue) })
	g.Go(func() error { return s.executeLoop(queue, out) })
	g.Go(func() error { return s.writeLoop(out) })

	return g.Wait()
}

// readLoop decodes frames and feeds the service. It owns queue.
func (s *Server) readLoop(ctx context.Context, svc Service, queue chan<- Future) error {
	defer close(queue)

	parseError := func() Future {
		return readyFuture(jsonrpc.NewErrorResponse(jsonrpc.ID{}, jsonrpc.ErrParseError()))
	}

	cr := codec.NewReader(s.stdin)
	for {
		body, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var derr *codec.DecodeError
		if errors.As(err, &derr) {
			s.logger.Printf("failed to decode message: %v", derr)
			if !s.enqueue(ctx, queue, parseError()) {
				return ctx.Err()
			}
			continue
		}
		if err != nil {
			s.logger.Printf("fatal transport error: %v", err)
			return err
		}

		var req jsonrpc.Request
		if err := json.Unmarshal(body, &req); err != nil {
			s.logger.Printf("failed to decode message: %v", err)
			if !s.enqueue(ctx, queue, parseError()) {
				return ctx.Err()
			}
			continue
		}

		if err := svc.Ready(); err != nil {
			if errors.Is(err, ErrExited) {
				return nil
			}
			s.logger.Printf("service is not ready: %v", err)
			return err
		}

		if !s.enqueue(ctx, queue, svc.Call(ctx, &req)) {
			return ctx.Err()
		}
	}
}

// enqueue blocks on the bounded queue, bailing out if the group is
// tearing down.
func (s *Server) enqueue(ctx context.Context, queue chan<- Future, fut Future) bool {
	select {
	case queue <- fut:
		return true
	case <-ctx.Done():
		return false
	}
}

// executeLoop resolves queued futures with bounded concurrency and
// forwards their messages. It owns out, closing it only after every
// admitted future has resolved, which gives the writer its drain
// guarantee.
func (s *Server) executeLoop(queue <-chan Future, out chan<- jsonrpc.Outgoing) error {
	defer close(out)

	sem := semaphore.NewWeighted(s.concurrency)
	var wg sync.WaitGroup

	for fut := range queue {
		// Acquire cannot fail against the background context; the
		// bound, not cancellation, is what gates admission here.
		_ = sem.Acquire(context.Background(), 1)
		wg.Add(1)
		go func(f Future) {
			defer wg.Done()
			defer sem.Release(1)
			if msg := f(); msg != nil {
				out <- msg
			}
		}(fut)
	}

	wg.Wait()
	return nil
}

// writeLoop forwards resolved responses and interleaved messages to
// the framed writer. It never stops consuming before out closes: a
// write failure switches it into drain mode so resolved futures cannot
// block on a dead writer.
func (s *Server) writeLoop(out <-chan jsonrpc.Outgoing) error {
	cw := codec.NewWriter(s.stdout)
	interleave := s.interleave

	var writeErr error
	write := func(msg jsonrpc.Outgoing) {
		if writeErr != nil {
			return
		}
		if err := cw.Write(msg); err != nil {
			s.logger.Printf("failed to encode message: %v", err)
			writeErr = err
		}
	}

	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return writeErr
			}
			write(msg)
		case msg, ok := <-interleave:
			if !ok {
				interleave = nil
				continue
			}
			write(msg)
		}
	}
}
