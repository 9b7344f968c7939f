package server

import "log"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the transport loop. Logs go to
// stderr by default; stdout belongs to the wire.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQueueSize sets the capacity of the reader-to-writer queue.
func WithQueueSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithConcurrency sets how many dispatched futures run at once.
func WithConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.concurrency = int64(n)
		}
	}
}
