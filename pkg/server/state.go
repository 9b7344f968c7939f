package server

import "sync/atomic"

// StateKind is the lifecycle state of a language server.
type StateKind int32

const (
	// StateUninitialized is the state before the initialize request.
	StateUninitialized StateKind = iota

	// StateInitializing is held while the initialize handler runs.
	StateInitializing

	// StateInitialized is the normal serving state.
	StateInitialized

	// StateShutDown is entered by the shutdown request. Afterwards
	// registered requests are rejected and notifications dropped; exit
	// and the RequestElse catch-all still run.
	StateShutDown

	// StateExited is terminal.
	StateExited
)

func (k StateKind) String() string {
	switch k {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateShutDown:
		return "shut down"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// state is the shared lifecycle cell. Transitions are driven by the
// dispatcher only; handlers observe state by being invoked.
type state struct {
	v atomic.Int32
}

func (s *state) get() StateKind {
	return StateKind(s.v.Load())
}

func (s *state) set(k StateKind) {
	s.v.Store(int32(k))
}
