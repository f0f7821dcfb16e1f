package session

import "sync/atomic"

// State is a stage of the session lifecycle.
type State int32

const (
	Running State = iota
	Stopping
	Stopped
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Shutdown orders local and remote termination. It moves strictly from
// Running to Stopping to Stopped and never goes back.
type Shutdown struct {
	state atomic.Int32
}

// Begin moves Running to Stopping. Only the first call returns true.
func (s *Shutdown) Begin() bool {
	return s.state.CompareAndSwap(int32(Running), int32(Stopping))
}

// Finish moves Stopping to Stopped once both loops have returned.
func (s *Shutdown) Finish() bool {
	return s.state.CompareAndSwap(int32(Stopping), int32(Stopped))
}

// Stopping reports whether shutdown has begun.
func (s *Shutdown) Stopping() bool {
	return s.State() != Running
}

// State returns the current state.
func (s *Shutdown) State() State {
	return State(s.state.Load())
}
