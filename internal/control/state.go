// Package control holds the process-wide stream control flags and the
// operator command surface that mutates them.
package control

import "sync/atomic"

// State is shared by every open stream on one server instance. Each flag is
// independent, so plain atomics are enough.
type State struct {
	sending     atomic.Bool
	terminating atomic.Bool
}

func NewState() *State {
	return &State{}
}

// Start makes streams emit tick events.
func (s *State) Start() {
	s.sending.Store(true)
}

// Stop returns streams to heartbeat-only mode.
func (s *State) Stop() {
	s.sending.Store(false)
}

// Terminate asks every stream to send its farewell event and finish. It
// cannot be undone.
func (s *State) Terminate() {
	s.terminating.Store(true)
}

func (s *State) Sending() bool {
	return s.sending.Load()
}

func (s *State) Terminating() bool {
	return s.terminating.Load()
}

// Snapshot is a point-in-time copy of the flags for status reporting.
type Snapshot struct {
	Sending     bool `json:"sending"`
	Terminating bool `json:"terminating"`
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Sending:     s.Sending(),
		Terminating: s.Terminating(),
	}
}
