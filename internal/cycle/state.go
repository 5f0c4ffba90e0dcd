package cycle

import (
	"sync/atomic"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// State is the process-wide cycle flag pair plus the current phase. The
// engine is its only writer; the event gate reads it through the engine's
// query methods. Every field is atomic so a trigger handled on one
// goroutine sees a flag set by the cycle goroutine.
type State struct {
	inProcess      atomic.Bool
	abortRequested atomic.Bool
	phase          atomic.Value // model.Phase
	current        atomic.Pointer[cycleRun]
}

// claim marks a cycle as in process. It returns false when one already is.
// A successful claim drops any abort request left over from the previous
// cycle.
func (s *State) claim() bool {
	if !s.inProcess.CompareAndSwap(false, true) {
		return false
	}
	s.abortRequested.Store(false)
	return true
}

// requestAbort raises the abort flag, but only while a cycle is running.
func (s *State) requestAbort() bool {
	if !s.inProcess.Load() {
		return false
	}
	s.abortRequested.Store(true)
	return true
}

// release ends the cycle. abortRequested is cleared before inProcess so an
// observer never sees an idle engine with a pending abort.
func (s *State) release() {
	s.phase.Store(model.PhaseIdle)
	s.current.Store(nil)
	s.abortRequested.Store(false)
	s.inProcess.Store(false)
}

func (s *State) setPhase(p model.Phase) {
	s.phase.Store(p)
}

func (s *State) currentPhase() model.Phase {
	if p, ok := s.phase.Load().(model.Phase); ok {
		return p
	}
	return model.PhaseIdle
}

func (s *State) snapshot() model.CycleStatus {
	inProcess := s.inProcess.Load()
	st := model.CycleStatus{
		InProcess:      inProcess,
		AbortRequested: inProcess && s.abortRequested.Load(),
		Phase:          s.currentPhase(),
	}
	if r := s.current.Load(); r != nil {
		st.CycleID = r.id
		st.Kind = r.kind
	}
	return st
}
