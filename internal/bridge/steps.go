// Package bridge drives a single bridge transfer from input resolution
// through quoting, confirmation and execution. The flow controller owns the
// state machine; step progress is tracked by a small pure reducer that folds
// gateway callback events into per-phase statuses.
package bridge

import (
	"github.com/SiphoYawe/mina-cli/internal/gateway"
)

// Phase is one of the five user-visible stages of a transfer. Gateway swap
// events fold into the bridge phase and deposit events into confirm, so the
// display never grows extra rows for route-dependent steps.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseQuote
	PhaseApproval
	PhaseBridge
	PhaseConfirm
	phaseCount
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseQuote:
		return "quote"
	case PhaseApproval:
		return "approval"
	case PhaseBridge:
		return "bridge"
	case PhaseConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// PhaseForStep maps a gateway step name onto a display phase. Unknown steps
// report ok=false and are ignored by the reducer.
func PhaseForStep(step string) (Phase, bool) {
	switch step {
	case gateway.StepApproval:
		return PhaseApproval, true
	case gateway.StepBridge, gateway.StepSwap:
		return PhaseBridge, true
	case gateway.StepDeposit:
		return PhaseConfirm, true
	default:
		return 0, false
	}
}

var statusRank = map[string]int{
	gateway.StepStatusPending:   0,
	gateway.StepStatusActive:    1,
	gateway.StepStatusCompleted: 2,
	gateway.StepStatusFailed:    3,
}

type phaseEntry struct {
	Status string
	TxHash string
}

// StepState is an immutable snapshot of all five phases. Apply and Advance
// return a new value, so snapshots handed to observers never mutate under
// them.
type StepState struct {
	phases [phaseCount]phaseEntry
}

// PhaseStatus is one row of the step display.
type PhaseStatus struct {
	Phase  Phase
	Status string
	TxHash string
}

func NewStepState() StepState {
	var s StepState
	for i := range s.phases {
		s.phases[i].Status = gateway.StepStatusPending
	}
	return s
}

// Apply folds one gateway step event into the state. Events for unknown
// steps or with unknown statuses leave the state unchanged.
func (s StepState) Apply(ev gateway.StepChangeEvent) StepState {
	phase, ok := PhaseForStep(ev.Step)
	if !ok {
		return s
	}
	return s.Advance(phase, ev.Status, ev.TxHash)
}

// Advance moves one phase to status. Transitions are forward-only: a phase
// never regresses, and duplicate or out-of-order active events are
// absorbed. Activating or completing a phase completes every earlier phase
// still pending or active, which keeps the display consistent when events
// arrive out of order.
func (s StepState) Advance(phase Phase, status, txHash string) StepState {
	rank, known := statusRank[status]
	if !known || phase < 0 || phase >= phaseCount {
		return s
	}
	current := s.phases[phase]
	if rank < statusRank[current.Status] {
		return s
	}
	if rank == statusRank[current.Status] {
		// Idempotent duplicate; keep a tx hash if this copy carries one.
		if txHash != "" && current.TxHash == "" {
			s.phases[phase].TxHash = txHash
		}
		return s
	}

	s.phases[phase].Status = status
	if txHash != "" {
		s.phases[phase].TxHash = txHash
	}
	for earlier := Phase(0); earlier < phase; earlier++ {
		st := s.phases[earlier].Status
		if st == gateway.StepStatusPending || st == gateway.StepStatusActive {
			s.phases[earlier].Status = gateway.StepStatusCompleted
		}
	}
	if status == gateway.StepStatusCompleted {
		s = s.activateNext(phase)
	}
	return s
}

// activateNext moves the phase after completed onto active. The quote
// phase does not chain into approval: the user confirmation gate sits
// between them, and execution events activate approval when the transfer
// actually starts.
func (s StepState) activateNext(completed Phase) StepState {
	if completed == PhaseQuote || completed >= PhaseConfirm {
		return s
	}
	next := completed + 1
	if s.phases[next].Status == gateway.StepStatusPending {
		s.phases[next].Status = gateway.StepStatusActive
	}
	return s
}

// Rearm resets for a user-initiated retry: resolution and quoting stay
// completed, everything from approval on returns to pending.
func (s StepState) Rearm() StepState {
	fresh := NewStepState()
	fresh = fresh.Advance(PhaseLoading, gateway.StepStatusCompleted, "")
	fresh = fresh.Advance(PhaseQuote, gateway.StepStatusCompleted, "")
	return fresh
}

func (s StepState) Status(phase Phase) string {
	if phase < 0 || phase >= phaseCount {
		return ""
	}
	return s.phases[phase].Status
}

func (s StepState) TxHash(phase Phase) string {
	if phase < 0 || phase >= phaseCount {
		return ""
	}
	return s.phases[phase].TxHash
}

// Phases lists all five phases in display order.
func (s StepState) Phases() []PhaseStatus {
	out := make([]PhaseStatus, 0, phaseCount)
	for i := Phase(0); i < phaseCount; i++ {
		out = append(out, PhaseStatus{Phase: i, Status: s.phases[i].Status, TxHash: s.phases[i].TxHash})
	}
	return out
}

// Completed reports whether the transfer reached the end of the confirm
// phase.
func (s StepState) Completed() bool {
	return s.phases[PhaseConfirm].Status == gateway.StepStatusCompleted
}

// Failed reports whether any phase failed.
func (s StepState) Failed() bool {
	for i := range s.phases {
		if s.phases[i].Status == gateway.StepStatusFailed {
			return true
		}
	}
	return false
}
