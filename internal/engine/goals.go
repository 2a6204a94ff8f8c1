package engine

import (
	"context"
	"sort"
	"time"

	"github.com/sadopc/beebar/internal/beeminder"
)

// Status is the per-goal submission state shown next to a goal.
type Status int

const (
	StatusIdle Status = iota
	StatusSubmitting
	StatusUpdating
)

func (s Status) String() string {
	switch s {
	case StatusSubmitting:
		return "submitting"
	case StatusUpdating:
		return "updating"
	default:
		return "idle"
	}
}

// pending is the transient record of one in-flight submission. At most one
// exists per goal; identity (pointer equality) tells a superseded
// submission's late cleanup apart from the current one.
type pending struct {
	goalID   string
	previous beeminder.Goal
	value    float64
	comment  string
	started  time.Time
	attempts int
	cancel   context.CancelFunc
	results  chan Result
}

func (p *pending) deliver(r Result) {
	p.results <- r
	close(p.results)
}

// GoalStore is the authoritative snapshot of goals plus per-goal submission
// state. It is not safe for concurrent use: the engine touches it only from
// its owner loop.
type GoalStore struct {
	goals   []beeminder.Goal
	status  map[string]Status
	pending map[string]*pending
	inputs  map[string]string
}

func NewGoalStore() *GoalStore {
	return &GoalStore{
		status:  make(map[string]Status),
		pending: make(map[string]*pending),
		inputs:  make(map[string]string),
	}
}

// Replace swaps the whole goal list. Goals are never patched in place.
func (s *GoalStore) Replace(goals []beeminder.Goal) {
	s.goals = append([]beeminder.Goal(nil), goals...)
}

// Goals returns a copy in server order.
func (s *GoalStore) Goals() []beeminder.Goal {
	return append([]beeminder.Goal(nil), s.goals...)
}

// Sorted returns a copy ordered by safebuf ascending; ties keep server order.
func (s *GoalStore) Sorted() []beeminder.Goal {
	out := s.Goals()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Safebuf < out[j].Safebuf
	})
	return out
}

func (s *GoalStore) Goal(id string) (beeminder.Goal, bool) {
	for _, g := range s.goals {
		if g.ID == id {
			return g, true
		}
	}
	return beeminder.Goal{}, false
}

func (s *GoalStore) GoalBySlug(slug string) (beeminder.Goal, bool) {
	for _, g := range s.goals {
		if g.Slug == slug {
			return g, true
		}
	}
	return beeminder.Goal{}, false
}

func (s *GoalStore) EmergencyCount() int {
	n := 0
	for _, g := range s.goals {
		if g.IsEmergency() {
			n++
		}
	}
	return n
}

func (s *GoalStore) Status(id string) Status {
	return s.status[id]
}

func (s *GoalStore) setStatus(id string, st Status) {
	if st == StatusIdle {
		delete(s.status, id)
		return
	}
	s.status[id] = st
}

func (s *GoalStore) Input(id string) string {
	return s.inputs[id]
}

func (s *GoalStore) SetInput(id, text string) {
	if text == "" {
		delete(s.inputs, id)
		return
	}
	s.inputs[id] = text
}

// begin registers p as the goal's active submission, cancelling and
// returning any submission it supersedes.
func (s *GoalStore) begin(p *pending) *pending {
	prev := s.pending[p.goalID]
	if prev != nil {
		prev.cancel()
	}
	s.pending[p.goalID] = p
	s.setStatus(p.goalID, StatusSubmitting)
	return prev
}

func (s *GoalStore) current(p *pending) bool {
	return s.pending[p.goalID] == p
}

// finish clears p if it is still the goal's active submission and reports
// whether it was.
func (s *GoalStore) finish(p *pending) bool {
	if !s.current(p) {
		return false
	}
	delete(s.pending, p.goalID)
	s.setStatus(p.goalID, StatusIdle)
	return true
}

// cancel aborts the goal's active submission, if any, and clears its status
// immediately.
func (s *GoalStore) cancel(goalID string) bool {
	p := s.pending[goalID]
	if p == nil {
		return false
	}
	p.cancel()
	delete(s.pending, goalID)
	s.setStatus(goalID, StatusIdle)
	return true
}

func (s *GoalStore) cancelAll() {
	for id := range s.pending {
		s.cancel(id)
	}
}

func (s *GoalStore) reset() {
	s.cancelAll()
	s.goals = nil
	s.inputs = make(map[string]string)
}

func (s *GoalStore) statuses() map[string]Status {
	out := make(map[string]Status, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

func (s *GoalStore) inputsCopy() map[string]string {
	out := make(map[string]string, len(s.inputs))
	for k, v := range s.inputs {
		out[k] = v
	}
	return out
}
