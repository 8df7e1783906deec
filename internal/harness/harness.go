// Package harness runs scripted scenarios against a stack definition and
// renders deterministic traces, for assertion-style and golden-file tests.
//
// A scenario seeds a fresh in-memory stack, invokes a sequence of actions,
// and records each action's outcome plus any requested view states. The
// engine runs with a fixed clock and sequential uids so traces are
// byte-stable across runs.
package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sctrl/eventstack/internal/engine"
	"github.com/sctrl/eventstack/internal/es"
	"github.com/sctrl/eventstack/internal/store"
	"github.com/sctrl/eventstack/internal/testutil"
)

// Outcome classifies one step of a trace.
const (
	OutcomeCommit = "commit"
	OutcomeReject = "reject"
	OutcomeError  = "error"
)

// StepTrace records what one action did.
type StepTrace struct {
	Action  string              `json:"action"`
	Outcome string              `json:"outcome"`
	Code    string              `json:"code,omitempty"`
	Views   map[string]es.State `json:"views,omitempty"`
}

// Result is a full scenario trace.
type Result struct {
	Scenario string      `json:"scenario"`
	Trace    []StepTrace `json:"trace"`
}

// Marshal renders the result as stable, indented JSON.
func (r Result) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

type expectation struct {
	outcome string
	code    string
	views   map[string]es.State
}

type step struct {
	actionType string
	payload    map[string]any
	viewTypes  []string
	expect     *expectation
}

type seedEvent struct {
	eventType string
	payload   map[string]any
}

// Scenario is a scripted sequence of actions against one entity.
type Scenario struct {
	name     string
	def      *es.StackDefinition
	entityID string
	seeds    []seedEvent
	steps    []*step
}

// NewScenario starts a scenario for the given definition.
func NewScenario(name string, def *es.StackDefinition) *Scenario {
	return &Scenario{name: name, def: def, entityID: "subject"}
}

// WithEntityID overrides the default entity id.
func (s *Scenario) WithEntityID(id string) *Scenario {
	s.entityID = id
	return s
}

// WithEvent seeds an event directly onto the stack before any action runs.
func (s *Scenario) WithEvent(eventType string, payload map[string]any) *Scenario {
	s.seeds = append(s.seeds, seedEvent{eventType: eventType, payload: payload})
	return s
}

// OnAction appends an action step.
func (s *Scenario) OnAction(actionType string, payload map[string]any) *Scenario {
	s.steps = append(s.steps, &step{actionType: actionType, payload: payload})
	return s
}

func (s *Scenario) last() *step {
	if len(s.steps) == 0 {
		panic("harness: expectation before any OnAction")
	}
	return s.steps[len(s.steps)-1]
}

func (s *Scenario) ensureExpect() *expectation {
	st := s.last()
	if st.expect == nil {
		st.expect = &expectation{}
	}
	return st.expect
}

// ExpectCommit marks the latest step as expected to commit.
func (s *Scenario) ExpectCommit() *Scenario {
	s.ensureExpect().outcome = OutcomeCommit
	return s
}

// ExpectReject marks the latest step as expected to reject with the code.
func (s *Scenario) ExpectReject(code string) *Scenario {
	e := s.ensureExpect()
	e.outcome = OutcomeReject
	e.code = code
	return s
}

// ExpectView records the named view after the latest step and, when
// expected is non-nil, asserts its state.
func (s *Scenario) ExpectView(viewType string, expected es.State) *Scenario {
	st := s.last()
	st.viewTypes = append(st.viewTypes, viewType)
	if expected != nil {
		e := s.ensureExpect()
		if e.views == nil {
			e.views = map[string]es.State{}
		}
		e.views[viewType] = expected
	}
	return s
}

// TraceView records the named view after the latest step without
// asserting on it.
func (s *Scenario) TraceView(viewType string) *Scenario {
	s.last().viewTypes = append(s.last().viewTypes, viewType)
	return s
}

// Run executes the scenario on a fresh in-memory stack and returns the
// trace. Failed expectations do not fail Run; they are checked by Test.
func (s *Scenario) Run(ctx context.Context) (Result, error) {
	mem := store.NewMemoryStore()
	exec := engine.NewExecutor(
		engine.WithClock(testutil.NewFixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))),
		engine.WithTokenGenerator(testutil.NewSequenceGenerator("uid")),
	)
	repo := engine.NewRepository(mem, engine.WithExecutor(exec))

	stack, err := mem.GetOrCreateStack(ctx, s.def.Type, s.entityID)
	if err != nil {
		return Result{}, fmt.Errorf("scenario %s: %w", s.name, err)
	}
	for _, seed := range s.seeds {
		ev := es.Event{
			Type:     seed.eventType,
			Metadata: map[string]any{"timestamp": "2024-01-01T00:00:00Z", "uid": "seed"},
			Payload:  seed.payload,
		}
		if err := stack.CommitAnonymousEvent(ctx, ev); err != nil {
			return Result{}, fmt.Errorf("scenario %s: seed %s: %w", s.name, seed.eventType, err)
		}
	}

	result := Result{Scenario: s.name}
	for _, st := range s.steps {
		action, ok := s.def.Actions[st.actionType]
		if !ok {
			return Result{}, fmt.Errorf("scenario %s: unknown action %q", s.name, st.actionType)
		}

		trace := StepTrace{Action: st.actionType}
		err := exec.ExecuteAction(ctx, stack, action, st.payload)
		switch {
		case err == nil:
			trace.Outcome = OutcomeCommit
		case es.IsRejection(err):
			trace.Outcome = OutcomeReject
			trace.Code, _ = es.RejectionCode(err)
		default:
			trace.Outcome = OutcomeError
			trace.Code = err.Error()
		}

		for _, viewType := range st.viewTypes {
			view, ok := s.def.Views[viewType]
			if !ok {
				return Result{}, fmt.Errorf("scenario %s: unknown view %q", s.name, viewType)
			}
			state, err := exec.CompileView(ctx, stack, view, repo.Context())
			if err != nil {
				return Result{}, fmt.Errorf("scenario %s: view %s: %w", s.name, viewType, err)
			}
			if trace.Views == nil {
				trace.Views = map[string]es.State{}
			}
			trace.Views[viewType] = state
		}

		result.Trace = append(result.Trace, trace)
	}
	return result, nil
}
