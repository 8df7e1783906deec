// Package flow implements a declarative per-field reducer DSL: an
// alternative to handwritten reducer functions for simple state fields.
//
// A Spec maps field names to Fields; a Field is an ordered list of clauses
// built by chaining Default, OnEvent, If, and one terminal action
// (Set/Constant/Add/Increment/Subtract). Evaluation is a pure function of
// (spec, state, trigger) with no hidden state, so specs can be unit-tested
// without a stack or cache.
package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Spec maps field names to their declarative reducer chains.
type Spec map[string]Field

// TriggerKind selects which clauses of a field apply.
type TriggerKind string

const (
	// TriggerInit seeds default values before any event is folded.
	TriggerInit TriggerKind = "init"
	// TriggerEvent applies clauses whose event list contains the event type.
	TriggerEvent TriggerKind = "event"
)

// Trigger is one evaluation step's stimulus.
type Trigger struct {
	Kind      TriggerKind
	EventType string
	Payload   map[string]any
}

// Init returns the seeding trigger.
func Init() Trigger {
	return Trigger{Kind: TriggerInit}
}

// Event returns an event trigger for the given type and payload.
func Event(eventType string, payload map[string]any) Trigger {
	return Trigger{Kind: TriggerEvent, EventType: eventType, Payload: payload}
}

// Predicate guards a clause; it sees the whole pre-step state record.
type Predicate func(state map[string]any) bool

type actionKind int

const (
	actionConstant actionKind = iota
	actionSet
	actionAdd
	actionSubtract
)

// action is the tagged variant a clause applies to its field.
type action struct {
	kind     actionKind
	property string // payload property for set/add/subtract
	value    any    // literal for constant, step for increment
	useValue bool   // add/subtract by literal instead of payload property
}

type clause struct {
	trigger TriggerKind
	events  []string
	cond    Predicate
	act     action
}

func (c clause) matches(trig Trigger) bool {
	if c.trigger != trig.Kind {
		return false
	}
	if trig.Kind != TriggerEvent {
		return true
	}
	for _, ev := range c.events {
		if ev == trig.EventType {
			return true
		}
	}
	return false
}

// Field is an immutable chain of clauses for one state field. The zero
// value has no clauses and leaves its field untouched.
type Field struct {
	clauses []clause
}

func (f Field) with(c clause) Field {
	out := make([]clause, len(f.clauses), len(f.clauses)+1)
	copy(out, f.clauses)
	return Field{clauses: append(out, c)}
}

// Default starts a field whose init step seeds the given value.
func Default(value any) Field {
	return Field{}.Default(value)
}

// Default appends an init-trigger constant clause.
func (f Field) Default(value any) Field {
	return f.with(clause{
		trigger: TriggerInit,
		act:     action{kind: actionConstant, value: value},
	})
}

// OnEvent starts a field without a default, reacting to the given event type.
func OnEvent(eventType string) Pending {
	return Field{}.OnEvent(eventType)
}

// OnEvent opens a pending clause for the given event type. Chain further
// OnEvent calls to react to several types with one action, optionally If,
// then exactly one terminal action.
func (f Field) OnEvent(eventType string) Pending {
	return Pending{field: f, events: []string{eventType}}
}

// Pending is a clause under construction: trigger chosen, action not yet.
type Pending struct {
	field  Field
	events []string
	cond   Predicate
}

// OnEvent adds another event type to the pending clause's trigger.
func (p Pending) OnEvent(eventType string) Pending {
	events := make([]string, len(p.events), len(p.events)+1)
	copy(events, p.events)
	p.events = append(events, eventType)
	return p
}

// If guards the pending clause with a predicate over the whole state record.
func (p Pending) If(cond Predicate) Pending {
	p.cond = cond
	return p
}

func (p Pending) complete(act action) Field {
	return p.field.with(clause{
		trigger: TriggerEvent,
		events:  p.events,
		cond:    p.cond,
		act:     act,
	})
}

// Set replaces the field with the named payload property.
func (p Pending) Set(property string) Field {
	return p.complete(action{kind: actionSet, property: property})
}

// Constant replaces the field with a literal value.
func (p Pending) Constant(value any) Field {
	return p.complete(action{kind: actionConstant, value: value})
}

// Add increments the field by the named payload property.
func (p Pending) Add(property string) Field {
	return p.complete(action{kind: actionAdd, property: property})
}

// Increment increments the field by a fixed step.
func (p Pending) Increment(step float64) Field {
	return p.complete(action{kind: actionAdd, value: step, useValue: true})
}

// Subtract decrements the field by the named payload property.
func (p Pending) Subtract(property string) Field {
	return p.complete(action{kind: actionSubtract, property: property})
}

// Decrement decrements the field by a fixed step.
func (p Pending) Decrement(step float64) Field {
	return p.complete(action{kind: actionSubtract, value: step, useValue: true})
}

// EvalStep advances every field of the spec by one trigger and returns the
// new state record. Pure: the input state is never modified, and the same
// (spec, state, trigger) always yields the same result.
//
// For each field: clauses matching the trigger kind (and event type) are
// filtered by their guards - evaluated against the pre-step state - then
// folded left to right starting from the field's current value. A field
// with no matching clauses is carried through unchanged. Keys present in
// the state but absent from the spec are preserved.
func EvalStep(spec Spec, state map[string]any, trig Trigger) map[string]any {
	out := make(map[string]any, len(state)+len(spec))
	for k, v := range state {
		out[k] = v
	}

	for name, field := range spec {
		acc := state[name]
		for _, c := range field.clauses {
			if !c.matches(trig) {
				continue
			}
			if c.cond != nil && !c.cond(state) {
				continue
			}
			acc = applyAction(c.act, acc, trig)
		}
		out[name] = acc
	}
	return out
}

// InitState runs the init trigger against an empty record, producing the
// spec's seed state.
func InitState(spec Spec) map[string]any {
	return EvalStep(spec, map[string]any{}, Init())
}

func applyAction(act action, acc any, trig Trigger) any {
	switch act.kind {
	case actionSet:
		return trig.Payload[act.property]
	case actionConstant:
		return act.value
	case actionAdd:
		return Number(acc) + operand(act, trig)
	case actionSubtract:
		return Number(acc) - operand(act, trig)
	}
	return acc
}

func operand(act action, trig Trigger) float64 {
	if act.useValue {
		return Number(act.value)
	}
	return Number(trig.Payload[act.property])
}

// Number coerces a state or payload value to float64 for flow arithmetic.
// Non-numeric values coerce to 0.
func Number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// String renders a compact description of a field's clauses, for debugging.
func (f Field) String() string {
	return fmt.Sprintf("flow.Field(%d clauses)", len(f.clauses))
}
