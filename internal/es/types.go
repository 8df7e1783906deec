package es

import (
	"context"
	"time"
)

// NoEventID is the sentinel for "no event": an empty cache entry, a fold that
// processed nothing, or an unbounded read limit. Event id 0 is a fully valid
// watermark value and must never be conflated with this sentinel.
const NoEventID int64 = -1

// Event is a single immutable entry in a stack.
//
// Identity is (stack namespace, id). Metadata carries at least a "timestamp"
// key; the engine also stamps a "uid" for correlation.
type Event struct {
	ID       int64          `json:"id"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata"`
	Payload  map[string]any `json:"payload"`
}

// State is the accumulated value of a view or query fold.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge shallow-merges the given states left to right; keys in later states
// override earlier ones. The inputs are not modified.
func Merge(states ...State) State {
	out := State{}
	for _, s := range states {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

// Stack is the append-only event log for one entity instance.
//
// Append order is serialized by the sequence check: CommitEvent accepts id n
// only if n == tail+1 (or n == 0 on an empty log). Concurrent appenders
// racing for the same id have exactly one winner; losers receive an
// InvalidSequenceError and may retry after re-reading the tail.
type Stack interface {
	// Namespace returns the globally unique name of this log within its store.
	Namespace() string

	// CommitEvent appends an event with an explicit id, enforcing the
	// sequence invariant. Returns an InvalidSequenceError on a stale tail.
	CommitEvent(ctx context.Context, ev Event) error

	// CommitAnonymousEvent appends an event, assigning id = tail+1 (0 on an
	// empty log) after reading the current tail.
	CommitAnonymousEvent(ctx context.Context, ev Event) error

	// GetEvent returns the event with the given id, or ErrEventNotFound.
	GetEvent(ctx context.Context, id int64) (Event, error)

	// Slice returns events with id >= start and id <= end in ascending order.
	// Pass NoEventID as end to read to the tip.
	Slice(ctx context.Context, start, end int64) ([]Event, error)
}

// Store resolves stacks by (entity type, entity id). Each store owns its own
// entity-to-stack table; there is no process-wide registry.
type Store interface {
	// GetStack returns an existing stack or ErrStackNotFound.
	GetStack(ctx context.Context, entityType, entityID string) (Stack, error)

	// CreateStack creates (or re-binds) the stack for the entity.
	CreateStack(ctx context.Context, entityType, entityID string) (Stack, error)

	// GetOrCreateStack resolves the stack, creating it on first use.
	GetOrCreateStack(ctx context.Context, entityType, entityID string) (Stack, error)
}

// CompiledView is a view-cache entry: the folded state plus the id of the
// last event reflected in it. EventID == NoEventID means nothing was folded.
type CompiledView struct {
	EventID int64 `json:"eventId"`
	View    State `json:"view"`
}

// ViewCache stores compiled views keyed by their composition identity string.
//
// UpdateCache is conditional: a write whose EventID does not exceed the
// stored entry's must be dropped silently, never surfaced as an error. This
// lets concurrent folds race without a stale result clobbering a newer one.
type ViewCache interface {
	GetFromCache(ctx context.Context, identity string) (CompiledView, bool, error)
	UpdateCache(ctx context.Context, identity string, cv CompiledView) error
}

// Clock supplies event timestamps. Production code uses the system clock;
// tests substitute a fixed one for deterministic metadata.
type Clock interface {
	Now() time.Time
}

// TokenGenerator supplies correlation uids for committed events.
type TokenGenerator interface {
	Generate() string
}

// Executor is the engine surface the model runner and repository depend on.
// It is injectable through RepositoryContext so tests can substitute a fake
// (for example to simulate sequence conflicts).
type Executor interface {
	ExecuteAction(ctx context.Context, stack Stack, action *ActionDefinition, payload map[string]any) error
	CompileView(ctx context.Context, stack Stack, view *ViewDefinition, rc *RepositoryContext) (State, error)
	CompileQuery(ctx context.Context, stack Stack, query *QueryDefinition, params any, rc *RepositoryContext) (State, error)
}

// RepositoryContext carries the collaborators shared by all reads and writes
// issued through one repository: the view cache and the executor.
type RepositoryContext struct {
	ViewCache ViewCache
	Executor  Executor
}
