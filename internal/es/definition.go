package es

import (
	"context"
	"fmt"

	"github.com/sctrl/eventstack/internal/flow"
)

// Reducer folds one event into a view state, returning the new state.
type Reducer func(state State, ev Event) State

// QueryReducer is a Reducer that additionally receives the caller-supplied
// query parameters.
type QueryReducer func(state State, ev Event, params any) State

// Finalizer transforms the accumulated state after the fold completes.
type Finalizer func(state State) State

// QueryFinalizer is a Finalizer with access to the query parameters.
type QueryFinalizer func(state State, params any) State

// ActionDecision is an action handler's verdict.
type ActionDecision string

const (
	// ActionCommit appends exactly one event to the stack.
	ActionCommit ActionDecision = "COMMIT"
	// ActionReject aborts with a reason code; nothing is appended.
	ActionReject ActionDecision = "REJECT"
)

// ActionResult carries a handler's decision. Build it through
// ActionContext.Commit, CommitWith, or Reject rather than by hand.
type ActionResult struct {
	Decision        ActionDecision
	Code            string
	PayloadOverride map[string]any
	HasOverride     bool
}

// ActionContext is the transactional-looking surface handed to action
// handlers: view and query reads that share one monotonically advancing
// snapshot, plus the commit/reject constructors.
type ActionContext interface {
	// View compiles a single view against the handler's snapshot.
	View(ctx context.Context, view *ViewDefinition) (State, error)

	// Views compiles several views as one composition.
	Views(ctx context.Context, views []*ViewDefinition) (State, error)

	// Query compiles a parameterized query against the snapshot.
	Query(ctx context.Context, query *QueryDefinition, params any) (State, error)

	// Commit decides to append the original action payload.
	Commit() ActionResult

	// CommitWith decides to append, replacing the payload entirely.
	CommitWith(payloadOverride map[string]any) ActionResult

	// Reject aborts the action with a caller-defined reason code.
	Reject(code string) ActionResult
}

// ActionHandler is the business logic of one action. It may read views and
// queries through tx, then must return a commit or reject result. Returning
// a non-nil error aborts the action without appending.
type ActionHandler func(ctx context.Context, tx ActionContext, payload map[string]any) (ActionResult, error)

// ActionDefinition binds an action type name to its handler. Stateless.
type ActionDefinition struct {
	Type    string
	Handler ActionHandler
}

// ViewDefinition declares a cached, composable fold-derived read model.
//
// The effective reducer set of a view is the concatenation of all
// transitively included base views' reducers plus its own, base-first.
// Duplicates are deliberately kept: a base view and its including view may
// each react to the same event type independently.
type ViewDefinition struct {
	Type      string
	StackType string
	Default   State
	Reducers  map[string]Reducer
	BaseViews []*ViewDefinition
	Flows     []flow.Spec
	Finalizer Finalizer
}

// QueryDefinition declares an uncached, parameterized fold-derived read
// model. Queries are recomputed from their seed on every call: parameters
// are not part of any cache key, so caching them would either serve stale
// results or explode the key space.
type QueryDefinition struct {
	Type      string
	StackType string
	Default   State
	Reducers  map[string]QueryReducer
	BaseViews []*ViewDefinition
	Finalizer QueryFinalizer
}

// StackDefinition is the static registry of actions, views, and queries for
// one entity type. Built once at startup via Define; read-only after Build.
type StackDefinition struct {
	Type    string
	Actions map[string]*ActionDefinition
	Views   map[string]*ViewDefinition
	Queries map[string]*QueryDefinition
}

// Builder assembles a StackDefinition. It is an explicit mutable arena that
// freezes on Build; any mutation after that panics. Builders are not safe
// for concurrent use - definitions are meant to be built during init.
type Builder struct {
	def    *StackDefinition
	frozen bool
}

// Define starts a builder for the given entity type.
func Define(stackType string) *Builder {
	return &Builder{
		def: &StackDefinition{
			Type:    stackType,
			Actions: map[string]*ActionDefinition{},
			Views:   map[string]*ViewDefinition{},
			Queries: map[string]*QueryDefinition{},
		},
	}
}

func (b *Builder) mustMutable() {
	if b.frozen {
		panic(fmt.Sprintf("es: definition %q is frozen", b.def.Type))
	}
}

// Action registers an action handler under the given type name.
func (b *Builder) Action(actionType string, handler ActionHandler) *Builder {
	b.mustMutable()
	b.def.Actions[actionType] = &ActionDefinition{Type: actionType, Handler: handler}
	return b
}

// View starts a view definition with the given default seed state.
func (b *Builder) View(viewType string, defaultState State) *ViewBuilder {
	b.mustMutable()
	vd := &ViewDefinition{
		Type:      viewType,
		StackType: b.def.Type,
		Default:   defaultState,
		Reducers:  map[string]Reducer{},
	}
	b.def.Views[viewType] = vd
	return &ViewBuilder{owner: b, def: vd}
}

// Flow registers a view driven entirely by a declarative flow spec. The
// view's default state is the spec's init step.
func (b *Builder) Flow(viewType string, spec flow.Spec) *ViewBuilder {
	vb := b.View(viewType, State(flow.InitState(spec)))
	return vb.WithFlow(spec)
}

// Query starts a query definition with the given default seed state.
func (b *Builder) Query(queryType string, defaultState State) *QueryBuilder {
	b.mustMutable()
	qd := &QueryDefinition{
		Type:      queryType,
		StackType: b.def.Type,
		Default:   defaultState,
		Reducers:  map[string]QueryReducer{},
	}
	b.def.Queries[queryType] = qd
	return &QueryBuilder{owner: b, def: qd}
}

// MapModel binds a model mapper to this definition.
func (b *Builder) MapModel(mapper ModelMapper) *ModelDefinition {
	return &ModelDefinition{StackDef: b.def, Mapper: mapper}
}

// Build freezes the builder and returns the immutable definition.
func (b *Builder) Build() *StackDefinition {
	b.frozen = true
	return b.def
}

// ViewBuilder assembles one ViewDefinition.
type ViewBuilder struct {
	owner *Builder
	def   *ViewDefinition
}

// On registers a reducer for an event type.
func (vb *ViewBuilder) On(eventType string, reducer Reducer) *ViewBuilder {
	vb.owner.mustMutable()
	vb.def.Reducers[eventType] = reducer
	return vb
}

// WithView includes another view's definition as a base view. Base views
// fold before the including view, in inclusion order.
func (vb *ViewBuilder) WithView(other *ViewDefinition) *ViewBuilder {
	vb.owner.mustMutable()
	vb.def.BaseViews = append(vb.def.BaseViews, other)
	return vb
}

// WithFlow attaches a declarative flow spec, evaluated after this view's
// reducers for every event.
func (vb *ViewBuilder) WithFlow(spec flow.Spec) *ViewBuilder {
	vb.owner.mustMutable()
	vb.def.Flows = append(vb.def.Flows, spec)
	return vb
}

// Finalize sets the post-fold transformation.
func (vb *ViewBuilder) Finalize(f Finalizer) *ViewBuilder {
	vb.owner.mustMutable()
	vb.def.Finalizer = f
	return vb
}

// Definition returns the underlying definition for composition and reads.
func (vb *ViewBuilder) Definition() *ViewDefinition {
	return vb.def
}

// QueryBuilder assembles one QueryDefinition.
type QueryBuilder struct {
	owner *Builder
	def   *QueryDefinition
}

// On registers a parameterized reducer for an event type.
func (qb *QueryBuilder) On(eventType string, reducer QueryReducer) *QueryBuilder {
	qb.owner.mustMutable()
	qb.def.Reducers[eventType] = reducer
	return qb
}

// WithView includes a view's definition as a base view.
func (qb *QueryBuilder) WithView(other *ViewDefinition) *QueryBuilder {
	qb.owner.mustMutable()
	qb.def.BaseViews = append(qb.def.BaseViews, other)
	return qb
}

// Finalize sets the post-fold transformation; it receives the parameters.
func (qb *QueryBuilder) Finalize(f QueryFinalizer) *QueryBuilder {
	qb.owner.mustMutable()
	qb.def.Finalizer = f
	return qb
}

// Definition returns the underlying definition.
func (qb *QueryBuilder) Definition() *QueryDefinition {
	return qb.def
}
