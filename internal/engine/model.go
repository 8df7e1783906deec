package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sctrl/eventstack/internal/es"
)

// maxActionAttempts bounds the optimistic retry of model-invoked actions on
// sequence conflicts.
const maxActionAttempts = 5

type bindingKind int

const (
	bindAction bindingKind = iota
	bindView
	bindDeferredView
	bindQuery
)

// binding is the resolved descriptor behind one mapped model field.
type binding struct {
	kind       bindingKind
	actionType string
	payload    es.PayloadBuilder
	view       *es.ViewDefinition
	transform  es.Transform
	query      *es.QueryDefinition
	params     es.ParamsBuilder
}

// ModelBinding marks binding as an es.Binding.
func (*binding) ModelBinding() {}

// mapContext implements es.ModelMapContext for one model build.
type mapContext struct{}

func (mapContext) MapAction(actionType string, build es.PayloadBuilder) es.Binding {
	return &binding{kind: bindAction, actionType: actionType, payload: build}
}

func (mapContext) MapView(view *es.ViewDefinition, transform es.Transform) es.Binding {
	return &binding{kind: bindView, view: view, transform: transform}
}

func (mapContext) MapDeferredView(view *es.ViewDefinition, transform es.Transform) es.Binding {
	return &binding{kind: bindDeferredView, view: view, transform: transform}
}

func (mapContext) MapQuery(query *es.QueryDefinition, build es.ParamsBuilder) es.Binding {
	return &binding{kind: bindQuery, query: query, params: build}
}

// Model is a live, field-bound object for one entity instance: view-bound
// fields populated eagerly, action/query/deferred-view fields invoked by
// name. Callers holding the model observe fresh field values after every
// successful action and after Refresh.
//
// Thread-safety: field reads and rebuilds are guarded by an internal lock;
// Invoke serializes nothing beyond that - concurrent invokes race on the
// stack and resolve through the sequence check like any other writers.
type Model struct {
	stack es.Stack
	def   *es.ModelDefinition
	rc    *es.RepositoryContext
	exec  es.Executor

	mu       sync.RWMutex
	fields   map[string]any
	bindings map[string]*binding
}

// ModelFromStack binds a model definition to a stack and eagerly populates
// its view-bound fields.
func ModelFromStack(ctx context.Context, stack es.Stack, def *es.ModelDefinition, rc *es.RepositoryContext) (*Model, error) {
	var exec es.Executor
	if rc != nil && rc.Executor != nil {
		exec = rc.Executor
	} else {
		exec = NewExecutor()
	}

	m := &Model{
		stack:    stack,
		def:      def,
		rc:       rc,
		exec:     exec,
		fields:   map[string]any{},
		bindings: map[string]*binding{},
	}

	record := def.Mapper(mapContext{})
	for name, value := range record {
		if b, ok := value.(*binding); ok {
			m.bindings[name] = b
			continue
		}
		// Plain values pass through to the record untouched.
		m.fields[name] = value
	}

	if err := m.Refresh(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Refresh recompiles every eagerly mapped view field. Distinct view
// definitions are compiled once each, concurrently, then distributed to all
// dependent fields.
func (m *Model) Refresh(ctx context.Context) error {
	type fieldRef struct {
		name string
		b    *binding
	}
	var eager []fieldRef
	distinct := map[*es.ViewDefinition]bool{}
	for name, b := range m.bindings {
		if b.kind != bindView {
			continue
		}
		eager = append(eager, fieldRef{name: name, b: b})
		distinct[b.view] = true
	}
	if len(eager) == 0 {
		return nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[*es.ViewDefinition]es.State, len(distinct))
		errs    []error
	)
	for view := range distinct {
		view := view
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := m.exec.CompileView(ctx, m.stack, view, m.rc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("view %s: %w", view.Type, err))
				return
			}
			results[view] = state
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("refresh model: %w", errors.Join(errs...))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range eager {
		m.fields[f.name] = es.ApplyTransform(f.b.transform, results[f.b.view])
	}
	return nil
}

// Get returns the current value of a bound (or plain) field.
func (m *Model) Get(name string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fields[name]
}

// Invoke runs a mapped action: builds the payload from args, executes it
// with bounded retry on sequence conflicts, and refreshes the eager fields
// on success. Rejections and any other failure propagate immediately
// without retry; exhausting the retry bound re-raises the last conflict.
func (m *Model) Invoke(ctx context.Context, name string, args ...any) error {
	b, ok := m.bindings[name]
	if !ok || b.kind != bindAction {
		return fmt.Errorf("model: %q is not a mapped action", name)
	}
	action, ok := m.def.StackDef.Actions[b.actionType]
	if !ok {
		return fmt.Errorf("model: action %q not defined for stack %q", b.actionType, m.def.StackDef.Type)
	}

	payload := b.payload(args...)
	var lastErr error
	for attempt := 0; attempt < maxActionAttempts; attempt++ {
		err := m.exec.ExecuteAction(ctx, m.stack, action, payload)
		if err == nil {
			return m.Refresh(ctx)
		}
		if !es.IsInvalidSequence(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// Query runs a mapped query: builds parameters from args and compiles.
func (m *Model) Query(ctx context.Context, name string, args ...any) (es.State, error) {
	b, ok := m.bindings[name]
	if !ok || b.kind != bindQuery {
		return nil, fmt.Errorf("model: %q is not a mapped query", name)
	}
	return m.exec.CompileQuery(ctx, m.stack, b.query, b.params(args...), m.rc)
}

// Deferred compiles an on-demand mapped view and applies its transform.
// Deferred reads fold from scratch rather than through the shared cache.
func (m *Model) Deferred(ctx context.Context, name string) (any, error) {
	b, ok := m.bindings[name]
	if !ok || b.kind != bindDeferredView {
		return nil, fmt.Errorf("model: %q is not a mapped deferred view", name)
	}
	state, err := m.exec.CompileView(ctx, m.stack, b.view, nil)
	if err != nil {
		return nil, err
	}
	return es.ApplyTransform(b.transform, state), nil
}
