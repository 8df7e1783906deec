package engine

import (
	"context"
	"fmt"

	"github.com/sctrl/eventstack/internal/es"
	"github.com/sctrl/eventstack/internal/store"
)

// Repository is the front door: it resolves entity stacks against a store
// and hands back models, views, and queries bound to a shared view cache
// and executor.
type Repository struct {
	store es.Store
	rc    *es.RepositoryContext
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithViewCache substitutes the shared view cache.
func WithViewCache(cache es.ViewCache) RepositoryOption {
	return func(r *Repository) { r.rc.ViewCache = cache }
}

// WithExecutor substitutes the action executor.
func WithExecutor(exec es.Executor) RepositoryOption {
	return func(r *Repository) { r.rc.Executor = exec }
}

// NewRepository creates a Repository over the given store. Unless
// overridden it caches views in memory and executes actions with the
// default executor.
func NewRepository(s es.Store, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store: s,
		rc: &es.RepositoryContext{
			ViewCache: store.NewMemoryViewCache(),
			Executor:  NewExecutor(),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Context exposes the repository's shared view cache and executor.
func (r *Repository) Context() *es.RepositoryContext { return r.rc }

// FindOrCreateModel resolves the entity's stack, creating it on first use,
// and binds the model definition to it.
func (r *Repository) FindOrCreateModel(ctx context.Context, def *es.ModelDefinition, entityID string) (*Model, error) {
	stack, err := r.store.GetOrCreateStack(ctx, def.StackDef.Type, entityID)
	if err != nil {
		return nil, fmt.Errorf("model %s/%s: %w", def.StackDef.Type, entityID, err)
	}
	return ModelFromStack(ctx, stack, def, r.rc)
}

// FindOrCreateView resolves the entity's stack and compiles the view
// through the shared cache.
func (r *Repository) FindOrCreateView(ctx context.Context, view *es.ViewDefinition, entityID string) (es.State, error) {
	stack, err := r.store.GetOrCreateStack(ctx, view.StackType, entityID)
	if err != nil {
		return nil, fmt.Errorf("view %s/%s: %w", view.StackType, entityID, err)
	}
	return r.rc.Executor.CompileView(ctx, stack, view, r.rc)
}

// FindOrCreateQuery resolves the entity's stack and compiles the query
// with the given parameters.
func (r *Repository) FindOrCreateQuery(ctx context.Context, query *es.QueryDefinition, entityID string, params any) (es.State, error) {
	stack, err := r.store.GetOrCreateStack(ctx, query.StackType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query %s/%s: %w", query.StackType, entityID, err)
	}
	return r.rc.Executor.CompileQuery(ctx, stack, query, params, r.rc)
}

// ExecuteAction resolves the entity's stack and runs a single action
// against it without binding a model.
func (r *Repository) ExecuteAction(ctx context.Context, def *es.StackDefinition, entityID, actionType string, payload map[string]any) error {
	action, ok := def.Actions[actionType]
	if !ok {
		return fmt.Errorf("action %s: not defined for stack %q", actionType, def.Type)
	}
	stack, err := r.store.GetOrCreateStack(ctx, def.Type, entityID)
	if err != nil {
		return fmt.Errorf("action %s/%s: %w", def.Type, entityID, err)
	}
	return r.rc.Executor.ExecuteAction(ctx, stack, action, payload)
}
