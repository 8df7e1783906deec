package engine

import (
	"context"

	"github.com/sctrl/eventstack/internal/es"
)

// CompileQuery folds a parameterized query over the stack's events.
//
// The query's reducers and finalizer are bound to the caller's parameters
// and folded through the same machinery as views, with one deliberate
// difference: the cache is bypassed in both directions. Parameters are not
// part of any cache key, so a cached query result would either be served
// stale across parameter values or explode the key space.
func CompileQuery(ctx context.Context, stack es.Stack, query *es.QueryDefinition, params any, maxEventID int64) (DetailedView, error) {
	reducers := make(map[string]es.Reducer, len(query.Reducers))
	for eventType, reducer := range query.Reducers {
		reducer := reducer
		reducers[eventType] = func(state es.State, ev es.Event) es.State {
			return reducer(state, ev, params)
		}
	}

	var finalizer es.Finalizer
	if query.Finalizer != nil {
		qf := query.Finalizer
		finalizer = func(state es.State) es.State {
			return qf(state, params)
		}
	}

	view := &es.ViewDefinition{
		Type:      query.Type,
		StackType: query.StackType,
		Default:   query.Default,
		Reducers:  reducers,
		BaseViews: query.BaseViews,
		Finalizer: finalizer,
	}

	return CompileDetailedViews(ctx, stack, []*es.ViewDefinition{view}, maxEventID, nil)
}
