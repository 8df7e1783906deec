package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/sctrl/eventstack/internal/es"
	"github.com/sctrl/eventstack/internal/flow"
)

// Unbounded reads to the tip of the log.
const Unbounded int64 = es.NoEventID

// BeforeFirst bounds a fold to before event 0: nothing is read and the
// composition yields its finalized seed state. Distinct from Unbounded so
// "read nothing" and "read everything" can never be conflated.
const BeforeFirst int64 = -2

// DetailedView is a compiler result: the finalized state plus the event-id
// markers. LastEventID is the id of the last event processed by this fold
// (es.NoEventID if none); LastImpactedID is the last event that matched at
// least one reducer.
type DetailedView struct {
	View           es.State
	LastEventID    int64
	LastImpactedID int64
}

// flattenViews expands a view list plus all transitively nested base views
// into evaluation order: base views before their including view, depth
// first. Duplicates are deliberately kept - each occurrence contributes its
// reducers independently.
func flattenViews(views []*es.ViewDefinition) []*es.ViewDefinition {
	var all []*es.ViewDefinition
	for _, v := range views {
		all = append(all, flattenViews(v.BaseViews)...)
		all = append(all, v)
	}
	return all
}

// composeViewName renders the deterministic identity of a view composition:
// nested base views as Outer<Inner1|Inner2>, siblings joined by "|".
func composeViewName(views []*es.ViewDefinition) string {
	parts := make([]string, 0, len(views))
	for _, v := range views {
		name := v.Type
		if len(v.BaseViews) > 0 {
			name = fmt.Sprintf("%s<%s>", name, composeViewName(v.BaseViews))
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, "|")
}

// CompileDetailedViews folds a view composition over the stack's events.
//
// The fold starts from the cached state for this exact composition (or the
// shallow-merged defaults at watermark es.NoEventID), reads events from the
// watermark forward - bounded by maxEventID inclusive, or to the tip when
// maxEventID is Unbounded - applies each view's reducers then flow specs in
// flattened order, conditionally writes the advanced watermark back to the
// cache, and finally applies every view's finalizer.
//
// Pass a nil rc (or a nil rc.ViewCache) to fold from scratch without
// caching; results are identical, the cache is purely a performance
// optimization.
func CompileDetailedViews(ctx context.Context, stack es.Stack, views []*es.ViewDefinition, maxEventID int64, rc *es.RepositoryContext) (DetailedView, error) {
	all := flattenViews(views)
	identity := fmt.Sprintf("%s<%s>", stack.Namespace(), composeViewName(all))

	baseDefault := es.State{}
	for _, v := range all {
		for k, val := range v.Default {
			baseDefault[k] = val
		}
	}

	if maxEventID == BeforeFirst {
		// Nothing may be read, not even cached state beyond the bound.
		state := baseDefault
		for _, v := range all {
			if v.Finalizer != nil {
				state = v.Finalizer(state)
			}
		}
		return DetailedView{View: state, LastEventID: es.NoEventID, LastImpactedID: es.NoEventID}, nil
	}

	cached := es.CompiledView{EventID: es.NoEventID, View: baseDefault}
	var cache es.ViewCache
	if rc != nil {
		cache = rc.ViewCache
	}
	if cache != nil {
		cv, ok, err := cache.GetFromCache(ctx, identity)
		if err != nil {
			return DetailedView{}, fmt.Errorf("view %s: cache read: %w", identity, err)
		}
		if ok {
			cached = cv
		}
	}

	events, err := stack.Slice(ctx, cached.EventID+1, maxEventID)
	if err != nil {
		return DetailedView{}, fmt.Errorf("view %s: read events: %w", identity, err)
	}

	state := cached.View
	lastEventID := es.NoEventID
	lastImpactedID := es.NoEventID
	for _, ev := range events {
		lastEventID = ev.ID
		for _, v := range all {
			if reducer, ok := v.Reducers[ev.Type]; ok {
				lastImpactedID = ev.ID
				state = reducer(state, ev)
			}
			for _, spec := range v.Flows {
				state = es.State(flow.EvalStep(spec, state, flow.Event(ev.Type, ev.Payload)))
			}
		}
	}

	// Event id 0 is a valid watermark; only a fold that processed nothing
	// skips the write. Stale writes are dropped by the cache, not by us.
	if lastEventID != es.NoEventID && cache != nil {
		cv := es.CompiledView{EventID: lastEventID, View: state}
		if err := cache.UpdateCache(ctx, identity, cv); err != nil {
			return DetailedView{}, fmt.Errorf("view %s: cache write: %w", identity, err)
		}
	}

	for _, v := range all {
		if v.Finalizer != nil {
			state = v.Finalizer(state)
		}
	}

	return DetailedView{View: state, LastEventID: lastEventID, LastImpactedID: lastImpactedID}, nil
}

// CompileView folds a single view to the tip and returns its finalized state.
func CompileView(ctx context.Context, stack es.Stack, view *es.ViewDefinition, rc *es.RepositoryContext) (es.State, error) {
	dv, err := CompileDetailedViews(ctx, stack, []*es.ViewDefinition{view}, Unbounded, rc)
	if err != nil {
		return nil, err
	}
	return dv.View, nil
}
