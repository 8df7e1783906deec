package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctrl/eventstack/internal/es"
	"github.com/sctrl/eventstack/internal/flow"
	"github.com/sctrl/eventstack/internal/store"
)

func TestCompileQueryParameterized(t *testing.T) {
	ctx := context.Background()
	fix := newAccountFixture()
	stack := newTestStack(t)
	seedEvent(t, stack, "DEPOSIT", map[string]any{"amount": 5})
	seedEvent(t, stack, "DEPOSIT", map[string]any{"amount": 50})
	seedEvent(t, stack, "DEPOSIT", map[string]any{"amount": 500})

	dv, err := CompileQuery(ctx, stack, fix.bigDeps, 10, Unbounded)
	require.NoError(t, err)
	assert.Equal(t, 2.0, dv.View["count"])

	dv, err = CompileQuery(ctx, stack, fix.bigDeps, 100, Unbounded)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dv.View["count"])
}

func TestCompileQueryFinalizerSeesParams(t *testing.T) {
	ctx := context.Background()
	b := es.Define("account")
	q := b.Query("total_with_fee", es.State{"total": 0.0}).
		On("DEPOSIT", func(state es.State, ev es.Event, params any) es.State {
			state = state.Clone()
			state["total"] = flow.Number(state["total"]) + flow.Number(ev.Payload["amount"])
			return state
		}).
		Finalize(func(state es.State, params any) es.State {
			state = state.Clone()
			state["total"] = flow.Number(state["total"]) * (1 + flow.Number(params))
			return state
		}).
		Definition()
	b.Build()

	stack := store.NewMemoryStack("account|q1")
	seedEvent(t, stack, "DEPOSIT", map[string]any{"amount": 100})

	dv, err := CompileQuery(ctx, stack, q, 0.1, Unbounded)
	require.NoError(t, err)
	assert.InDelta(t, 110.0, flow.Number(dv.View["total"]), 1e-9)
}

func TestQueriesNeverTouchTheCache(t *testing.T) {
	ctx := context.Background()
	fix := newAccountFixture()
	stack := newTestStack(t)
	seedEvent(t, stack, "DEPOSIT", map[string]any{"amount": 50})

	cache := &countingCache{inner: store.NewMemoryViewCache()}
	rc := &es.RepositoryContext{ViewCache: cache}

	exec := newTestExecutor()
	state, err := exec.CompileQuery(ctx, stack, fix.bigDeps, 10, rc)
	require.NoError(t, err)
	assert.Equal(t, 1.0, state["count"])

	assert.Zero(t, cache.reads, "query compilation must not read the cache")
	assert.Zero(t, cache.writes, "query compilation must not write the cache")
}

type countingCache struct {
	inner  es.ViewCache
	reads  int
	writes int
}

func (c *countingCache) GetFromCache(ctx context.Context, identity string) (es.CompiledView, bool, error) {
	c.reads++
	return c.inner.GetFromCache(ctx, identity)
}

func (c *countingCache) UpdateCache(ctx context.Context, identity string, cv es.CompiledView) error {
	c.writes++
	return c.inner.UpdateCache(ctx, identity, cv)
}

func TestQueryWithBaseViews(t *testing.T) {
	ctx := context.Background()
	b := es.Define("rental")
	titles := b.View("titles", es.State{"out": 0.0}).
		On("RENT", func(state es.State, ev es.Event) es.State {
			state = state.Clone()
			state["out"] = flow.Number(state["out"]) + 1
			return state
		}).
		Definition()
	q := b.Query("late_fees", es.State{"fees": 0.0}).
		WithView(titles).
		On("RETURN_LATE", func(state es.State, ev es.Event, params any) es.State {
			state = state.Clone()
			state["fees"] = flow.Number(state["fees"]) + flow.Number(params)
			return state
		}).
		Definition()
	b.Build()

	stack := store.NewMemoryStack("rental|r1")
	seedEvent(t, stack, "RENT", nil)
	seedEvent(t, stack, "RETURN_LATE", nil)

	dv, err := CompileQuery(ctx, stack, q, 2.5, Unbounded)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dv.View["out"], "base view reducers participate")
	assert.Equal(t, 2.5, dv.View["fees"])
}
