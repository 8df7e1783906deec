package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sctrl/eventstack/internal/es"
	"github.com/sctrl/eventstack/internal/flow"
	"github.com/sctrl/eventstack/internal/store"
	"github.com/sctrl/eventstack/internal/testutil"
)

// accountFixture is a small banking domain shared by the engine tests:
// deposits and withdrawals fold into a balance view, withdrawals are
// rejected when they exceed the balance, and a parameterized query counts
// deposits above a threshold.
type accountFixture struct {
	def     *es.StackDefinition
	balance *es.ViewDefinition
	bigDeps *es.QueryDefinition
}

func newAccountFixture() *accountFixture {
	b := es.Define("account")

	balance := b.View("balance", es.State{"balance": 0.0}).
		On("DEPOSIT", func(state es.State, ev es.Event) es.State {
			state = state.Clone()
			state["balance"] = flow.Number(state["balance"]) + flow.Number(ev.Payload["amount"])
			return state
		}).
		On("WITHDRAW", func(state es.State, ev es.Event) es.State {
			state = state.Clone()
			state["balance"] = flow.Number(state["balance"]) - flow.Number(ev.Payload["amount"])
			return state
		}).
		Definition()

	b.Action("DEPOSIT", func(ctx context.Context, tx es.ActionContext, payload map[string]any) (es.ActionResult, error) {
		return tx.Commit(), nil
	})
	b.Action("WITHDRAW", func(ctx context.Context, tx es.ActionContext, payload map[string]any) (es.ActionResult, error) {
		state, err := tx.View(ctx, balance)
		if err != nil {
			return es.ActionResult{}, err
		}
		if flow.Number(payload["amount"]) > flow.Number(state["balance"]) {
			return tx.Reject("ACCOUNT_BALANCE_LOW"), nil
		}
		return tx.Commit(), nil
	})

	bigDeps := b.Query("deposits_greater_than", es.State{"count": 0.0}).
		On("DEPOSIT", func(state es.State, ev es.Event, params any) es.State {
			if flow.Number(ev.Payload["amount"]) <= flow.Number(params) {
				return state
			}
			state = state.Clone()
			state["count"] = flow.Number(state["count"]) + 1
			return state
		}).
		Definition()

	return &accountFixture{def: b.Build(), balance: balance, bigDeps: bigDeps}
}

func newTestExecutor() *Executor {
	return NewExecutor(
		WithClock(testutil.NewFixedClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))),
		WithTokenGenerator(testutil.NewSequenceGenerator("uid")),
	)
}

func newTestStack(t *testing.T) *store.MemoryStack {
	t.Helper()
	return store.NewMemoryStack("account|" + t.Name())
}

func seedEvent(t *testing.T, stack es.Stack, eventType string, payload map[string]any) {
	t.Helper()
	err := stack.CommitAnonymousEvent(context.Background(), es.Event{
		Type:     eventType,
		Metadata: map[string]any{"timestamp": "2024-01-01T00:00:00Z", "uid": "seed"},
		Payload:  payload,
	})
	require.NoError(t, err)
}
