package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sctrl/eventstack/internal/es"
)

// Executor runs actions and compiles views/queries. It implements
// es.Executor and is the default executor bound into a RepositoryContext.
type Executor struct {
	clock  es.Clock
	tokens es.TokenGenerator
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock substitutes the timestamp source (tests use a fixed clock).
func WithClock(clock es.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = clock }
}

// WithTokenGenerator substitutes the event uid source.
func WithTokenGenerator(tokens es.TokenGenerator) ExecutorOption {
	return func(e *Executor) { e.tokens = tokens }
}

// NewExecutor creates an Executor with the system clock and UUIDv7 uids
// unless overridden.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		clock:  SystemClock{},
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// actionContext threads one action invocation's snapshot: a watermark that
// starts unresolved and advances to the last event id seen by any view or
// query read. Bounding later reads by the watermark gives the handler a
// consistent snapshot across multiple reads; the watermark also determines
// the committed event's id.
//
// The watermark distinguishes three cases explicitly: unresolved (no reads
// yet), resolved at es.NoEventID (reads done, log empty - the next event id
// is 0), and resolved at a real id. Event id 0 is a valid watermark.
type actionContext struct {
	stack     es.Stack
	resolved  bool
	watermark int64
}

func (c *actionContext) bound() int64 {
	if !c.resolved {
		return Unbounded
	}
	if c.watermark == es.NoEventID {
		// Resolved against an empty log: later reads must stay empty, they
		// must not drift to the tip.
		return BeforeFirst
	}
	return c.watermark
}

func (c *actionContext) advance(lastEventID int64) {
	if !c.resolved || lastEventID > c.watermark {
		c.watermark = lastEventID
	}
	c.resolved = true
}

// Views compiles a view composition against the snapshot. Reads inside an
// action bypass the cache: the returned watermark must reflect the log
// itself, not a cached high-water mark.
func (c *actionContext) Views(ctx context.Context, views []*es.ViewDefinition) (es.State, error) {
	dv, err := CompileDetailedViews(ctx, c.stack, views, c.bound(), nil)
	if err != nil {
		return nil, err
	}
	c.advance(dv.LastEventID)
	return dv.View, nil
}

func (c *actionContext) View(ctx context.Context, view *es.ViewDefinition) (es.State, error) {
	return c.Views(ctx, []*es.ViewDefinition{view})
}

func (c *actionContext) Query(ctx context.Context, query *es.QueryDefinition, params any) (es.State, error) {
	dv, err := CompileQuery(ctx, c.stack, query, params, c.bound())
	if err != nil {
		return nil, err
	}
	c.advance(dv.LastEventID)
	return dv.View, nil
}

func (c *actionContext) Commit() es.ActionResult {
	return es.ActionResult{Decision: es.ActionCommit}
}

func (c *actionContext) CommitWith(payloadOverride map[string]any) es.ActionResult {
	return es.ActionResult{
		Decision:        es.ActionCommit,
		PayloadOverride: payloadOverride,
		HasOverride:     true,
	}
}

func (c *actionContext) Reject(code string) es.ActionResult {
	return es.ActionResult{Decision: es.ActionReject, Code: code}
}

// ExecuteAction invokes an action handler and turns its verdict into exactly
// one append or a structured failure.
//
// On COMMIT: if the handler consulted any view or query, the event id is
// watermark+1 and the append is sequenced - a concurrent writer that raced
// ahead surfaces as an InvalidSequenceError. If the handler never read
// anything, the append is anonymous (the store assigns tail+1) so
// zero-read actions need no extra round trip.
//
// On REJECT: returns a RejectionError carrying the reason code. Nothing is
// appended, nothing is retried here.
func (e *Executor) ExecuteAction(ctx context.Context, stack es.Stack, action *es.ActionDefinition, payload map[string]any) error {
	if action == nil || action.Handler == nil {
		return fmt.Errorf("execute action: nil action definition")
	}

	ac := &actionContext{stack: stack}
	result, err := action.Handler(ctx, ac, payload)
	if err != nil {
		return fmt.Errorf("action %s: %w", action.Type, err)
	}

	switch result.Decision {
	case es.ActionReject:
		return &es.RejectionError{ActionType: action.Type, Code: result.Code}

	case es.ActionCommit:
		committed := payload
		if result.HasOverride {
			committed = result.PayloadOverride
		}
		ev := es.Event{
			Type: action.Type,
			Metadata: map[string]any{
				"timestamp": e.clock.Now().UTC().Format(time.RFC3339Nano),
				"uid":       e.tokens.Generate(),
			},
			Payload: committed,
		}
		if ac.resolved {
			ev.ID = ac.watermark + 1
			return stack.CommitEvent(ctx, ev)
		}
		return stack.CommitAnonymousEvent(ctx, ev)

	default:
		return fmt.Errorf("action %s: unknown decision %q", action.Type, result.Decision)
	}
}

// CompileView implements es.Executor.
func (e *Executor) CompileView(ctx context.Context, stack es.Stack, view *es.ViewDefinition, rc *es.RepositoryContext) (es.State, error) {
	return CompileView(ctx, stack, view, rc)
}

// CompileQuery implements es.Executor. The rc parameter is accepted for
// interface parity but unused: queries never touch the cache.
func (e *Executor) CompileQuery(ctx context.Context, stack es.Stack, query *es.QueryDefinition, params any, rc *es.RepositoryContext) (es.State, error) {
	dv, err := CompileQuery(ctx, stack, query, params, Unbounded)
	if err != nil {
		return nil, err
	}
	return dv.View, nil
}
