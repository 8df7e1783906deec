package store

import (
	"context"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sctrl/eventstack/internal/es"
)

func TestNamespace(t *testing.T) {
	assert.Equal(t, "account|a1", Namespace("account", "a1"))
}

func TestMemoryStoreStackLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetStack(ctx, "account", "a1")
	assert.ErrorIs(t, err, es.ErrStackNotFound)

	created, err := s.CreateStack(ctx, "account", "a1")
	require.NoError(t, err)
	assert.Equal(t, "account|a1", created.Namespace())

	got, err := s.GetStack(ctx, "account", "a1")
	require.NoError(t, err)
	assert.Same(t, created, got)

	again, err := s.GetOrCreateStack(ctx, "account", "a1")
	require.NoError(t, err)
	assert.Same(t, created, again, "recreate must not lose the log")
}

func TestMemoryStackSequenceInvariant(t *testing.T) {
	ctx := context.Background()
	stack := NewMemoryStack("account|a1")

	err := stack.CommitEvent(ctx, es.Event{ID: 1, Type: "X"})
	assert.True(t, es.IsInvalidSequence(err), "first explicit id must be 0")

	require.NoError(t, stack.CommitEvent(ctx, es.Event{ID: 0, Type: "X"}))
	require.NoError(t, stack.CommitEvent(ctx, es.Event{ID: 1, Type: "X"}))

	err = stack.CommitEvent(ctx, es.Event{ID: 1, Type: "X"})
	assert.True(t, es.IsInvalidSequence(err), "replayed id must conflict")
	err = stack.CommitEvent(ctx, es.Event{ID: 3, Type: "X"})
	assert.True(t, es.IsInvalidSequence(err), "gaps must conflict")
}

func TestMemoryStackAnonymousAssignsNextID(t *testing.T) {
	ctx := context.Background()
	stack := NewMemoryStack("account|a1")

	require.NoError(t, stack.CommitAnonymousEvent(ctx, es.Event{Type: "A"}))
	require.NoError(t, stack.CommitAnonymousEvent(ctx, es.Event{Type: "B"}))

	ev, err := stack.GetEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "B", ev.Type)
	assert.Equal(t, int64(1), ev.ID)
}

func TestMemoryStackGetEventMissing(t *testing.T) {
	ctx := context.Background()
	stack := NewMemoryStack("account|a1")
	_, err := stack.GetEvent(ctx, 0)
	assert.ErrorIs(t, err, es.ErrEventNotFound)
	_, err = stack.GetEvent(ctx, -1)
	assert.ErrorIs(t, err, es.ErrEventNotFound)
}

func TestMemoryStackSlice(t *testing.T) {
	ctx := context.Background()
	stack := NewMemoryStack("account|a1")
	for i := 0; i < 5; i++ {
		require.NoError(t, stack.CommitAnonymousEvent(ctx, es.Event{Type: "X"}))
	}

	events, err := stack.Slice(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(3), events[2].ID)

	all, err := stack.Slice(ctx, 0, es.NoEventID)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := stack.Slice(ctx, 5, es.NoEventID)
	require.NoError(t, err)
	assert.Empty(t, none)

	over, err := stack.Slice(ctx, 3, 99)
	require.NoError(t, err)
	assert.Len(t, over, 2)
}

func TestMemoryStackConcurrentAppendsExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	stack := NewMemoryStack("account|race")
	require.NoError(t, stack.CommitAnonymousEvent(ctx, es.Event{Type: "SEED"}))

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = stack.CommitEvent(ctx, es.Event{ID: 1, Type: "RACE"})
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, es.IsInvalidSequence(err))
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMemoryStackProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ids are dense and zero-based after n anonymous appends", prop.ForAll(
		func(n uint8) bool {
			ctx := context.Background()
			stack := NewMemoryStack("prop|dense")
			for i := 0; i < int(n); i++ {
				if err := stack.CommitAnonymousEvent(ctx, es.Event{Type: "X"}); err != nil {
					return false
				}
			}
			events, err := stack.Slice(ctx, 0, es.NoEventID)
			if err != nil || len(events) != int(n) {
				return false
			}
			for i, ev := range events {
				if ev.ID != int64(i) {
					return false
				}
			}
			return true
		},
		gen.UInt8Range(0, 64),
	))

	properties.Property("slice agrees with per-id reads", prop.ForAll(
		func(n, lo, hi uint8) bool {
			ctx := context.Background()
			stack := NewMemoryStack("prop|slice")
			for i := 0; i < int(n); i++ {
				if err := stack.CommitAnonymousEvent(ctx, es.Event{Type: "X"}); err != nil {
					return false
				}
			}
			start, end := int64(lo), int64(hi)
			events, err := stack.Slice(ctx, start, end)
			if err != nil {
				return false
			}
			for _, ev := range events {
				got, err := stack.GetEvent(ctx, ev.ID)
				if err != nil || got.ID != ev.ID {
					return false
				}
				if ev.ID < start || ev.ID > end {
					return false
				}
			}
			return true
		},
		gen.UInt8Range(0, 32), gen.UInt8Range(0, 32), gen.UInt8Range(0, 32),
	))

	properties.TestingRun(t)
}
