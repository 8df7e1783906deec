package store

import (
	"context"
	"sync"

	"github.com/sctrl/eventstack/internal/es"
)

// MemoryStore keeps event stacks in process memory. It is the default
// backend for tests and short-lived embeddings; nothing survives a
// restart.
type MemoryStore struct {
	mu     sync.Mutex
	stacks map[string]*MemoryStack
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stacks: map[string]*MemoryStack{}}
}

// GetStack returns the stack for the entity, or es.ErrStackNotFound.
func (s *MemoryStore) GetStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack, ok := s.stacks[Namespace(entityType, entityID)]
	if !ok {
		return nil, es.ErrStackNotFound
	}
	return stack, nil
}

// CreateStack creates the stack for the entity. Creating an existing
// stack rebinds it without touching its events.
func (s *MemoryStore) CreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(entityType, entityID), nil
}

// GetOrCreateStack resolves the stack, creating it on first use.
func (s *MemoryStore) GetOrCreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stack, ok := s.stacks[Namespace(entityType, entityID)]; ok {
		return stack, nil
	}
	return s.create(entityType, entityID), nil
}

func (s *MemoryStore) create(entityType, entityID string) *MemoryStack {
	ns := Namespace(entityType, entityID)
	stack, ok := s.stacks[ns]
	if !ok {
		stack = &MemoryStack{namespace: ns}
		s.stacks[ns] = stack
	}
	return stack
}

// MemoryStack is an in-memory append-only event log. Events live in a
// slice indexed by event id; ids are dense and zero-based so the slice
// index is the id.
type MemoryStack struct {
	mu        sync.RWMutex
	namespace string
	events    []es.Event
}

// NewMemoryStack creates a standalone in-memory stack, useful when no
// store-level entity table is needed.
func NewMemoryStack(namespace string) *MemoryStack {
	return &MemoryStack{namespace: namespace}
}

// Namespace returns the stack's namespace.
func (st *MemoryStack) Namespace() string { return st.namespace }

// CommitEvent appends ev at its explicit id, enforcing the sequence
// invariant under the stack lock.
func (st *MemoryStack) CommitEvent(ctx context.Context, ev es.Event) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if ev.ID != int64(len(st.events)) {
		return &es.InvalidSequenceError{Namespace: st.namespace, EventID: ev.ID}
	}
	st.events = append(st.events, ev)
	return nil
}

// CommitAnonymousEvent appends ev with the next available id.
func (st *MemoryStack) CommitAnonymousEvent(ctx context.Context, ev es.Event) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	ev.ID = int64(len(st.events))
	st.events = append(st.events, ev)
	return nil
}

// GetEvent returns the event with the given id.
func (st *MemoryStack) GetEvent(ctx context.Context, id int64) (es.Event, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if id < 0 || id >= int64(len(st.events)) {
		return es.Event{}, es.ErrEventNotFound
	}
	return st.events[id], nil
}

// Slice returns events with start <= id <= end. Pass es.NoEventID as end
// to read to the tip. An empty range yields an empty slice, not an error.
func (st *MemoryStack) Slice(ctx context.Context, start, end int64) ([]es.Event, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	tail := int64(len(st.events)) - 1
	if end == es.NoEventID || end > tail {
		end = tail
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		return nil, nil
	}
	out := make([]es.Event, end-start+1)
	copy(out, st.events[start:end+1])
	return out, nil
}
