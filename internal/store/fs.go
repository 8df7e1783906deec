package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/sctrl/eventstack/internal/es"
)

// FSStore persists each stack as a JSON-lines file under a root
// directory, one event per line in id order. It trades throughput for
// having no dependencies at all; appends re-read the tail line's id to
// enforce the sequence invariant.
//
// Thread-safety: a single store-wide lock serializes all file access.
// Cross-process appends are not safe.
type FSStore struct {
	root string
	mu   sync.Mutex
}

// NewFSStore creates (if needed) the root directory and returns a store
// over it.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(namespace string) string {
	return filepath.Join(s.root, url.PathEscape(namespace)+".jsonl")
}

// GetStack returns the stack for the entity, or es.ErrStackNotFound.
func (s *FSStore) GetStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	if _, err := os.Stat(s.path(ns)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, es.ErrStackNotFound
		}
		return nil, fmt.Errorf("get stack %s: %w", ns, err)
	}
	return &fsStack{store: s, namespace: ns}, nil
}

// CreateStack creates the stack file for the entity if it does not exist.
func (s *FSStore) CreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	f, err := os.OpenFile(s.path(ns), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create stack %s: %w", ns, err)
	}
	f.Close()
	return &fsStack{store: s, namespace: ns}, nil
}

// GetOrCreateStack resolves the stack, creating it on first use.
func (s *FSStore) GetOrCreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	return s.CreateStack(ctx, entityType, entityID)
}

type fsStack struct {
	store     *FSStore
	namespace string
}

func (st *fsStack) Namespace() string { return st.namespace }

// load reads every event in the stack's file. Files are small enough in
// this backend's intended use that a full read per operation is fine.
func (st *fsStack) load() ([]es.Event, error) {
	f, err := os.Open(st.store.path(st.namespace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", st.namespace, err)
	}
	defer f.Close()

	var events []es.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev es.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("decode event in %s: %w", st.namespace, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", st.namespace, err)
	}
	return events, nil
}

func (st *fsStack) appendLine(ev es.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	f, err := os.OpenFile(st.store.path(st.namespace), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", st.namespace, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", st.namespace, err)
	}
	return f.Sync()
}

func (st *fsStack) CommitEvent(ctx context.Context, ev es.Event) error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	events, err := st.load()
	if err != nil {
		return err
	}
	if ev.ID != int64(len(events)) {
		return &es.InvalidSequenceError{Namespace: st.namespace, EventID: ev.ID}
	}
	return st.appendLine(ev)
}

func (st *fsStack) CommitAnonymousEvent(ctx context.Context, ev es.Event) error {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	events, err := st.load()
	if err != nil {
		return err
	}
	ev.ID = int64(len(events))
	return st.appendLine(ev)
}

func (st *fsStack) GetEvent(ctx context.Context, id int64) (es.Event, error) {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	events, err := st.load()
	if err != nil {
		return es.Event{}, err
	}
	if id < 0 || id >= int64(len(events)) {
		return es.Event{}, es.ErrEventNotFound
	}
	return events[id], nil
}

func (st *fsStack) Slice(ctx context.Context, start, end int64) ([]es.Event, error) {
	st.store.mu.Lock()
	defer st.store.mu.Unlock()

	events, err := st.load()
	if err != nil {
		return nil, err
	}
	tail := int64(len(events)) - 1
	if end == es.NoEventID || end > tail {
		end = tail
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		return nil, nil
	}
	return events[start : end+1], nil
}
