// Package es defines the core data model and contracts of the event-stack
// engine: events, stacks (append-only per-entity logs), view/query/action
// definitions, and the storage and cache interfaces that backends implement.
//
// ARCHITECTURE:
//
// Every entity is modelled as a Stack - a strictly ordered, gap-free sequence
// of events. Read models ("views" and "queries") are folds over that sequence,
// and writes go through actions that consult views before appending exactly
// one event.
//
// The package holds no behaviour beyond the definitions themselves; the fold
// and append protocols live in internal/engine, and concrete storage lives in
// internal/store.
//
// INVARIANTS:
//   - Event ids within a stack are contiguous and zero-based. Event id n may
//     be appended only if event n-1 exists (or n == 0 and the log is empty).
//   - Definitions are immutable after Builder.Build; mutating a frozen
//     builder panics.
//   - Events are immutable once appended. Reducers and finalizers must treat
//     their input state as read-only and return a new value.
package es
