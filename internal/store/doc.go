// Package store provides the persistence backends for event stacks and
// compiled-view caches.
//
// Every backend enforces the same two contracts regardless of medium:
// appends are serialized by the sequence check (an explicit commit must
// target exactly tail+1, or 0 on an empty log), and cache writes are
// conditional (a write that does not advance the stored event id is
// dropped silently).
//
// Backends: in-memory (tests and embedding), SQLite (single-node
// durability), filesystem JSON lines (zero-dependency durability),
// DynamoDB (serverless), Redis (shared cache), and an HTTP client for a
// remote event service.
package store
