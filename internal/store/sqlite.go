package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sctrl/eventstack/internal/es"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists event stacks in a single SQLite database. Events
// for all namespaces share one table keyed by (namespace, id); the
// sequence invariant is enforced inside a transaction against MAX(id).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. The connection pool is capped at one connection: SQLite
// serializes writers anyway, and a single connection keeps transaction
// semantics simple under WAL.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// GetStack returns the stack for the entity, or es.ErrStackNotFound.
func (s *SQLiteStore) GetStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT namespace FROM stacks WHERE namespace = ?`, ns).Scan(&found)
	if err == sql.ErrNoRows {
		return nil, es.ErrStackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stack %s: %w", ns, err)
	}
	return &sqliteStack{db: s.db, namespace: ns}, nil
}

// CreateStack registers the stack for the entity. Existing stacks are
// rebound untouched.
func (s *SQLiteStore) CreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	ns := Namespace(entityType, entityID)
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO stacks (namespace) VALUES (?)`, ns); err != nil {
		return nil, fmt.Errorf("create stack %s: %w", ns, err)
	}
	return &sqliteStack{db: s.db, namespace: ns}, nil
}

// GetOrCreateStack resolves the stack, creating it on first use.
func (s *SQLiteStore) GetOrCreateStack(ctx context.Context, entityType, entityID string) (es.Stack, error) {
	return s.CreateStack(ctx, entityType, entityID)
}

type sqliteStack struct {
	db        *sql.DB
	namespace string
}

func (st *sqliteStack) Namespace() string { return st.namespace }

func (st *sqliteStack) tail(ctx context.Context, tx *sql.Tx) (int64, error) {
	var tail sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE namespace = ?`, st.namespace).Scan(&tail)
	if err != nil {
		return 0, fmt.Errorf("read tail of %s: %w", st.namespace, err)
	}
	if !tail.Valid {
		return es.NoEventID, nil
	}
	return tail.Int64, nil
}

func (st *sqliteStack) insert(ctx context.Context, tx *sql.Tx, ev es.Event) error {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (namespace, id, type, metadata, payload) VALUES (?, ?, ?, ?, ?)`,
		st.namespace, ev.ID, ev.Type, string(metadata), string(payload))
	if err != nil {
		return fmt.Errorf("insert event %d into %s: %w", ev.ID, st.namespace, err)
	}
	return nil
}

// CommitEvent appends ev at its explicit id. The tail check and the
// insert run in one transaction; the (namespace, id) primary key backs
// the check up against anything racing outside it.
func (st *sqliteStack) CommitEvent(ctx context.Context, ev es.Event) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	tail, err := st.tail(ctx, tx)
	if err != nil {
		return err
	}
	if ev.ID != tail+1 {
		return &es.InvalidSequenceError{Namespace: st.namespace, EventID: ev.ID}
	}
	if err := st.insert(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

// CommitAnonymousEvent appends ev with id tail+1.
func (st *sqliteStack) CommitAnonymousEvent(ctx context.Context, ev es.Event) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	tail, err := st.tail(ctx, tx)
	if err != nil {
		return err
	}
	ev.ID = tail + 1
	if err := st.insert(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (st *sqliteStack) GetEvent(ctx context.Context, id int64) (es.Event, error) {
	row := st.db.QueryRowContext(ctx,
		`SELECT id, type, metadata, payload FROM events WHERE namespace = ? AND id = ?`,
		st.namespace, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return es.Event{}, es.ErrEventNotFound
	}
	if err != nil {
		return es.Event{}, fmt.Errorf("get event %d from %s: %w", id, st.namespace, err)
	}
	return ev, nil
}

func (st *sqliteStack) Slice(ctx context.Context, start, end int64) ([]es.Event, error) {
	query := `SELECT id, type, metadata, payload FROM events WHERE namespace = ? AND id >= ?`
	args := []any{st.namespace, start}
	if end != es.NoEventID {
		query += ` AND id <= ?`
		args = append(args, end)
	}
	query += ` ORDER BY id ASC`

	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("slice %s: %w", st.namespace, err)
	}
	defer rows.Close()

	var events []es.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("slice %s: %w", st.namespace, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slice %s: %w", st.namespace, err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (es.Event, error) {
	var (
		ev       es.Event
		metadata string
		payload  string
	)
	if err := row.Scan(&ev.ID, &ev.Type, &metadata, &payload); err != nil {
		return es.Event{}, err
	}
	if err := json.Unmarshal([]byte(metadata), &ev.Metadata); err != nil {
		return es.Event{}, fmt.Errorf("decode metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
		return es.Event{}, fmt.Errorf("decode payload: %w", err)
	}
	return ev, nil
}

// SQLiteViewCache persists compiled views in the same database as the
// events, with the conditional write done in SQL.
type SQLiteViewCache struct {
	db *sql.DB
}

// ViewCache returns a view cache backed by the store's database.
func (s *SQLiteStore) ViewCache() *SQLiteViewCache {
	return &SQLiteViewCache{db: s.db}
}

// GetFromCache returns the cached compiled view for the identity.
func (c *SQLiteViewCache) GetFromCache(ctx context.Context, identity string) (es.CompiledView, bool, error) {
	var (
		eventID int64
		view    string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT event_id, view FROM view_cache WHERE identity = ?`, identity).Scan(&eventID, &view)
	if err == sql.ErrNoRows {
		return es.CompiledView{}, false, nil
	}
	if err != nil {
		return es.CompiledView{}, false, fmt.Errorf("cache read %s: %w", identity, err)
	}
	var state es.State
	if err := json.Unmarshal([]byte(view), &state); err != nil {
		return es.CompiledView{}, false, fmt.Errorf("cache read %s: %w", identity, err)
	}
	return es.CompiledView{EventID: eventID, View: state}, true, nil
}

// UpdateCache stores the compiled view if it advances the entry's event
// id. The guard lives in the upsert's WHERE clause so racing writers
// cannot interleave a stale overwrite.
func (c *SQLiteViewCache) UpdateCache(ctx context.Context, identity string, cv es.CompiledView) error {
	view, err := json.Marshal(cv.View)
	if err != nil {
		return fmt.Errorf("cache write %s: %w", identity, err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO view_cache (identity, event_id, view) VALUES (?, ?, ?)
		 ON CONFLICT (identity) DO UPDATE SET event_id = excluded.event_id, view = excluded.view
		 WHERE excluded.event_id > view_cache.event_id`,
		identity, cv.EventID, string(view))
	if err != nil {
		return fmt.Errorf("cache write %s: %w", identity, err)
	}
	return nil
}
