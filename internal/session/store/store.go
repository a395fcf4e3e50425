package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/sessiondb/internal/session"
	"github.com/louisbranch/sessiondb/internal/session/dialect"
)

// schemaState tracks schema preparation. Operations require schemaReady.
type schemaState int

const (
	schemaUninitialized schemaState = iota
	schemaTableVerified
	schemaReady
)

// Store executes session statements against a *sql.DB pool. Each operation
// borrows a pooled connection for its own duration and releases it on every
// path; the store holds no per-session state and is safe for concurrent use.
//
// All timestamps are bound from caller-supplied values; the store never
// reads the wall clock during statement construction.
type Store struct {
	db     *sql.DB
	schema TableSchema
	tracer trace.Tracer

	mu    sync.Mutex
	state schemaState
}

// Open connects to the database named by a registered driver, verifies
// connectivity, and returns a store over the default schema for that
// driver's dialect. Connectivity failures wrap session.ErrStorageUnavailable.
func Open(ctx context.Context, driverName, dsn string) (*Store, error) {
	adaptor, err := dialect.For(driverName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w: %w", driverName, session.ErrStorageUnavailable, err)
	}
	return New(db, DefaultSchema(adaptor)), nil
}

// New wraps an existing pool with the given schema. Callers needing a
// non-default adaptor (for example forcing empty-string-is-NULL handling)
// build the schema themselves.
func New(db *sql.DB, schema TableSchema) *Store {
	return &Store{
		db:     db,
		schema: schema,
		tracer: otel.Tracer("sessiondb/store"),
	}
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Schema returns the statement builder the store executes.
func (s *Store) Schema() TableSchema { return s.schema }

// PrepareTables idempotently ensures the backing table and indexes exist.
// "Already exists" is success; any other DDL failure wraps session.ErrSchema
// and is fatal, since no session operation can proceed without the table.
func (s *Store) PrepareTables(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == schemaReady {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, s.schema.CreateTableDDL()); err != nil {
		if !s.schema.Adaptor.IsAlreadyExists(err) {
			return fmt.Errorf("create session table: %w: %w", session.ErrSchema, err)
		}
	}
	s.state = schemaTableVerified

	for _, ddl := range s.schema.CreateIndexDDL() {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			if !s.schema.Adaptor.IsAlreadyExists(err) {
				return fmt.Errorf("create session index: %w: %w", session.ErrSchema, err)
			}
		}
	}
	s.state = schemaReady
	return nil
}

// Load fetches the full record for a session id within a scope. A missing
// row reports found=false with no error.
func (s *Store) Load(ctx context.Context, id string, scope session.Context) (session.Data, bool, error) {
	ctx, span := s.startSpan(ctx, "session.load")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return session.Data{}, false, err
	}

	st := s.schema.LoadStatement(id, scope)
	row := s.db.QueryRowContext(ctx, st.Query, st.Args...)

	var data session.Data
	err := row.Scan(
		&data.ID,
		&data.ContextPath,
		&data.VirtualHost,
		&data.OwningNode,
		&data.Created,
		&data.Accessed,
		&data.LastAccessed,
		&data.LastSaved,
		&data.Expiry,
		&data.MaxInactive,
		&data.Attributes,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return session.Data{}, false, nil
		}
		return session.Data{}, false, s.fail(span, "load session", err)
	}
	return data, true, nil
}

// Exists reports whether a session row is present without materializing the
// payload.
func (s *Store) Exists(ctx context.Context, id string, scope session.Context) (bool, error) {
	ctx, span := s.startSpan(ctx, "session.exists")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return false, err
	}

	st := s.schema.ExistsStatement(scope)
	args := append([]any{id}, st.Args...)
	row := s.db.QueryRowContext(ctx, st.Query, args...)

	var found string
	if err := row.Scan(&found); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, s.fail(span, "check session exists", err)
	}
	return true, nil
}

// Delete removes at most one session row and returns the affected-row count.
// Deleting a row that no longer exists is success with count 0.
func (s *Store) Delete(ctx context.Context, id string, scope session.Context) (int64, error) {
	ctx, span := s.startSpan(ctx, "session.delete")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return 0, err
	}

	st := s.schema.DeleteStatement(id, scope)
	result, err := s.db.ExecContext(ctx, st.Query, st.Args...)
	if err != nil {
		return 0, s.fail(span, "delete session", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, s.fail(span, "delete session affected rows", err)
	}
	return affected, nil
}

// Insert creates the row for a session's first save.
func (s *Store) Insert(ctx context.Context, scope session.Context, data session.Data) error {
	ctx, span := s.startSpan(ctx, "session.insert")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return err
	}

	st := s.schema.InsertStatement(scope, data)
	if _, err := s.db.ExecContext(ctx, st.Query, st.Args...); err != nil {
		return s.fail(span, "insert session", err)
	}
	return nil
}

// Update saves an existing session last-writer-wins and returns the
// affected-row count: 1 when the row existed, 0 when it vanished
// concurrently and the caller should fall back to Insert.
func (s *Store) Update(ctx context.Context, scope session.Context, data session.Data) (int64, error) {
	ctx, span := s.startSpan(ctx, "session.update")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return 0, err
	}
	return s.execUpdate(ctx, span, s.schema.UpdateStatement(scope, data))
}

// UpdateIfSaved is the compare-and-swap save: it only succeeds while the
// stored last-saved time still equals expectedLastSaved. Count 0 means the
// row vanished or another node saved in between; the caller decides whether
// to reload or surrender the update.
func (s *Store) UpdateIfSaved(ctx context.Context, scope session.Context, data session.Data, expectedLastSaved int64) (int64, error) {
	ctx, span := s.startSpan(ctx, "session.update_if_saved")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return 0, err
	}
	return s.execUpdate(ctx, span, s.schema.UpdateIfSavedStatement(scope, data, expectedLastSaved))
}

// Save updates an existing row, falling back to insert when the row is not
// there yet. A racing insert from another node loses to one more update
// attempt before the original insert error surfaces.
func (s *Store) Save(ctx context.Context, scope session.Context, data session.Data) error {
	affected, err := s.Update(ctx, scope, data)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	insertErr := s.Insert(ctx, scope, data)
	if insertErr == nil {
		return nil
	}
	affected, err = s.Update(ctx, scope, data)
	if err == nil && affected > 0 {
		return nil
	}
	return insertErr
}

// ExpiredSessions returns the session ids in a scope whose expiry time is
// set and at or before beforeMillis. Usable by any node for orphan cleanup.
func (s *Store) ExpiredSessions(ctx context.Context, canonicalContextPath, virtualHost string, beforeMillis int64) ([]string, error) {
	ctx, span := s.startSpan(ctx, "session.expired")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, span, "query expired sessions",
		s.schema.ExpiredStatement(canonicalContextPath, virtualHost, beforeMillis))
}

// MyExpiredSessions restricts ExpiredSessions to rows owned by the scope's
// node. Each node reaps its own sessions first to avoid cross-node
// contention.
func (s *Store) MyExpiredSessions(ctx context.Context, scope session.Context, beforeMillis int64) ([]string, error) {
	ctx, span := s.startSpan(ctx, "session.my_expired")
	defer span.End()
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, span, "query my expired sessions",
		s.schema.MyExpiredStatement(scope, beforeMillis))
}

func (s *Store) execUpdate(ctx context.Context, span trace.Span, st Statement) (int64, error) {
	result, err := s.db.ExecContext(ctx, st.Query, st.Args...)
	if err != nil {
		return 0, s.fail(span, "update session", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, s.fail(span, "update session affected rows", err)
	}
	return affected, nil
}

func (s *Store) queryIDs(ctx context.Context, span trace.Span, op string, st Statement) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, st.Query, st.Args...)
	if err != nil {
		return nil, s.fail(span, op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.fail(span, op+" scan", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(span, op+" iterate", err)
	}
	return ids, nil
}

func (s *Store) requireReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != schemaReady {
		return fmt.Errorf("session table not prepared: %w", session.ErrSchema)
	}
	return nil
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.sql.table", s.schema.tableName()),
		attribute.String("db.system", s.schema.Adaptor.Driver()),
	))
}

// fail records the error on the span and wraps it as a storage failure.
// The driver error stays on the chain so context cancellation and timeouts
// propagate unchanged.
func (s *Store) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return fmt.Errorf("%s: %w: %w", op, session.ErrStorageUnavailable, err)
}
