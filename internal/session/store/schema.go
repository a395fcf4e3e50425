// Package store builds and executes the relational statements behind
// clustered session persistence: load, exists, delete, save/update and the
// two expiry sweeps, plus idempotent schema preparation. Statement
// construction is stateless; one TableSchema is safely shared by any number
// of concurrent callers.
package store

import (
	"fmt"
	"strings"

	"github.com/louisbranch/sessiondb/internal/session"
	"github.com/louisbranch/sessiondb/internal/session/dialect"
)

// SentinelRootContextPath substitutes for the canonical root context path
// ("") on dialects that store empty strings as NULL. Without it, root-context
// sessions would be written as NULL and never match an equality predicate.
const SentinelRootContextPath = "/"

// DefaultTableName is the backing table unless overridden on the schema.
const DefaultTableName = "sessions"

// Statement is one parameterized statement with its bind arguments in the
// documented positional order. The argument order is a wire contract; callers
// binding positionally rely on it and any reordering is a breaking change.
type Statement struct {
	Query string
	Args  []any
}

// TableSchema builds the session statements for one dialect. Construct with
// DefaultSchema and override table or column names for deployments that
// share a database with naming conventions of their own.
type TableSchema struct {
	Adaptor dialect.Adaptor

	TableName         string
	IDColumn          string
	ContextPathColumn string
	VirtualHostColumn string
	OwningNodeColumn  string
	CreatedColumn     string
	AccessColumn      string
	LastAccessColumn  string
	LastSavedColumn   string
	ExpiryColumn      string
	MaxInactiveColumn string
	AttributesColumn  string
}

// DefaultSchema returns the schema with default table and column names for
// the given adaptor.
func DefaultSchema(adaptor dialect.Adaptor) TableSchema {
	return TableSchema{
		Adaptor:           adaptor,
		TableName:         DefaultTableName,
		IDColumn:          "session_id",
		ContextPathColumn: "context_path",
		VirtualHostColumn: "virtual_host",
		OwningNodeColumn:  "owning_node_id",
		CreatedColumn:     "created_time",
		AccessColumn:      "access_time",
		LastAccessColumn:  "last_access_time",
		LastSavedColumn:   "last_saved_time",
		ExpiryColumn:      "expiry_time",
		MaxInactiveColumn: "max_inactive_interval",
		AttributesColumn:  "attributes",
	}
}

// CanonicalContextPath returns the context path value bound into every
// statement for the scope. This is the single place the empty-string-is-NULL
// compensation happens; write and read paths both come through here, so a
// sentinel written is always a sentinel queried.
func (s TableSchema) CanonicalContextPath(scope session.Context) string {
	return s.sentinelContextPath(scope.ContextPath())
}

// CanonicalVirtualHost returns the virtual host value bound into every
// statement for the scope. Scope canonicalization already substitutes
// session.DefaultVirtualHost for blank hosts, so the value is never empty
// regardless of dialect.
func (s TableSchema) CanonicalVirtualHost(scope session.Context) string {
	return session.CanonicalVirtualHost(scope.VirtualHost())
}

func (s TableSchema) sentinelContextPath(canonical string) string {
	if s.Adaptor.EmptyStringIsNull() && canonical == "" {
		return SentinelRootContextPath
	}
	return canonical
}

// LoadStatement selects the full row for one session id within a scope.
// Zero rows is the normal not-found outcome, not an error.
func (s TableSchema) LoadStatement(id string, scope session.Context) Statement {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		s.columnList(), s.table(), s.keyPredicate(1))
	return Statement{Query: query, Args: s.keyArgs(id, scope)}
}

// ExistsStatement checks for a session row without materializing the
// payload. The session id is bound by the caller as the leading parameter;
// Args holds only the scope values for positions 2 and 3.
func (s TableSchema) ExistsStatement(scope session.Context) Statement {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		s.quote(s.IDColumn), s.table(), s.keyPredicate(1))
	return Statement{Query: query, Args: s.scopeArgs(scope)}
}

// DeleteStatement deletes at most one row. The affected-row count
// distinguishes "removed" (1) from "already gone" (0); both are success.
func (s TableSchema) DeleteStatement(id string, scope session.Context) Statement {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", s.table(), s.keyPredicate(1))
	return Statement{Query: query, Args: s.keyArgs(id, scope)}
}

// InsertStatement creates the row for a session's first save. Key columns
// come from the scope, never from raw Data fields, so insertion and lookup
// canonicalize identically.
func (s TableSchema) InsertStatement(scope session.Context, data session.Data) Statement {
	placeholders := make([]string, 11)
	for i := range placeholders {
		placeholders[i] = s.Adaptor.Placeholder(i + 1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table(), s.columnList(), strings.Join(placeholders, ", "))
	return Statement{Query: query, Args: []any{
		data.ID,
		s.CanonicalContextPath(scope),
		s.CanonicalVirtualHost(scope),
		scope.NodeID(),
		data.Created,
		data.Accessed,
		data.LastAccessed,
		data.LastSaved,
		data.Expiry,
		data.MaxInactive,
		data.Attributes,
	}}
}

// UpdateStatement saves an existing session. The positional order of the SET
// parameters is fixed: owning node, access time, last-access time, last-saved
// time, expiry time, max-inactive interval, payload, then the three-part key.
// A successful save affects exactly one row; zero rows means the row vanished
// concurrently and the caller falls back to the insert path.
func (s TableSchema) UpdateStatement(scope session.Context, data session.Data) Statement {
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		s.table(), s.updateSet(), s.keyPredicate(8))
	return Statement{Query: query, Args: append(s.updateArgs(scope, data), s.keyArgs(data.ID, scope)...)}
}

// UpdateIfSavedStatement is the compare-and-swap save: it additionally
// requires the stored last-saved time to equal the value the caller read,
// so a racing save from another node surfaces as zero affected rows instead
// of being silently overwritten.
func (s TableSchema) UpdateIfSavedStatement(scope session.Context, data session.Data, expectedLastSaved int64) Statement {
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s AND %s = %s",
		s.table(), s.updateSet(), s.keyPredicate(8),
		s.quote(s.LastSavedColumn), s.Adaptor.Placeholder(11))
	args := append(s.updateArgs(scope, data), s.keyArgs(data.ID, scope)...)
	return Statement{Query: query, Args: append(args, expectedLastSaved)}
}

// ExpiredStatement selects the session ids in a scope whose expiry time is
// set and at or before the bound. It takes pre-canonicalized scope values so
// administrative sweeps can iterate scopes read back from the table itself.
func (s TableSchema) ExpiredStatement(canonicalContextPath, virtualHost string, beforeMillis int64) Statement {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s AND %s > 0 AND %s <= %s",
		s.quote(s.IDColumn), s.table(),
		s.quote(s.ContextPathColumn), s.Adaptor.Placeholder(1),
		s.quote(s.VirtualHostColumn), s.Adaptor.Placeholder(2),
		s.quote(s.ExpiryColumn),
		s.quote(s.ExpiryColumn), s.Adaptor.Placeholder(3))
	return Statement{Query: query, Args: []any{
		s.sentinelContextPath(canonicalContextPath),
		session.CanonicalVirtualHost(virtualHost),
		beforeMillis,
	}}
}

// MyExpiredStatement is the node-local fast path: expired sessions in the
// scope that this node owns. Each node reaps its own sessions first; the
// global ExpiredStatement is the fallback for orphans whose owner is gone.
func (s TableSchema) MyExpiredStatement(scope session.Context, beforeMillis int64) Statement {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s AND %s = %s AND %s > 0 AND %s <= %s",
		s.quote(s.IDColumn), s.table(),
		s.quote(s.ContextPathColumn), s.Adaptor.Placeholder(1),
		s.quote(s.VirtualHostColumn), s.Adaptor.Placeholder(2),
		s.quote(s.OwningNodeColumn), s.Adaptor.Placeholder(3),
		s.quote(s.ExpiryColumn),
		s.quote(s.ExpiryColumn), s.Adaptor.Placeholder(4))
	return Statement{Query: query, Args: []any{
		s.CanonicalContextPath(scope),
		s.CanonicalVirtualHost(scope),
		scope.NodeID(),
		beforeMillis,
	}}
}

// CreateTableDDL returns the dialect-typed table definition. It deliberately
// omits IF NOT EXISTS so that idempotent preparation exercises the adaptor's
// already-exists detection uniformly across engines.
func (s TableSchema) CreateTableDDL() string {
	text := s.Adaptor.TextType()
	long := s.Adaptor.LongType()
	return fmt.Sprintf(
		"CREATE TABLE %s (%s %s NOT NULL, %s %s NOT NULL, %s %s NOT NULL, %s %s, %s %s, %s %s, %s %s, %s %s, %s %s, %s %s, %s %s, PRIMARY KEY (%s, %s, %s))",
		s.table(),
		s.quote(s.IDColumn), text,
		s.quote(s.ContextPathColumn), text,
		s.quote(s.VirtualHostColumn), text,
		s.quote(s.OwningNodeColumn), text,
		s.quote(s.CreatedColumn), long,
		s.quote(s.AccessColumn), long,
		s.quote(s.LastAccessColumn), long,
		s.quote(s.LastSavedColumn), long,
		s.quote(s.ExpiryColumn), long,
		s.quote(s.MaxInactiveColumn), long,
		s.quote(s.AttributesColumn), s.Adaptor.BlobType(),
		s.quote(s.IDColumn), s.quote(s.ContextPathColumn), s.quote(s.VirtualHostColumn))
}

// CreateIndexDDL returns the secondary index definitions backing the expiry
// sweeps.
func (s TableSchema) CreateIndexDDL() []string {
	name := s.tableName()
	return []string{
		fmt.Sprintf("CREATE INDEX %s ON %s (%s, %s, %s)",
			s.quote(name+"_expiry_idx"), s.table(),
			s.quote(s.ContextPathColumn), s.quote(s.VirtualHostColumn), s.quote(s.ExpiryColumn)),
	}
}

func (s TableSchema) tableName() string {
	if s.TableName == "" {
		return DefaultTableName
	}
	return s.TableName
}

func (s TableSchema) table() string {
	return s.quote(s.tableName())
}

func (s TableSchema) quote(identifier string) string {
	return s.Adaptor.Quote(identifier)
}

// columns returns the persisted column names in the fixed select/insert
// order. Scan order in the executing store depends on it.
func (s TableSchema) columns() []string {
	return []string{
		s.IDColumn,
		s.ContextPathColumn,
		s.VirtualHostColumn,
		s.OwningNodeColumn,
		s.CreatedColumn,
		s.AccessColumn,
		s.LastAccessColumn,
		s.LastSavedColumn,
		s.ExpiryColumn,
		s.MaxInactiveColumn,
		s.AttributesColumn,
	}
}

func (s TableSchema) columnList() string {
	columns := s.columns()
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = s.quote(column)
	}
	return strings.Join(quoted, ", ")
}

// keyPredicate renders the three-part unique key predicate with placeholders
// starting at the given 1-based position: session id, context path, virtual
// host, always in that order.
func (s TableSchema) keyPredicate(startPosition int) string {
	return fmt.Sprintf("%s = %s AND %s = %s AND %s = %s",
		s.quote(s.IDColumn), s.Adaptor.Placeholder(startPosition),
		s.quote(s.ContextPathColumn), s.Adaptor.Placeholder(startPosition+1),
		s.quote(s.VirtualHostColumn), s.Adaptor.Placeholder(startPosition+2))
}

func (s TableSchema) keyArgs(id string, scope session.Context) []any {
	return append([]any{id}, s.scopeArgs(scope)...)
}

func (s TableSchema) scopeArgs(scope session.Context) []any {
	return []any{s.CanonicalContextPath(scope), s.CanonicalVirtualHost(scope)}
}

func (s TableSchema) updateSet() string {
	return fmt.Sprintf("%s = %s, %s = %s, %s = %s, %s = %s, %s = %s, %s = %s, %s = %s",
		s.quote(s.OwningNodeColumn), s.Adaptor.Placeholder(1),
		s.quote(s.AccessColumn), s.Adaptor.Placeholder(2),
		s.quote(s.LastAccessColumn), s.Adaptor.Placeholder(3),
		s.quote(s.LastSavedColumn), s.Adaptor.Placeholder(4),
		s.quote(s.ExpiryColumn), s.Adaptor.Placeholder(5),
		s.quote(s.MaxInactiveColumn), s.Adaptor.Placeholder(6),
		s.quote(s.AttributesColumn), s.Adaptor.Placeholder(7))
}

func (s TableSchema) updateArgs(scope session.Context, data session.Data) []any {
	return []any{
		scope.NodeID(),
		data.Accessed,
		data.LastAccessed,
		data.LastSaved,
		data.Expiry,
		data.MaxInactive,
		data.Attributes,
	}
}
