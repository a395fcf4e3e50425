// Package dialect abstracts the vendor-specific behavior the session table
// schema depends on: whether empty strings are stored as NULL, placeholder
// style, column types for DDL, identifier quoting, and how "already exists"
// and "current time" surface per engine.
package dialect

import (
	"fmt"
	"strings"
)

// Adaptor is an immutable description of one database dialect. It carries no
// connection state and is safe to share across concurrent statement builders.
type Adaptor struct {
	driver               string
	emptyStringIsNull    bool
	numberedPlaceholders bool
	quote                string
	textType             string
	longType             string
	blobType             string
	nowMillisExpr        string
	alreadyExists        []string
}

// SQLite describes modernc.org/sqlite (driver name "sqlite").
func SQLite() Adaptor {
	return Adaptor{
		driver:        "sqlite",
		quote:         `"`,
		textType:      "TEXT",
		longType:      "INTEGER",
		blobType:      "BLOB",
		nowMillisExpr: "CAST(strftime('%s','now') AS INTEGER) * 1000",
		alreadyExists: []string{"already exists", "duplicate column name"},
	}
}

// Postgres describes the pgx stdlib driver (driver name "pgx").
func Postgres() Adaptor {
	return Adaptor{
		driver:               "pgx",
		numberedPlaceholders: true,
		quote:                `"`,
		textType:             "TEXT",
		longType:             "BIGINT",
		blobType:             "BYTEA",
		nowMillisExpr:        "(EXTRACT(EPOCH FROM now()) * 1000)::BIGINT",
		alreadyExists:        []string{"already exists", "42p07"},
	}
}

// MySQL describes github.com/go-sql-driver/mysql (driver name "mysql").
// Key columns use a bounded VARCHAR because MySQL cannot index bare TEXT.
func MySQL() Adaptor {
	return Adaptor{
		driver:        "mysql",
		quote:         "`",
		textType:      "VARCHAR(191)",
		longType:      "BIGINT",
		blobType:      "LONGBLOB",
		nowMillisExpr: "UNIX_TIMESTAMP() * 1000",
		alreadyExists: []string{"already exists", "error 1050"},
	}
}

// Oracle describes Oracle-flavored engines, which silently store empty
// strings as NULL. Scope canonicalization compensates with a sentinel; see
// the store package.
func Oracle() Adaptor {
	return Adaptor{
		driver:            "oracle",
		emptyStringIsNull: true,
		quote:             `"`,
		textType:          "VARCHAR2(1000)",
		longType:          "NUMBER(20)",
		blobType:          "BLOB",
		nowMillisExpr:     "(SYSDATE - DATE '1970-01-01') * 86400000",
		alreadyExists:     []string{"ora-00955"},
	}
}

var registry = map[string]func() Adaptor{
	"sqlite": SQLite,
	"pgx":    Postgres,
	"mysql":  MySQL,
	"oracle": Oracle,
}

// For returns the adaptor registered for a database/sql driver name.
func For(driverName string) (Adaptor, error) {
	factory, ok := registry[driverName]
	if !ok {
		return Adaptor{}, fmt.Errorf("no dialect registered for driver %q", driverName)
	}
	return factory(), nil
}

// Driver returns the database/sql driver name this adaptor describes.
func (a Adaptor) Driver() string { return a.driver }

// EmptyStringIsNull reports whether the engine stores "" as NULL. Every
// canonicalization and predicate decision branches on this one flag.
func (a Adaptor) EmptyStringIsNull() bool { return a.emptyStringIsNull }

// WithEmptyStringIsNull returns a copy with the flag overridden. Used to
// exercise Oracle-like NULL mapping against engines that do not do it.
func (a Adaptor) WithEmptyStringIsNull(v bool) Adaptor {
	a.emptyStringIsNull = v
	return a
}

// Placeholder renders the bind marker for a 1-based parameter position.
func (a Adaptor) Placeholder(position int) string {
	if a.numberedPlaceholders {
		return fmt.Sprintf("$%d", position)
	}
	return "?"
}

// Quote wraps an identifier in the engine's quoting characters.
func (a Adaptor) Quote(identifier string) string {
	return a.quote + identifier + a.quote
}

// TextType, LongType and BlobType return the DDL column types for string,
// 64-bit integer and binary payload columns.
func (a Adaptor) TextType() string { return a.textType }
func (a Adaptor) LongType() string { return a.longType }
func (a Adaptor) BlobType() string { return a.blobType }

// NowMillisExpr returns a SQL expression for the current epoch milliseconds,
// or "" when a dialect-aware caller must bind a client-computed timestamp.
// The session store always binds caller-supplied clocks; the expression is
// exposed for administrative tooling that wants server time.
func (a Adaptor) NowMillisExpr() string { return a.nowMillisExpr }

// IsAlreadyExists reports whether err is the engine's "object already
// exists" DDL failure, which idempotent schema preparation treats as
// success.
func (a Adaptor) IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	for _, marker := range a.alreadyExists {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
