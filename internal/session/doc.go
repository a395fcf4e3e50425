// Package session defines the value types shared by the relational session
// store: the persisted session record, the scope descriptor that pins a
// session to one web application context, and the error sentinels surfaced
// by storage operations.
package session
