package session

import "strings"

// DefaultVirtualHost stands in for a blank virtual host so that scope
// predicates never compare against an empty string.
const DefaultVirtualHost = "0.0.0.0"

// Context identifies where a session logically lives: the canonical context
// path and virtual host of the owning web application, plus the id of the
// cluster node currently responsible for saving it. The node id is a mutable
// "current owner" and deliberately excluded from equality.
type Context struct {
	contextPath string
	virtualHost string
	nodeID      string
}

// NewContext canonicalizes the raw context path and virtual host and records
// the current node id. Canonicalization here is the only place raw inputs are
// normalized; every statement predicate goes through the same values on both
// the write and the read path.
func NewContext(rawContextPath, rawVirtualHost, nodeID string) Context {
	return Context{
		contextPath: CanonicalContextPath(rawContextPath),
		virtualHost: CanonicalVirtualHost(rawVirtualHost),
		nodeID:      nodeID,
	}
}

// ContextPath returns the canonical context path. The root context is the
// empty string.
func (c Context) ContextPath() string { return c.contextPath }

// VirtualHost returns the canonical virtual host, never empty.
func (c Context) VirtualHost() string { return c.virtualHost }

// NodeID returns the identifier of the node that owns sessions saved under
// this scope.
func (c Context) NodeID() string { return c.nodeID }

// Equal reports whether two scopes address the same web application. Node id
// does not participate.
func (c Context) Equal(other Context) bool {
	return c.contextPath == other.contextPath && c.virtualHost == other.virtualHost
}

// CanonicalContextPath normalizes a raw servlet context path. "" and "/"
// both mean the root context and collapse to the empty string; separators in
// non-root paths become underscores so the stored value is a single opaque
// token.
func CanonicalContextPath(raw string) string {
	if raw == "" || raw == "/" {
		return ""
	}
	return strings.ReplaceAll(raw, "/", "_")
}

// CanonicalVirtualHost substitutes DefaultVirtualHost for a blank host.
func CanonicalVirtualHost(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return DefaultVirtualHost
	}
	return raw
}
