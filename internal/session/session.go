package session

// NeverExpires is the expiry sentinel for immortal sessions. Expiry
// predicates skip rows carrying it.
const NeverExpires int64 = 0

// Data is one persisted session record. All times are epoch milliseconds;
// MaxInactive is seconds. Attributes is the serialized attribute map and is
// never inspected by the store.
type Data struct {
	ID           string
	ContextPath  string
	VirtualHost  string
	OwningNode   string
	Created      int64
	Accessed     int64
	LastAccessed int64
	LastSaved    int64
	Expiry       int64
	MaxInactive  int64
	Attributes   []byte
}

// Expired reports whether the record is eligible for reaping at nowMillis.
// A session expiring exactly at the sweep boundary is eligible.
func (d Data) Expired(nowMillis int64) bool {
	return d.Expiry != NeverExpires && d.Expiry <= nowMillis
}
