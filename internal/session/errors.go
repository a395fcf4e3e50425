package session

import "errors"

// ErrSchema indicates table creation or verification failed for a reason
// other than the table already existing. Fatal at startup; session
// operations cannot proceed without the backing table.
var ErrSchema = errors.New("session schema error")

// ErrStorageUnavailable indicates a connection could not be borrowed or a
// statement failed due to connectivity. Propagated unchanged; retry policy
// belongs to the caller.
var ErrStorageUnavailable = errors.New("session storage unavailable")

// "Not found" is not an error in this package: lookups report it as a false
// found flag and deletes as a zero affected-row count.
