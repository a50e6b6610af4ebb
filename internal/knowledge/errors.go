package knowledge

import "errors"

// Sentinel errors for knowledge operations.
// These are part of the package's public API and should be checked with errors.Is().
var (
	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("knowledge entry not found")

	// ErrDuplicate indicates an entry with the same content hash already exists.
	// Bulk paths treat this as a skip, not a failure.
	ErrDuplicate = errors.New("duplicate knowledge entry")

	// ErrInvalidEntry indicates a malformed entry (e.g. empty title or content).
	// Raised before any network call is made.
	ErrInvalidEntry = errors.New("invalid knowledge entry")

	// ErrEmptyFeed indicates a sync run received zero entries while stored
	// entries exist for the source. Deleting everything on an empty snapshot
	// would be indistinguishable from a feed outage, so the run is refused
	// unless the caller explicitly allows it.
	ErrEmptyFeed = errors.New("empty sync feed for non-empty source")

	// ErrVectorWrite indicates the relational write succeeded but the vector
	// projection could not be written. The entry is persisted and retrievable
	// by a later re-embed; callers should schedule repair rather than retry
	// the relational write.
	ErrVectorWrite = errors.New("vector projection write failed")
)
