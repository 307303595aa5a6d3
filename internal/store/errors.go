package store

import "errors"

// Errors returned by store operations.
var (
	// ErrNotFound is returned when an entry id does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrCorruption is returned when the operation log cannot be parsed.
	// It is never auto-repaired; run `lore rebuild` after inspecting the log.
	ErrCorruption = errors.New("operation log corrupted")

	// ErrLocked is returned when another live process holds the writer lock.
	ErrLocked = errors.New("store locked by another process")

	// ErrReadOnly is returned when a mutation is attempted on a store
	// opened without the writer lock.
	ErrReadOnly = errors.New("store opened read-only")

	// ErrConfidenceDowngrade is returned when an automated write would
	// lower an entry's confidence. Only explicit user edits may do that.
	ErrConfidenceDowngrade = errors.New("automated confidence downgrade rejected")
)
