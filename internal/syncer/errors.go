package syncer

import "errors"

// Sync errors. ErrNetwork marks transient transport failures that are
// retried with backoff before surfacing; the others surface immediately.
var (
	ErrNetwork            = errors.New("sync transport failure")
	ErrConflictUnresolved = errors.New("unresolved sync conflict")
	ErrClockSkew          = errors.New("remote logical clock skew exceeds limit")
)
