package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally wrapped) so
// services can translate them into domain errors.
//
// These represent factual states about rows, not validation failures:
// - ErrNotFound: row does not exist (or is soft-deleted)
// - ErrConflict: a uniqueness constraint rejected the write
// - ErrStaleState: a compare-and-swap matched zero rows
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStaleState  = errors.New("stale state")
	ErrUnavailable = errors.New("unavailable")
)
