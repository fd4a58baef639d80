package service

import (
	"errors"
	"fmt"

	"github.com/jask/ledgersync/internal/database"
	"github.com/jask/ledgersync/internal/remote"
)

// PhaseError reports the sync phase a failure aborted.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// FailureKind groups errors by what the user can do about them.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureUnauthorized
	FailureRateLimited
	FailureStoreUnavailable
	FailureGeneric
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureUnauthorized:
		return "unauthorized"
	case FailureRateLimited:
		return "rate_limited"
	case FailureStoreUnavailable:
		return "store_unavailable"
	default:
		return "generic"
	}
}

// Hint is a short user-facing suggestion.
func (k FailureKind) Hint() string {
	switch k {
	case FailureUnauthorized:
		return "the API token was rejected; run `ledgersync login` with a fresh token"
	case FailureRateLimited:
		return "the ledger is throttling requests; wait a minute and sync again"
	case FailureStoreUnavailable:
		return "the local database could not be opened; check database.path"
	case FailureGeneric:
		return "sync failed; it is safe to run it again"
	default:
		return ""
	}
}

// Classify maps err onto a FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, remote.ErrUnauthorized):
		return FailureUnauthorized
	case errors.Is(err, remote.ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, database.ErrStoreUnavailable):
		return FailureStoreUnavailable
	default:
		return FailureGeneric
	}
}
