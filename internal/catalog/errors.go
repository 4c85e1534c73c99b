package catalog

import (
	"errors"
	"fmt"
)

// Error kinds returned by the catalog packages.
//
// Every failure surfaced by the store, the importer and the remote client is
// wrapped with exactly one of these kinds so callers can classify it with
// errors.Is:
//
//	if errors.Is(err, catalog.ErrParse) {
//	    // snapshot file is malformed, nothing was written
//	}
var (
	// ErrNotFound is returned when a snapshot file or a record is missing.
	ErrNotFound = errors.New("not found")

	// ErrParse is returned for malformed JSON, missing required fields
	// and out-of-range values.
	ErrParse = errors.New("parse error")

	// ErrStorage is returned when the SQLite store fails to read or write.
	ErrStorage = errors.New("storage error")

	// ErrRemote is returned for remote catalog failures: transport errors,
	// non-2xx responses, success=false payloads and timeouts.
	ErrRemote = errors.New("remote error")

	// ErrUnavailable is returned when the remote catalog cannot be used at
	// all because no credential is configured. It also matches ErrRemote.
	ErrUnavailable = fmt.Errorf("%w: catalog credentials not configured", ErrRemote)

	// ErrTimeout is returned when a remote call exceeds its deadline.
	// It also matches ErrRemote.
	ErrTimeout = fmt.Errorf("%w: request timed out", ErrRemote)
)

// Kind returns a short label for the error's kind, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrRemote):
		return "remote"
	default:
		return "unknown"
	}
}

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Missing credentials won't fix themselves
	if errors.Is(err, ErrUnavailable) {
		return false
	}

	// Timeouts and remote hiccups are usually transient
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRemote) {
		return true
	}

	// SQLITE_BUSY and friends surface as storage errors
	return errors.Is(err, ErrStorage)
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsParse reports whether err is an ErrParse.
func IsParse(err error) bool { return errors.Is(err, ErrParse) }

// IsStorage reports whether err is an ErrStorage.
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }

// IsRemote reports whether err is an ErrRemote (including ErrUnavailable
// and ErrTimeout).
func IsRemote(err error) bool { return errors.Is(err, ErrRemote) }
