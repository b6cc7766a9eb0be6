// Package ostreeerr defines the engine's error taxonomy. Every fallible
// operation wraps one of these sentinels with fmt.Errorf("%w: ...", ...) so
// callers can classify a failure with errors.Is while still getting a
// human-readable message with the failing path/URL in context.
package ostreeerr

import "errors"

var (
	// ErrNotFound means a requested object, ref, or remote resource is absent.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt means a computed checksum disagreed with the expected one,
	// or an object's serialization was malformed.
	ErrCorrupt = errors.New("corrupt object")
	// ErrTransportTransient means a connection reset, 5xx, or timeout occurred;
	// callers rotate to the next mirror.
	ErrTransportTransient = errors.New("transient transport error")
	// ErrTransportFatal means a TLS failure or invalid URI scheme occurred;
	// no mirror rotation is attempted.
	ErrTransportFatal = errors.New("fatal transport error")
	// ErrSizeExceeded means a transfer exceeded the caller-supplied max_size.
	ErrSizeExceeded = errors.New("size exceeded")
	// ErrAlreadyExists means a ref/object write conflicted with existing state.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument means a bad refspec, unknown osname, or malformed
	// kernel argument was supplied.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict means a concurrent writer holds the repository or sysroot lock.
	ErrConflict = errors.New("conflict: lock held by another writer")
	// ErrUnsupported means the repository mode or a requested operation isn't
	// supported by the engine.
	ErrUnsupported = errors.New("unsupported")
	// ErrIO wraps a lower-level filesystem failure.
	ErrIO = errors.New("io error")
)

// Is reports whether err wraps target, delegating to errors.Is. Kept as a
// thin wrapper so call sites can do ostreeerr.Is(err, ostreeerr.ErrNotFound)
// alongside the stdlib spelling without mixing import styles.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
