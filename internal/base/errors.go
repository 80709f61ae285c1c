// Package base holds the small set of types and sentinel errors shared by
// every domcache package: the error taxonomy from SPEC_FULL.md §7, the
// injectable Logger interface, the Deadline type, and the Outcome tri-state
// used by the deadline-bounded save machine (whose Stage type lives in
// docstore).
package base

import (
	"github.com/cockroachdb/errors"
)

// Sentinel errors. Use errors.Is against these; concrete errors returned by
// the package are produced with errors.Mark so the underlying message can
// carry context without losing the sentinel identity.
var (
	// ErrCorrupted indicates a magic/hash/structural-invariant violation in
	// the cache file. The cache is unusable and must be rebuilt.
	ErrCorrupted = errors.New("domcache: corrupted cache file")

	// ErrVersionMismatch indicates the on-disk dom_version or compression
	// type does not match what the caller expects. The cache is unusable,
	// but the underlying book is unaffected.
	ErrVersionMismatch = errors.New("domcache: cache version mismatch")

	// ErrDirty indicates the header's dirty flag was set on open; treated
	// identically to ErrCorrupted by callers.
	ErrDirty = errors.New("domcache: cache file left dirty by a previous session")

	// ErrNotFound indicates a (type,index) pair absent from the block index.
	ErrNotFound = errors.New("domcache: block not found")

	// ErrIo wraps an underlying stream error.
	ErrIo = errors.New("domcache: i/o error")

	// ErrTimeout indicates a deadline-bounded operation did not complete;
	// the caller should retry the same operation with a fresh deadline.
	ErrTimeout = errors.New("domcache: operation timed out")

	// ErrLocked indicates another process already holds the advisory lock
	// on this cache file.
	ErrLocked = errors.New("domcache: cache file is locked by another process")
)

// CorruptionErrorf builds an error marked as ErrCorrupted, mirroring
// pebble's base.CorruptionErrorf. Format arguments are passed through as
// given; nothing here wraps them in errors.Safe.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorrupted)
}

// VersionErrorf builds an error marked as ErrVersionMismatch.
func VersionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrVersionMismatch)
}

// NotFoundErrorf builds an error marked as ErrNotFound.
func NotFoundErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// IoErrorf wraps err, marking the result as ErrIo.
func IoErrorf(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIo)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
