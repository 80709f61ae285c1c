//go:build linux || darwin

package cache

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/readflow/domcache/internal/base"
)

// lockFile takes a non-blocking advisory exclusive flock on f, enforcing
// the single-owner non-goal from SPEC_FULL.md §1 across processes. It
// returns an unlock function, or ErrLocked if another process already holds
// the lock.
func lockFile(f *os.File) (func() error, error) {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return nil, base.ErrLocked
		}
		return nil, base.IoErrorf(err, "domcache: flock %s", f.Name())
	}
	return func() error {
		return unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}, nil
}
