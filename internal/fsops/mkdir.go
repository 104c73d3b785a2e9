package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// MkdirAt creates a directory named name relative to dirfd. EEXIST is
// swallowed: creating a destination directory that already exists
// (e.g. a prior partial run) is not an error, matching the teacher's
// MkdirAll idempotence expectations.
func MkdirAt(ctx context.Context, dirfd int, name string, mode uint32) error {
	err := defaultExecutor.run(ctx, func() error {
		e := unix.Mkdirat(dirfd, name, mode)
		if e == unix.EEXIST {
			return nil
		}
		return e
	})
	return copyerr.New(copyerr.Transport, "mkdir_at", name, "", err)
}

// UnlinkAt removes name relative to dirfd. If dir is true, it removes
// an empty directory instead of a file. ENOENT is swallowed: deleting
// an already-absent destination entry before recreating it (spec
// §4.6's symlink/device recreation step) is a no-op, not an error.
func UnlinkAt(ctx context.Context, dirfd int, name string, dir bool) error {
	flags := 0
	if dir {
		flags = unix.AT_REMOVEDIR
	}
	err := defaultExecutor.run(ctx, func() error {
		e := unix.Unlinkat(dirfd, name, flags)
		if e == unix.ENOENT {
			return nil
		}
		return e
	})
	return copyerr.New(copyerr.Transport, "unlink_at", name, "", err)
}
