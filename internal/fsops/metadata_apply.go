package fsops

import (
	"context"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// ChmodFd sets the permission bits (mode & 07777) on an open fd.
func ChmodFd(ctx context.Context, fd int, mode uint32) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Fchmod(fd, mode&07777)
	})
	return copyerr.New(policyKind(err), "chmod_fd", "", "", err)
}

// ChmodAt sets the permission bits on name relative to dirfd,
// following a trailing symlink: Linux's fchmodat does not support
// AT_SYMLINK_NOFOLLOW (it returns ENOTSUP when asked). The copy engine
// therefore does not call it for symlinks, so symlink permissions are
// left untouched — matching the teacher's lChmod, which disables
// lchmod on Linux for the same reason.
func ChmodAt(ctx context.Context, dirfd int, name string, mode uint32) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Fchmodat(dirfd, name, mode&07777, 0)
	})
	return copyerr.New(policyKind(err), "chmod_at", name, "", err)
}

// ChownFd sets uid/gid on an open fd. -1 for either argument leaves
// that component unchanged, per POSIX (spec §4.3).
func ChownFd(ctx context.Context, fd int, uid, gid int) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Fchown(fd, uid, gid)
	})
	return copyerr.New(policyKind(err), "chown_fd", "", "", err)
}

// ChownAt sets uid/gid on name relative to dirfd without following a
// trailing symlink (lchown-equivalent semantics).
func ChownAt(ctx context.Context, dirfd int, name string, uid, gid int) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Fchownat(dirfd, name, uid, gid, unix.AT_SYMLINK_NOFOLLOW)
	})
	return copyerr.New(policyKind(err), "chown_at", name, "", err)
}

// UtimensFd applies atime/mtime with nanosecond fidelity to an open fd.
func UtimensFd(ctx context.Context, fd int, atime, mtime Timespec) error {
	ts := [2]unix.Timespec{
		{Sec: atime.Seconds, Nsec: int64(atime.Nanos)},
		{Sec: mtime.Seconds, Nsec: int64(mtime.Nanos)},
	}
	err := defaultExecutor.run(ctx, func() error {
		return unix.UtimesNanoAt(unix.AT_FDCWD, fdPath(fd), ts[:], 0)
	})
	return copyerr.New(policyKind(err), "utimens_fd", "", "", err)
}

// UtimensAt applies atime/mtime with nanosecond fidelity to name
// relative to dirfd, without following a trailing symlink.
func UtimensAt(ctx context.Context, dirfd int, name string, atime, mtime Timespec) error {
	ts := [2]unix.Timespec{
		{Sec: atime.Seconds, Nsec: int64(atime.Nanos)},
		{Sec: mtime.Seconds, Nsec: int64(mtime.Nanos)},
	}
	err := defaultExecutor.run(ctx, func() error {
		return unix.UtimesNanoAt(dirfd, name, ts[:], unix.AT_SYMLINK_NOFOLLOW)
	})
	return copyerr.New(policyKind(err), "utimens_at", name, "", err)
}

// fdPath renders /proc/self/fd/N so UtimesNanoAt (which is always
// path-relative in x/sys/unix) can operate on a bare fd via the
// /proc indirection, matching the common Linux idiom for fd-relative
// operations that have no *at variant taking an fd directly.
func fdPath(fd int) string {
	return "/proc/self/fd/" + strconv.Itoa(fd)
}

// policyKind classifies a permission-denied failure as PolicyDenied
// (recorded but non-fatal per spec §4.6/§7) and everything else as
// Transport.
func policyKind(err error) copyerr.Kind {
	if err == unix.EPERM || err == unix.EACCES {
		return copyerr.PolicyDenied
	}
	return copyerr.Transport
}
