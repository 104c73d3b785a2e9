package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// CloneRange attempts a same-filesystem copy-on-write reflink of
// [srcOff, srcOff+len) from srcFd to dstFd at dstOff, via the
// FICLONERANGE ioctl. This is the fast path rclone calls "clone" for
// local-to-local transfers (backend/local's --local-no-clone option)
// and the expansion in SPEC_FULL.md §4.6 ahead of range_copy. It
// returns NotSupported when the filesystem or kernel doesn't support
// reflinks (ENOTTY, ENOTSUP/EOPNOTSUPP, EXDEV, EINVAL).
func CloneRange(ctx context.Context, srcFd, dstFd int, srcOff, dstOff, length int64) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.IoctlFileCloneRange(dstFd, &unix.FileCloneRange{
			Src_fd:      int64(srcFd),
			Src_offset:  uint64(srcOff),
			Src_length:  uint64(length),
			Dest_offset: uint64(dstOff),
		})
	})
	if err == nil {
		return nil
	}
	switch err {
	case unix.ENOTTY, unix.EOPNOTSUPP, unix.EXDEV, unix.EINVAL:
		return copyerr.New(copyerr.NotSupported, "clone_range", "", "", err)
	default:
		return copyerr.New(copyerr.Transport, "clone_range", "", "", err)
	}
}

// RangeCopy moves bytes between two open files in-kernel via
// copy_file_range(2), looping until len is satisfied or a short
// return of 0 indicates EOF, per spec §4.3. srcOff/dstOff are
// distinct variables, each advanced by the returned length — the
// teacher's original has a branch that aliases the two (spec §9 notes
// this as a bug); this implementation keeps them distinct throughout.
func RangeCopy(ctx context.Context, srcFd, dstFd int, srcOff, dstOff, length int64) (copied int64, err error) {
	so, do := srcOff, dstOff
	for copied < length {
		remaining := length - copied
		var n int
		runErr := defaultExecutor.run(ctx, func() error {
			var e error
			n, e = unix.CopyFileRange(srcFd, &so, dstFd, &do, int(remaining), 0)
			return e
		})
		if runErr != nil {
			switch runErr {
			case unix.EXDEV, unix.ENOSYS, unix.EOPNOTSUPP:
				return copied, copyerr.New(copyerr.NotSupported, "range_copy", "", "", runErr)
			default:
				return copied, copyerr.New(copyerr.Transport, "range_copy", "", "", runErr)
			}
		}
		if n == 0 {
			break
		}
		copied += int64(n)
	}
	return copied, nil
}
