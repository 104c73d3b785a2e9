package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// SymlinkAt creates link_name -> target relative to dirfd. The target
// is stored verbatim, never resolved, per spec §4.3.
func SymlinkAt(ctx context.Context, target string, dirfd int, linkName string) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Symlinkat(target, dirfd, linkName)
	})
	return copyerr.New(copyerr.Transport, "symlink_at", linkName, target, err)
}

// ReadlinkAt reads the target of name relative to dirfd. The target's
// length is discovered by probing with a small buffer first and
// growing it, per spec §4.3, since readlinkat(2) gives no way to ask
// for the size up front.
func ReadlinkAt(ctx context.Context, dirfd int, name string) (string, error) {
	var target string
	err := defaultExecutor.run(ctx, func() error {
		size := 256
		for {
			buf := make([]byte, size)
			n, e := unix.Readlinkat(dirfd, name, buf)
			if e != nil {
				return e
			}
			if n < size {
				target = string(buf[:n])
				return nil
			}
			size *= 2
		}
	})
	if err != nil {
		return "", copyerr.New(copyerr.Transport, "readlink_at", name, "", err)
	}
	return target, nil
}
