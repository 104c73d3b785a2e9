package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// LinkAt creates a hardlink from (srcDirfd, srcName) to
// (dstDirfd, dstName), per spec §4.3.
func LinkAt(ctx context.Context, srcDirfd int, srcName string, dstDirfd int, dstName string) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Linkat(srcDirfd, srcName, dstDirfd, dstName, 0)
	})
	return copyerr.New(copyerr.Transport, "link_at", srcName, dstName, err)
}
