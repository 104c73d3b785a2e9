package fsops

import (
	"context"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// ReadDirNames returns every entry name in dir, batching reads the way
// the teacher's backend/local.go does with fd.Readdirnames(1024) — the
// batch size bounds memory for very large directories without
// requiring a second pass. The returned names carry no stat
// information; callers classify each one with StatxAt themselves,
// which is what lets one bad entry's stat failure be logged and
// skipped instead of failing the whole directory read.
func ReadDirNames(ctx context.Context, dir *DirectoryHandle) ([]string, error) {
	var names []string
	err := defaultExecutor.run(ctx, func() error {
		dupFd, e := unix.Dup(dir.Fd())
		if e != nil {
			return e
		}
		f := os.NewFile(uintptr(dupFd), dir.Path())
		defer f.Close()

		for {
			batch, rerr := f.Readdirnames(1024)
			names = append(names, batch...)
			if rerr == io.EOF {
				return nil
			}
			if rerr != nil {
				return rerr
			}
			if len(batch) == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return nil, copyerr.New(copyerr.Transport, "readdirnames", dir.Path(), "", err)
	}
	return names, nil
}
