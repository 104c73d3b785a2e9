package fsops

import (
	"context"
	"io"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// ReadWriteCopy moves bytes between two open files by looping
// read/write with a reused buffer, per spec §4.3 — the universal
// fallback method when neither a reflink clone nor copy_file_range
// is available (e.g. cross-filesystem copies).
func ReadWriteCopy(ctx context.Context, srcFd, dstFd int, bufferSize int) (copied int64, err error) {
	if bufferSize <= 0 {
		bufferSize = 1 << 20
	}
	buf := make([]byte, bufferSize)
	for {
		var n int
		runErr := defaultExecutor.run(ctx, func() error {
			var e error
			n, e = unix.Read(srcFd, buf)
			return e
		})
		if runErr != nil {
			return copied, copyerr.New(copyerr.Transport, "read_write_copy", "", "", runErr)
		}
		if n == 0 {
			return copied, nil // EOF
		}
		if err := writeFull(ctx, dstFd, buf[:n]); err != nil {
			return copied, err
		}
		copied += int64(n)
	}
}

func writeFull(ctx context.Context, fd int, buf []byte) error {
	written := 0
	for written < len(buf) {
		var n int
		runErr := defaultExecutor.run(ctx, func() error {
			var e error
			n, e = unix.Write(fd, buf[written:])
			return e
		})
		if runErr != nil {
			return copyerr.New(copyerr.Transport, "read_write_copy", "", "", runErr)
		}
		if n == 0 {
			return copyerr.New(copyerr.Transport, "read_write_copy", "", "", io.ErrShortWrite)
		}
		written += n
	}
	return nil
}
