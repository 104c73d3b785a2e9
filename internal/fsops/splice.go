package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// SpliceThroughPipe moves length bytes from srcFd to dstFd by
// internally creating an anonymous pipe and splicing src->pipe->dst,
// per spec §4.3. It loops until length is satisfied or a short
// return of 0 from either leg indicates EOF.
func SpliceThroughPipe(ctx context.Context, srcFd, dstFd int, length int64) (copied int64, err error) {
	var fds [2]int
	runErr := defaultExecutor.run(ctx, func() error {
		return unix.Pipe2(fds[:], unix.O_CLOEXEC)
	})
	if runErr != nil {
		return 0, copyerr.New(copyerr.Transport, "splice_through_pipe", "", "", runErr)
	}
	pr, pw := fds[0], fds[1]
	defer unix.Close(pr)
	defer unix.Close(pw)

	const maxChunk = 1 << 20 // 1 MiB per splice(2) call
	for copied < length {
		remaining := int(length - copied)
		if remaining > maxChunk {
			remaining = maxChunk
		}

		var inPipe int64
		runErr = defaultExecutor.run(ctx, func() error {
			var e error
			inPipe, e = unix.Splice(srcFd, nil, pw, nil, remaining, unix.SPLICE_F_MOVE)
			return e
		})
		if runErr != nil {
			return copied, copyerr.New(copyerr.Transport, "splice_through_pipe", "", "", runErr)
		}
		if inPipe == 0 {
			break // EOF on src
		}

		var written int64
		for written < inPipe {
			var n int64
			toWrite := inPipe - written
			runErr = defaultExecutor.run(ctx, func() error {
				var e error
				n, e = unix.Splice(pr, nil, dstFd, nil, int(toWrite), unix.SPLICE_F_MOVE)
				return e
			})
			if runErr != nil {
				return copied + written, copyerr.New(copyerr.Transport, "splice_through_pipe", "", "", runErr)
			}
			if n == 0 {
				return copied + written, copyerr.New(copyerr.Transport, "splice_through_pipe", "", "",
					errShortSplice)
			}
			written += n
		}
		copied += written
	}
	return copied, nil
}

var errShortSplice = shortSpliceError{}

type shortSpliceError struct{}

func (shortSpliceError) Error() string { return "splice: pipe->dst returned 0 with data pending" }
