package fsops

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// AdviseHint is one of the fadvise hints recognized by spec §4.3.
type AdviseHint int

// Recognized hints.
const (
	Normal AdviseHint = iota
	Sequential
	Random
	WillNeed
	DontNeed
	NoReuse
)

func (h AdviseHint) toFadviseAdvice() int {
	switch h {
	case Sequential:
		return unix.FADV_SEQUENTIAL
	case Random:
		return unix.FADV_RANDOM
	case WillNeed:
		return unix.FADV_WILLNEED
	case DontNeed:
		return unix.FADV_DONTNEED
	case NoReuse:
		return unix.FADV_NOREUSE
	default:
		return unix.FADV_NORMAL
	}
}

// Advise submits a posix_fadvise-equivalent hint for fd over
// [offset, offset+length). offset and length are validated to fit an
// int64 range, per spec §4.3.
func Advise(ctx context.Context, fd int, offset, length int64, hint AdviseHint) error {
	if offset < 0 || length < 0 {
		return copyerr.New(copyerr.Precondition, "advise", "", "", fmt.Errorf("negative offset/length"))
	}
	if offset > math.MaxInt64-length {
		return copyerr.New(copyerr.Precondition, "advise", "", "", fmt.Errorf("offset+length overflows int64"))
	}
	err := defaultExecutor.run(ctx, func() error {
		return unix.Fadvise(fd, offset, length, hint.toFadviseAdvice())
	})
	if err == unix.ENOTSUP || err == unix.ENOSYS {
		return copyerr.New(copyerr.NotSupported, "advise", "", "", err)
	}
	return copyerr.New(copyerr.Transport, "advise", "", "", err)
}
