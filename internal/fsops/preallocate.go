package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// PreallocateMode bundles the fallocate(2) mode flags recognized by
// spec §4.3.
type PreallocateMode struct {
	KeepSize     bool
	PunchHole    bool
	ZeroRange    bool
	Collapse     bool
	Insert       bool
	Unshare      bool
	NoHideStale  bool
}

func (m PreallocateMode) flags() int32 {
	var f int32
	if m.KeepSize {
		f |= unix.FALLOC_FL_KEEP_SIZE
	}
	if m.PunchHole {
		f |= unix.FALLOC_FL_PUNCH_HOLE
	}
	if m.ZeroRange {
		f |= unix.FALLOC_FL_ZERO_RANGE
	}
	if m.Collapse {
		f |= unix.FALLOC_FL_COLLAPSE_RANGE
	}
	if m.Insert {
		f |= unix.FALLOC_FL_INSERT_RANGE
	}
	if m.Unshare {
		f |= unix.FALLOC_FL_UNSHARE_RANGE
	}
	if m.NoHideStale {
		f |= unix.FALLOC_FL_NO_HIDE_STALE
	}
	return f
}

// Preallocate reserves [offset, offset+len) for fd via fallocate(2).
// Following the teacher's preAllocate (backend/local/preallocate_unix.go),
// callers treat failure as best-effort: ENOTSUP is reported as
// NotSupported so the copy engine can ignore it rather than fail the
// entry.
func Preallocate(ctx context.Context, fd int, offset, length int64, mode PreallocateMode) error {
	if length <= 0 {
		return nil
	}
	err := defaultExecutor.run(ctx, func() error {
		return unix.Fallocate(fd, uint32(mode.flags()), offset, length)
	})
	if err == nil {
		return nil
	}
	if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
		return copyerr.New(copyerr.NotSupported, "preallocate", "", "", err)
	}
	return copyerr.New(copyerr.Transport, "preallocate", "", "", err)
}
