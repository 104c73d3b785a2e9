package adaptive

import (
	"errors"
	"syscall"
)

// errnoIs reports whether err wraps the given syscall.Errno, checked
// by numeric comparison rather than string matching.
func errnoIs(err error, want syscall.Errno) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == want
	}
	return false
}
