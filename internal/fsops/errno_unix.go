package fsops

import "golang.org/x/sys/unix"

// isNotSupportedErrno reports whether err is one of the errno values
// that mean "operation not supported by this filesystem" across the
// unixes rclone's xattr.go targets (ENOTSUP, or EINVAL on Solaris).
func isNotSupportedErrno(err error) bool {
	errno, ok := err.(unix.Errno)
	if !ok {
		return false
	}
	return errno == unix.ENOTSUP || errno == unix.EINVAL
}
