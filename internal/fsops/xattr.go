package fsops

import (
	"context"

	pkgxattr "github.com/pkg/xattr"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// XattrSupported mirrors the teacher's xattrSupported constant,
// derived from pkg/xattr's platform support check.
const XattrSupported = pkgxattr.XATTR_SUPPORTED

// isXattrNotSupported mirrors xattrIsNotSupported in the teacher's
// backend/local/xattr.go: xattrs not supported can surface as
// ENOTSUP, ENOATTR, or (on Solaris) EINVAL.
func isXattrNotSupported(err error) bool {
	xerr, ok := err.(*pkgxattr.Error)
	if !ok {
		return false
	}
	return xerr.Err == pkgxattr.ENOATTR || isNotSupportedErrno(xerr.Err)
}

// ListXattr returns the binary-safe xattr names for path (or, if
// followSymlinks is false, the link itself). An empty list returns an
// empty slice, not an error.
func ListXattr(ctx context.Context, path string, followSymlinks bool) ([]string, error) {
	if !XattrSupported {
		return nil, nil
	}
	var names []string
	err := defaultExecutor.run(ctx, func() error {
		var e error
		if followSymlinks {
			names, e = pkgxattr.List(path)
		} else {
			names, e = pkgxattr.LList(path)
		}
		return e
	})
	if err != nil {
		if isXattrNotSupported(err) {
			return nil, nil
		}
		return nil, copyerr.New(copyerr.Transport, "list_xattr", path, "", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// GetXattr reads one xattr value, binary-safe.
func GetXattr(ctx context.Context, path, name string, followSymlinks bool) ([]byte, error) {
	var value []byte
	err := defaultExecutor.run(ctx, func() error {
		var e error
		if followSymlinks {
			value, e = pkgxattr.Get(path, name)
		} else {
			value, e = pkgxattr.LGet(path, name)
		}
		return e
	})
	if err != nil {
		if isXattrNotSupported(err) {
			return nil, nil
		}
		return nil, copyerr.New(copyerr.Transport, "get_xattr", path, "", err)
	}
	return value, nil
}

// SetXattr writes one xattr value, binary-safe.
func SetXattr(ctx context.Context, path, name string, value []byte, followSymlinks bool) error {
	err := defaultExecutor.run(ctx, func() error {
		if followSymlinks {
			return pkgxattr.Set(path, name, value)
		}
		return pkgxattr.LSet(path, name, value)
	})
	if err != nil && isXattrNotSupported(err) {
		return nil
	}
	return copyerr.New(copyerr.Transport, "set_xattr", path, "", err)
}

// CopyXattrs copies every xattr from src to dst, no-following symlinks
// on both ends. Individual attribute failures are collected but do
// not abort the remaining attributes, matching the copy engine's
// "permission-denied on metadata is reported but does not fail the
// entry" rule (spec §4.6).
func CopyXattrs(ctx context.Context, src, dst string) []error {
	names, err := ListXattr(ctx, src, false)
	if err != nil {
		return []error{err}
	}
	var errs []error
	for _, name := range names {
		value, err := GetXattr(ctx, src, name, false)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := SetXattr(ctx, dst, name, value, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
