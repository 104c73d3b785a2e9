package fsops

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// DirectoryHandle is an owned open-directory resource. It acts as the
// dirfd for every path-relative (*_at) primitive issued against its
// contents, defeating TOCTOU races between classification and
// operation (spec §4.3). A bare fd integer must never outlive the
// handle that owns it (spec §9); DirectoryHandle and OpenFileHandle
// are the types that own one.
type DirectoryHandle struct {
	path string
	fd   int

	closeOnce sync.Once
	closeErr  error
}

// OpenDirectory opens path as a DirectoryHandle. The returned handle
// owns its fd and must be closed by the caller.
func OpenDirectory(ctx context.Context, path string) (*DirectoryHandle, error) {
	var fd int
	err := defaultExecutor.run(ctx, func() error {
		var e error
		fd, e = unix.Open(path, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
		return e
	})
	if err != nil {
		return nil, copyerr.New(copyerr.Transport, "open_directory", path, "", err)
	}
	return &DirectoryHandle{path: path, fd: fd}, nil
}

// OpenDirectoryAt opens name relative to parent's dirfd as a nested
// DirectoryHandle, defeating TOCTOU between a prior classification of
// name and this open — the same discipline OpenFileAt applies to
// regular files.
func OpenDirectoryAt(ctx context.Context, parent *DirectoryHandle, name string) (*DirectoryHandle, error) {
	var fd int
	err := defaultExecutor.run(ctx, func() error {
		var e error
		fd, e = unix.Openat(parent.Fd(), name, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
		return e
	})
	childPath := fmt.Sprintf("%s/%s", parent.Path(), name)
	if err != nil {
		return nil, copyerr.New(copyerr.Transport, "open_directory_at", childPath, "", err)
	}
	return &DirectoryHandle{path: childPath, fd: fd}, nil
}

// Fd returns the handle's dirfd for use as the dirfd argument to the
// *_at family of primitives in this package. It is only valid for the
// lifetime of the handle.
func (d *DirectoryHandle) Fd() int { return d.fd }

// Path returns the path the handle was opened on, for error context.
func (d *DirectoryHandle) Path() string { return d.path }

// Close closes the handle's underlying fd. It is safe to call more
// than once; only the first call's result is returned.
func (d *DirectoryHandle) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = unix.Close(d.fd)
	})
	return d.closeErr
}

// OpenFileHandle is an owned regular-file fd, used by the copy engine
// for source/destination file descriptors passed to the copy
// primitives. Like DirectoryHandle, it closes its fd on Close; the raw
// fd is exposed only through Fd, valid for the handle's lifetime.
type OpenFileHandle struct {
	path string
	fd   int

	closeOnce sync.Once
	closeErr  error
}

// OpenFileAt opens name relative to dir's dirfd with the given flags
// and mode, defeating TOCTOU between a prior classification of name
// and this open.
func OpenFileAt(ctx context.Context, dir *DirectoryHandle, name string, flags int, mode uint32) (*OpenFileHandle, error) {
	var fd int
	err := defaultExecutor.run(ctx, func() error {
		var e error
		fd, e = unix.Openat(dir.Fd(), name, flags|unix.O_CLOEXEC, mode)
		return e
	})
	if err != nil {
		return nil, copyerr.New(copyerr.Transport, "openat", fmt.Sprintf("%s/%s", dir.Path(), name), "", err)
	}
	return &OpenFileHandle{path: fmt.Sprintf("%s/%s", dir.Path(), name), fd: fd}, nil
}

// OpenFile opens an absolute or relative path directly (used for the
// source/destination roots, which have no parent DirectoryHandle of
// their own within this run).
func OpenFile(ctx context.Context, path string, flags int, mode uint32) (*OpenFileHandle, error) {
	var fd int
	err := defaultExecutor.run(ctx, func() error {
		var e error
		fd, e = unix.Open(path, flags|unix.O_CLOEXEC, mode)
		return e
	})
	if err != nil {
		return nil, copyerr.New(copyerr.Transport, "open", path, "", err)
	}
	return &OpenFileHandle{path: path, fd: fd}, nil
}

// Fd returns the handle's raw file descriptor, valid only for the
// handle's lifetime.
func (f *OpenFileHandle) Fd() int { return f.fd }

// Path returns the path the handle was opened on, for error context.
func (f *OpenFileHandle) Path() string { return f.path }

// Close closes the handle's underlying fd, idempotently.
func (f *OpenFileHandle) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = unix.Close(f.fd)
	})
	return f.closeErr
}

// Sync calls fsync on the handle's fd.
func (f *OpenFileHandle) Sync(ctx context.Context) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Fsync(f.fd)
	})
	return copyerr.New(copyerr.Transport, "fsync", f.path, "", err)
}
