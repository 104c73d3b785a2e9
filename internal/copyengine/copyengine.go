// Package copyengine implements per-entry copying with method
// selection and metadata replication, per spec §4.6. It is driven by
// internal/walk as the Handlers.File/EnterDir/LeaveDir callbacks.
package copyengine

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/config"
	"github.com/jmalicki/localsync/internal/copyerr"
	"github.com/jmalicki/localsync/internal/fsops"
	"github.com/jmalicki/localsync/internal/synclog"
	"github.com/jmalicki/localsync/internal/tracker"
	"github.com/jmalicki/localsync/internal/walk"
)

// Method selects how regular-file data is transferred, per spec §4.6.
type Method int

// Recognized methods.
const (
	// Auto tries CloneRange, then RangeCopy, then ReadWriteCopy,
	// falling through to the next on any error.
	Auto Method = iota
	// InKernelRange uses RangeCopy only; failure fails the entry.
	InKernelRange
	// Splice copies through an intermediate pipe via splice(2).
	Splice
	// BufferedReadWrite is the universal userspace fallback.
	BufferedReadWrite
)

// adviseThreshold is the size above which the source is advised
// Sequential before copying, per spec §4.6 step 5.
const adviseThreshold = 1 << 20 // 1 MiB

// Stats accumulates the run statistics gated on this engine's copy
// decisions, per spec §3's "Run statistics" counters. The traversal's
// own Stats (files visited, boundary violations, per-entry errors)
// are tracked separately by internal/walk; the orchestrator combines
// both into its Result.
type Stats struct {
	FilesCopied           atomic.Int64
	DirectoriesCreated    atomic.Int64
	BytesCopied           atomic.Int64
	BytesPreallocated     atomic.Int64
	SymlinksProcessed     atomic.Int64
	HardlinksMaterialized atomic.Int64
	SpecialFilesCreated   atomic.Int64
}

// Engine copies individual entries and applies their metadata.
type Engine struct {
	opts    config.Options
	tracker *tracker.Tracker
	method  Method
	logger  *synclog.Logger
	stats   Stats
}

// New constructs an Engine. tr must be the same Tracker the traversal
// engine pins its source device on, so hardlink decisions agree.
func New(opts config.Options, tr *tracker.Tracker, method Method, logger *synclog.Logger) *Engine {
	if logger == nil {
		logger = synclog.Default
	}
	return &Engine{opts: opts, tracker: tr, method: method, logger: logger}
}

// StatsSnapshot returns a snapshot of the engine's cumulative counters.
func (e *Engine) StatsSnapshot() StatsSnapshot {
	return StatsSnapshot{
		FilesCopied:           e.stats.FilesCopied.Load(),
		DirectoriesCreated:    e.stats.DirectoriesCreated.Load(),
		BytesCopied:           e.stats.BytesCopied.Load(),
		BytesPreallocated:     e.stats.BytesPreallocated.Load(),
		SymlinksProcessed:     e.stats.SymlinksProcessed.Load(),
		HardlinksMaterialized: e.stats.HardlinksMaterialized.Load(),
		SpecialFilesCreated:   e.stats.SpecialFilesCreated.Load(),
	}
}

// StatsSnapshot is a point-in-time copy of Stats, safe to hand to a
// caller without exposing the atomic fields directly.
type StatsSnapshot struct {
	FilesCopied           int64
	DirectoriesCreated    int64
	BytesCopied           int64
	BytesPreallocated     int64
	SymlinksProcessed     int64
	HardlinksMaterialized int64
	SpecialFilesCreated   int64
}

// Handlers returns the walk.Handlers bundle wired to this Engine.
func (e *Engine) Handlers() walk.Handlers {
	return walk.Handlers{
		File:     e.CopyEntry,
		EnterDir: e.EnterDirectory,
		LeaveDir: e.LeaveDirectory,
	}
}

// CopyEntry dispatches a non-directory entry by classification, per
// spec §4.6.
func (e *Engine) CopyEntry(ctx context.Context, entry walk.Entry, dstDir *fsops.DirectoryHandle) error {
	switch entry.Metadata.Classification {
	case fsops.RegularFile:
		return e.copyRegularFile(ctx, entry, dstDir)
	case fsops.Symlink:
		return e.copySymlink(ctx, entry, dstDir)
	case fsops.Fifo, fsops.CharDevice, fsops.BlockDevice, fsops.Socket:
		return e.copySpecialFile(ctx, entry, dstDir)
	default:
		return copyerr.New(copyerr.Precondition, "copy_entry", entry.RelPath, "",
			fmt.Errorf("unrecognized classification %v", entry.Metadata.Classification))
	}
}

// EnterDirectory creates (or reuses) the destination subdirectory for
// entry and returns an open handle to it, per spec §4.5 step 2d. The
// mode is the source's own bits when Perms is enabled, else a sane
// default the caller's umask narrows.
func (e *Engine) EnterDirectory(ctx context.Context, entry walk.Entry, dstParent *fsops.DirectoryHandle) (*fsops.DirectoryHandle, error) {
	mode := uint32(0777)
	if e.opts.Perms {
		mode = entry.Metadata.Mode & 07777
	}
	if e.opts.DryRun {
		return fsops.OpenDirectoryAt(ctx, dstParent, ".")
	}
	if err := fsops.MkdirAt(ctx, dstParent.Fd(), entry.Name, mode); err != nil {
		return nil, err
	}
	e.stats.DirectoriesCreated.Add(1)
	return fsops.OpenDirectoryAt(ctx, dstParent, entry.Name)
}

// LeaveDirectory applies entry's full metadata snapshot to dst, after
// every descendant has completed — spec §4.5 step 3's happens-after
// guarantee, enforced by internal/walk's handler ordering, not by this
// function.
func (e *Engine) LeaveDirectory(ctx context.Context, entry walk.Entry, dst *fsops.DirectoryHandle) error {
	if e.opts.DryRun {
		return nil
	}
	return e.applyMetadata(ctx, entry.Metadata, dst.Fd(), -1, entry.RelPath, "", entry.SrcDir.Path(), dst.Path())
}

func (e *Engine) copyRegularFile(ctx context.Context, entry walk.Entry, dstDir *fsops.DirectoryHandle) error {
	meta := entry.Metadata

	if e.opts.HardLinks && meta.Nlink > 1 {
		e.tracker.Register(entry.RelPath, meta.Dev, meta.Ino, meta.Nlink)
		if dest, ok := e.tracker.LookupDestination(meta.Dev, meta.Ino); ok {
			return e.materializeHardlink(ctx, dstDir, entry.Name, dest)
		}
	}

	if e.opts.DryRun {
		return nil
	}

	if err := fsops.UnlinkAt(ctx, dstDir.Fd(), entry.Name, false); err != nil {
		e.logger.Debugf(entry.RelPath, "pre-copy unlink of stale destination failed (ignored): %v", err)
	}

	src, err := fsops.OpenFileAt(ctx, entry.SrcDir, entry.Name, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer src.Close()

	createMode := uint32(0666)
	if e.opts.Perms {
		createMode = meta.Mode & 07777
	}
	dst, err := fsops.OpenFileAt(ctx, dstDir, entry.Name, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, createMode)
	if err != nil {
		return err
	}
	defer dst.Close()

	if meta.Size > 0 {
		if err := fsops.Preallocate(ctx, dst.Fd(), 0, meta.Size, fsops.PreallocateMode{}); err != nil {
			e.logger.Debugf(entry.RelPath, "preallocate failed (ignored, best-effort): %v", err)
		} else {
			e.stats.BytesPreallocated.Add(meta.Size)
		}
	}
	if meta.Size > adviseThreshold {
		if err := fsops.Advise(ctx, src.Fd(), 0, meta.Size, fsops.Sequential); err != nil {
			e.logger.Debugf(entry.RelPath, "advise failed (ignored, best-effort): %v", err)
		}
	}

	if err := e.copyData(ctx, src, dst, meta.Size); err != nil {
		return err
	}

	if err := dst.Sync(ctx); err != nil {
		return err
	}
	e.stats.FilesCopied.Add(1)
	e.stats.BytesCopied.Add(meta.Size)

	if e.opts.HardLinks && meta.Nlink > 1 {
		e.tracker.MarkMaterialized(meta.Dev, meta.Ino, dst.Path())
	}

	return e.applyMetadata(ctx, meta, dst.Fd(), -1, entry.RelPath, "", src.Path(), dst.Path())
}

// copyData transfers size bytes from src to dst by resolving e.method
// to a concrete primitive. For Auto it falls through on any error in
// the order spec §4.6 describes: CloneRange, then RangeCopy,
// then ReadWriteCopy. Ties between range_copy and any other available
// method are broken in favor of range_copy.
func (e *Engine) copyData(ctx context.Context, src, dst *fsops.OpenFileHandle, size int64) error {
	if size == 0 {
		return nil
	}
	switch e.method {
	case InKernelRange:
		_, err := fsops.RangeCopy(ctx, src.Fd(), dst.Fd(), 0, 0, size)
		return err
	case Splice:
		_, err := fsops.SpliceThroughPipe(ctx, src.Fd(), dst.Fd(), size)
		return err
	case BufferedReadWrite:
		_, err := fsops.ReadWriteCopy(ctx, src.Fd(), dst.Fd(), 0)
		return err
	default: // Auto
		// Any failure (not just NotSupported) falls through to the
		// next method, per spec's "on any error ... fall back to
		// read_write_copy" Auto rule, generalized to the clone step
		// added ahead of range_copy.
		if err := fsops.CloneRange(ctx, src.Fd(), dst.Fd(), 0, 0, size); err == nil {
			return nil
		}
		if _, err := fsops.RangeCopy(ctx, src.Fd(), dst.Fd(), 0, 0, size); err == nil {
			return nil
		}
		_, err := fsops.ReadWriteCopy(ctx, src.Fd(), dst.Fd(), 0)
		return err
	}
}

// materializeHardlink links destPath (the already materialized first
// copy, which may live in another destination directory) to name in
// dstDir, per spec §4.4/§4.6's hardlink path.
func (e *Engine) materializeHardlink(ctx context.Context, dstDir *fsops.DirectoryHandle, name, destPath string) error {
	if e.opts.DryRun {
		return nil
	}
	_ = fsops.UnlinkAt(ctx, dstDir.Fd(), name, false)
	if err := fsops.LinkAt(ctx, unix.AT_FDCWD, destPath, dstDir.Fd(), name); err != nil {
		return err
	}
	e.stats.HardlinksMaterialized.Add(1)
	return nil
}

func (e *Engine) copySymlink(ctx context.Context, entry walk.Entry, dstDir *fsops.DirectoryHandle) error {
	if !e.opts.Symlinks {
		return nil
	}
	target, err := fsops.ReadlinkAt(ctx, entry.SrcDir.Fd(), entry.Name)
	if err != nil {
		return err
	}
	if e.opts.DryRun {
		return nil
	}
	if err := fsops.UnlinkAt(ctx, dstDir.Fd(), entry.Name, false); err != nil {
		return err
	}
	if err := fsops.SymlinkAt(ctx, target, dstDir.Fd(), entry.Name); err != nil {
		return err
	}
	srcPath := entry.SrcDir.Path() + "/" + entry.Name
	dstPath := dstDir.Path() + "/" + entry.Name
	if err := e.applyMetadata(ctx, entry.Metadata, -1, dstDir.Fd(), entry.RelPath, entry.Name, srcPath, dstPath); err != nil {
		return err
	}
	e.stats.SymlinksProcessed.Add(1)
	return nil
}

func (e *Engine) copySpecialFile(ctx context.Context, entry walk.Entry, dstDir *fsops.DirectoryHandle) error {
	if !e.opts.Devices {
		return nil
	}
	if e.opts.DryRun {
		return nil
	}
	if err := fsops.UnlinkAt(ctx, dstDir.Fd(), entry.Name, false); err != nil {
		return err
	}
	mode := entry.Metadata.Mode
	if err := fsops.MknodAt(ctx, dstDir.Fd(), entry.Name, mode, entry.Metadata.Rdev); err != nil {
		return err
	}
	srcPath := entry.SrcDir.Path() + "/" + entry.Name
	dstPath := dstDir.Path() + "/" + entry.Name
	if err := e.applyMetadata(ctx, entry.Metadata, -1, dstDir.Fd(), entry.RelPath, entry.Name, srcPath, dstPath); err != nil {
		return err
	}
	e.stats.SpecialFilesCreated.Add(1)
	return nil
}

// applyMetadata applies xattrs, permissions, ownership, and timestamps
// in that order, per spec §4.6 step 9: timestamps must be applied
// last because every preceding operation modifies ctime. Exactly one
// of (fd, dirfd+name) addressing is used for perms/ownership/times
// depending on which is available for this entry kind (fd == -1
// selects the *_at family); xattrs are always path-addressed via
// srcPath/dstPath since pkg/xattr has no fd-based API in this module.
func (e *Engine) applyMetadata(ctx context.Context, meta fsops.Metadata, fd int, dirfd int, relPath, name, srcPath, dstPath string) error {
	var firstErr error
	record := func(err error) {
		if err == nil {
			return
		}
		if copyerr.KindOf(err) != copyerr.PolicyDenied {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		e.logger.Debugf(relPath, "permission denied applying metadata (reported, not fatal): %v", err)
	}

	if e.opts.Xattr {
		for _, xerr := range fsops.CopyXattrs(ctx, srcPath, dstPath) {
			e.logger.Debugf(relPath, "xattr copy failed (reported, not fatal): %v", xerr)
		}
	} else if e.opts.ACL {
		// POSIX ACLs are stored as the system.posix_acl_* xattrs; with
		// Xattr off, only those are copied.
		for _, aclName := range []string{"system.posix_acl_access", "system.posix_acl_default"} {
			value, err := fsops.GetXattr(ctx, srcPath, aclName, false)
			if err == nil && value != nil {
				err = fsops.SetXattr(ctx, dstPath, aclName, value, false)
			}
			if err != nil {
				e.logger.Debugf(relPath, "ACL copy failed (reported, not fatal): %v", err)
			}
		}
	}

	// Symlinks are skipped: ChmodAt follows a trailing symlink and
	// would change the link target's mode instead.
	if e.opts.Perms && meta.Classification != fsops.Symlink {
		if fd >= 0 {
			record(fsops.ChmodFd(ctx, fd, meta.Mode))
		} else {
			record(fsops.ChmodAt(ctx, dirfd, name, meta.Mode))
		}
	}
	if e.opts.Owner || e.opts.Group {
		uid, gid := -1, -1
		if e.opts.Owner {
			uid = int(meta.UID)
		}
		if e.opts.Group {
			gid = int(meta.GID)
		}
		if fd >= 0 {
			record(fsops.ChownFd(ctx, fd, uid, gid))
		} else {
			record(fsops.ChownAt(ctx, dirfd, name, uid, gid))
		}
	}
	if e.opts.Times {
		if fd >= 0 {
			record(fsops.UtimensFd(ctx, fd, meta.Atime, meta.Mtime))
		} else {
			record(fsops.UtimensAt(ctx, dirfd, name, meta.Atime, meta.Mtime))
		}
	}
	return firstErr
}
