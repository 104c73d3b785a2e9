// Package walk implements the recursive traversal-and-copy pipeline:
// it discovers entries under a source DirectoryHandle, classifies and
// boundary-checks each one, and dispatches per-entry work to a
// caller-supplied handler, bounded by an adaptive concurrency
// controller. Directory metadata is finalized only after every
// descendant has completed.
package walk

import (
	"context"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmalicki/localsync/internal/adaptive"
	"github.com/jmalicki/localsync/internal/config"
	"github.com/jmalicki/localsync/internal/fsops"
	"github.com/jmalicki/localsync/internal/synclog"
	"github.com/jmalicki/localsync/internal/tracker"
)

// Entry describes one discovered source entry, already classified and
// boundary-checked, handed to a Handlers callback.
type Entry struct {
	// RelPath is the path relative to the source root, using forward
	// slashes regardless of host path separator convention.
	RelPath string
	// Name is the final path component.
	Name string
	// SrcDir is the already-open parent directory handle; operations
	// relative to Name go through SrcDir's dirfd.
	SrcDir *fsops.DirectoryHandle
	// Metadata is the entry's extended metadata snapshot.
	Metadata fsops.Metadata
}

// Handlers bundles the callbacks the traversal engine drives. File is
// invoked with the adaptive controller's permit already held; EnterDir
// and LeaveDir run without one, since directory recursion does not
// hold a permit. Per-entry errors must be returned to the walker rather than retried internally
// so they can be recorded into Stats without aborting the traversal.
type Handlers struct {
	// File is called for every regular file, symlink, fifo, socket,
	// or device entry (everything except directories).
	File func(ctx context.Context, e Entry, dstDir *fsops.DirectoryHandle) error
	// EnterDir is called before recursing into a subdirectory; it
	// must create (or reuse) the destination subdirectory and return
	// an open handle to it, or an error to abort that subtree only.
	EnterDir func(ctx context.Context, e Entry, dstParent *fsops.DirectoryHandle) (*fsops.DirectoryHandle, error)
	// LeaveDir is called after every descendant of a directory has
	// completed, to apply the directory's own metadata snapshot.
	LeaveDir func(ctx context.Context, e Entry, dst *fsops.DirectoryHandle) error
}

// Stats aggregates the outcome of a Walk call.
type Stats struct {
	FilesVisited       int
	DirsVisited        int
	BoundaryViolations int
	Errors             []EntryError
}

// EntryError pairs a relative path with the error encountered
// processing it; boundary violations and per-entry failures are
// recorded here rather than propagated, per spec §4.5.
type EntryError struct {
	RelPath string
	Err     error
}

// Walker drives the traversal described in spec §4.5.
type Walker struct {
	tracker    *tracker.Tracker
	controller *adaptive.Controller
	handlers   Handlers
	filter     config.EntryFilter
	logger     *synclog.Logger

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Walker against a Tracker shared with the copy
// engine for hardlink bookkeeping.
func New(tr *tracker.Tracker, controller *adaptive.Controller, handlers Handlers, filter config.EntryFilter, logger *synclog.Logger) *Walker {
	if logger == nil {
		logger = synclog.Default
	}
	return &Walker{tracker: tr, controller: controller, handlers: handlers, filter: filter, logger: logger}
}

// Walk opens srcRootPath as a DirectoryHandle, pins its device id on
// the tracker, and recursively processes its contents against dstRoot
// (an already-open destination directory handle), returning aggregate
// Stats. Errors opening the source root are fatal and returned
// directly; all other per-entry failures are folded into Stats.Errors.
func (w *Walker) Walk(ctx context.Context, srcRootPath string, dstRoot *fsops.DirectoryHandle) (Stats, error) {
	srcRoot, err := fsops.OpenDirectory(ctx, srcRootPath)
	if err != nil {
		return Stats{}, err
	}
	defer srcRoot.Close()

	rootMeta, err := fsops.StatxAt(ctx, srcRoot, ".")
	if err != nil {
		// "." self-stat can fail on some filesystems; the traversal
		// still works, but no device is pinned, so same-filesystem
		// enforcement is skipped for the whole walk.
		w.logger.Debugf(nil, "could not statx traversal root %q: %v", srcRootPath, err)
	} else {
		w.tracker.SetSourceDevice(rootMeta.Dev)
	}

	root := Entry{RelPath: "", Name: filepath.Base(srcRootPath), SrcDir: srcRoot, Metadata: rootMeta}
	if err := w.walkDir(ctx, root, dstRoot); err != nil {
		return w.snapshot(), err
	}
	return w.snapshot(), nil
}

func (w *Walker) snapshot() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

func (w *Walker) recordError(relPath string, err error) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.Errors = append(w.stats.Errors, EntryError{RelPath: relPath, Err: err})
}

func (w *Walker) recordBoundaryViolation() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.BoundaryViolations++
}

func (w *Walker) countFile() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.FilesVisited++
}

func (w *Walker) countDir() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.DirsVisited++
}

// walkDir processes the children of dirEntry (already open as
// dirEntry.SrcDir) against dstDir, fanning out concurrently bounded by
// the adaptive controller, then finalizes dirEntry's own metadata
// happens-after every descendant — spec §4.5's ordering guarantee.
func (w *Walker) walkDir(ctx context.Context, dirEntry Entry, dstDir *fsops.DirectoryHandle) error {
	w.countDir()

	names, err := fsops.ReadDirNames(ctx, dirEntry.SrcDir)
	if err != nil {
		// Only a failure to open the traversal root is fatal (handled
		// directly in Walk); a directory, the root included, that can no
		// longer be read is recorded against its own subtree and does
		// not cancel the rest of the traversal.
		w.recordError(dirEntry.RelPath, err)
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return w.visit(gCtx, dirEntry, dstDir, name)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if w.handlers.LeaveDir != nil {
		if err := w.handlers.LeaveDir(ctx, dirEntry, dstDir); err != nil {
			w.recordError(dirEntry.RelPath, err)
		}
	}
	return nil
}

// visit classifies, boundary-checks, and dispatches a single child
// name within dirEntry. Per-entry errors are recorded into stats and
// never propagated to the errgroup, so a sibling's failure never
// cancels the rest of the directory — only errors opening the source
// or destination roots are fatal, per spec §4.5's failure semantics.
func (w *Walker) visit(ctx context.Context, dirEntry Entry, dstDir *fsops.DirectoryHandle, name string) error {
	relPath := name
	if dirEntry.RelPath != "" {
		relPath = dirEntry.RelPath + "/" + name
	}

	permit := w.controller.Acquire()

	meta, err := fsops.StatxAt(ctx, dirEntry.SrcDir, name)
	if err != nil {
		permit.Release()
		w.controller.Observe(err)
		w.recordError(relPath, err)
		return nil
	}

	if pinned, ok := w.pinnedDevice(); ok && meta.Dev != pinned {
		permit.Release()
		w.recordBoundaryViolation()
		w.recordError(relPath, errBoundary{relPath: relPath})
		return nil
	}

	if w.filter != nil && !w.filter(relPath, meta.Classification) {
		permit.Release()
		return nil
	}

	entry := Entry{RelPath: relPath, Name: name, SrcDir: dirEntry.SrcDir, Metadata: meta}

	if meta.Classification == fsops.Directory {
		// Release before recursing: directory recursion is unbounded
		// and only leaf I/O is gated by the concurrency permit, per
		// spec §5 ("no user code holds a permit across a point that
		// could deadlock waiting for a permit"). Holding it through
		// walkDir's g.Wait() on descendants would let a tree nested
		// deeper than the permit pool's size consume every permit on
		// blocked parents, with no permit ever left for a leaf to
		// make progress.
		permit.Release()
		return w.visitDir(ctx, entry, dstDir)
	}

	defer permit.Release()
	w.countFile()
	if w.handlers.File == nil {
		return nil
	}
	if err := w.handlers.File(ctx, entry, dstDir); err != nil {
		w.controller.Observe(err)
		w.recordError(relPath, err)
	}
	return nil
}

func (w *Walker) visitDir(ctx context.Context, entry Entry, dstParent *fsops.DirectoryHandle) error {
	if w.handlers.EnterDir == nil {
		return nil
	}
	childDst, err := w.handlers.EnterDir(ctx, entry, dstParent)
	if err != nil {
		w.recordError(entry.RelPath, err)
		return nil
	}
	defer childDst.Close()

	childSrc, err := fsops.OpenDirectoryAt(ctx, entry.SrcDir, entry.Name)
	if err != nil {
		w.recordError(entry.RelPath, err)
		return nil
	}
	defer childSrc.Close()

	childEntry := entry
	childEntry.SrcDir = childSrc
	return w.walkDir(ctx, childEntry, childDst)
}

// pinnedDevice reports the tracker's pinned source device and whether
// boundary enforcement is active at all (it is inactive only when the
// traversal root's own statx failed and no device was ever pinned).
func (w *Walker) pinnedDevice() (uint64, bool) {
	stats := w.tracker.Stats()
	if stats.SourceDevice == 0 {
		return 0, false
	}
	return stats.SourceDevice, true
}

type errBoundary struct{ relPath string }

func (e errBoundary) Error() string {
	return "entry " + e.relPath + " crosses a filesystem boundary from the source root"
}
