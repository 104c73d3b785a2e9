// Package orchestrator is the single entry point this module exposes
// to callers: it validates inputs, dispatches to the single-file or
// directory path, drives the traversal-and-copy pipeline, and
// aggregates the run's statistics, per spec §4.7.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmalicki/localsync/internal/adaptive"
	"github.com/jmalicki/localsync/internal/config"
	"github.com/jmalicki/localsync/internal/copyengine"
	"github.com/jmalicki/localsync/internal/copyerr"
	"github.com/jmalicki/localsync/internal/fsops"
	"github.com/jmalicki/localsync/internal/synclog"
	"github.com/jmalicki/localsync/internal/tracker"
	"github.com/jmalicki/localsync/internal/walk"
)

// ProgressReporter is the narrow seam an out-of-scope progress-bar
// renderer implements; Run calls it, if supplied, as entries start
// and finish. It plays the role src/progress.rs's channel-based
// reporter plays in the original, expressed here as a plain interface
// since no concurrent consumer is specified by this core.
type ProgressReporter interface {
	OnEntryStart(relPath string)
	OnEntryDone(relPath string, err error)
	OnDirectoryDone(relPath string)
}

// RunStatistics are the monotonically increasing counters from
// spec §3, plus the bytes_preallocated field the expansion adds. The
// run's wall-clock duration is reported in Result.Duration.
type RunStatistics struct {
	FilesCopied           int64
	DirectoriesCreated    int64
	BytesCopied           int64
	BytesPreallocated     int64
	SymlinksProcessed     int64
	HardlinksMaterialized int64
	SpecialFilesCreated   int64
	Errors                int64
}

// EntryError pairs a relative path with the error encountered
// processing it.
type EntryError struct {
	RelPath string
	Err     error
}

// Result is returned by Run.
type Result struct {
	Stats    RunStatistics
	Errors   []EntryError
	Duration time.Duration
}

// Orchestrator drives one or more runs against a fixed Options.
type Orchestrator struct {
	opts     config.Options
	method   copyengine.Method
	logger   *synclog.Logger
	progress ProgressReporter
}

// New constructs an Orchestrator. progress may be nil.
func New(opts config.Options, method copyengine.Method, logger *synclog.Logger, progress ProgressReporter) *Orchestrator {
	if logger == nil {
		logger = synclog.Default
	}
	return &Orchestrator{opts: opts, method: method, logger: logger, progress: progress}
}

// Run copies src to dst according to the Orchestrator's Options,
// returning aggregate Result. A missing source is rejected. Missing
// destination directories (the parent of a single-file destination,
// or a directory destination itself) are created. A missing source or
// a failure to create those directories is a Precondition failure
// returned directly rather than folded into Result.Errors.
func (o *Orchestrator) Run(ctx context.Context, src, dst string) (Result, error) {
	start := time.Now()

	srcInfo, err := os.Lstat(src)
	if err != nil {
		return Result{}, copyerr.New(copyerr.Precondition, "run", src, dst, fmt.Errorf("source does not exist: %w", err))
	}

	if !srcInfo.IsDir() {
		if err := o.ensureParentExists(dst); err != nil {
			return Result{}, err
		}
		result, runErr := o.runSingleFile(ctx, src, dst)
		result.Duration = time.Since(start)
		return result, runErr
	}

	if err := o.ensureDirExists(dst); err != nil {
		return Result{}, err
	}
	result, runErr := o.runDirectory(ctx, src, dst)
	result.Duration = time.Since(start)
	return result, runErr
}

func (o *Orchestrator) ensureParentExists(dst string) error {
	parent := filepath.Dir(dst)
	if err := os.MkdirAll(parent, 0777); err != nil {
		return copyerr.New(copyerr.Precondition, "run", "", dst, fmt.Errorf("destination parent %q: %w", parent, err))
	}
	return nil
}

func (o *Orchestrator) ensureDirExists(dst string) error {
	if err := os.MkdirAll(dst, 0777); err != nil {
		return copyerr.New(copyerr.Precondition, "run", "", dst, fmt.Errorf("destination root %q: %w", dst, err))
	}
	return nil
}

// runSingleFile copies src directly to dst via a one-entry copyengine
// invocation, per spec §4.7's single-file dispatch path.
func (o *Orchestrator) runSingleFile(ctx context.Context, src, dst string) (Result, error) {
	srcDir, err := fsops.OpenDirectory(ctx, filepath.Dir(src))
	if err != nil {
		return Result{}, err
	}
	defer srcDir.Close()

	dstDir, err := fsops.OpenDirectory(ctx, filepath.Dir(dst))
	if err != nil {
		return Result{}, err
	}
	defer dstDir.Close()

	name := filepath.Base(src)
	meta, err := fsops.StatxAt(ctx, srcDir, name)
	if err != nil {
		return Result{}, err
	}

	tr := tracker.New()
	tr.SetSourceDevice(meta.Dev)
	eng := copyengine.New(o.opts, tr, o.method, o.logger)

	entry := walk.Entry{RelPath: name, Name: filepath.Base(dst), SrcDir: srcDir, Metadata: meta}
	if o.progress != nil {
		o.progress.OnEntryStart(entry.RelPath)
	}
	copyErr := eng.CopyEntry(ctx, entry, dstDir)
	if o.progress != nil {
		o.progress.OnEntryDone(entry.RelPath, copyErr)
	}

	var errs []EntryError
	if copyErr != nil {
		errs = append(errs, EntryError{RelPath: entry.RelPath, Err: copyErr})
	}
	return Result{
		Stats:  statsFromEngine(eng, len(errs)),
		Errors: errs,
	}, nil
}

// runDirectory creates (already ensured) dst and drives the traversal
// engine over src, per spec §4.7's directory dispatch path.
func (o *Orchestrator) runDirectory(ctx context.Context, src, dst string) (Result, error) {
	dstRoot, err := fsops.OpenDirectory(ctx, dst)
	if err != nil {
		return Result{}, err
	}
	defer dstRoot.Close()

	tr := tracker.New()
	controller := adaptive.New(o.opts.ResolvedConcurrency(), o.logger)
	eng := copyengine.New(o.opts, tr, o.method, o.logger)

	handlers := eng.Handlers()
	handlers = o.wrapWithProgress(handlers)

	w := walk.New(tr, controller, handlers, o.opts.Filter, o.logger)

	walkStats, walkErr := w.Walk(ctx, src, dstRoot)
	if walkErr != nil {
		return Result{}, walkErr
	}

	errs := make([]EntryError, 0, len(walkStats.Errors))
	for _, e := range walkStats.Errors {
		errs = append(errs, EntryError{RelPath: e.RelPath, Err: e.Err})
	}

	return Result{
		Stats:  statsFromEngine(eng, len(errs)),
		Errors: errs,
	}, nil
}

// wrapWithProgress decorates handlers with ProgressReporter calls
// when one was supplied to New; otherwise handlers is returned
// unmodified.
func (o *Orchestrator) wrapWithProgress(handlers walk.Handlers) walk.Handlers {
	if o.progress == nil {
		return handlers
	}
	innerFile := handlers.File
	handlers.File = func(ctx context.Context, e walk.Entry, dstDir *fsops.DirectoryHandle) error {
		o.progress.OnEntryStart(e.RelPath)
		err := innerFile(ctx, e, dstDir)
		o.progress.OnEntryDone(e.RelPath, err)
		return err
	}
	innerLeave := handlers.LeaveDir
	handlers.LeaveDir = func(ctx context.Context, e walk.Entry, dst *fsops.DirectoryHandle) error {
		err := innerLeave(ctx, e, dst)
		o.progress.OnDirectoryDone(e.RelPath)
		return err
	}
	return handlers
}

func statsFromEngine(eng *copyengine.Engine, errCount int) RunStatistics {
	snap := eng.StatsSnapshot()
	return RunStatistics{
		FilesCopied:           snap.FilesCopied,
		DirectoriesCreated:    snap.DirectoriesCreated,
		BytesCopied:           snap.BytesCopied,
		BytesPreallocated:     snap.BytesPreallocated,
		SymlinksProcessed:     snap.SymlinksProcessed,
		HardlinksMaterialized: snap.HardlinksMaterialized,
		SpecialFilesCreated:   snap.SpecialFilesCreated,
		Errors:                int64(errCount),
	}
}
