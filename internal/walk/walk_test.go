package walk

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmalicki/localsync/internal/adaptive"
	"github.com/jmalicki/localsync/internal/fsops"
	"github.com/jmalicki/localsync/internal/tracker"
)

func newController() *adaptive.Controller {
	return adaptive.New(16, nil)
}

// TestWalkDoesNotDeadlockWhenTreeDepthExceedsPermitPool grounds spec §5's
// "no user code holds a permit across a point that could deadlock waiting
// for a permit": a permit pool smaller than the tree's nesting depth must
// still complete, because directory recursion does not hold a permit
// across its own descendants' traversal.
func TestWalkDoesNotDeadlockWhenTreeDepthExceedsPermitPool(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := t.TempDir()

	const depth = 8 // deeper than the 2-permit pool below
	dir := src
	for i := 0; i < depth; i++ {
		dir = filepath.Join(dir, "d")
		require.NoError(t, os.Mkdir(dir, 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaf.txt"), []byte("x"), 0644))

	handlers := Handlers{
		File: func(ctx context.Context, e Entry, dstDir *fsops.DirectoryHandle) error {
			return nil
		},
		EnterDir: func(ctx context.Context, e Entry, dstParent *fsops.DirectoryHandle) (*fsops.DirectoryHandle, error) {
			childPath := filepath.Join(dstParent.Path(), e.Name)
			require.NoError(t, os.Mkdir(childPath, 0755))
			return fsops.OpenDirectory(ctx, childPath)
		},
		LeaveDir: func(ctx context.Context, e Entry, d *fsops.DirectoryHandle) error { return nil },
	}

	tr := tracker.New()
	// Only 2 permits for a tree 8 directories deep: if a directory held
	// its permit across its own subtree's traversal, every permit would
	// end up stuck on a blocked ancestor and the walk would hang forever.
	w := New(tr, adaptive.New(2, nil), handlers, nil, nil)

	dstHandle, err := fsops.OpenDirectory(ctx, dst)
	require.NoError(t, err)
	defer dstHandle.Close()

	done := make(chan struct {
		stats Stats
		err   error
	}, 1)
	go func() {
		stats, err := w.Walk(ctx, src, dstHandle)
		done <- struct {
			stats Stats
			err   error
		}{stats, err}
	}()

	select {
	case result := <-done:
		require.NoError(t, result.err)
		assert.Equal(t, 1, result.stats.FilesVisited)
		assert.Equal(t, depth+1, result.stats.DirsVisited) // root + depth nested dirs
	case <-time.After(10 * time.Second):
		t.Fatal("Walk deadlocked: permit pool smaller than tree depth never completed")
	}
}

func TestWalkVisitsFilesAndDirsAndFinalizesParentAfterChildren(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("y"), 0644))

	var mu sync.Mutex
	var visitedFiles []string
	var leftDirsInOrder []string

	handlers := Handlers{
		File: func(ctx context.Context, e Entry, dstDir *fsops.DirectoryHandle) error {
			mu.Lock()
			visitedFiles = append(visitedFiles, e.RelPath)
			mu.Unlock()
			return nil
		},
		EnterDir: func(ctx context.Context, e Entry, dstParent *fsops.DirectoryHandle) (*fsops.DirectoryHandle, error) {
			childPath := filepath.Join(dstParent.Path(), e.Name)
			require.NoError(t, os.Mkdir(childPath, 0755))
			return fsops.OpenDirectory(ctx, childPath)
		},
		LeaveDir: func(ctx context.Context, e Entry, d *fsops.DirectoryHandle) error {
			mu.Lock()
			leftDirsInOrder = append(leftDirsInOrder, e.RelPath)
			mu.Unlock()
			return nil
		},
	}

	tr := tracker.New()
	w := New(tr, newController(), handlers, nil, nil)

	dstHandle, err := fsops.OpenDirectory(ctx, dst)
	require.NoError(t, err)
	defer dstHandle.Close()

	stats, err := w.Walk(ctx, src, dstHandle)
	require.NoError(t, err)

	sort.Strings(visitedFiles)
	assert.Equal(t, []string{"sub/nested.txt", "top.txt"}, visitedFiles)
	assert.Equal(t, 2, stats.FilesVisited)
	assert.Equal(t, 2, stats.DirsVisited) // root + sub

	// "sub" must be finalized (LeaveDir) before the root.
	require.Len(t, leftDirsInOrder, 2)
	assert.Equal(t, "sub", leftDirsInOrder[0])
	assert.Equal(t, "", leftDirsInOrder[1])
}

func TestWalkSkipsEntryExcludedByFilter(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "keep.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "skip.txt"), []byte("x"), 0644))

	var visited []string
	handlers := Handlers{
		File: func(ctx context.Context, e Entry, dstDir *fsops.DirectoryHandle) error {
			visited = append(visited, e.RelPath)
			return nil
		},
	}

	filter := func(relPath string, classification fsops.Classification) bool {
		return relPath != "skip.txt"
	}

	tr := tracker.New()
	w := New(tr, newController(), handlers, filter, nil)

	dstHandle, err := fsops.OpenDirectory(ctx, dst)
	require.NoError(t, err)
	defer dstHandle.Close()

	_, err = w.Walk(ctx, src, dstHandle)
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.txt"}, visited)
}

func TestWalkRecordsPerEntryErrorsWithoutAbortingTraversal(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	dst := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "b.txt"), []byte("x"), 0644))

	var mu sync.Mutex
	var visited []string
	handlers := Handlers{
		File: func(ctx context.Context, e Entry, dstDir *fsops.DirectoryHandle) error {
			mu.Lock()
			defer mu.Unlock()
			visited = append(visited, e.RelPath)
			if e.RelPath == "a.txt" {
				return assert.AnError
			}
			return nil
		},
	}

	tr := tracker.New()
	w := New(tr, newController(), handlers, nil, nil)

	dstHandle, err := fsops.OpenDirectory(ctx, dst)
	require.NoError(t, err)
	defer dstHandle.Close()

	stats, err := w.Walk(ctx, src, dstHandle)
	require.NoError(t, err) // per-entry failure must not be fatal

	sort.Strings(visited)
	assert.Equal(t, []string{"a.txt", "b.txt"}, visited)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "a.txt", stats.Errors[0].RelPath)
}
