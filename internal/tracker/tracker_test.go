package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSourceDeviceAndIsSameFilesystem(t *testing.T) {
	tr := New()
	assert.False(t, tr.IsSameFilesystem(42))

	tr.SetSourceDevice(42)
	assert.True(t, tr.IsSameFilesystem(42))
	assert.False(t, tr.IsSameFilesystem(7))
}

func TestRegisterIgnoresSingleLinkEntries(t *testing.T) {
	tr := New()
	assert.False(t, tr.Register("/a", 1, 100, 1))
	assert.Equal(t, 0, tr.Stats().HardlinkGroups)
}

// TestRegisterFirstWriterWins grounds spec §8 scenario 3: a group of
// hardlinked source files must materialize data exactly once and every
// subsequent path in the group links to that first destination.
func TestRegisterFirstWriterWins(t *testing.T) {
	tr := New()

	first := tr.Register("/src/a", 1, 100, 3)
	second := tr.Register("/src/b", 1, 100, 3)
	third := tr.Register("/src/c", 1, 100, 3)

	require.True(t, first)
	assert.False(t, second)
	assert.False(t, third)

	assert.False(t, tr.IsInodeMaterialized(1, 100))
	tr.MarkMaterialized(1, 100, "/dst/a")
	assert.True(t, tr.IsInodeMaterialized(1, 100))

	dest, ok := tr.LookupDestination(1, 100)
	require.True(t, ok)
	assert.Equal(t, "/dst/a", dest)

	// A second MarkMaterialized call must not overwrite the first.
	tr.MarkMaterialized(1, 100, "/dst/b")
	dest, ok = tr.LookupDestination(1, 100)
	require.True(t, ok)
	assert.Equal(t, "/dst/a", dest)
}

func TestDistinctInodesAreIndependentGroups(t *testing.T) {
	tr := New()
	require.True(t, tr.Register("/src/a", 1, 100, 2))
	require.True(t, tr.Register("/src/b", 1, 200, 2))

	stats := tr.Stats()
	assert.Equal(t, 2, stats.HardlinkGroups)
	assert.Equal(t, 2, stats.UniqueFilesSeen)
	assert.Equal(t, 2, stats.TotalRegisteredLinks)
}

func TestSameInodeDifferentDeviceIsDistinctGroup(t *testing.T) {
	tr := New()
	require.True(t, tr.Register("/src/a", 1, 100, 2))
	require.True(t, tr.Register("/other/a", 2, 100, 2))
	assert.Equal(t, 2, tr.Stats().HardlinkGroups)
}

func TestLookupDestinationBeforeMaterializedIsAbsent(t *testing.T) {
	tr := New()
	require.True(t, tr.Register("/src/a", 1, 100, 2))
	_, ok := tr.LookupDestination(1, 100)
	assert.False(t, ok)
}

func TestStatsCountsEveryRegisterCall(t *testing.T) {
	tr := New()
	tr.Register("/src/a", 1, 100, 3)
	tr.Register("/src/b", 1, 100, 3)
	tr.Register("/src/c", 1, 200, 4)
	tr.Register("/src/d", 1, 300, 1) // nlink==1, never stored

	stats := tr.Stats()
	assert.Equal(t, 2, stats.HardlinkGroups)
	assert.Equal(t, 3, stats.UniqueFilesSeen)
	assert.Equal(t, 3, stats.TotalRegisteredLinks)
}
