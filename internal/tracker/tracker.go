// Package tracker implements the per-run filesystem-boundary pin and
// hardlink registry described in spec §4.4. It is the single source
// of truth for hardlink decisions: the copy engine consults it on
// every regular-file entry and either copies data and marks the
// inode materialized, or links to the previously materialized
// destination.
package tracker

import "sync"

// inodeKey is the (device, inode) identity spec §3 keys the hardlink
// registry on.
type inodeKey struct {
	dev uint64
	ino uint64
}

type registryEntry struct {
	destination string
	materialized bool
}

// Tracker holds the device-id pin and hardlink registry for one run.
// It is shared by every task within the run under a single mutex;
// the mutex is held only to mutate its two maps, never across I/O
// (spec §5's locking discipline).
type Tracker struct {
	mu sync.Mutex

	sourceDevice    uint64
	sourceDeviceSet bool

	registry map[inodeKey]*registryEntry

	uniqueFilesSeen     int
	hardlinkGroups      int
	totalRegisteredLinks int
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{registry: make(map[inodeKey]*registryEntry)}
}

// SetSourceDevice pins the device id of the source root. It must be
// called exactly once, at the start of a run.
func (t *Tracker) SetSourceDevice(devID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourceDevice = devID
	t.sourceDeviceSet = true
}

// IsSameFilesystem reports whether devID equals the pinned source
// device. Before SetSourceDevice has been called it always reports
// false (there is nothing to be "same" as yet).
func (t *Tracker) IsSameFilesystem(devID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sourceDeviceSet && devID == t.sourceDevice
}

// Register records a (dev, inode) as a hardlink candidate. It returns
// true iff this is the first time the inode has been seen AND
// nlink > 1. Entries with nlink == 1 are never stored (spec §4.4).
func (t *Tracker) Register(entryPath string, devID, inode uint64, nlink uint64) bool {
	if nlink <= 1 {
		return false
	}
	key := inodeKey{dev: devID, ino: inode}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.uniqueFilesSeen++
	t.totalRegisteredLinks++

	if _, exists := t.registry[key]; exists {
		return false
	}
	t.registry[key] = &registryEntry{}
	t.hardlinkGroups++
	return true
}

// IsInodeMaterialized reports whether mark_materialized has already
// been called for (devID, inode).
func (t *Tracker) IsInodeMaterialized(devID, inode uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.registry[inodeKey{dev: devID, ino: inode}]
	return ok && e.materialized
}

// MarkMaterialized records destination as the first-copied path for
// (devID, inode). It may be called at most once per inode with effect;
// subsequent calls are no-ops — "first writer wins" (spec §4.4).
func (t *Tracker) MarkMaterialized(devID, inode uint64, destination string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.registry[inodeKey{dev: devID, ino: inode}]
	if !ok {
		// Defensive: an inode can only be marked materialized after
		// Register returned true for it, which always inserts an
		// entry first. If this happens, there's nothing to mark.
		return
	}
	if e.materialized {
		return
	}
	e.materialized = true
	e.destination = destination
}

// LookupDestination returns the materialized destination path for
// (devID, inode), if any.
func (t *Tracker) LookupDestination(devID, inode uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.registry[inodeKey{dev: devID, ino: inode}]
	if !ok || !e.materialized {
		return "", false
	}
	return e.destination, true
}

// Stats is the snapshot returned by Tracker.Stats.
type Stats struct {
	UniqueFilesSeen      int
	HardlinkGroups       int
	TotalRegisteredLinks int
	SourceDevice         uint64
}

// Stats returns the tracker's current counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		UniqueFilesSeen:      t.uniqueFilesSeen,
		HardlinkGroups:       t.hardlinkGroups,
		TotalRegisteredLinks: t.totalRegisteredLinks,
		SourceDevice:         t.sourceDevice,
	}
}
