// Package config defines the typed Options bundle threaded through
// the orchestrator, traversal engine, and copy engine. It plays the
// role fs/config/configstruct plays in the teacher: a plain struct
// built by the caller, with no flag-registration half (that belongs
// to the out-of-scope CLI front-end).
package config

import (
	"runtime"

	"github.com/jmalicki/localsync/internal/fsops"
)

// Options bundles the preservation flags, concurrency budget, and
// run-mode switches described in spec §6.
type Options struct {
	// Perms preserves permission bits (including suid/sgid/sticky
	// where permitted).
	Perms bool
	// Times preserves atime+mtime at nanosecond resolution.
	Times bool
	// Atimes / Crtimes name finer-grained time subsets. The copy
	// engine does not consult them: atime is preserved as part of
	// Times, and creation time is never set.
	Atimes  bool
	Crtimes bool
	// Owner / Group preserve uid/gid respectively.
	Owner bool
	Group bool
	// Symlinks recreates symlinks as symlinks. When disabled, symlink
	// entries are skipped (they are not followed).
	Symlinks bool
	// HardLinks preserves hardlink groups as hardlinks on the
	// destination.
	HardLinks bool
	// Devices recreates fifos, sockets, and character/block devices
	// via mknod.
	Devices bool
	// Xattr preserves extended attributes.
	Xattr bool
	// ACL preserves POSIX ACLs. Permitted without Perms (spec §4.7).
	ACL bool

	// DryRun reports planned actions without mutating the
	// destination (SPEC_FULL.md §3 supplement).
	DryRun bool

	// Concurrency bounds the number of entries processed at once,
	// seeding internal/adaptive's Controller. Zero selects a
	// GOMAXPROCS-scaled default.
	Concurrency int

	// Umask is not consulted by the copy engine. When Perms is
	// disabled, new directories are created with mode 0777 and new
	// files with 0666, and the kernel narrows both by the process
	// umask.
	Umask int

	// Filter, when non-nil, is consulted by the traversal engine for
	// every entry; returning false skips the entry and its subtree.
	// Mirrors the narrow seam fs/filter.Filter occupies relative to
	// fs/walk in the teacher, without importing a parser.
	Filter EntryFilter
}

// EntryFilter decides whether relPath (the entry's path relative to
// the source root) should be visited, given its classification tag.
// A nil EntryFilter visits everything.
type EntryFilter func(relPath string, classification fsops.Classification) bool

// Archive returns the preset expansion of the `archive` flag from
// spec §6: perms, times, owner, group, symlinks, devices, hardlinks.
func Archive() Options {
	return Options{
		Perms:     true,
		Times:     true,
		Owner:     true,
		Group:     true,
		Symlinks:  true,
		Devices:   true,
		HardLinks: true,
	}
}

// ResolvedConcurrency returns Concurrency if set, else a
// GOMAXPROCS-scaled default matching internal/fsops's executor sizing
// convention.
func (o Options) ResolvedConcurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return 4 * runtime.GOMAXPROCS(0)
}
