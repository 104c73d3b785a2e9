package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// EncodeDevice packs a (major, minor) device pair into the rdev
// encoding used by mknod(2), per spec §4.6:
//
//	((major & 0xfff) << 8) | (minor & 0xff) |
//	((major & 0xfffff000) << 32) | ((minor & 0xffffff00) << 12)
func EncodeDevice(major, minor uint32) uint64 {
	maj := uint64(major)
	min := uint64(minor)
	return ((maj & 0xfff) << 8) | (min & 0xff) |
		((maj & 0xfffff000) << 32) | ((min & 0xffffff00) << 12)
}

// DecodeDevice is the inverse of EncodeDevice, used when re-deriving
// major/minor from a captured Metadata.Rdev for display or testing.
func DecodeDevice(dev uint64) (major, minor uint32) {
	major = uint32((dev >> 8) & 0xfff)
	major |= uint32((dev >> 32) & 0xfffff000)
	minor = uint32(dev & 0xff)
	minor |= uint32((dev >> 12) & 0xffffff00)
	return major, minor
}

// MknodAt creates a fifo, socket, or char/block device node at name
// relative to dirfd. mode must include the S_IFxxx type bits; dev is
// only consulted for char/block devices.
func MknodAt(ctx context.Context, dirfd int, name string, mode uint32, dev uint64) error {
	err := defaultExecutor.run(ctx, func() error {
		return unix.Mknodat(dirfd, name, mode, int(dev))
	})
	return copyerr.New(copyerr.Transport, "mknod_at", name, "", err)
}
