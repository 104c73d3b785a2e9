package fsops

import (
	"context"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/localsync/internal/copyerr"
)

// Classification is one of the kernel file-type tags recognized by
// spec §3, produced without following symlinks.
type Classification int

// Recognized classifications.
const (
	Unknown Classification = iota
	RegularFile
	Directory
	Symlink
	Fifo
	CharDevice
	BlockDevice
	Socket
)

func (c Classification) String() string {
	switch c {
	case RegularFile:
		return "file"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case Fifo:
		return "fifo"
	case CharDevice:
		return "char-device"
	case BlockDevice:
		return "block-device"
	case Socket:
		return "socket"
	default:
		return "unknown"
	}
}

// ClassificationFromMode derives a Classification from the type bits
// of a stat mode, matching the kernel's file-type byte semantics.
func ClassificationFromMode(mode uint32) Classification {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return RegularFile
	case unix.S_IFDIR:
		return Directory
	case unix.S_IFLNK:
		return Symlink
	case unix.S_IFIFO:
		return Fifo
	case unix.S_IFCHR:
		return CharDevice
	case unix.S_IFBLK:
		return BlockDevice
	case unix.S_IFSOCK:
		return Socket
	default:
		return Unknown
	}
}

// Metadata is the extended metadata snapshot from spec §3, captured
// once per source entry.
type Metadata struct {
	Size           int64
	Mode           uint32
	Classification Classification
	UID, GID       uint32
	Atime, Mtime, Ctime Timespec
	Nlink          uint64
	Dev            uint64
	Ino            uint64
	Rdev           uint64 // valid only for char/block device entries
	Xattrs         map[string][]byte
}

// StatxAt captures a Metadata snapshot for name relative to dir's
// dirfd, without following a trailing symlink. If the statx(2)
// syscall is unavailable (pre-4.11 kernel), it falls back to
// fstatat(2) for that call; statx is tried again on every call.
func StatxAt(ctx context.Context, dir *DirectoryHandle, name string) (Metadata, error) {
	var m Metadata
	err := defaultExecutor.run(ctx, func() error {
		var stat unix.Statx_t
		e := unix.Statx(dir.Fd(), name, unix.AT_SYMLINK_NOFOLLOW, statxWantMask, &stat)
		if e == unix.ENOSYS {
			return statFallback(dir.Fd(), name, &m)
		}
		if e != nil {
			return e
		}
		m = metadataFromStatx(stat)
		return nil
	})
	if err != nil {
		return Metadata{}, copyerr.New(copyerr.Transport, "statx", name, "", err)
	}
	return m, nil
}

const statxWantMask = unix.STATX_TYPE | unix.STATX_MODE | unix.STATX_UID |
	unix.STATX_GID | unix.STATX_ATIME | unix.STATX_MTIME | unix.STATX_CTIME |
	unix.STATX_NLINK | unix.STATX_INO | unix.STATX_SIZE

func metadataFromStatx(stat unix.Statx_t) Metadata {
	return Metadata{
		Size:           int64(stat.Size),
		Mode:           uint32(stat.Mode),
		Classification: ClassificationFromMode(uint32(stat.Mode)),
		UID:            stat.Uid,
		GID:            stat.Gid,
		Atime:          Timespec{Seconds: stat.Atime.Sec, Nanos: stat.Atime.Nsec},
		Mtime:          Timespec{Seconds: stat.Mtime.Sec, Nanos: stat.Mtime.Nsec},
		Ctime:          Timespec{Seconds: stat.Ctime.Sec, Nanos: stat.Ctime.Nsec},
		Nlink:          uint64(stat.Nlink),
		Dev:            unix.Mkdev(stat.Dev_major, stat.Dev_minor),
		Ino:            stat.Ino,
		Rdev:           unix.Mkdev(stat.Rdev_major, stat.Rdev_minor),
	}
}

func statFallback(dirfd int, name string, m *Metadata) error {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return err
	}
	*m = Metadata{
		Size:           st.Size,
		Mode:           st.Mode,
		Classification: ClassificationFromMode(st.Mode),
		UID:            st.Uid,
		GID:            st.Gid,
		Atime:          Timespec{Seconds: st.Atim.Sec, Nanos: uint32(st.Atim.Nsec)},
		Mtime:          Timespec{Seconds: st.Mtim.Sec, Nanos: uint32(st.Mtim.Nsec)},
		Ctime:          Timespec{Seconds: st.Ctim.Sec, Nanos: uint32(st.Ctim.Nsec)},
		Nlink:          uint64(st.Nlink),
		Dev:            uint64(st.Dev),
		Ino:            st.Ino,
		Rdev:           uint64(st.Rdev),
	}
	return nil
}
