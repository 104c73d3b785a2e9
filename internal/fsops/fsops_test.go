package fsops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestClassificationFromMode(t *testing.T) {
	cases := []struct {
		mode uint32
		want Classification
	}{
		{unix.S_IFREG, RegularFile},
		{unix.S_IFDIR, Directory},
		{unix.S_IFLNK, Symlink},
		{unix.S_IFIFO, Fifo},
		{unix.S_IFCHR, CharDevice},
		{unix.S_IFBLK, BlockDevice},
		{unix.S_IFSOCK, Socket},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassificationFromMode(c.mode|0644))
	}
}

func TestEncodeDecodeDeviceRoundTrip(t *testing.T) {
	cases := []struct{ major, minor uint32 }{
		{1, 5}, {8, 0}, {0, 0}, {4095, 255}, {0xfffff, 0xffffff},
	}
	for _, c := range cases {
		enc := EncodeDevice(c.major, c.minor)
		major, minor := DecodeDevice(enc)
		assert.Equal(t, c.major, major)
		assert.Equal(t, c.minor, minor)
	}
}

func TestOpenDirectoryAndStatxAt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello, World!"), 0644))

	h, err := OpenDirectory(ctx, dir)
	require.NoError(t, err)
	defer h.Close()

	m, err := StatxAt(ctx, h, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(13), m.Size)
	assert.Equal(t, RegularFile, m.Classification)
}

func TestReadWriteCopyRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src.txt")
	dstPath := filepath.Join(dir, "dst.txt")
	content := []byte("Hello, World!")
	require.NoError(t, os.WriteFile(srcPath, content, 0644))

	srcFd, err := unix.Open(srcPath, unix.O_RDONLY, 0)
	require.NoError(t, err)
	defer unix.Close(srcFd)

	dstFd, err := unix.Open(dstPath, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
	require.NoError(t, err)
	defer unix.Close(dstFd)

	copied, err := ReadWriteCopy(ctx, srcFd, dstFd, 4096)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), copied)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSymlinkAtAndReadlinkAt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0640))

	h, err := OpenDirectory(ctx, dir)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, SymlinkAt(ctx, "b.txt", h.Fd(), "c"))

	target, err := ReadlinkAt(ctx, h.Fd(), "c")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", target)
}

func TestLinkAtCreatesHardlink(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orig.txt"), []byte("x"), 0644))

	h, err := OpenDirectory(ctx, dir)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, LinkAt(ctx, h.Fd(), "orig.txt", h.Fd(), "link.txt"))

	var st1, st2 unix.Stat_t
	require.NoError(t, unix.Stat(filepath.Join(dir, "orig.txt"), &st1))
	require.NoError(t, unix.Stat(filepath.Join(dir, "link.txt"), &st2))
	assert.Equal(t, st1.Ino, st2.Ino)
	assert.EqualValues(t, 2, st1.Nlink)
}

func TestXattrRoundTrip(t *testing.T) {
	if !XattrSupported {
		t.Skip("xattrs not supported on this platform")
	}
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	err := SetXattr(ctx, path, "user.localsync_test", []byte("value"), true)
	if err != nil {
		t.Skipf("xattrs unsupported on this filesystem: %v", err)
	}

	names, err := ListXattr(ctx, path, true)
	require.NoError(t, err)
	assert.Contains(t, names, "user.localsync_test")

	value, err := GetXattr(ctx, path, "user.localsync_test", true)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)
}

func TestUtimensAtNanosecondFidelity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0644))

	h, err := OpenDirectory(ctx, dir)
	require.NoError(t, err)
	defer h.Close()

	want := Timespec{Seconds: 1609459200, Nanos: 123456789} // 2021-01-01T00:00:00.123456789Z
	require.NoError(t, UtimensAt(ctx, h.Fd(), "f.txt", want, want))

	m, err := StatxAt(ctx, h, "f.txt")
	require.NoError(t, err)
	assert.Equal(t, want.Seconds, m.Mtime.Seconds)
	assert.Equal(t, want.Nanos, m.Mtime.Nanos)
}
