package vpath

import (
	"strings"
	"testing"

	"github.com/rstms/vfs"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"/", "/"},
		{"", "/"},
		{"//", "/"},
		{"/dsk0", "/dsk0"},
		{"/dsk0/", "/dsk0"},
		{"/dsk0//a///b/", "/dsk0/a/b"},
		{"/dsk0/a/../b", "/dsk0/b"},
		{"/dsk0/a/b/../..", "/dsk0"},
		{"/..", "/"},
		{"/../../x", "/x"},
		{"/a/./b/.", "/a/b"},
		{"/a/..b/c", "/a/..b/c"},
		{"a/b", "/a/b"},
	}
	for _, c := range cases {
		out, err := Clean(c.in)
		require.Nil(t, err)
		require.Equal(t, c.out, out, "Clean(%q)", c.in)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"", "/", "///a//b", "/a/../..", "x/./y/../z/", "/dsk0/..//dsk1/f.txt",
		"/a/b/c/../../d/", "/.../a", "//..//..//",
	}
	for _, in := range inputs {
		once, err := Clean(in)
		require.Nil(t, err)
		twice, err := Clean(once)
		require.Nil(t, err)
		require.Equal(t, once, twice, "input %q", in)
	}
}

func TestCleanTooLong(t *testing.T) {
	_, err := Clean("/" + strings.Repeat("x", MaxPath))
	require.ErrorIs(t, err, vfs.ENAMETOOLONG)

	// a long input that collapses below the bound is fine
	out, err := Clean(strings.Repeat("/", MaxPath*2) + "ok")
	require.Nil(t, err)
	require.Equal(t, "/ok", out)
}

func TestJoin(t *testing.T) {
	out, err := Join("/dsk0/sub", "../f.txt")
	require.Nil(t, err)
	require.Equal(t, "/dsk0/f.txt", out)

	out, err = Join("", "f.txt")
	require.Nil(t, err)
	require.Equal(t, "/f.txt", out)
}

func TestParseDrive(t *testing.T) {
	d, rest, ok := ParseDrive("0:")
	require.True(t, ok)
	require.Equal(t, 0, d)
	require.Equal(t, "", rest)

	d, rest, ok = ParseDrive("3:/a/b")
	require.True(t, ok)
	require.Equal(t, 3, d)
	require.Equal(t, "/a/b", rest)

	for _, bad := range []string{"", "0", "a:", "0:x", "/0:/a", "10:/"} {
		_, _, ok = ParseDrive(bad)
		require.False(t, ok, bad)
	}
}

func TestPhysical(t *testing.T) {
	require.Equal(t, "2:/a/b", Physical(2, "/a/b"))
	require.Equal(t, "0:/", Physical(0, ""))

	d, rest, err := SplitPhysical("1:/x//y/")
	require.Nil(t, err)
	require.Equal(t, 1, d)
	require.Equal(t, "/x/y", rest)

	_, _, err = SplitPhysical("/x")
	require.ErrorIs(t, err, vfs.EINVAL)
}

func TestParseDevice(t *testing.T) {
	class, n, ok := ParseDevice("/dev/i2c1")
	require.True(t, ok)
	require.Equal(t, vfs.DeviceI2C, class)
	require.Equal(t, 1, n)

	class, n, ok = ParseDevice("/dev/spi23")
	require.True(t, ok)
	require.Equal(t, vfs.DeviceSPI, class)
	require.Equal(t, 0x23, n)

	class, n, ok = ParseDevice("/dev/spi1f")
	require.True(t, ok)
	require.Equal(t, vfs.DeviceSPI, class)
	require.Equal(t, 0x1f, n)

	class, n, ok = ParseDevice("/dev/tty0")
	require.True(t, ok)
	require.Equal(t, vfs.DeviceTTY, class)
	require.Equal(t, 0, n)

	for _, bad := range []string{"/dev/i2c", "/dev/i2c12", "/dev/spi2", "/dev/spi234", "/dev/tty", "/dev/ttyx", "/dsk0/tty0", "/dev/ttyS0"} {
		_, _, ok = ParseDevice(bad)
		require.False(t, ok, bad)
	}
}

func TestDeviceNameRoundTrip(t *testing.T) {
	for _, name := range []string{"/dev/i2c4", "/dev/spi01", "/dev/spiab", "/dev/tty9"} {
		class, n, ok := ParseDevice(name)
		require.True(t, ok)
		require.Equal(t, name, DeviceName(class, n))
	}
}

func TestHasMountPrefix(t *testing.T) {
	require.True(t, HasMountPrefix("/a", "/a"))
	require.True(t, HasMountPrefix("/a/b", "/a"))
	require.True(t, HasMountPrefix("/anything", "/"))
	require.False(t, HasMountPrefix("/ab", "/a"))
	require.False(t, HasMountPrefix("/a", "/a/b"))
	require.False(t, HasMountPrefix("/a", ""))

	require.Equal(t, "/", TrimMount("/a", "/a"))
	require.Equal(t, "/b/c", TrimMount("/a/b/c", "/a"))
	require.Equal(t, "/x", TrimMount("/x", "/"))
}

func TestDirBase(t *testing.T) {
	require.Equal(t, "/", Dir("/a"))
	require.Equal(t, "/a", Dir("/a/b"))
	require.Equal(t, "/", Dir("/"))
	require.Equal(t, "b", Base("/a/b"))
	require.Equal(t, "", Base("/"))
	require.Nil(t, Components("/"))
	require.Equal(t, []string{"a", "b"}, Components("/a/b"))
}
