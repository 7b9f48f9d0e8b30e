package main

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/media"
	"github.com/rstms/vfs/posix"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createImages(t *testing.T, fs afero.Fs, names ...string) {
	for _, name := range names {
		img, err := media.CreateImage(fs, name, 256*media.KB)
		require.Nil(t, err)
		require.Nil(t, img.Close())
	}
}

func openSession(t *testing.T, fs afero.Fs, readOnly bool, names ...string) *session {
	s, err := newSession(fs, posix.DefaultConfig(), names, readOnly, false, quietLogger())
	require.Nil(t, err)
	return s
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"720k", 720 * 1024},
		{"4M", 4 * 1024 * 1024},
		{" 1g ", 1024 * 1024 * 1024},
	}
	for _, tc := range tests {
		got, err := parseSize(tc.in)
		require.Nil(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
	for _, bad := range []string{"", "k", "-5", "1.5m", "ten"} {
		_, err := parseSize(bad)
		require.NotNil(t, err, bad)
	}
}

func TestLoadConfig(t *testing.T) {
	v := viper.New()
	cfg, err := loadConfig(v)
	require.Nil(t, err)
	require.Equal(t, posix.DefaultConfig(), cfg)

	v = viper.New()
	v.SetConfigType("yaml")
	require.Nil(t, v.ReadConfig(strings.NewReader(`
drives: 2
max_files: 32
io_lock: shared
lock_timeout: 250ms
allow_nested_mounts: true
`)))
	cfg, err = loadConfig(v)
	require.Nil(t, err)
	require.Equal(t, 2, cfg.Drives)
	require.Equal(t, 32, cfg.MaxFiles)
	require.Equal(t, posix.DefaultConfig().MaxDirs, cfg.MaxDirs)
	require.Equal(t, "shared", cfg.IOLock)
	require.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	require.True(t, cfg.AllowNestedMounts)

	t.Setenv("VFS_MAX_DIRS", "3")
	v = viper.New()
	v.SetEnvPrefix("VFS")
	v.AutomaticEnv()
	cfg, err = loadConfig(v)
	require.Nil(t, err)
	require.Equal(t, 3, cfg.MaxDirs)
}

func TestSessionRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	createImages(t, fs, "zero.img", "one.img")
	require.Nil(t, afero.WriteFile(fs, "hello.txt", []byte("hello, volume\n"), 0o644))

	s := openSession(t, fs, false, "zero.img", "one.img")
	require.Nil(t, s.mkfs("AUTO", ""))
	require.Nil(t, s.close())

	s = openSession(t, fs, false, "zero.img", "one.img")
	require.Nil(t, s.mountAll())
	require.Nil(t, s.put("hello.txt", "/dsk0/hello.txt"))
	require.Nil(t, s.task.Mkdir("0:/docs", 0o777))
	require.Nil(t, s.task.Rename("/dsk0/hello.txt", "/dsk1/moved.txt"))
	require.Nil(t, s.close())

	// everything survives a fresh session on the image files
	s = openSession(t, fs, true, "zero.img", "one.img")
	require.Nil(t, s.mountAll())
	defer s.close()

	var out bytes.Buffer
	require.Nil(t, s.cat(&out, "/dsk1/moved.txt"))
	require.Equal(t, "hello, volume\n", out.String())

	out.Reset()
	require.Nil(t, s.list(&out, "/dsk0"))
	require.Equal(t, "d          0 docs\n", out.String())

	out.Reset()
	require.Nil(t, s.list(&out, "/"))
	require.Contains(t, out.String(), "l          0 dsk0\n")
	require.Contains(t, out.String(), "l          0 dsk1\n")

	out.Reset()
	require.Nil(t, s.stat(&out, "1:/moved.txt"))
	require.Contains(t, out.String(), "size:  14\n")
	require.Contains(t, out.String(), "drive: 1\n")

	out.Reset()
	require.Nil(t, s.df(&out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "/dsk0")
	require.Contains(t, lines[2], "/dsk1")

	// read-only sessions mount read-only
	require.NotNil(t, s.put("hello.txt", "/dsk0/again.txt"))
	_, err := s.task.Open("/dsk0/x", vfs.O_CREAT|vfs.O_WRONLY, 0o666)
	require.Equal(t, vfs.EROFS, err)
}

func TestSessionErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := newSession(fs, posix.DefaultConfig(), []string{"missing.img"}, false, false, quietLogger())
	require.NotNil(t, err)

	cfg := posix.DefaultConfig()
	cfg.Drives = 1
	createImages(t, fs, "a.img", "b.img")
	_, err = newSession(fs, cfg, []string{"a.img", "b.img"}, false, false, quietLogger())
	require.NotNil(t, err)

	// an unformatted image cannot be mounted
	s := openSession(t, fs, false, "a.img")
	require.NotNil(t, s.mountAll())
	require.Nil(t, s.close())
}

func TestInMemorySession(t *testing.T) {
	fs := afero.NewMemMapFs()
	createImages(t, fs, "ram.img")
	require.Nil(t, afero.WriteFile(fs, "note.txt", []byte("kept"), 0o644))
	s := openSession(t, fs, false, "ram.img")
	require.Nil(t, s.mkfs("AUTO", ""))
	require.Nil(t, s.close())

	inMemory := func() *session {
		s, err := newSession(fs, posix.DefaultConfig(), []string{"ram.img"}, false, true, quietLogger())
		require.Nil(t, err)
		require.Nil(t, s.mountAll())
		return s
	}

	// an aborted session leaves the image file untouched
	s = inMemory()
	require.Nil(t, s.put("note.txt", "/dsk0/dropped.txt"))
	require.Nil(t, s.abort())

	s = inMemory()
	require.Nil(t, s.put("note.txt", "/dsk0/kept.txt"))
	require.Nil(t, s.close())

	s = openSession(t, fs, true, "ram.img")
	defer s.close()
	require.Nil(t, s.mountAll())
	var out bytes.Buffer
	require.Nil(t, s.list(&out, "/dsk0"))
	require.Equal(t, "-          4 kept.txt\n", out.String())
}

func TestMkfsCommand(t *testing.T) {
	saved := hostFs
	hostFs = afero.NewMemMapFs()
	defer func() { hostFs = saved }()

	rootCmd.SetArgs([]string{"-i", "new.img", "mkfs", "--size", "128k", "--backend", "EFSL"})
	require.Nil(t, rootCmd.Execute())

	info, err := hostFs.Stat("new.img")
	require.Nil(t, err)
	require.Equal(t, int64(128*media.KB), info.Size())

	s := openSession(t, hostFs, true, "new.img")
	defer s.close()
	require.Nil(t, s.mountAll())
	mounts, err := s.v.Mounts()
	require.Nil(t, err)
	require.Len(t, mounts, 1)
	require.Equal(t, "EFSL", mounts[0].Backend)
}
