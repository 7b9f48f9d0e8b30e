package posix

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/fat"
	"github.com/stretchr/testify/require"
)

// gatedBackend pauses once, right after the armed backend call returns,
// until the test lets it continue.
type gatedBackend struct {
	vfs.Backend
	op      string
	reached chan struct{}
	resume  chan struct{}
	once    sync.Once
}

func newGatedBackend(name string) *gatedBackend {
	return &gatedBackend{Backend: fat.New(name)}
}

// arm selects the call to pause after. It must run before the goroutine
// making that call is started.
func (g *gatedBackend) arm(op string) {
	g.op = op
	g.reached = make(chan struct{})
	g.resume = make(chan struct{})
}

func (g *gatedBackend) pause(op string) {
	if g.op != op {
		return
	}
	g.once.Do(func() {
		close(g.reached)
		<-g.resume
	})
}

func (g *gatedBackend) Mount(drive int, dev vfs.BlockDevice) (vfs.FSType, error) {
	t, err := g.Backend.Mount(drive, dev)
	g.pause("mount")
	return t, err
}

func (g *gatedBackend) Open(path string, mode vfs.AccessMode) (vfs.File, error) {
	f, err := g.Backend.Open(path, mode)
	if err != nil {
		return nil, err
	}
	g.pause("open")
	return &gatedFile{File: f, g: g}, nil
}

func (g *gatedBackend) OpenDir(path string) (vfs.Dir, error) {
	d, err := g.Backend.OpenDir(path)
	g.pause("opendir")
	return d, err
}

type gatedFile struct {
	vfs.File
	g *gatedBackend
}

func (f *gatedFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	f.g.pause("read")
	return n, err
}

func TestOpenRacingUnmount(t *testing.T) {
	g := newGatedBackend("GATED")
	f := newFixture(t, DefaultConfig(), WithBackends(g))
	f.mounted(t, "0:GATED", "/dsk0")
	other := f.v.NewTask("unmounter")

	g.arm("open")
	done := make(chan error, 1)
	go func() {
		_, err := f.task.Open("/dsk0/late.txt", vfs.O_CREAT|vfs.O_WRONLY, 0o666)
		done <- err
	}()
	<-g.reached
	require.Nil(t, other.Unmount("/dsk0"))
	close(g.resume)

	require.Equal(t, vfs.ENODEV, <-done)
	require.Equal(t, 0, f.v.OpenFiles())
	mounts, err := f.v.Mounts()
	require.Nil(t, err)
	require.Empty(t, mounts)

	// the orphaned handle holds nothing on the remounted volume
	require.Nil(t, f.task.Mount("AUTO", "/dsk0", 0, "0:GATED"))
	fd, err := f.task.Open("/dsk0/late.txt", vfs.O_WRONLY, 0)
	require.Nil(t, err)
	require.Nil(t, f.task.Close(fd))
}

func TestOpendirRacingUnmount(t *testing.T) {
	g := newGatedBackend("GATED")
	f := newFixture(t, DefaultConfig(), WithBackends(g))
	f.mounted(t, "0:GATED", "/dsk0")
	other := f.v.NewTask("unmounter")

	g.arm("opendir")
	done := make(chan error, 1)
	go func() {
		_, err := f.task.Opendir("/dsk0")
		done <- err
	}()
	<-g.reached
	require.Nil(t, other.Unmount("/dsk0"))
	close(g.resume)

	require.Equal(t, vfs.ENODEV, <-done)
	require.Equal(t, 0, f.v.OpenDirs())
}

func TestRenameRacingUnmount(t *testing.T) {
	g := newGatedBackend("GATED")
	f := newFixture(t, DefaultConfig(), WithBackends(g))
	f.mounted(t, "0:GATED", "/src")
	f.mounted(t, "1:EFSL", "/dst")
	payload := bytes.Repeat([]byte("0123456789abcdef"), 3*copyChunk/16+1)
	f.create(t, "/src/big.bin", payload)
	other := f.v.NewTask("unmounter")

	g.arm("read")
	done := make(chan error, 1)
	go func() {
		done <- f.task.Rename("/src/big.bin", "/dst/big.bin")
	}()
	<-g.reached
	require.Nil(t, other.Unmount("/src"))
	close(g.resume)

	require.Equal(t, vfs.ENODEV, <-done)
	_, err := f.task.Stat("/dst/big.bin")
	require.Equal(t, vfs.ENOENT, err)
	require.Equal(t, 0, f.v.OpenFiles())

	require.Nil(t, f.task.Mount("AUTO", "/src", 0, "0:GATED"))
	require.Equal(t, payload, f.contents(t, "/src/big.bin"))
}

func TestMountRunsOutsideGlobalLock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockTimeout = 200 * time.Millisecond
	g := newGatedBackend("GATED")
	f := newFixture(t, cfg, WithBackends(g))
	f.mounted(t, "0:EFSL", "/dsk0")
	f.create(t, "/dsk0/a.txt", []byte("abc"))
	require.Nil(t, f.task.Mkfs("AUTO", "1:GATED"))
	other := f.v.NewTask("other")

	g.arm("mount")
	done := make(chan error, 1)
	go func() {
		done <- f.task.Mount("AUTO", "/dsk1", 0, "1:GATED")
	}()
	<-g.reached

	// the rest of the layer keeps working while the backend mounts
	st, err := other.Stat("/dsk0/a.txt")
	require.Nil(t, err)
	require.Equal(t, int64(3), st.Size)

	// the pending drive and point are reserved
	require.Equal(t, vfs.EBUSY, other.Mount("AUTO", "/other", 0, "1:"))
	require.Equal(t, vfs.EACCES, other.Mount("AUTO", "/dsk1", 0, "2:"))
	require.Equal(t, vfs.EBUSY, other.Mkfs("AUTO", "1:"))
	_, err = other.Stat("/dsk1")
	require.Equal(t, vfs.EINVAL, err)
	mounts, err := f.v.Mounts()
	require.Nil(t, err)
	require.Len(t, mounts, 1)

	close(g.resume)
	require.Nil(t, <-done)
	mounts, err = f.v.Mounts()
	require.Nil(t, err)
	require.Len(t, mounts, 2)
	require.Equal(t, "GATED", mounts[1].Backend)
	f.create(t, "/dsk1/b.txt", []byte("b"))
}
