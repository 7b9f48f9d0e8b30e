// Package posix is the multi-backend syscall layer. A VFS owns the Mount
// Table, the File and Directory Descriptor Tables and the global mutex;
// a Task carries one caller's task-local state and exposes the syscalls.
package posix

import (
	"log/slog"
	"strings"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/internal/slot"
	"github.com/rstms/vfs/rtos"
)

type mountEntry struct {
	point    string
	backend  vfs.Backend
	fsType   vfs.FSType
	readOnly bool
	update   bool
	// gen identifies one mount of the drive; it changes on every mount.
	gen uint64

	// busy is set while a mount or mkfs of the drive runs outside the
	// global mutex; reserved is the point a pending mount will take.
	busy     bool
	reserved string
}

func (m *mountEntry) mounted() bool {
	return m.point != ""
}

// VFS is one independent instance of the syscall layer.
type VFS struct {
	cfg      Config
	log      *slog.Logger
	media    vfs.Media
	drivers  vfs.Drivers
	backends []vfs.Backend

	global    *rtos.Mutex
	fileLocks *rtos.IOLocks
	dirLocks  *rtos.IOLocks

	mounts    []mountEntry
	mountSeq  uint64
	files     *slot.Table[*openFile]
	dirs      *slot.Table[*dirDesc]
	transfers map[*transfer]struct{}
}

type Option func(*VFS)

func WithLogger(log *slog.Logger) Option {
	return func(v *VFS) { v.log = log }
}

func WithMedia(m vfs.Media) Option {
	return func(v *VFS) { v.media = m }
}

func WithDrivers(d vfs.Drivers) Option {
	return func(v *VFS) { v.drivers = d }
}

// WithBackends registers backends in mount priority order.
func WithBackends(backends ...vfs.Backend) Option {
	return func(v *VFS) { v.backends = append(v.backends, backends...) }
}

func New(cfg Config, opts ...Option) (*VFS, error) {
	mode, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	v := &VFS{
		cfg:       cfg,
		log:       slog.Default(),
		global:    rtos.NewMutex("vfs.global", cfg.LockTimeout),
		fileLocks: rtos.NewIOLocks("vfs.file", mode, cfg.LockTimeout),
		dirLocks:  rtos.NewIOLocks("vfs.dir", mode, cfg.LockTimeout),
		mounts:    make([]mountEntry, cfg.Drives),
		files:     slot.New[*openFile](cfg.MaxFiles),
		dirs:      slot.New[*dirDesc](cfg.MaxDirs),
		transfers: make(map[*transfer]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.media == nil {
		return nil, Fatalf("a media layer is required")
	}
	if len(v.backends) == 0 {
		return nil, Fatalf("at least one backend is required")
	}
	seen := make(map[string]bool)
	for _, b := range v.backends {
		name := strings.ToUpper(b.Name())
		if seen[name] {
			return nil, Fatalf("duplicate backend name %q", b.Name())
		}
		seen[name] = true
	}
	return v, nil
}

func (v *VFS) Config() Config {
	return v.cfg
}

// backend finds a registered backend by name, ignoring case.
func (v *VFS) backend(name string) vfs.Backend {
	for _, b := range v.backends {
		if strings.EqualFold(b.Name(), name) {
			return b
		}
	}
	return nil
}

// lock takes the global mutex.
func (v *VFS) lock() error {
	return v.global.Lock()
}

func (v *VFS) unlock() {
	v.global.Unlock()
}

// liveLocked reports whether drive still holds the mount a target was
// resolved against.
func (v *VFS) liveLocked(drive int, gen uint64) bool {
	m := &v.mounts[drive]
	return m.mounted() && m.gen == gen
}

// MountInfo describes one Mount Table slot.
type MountInfo struct {
	Drive    int
	Point    string
	Backend  string
	FSType   vfs.FSType
	ReadOnly bool
}

// Mounts lists the mounted drives in drive order.
func (v *VFS) Mounts() ([]MountInfo, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.unlock()
	var out []MountInfo
	for i := range v.mounts {
		m := &v.mounts[i]
		if !m.mounted() {
			continue
		}
		out = append(out, MountInfo{
			Drive:    i,
			Point:    m.point,
			Backend:  m.backend.Name(),
			FSType:   m.fsType,
			ReadOnly: m.readOnly,
		})
	}
	return out, nil
}

// OpenFiles and OpenDirs report descriptor table occupancy.
func (v *VFS) OpenFiles() int {
	if err := v.lock(); err != nil {
		return -1
	}
	defer v.unlock()
	return v.files.InUse()
}

func (v *VFS) OpenDirs() int {
	if err := v.lock(); err != nil {
		return -1
	}
	defer v.unlock()
	return v.dirs.InUse()
}
