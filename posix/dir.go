package posix

import (
	"github.com/rstms/vfs"
	"github.com/rstms/vfs/internal/slot"
	"github.com/rstms/vfs/rtos"
)

// DIR is an open directory stream.
type DIR struct {
	h slot.Handle
}

// dirDesc is a Directory Descriptor. A virtual descriptor (drive -1)
// has no backend stream and only yields mount point entries.
type dirDesc struct {
	mu      *rtos.Mutex
	drive   int
	dir     vfs.Dir
	first   int64
	logical string

	// links are the mount points directly below logical, yielded before
	// the backend entries; cursor indexes the next one.
	links  []string
	cursor int
	offset uint32
	closed bool
}

func (d *dirDesc) virtual() bool {
	return d.drive < 0
}

func (d *dirDesc) shutdown() error {
	if err := d.mu.Lock(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.dir != nil {
		return d.dir.Close()
	}
	return nil
}

func (d *dirDesc) begin() error {
	if err := d.mu.Lock(); err != nil {
		return err
	}
	if d.closed {
		d.mu.Unlock()
		return vfs.EBADF
	}
	return nil
}

// next yields one entry; ok is false at the end of the stream. Caller
// holds mu.
func (d *dirDesc) next() (vfs.Dirent, bool, error) {
	if d.cursor < len(d.links) {
		e := vfs.Dirent{Name: d.links[d.cursor], Type: vfs.DT_LNK}
		d.cursor++
		d.offset++
		return e, true, nil
	}
	if d.virtual() {
		return vfs.Dirent{}, false, nil
	}
	e, ok, err := d.dir.Read()
	if err != nil || !ok {
		return vfs.Dirent{}, false, err
	}
	d.offset++
	return e, true, nil
}

// reset returns the stream to its first entry with a fresh set of
// mount point links. Caller holds mu.
func (d *dirDesc) reset(links []string) error {
	if d.dir != nil {
		if err := d.dir.Seek(d.first); err != nil {
			return err
		}
	}
	d.links = links
	d.cursor = 0
	d.offset = 0
	return nil
}

func (v *VFS) dirOf(dirp *DIR) (*dirDesc, error) {
	if dirp == nil {
		return nil, vfs.EBADF
	}
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.unlock()
	d, ok := v.dirs.Get(dirp.h)
	if !ok {
		return nil, vfs.EBADF
	}
	return d, nil
}

func (v *VFS) childMounts(dir string) ([]string, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.unlock()
	return v.childMountsLocked(dir), nil
}

// Opendir opens a directory stream. A path that is only the prefix of
// deeper mount points opens as a virtual directory.
func (t *Task) Opendir(path string) (*DIR, error) {
	dirp, err := t.opendir(path)
	if err != nil {
		return nil, t.fail("opendir", path, err)
	}
	return dirp, nil
}

func (t *Task) opendir(path string) (*DIR, error) {
	logical, err := t.normalize(path)
	if err != nil {
		return nil, err
	}
	d := &dirDesc{mu: t.v.dirLocks.New(), drive: -1, logical: logical}
	tgt, err := t.v.resolveLogical(logical)
	if err == nil && tgt.device() {
		return nil, vfs.ENOTDIR
	}
	if err == nil {
		d.dir, err = tgt.mount.backend.OpenDir(tgt.physical)
	}
	switch {
	case err == nil:
		d.drive = tgt.drive
		d.first = d.dir.Tell()
	case t.v.partialMount(logical):
	default:
		return nil, err
	}

	if err := t.v.lock(); err != nil {
		if d.dir != nil {
			d.dir.Close()
		}
		return nil, err
	}
	defer t.v.unlock()
	if d.drive >= 0 && !t.v.liveLocked(d.drive, tgt.mount.gen) {
		d.dir.Close()
		return nil, vfs.ENODEV
	}
	d.links = t.v.childMountsLocked(logical)
	h, err := t.v.dirs.Alloc(d)
	if err != nil {
		if d.dir != nil {
			d.dir.Close()
		}
		return nil, vfs.ENFILE
	}
	return &DIR{h: h}, nil
}

// Readdir returns the next entry, or nil at the end of the stream.
func (t *Task) Readdir(dirp *DIR) (*vfs.Dirent, error) {
	e, err := t.readdir(dirp)
	if err != nil {
		return nil, t.fail("readdir", "", err)
	}
	return e, nil
}

func (t *Task) readdir(dirp *DIR) (*vfs.Dirent, error) {
	d, err := t.v.dirOf(dirp)
	if err != nil {
		return nil, err
	}
	if err := d.begin(); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	e, ok, err := d.next()
	if err != nil || !ok {
		return nil, err
	}
	return &e, nil
}

func (t *Task) Telldir(dirp *DIR) (int64, error) {
	d, err := t.v.dirOf(dirp)
	if err == nil {
		err = d.begin()
	}
	if err != nil {
		return -1, t.fail("telldir", "", err)
	}
	defer d.mu.Unlock()
	return int64(d.offset), nil
}

// Seekdir moves the stream to loc, a value from Telldir. Moving
// backwards rewinds and replays the stream.
func (t *Task) Seekdir(dirp *DIR, loc int64) error {
	if err := t.seekdir(dirp, loc, true); err != nil {
		return t.fail("seekdir", "", err)
	}
	return nil
}

func (t *Task) Rewinddir(dirp *DIR) error {
	if err := t.seekdir(dirp, 0, false); err != nil {
		return t.fail("rewinddir", "", err)
	}
	return nil
}

func (t *Task) seekdir(dirp *DIR, loc int64, replay bool) error {
	if loc < 0 {
		return vfs.EINVAL
	}
	d, err := t.v.dirOf(dirp)
	if err != nil {
		return err
	}
	// mount points are read before the I/O mutex is taken
	links, err := t.v.childMounts(d.logical)
	if err != nil {
		return err
	}
	if err := d.begin(); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if !replay || loc < int64(d.offset) {
		if err := d.reset(links); err != nil {
			return err
		}
	}
	for int64(d.offset) < loc {
		if _, ok, err := d.next(); err != nil || !ok {
			return err
		}
	}
	return nil
}

func (t *Task) Closedir(dirp *DIR) error {
	if err := t.closedir(dirp); err != nil {
		return t.fail("closedir", "", err)
	}
	return nil
}

func (t *Task) closedir(dirp *DIR) error {
	d, err := t.v.dirOf(dirp)
	if err != nil {
		return err
	}
	err = d.shutdown()
	if lockErr := t.v.lock(); lockErr != nil {
		return lockErr
	}
	freeErr := t.v.dirs.Free(dirp.h)
	t.v.unlock()
	if freeErr != nil {
		return vfs.EBADF
	}
	return err
}
