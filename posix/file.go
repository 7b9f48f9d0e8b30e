package posix

import (
	"errors"
	"io"
	"math"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/internal/slot"
	"github.com/rstms/vfs/rtos"
)

// stdio descriptors 0, 1 and 2 never enter the table.
const fdBase = 3

// fdOf maps a table handle to a descriptor number. The handle carries
// the slot generation in its high bits, so descriptors are not dense: a
// reused slot yields a different number from its previous occupant.
func fdOf(h slot.Handle) int {
	return int(h) + fdBase
}

// handleOf is the inverse of fdOf. Numbers that cannot be a handle are
// rejected rather than truncated onto a live slot.
func handleOf(fd int) (slot.Handle, error) {
	if fd < fdBase || fd-fdBase > math.MaxUint32 {
		return 0, vfs.EBADF
	}
	return slot.Handle(fd - fdBase), nil
}

// openFile is the state shared by every descriptor dup'ed from one
// open. refs and closing are guarded by the global mutex, the rest of
// the I/O state by mu.
type openFile struct {
	mu      *rtos.Mutex
	refs    int
	closing bool

	drive   int
	backend vfs.Backend
	file    vfs.File
	path    string

	class  vfs.DeviceClass
	number int

	read        bool
	write       bool
	syncOnWrite bool
	applyMode   bool
	createMode  uint32

	closed bool
}

func (of *openFile) device() bool {
	return of.class != vfs.DeviceNone
}

// finish syncs, closes and applies the deferred create mode. Every step
// runs even after a failure; the first error is returned. Caller holds
// mu.
func (of *openFile) finish() error {
	if of.closed {
		return nil
	}
	of.closed = true
	if of.device() {
		return nil
	}
	var first error
	if of.write {
		first = of.file.Sync()
	}
	if err := of.file.Close(); err != nil && first == nil {
		first = err
	}
	if of.applyMode {
		attr := vfs.AttrFromMode(of.createMode)
		if err := of.backend.Chmod(of.path, attr, vfs.AttrReadOnly); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// shutdown finishes the file under its I/O mutex.
func (of *openFile) shutdown() error {
	if err := of.mu.Lock(); err != nil {
		return err
	}
	defer of.mu.Unlock()
	return of.finish()
}

// begin takes the I/O mutex for one call and checks the handle is live.
func (of *openFile) begin() error {
	if err := of.mu.Lock(); err != nil {
		return err
	}
	if of.closed {
		of.mu.Unlock()
		return vfs.EBADF
	}
	return nil
}

func (v *VFS) fileOf(fd int) (*openFile, error) {
	h, err := handleOf(fd)
	if err != nil {
		return nil, err
	}
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.unlock()
	of, ok := v.files.Get(h)
	if !ok || of.closing {
		return nil, vfs.EBADF
	}
	return of, nil
}

// allocFile publishes of. A file on a drive is only published while the
// mount generation it was opened under is still in the table; otherwise
// an unmount ran after the backend open and the handle is orphaned.
func (v *VFS) allocFile(of *openFile, gen uint64) (int, error) {
	if err := v.lock(); err != nil {
		return -1, err
	}
	defer v.unlock()
	if of.drive >= 0 && !v.liveLocked(of.drive, gen) {
		return -1, vfs.ENODEV
	}
	h, err := v.files.Alloc(of)
	if err != nil {
		return -1, vfs.ENFILE
	}
	of.refs++
	return fdOf(h), nil
}

// openMode maps POSIX open flags onto a backend access mode.
func openMode(flags int) (vfs.AccessMode, error) {
	var mode vfs.AccessMode
	switch flags & vfs.O_ACCMODE {
	case vfs.O_RDONLY:
		mode = vfs.AccessRead
	case vfs.O_WRONLY:
		mode = vfs.AccessWrite
	case vfs.O_RDWR:
		mode = vfs.AccessRead | vfs.AccessWrite
	default:
		return 0, vfs.EINVAL
	}
	switch {
	case flags&vfs.O_CREAT != 0 && flags&vfs.O_EXCL != 0:
		mode |= vfs.CreateNew
	case flags&vfs.O_CREAT != 0:
		mode |= vfs.OpenAlways
	}
	return mode, nil
}

// Open opens path and returns the lowest free descriptor.
func (t *Task) Open(path string, flags int, mode uint32) (int, error) {
	fd, err := t.open(path, flags, mode)
	if err != nil {
		return -1, t.fail("open", path, err)
	}
	return fd, nil
}

func (t *Task) open(path string, flags int, mode uint32) (int, error) {
	tgt, err := t.resolve(path)
	if err != nil {
		return -1, err
	}
	if tgt.device() {
		return t.v.allocFile(&openFile{
			mu:     t.v.fileLocks.New(),
			drive:  -1,
			class:  tgt.class,
			number: tgt.number,
			read:   true,
			write:  true,
		}, 0)
	}
	access, err := openMode(flags)
	if err != nil {
		return -1, err
	}
	if tgt.mountRoot() {
		return -1, vfs.EISDIR
	}
	writing := access&vfs.AccessWrite != 0 || flags&(vfs.O_CREAT|vfs.O_TRUNC) != 0
	if writing && tgt.mount.readOnly {
		return -1, vfs.EROFS
	}

	b := tgt.mount.backend
	created := false
	if access&vfs.DispositionMask == vfs.CreateNew {
		created = true
	} else if access&vfs.DispositionMask == vfs.OpenAlways {
		if _, err := b.Stat(tgt.physical); errors.Is(err, vfs.ResultNoFile) {
			created = true
		}
	}

	f, err := b.Open(tgt.physical, access)
	if err != nil {
		return -1, err
	}
	if err := postOpen(f, flags); err != nil {
		f.Close()
		return -1, err
	}
	of := &openFile{
		mu:          t.v.fileLocks.New(),
		drive:       tgt.drive,
		backend:     b,
		file:        f,
		path:        tgt.physical,
		read:        access&vfs.AccessRead != 0,
		write:       access&vfs.AccessWrite != 0,
		syncOnWrite: flags&vfs.O_SYNC != 0,
		applyMode:   created,
		createMode:  t.applyUmask(mode),
	}
	fd, err := t.v.allocFile(of, tgt.mount.gen)
	if err != nil {
		f.Close()
		return -1, err
	}
	return fd, nil
}

// postOpen applies O_TRUNC and O_APPEND to a freshly opened file.
func postOpen(f vfs.File, flags int) error {
	if flags&vfs.O_TRUNC != 0 {
		if err := f.Seek(0); err != nil {
			return err
		}
		if err := f.Truncate(); err != nil {
			return err
		}
		if f.Size() != 0 {
			return vfs.EIO
		}
	}
	if flags&vfs.O_APPEND != 0 {
		if err := f.Seek(f.Size()); err != nil {
			return err
		}
	}
	return nil
}

// Close releases fd. The slot is freed even when the flush or close
// fails; the error reported is the first one seen.
func (t *Task) Close(fd int) error {
	if err := t.close(fd); err != nil {
		return t.fail("close", "", err)
	}
	return nil
}

func (t *Task) close(fd int) error {
	h, err := handleOf(fd)
	if err != nil {
		return err
	}
	if err := t.v.lock(); err != nil {
		return err
	}
	of, ok := t.v.files.Get(h)
	if !ok || of.closing {
		t.v.unlock()
		return vfs.EBADF
	}
	of.refs--
	if of.refs > 0 {
		t.v.files.Free(h)
		t.v.unlock()
		return nil
	}
	of.closing = true
	t.v.unlock()

	err = of.shutdown()

	if lockErr := t.v.lock(); lockErr != nil {
		return lockErr
	}
	// a concurrent unmount may already have freed the slot
	t.v.files.Free(h)
	t.v.unlock()
	return err
}

func (t *Task) Read(fd int, p []byte) (int, error) {
	n, err := t.read(fd, p)
	if err != nil {
		return -1, t.fail("read", "", err)
	}
	return n, nil
}

func (t *Task) read(fd int, p []byte) (int, error) {
	of, err := t.v.fileOf(fd)
	if err != nil {
		return 0, err
	}
	if err := of.begin(); err != nil {
		return 0, err
	}
	defer of.mu.Unlock()
	if of.device() {
		return t.v.deviceRecv(of, p)
	}
	if !of.read {
		return 0, vfs.EBADF
	}
	n, err := of.file.Read(p)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (t *Task) Write(fd int, p []byte) (int, error) {
	n, err := t.write(fd, p)
	if err != nil {
		return -1, t.fail("write", "", err)
	}
	return n, nil
}

func (t *Task) write(fd int, p []byte) (int, error) {
	of, err := t.v.fileOf(fd)
	if err != nil {
		return 0, err
	}
	if err := of.begin(); err != nil {
		return 0, err
	}
	defer of.mu.Unlock()
	if of.device() {
		return t.v.deviceSend(of, p)
	}
	if !of.write {
		return 0, vfs.EBADF
	}
	n, err := of.file.Write(p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, vfs.ENOSPC
	}
	if of.syncOnWrite {
		if err := of.file.Sync(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Lseek repositions fd. Relative offsets are resolved here since the
// backends only seek to absolute positions.
func (t *Task) Lseek(fd int, offset int64, whence int) (int64, error) {
	pos, err := t.lseek(fd, offset, whence)
	if err != nil {
		return -1, t.fail("lseek", "", err)
	}
	return pos, nil
}

func (t *Task) lseek(fd int, offset int64, whence int) (int64, error) {
	of, err := t.v.fileOf(fd)
	if err != nil {
		return 0, err
	}
	if of.device() {
		return 0, vfs.EBADF
	}
	if err := of.begin(); err != nil {
		return 0, err
	}
	defer of.mu.Unlock()
	var pos int64
	switch whence {
	case vfs.SEEK_SET:
		pos = offset
	case vfs.SEEK_CUR:
		pos = of.file.Tell() + offset
	case vfs.SEEK_END:
		pos = of.file.Size() + offset
	default:
		return 0, vfs.EINVAL
	}
	if pos < 0 {
		return 0, vfs.EINVAL
	}
	if err := of.file.Seek(pos); err != nil {
		return 0, err
	}
	if of.file.Tell() != pos {
		return 0, vfs.EIO
	}
	return pos, nil
}

func (t *Task) Fstat(fd int) (vfs.Stat, error) {
	st, err := t.fstat(fd)
	if err != nil {
		return vfs.Stat{}, t.fail("fstat", "", err)
	}
	return st, nil
}

func (t *Task) fstat(fd int) (vfs.Stat, error) {
	of, err := t.v.fileOf(fd)
	if err != nil {
		return vfs.Stat{}, err
	}
	if of.device() {
		return deviceStat(of.class, of.number), nil
	}
	if err := of.begin(); err != nil {
		return vfs.Stat{}, err
	}
	defer of.mu.Unlock()
	st, err := of.file.Stat()
	if err != nil {
		return vfs.Stat{}, err
	}
	st.Dev = of.drive
	return st, nil
}

func (t *Task) Fstatfs(fd int) (vfs.StatFS, error) {
	of, err := t.v.fileOf(fd)
	if err == nil && of.device() {
		err = vfs.EINVAL
	}
	if err != nil {
		return vfs.StatFS{}, t.fail("fstatfs", "", err)
	}
	st, err := of.backend.StatFS(of.drive)
	if err != nil {
		return vfs.StatFS{}, t.fail("fstatfs", "", err)
	}
	return st, nil
}

// Dup returns a new descriptor sharing fd's open file and position.
func (t *Task) Dup(fd int) (int, error) {
	nfd, err := t.dup(fd)
	if err != nil {
		return -1, t.fail("dup", "", err)
	}
	return nfd, nil
}

func (t *Task) dup(fd int) (int, error) {
	h, err := handleOf(fd)
	if err != nil {
		return -1, err
	}
	if err := t.v.lock(); err != nil {
		return -1, err
	}
	defer t.v.unlock()
	of, ok := t.v.files.Get(h)
	if !ok || of.closing {
		return -1, vfs.EBADF
	}
	nh, err := t.v.files.Alloc(of)
	if err != nil {
		return -1, vfs.ENFILE
	}
	of.refs++
	return fdOf(nh), nil
}

// Devctl issues a control command against the drive behind fd.
func (t *Task) Devctl(fd int, cmd int) (int64, error) {
	val, err := t.devctl(fd, cmd)
	if err != nil {
		return -1, t.fail("devctl", "", err)
	}
	return val, nil
}

func (t *Task) devctl(fd int, cmd int) (int64, error) {
	of, err := t.v.fileOf(fd)
	if err != nil {
		return 0, err
	}
	if of.device() {
		return 0, vfs.ENOSYS
	}
	switch cmd {
	case vfs.DevctlSync:
		if err := of.begin(); err != nil {
			return 0, err
		}
		defer of.mu.Unlock()
		return 0, of.file.Sync()
	case vfs.DevctlGetSize, vfs.DevctlBlockSize:
		info, err := t.v.media.Info(of.drive)
		if err != nil {
			return 0, vfs.ENODEV
		}
		if cmd == vfs.DevctlGetSize {
			return info.Size, nil
		}
		return int64(info.BlockSize), nil
	}
	return 0, vfs.EINVAL
}
