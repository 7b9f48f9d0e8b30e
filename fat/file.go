package fat

import (
	"io"

	"github.com/rstms/vfs"
)

// File is an open handle on a DirectoryEntry. Data lives in the entry
// and reaches the medium when the handle is synced or closed.
type File struct {
	fs     *FileSystem
	vol    *volume
	entry  *DirectoryEntry
	mode   vfs.AccessMode
	pos    int64
	dirty  bool
	closed bool
}

var _ vfs.File = (*File)(nil)

func (f *File) writable() bool {
	return f.mode&vfs.AccessWrite != 0
}

// stale reports a handle whose volume has been unmounted or reformatted
// since it was opened. Caller holds fs.mu.
func (f *File) stale() bool {
	return f.fs.volumes[f.vol.drive] != f.vol
}

func (f *File) Read(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed || f.stale() {
		return 0, vfs.ResultInvalidObject
	}
	if f.mode&vfs.AccessRead == 0 {
		return 0, vfs.ResultDenied
	}
	if f.pos >= f.entry.Size() {
		return 0, io.EOF
	}
	n := copy(p, f.entry.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write stores p at the current position. When the volume fills up the
// write is cut short; a full volume accepts zero bytes without error.
func (f *File) Write(p []byte) (int, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed || f.stale() {
		return 0, vfs.ResultInvalidObject
	}
	if !f.writable() {
		return 0, vfs.ResultDenied
	}
	end := f.pos + int64(len(p))
	if grow := end - f.entry.Size(); grow > 0 {
		if free := f.vol.free(); free < grow {
			p = p[:max(0, int64(len(p))-(grow-free))]
			end = f.pos + int64(len(p))
		}
	}
	if len(p) == 0 {
		return 0, nil
	}
	if end > f.entry.Size() {
		data := make([]byte, end)
		copy(data, f.entry.data)
		f.entry.data = data
	}
	copy(f.entry.data[f.pos:], p)
	f.pos = end
	f.touch()
	return len(p), nil
}

func (f *File) touch() {
	f.entry.writeTime = f.fs.now()
	f.dirty = true
	f.vol.dirty = true
}

// Seek moves to the absolute offset. A read-only handle cannot seek past
// the end; a writable one extends the file with zeroes.
func (f *File) Seek(offset int64) error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed || f.stale() {
		return vfs.ResultInvalidObject
	}
	if offset < 0 {
		return vfs.ResultInvalidParameter
	}
	size := f.entry.Size()
	switch {
	case offset <= size:
	case !f.writable():
		offset = size
	default:
		if free := f.vol.free(); offset-size > free {
			offset = size + free
		}
		data := make([]byte, offset)
		copy(data, f.entry.data)
		f.entry.data = data
		f.touch()
	}
	f.pos = offset
	return nil
}

func (f *File) Tell() int64 {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.pos
}

func (f *File) Size() int64 {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	return f.entry.Size()
}

func (f *File) Truncate() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed || f.stale() {
		return vfs.ResultInvalidObject
	}
	if !f.writable() {
		return vfs.ResultDenied
	}
	if f.pos < f.entry.Size() {
		f.entry.data = f.entry.data[:f.pos:f.pos]
		f.touch()
	}
	return nil
}

func (f *File) Sync() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed || f.stale() {
		return vfs.ResultInvalidObject
	}
	return f.sync()
}

func (f *File) sync() error {
	if !f.dirty {
		return nil
	}
	if err := f.vol.flush(f.fs.codec, nil); err != nil {
		return err
	}
	f.dirty = false
	return nil
}

// Close syncs and releases the handle. The handle is released even when
// the sync fails. A stale handle is released without touching the medium.
func (f *File) Close() error {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed {
		return vfs.ResultInvalidObject
	}
	var err error = vfs.ResultInvalidObject
	if !f.stale() {
		err = f.sync()
	}
	f.closed = true
	if f.writable() {
		f.entry.writers--
	} else {
		f.entry.readers--
	}
	f.fs.open--
	return err
}

func (f *File) Stat() (vfs.Stat, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if f.closed || f.stale() {
		return vfs.Stat{}, vfs.ResultInvalidObject
	}
	return f.entry.stat(f.vol.boot.ClusterBytes()), nil
}
