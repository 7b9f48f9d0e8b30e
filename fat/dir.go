package fat

import (
	"github.com/rstms/vfs"
)

// dirStream walks a Directory by index. Entries added or removed while
// the stream is open shift the positions of later entries.
type dirStream struct {
	fs     *FileSystem
	dir    *Directory
	pos    int
	closed bool
}

var _ vfs.Dir = (*dirStream)(nil)

func (d *dirStream) Read() (vfs.Dirent, bool, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if d.closed {
		return vfs.Dirent{}, false, vfs.ResultInvalidObject
	}
	if d.pos >= len(d.dir.entries) {
		return vfs.Dirent{}, false, nil
	}
	e := d.dir.entries[d.pos]
	d.pos++
	return e.dirent(), true, nil
}

func (d *dirStream) Tell() int64 {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	return int64(d.pos)
}

func (d *dirStream) Seek(pos int64) error {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if d.closed {
		return vfs.ResultInvalidObject
	}
	if pos < 0 || pos > int64(len(d.dir.entries)) {
		return vfs.ResultInvalidParameter
	}
	d.pos = int(pos)
	return nil
}

func (d *dirStream) Rewind() error {
	return d.Seek(0)
}

func (d *dirStream) Close() error {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if d.closed {
		return vfs.ResultInvalidObject
	}
	d.closed = true
	d.fs.open--
	return nil
}
