package posix

import (
	"io"

	"github.com/rstms/vfs"
	"go.uber.org/multierr"
)

// copyChunk is the transfer size of the cross-backend rename.
const copyChunk = 512

// Rename moves oldPath to newPath. Within one backend the backend's own
// rename is used; across backends the file is copied and the source
// removed.
func (t *Task) Rename(oldPath, newPath string) error {
	if err := t.rename(oldPath, newPath); err != nil {
		return t.fail("rename", oldPath, err)
	}
	return nil
}

func (t *Task) rename(oldPath, newPath string) error {
	src, err := t.writableTarget(oldPath)
	if err != nil {
		return err
	}
	dst, err := t.writableTarget(newPath)
	if err != nil {
		return err
	}
	if src.mount.backend == dst.mount.backend {
		return src.mount.backend.Rename(src.physical, dst.physical)
	}
	return t.v.copyRename(src, dst)
}

// transfer tracks the backend handles of one cross-backend rename. They
// live outside the descriptor tables, so an unmount of either drive
// reaches them through VFS.transfers. Guarded by the global mutex.
type transfer struct {
	src, dst target
	files    []vfs.File
	aborted  bool
}

func (x *transfer) uses(drive int) bool {
	return x.src.drive == drive || x.dst.drive == drive
}

// abortLocked closes the handles; the rename then fails with ENODEV.
func (x *transfer) abortLocked() error {
	x.aborted = true
	var errs error
	for _, f := range x.files {
		errs = multierr.Append(errs, f.Close())
	}
	x.files = nil
	return errs
}

func (v *VFS) beginTransfer(src, dst target) (*transfer, error) {
	if err := v.lock(); err != nil {
		return nil, err
	}
	defer v.unlock()
	if !v.liveLocked(src.drive, src.mount.gen) || !v.liveLocked(dst.drive, dst.mount.gen) {
		return nil, vfs.ENODEV
	}
	x := &transfer{src: src, dst: dst}
	v.transfers[x] = struct{}{}
	return x, nil
}

func (v *VFS) endTransfer(x *transfer) {
	v.global.LockWait()
	delete(v.transfers, x)
	v.unlock()
}

// track registers f with x. When an unmount has already aborted x the
// handle is closed instead.
func (v *VFS) track(x *transfer, f vfs.File) error {
	if err := v.lock(); err != nil {
		f.Close()
		return err
	}
	defer v.unlock()
	if x.aborted {
		f.Close()
		return vfs.ENODEV
	}
	x.files = append(x.files, f)
	return nil
}

// release takes x's handles back from the table and closes them.
func (v *VFS) release(x *transfer) error {
	v.global.LockWait()
	files, aborted := x.files, x.aborted
	x.files = nil
	v.unlock()
	if aborted {
		return vfs.ENODEV
	}
	var err error
	for _, f := range files {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// checkTransfer fails once an unmount has touched either drive.
func (v *VFS) checkTransfer(x *transfer) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.unlock()
	if x.aborted || !v.liveLocked(x.src.drive, x.src.mount.gen) || !v.liveLocked(x.dst.drive, x.dst.mount.gen) {
		return vfs.ENODEV
	}
	return nil
}

func (v *VFS) live(tgt target) bool {
	if err := v.lock(); err != nil {
		return false
	}
	defer v.unlock()
	return v.liveLocked(tgt.drive, tgt.mount.gen)
}

func (v *VFS) copyRename(src, dst target) error {
	sb, db := src.mount.backend, dst.mount.backend
	st, err := sb.Stat(src.physical)
	if err != nil {
		return err
	}
	if st.IsDir() {
		return vfs.EXDEV
	}
	x, err := v.beginTransfer(src, dst)
	if err != nil {
		return err
	}
	defer v.endTransfer(x)

	in, err := sb.Open(src.physical, vfs.AccessRead)
	if err != nil {
		return err
	}
	if err := v.track(x, in); err != nil {
		return err
	}
	created := false
	out, err := db.Open(dst.physical, vfs.AccessWrite|vfs.CreateNew)
	if err == nil {
		created = true
		if err = v.track(x, out); err == nil {
			err = copyFile(out, in)
		}
	}
	if rerr := v.release(x); rerr == vfs.ENODEV || err == nil {
		err = rerr
	}
	if err == nil && !st.Writable() {
		err = db.Chmod(dst.physical, vfs.AttrReadOnly, vfs.AttrReadOnly)
	}
	if err == nil {
		err = v.checkTransfer(x)
	}
	if err != nil {
		if created && v.live(dst) {
			db.Unlink(dst.physical)
		}
		return err
	}

	// a read-only source can still be renamed
	if !st.Writable() {
		err = sb.Chmod(src.physical, 0, vfs.AttrReadOnly)
	}
	if err == nil {
		err = sb.Unlink(src.physical)
	}
	if err != nil {
		if !st.Writable() {
			sb.Chmod(src.physical, vfs.AttrReadOnly, vfs.AttrReadOnly)
		}
		v.log.Warn("partial rename", "old", src.logical, "new", dst.logical, "error", err)
		return &PartialRenameError{Old: src.logical, New: dst.logical, Err: errnoOf(err)}
	}
	return nil
}

func copyFile(out, in vfs.File) error {
	buf := make([]byte, copyChunk)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			w, werr := out.Write(buf[:n])
			if werr != nil {
				return werr
			}
			if w < n {
				return vfs.ENOSPC
			}
		}
		if err == io.EOF || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
