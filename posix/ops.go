package posix

import (
	"errors"
	"time"

	"github.com/rstms/vfs"
)

// mountPointStat is the pseudo entry reported for a mount point itself.
func mountPointStat(drive int) vfs.Stat {
	epoch := time.Unix(0, 0)
	return vfs.Stat{
		Mode:  vfs.S_IFLNK | vfs.S_IRWALL | vfs.S_IXALL,
		Dev:   drive,
		Mtime: epoch,
		Atime: epoch,
		Ctime: epoch,
	}
}

// virtualDirStat is reported for a directory that only exists as the
// prefix of deeper mount points.
func virtualDirStat() vfs.Stat {
	epoch := time.Unix(0, 0)
	return vfs.Stat{
		Mode:  vfs.S_IFDIR | vfs.S_IRALL | vfs.S_IXALL,
		Dev:   -1,
		Mtime: epoch,
		Atime: epoch,
		Ctime: epoch,
	}
}

func (t *Task) Stat(path string) (vfs.Stat, error) {
	logical, err := t.normalize(path)
	if err != nil {
		return vfs.Stat{}, t.fail("stat", path, err)
	}
	st, err := t.statLogical(logical)
	if err != nil {
		return vfs.Stat{}, t.fail("stat", path, err)
	}
	return st, nil
}

func (t *Task) statLogical(logical string) (vfs.Stat, error) {
	tgt, err := t.v.resolveLogical(logical)
	if err != nil {
		if errors.Is(err, vfs.EINVAL) && t.v.partialMount(logical) {
			return virtualDirStat(), nil
		}
		return vfs.Stat{}, err
	}
	if tgt.device() {
		return deviceStat(tgt.class, tgt.number), nil
	}
	if tgt.mountRoot() {
		return mountPointStat(tgt.drive), nil
	}
	st, err := tgt.mount.backend.Stat(tgt.physical)
	if err != nil {
		return vfs.Stat{}, err
	}
	st.Dev = tgt.drive
	return st, nil
}

// writableTarget resolves path for an operation that modifies the
// filesystem.
func (t *Task) writableTarget(path string) (target, error) {
	tgt, err := t.resolve(path)
	if err != nil {
		return tgt, err
	}
	if tgt.device() {
		return tgt, vfs.EINVAL
	}
	if tgt.mountRoot() {
		return tgt, vfs.EBUSY
	}
	if tgt.mount.readOnly {
		return tgt, vfs.EROFS
	}
	return tgt, nil
}

// Unlink removes a file or an empty directory.
func (t *Task) Unlink(path string) error {
	tgt, err := t.writableTarget(path)
	if err == nil {
		err = tgt.mount.backend.Unlink(tgt.physical)
	}
	if err != nil {
		return t.fail("unlink", path, err)
	}
	return nil
}

// Mkdir creates a directory; a mode without write bits makes it
// read-only.
func (t *Task) Mkdir(path string, mode uint32) error {
	tgt, err := t.writableTarget(path)
	if err == nil {
		err = tgt.mount.backend.Mkdir(tgt.physical)
	}
	if err == nil {
		if attr := vfs.AttrFromMode(t.applyUmask(mode)); attr != 0 {
			err = tgt.mount.backend.Chmod(tgt.physical, attr, vfs.AttrReadOnly)
		}
	}
	if err != nil {
		return t.fail("mkdir", path, err)
	}
	return nil
}

// Chmod honours only the write bits of mode.
func (t *Task) Chmod(path string, mode uint32) error {
	tgt, err := t.writableTarget(path)
	if err == nil {
		err = tgt.mount.backend.Chmod(tgt.physical, vfs.AttrFromMode(mode), vfs.AttrReadOnly)
	}
	if err != nil {
		return t.fail("chmod", path, err)
	}
	return nil
}

// Chown always succeeds; there is no ownership.
func (t *Task) Chown(path string, uid, gid int) error {
	return nil
}
