package posix

import (
	"github.com/rstms/vfs"
	"github.com/rstms/vfs/internal/slot"
	"github.com/rstms/vfs/vpath"
	"go.uber.org/multierr"
)

// parseMountData splits "<d>", "<d>:" or "<d>:<BACKEND>".
func (v *VFS) parseMountData(data string) (int, vfs.Backend, error) {
	if len(data) == 0 || data[0] < '0' || data[0] > '9' {
		return 0, nil, vfs.EINVAL
	}
	drive := int(data[0] - '0')
	rest := data[1:]
	if rest != "" {
		if rest[0] != ':' {
			return 0, nil, vfs.EINVAL
		}
		rest = rest[1:]
	}
	if drive >= v.cfg.Drives {
		return 0, nil, vfs.ENODEV
	}
	if rest == "" {
		return drive, nil, nil
	}
	b := v.backend(rest)
	if b == nil {
		return 0, nil, vfs.ENODEV
	}
	return drive, b, nil
}

func (v *VFS) checkMountPoint(dir string) (string, error) {
	if dir == "" || dir[0] != '/' {
		return "", vfs.EINVAL
	}
	point, err := vpath.Clean(dir)
	if err != nil {
		return "", err
	}
	if len(vpath.Components(point)) > 1 && !v.cfg.AllowNestedMounts {
		return "", vfs.EINVAL
	}
	if _, _, ok := vpath.ParseDevice(point); ok {
		return "", vfs.EINVAL
	}
	return point, nil
}

// candidates lists the backends to try for a mount, in priority order.
func (v *VFS) candidates(explicit vfs.Backend, t vfs.FSType) []vfs.Backend {
	if explicit != nil {
		return []vfs.Backend{explicit}
	}
	if t != vfs.FSExFat {
		return v.backends
	}
	var out []vfs.Backend
	for _, b := range v.backends {
		if b.Supports(vfs.FSExFat) {
			out = append(out, b)
		}
	}
	return out
}

// Mount attaches the drive named by data at dir. The mount point only
// becomes visible once the backend mount has succeeded.
func (t *Task) Mount(fsType, dir string, flags int, data string) error {
	if err := t.v.mount(fsType, dir, flags, data); err != nil {
		return t.fail("mount", dir, err)
	}
	return nil
}

// mount reserves the drive under the global mutex, probes and mounts the
// media without it, then publishes the entry.
func (v *VFS) mount(fsType, dir string, flags int, data string) error {
	typ, ok := vfs.ParseFSType(fsType)
	if !ok {
		return vfs.EINVAL
	}
	drive, explicit, err := v.parseMountData(data)
	if err != nil {
		return err
	}
	point, err := v.checkMountPoint(dir)
	if err != nil {
		return err
	}

	if err := v.lock(); err != nil {
		return err
	}
	updated, err := v.reserveMountLocked(drive, point, flags)
	v.unlock()
	if err != nil || updated {
		return err
	}

	b, detected, readOnly, err := v.attach(drive, explicit, typ, flags)

	v.global.LockWait()
	defer v.unlock()
	m := &v.mounts[drive]
	if err != nil {
		*m = mountEntry{}
		return err
	}
	v.mountSeq++
	*m = mountEntry{
		point:    point,
		backend:  b,
		fsType:   detected,
		readOnly: readOnly,
		gen:      v.mountSeq,
	}
	v.log.Info("mounted", "drive", drive, "point", point, "backend", b.Name(), "type", detected.String(), "readonly", readOnly)
	return nil
}

// reserveMountLocked checks a mount request against the table and marks
// the drive busy. It reports true when the request was an MNT_UPDATE that
// has already been applied.
func (v *VFS) reserveMountLocked(drive int, point string, flags int) (bool, error) {
	m := &v.mounts[drive]
	if m.busy {
		return false, vfs.EBUSY
	}
	if m.mounted() && flags&vfs.MNT_UPDATE != 0 && m.point == point {
		m.readOnly = flags&vfs.MNT_RDONLY != 0
		m.update = true
		v.log.Info("mount updated", "drive", drive, "point", point, "readonly", m.readOnly)
		return true, nil
	}
	for i := range v.mounts {
		if v.mounts[i].point == point || v.mounts[i].reserved == point {
			return false, vfs.EACCES
		}
	}
	if m.mounted() {
		return false, vfs.EBUSY
	}
	if flags&vfs.MNT_UPDATE != 0 {
		return false, vfs.EINVAL
	}
	m.busy = true
	m.reserved = point
	return false, nil
}

// attach probes the media of a reserved drive and mounts it with the
// first candidate backend that accepts it.
func (v *VFS) attach(drive int, explicit vfs.Backend, typ vfs.FSType, flags int) (vfs.Backend, vfs.FSType, bool, error) {
	dev, info, err := v.probe(drive)
	if err != nil {
		return nil, vfs.FSAuto, false, err
	}
	var mountErr error = vfs.ENODEV
	for _, b := range v.candidates(explicit, typ) {
		detected, err := b.Mount(drive, dev)
		if err != nil {
			mountErr = err
			continue
		}
		return b, detected, flags&vfs.MNT_RDONLY != 0 || info.ReadOnly, nil
	}
	v.media.Release(drive)
	return nil, vfs.FSAuto, false, mountErr
}

// probe forces a media re-initialisation of drive.
func (v *VFS) probe(drive int) (vfs.BlockDevice, vfs.MediaInfo, error) {
	v.media.Release(drive)
	if err := v.media.Initialize(drive); err != nil {
		v.log.Debug("media initialize failed", "drive", drive, "error", err)
		return nil, vfs.MediaInfo{}, vfs.ENODEV
	}
	dev, err := v.media.Device(drive)
	if err != nil {
		return nil, vfs.MediaInfo{}, vfs.ENODEV
	}
	info, err := v.media.Info(drive)
	if err != nil {
		return nil, vfs.MediaInfo{}, vfs.ENODEV
	}
	return dev, info, nil
}

// Unmount detaches the mount that dir resolves to, force-closing every
// descriptor open on that drive first.
func (t *Task) Unmount(dir string) error {
	logical, err := t.normalize(dir)
	if err != nil {
		return t.fail("unmount", dir, err)
	}
	if err := t.v.unmount(logical); err != nil {
		return t.fail("unmount", dir, err)
	}
	return nil
}

func (v *VFS) unmount(logical string) error {
	if err := v.lock(); err != nil {
		return err
	}
	defer v.unlock()
	drive := v.longestMountLocked(logical)
	if drive < 0 {
		return vfs.EINVAL
	}
	return v.unmountLocked(drive)
}

func (v *VFS) unmountLocked(drive int) error {
	m := &v.mounts[drive]
	closeErr := v.forceCloseLocked(drive)
	if closeErr != nil {
		v.log.Warn("force close failed", "drive", drive, "error", closeErr)
	}
	err := m.backend.Unmount(drive)
	if err != nil {
		v.log.Warn("backend unmount failed", "drive", drive, "backend", m.backend.Name(), "error", err)
	}
	v.media.Release(drive)
	v.log.Info("unmounted", "drive", drive, "point", m.point)
	*m = mountEntry{}
	return err
}

// forceCloseLocked closes every file and directory descriptor on drive,
// taking each descriptor's I/O mutex in turn.
func (v *VFS) forceCloseLocked(drive int) error {
	var errs error
	v.files.Each(func(h slot.Handle, of *openFile) {
		if of.drive != drive || of.device() {
			return
		}
		if err := of.shutdown(); err != nil {
			errs = multierr.Append(errs, err)
		}
		v.log.Warn("descriptor force closed", "fd", fdOf(h), "path", of.path)
		v.files.Free(h)
	})
	v.dirs.Each(func(h slot.Handle, d *dirDesc) {
		if d.drive != drive {
			return
		}
		if err := d.shutdown(); err != nil {
			errs = multierr.Append(errs, err)
		}
		v.log.Warn("directory force closed", "path", d.logical)
		v.dirs.Free(h)
	})
	for x := range v.transfers {
		if x.uses(drive) && !x.aborted {
			errs = multierr.Append(errs, x.abortLocked())
			v.log.Warn("rename aborted", "old", x.src.logical, "new", x.dst.logical)
		}
	}
	return errs
}

// Mkfs formats the drive named by data, unmounting it first.
func (t *Task) Mkfs(fsType, data string) error {
	if err := t.v.mkfs(fsType, data); err != nil {
		return t.fail("mkfs", data, err)
	}
	return nil
}

// mkfs unmounts the drive if needed and marks it busy under the global
// mutex; the format itself runs without it.
func (v *VFS) mkfs(fsType, data string) error {
	typ, ok := vfs.ParseFSType(fsType)
	if !ok {
		return vfs.EINVAL
	}
	drive, explicit, err := v.parseMountData(data)
	if err != nil {
		return err
	}

	if err := v.lock(); err != nil {
		return err
	}
	m := &v.mounts[drive]
	if m.busy {
		v.unlock()
		return vfs.EBUSY
	}
	if m.mounted() {
		if err := v.unmountLocked(drive); err != nil {
			v.unlock()
			return err
		}
	}
	m.busy = true
	v.unlock()

	err = v.format(drive, explicit, typ)

	v.global.LockWait()
	m.busy = false
	v.unlock()
	return err
}

func (v *VFS) format(drive int, explicit vfs.Backend, typ vfs.FSType) error {
	dev, info, err := v.probe(drive)
	if err != nil {
		return err
	}
	defer v.media.Release(drive)
	if info.ReadOnly {
		return vfs.EROFS
	}

	b := explicit
	if b == nil {
		for _, c := range v.backends {
			if c.Supports(typ) {
				b = c
				break
			}
		}
	}
	if b == nil || !b.Supports(typ) {
		return vfs.ENODEV
	}

	// a throwaway mount lets the backend see the existing geometry
	if _, err := b.Mount(drive, dev); err == nil {
		b.Unmount(drive)
	}

	work := make([]byte, max(dev.BlockSize(), v.cfg.ScratchMin))
	if err := b.Mkfs(drive, dev, typ, work); err != nil {
		return err
	}
	v.log.Info("formatted", "drive", drive, "backend", b.Name(), "type", typ.String(), "size", info.Size)
	return nil
}

// Statfs reports on the filesystem holding path.
func (t *Task) Statfs(path string) (vfs.StatFS, error) {
	tgt, err := t.resolve(path)
	if err == nil && tgt.device() {
		err = vfs.EINVAL
	}
	if err != nil {
		return vfs.StatFS{}, t.fail("statfs", path, err)
	}
	st, err := tgt.mount.backend.StatFS(tgt.drive)
	if err != nil {
		return vfs.StatFS{}, t.fail("statfs", path, err)
	}
	return st, nil
}
