package posix

import (
	"github.com/rstms/vfs"
	"github.com/rstms/vfs/vpath"
)

// target is a resolved logical path: either a device node or a path on
// a mounted drive.
type target struct {
	logical string

	class  vfs.DeviceClass
	number int

	drive    int
	physical string
	mount    mountEntry
}

func (t target) device() bool {
	return t.class != vfs.DeviceNone
}

// mountRoot reports whether the path names the mount point itself.
func (t target) mountRoot() bool {
	return !t.device() && t.logical == t.mount.point
}

// cwd returns the task's working directory, falling back to the mount
// point of the lowest mounted drive, then to "/".
func (t *Task) cwd() (string, error) {
	if cwd := t.local().cwd; cwd != "" {
		return cwd, nil
	}
	if err := t.v.lock(); err != nil {
		return "", err
	}
	defer t.v.unlock()
	for i := range t.v.mounts {
		if t.v.mounts[i].mounted() {
			return t.v.mounts[i].point, nil
		}
	}
	return "/", nil
}

// normalize turns a caller path into a clean absolute logical path.
func (t *Task) normalize(path string) (string, error) {
	if drive, rest, ok := vpath.ParseDrive(path); ok {
		if drive >= t.v.cfg.Drives {
			return "", vfs.EINVAL
		}
		if err := t.v.lock(); err != nil {
			return "", err
		}
		point := t.v.mounts[drive].point
		t.v.unlock()
		return vpath.Join(point, rest)
	}
	if len(path) > 0 && path[0] == '/' {
		return vpath.Clean(path)
	}
	cwd, err := t.cwd()
	if err != nil {
		return "", err
	}
	if path == "" || path == "." {
		return vpath.Clean(cwd)
	}
	return vpath.Join(cwd, path)
}

// resolve normalizes path and maps it to a device node or a physical
// path on the most specific matching mount.
func (t *Task) resolve(path string) (target, error) {
	logical, err := t.normalize(path)
	if err != nil {
		return target{}, err
	}
	return t.v.resolveLogical(logical)
}

func (v *VFS) resolveLogical(logical string) (target, error) {
	tgt := target{logical: logical, drive: -1}
	if class, number, ok := vpath.ParseDevice(logical); ok {
		tgt.class = class
		tgt.number = number
		return tgt, nil
	}
	if err := v.lock(); err != nil {
		return tgt, err
	}
	defer v.unlock()
	drive := v.longestMountLocked(logical)
	if drive < 0 {
		return tgt, vfs.EINVAL
	}
	tgt.drive = drive
	tgt.mount = v.mounts[drive]
	tgt.physical = vpath.Physical(drive, vpath.TrimMount(logical, tgt.mount.point))
	return tgt, nil
}

// longestMountLocked returns the drive whose mount point is the longest
// component prefix of logical, or -1.
func (v *VFS) longestMountLocked(logical string) int {
	best, bestLen := -1, -1
	for i := range v.mounts {
		m := &v.mounts[i]
		if m.mounted() && len(m.point) > bestLen && vpath.HasMountPrefix(logical, m.point) {
			best, bestLen = i, len(m.point)
		}
	}
	return best
}

// childMountsLocked lists, in drive order, the names of the mount points
// directly below the logical directory dir.
func (v *VFS) childMountsLocked(dir string) []string {
	var names []string
	for i := range v.mounts {
		m := &v.mounts[i]
		if m.mounted() && m.point != dir && m.point != "/" && vpath.Dir(m.point) == dir {
			names = append(names, vpath.Base(m.point))
		}
	}
	return names
}

// partialMountLocked reports whether logical is a proper prefix of some
// mount point.
func (v *VFS) partialMountLocked(logical string) bool {
	for i := range v.mounts {
		m := &v.mounts[i]
		if m.mounted() && m.point != logical && vpath.HasMountPrefix(m.point, logical) {
			return true
		}
	}
	return false
}

func (v *VFS) partialMount(logical string) bool {
	if err := v.lock(); err != nil {
		return false
	}
	defer v.unlock()
	return v.partialMountLocked(logical)
}
