// Package vpath implements the path algorithms of the syscall layer:
// canonicalisation of logical paths, drive-qualified ("N:/...") and
// device-node ("/dev/...") syntax, and mount-point prefix matching.
//
// All functions operate on owned strings bounded by MaxPath; a result
// that would exceed the bound is reported as ENAMETOOLONG rather than
// truncated.
package vpath

import (
	"strconv"
	"strings"

	"github.com/rstms/vfs"
)

// MaxPath bounds the length of any logical or physical path.
const MaxPath = 256

// Clean canonicalises p as an absolute path: consecutive slashes are
// collapsed, "." components dropped, each ".." removes the preceding
// component (a no-op at the root) and trailing slashes are stripped
// except for the root itself. A relative p is taken relative to "/".
func Clean(p string) (string, error) {
	parts := make([]string, 0, 8)
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, part)
		}
	}
	out := "/" + strings.Join(parts, "/")
	if len(out) > MaxPath {
		return "", vfs.ENAMETOOLONG
	}
	return out, nil
}

// Join appends rel to dir and canonicalises the result.
func Join(dir, rel string) (string, error) {
	if dir == "" {
		dir = "/"
	}
	return Clean(dir + "/" + rel)
}

// ParseDrive recognises "<digit>:" and "<digit>:/rest". rest keeps its
// leading slash and is empty for the bare form.
func ParseDrive(p string) (drive int, rest string, ok bool) {
	if len(p) < 2 || !isDigit(p[0]) || p[1] != ':' {
		return 0, "", false
	}
	if len(p) > 2 && p[2] != '/' {
		return 0, "", false
	}
	return int(p[0] - '0'), p[2:], true
}

// Physical formats the backend-facing path "N:/rest".
func Physical(drive int, rest string) string {
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return strconv.Itoa(drive) + ":" + rest
}

// SplitPhysical is the inverse of Physical. The returned rest is a clean
// absolute path.
func SplitPhysical(p string) (drive int, rest string, err error) {
	drive, rest, ok := ParseDrive(p)
	if !ok {
		return 0, "", vfs.EINVAL
	}
	rest, err = Clean(rest)
	if err != nil {
		return 0, "", err
	}
	return drive, rest, nil
}

const devPrefix = "/dev/"

// ParseDevice recognises the device nodes /dev/i2c<d>, /dev/spi<c><s>
// and /dev/tty<d>. The digit count must match exactly. An SPI device
// number packs the controller in the high nibble and the slave in the
// low nibble.
func ParseDevice(p string) (vfs.DeviceClass, int, bool) {
	if !strings.HasPrefix(p, devPrefix) {
		return vfs.DeviceNone, 0, false
	}
	name := p[len(devPrefix):]
	switch {
	case strings.HasPrefix(name, "i2c"):
		if d, ok := digits(name[3:], 1, 10); ok {
			return vfs.DeviceI2C, d[0], true
		}
	case strings.HasPrefix(name, "spi"):
		if d, ok := digits(name[3:], 2, 16); ok {
			return vfs.DeviceSPI, d[0]<<4 | d[1], true
		}
	case strings.HasPrefix(name, "tty"):
		if d, ok := digits(name[3:], 1, 10); ok {
			return vfs.DeviceTTY, d[0], true
		}
	}
	return vfs.DeviceNone, 0, false
}

// DeviceName is the inverse of ParseDevice.
func DeviceName(class vfs.DeviceClass, number int) string {
	switch class {
	case vfs.DeviceI2C:
		return devPrefix + "i2c" + strconv.Itoa(number)
	case vfs.DeviceSPI:
		return devPrefix + "spi" + strconv.FormatInt(int64(number>>4), 16) + strconv.FormatInt(int64(number&0xf), 16)
	case vfs.DeviceTTY:
		return devPrefix + "tty" + strconv.Itoa(number)
	}
	return ""
}

func digits(s string, count, base int) ([]int, bool) {
	if len(s) != count {
		return nil, false
	}
	out := make([]int, count)
	for i := 0; i < count; i++ {
		v, err := strconv.ParseUint(s[i:i+1], base, 8)
		if err != nil {
			return nil, false
		}
		out[i] = int(v)
	}
	return out, true
}

// HasMountPrefix reports whether mount is an exact component prefix of
// the clean path p: the match must end at a '/' or at the end of p, and
// a mount point of "/" matches everything.
func HasMountPrefix(p, mount string) bool {
	if mount == "" {
		return false
	}
	if mount == "/" || p == mount {
		return true
	}
	return strings.HasPrefix(p, mount) && p[len(mount)] == '/'
}

// TrimMount returns the part of p below mount, always starting with '/'.
func TrimMount(p, mount string) string {
	if mount == "/" {
		return p
	}
	rest := p[len(mount):]
	if rest == "" {
		return "/"
	}
	return rest
}

// Dir returns the parent of the clean absolute path p.
func Dir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// Base returns the last component of the clean absolute path p.
func Base(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Components splits the clean absolute path p; the root has none.
func Components(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
