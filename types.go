package vfs

import (
	"strings"
	"time"
)

// FSType identifies the on-disk FAT variant of a volume.
type FSType uint8

const (
	FSAuto FSType = iota
	FSFat12
	FSFat16
	FSFat32
	FSExFat
)

var fsTypeNames = []string{"AUTO", "FAT12", "FAT16", "FAT32", "exFAT"}

func (t FSType) String() string {
	if int(t) < len(fsTypeNames) {
		return fsTypeNames[t]
	}
	return "UNKNOWN"
}

// ParseFSType maps a mount/mkfs type name onto an FSType. Matching is
// case-insensitive so "EXFAT" and "exFAT" are the same type.
func ParseFSType(name string) (FSType, bool) {
	for i, n := range fsTypeNames {
		if strings.EqualFold(n, name) {
			return FSType(i), true
		}
	}
	return FSAuto, false
}

// AccessMode is the backend open mode: access bits plus at most one of
// the create dispositions.
type AccessMode uint8

const (
	AccessRead  AccessMode = 0x01
	AccessWrite AccessMode = 0x02

	OpenExisting AccessMode = 0x00
	CreateNew    AccessMode = 0x04
	CreateAlways AccessMode = 0x08
	OpenAlways   AccessMode = 0x10

	AccessMask      = AccessRead | AccessWrite
	DispositionMask = CreateNew | CreateAlways | OpenAlways
)

// POSIX open flags (newlib numbering).
const (
	O_RDONLY  = 0x0000
	O_WRONLY  = 0x0001
	O_RDWR    = 0x0002
	O_ACCMODE = 0x0003
	O_APPEND  = 0x0008
	O_CREAT   = 0x0200
	O_TRUNC   = 0x0400
	O_EXCL    = 0x0800
	O_SYNC    = 0x2000
)

// Mount flags. Only MNT_RDONLY and MNT_UPDATE have an effect.
const (
	MNT_RDONLY      = 0x00000001
	MNT_SYNCHRONOUS = 0x00000002
	MNT_NOEXEC      = 0x00000004
	MNT_NOSUID      = 0x00000008
	MNT_NODEV       = 0x00000010
	MNT_UPDATE      = 0x00010000
)

const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// File mode bits.
const (
	S_IFMT   = 0o170000
	S_IFLNK  = 0o120000
	S_IFREG  = 0o100000
	S_IFDIR  = 0o040000
	S_IFCHR  = 0o020000
	S_IRWXU  = 0o000700
	S_IRUSR  = 0o000400
	S_IWUSR  = 0o000200
	S_IXUSR  = 0o000100
	S_IRALL  = 0o000444
	S_IWALL  = 0o000222
	S_IXALL  = 0o000111
	S_IRWALL = S_IRALL | S_IWALL
)

// devctl commands.
const (
	DevctlSync = iota + 1
	DevctlGetSize
	DevctlBlockSize
)

// Stat is the subset of struct stat this layer can fill in.
type Stat struct {
	Mode    uint32
	Size    int64
	Blksize int
	Blocks  int64
	Dev     int
	Rdev    int
	Mtime   time.Time
	Atime   time.Time
	Ctime   time.Time
}

func (s Stat) IsDir() bool {
	return s.Mode&S_IFMT == S_IFDIR
}

func (s Stat) IsLink() bool {
	return s.Mode&S_IFMT == S_IFLNK
}

func (s Stat) Writable() bool {
	return s.Mode&S_IWALL != 0
}

// StatFS is the subset of struct statfs this layer can fill in.
type StatFS struct {
	Type   FSType
	Bsize  int
	Blocks int64
	Bfree  int64
	Files  int64
	FSID   uint32
	Label  string
}

// ModeFromAttr converts FAT attributes into POSIX mode bits.
func ModeFromAttr(attr DirectoryAttr) uint32 {
	var mode uint32
	if attr&AttrDirectory != 0 {
		mode = S_IFDIR | S_IRALL | S_IXALL
	} else {
		mode = S_IFREG | S_IRALL
	}
	if attr&AttrReadOnly == 0 {
		mode |= S_IWALL
	}
	return mode
}

// AttrFromMode returns the read-only attribute implied by mode.
// Only the writable bits are honoured.
func AttrFromMode(mode uint32) DirectoryAttr {
	if mode&S_IWALL == 0 {
		return AttrReadOnly
	}
	return 0
}
