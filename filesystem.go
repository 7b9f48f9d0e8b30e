package vfs

// A Backend is one pluggable FAT filesystem implementation. A single
// Backend may serve several drives at once; every path it receives is a
// physical path of the form "N:/rest" where N is the drive index.
type Backend interface {
	// Name is the selector used in mount data ("0:FATFS").
	Name() string
	// Supports reports whether the backend can mount or format t.
	Supports(t FSType) bool

	Mount(drive int, dev BlockDevice) (FSType, error)
	Unmount(drive int) error
	// Mkfs formats dev; work is scratch memory of at least one block.
	Mkfs(drive int, dev BlockDevice, t FSType, work []byte) error
	StatFS(drive int) (StatFS, error)

	Open(path string, mode AccessMode) (File, error)
	Rename(oldPath, newPath string) error
	Unlink(path string) error
	Mkdir(path string) error
	Stat(path string) (Stat, error)
	// Chmod sets the attribute bits selected by mask to the values in attr.
	Chmod(path string, attr DirectoryAttr, mask DirectoryAttr) error
	OpenDir(path string) (Dir, error)
}

// File is an open backend file. Seek is absolute only; callers compute
// relative offsets themselves.
type File interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(offset int64) error
	Tell() int64
	Size() int64
	// Truncate discards everything past the current position.
	Truncate() error
	Sync() error
	Close() error
	Stat() (Stat, error)
}
