package vfs

// BlockDevice is a block-addressed storage medium.
type BlockDevice interface {
	ReadBlocks(dst []byte, startBlock int64) error
	WriteBlocks(data []byte, startBlock int64) error
	// BlockSize is the native block size in bytes.
	BlockSize() int
	// Size is the medium size in bytes.
	Size() int64
}

// MediaInfo describes the medium behind a drive.
type MediaInfo struct {
	Name      string
	Size      int64
	BlockSize int
	Removable bool
	ReadOnly  bool
}

// Media is the drive-indexed media layer: disk_initialize, media_size,
// media_blksize and media_info.
type Media interface {
	// Initialize forces a (re)probe of the medium behind drive.
	Initialize(drive int) error
	Device(drive int) (BlockDevice, error)
	Info(drive int) (MediaInfo, error)
	// Release forgets any cached state so the next Initialize re-probes.
	Release(drive int)
}
