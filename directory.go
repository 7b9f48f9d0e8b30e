package vfs

type DirectoryAttr uint8

const (
	AttrReadOnly  DirectoryAttr = 0x01
	AttrHidden    DirectoryAttr = 0x02
	AttrSystem    DirectoryAttr = 0x04
	AttrVolumeId  DirectoryAttr = 0x08
	AttrDirectory DirectoryAttr = 0x10
	AttrArchive   DirectoryAttr = 0x20
	AttrLongName                = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeId
)

// DirentType mirrors the d_type values returned by readdir.
type DirentType uint8

const (
	DT_UNKNOWN DirentType = 0
	DT_CHR     DirentType = 2
	DT_DIR     DirentType = 4
	DT_REG     DirentType = 8
	DT_LNK     DirentType = 10
)

// Dirent is a single directory entry as yielded by readdir.
type Dirent struct {
	Name string
	Type DirentType
	Size int64
}

// Dir is an open backend directory stream. Tell and Seek use opaque
// positions that are only meaningful to the same stream.
type Dir interface {
	// Read returns the next entry, or ok == false at the end.
	Read() (entry Dirent, ok bool, err error)
	Tell() int64
	Seek(pos int64) error
	Rewind() error
	Close() error
}
