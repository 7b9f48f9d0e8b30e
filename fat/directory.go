package fat

import (
	"strings"
	"time"

	"github.com/rstms/vfs"
)

// Directory is an in-memory FAT directory: an ordered list of entries
// kept in on-disk (creation) order.
type Directory struct {
	entries []*DirectoryEntry
}

// DirectoryEntry represents a single file or folder within a Directory.
// A folder carries its own child Directory.
type DirectoryEntry struct {
	name       string
	shortName  string
	attr       vfs.DirectoryAttr
	data       []byte
	dir        *Directory
	createTime time.Time
	writeTime  time.Time

	readers int
	writers int
}

func (d *DirectoryEntry) Name() string {
	return d.name
}

func (d *DirectoryEntry) ShortName() string {
	return d.shortName
}

func (d *DirectoryEntry) Attr() vfs.DirectoryAttr {
	return d.attr
}

func (d *DirectoryEntry) IsDir() bool {
	return d.attr&vfs.AttrDirectory == vfs.AttrDirectory
}

func (d *DirectoryEntry) IsReadOnly() bool {
	return d.attr&vfs.AttrReadOnly == vfs.AttrReadOnly
}

func (d *DirectoryEntry) IsOpen() bool {
	return d.readers > 0 || d.writers > 0
}

func (d *DirectoryEntry) Size() int64 {
	return int64(len(d.data))
}

// Dir returns the child directory of a folder entry, nil for files.
func (d *DirectoryEntry) Dir() *Directory {
	return d.dir
}

const settableAttrs = vfs.AttrReadOnly | vfs.AttrHidden | vfs.AttrSystem | vfs.AttrArchive

// SetAttr sets the settable bits selected by mask to the values in attr.
func (d *DirectoryEntry) SetAttr(attr, mask vfs.DirectoryAttr) error {
	if mask&^settableAttrs != 0 {
		return vfs.ResultInvalidParameter
	}
	d.attr = d.attr&^mask | attr&mask
	return nil
}

func (d *DirectoryEntry) stat(clusterBytes int) vfs.Stat {
	st := vfs.Stat{
		Mode:    vfs.ModeFromAttr(d.attr),
		Size:    d.Size(),
		Blksize: clusterBytes,
		Mtime:   d.writeTime,
		Atime:   d.writeTime,
		Ctime:   d.createTime,
	}
	st.Blocks = (st.Size + 511) / 512
	return st
}

func (d *DirectoryEntry) dirent() vfs.Dirent {
	e := vfs.Dirent{Name: d.name, Type: vfs.DT_REG, Size: d.Size()}
	if d.IsDir() {
		e.Type = vfs.DT_DIR
		e.Size = 0
	}
	return e
}

func (d *Directory) Entries() []*DirectoryEntry {
	return d.entries
}

// Entry finds name by long or short name, ignoring case.
func (d *Directory) Entry(name string) *DirectoryEntry {
	for _, entry := range d.entries {
		if strings.EqualFold(entry.name, name) || strings.EqualFold(entry.shortName, name) {
			return entry
		}
	}
	return nil
}

func (d *Directory) AddDirectory(name string, now time.Time) (*DirectoryEntry, error) {
	entry, err := d.addEntry(name, vfs.AttrDirectory, now)
	if err != nil {
		return nil, err
	}
	entry.dir = &Directory{}
	return entry, nil
}

func (d *Directory) AddFile(name string, now time.Time) (*DirectoryEntry, error) {
	return d.addEntry(name, vfs.AttrArchive, now)
}

func (d *Directory) addEntry(name string, attr vfs.DirectoryAttr, now time.Time) (*DirectoryEntry, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if d.Entry(name) != nil {
		return nil, vfs.ResultExist
	}
	entry := &DirectoryEntry{
		name:       name,
		attr:       attr,
		createTime: now,
		writeTime:  now,
	}
	if err := d.insert(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// insert links an existing entry into d under its current name,
// assigning a fresh short name.
func (d *Directory) insert(entry *DirectoryEntry) error {
	usedNames := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		usedNames = append(usedNames, e.shortName)
	}
	shortName, err := generateShortName(entry.name, usedNames)
	if err != nil {
		return vfs.ResultDenied
	}
	entry.shortName = shortName
	d.entries = append(d.entries, entry)
	return nil
}

func (d *Directory) remove(entry *DirectoryEntry) {
	for i, e := range d.entries {
		if e == entry {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			return
		}
	}
}

// contains reports whether dir is d or lies anywhere below d.
func (d *Directory) contains(dir *Directory) bool {
	if d == dir {
		return true
	}
	for _, e := range d.entries {
		if e.dir != nil && e.dir.contains(dir) {
			return true
		}
	}
	return false
}

// usage returns the number of entries and data bytes below d.
func (d *Directory) usage() (files int64, bytes int64) {
	for _, e := range d.entries {
		files++
		bytes += e.Size() + e.metaBytes()
		if e.dir != nil {
			f, b := e.dir.usage()
			files += f
			bytes += b
		}
	}
	return files, bytes
}

// metaBytes bounds the encoded size of the entry apart from its data.
func (d *DirectoryEntry) metaBytes() int64 {
	return 64 + int64(len(d.name)+len(d.shortName))
}

const invalidNameChars = "\"*:<>?|\\"

func validName(name string) error {
	if name == "" || name == "." || name == ".." || len(name) > 255 {
		return vfs.ResultInvalidName
	}
	for _, c := range name {
		if c < 0x20 || strings.ContainsRune(invalidNameChars, c) {
			return vfs.ResultInvalidName
		}
	}
	return nil
}
