package fat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rstms/vfs"
	"github.com/rstms/vfs/vpath"
)

// FileSystem is a FAT backend. One FileSystem serves any number of
// drives; each mounted drive has its own volume.
type FileSystem struct {
	name    string
	exfat   bool
	codec   Codec
	oemName string
	label   string
	maxOpen int
	now     func() time.Time

	mu      sync.Mutex
	volumes map[int]*volume
	open    int
}

// ensure FileSystem implements vfs.Backend
var _ vfs.Backend = (*FileSystem)(nil)

type Option func(*FileSystem)

// WithExFAT lets the backend mount and format exFAT volumes.
func WithExFAT() Option {
	return func(f *FileSystem) { f.exfat = true }
}

// WithCodec selects the payload codec used when this backend writes a
// volume. Volumes written with any codec can be read.
func WithCodec(c Codec) Option {
	return func(f *FileSystem) { f.codec = c }
}

func WithOEMName(name string) Option {
	return func(f *FileSystem) { f.oemName = name }
}

func WithVolumeLabel(label string) Option {
	return func(f *FileSystem) { f.label = label }
}

// WithMaxOpen bounds the number of simultaneously open files and
// directories; zero means unlimited.
func WithMaxOpen(n int) Option {
	return func(f *FileSystem) { f.maxOpen = n }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *FileSystem) { f.now = now }
}

// New returns a backend registered under name.
func New(name string, opts ...Option) *FileSystem {
	f := &FileSystem{
		name:    name,
		codec:   CodecLZ4,
		oemName: "RTVFS",
		now:     time.Now,
		volumes: make(map[int]*volume),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FileSystem) Name() string {
	return f.name
}

func (f *FileSystem) Supports(t vfs.FSType) bool {
	return t != vfs.FSExFat || f.exfat
}

func (f *FileSystem) Mount(drive int, dev vfs.BlockDevice) (vfs.FSType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, err := loadVolume(drive, dev)
	if err != nil {
		return vfs.FSAuto, err
	}
	if !f.Supports(v.boot.FSType) {
		return vfs.FSAuto, vfs.ResultNoFilesystem
	}
	f.volumes[drive] = v
	return v.boot.FSType, nil
}

func (f *FileSystem) Unmount(drive int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[drive]
	if !ok {
		return vfs.ResultNotEnabled
	}
	delete(f.volumes, drive)
	if v.dirty {
		return v.flush(f.codec, nil)
	}
	return nil
}

// cluster count limits per FAT type
var clusterLimits = map[vfs.FSType][2]int64{
	vfs.FSFat12: {1, 4084},
	vfs.FSFat16: {4085, 65524},
	vfs.FSFat32: {65525, 0x0FFFFFF5},
	vfs.FSExFat: {1, 0x7FFFFFFD},
}

// chooseLayout picks the FAT type (for FSAuto) and the smallest power
// of two sectors-per-cluster that keeps the cluster count in range.
func chooseLayout(t vfs.FSType, sectors int64) (vfs.FSType, uint8, error) {
	data := sectors - 1
	if t == vfs.FSAuto {
		switch {
		case data <= clusterLimits[vfs.FSFat12][1]:
			t = vfs.FSFat12
		case data <= clusterLimits[vfs.FSFat16][1]:
			t = vfs.FSFat16
		default:
			t = vfs.FSFat32
		}
	}
	limits, ok := clusterLimits[t]
	if !ok {
		return t, 0, vfs.ResultInvalidParameter
	}
	for spc := int64(1); spc <= 128; spc <<= 1 {
		clusters := data / spc
		if clusters < limits[0] {
			return t, 0, vfs.ResultMkfsAborted
		}
		if clusters <= limits[1] {
			return t, uint8(spc), nil
		}
	}
	return t, 0, vfs.ResultMkfsAborted
}

const minSectors = 8

func (f *FileSystem) Mkfs(drive int, dev vfs.BlockDevice, t vfs.FSType, work []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bs := dev.BlockSize()
	if bs < SectorSize || bs > 0x8000 || len(work) < bs {
		return vfs.ResultNotEnoughCore
	}
	if !f.Supports(t) {
		return vfs.ResultUnsupported
	}
	sectors := dev.Size() / int64(bs)
	if sectors < minSectors {
		return vfs.ResultMkfsAborted
	}
	t, spc, err := chooseLayout(t, sectors)
	if err != nil {
		return err
	}
	delete(f.volumes, drive)
	v := &volume{
		drive: drive,
		dev:   dev,
		boot: &BootSector{
			OEMName:           f.oemName,
			BytesPerSector:    uint16(bs),
			SectorsPerCluster: spc,
			TotalSectors:      uint32(sectors),
			Media:             MediaFixed,
			VolumeID:          uuid.New().ID(),
			VolumeLabel:       f.label,
			FSType:            t,
		},
		root: &Directory{},
	}
	return v.flush(f.codec, work)
}

func (f *FileSystem) StatFS(drive int) (vfs.StatFS, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[drive]
	if !ok {
		return vfs.StatFS{}, vfs.ResultNotEnabled
	}
	cb := int64(v.boot.ClusterBytes())
	files, _ := v.root.usage()
	return vfs.StatFS{
		Type:   v.boot.FSType,
		Bsize:  int(cb),
		Blocks: int64(v.boot.TotalSectors-1) / int64(v.boot.SectorsPerCluster),
		Bfree:  v.free() / cb,
		Files:  files,
		FSID:   v.boot.VolumeID,
		Label:  v.boot.VolumeLabel,
	}, nil
}

// volume resolves a physical path to its mounted volume and the clean
// path within it. Caller holds f.mu.
func (f *FileSystem) volume(path string) (*volume, string, error) {
	drive, rest, err := vpath.SplitPhysical(path)
	if err != nil {
		return nil, "", vfs.ResultInvalidName
	}
	v, ok := f.volumes[drive]
	if !ok {
		return nil, "", vfs.ResultNotEnabled
	}
	return v, rest, nil
}

func (f *FileSystem) Open(path string, mode vfs.AccessMode) (vfs.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, rest, err := f.volume(path)
	if err != nil {
		return nil, err
	}
	dir, name, err := v.parent(rest)
	if err != nil {
		return nil, err
	}
	if f.maxOpen > 0 && f.open >= f.maxOpen {
		return nil, vfs.ResultTooManyOpenFiles
	}
	write := mode&vfs.AccessWrite != 0
	disp := mode & vfs.DispositionMask
	mutating := write || disp != vfs.OpenExisting
	if mutating && v.writeProtected() {
		return nil, vfs.ResultWriteProtected
	}

	created := false
	entry := dir.Entry(name)
	switch {
	case entry == nil && disp == vfs.OpenExisting:
		return nil, vfs.ResultNoFile
	case entry == nil:
		entry, err = dir.AddFile(name, f.now())
		if err != nil {
			return nil, err
		}
		created = true
	case disp == vfs.CreateNew:
		return nil, vfs.ResultExist
	case entry.IsDir():
		return nil, vfs.ResultDenied
	case (write || disp == vfs.CreateAlways) && entry.IsReadOnly():
		return nil, vfs.ResultDenied
	}

	// one writer or any number of readers
	if entry.writers > 0 || (write && entry.readers > 0) {
		return nil, vfs.ResultLocked
	}

	if disp == vfs.CreateAlways && !created && len(entry.data) > 0 {
		entry.data = nil
		entry.writeTime = f.now()
		v.dirty = true
	}
	if created || v.dirty {
		if err := v.flush(f.codec, nil); err != nil {
			if created {
				dir.remove(entry)
			}
			return nil, err
		}
	}

	if write {
		entry.writers++
	} else {
		entry.readers++
	}
	f.open++
	return &File{fs: f, vol: v, entry: entry, mode: mode}, nil
}

func (f *FileSystem) Rename(oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ov, orest, err := f.volume(oldPath)
	if err != nil {
		return err
	}
	nv, nrest, err := f.volume(newPath)
	if err != nil {
		return err
	}
	if ov.writeProtected() || nv.writeProtected() {
		return vfs.ResultWriteProtected
	}
	odir, oname, err := ov.parent(orest)
	if err != nil {
		return err
	}
	entry := odir.Entry(oname)
	if entry == nil {
		return vfs.ResultNoFile
	}
	ndir, nname, err := nv.parent(nrest)
	if err != nil {
		return err
	}
	if err := validName(nname); err != nil {
		return err
	}
	if existing := ndir.Entry(nname); existing != nil && existing != entry {
		return vfs.ResultExist
	}
	if entry.IsOpen() {
		return vfs.ResultLocked
	}
	if entry.dir != nil && entry.dir.contains(ndir) {
		return vfs.ResultInvalidName
	}
	if nv != ov && entry.Size()+entry.metaBytes() > nv.free() {
		return vfs.ResultDenied
	}

	odir.remove(entry)
	oldName := entry.name
	entry.name = nname
	if err := ndir.insert(entry); err != nil {
		entry.name = oldName
		odir.entries = append(odir.entries, entry)
		return err
	}
	if err := nv.flush(f.codec, nil); err != nil {
		return err
	}
	if nv != ov {
		return ov.flush(f.codec, nil)
	}
	return nil
}

func (f *FileSystem) Unlink(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, rest, err := f.volume(path)
	if err != nil {
		return err
	}
	if v.writeProtected() {
		return vfs.ResultWriteProtected
	}
	dir, name, err := v.parent(rest)
	if err != nil {
		return err
	}
	entry := dir.Entry(name)
	switch {
	case entry == nil:
		return vfs.ResultNoFile
	case entry.IsOpen():
		return vfs.ResultLocked
	case entry.IsReadOnly():
		return vfs.ResultDenied
	case entry.dir != nil && len(entry.dir.entries) > 0:
		return vfs.ResultDenied
	}
	dir.remove(entry)
	return v.flush(f.codec, nil)
}

func (f *FileSystem) Mkdir(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, rest, err := f.volume(path)
	if err != nil {
		return err
	}
	if v.writeProtected() {
		return vfs.ResultWriteProtected
	}
	dir, name, err := v.parent(rest)
	if err != nil {
		return err
	}
	entry, err := dir.AddDirectory(name, f.now())
	if err != nil {
		return err
	}
	if err := v.flush(f.codec, nil); err != nil {
		dir.remove(entry)
		return err
	}
	return nil
}

func (f *FileSystem) Stat(path string) (vfs.Stat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, rest, err := f.volume(path)
	if err != nil {
		return vfs.Stat{}, err
	}
	if rest == "/" {
		return vfs.Stat{}, vfs.ResultInvalidName
	}
	entry, _, err := v.lookup(rest)
	if err != nil {
		return vfs.Stat{}, err
	}
	return entry.stat(v.boot.ClusterBytes()), nil
}

func (f *FileSystem) Chmod(path string, attr, mask vfs.DirectoryAttr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, rest, err := f.volume(path)
	if err != nil {
		return err
	}
	if v.writeProtected() {
		return vfs.ResultWriteProtected
	}
	if rest == "/" {
		return vfs.ResultInvalidName
	}
	entry, _, err := v.lookup(rest)
	if err != nil {
		return err
	}
	if err := entry.SetAttr(attr, mask); err != nil {
		return err
	}
	return v.flush(f.codec, nil)
}

func (f *FileSystem) OpenDir(path string) (vfs.Dir, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, rest, err := f.volume(path)
	if err != nil {
		return nil, err
	}
	entry, dir, err := v.lookup(rest)
	if err != nil {
		if err == vfs.ResultNoFile {
			return nil, vfs.ResultNoPath
		}
		return nil, err
	}
	if entry != nil && !entry.IsDir() {
		return nil, vfs.ResultNoPath
	}
	if f.maxOpen > 0 && f.open >= f.maxOpen {
		return nil, vfs.ResultTooManyOpenFiles
	}
	f.open++
	return &dirStream{fs: f, dir: dir}, nil
}

func splitPath(rest string) []string {
	return vpath.Components(rest)
}
