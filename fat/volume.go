package fat

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/rstms/vfs"
)

// volume is a mounted FAT volume: the boot sector, the directory tree
// and the medium it is persisted to. The tree is written as one
// compressed payload starting at block 1.
type volume struct {
	drive int
	dev   vfs.BlockDevice
	boot  *BootSector
	root  *Directory
	dirty bool
}

// record is the persisted form of a DirectoryEntry.
type record struct {
	Name      string
	ShortName string
	Attr      uint8
	Data      []byte
	Created   time.Time
	Modified  time.Time
	Children  []record
}

func loadVolume(drive int, dev vfs.BlockDevice) (*volume, error) {
	bs := dev.BlockSize()
	if bs < SectorSize {
		return nil, vfs.ResultNotReady
	}
	block := make([]byte, bs)
	if err := dev.ReadBlocks(block, 0); err != nil {
		return nil, vfs.ResultDiskErr
	}
	boot, err := DecodeBootSector(block)
	if err != nil {
		return nil, err
	}
	v := &volume{drive: drive, dev: dev, boot: boot, root: &Directory{}}
	if boot.PayloadBytes == 0 {
		return v, nil
	}
	if int64(boot.PayloadBytes) > v.capacity() {
		return nil, vfs.ResultNoFilesystem
	}
	raw := make([]byte, roundUp(int64(boot.PayloadBytes), bs))
	if err := dev.ReadBlocks(raw, 1); err != nil {
		return nil, vfs.ResultDiskErr
	}
	data, err := decodePayload(raw[:boot.PayloadBytes], boot.Codec)
	if err != nil {
		return nil, vfs.ResultNoFilesystem
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, vfs.ResultNoFilesystem
	}
	v.root = fromRecords(rec.Children)
	return v, nil
}

// capacity is the number of bytes available to the payload.
func (v *volume) capacity() int64 {
	bs := int64(v.dev.BlockSize())
	return (v.dev.Size()/bs - 1) * bs
}

// payloadReserve covers the gob type description and framing.
const payloadReserve = 512

// used estimates the payload bytes taken by the current tree.
func (v *volume) used() int64 {
	_, b := v.root.usage()
	return b
}

// free estimates how many more data bytes fit in the payload.
func (v *volume) free() int64 {
	return max(0, v.capacity()-payloadHeaderSize-payloadReserve-v.used())
}

func (v *volume) writeProtected() bool {
	ro, ok := v.dev.(interface{ ReadOnly() bool })
	return ok && ro.ReadOnly()
}

// flush persists the tree with codec. work, when large enough, stages
// the boot block.
func (v *volume) flush(codec Codec, work []byte) error {
	if v.writeProtected() {
		return vfs.ResultWriteProtected
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record{Children: toRecords(v.root)}); err != nil {
		return vfs.ResultIntErr
	}
	raw, err := encodePayload(buf.Bytes(), codec)
	if err != nil {
		return vfs.ResultIntErr
	}
	if int64(len(raw)) > v.capacity() {
		return vfs.ResultDenied
	}
	bs := v.dev.BlockSize()
	padded := make([]byte, roundUp(int64(len(raw)), bs))
	copy(padded, raw)
	if err := v.dev.WriteBlocks(padded, 1); err != nil {
		return vfs.ResultDiskErr
	}

	v.boot.PayloadBytes = uint32(len(raw))
	v.boot.Codec = codec
	sector, err := v.boot.Bytes()
	if err != nil {
		return vfs.ResultIntErr
	}
	block := work
	if len(block) < bs {
		block = make([]byte, bs)
	}
	block = block[:bs]
	clear(block)
	copy(block, sector)
	if err := v.dev.WriteBlocks(block, 0); err != nil {
		return vfs.ResultDiskErr
	}
	v.dirty = false
	return nil
}

func toRecords(d *Directory) []record {
	out := make([]record, 0, len(d.entries))
	for _, e := range d.entries {
		r := record{
			Name:      e.name,
			ShortName: e.shortName,
			Attr:      uint8(e.attr),
			Data:      e.data,
			Created:   e.createTime,
			Modified:  e.writeTime,
		}
		if e.dir != nil {
			r.Children = toRecords(e.dir)
		}
		out = append(out, r)
	}
	return out
}

func fromRecords(recs []record) *Directory {
	d := &Directory{entries: make([]*DirectoryEntry, 0, len(recs))}
	for _, r := range recs {
		e := &DirectoryEntry{
			name:       r.Name,
			shortName:  r.ShortName,
			attr:       vfs.DirectoryAttr(r.Attr),
			data:       r.Data,
			createTime: r.Created,
			writeTime:  r.Modified,
		}
		if e.IsDir() {
			e.dir = fromRecords(r.Children)
		}
		d.entries = append(d.entries, e)
	}
	return d
}

// lookup walks the clean absolute path rest. The root resolves to a nil
// entry and the root directory.
func (v *volume) lookup(rest string) (*DirectoryEntry, *Directory, error) {
	dir := v.root
	var entry *DirectoryEntry
	parts := splitPath(rest)
	for i, part := range parts {
		entry = dir.Entry(part)
		if entry == nil {
			if i == len(parts)-1 {
				return nil, dir, vfs.ResultNoFile
			}
			return nil, nil, vfs.ResultNoPath
		}
		if i < len(parts)-1 {
			if !entry.IsDir() {
				return nil, nil, vfs.ResultNoPath
			}
			dir = entry.dir
		}
	}
	if entry != nil && entry.IsDir() {
		return entry, entry.dir, nil
	}
	return entry, dir, nil
}

// parent resolves the directory that holds the last component of rest.
func (v *volume) parent(rest string) (*Directory, string, error) {
	parts := splitPath(rest)
	if len(parts) == 0 {
		return nil, "", vfs.ResultInvalidName
	}
	dir := v.root
	for _, part := range parts[:len(parts)-1] {
		entry := dir.Entry(part)
		if entry == nil || !entry.IsDir() {
			return nil, "", vfs.ResultNoPath
		}
		dir = entry.dir
	}
	return dir, parts[len(parts)-1], nil
}

func roundUp(n int64, bs int) int64 {
	b := int64(bs)
	return (n + b - 1) / b * b
}
