package fat

import (
	"encoding/binary"
	"strings"
	"unicode"

	"github.com/rstms/vfs"
)

// SectorSize is the size of the encoded boot sector.
const SectorSize = 512

type MediaType uint8

// The standard value for "fixed", non-removable media, directly
// from the FAT specification.
const MediaFixed MediaType = 0xF8

// Offsets of the payload descriptor, stored in the boot code area.
const (
	offPayloadBytes = 0x1F0
	offPayloadCodec = 0x1F4
	offFSType       = 0x1F5
)

// BootSector is the subset of the BIOS parameter block this backend
// writes, plus the location of the directory payload.
type BootSector struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	TotalSectors      uint32
	Media             MediaType
	VolumeID          uint32
	VolumeLabel       string
	FSType            vfs.FSType
	PayloadBytes      uint32
	Codec             Codec
}

func (b *BootSector) ClusterBytes() int {
	return int(b.BytesPerSector) * int(b.SectorsPerCluster)
}

func (b *BootSector) Bytes() ([]byte, error) {
	var sector [SectorSize]byte

	// BS_jmpBoot
	sector[0] = 0xEB
	sector[1] = 0x3C
	sector[2] = 0x90

	// BS_OEMName
	if err := putASCII(sector[3:11], b.OEMName, "OEMName"); err != nil {
		return nil, err
	}

	// BPB_BytsPerSec
	binary.LittleEndian.PutUint16(sector[11:13], b.BytesPerSector)

	// BPB_SecPerClus
	sector[13] = b.SectorsPerCluster

	// BPB_RsvdSecCnt
	binary.LittleEndian.PutUint16(sector[14:16], 1)

	// BPB_NumFATs
	sector[16] = 2

	// BPB_TotSec16 AND BPB_TotSec32
	if b.TotalSectors < 0x10000 {
		binary.LittleEndian.PutUint16(sector[19:21], uint16(b.TotalSectors))
	} else {
		binary.LittleEndian.PutUint32(sector[32:36], b.TotalSectors)
	}

	// BPB_Media
	sector[21] = byte(b.Media)

	// BS_BootSig
	sector[38] = 0x29

	// BS_VolID
	binary.LittleEndian.PutUint32(sector[39:43], b.VolumeID)

	// BS_VolLab
	label := b.VolumeLabel
	if label == "" {
		label = "NO NAME"
	}
	if err := putASCII(sector[43:54], label, "VolumeLabel"); err != nil {
		return nil, err
	}

	// BS_FilSysType
	if err := putASCII(sector[54:62], fsTypeLabel(b.FSType), "FileSystemTypeLabel"); err != nil {
		return nil, err
	}

	binary.LittleEndian.PutUint32(sector[offPayloadBytes:], b.PayloadBytes)
	sector[offPayloadCodec] = byte(b.Codec)
	sector[offFSType] = byte(b.FSType)

	// Important signature of every FAT boot sector
	sector[510] = 0x55
	sector[511] = 0xAA

	return sector[:], nil
}

// DecodeBootSector parses a boot sector written by Bytes. Anything that
// is not one is reported as ResultNoFilesystem.
func DecodeBootSector(sector []byte) (*BootSector, error) {
	if len(sector) < SectorSize || sector[510] != 0x55 || sector[511] != 0xAA {
		return nil, vfs.ResultNoFilesystem
	}
	if sector[0] != 0xEB || sector[38] != 0x29 {
		return nil, vfs.ResultNoFilesystem
	}
	b := &BootSector{
		OEMName:           getASCII(sector[3:11]),
		BytesPerSector:    binary.LittleEndian.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		Media:             MediaType(sector[21]),
		VolumeID:          binary.LittleEndian.Uint32(sector[39:43]),
		VolumeLabel:       getASCII(sector[43:54]),
		FSType:            vfs.FSType(sector[offFSType]),
		PayloadBytes:      binary.LittleEndian.Uint32(sector[offPayloadBytes:]),
		Codec:             Codec(sector[offPayloadCodec]),
	}
	b.TotalSectors = uint32(binary.LittleEndian.Uint16(sector[19:21]))
	if b.TotalSectors == 0 {
		b.TotalSectors = binary.LittleEndian.Uint32(sector[32:36])
	}
	if b.BytesPerSector == 0 || b.SectorsPerCluster == 0 || b.TotalSectors == 0 {
		return nil, vfs.ResultNoFilesystem
	}
	if b.FSType == vfs.FSAuto || b.FSType > vfs.FSExFat {
		return nil, vfs.ResultNoFilesystem
	}
	if getASCII(sector[54:62]) != fsTypeLabel(b.FSType) {
		return nil, vfs.ResultNoFilesystem
	}
	return b, nil
}

func fsTypeLabel(t vfs.FSType) string {
	switch t {
	case vfs.FSFat12:
		return "FAT12"
	case vfs.FSFat16:
		return "FAT16"
	case vfs.FSFat32:
		return "FAT32"
	case vfs.FSExFat:
		return "EXFAT"
	}
	return ""
}

func putASCII(dst []byte, s, field string) error {
	if len(s) > len(dst) {
		return Fatalf("%s must be %d bytes or less", field, len(dst))
	}
	for i := range dst {
		dst[i] = ' '
	}
	for i, r := range s {
		if r > unicode.MaxASCII {
			return Fatalf("%q in %s not a valid ASCII char", r, field)
		}
		dst[i] = byte(r)
	}
	return nil
}

func getASCII(src []byte) string {
	return strings.TrimRight(string(src), " \x00")
}
