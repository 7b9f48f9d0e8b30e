package media

import (
	"sync"

	"github.com/rstms/vfs"
)

// MemDisk is an in-memory BlockDevice.
type MemDisk struct {
	mu        sync.RWMutex
	data      []byte
	blockSize int
	readOnly  bool
}

// ensure MemDisk implements vfs.BlockDevice
var _ vfs.BlockDevice = (*MemDisk)(nil)

// NewMemDisk returns a zeroed disk of size bytes rounded up to a whole
// block. A blockSize of zero selects DefaultBlockSize.
func NewMemDisk(size int64, blockSize int) *MemDisk {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if size%int64(blockSize) != 0 {
		size = (size/int64(blockSize) + 1) * int64(blockSize)
	}
	return &MemDisk{data: make([]byte, size), blockSize: blockSize}
}

func (d *MemDisk) BlockSize() int {
	return d.blockSize
}

func (d *MemDisk) Size() int64 {
	return int64(len(d.data))
}

func (d *MemDisk) SetReadOnly(state bool) {
	d.mu.Lock()
	d.readOnly = state
	d.mu.Unlock()
}

func (d *MemDisk) ReadOnly() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readOnly
}

func (d *MemDisk) ReadBlocks(dst []byte, startBlock int64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	off, err := d.offset(len(dst), startBlock)
	if err != nil {
		return err
	}
	copy(dst, d.data[off:])
	return nil
}

func (d *MemDisk) WriteBlocks(data []byte, startBlock int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.readOnly {
		return ErrWriteProtected
	}
	off, err := d.offset(len(data), startBlock)
	if err != nil {
		return err
	}
	copy(d.data[off:], data)
	return nil
}

// Bytes returns a copy of the whole medium.
func (d *MemDisk) Bytes() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out
}

func (d *MemDisk) offset(n int, startBlock int64) (int64, error) {
	if n%d.blockSize != 0 {
		return 0, Fatalf("transfer of %d bytes is not a multiple of block size %d", n, d.blockSize)
	}
	off := startBlock * int64(d.blockSize)
	if startBlock < 0 || off+int64(n) > int64(len(d.data)) {
		return 0, Fatalf("block range [%d,+%d) outside medium", startBlock, n/d.blockSize)
	}
	return off, nil
}
