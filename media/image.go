package media

import (
	"errors"
	"io"
	"log"
	"os"
	"sync"

	"github.com/rstms/vfs"
	"github.com/spf13/afero"
)

const KB = 1024
const MB = 1024 * 1024

// DefaultBlockSize is the native block size of image files.
const DefaultBlockSize = 512

var ErrWriteProtected = errors.New("medium is write protected")

// Image is a BlockDevice backed by a host image file.
type Image struct {
	Filename  string
	fs        afero.Fs
	file      afero.File
	blockSize int
	size      int64
	readOnly  bool
	mu        sync.Mutex
}

// ensure Image implements vfs.BlockDevice
var _ vfs.BlockDevice = (*Image)(nil)

// OpenImage opens an existing image file. A nil fs means the host
// filesystem.
func OpenImage(fs afero.Fs, filename string, readOnly bool) (*Image, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	i := Image{Filename: filename, fs: fs, blockSize: DefaultBlockSize, readOnly: readOnly}
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	var err error
	i.file, err = fs.OpenFile(filename, flag, 0600)
	if err != nil {
		return nil, Fatal(err)
	}
	info, err := i.file.Stat()
	if err != nil {
		i.closeFile()
		return nil, Fatal(err)
	}
	if info.IsDir() {
		i.closeFile()
		return nil, Fatalf("image is a directory: %s", filename)
	}
	i.size = info.Size()
	return &i, nil
}

// CreateImage creates (or truncates) an image file of the given size,
// rounded up to a whole KiB.
func CreateImage(fs afero.Fs, filename string, size int64) (*Image, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	i := Image{Filename: filename, fs: fs, blockSize: DefaultBlockSize}
	err := i.createImageFile(size)
	if err != nil {
		return nil, Fatal(err)
	}
	return &i, nil
}

// create, truncate, and size the output file
func (i *Image) createImageFile(size int64) error {
	if size%int64(KB) != 0 {
		size = (size/int64(KB) + 1) * int64(KB)
	}
	log.Printf("image %s: %d bytes\n", i.Filename, size)
	var err error
	i.file, err = i.fs.OpenFile(i.Filename, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return Fatal(err)
	}
	err = i.file.Truncate(size)
	if err != nil {
		return Fatal(err)
	}
	i.size = size
	return nil
}

func (i *Image) closeFile() error {
	if i.file != nil {
		err := i.file.Close()
		if err != nil {
			return Fatal(err)
		}
		i.file = nil
	}
	return nil
}

func (i *Image) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closeFile()
}

func (i *Image) BlockSize() int {
	return i.blockSize
}

func (i *Image) Size() int64 {
	return i.size
}

func (i *Image) ReadOnly() bool {
	return i.readOnly
}

func (i *Image) ReadBlocks(dst []byte, startBlock int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.file == nil {
		return Fatalf("image closed: %s", i.Filename)
	}
	if err := i.checkRange(len(dst), startBlock); err != nil {
		return err
	}
	_, err := i.file.ReadAt(dst, startBlock*int64(i.blockSize))
	if err != nil && err != io.EOF {
		return Fatal(err)
	}
	return nil
}

func (i *Image) WriteBlocks(data []byte, startBlock int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.file == nil {
		return Fatalf("image closed: %s", i.Filename)
	}
	if i.readOnly {
		return ErrWriteProtected
	}
	if err := i.checkRange(len(data), startBlock); err != nil {
		return err
	}
	_, err := i.file.WriteAt(data, startBlock*int64(i.blockSize))
	if err != nil {
		return Fatal(err)
	}
	return nil
}

// Sync flushes the host file.
func (i *Image) Sync() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.file == nil {
		return nil
	}
	if err := i.file.Sync(); err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) checkRange(n int, startBlock int64) error {
	if n%i.blockSize != 0 {
		return Fatalf("transfer of %d bytes is not a multiple of block size %d", n, i.blockSize)
	}
	if startBlock < 0 || startBlock*int64(i.blockSize)+int64(n) > i.size {
		return Fatalf("block range [%d,+%d) outside medium", startBlock, n/i.blockSize)
	}
	return nil
}
