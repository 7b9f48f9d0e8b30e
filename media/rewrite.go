package media

import (
	"github.com/rstms/vfs"
	"github.com/spf13/afero"
)

// LoadImage reads a whole image file into a MemDisk.
func LoadImage(fs afero.Fs, filename string) (*MemDisk, error) {
	src, err := OpenImage(fs, filename, true)
	if err != nil {
		return nil, Fatal(err)
	}
	defer src.Close()
	dst := NewMemDisk(src.Size(), src.BlockSize())
	err = copyBlocks(dst, src)
	if err != nil {
		return nil, Fatal(err)
	}
	return dst, nil
}

// SaveImage writes every block of dev to a new image file.
func SaveImage(fs afero.Fs, filename string, dev vfs.BlockDevice) error {
	dst, err := CreateImage(fs, filename, dev.Size())
	if err != nil {
		return Fatal(err)
	}
	defer dst.Close()
	err = copyBlocks(dst, dev)
	if err != nil {
		return Fatal(err)
	}
	err = dst.Sync()
	if err != nil {
		return Fatal(err)
	}
	return nil
}

const copyChunkBlocks = 64

func copyBlocks(dst, src vfs.BlockDevice) error {
	bs := src.BlockSize()
	if dst.BlockSize() != bs {
		return Fatalf("block size mismatch: %d != %d", dst.BlockSize(), bs)
	}
	total := src.Size() / int64(bs)
	if dst.Size() < src.Size() {
		return Fatalf("destination too small: %d < %d", dst.Size(), src.Size())
	}
	buf := make([]byte, copyChunkBlocks*bs)
	for block := int64(0); block < total; block += copyChunkBlocks {
		n := total - block
		if n > copyChunkBlocks {
			n = copyChunkBlocks
		}
		chunk := buf[:n*int64(bs)]
		if err := src.ReadBlocks(chunk, block); err != nil {
			return Fatal(err)
		}
		if err := dst.WriteBlocks(chunk, block); err != nil {
			return Fatal(err)
		}
	}
	return nil
}
