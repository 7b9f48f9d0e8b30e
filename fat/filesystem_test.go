package fat

import (
	"bytes"
	"io"
	"testing"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/media"
	"github.com/stretchr/testify/require"
)

func TestFileSystemImplementsBackend(t *testing.T) {
	var raw interface{}
	raw = New("FATFS")
	if _, ok := raw.(vfs.Backend); !ok {
		t.Fatal("FileSystem should be a Backend")
	}
}

func formatted(t *testing.T, fs *FileSystem, size int64) *media.MemDisk {
	disk := media.NewMemDisk(size, 0)
	require.Nil(t, fs.Mkfs(0, disk, vfs.FSAuto, make([]byte, 4096)))
	typ, err := fs.Mount(0, disk)
	require.Nil(t, err)
	require.NotEqual(t, vfs.FSAuto, typ)
	return disk
}

func writeFile(t *testing.T, fs *FileSystem, path string, data []byte) {
	f, err := fs.Open(path, vfs.AccessWrite|vfs.CreateAlways)
	require.Nil(t, err)
	n, err := f.Write(data)
	require.Nil(t, err)
	require.Equal(t, len(data), n)
	require.Nil(t, f.Close())
}

func readFile(t *testing.T, fs *FileSystem, path string) []byte {
	f, err := fs.Open(path, vfs.AccessRead)
	require.Nil(t, err)
	defer f.Close()
	var out bytes.Buffer
	buf := make([]byte, 7)
	for {
		n, err := f.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		require.Nil(t, err)
	}
	return out.Bytes()
}

func TestChooseLayout(t *testing.T) {
	tests := []struct {
		typ     vfs.FSType
		sectors int64
		want    vfs.FSType
		spc     uint8
		err     error
	}{
		{vfs.FSAuto, 2048, vfs.FSFat12, 1, nil},
		{vfs.FSAuto, 16384, vfs.FSFat16, 1, nil},
		{vfs.FSAuto, 200000, vfs.FSFat32, 1, nil},
		{vfs.FSFat12, 16384, vfs.FSFat12, 8, nil},
		{vfs.FSFat16, 2048, vfs.FSFat16, 0, vfs.ResultMkfsAborted},
		{vfs.FSFat32, 2048, vfs.FSFat32, 0, vfs.ResultMkfsAborted},
		{vfs.FSExFat, 2048, vfs.FSExFat, 1, nil},
	}
	for _, tc := range tests {
		got, spc, err := chooseLayout(tc.typ, tc.sectors)
		require.Equal(t, tc.err, err, "%v %d", tc.typ, tc.sectors)
		require.Equal(t, tc.want, got)
		require.Equal(t, tc.spc, spc)
	}
}

func TestMkfsErrors(t *testing.T) {
	fs := New("EFSL")
	disk := media.NewMemDisk(64*media.KB, 0)
	require.Equal(t, vfs.ResultNotEnoughCore, fs.Mkfs(0, disk, vfs.FSAuto, make([]byte, 16)))
	require.Equal(t, vfs.ResultUnsupported, fs.Mkfs(0, disk, vfs.FSExFat, make([]byte, 512)))
	require.Equal(t, vfs.ResultMkfsAborted, fs.Mkfs(0, media.NewMemDisk(2*media.KB, 0), vfs.FSAuto, make([]byte, 512)))
	disk.SetReadOnly(true)
	require.Equal(t, vfs.ResultWriteProtected, fs.Mkfs(0, disk, vfs.FSAuto, make([]byte, 512)))
}

func TestMountBlankDisk(t *testing.T) {
	fs := New("FATFS", WithExFAT())
	_, err := fs.Mount(0, media.NewMemDisk(64*media.KB, 0))
	require.Equal(t, vfs.ResultNoFilesystem, err)
	require.Equal(t, vfs.ResultNotEnabled, fs.Unmount(0))
}

func TestExFATNeedsCapableBackend(t *testing.T) {
	capable := New("FATFS", WithExFAT(), WithCodec(CodecZstd))
	disk := media.NewMemDisk(256*media.KB, 0)
	require.Nil(t, capable.Mkfs(1, disk, vfs.FSExFat, make([]byte, 512)))
	typ, err := capable.Mount(1, disk)
	require.Nil(t, err)
	require.Equal(t, vfs.FSExFat, typ)

	plain := New("EFSL")
	require.False(t, plain.Supports(vfs.FSExFat))
	_, err = plain.Mount(1, disk)
	require.Equal(t, vfs.ResultNoFilesystem, err)
}

func TestOpenDispositions(t *testing.T) {
	fs := New("FATFS")
	formatted(t, fs, 256*media.KB)

	_, err := fs.Open("0:/missing.txt", vfs.AccessRead)
	require.Equal(t, vfs.ResultNoFile, err)
	_, err = fs.Open("0:/nodir/x.txt", vfs.AccessWrite|vfs.CreateNew)
	require.Equal(t, vfs.ResultNoPath, err)

	f, err := fs.Open("0:/new.txt", vfs.AccessWrite|vfs.CreateNew)
	require.Nil(t, err)
	require.Nil(t, f.Close())
	_, err = fs.Open("0:/new.txt", vfs.AccessWrite|vfs.CreateNew)
	require.Equal(t, vfs.ResultExist, err)

	writeFile(t, fs, "0:/new.txt", []byte("hello"))
	f, err = fs.Open("0:/NEW.TXT", vfs.AccessRead|vfs.AccessWrite|vfs.OpenAlways)
	require.Nil(t, err)
	require.Equal(t, int64(5), f.Size())
	require.Nil(t, f.Close())

	writeFile(t, fs, "0:/new.txt", []byte("hi"))
	require.Equal(t, []byte("hi"), readFile(t, fs, "0:/new.txt"))

	require.Nil(t, fs.Mkdir("0:/sub"))
	_, err = fs.Open("0:/sub", vfs.AccessRead)
	require.Equal(t, vfs.ResultDenied, err)
	_, err = fs.Open("0:/bad?.txt", vfs.AccessWrite|vfs.CreateNew)
	require.Equal(t, vfs.ResultInvalidName, err)
	_, err = fs.Open("9:/x", vfs.AccessRead)
	require.Equal(t, vfs.ResultNotEnabled, err)
}

func TestOpenSharingPolicy(t *testing.T) {
	fs := New("FATFS", WithMaxOpen(3))
	formatted(t, fs, 256*media.KB)
	writeFile(t, fs, "0:/a.txt", []byte("abc"))

	r1, err := fs.Open("0:/a.txt", vfs.AccessRead)
	require.Nil(t, err)
	r2, err := fs.Open("0:/a.txt", vfs.AccessRead)
	require.Nil(t, err)
	_, err = fs.Open("0:/a.txt", vfs.AccessWrite)
	require.Equal(t, vfs.ResultLocked, err)
	require.Equal(t, vfs.ResultLocked, fs.Unlink("0:/a.txt"))
	require.Equal(t, vfs.ResultLocked, fs.Rename("0:/a.txt", "0:/b.txt"))

	d, err := fs.OpenDir("0:/")
	require.Nil(t, err)
	_, err = fs.Open("0:/a.txt", vfs.AccessRead)
	require.Equal(t, vfs.ResultTooManyOpenFiles, err)
	require.Nil(t, d.Close())
	require.Equal(t, vfs.ResultInvalidObject, d.Close())

	require.Nil(t, r1.Close())
	require.Nil(t, r2.Close())
	require.Equal(t, vfs.ResultInvalidObject, r2.Close())
	require.Nil(t, fs.Unlink("0:/a.txt"))
}

func TestFileReadWriteSeek(t *testing.T) {
	fs := New("FULLFAT")
	formatted(t, fs, 256*media.KB)

	f, err := fs.Open("0:/data.bin", vfs.AccessRead|vfs.AccessWrite|vfs.CreateNew)
	require.Nil(t, err)
	n, err := f.Write([]byte("0123456789"))
	require.Nil(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, int64(10), f.Tell())

	require.Nil(t, f.Seek(4))
	buf := make([]byte, 3)
	n, err = f.Read(buf)
	require.Nil(t, err)
	require.Equal(t, "456", string(buf[:n]))

	require.Nil(t, f.Seek(15))
	require.Equal(t, int64(15), f.Size())
	require.Nil(t, f.Seek(6))
	require.Nil(t, f.Truncate())
	require.Equal(t, int64(6), f.Size())
	_, err = f.Read(buf)
	require.Equal(t, io.EOF, err)

	st, err := f.Stat()
	require.Nil(t, err)
	require.Equal(t, int64(6), st.Size)
	require.Nil(t, f.Close())
	_, err = f.Read(buf)
	require.Equal(t, vfs.ResultInvalidObject, err)

	r, err := fs.Open("0:/data.bin", vfs.AccessRead)
	require.Nil(t, err)
	require.Nil(t, r.Seek(100))
	require.Equal(t, int64(6), r.Tell())
	_, err = r.Write([]byte("x"))
	require.Equal(t, vfs.ResultDenied, err)
	require.Equal(t, vfs.ResultDenied, r.Truncate())
	require.Nil(t, r.Close())
}

func TestWriteStopsWhenFull(t *testing.T) {
	fs := New("EFSL", WithCodec(CodecNone))
	formatted(t, fs, 8*media.KB)

	f, err := fs.Open("0:/big", vfs.AccessWrite|vfs.CreateNew)
	require.Nil(t, err)
	big := bytes.Repeat([]byte{0x5a}, 16*media.KB)
	n, err := f.Write(big)
	require.Nil(t, err)
	require.Greater(t, n, 0)
	require.Less(t, n, len(big))
	n, err = f.Write(big)
	require.Nil(t, err)
	require.Equal(t, 0, n)
	require.Nil(t, f.Close())
}

func TestRenameUnlinkMkdir(t *testing.T) {
	fs := New("FATFS")
	formatted(t, fs, 256*media.KB)

	require.Nil(t, fs.Mkdir("0:/docs"))
	require.Equal(t, vfs.ResultExist, fs.Mkdir("0:/DOCS"))
	require.Nil(t, fs.Mkdir("0:/docs/old"))
	writeFile(t, fs, "0:/docs/a.txt", []byte("a"))
	writeFile(t, fs, "0:/b.txt", []byte("b"))

	require.Equal(t, vfs.ResultExist, fs.Rename("0:/b.txt", "0:/docs/a.txt"))
	require.Equal(t, vfs.ResultNoFile, fs.Rename("0:/zz.txt", "0:/yy.txt"))
	require.Equal(t, vfs.ResultInvalidName, fs.Rename("0:/docs", "0:/docs/old/docs"))
	require.Nil(t, fs.Rename("0:/b.txt", "0:/docs/old/c.txt"))
	require.Equal(t, []byte("b"), readFile(t, fs, "0:/docs/old/c.txt"))

	require.Equal(t, vfs.ResultDenied, fs.Unlink("0:/docs"))
	require.Nil(t, fs.Unlink("0:/docs/old/c.txt"))
	require.Nil(t, fs.Unlink("0:/docs/old"))
	require.Equal(t, vfs.ResultNoFile, fs.Unlink("0:/docs/old"))

	require.Nil(t, fs.Chmod("0:/docs/a.txt", vfs.AttrReadOnly, vfs.AttrReadOnly))
	require.Equal(t, vfs.ResultDenied, fs.Unlink("0:/docs/a.txt"))
	_, err := fs.Open("0:/docs/a.txt", vfs.AccessWrite)
	require.Equal(t, vfs.ResultDenied, err)
	st, err := fs.Stat("0:/docs/a.txt")
	require.Nil(t, err)
	require.False(t, st.Writable())
	require.Equal(t, vfs.ResultInvalidParameter, fs.Chmod("0:/docs/a.txt", 0, vfs.AttrDirectory))

	_, err = fs.Stat("0:/")
	require.Equal(t, vfs.ResultInvalidName, err)
	st, err = fs.Stat("0:/docs")
	require.Nil(t, err)
	require.True(t, st.IsDir())
}

func TestDirStream(t *testing.T) {
	fs := New("FATFS")
	formatted(t, fs, 256*media.KB)
	require.Nil(t, fs.Mkdir("0:/d"))
	writeFile(t, fs, "0:/d/one", []byte("1"))
	writeFile(t, fs, "0:/d/two", []byte("22"))

	d, err := fs.OpenDir("0:/d")
	require.Nil(t, err)
	var names []string
	for {
		e, ok, err := d.Read()
		require.Nil(t, err)
		if !ok {
			break
		}
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"one", "two"}, names)
	require.Equal(t, int64(2), d.Tell())
	require.Nil(t, d.Seek(1))
	e, ok, err := d.Read()
	require.Nil(t, err)
	require.True(t, ok)
	require.Equal(t, vfs.Dirent{Name: "two", Type: vfs.DT_REG, Size: 2}, e)
	require.Nil(t, d.Rewind())
	require.Equal(t, int64(0), d.Tell())
	require.Equal(t, vfs.ResultInvalidParameter, d.Seek(3))
	require.Nil(t, d.Close())

	_, err = fs.OpenDir("0:/d/one")
	require.Equal(t, vfs.ResultNoPath, err)
	_, err = fs.OpenDir("0:/nope")
	require.Equal(t, vfs.ResultNoPath, err)
}

func TestVolumePersistsAcrossBackends(t *testing.T) {
	a := New("FATFS", WithExFAT(), WithCodec(CodecZstd), WithVolumeLabel("DATA"))
	disk := formatted(t, a, 256*media.KB)
	require.Nil(t, a.Mkdir("0:/logs"))
	payload := bytes.Repeat([]byte("log line\n"), 100)
	writeFile(t, a, "0:/logs/boot.log", payload)
	require.Nil(t, a.Unmount(0))

	b := New("FULLFAT", WithCodec(CodecLZ4))
	_, err := b.Mount(3, disk)
	require.Nil(t, err)
	require.Equal(t, payload, readFile(t, b, "3:/logs/boot.log"))
	writeFile(t, b, "3:/logs/next.log", []byte("x"))

	info, err := b.StatFS(3)
	require.Nil(t, err)
	require.Equal(t, "DATA", info.Label)
	require.Equal(t, int64(3), info.Files)
	require.Greater(t, info.Bfree, int64(0))
	require.Nil(t, b.Unmount(3))

	_, err = a.Mount(0, disk)
	require.Nil(t, err)
	require.Equal(t, []byte("x"), readFile(t, a, "0:/logs/next.log"))
}

func TestRenameAcrossDrives(t *testing.T) {
	fs := New("FATFS")
	formatted(t, fs, 256*media.KB)
	other := media.NewMemDisk(256*media.KB, 0)
	require.Nil(t, fs.Mkfs(1, other, vfs.FSAuto, make([]byte, 512)))
	_, err := fs.Mount(1, other)
	require.Nil(t, err)

	writeFile(t, fs, "0:/move.txt", []byte("moving"))
	require.Nil(t, fs.Rename("0:/move.txt", "1:/moved.txt"))
	_, err = fs.Stat("0:/move.txt")
	require.Equal(t, vfs.ResultNoFile, err)
	require.Equal(t, []byte("moving"), readFile(t, fs, "1:/moved.txt"))
}

func TestWriteProtectedVolume(t *testing.T) {
	fs := New("FATFS")
	disk := formatted(t, fs, 256*media.KB)
	writeFile(t, fs, "0:/a.txt", []byte("a"))
	disk.SetReadOnly(true)

	_, err := fs.Open("0:/a.txt", vfs.AccessWrite)
	require.Equal(t, vfs.ResultWriteProtected, err)
	require.Equal(t, vfs.ResultWriteProtected, fs.Mkdir("0:/x"))
	require.Equal(t, vfs.ResultWriteProtected, fs.Unlink("0:/a.txt"))
	require.Equal(t, []byte("a"), readFile(t, fs, "0:/a.txt"))
}

func TestStaleHandleAfterUnmount(t *testing.T) {
	fs := New("FATFS")
	disk := formatted(t, fs, 256*media.KB)
	f, err := fs.Open("0:/held.txt", vfs.AccessWrite|vfs.CreateNew)
	require.Nil(t, err)
	_, err = f.Write([]byte("before"))
	require.Nil(t, err)
	require.Nil(t, fs.Unmount(0))

	_, err = f.Write([]byte("after"))
	require.Equal(t, vfs.ResultInvalidObject, err)
	require.Equal(t, vfs.ResultInvalidObject, f.Sync())
	require.Equal(t, vfs.ResultInvalidObject, f.Close())
	require.Equal(t, vfs.ResultInvalidObject, f.Close())

	// the handle never reaches the remounted volume
	_, err = fs.Mount(0, disk)
	require.Nil(t, err)
	require.Equal(t, []byte("before"), readFile(t, fs, "0:/held.txt"))
	g, err := fs.Open("0:/held.txt", vfs.AccessWrite)
	require.Nil(t, err)
	require.Nil(t, g.Close())
}
