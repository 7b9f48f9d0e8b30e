package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/fat"
	"github.com/rstms/vfs/media"
	"github.com/rstms/vfs/posix"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

const ioChunk = 4096

// backends returns the FAT implementations available to the session in
// mount priority order.
func backends() []vfs.Backend {
	return []vfs.Backend{
		fat.New("FATFS", fat.WithExFAT(), fat.WithCodec(fat.CodecZstd)),
		fat.New("EFSL"),
		fat.New("FULLFAT"),
	}
}

func mountPoint(drive int) string {
	return "/dsk" + strconv.Itoa(drive)
}

type session struct {
	fs       afero.Fs
	readOnly bool
	names    []string
	images   []*media.Image
	// memory holds the RAM copies of an in-memory session; they are
	// written back to names on close unless discard is set.
	memory  []*media.MemDisk
	discard bool
	v       *posix.VFS
	task    *posix.Task
}

func newSession(fs afero.Fs, cfg posix.Config, names []string, readOnly, inMemory bool, log *slog.Logger) (*session, error) {
	if len(names) > cfg.Drives {
		return nil, Fatalf("%d images exceed the %d configured drives", len(names), cfg.Drives)
	}
	s := &session{fs: fs, readOnly: readOnly, names: names}
	set := media.NewSet(cfg.Drives)
	for i, name := range names {
		dev, err := s.load(name, inMemory)
		if err == nil {
			err = set.Attach(i, name, dev, true)
		}
		if err != nil {
			s.abort()
			return nil, err
		}
	}
	v, err := posix.New(cfg, posix.WithLogger(log), posix.WithMedia(set), posix.WithBackends(backends()...))
	if err != nil {
		s.abort()
		return nil, err
	}
	s.v = v
	s.task = v.NewTask("vfsctl")
	return s, nil
}

// load opens the image file name, or reads it into RAM for an in-memory
// session.
func (s *session) load(name string, inMemory bool) (vfs.BlockDevice, error) {
	if inMemory {
		disk, err := media.LoadImage(s.fs, name)
		if err != nil {
			return nil, err
		}
		disk.SetReadOnly(s.readOnly)
		s.memory = append(s.memory, disk)
		return disk, nil
	}
	img, err := media.OpenImage(s.fs, name, s.readOnly)
	if err != nil {
		return nil, err
	}
	s.images = append(s.images, img)
	return img, nil
}

func (s *session) mountAll() error {
	flags := 0
	if s.readOnly {
		flags = vfs.MNT_RDONLY
	}
	for i, name := range s.names {
		if err := s.task.Mount("AUTO", mountPoint(i), flags, strconv.Itoa(i)+":"); err != nil {
			return Fatalf("mount %s: %v", name, err)
		}
	}
	return nil
}

// abort closes the session without writing RAM copies back.
func (s *session) abort() error {
	s.discard = true
	return s.close()
}

// close unmounts every drive, which flushes the volumes, then syncs and
// closes the image files or writes the RAM copies back to them.
func (s *session) close() error {
	var errs error
	if s.v != nil {
		mounts, err := s.v.Mounts()
		errs = multierr.Append(errs, err)
		for _, m := range mounts {
			if err := s.task.Unmount(m.Point); err != nil {
				errs = multierr.Append(errs, Fatalf("unmount %s: %v", m.Point, err))
			}
		}
	}
	for _, img := range s.images {
		if !s.readOnly {
			errs = multierr.Append(errs, img.Sync())
		}
		errs = multierr.Append(errs, img.Close())
	}
	if !s.readOnly && !s.discard {
		for i, disk := range s.memory {
			errs = multierr.Append(errs, media.SaveImage(s.fs, s.names[i], disk))
		}
	}
	return errs
}

func (s *session) mkfs(fsType, backend string) error {
	for i := range s.names {
		data := strconv.Itoa(i) + ":" + backend
		if err := s.task.Mkfs(fsType, data); err != nil {
			return Fatalf("mkfs %s: %v", s.names[i], err)
		}
	}
	return nil
}

func direntType(t vfs.DirentType) string {
	switch t {
	case vfs.DT_DIR:
		return "d"
	case vfs.DT_LNK:
		return "l"
	case vfs.DT_CHR:
		return "c"
	}
	return "-"
}

func (s *session) list(w io.Writer, path string) error {
	dirp, err := s.task.Opendir(path)
	if err != nil {
		return Fatalf("%s: %v", path, err)
	}
	defer s.task.Closedir(dirp)
	for {
		e, err := s.task.Readdir(dirp)
		if err != nil {
			return Fatalf("%s: %v", path, err)
		}
		if e == nil {
			return nil
		}
		fmt.Fprintf(w, "%s %10d %s\n", direntType(e.Type), e.Size, e.Name)
	}
}

func (s *session) cat(w io.Writer, path string) error {
	fd, err := s.task.Open(path, vfs.O_RDONLY, 0)
	if err != nil {
		return Fatalf("%s: %v", path, err)
	}
	defer s.task.Close(fd)
	buf := make([]byte, ioChunk)
	for {
		n, err := s.task.Read(fd, buf)
		if err != nil {
			return Fatalf("%s: %v", path, err)
		}
		if n == 0 {
			return nil
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return Fatal(err)
		}
	}
}

// put copies the host file local into path, replacing any existing file.
func (s *session) put(local, path string) error {
	data, err := afero.ReadFile(s.fs, local)
	if err != nil {
		return Fatal(err)
	}
	fd, err := s.task.Open(path, vfs.O_CREAT|vfs.O_WRONLY|vfs.O_TRUNC, 0o666)
	if err != nil {
		return Fatalf("%s: %v", path, err)
	}
	for len(data) > 0 {
		n, err := s.task.Write(fd, data[:min(len(data), ioChunk)])
		if err != nil {
			s.task.Close(fd)
			return Fatalf("%s: %v", path, err)
		}
		data = data[n:]
	}
	if err := s.task.Close(fd); err != nil {
		return Fatalf("%s: %v", path, err)
	}
	return nil
}

func (s *session) stat(w io.Writer, path string) error {
	st, err := s.task.Stat(path)
	if err != nil {
		return Fatalf("%s: %v", path, err)
	}
	fmt.Fprintf(w, "path:  %s\nmode:  %06o\nsize:  %d\ndrive: %d\nmtime: %s\n",
		path, st.Mode, st.Size, st.Dev, st.Mtime.UTC().Format("2006-01-02 15:04:05"))
	return nil
}

func (s *session) df(w io.Writer) error {
	mounts, err := s.v.Mounts()
	if err != nil {
		return Fatal(err)
	}
	fmt.Fprintf(w, "%-8s %-8s %-6s %10s %10s %s\n", "point", "backend", "type", "size", "free", "label")
	for _, m := range mounts {
		st, err := s.task.Statfs(m.Point)
		if err != nil {
			return Fatalf("%s: %v", m.Point, err)
		}
		bs := int64(st.Bsize)
		fmt.Fprintf(w, "%-8s %-8s %-6s %10d %10d %s\n",
			m.Point, m.Backend, st.Type, st.Blocks*bs, st.Bfree*bs, strings.TrimSpace(st.Label))
	}
	return nil
}
