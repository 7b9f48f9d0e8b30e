package posix

import (
	"errors"

	"github.com/rstms/vfs"
)

// taskState is the task-local storage of one caller.
type taskState struct {
	cwd string
	// umaskInv holds the inverted umask; zero means never set.
	umaskInv uint32
	errno    vfs.Errno
}

// Task is the calling context of the syscalls, standing in for an RTOS
// task. A Task must not be shared between goroutines; independent Tasks
// may call into the same VFS concurrently.
type Task struct {
	v     *VFS
	name  string
	state *taskState
}

func (v *VFS) NewTask(name string) *Task {
	return &Task{v: v, name: name}
}

func (t *Task) Name() string {
	return t.name
}

func (t *Task) local() *taskState {
	if t.state == nil {
		t.state = &taskState{}
	}
	return t.state
}

// Errno returns the errno recorded by the last failing syscall.
func (t *Task) Errno() vfs.Errno {
	return t.local().errno
}

// fail records the errno for err and returns the error handed back to
// the caller.
func (t *Task) fail(op, path string, err error) error {
	e := errnoOf(err)
	t.local().errno = e
	t.v.log.Debug("syscall failed", "task", t.name, "op", op, "path", path, "errno", int(e), "error", err)
	var partial *PartialRenameError
	if errors.As(err, &partial) {
		return partial
	}
	return e
}

// Umask sets the file creation mask and returns the previous one.
func (t *Task) Umask(mask uint32) uint32 {
	s := t.local()
	var old uint32
	if s.umaskInv != 0 {
		old = ^s.umaskInv & 0o777
	}
	s.umaskInv = ^(mask & 0o777)
	return old
}

func (t *Task) applyUmask(mode uint32) uint32 {
	if inv := t.local().umaskInv; inv != 0 {
		return mode & inv
	}
	return mode
}

// Getcwd returns the working directory. Before the first Chdir it is
// the fallback used for relative paths.
func (t *Task) Getcwd() (string, error) {
	cwd, err := t.cwd()
	if err != nil {
		return "", t.fail("getcwd", "", err)
	}
	return cwd, nil
}

func (t *Task) Chdir(path string) error {
	logical, err := t.normalize(path)
	if err != nil {
		return t.fail("chdir", path, err)
	}
	st, err := t.statLogical(logical)
	if err != nil {
		return t.fail("chdir", path, err)
	}
	if !st.IsDir() && !st.IsLink() {
		return t.fail("chdir", path, vfs.ENOTDIR)
	}
	t.local().cwd = logical
	return nil
}
