package posix

import (
	"errors"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/internal/slot"
	"github.com/rstms/vfs/rtos"
)

var resultErrno = map[vfs.Result]vfs.Errno{
	vfs.ResultDiskErr:          vfs.EIO,
	vfs.ResultIntErr:           vfs.EIO,
	vfs.ResultNotReady:         vfs.EIO,
	vfs.ResultNoFile:           vfs.ENOENT,
	vfs.ResultNoPath:           vfs.ENOENT,
	vfs.ResultInvalidName:      vfs.EINVAL,
	vfs.ResultDenied:           vfs.EACCES,
	vfs.ResultExist:            vfs.EEXIST,
	vfs.ResultInvalidObject:    vfs.EBADF,
	vfs.ResultWriteProtected:   vfs.EROFS,
	vfs.ResultInvalidDrive:     vfs.ENODEV,
	vfs.ResultNotEnabled:       vfs.ENODEV,
	vfs.ResultNoFilesystem:     vfs.ENODEV,
	vfs.ResultMkfsAborted:      vfs.EACCES,
	vfs.ResultTimeout:          vfs.ENOLCK,
	vfs.ResultLocked:           vfs.EBUSY,
	vfs.ResultNotEnoughCore:    vfs.ENOMEM,
	vfs.ResultTooManyOpenFiles: vfs.ENFILE,
	vfs.ResultInvalidParameter: vfs.EINVAL,
	vfs.ResultUnsupported:      vfs.ENOSYS,
}

// errnoOf translates any error reaching a syscall boundary. Anything
// unrecognised is a generic backend failure.
func errnoOf(err error) vfs.Errno {
	var e vfs.Errno
	if errors.As(err, &e) {
		return e
	}
	var r vfs.Result
	if errors.As(err, &r) {
		if e, ok := resultErrno[r]; ok {
			return e
		}
		return vfs.EACCES
	}
	switch {
	case errors.Is(err, rtos.ErrDeadlock):
		return vfs.ENOLCK
	case errors.Is(err, slot.ErrFull):
		return vfs.ENFILE
	case errors.Is(err, slot.ErrStale):
		return vfs.EBADF
	}
	return vfs.EACCES
}

// PartialRenameError reports a cross-backend rename whose copy completed
// but whose source could not be removed: both Old and New exist.
type PartialRenameError struct {
	Old string
	New string
	Err vfs.Errno
}

func (e *PartialRenameError) Error() string {
	return "partial rename " + e.Old + " -> " + e.New + ": " + e.Err.Error()
}

func (e *PartialRenameError) Unwrap() error {
	return e.Err
}
