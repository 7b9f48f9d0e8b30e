package vfs

import "strconv"

// Result is the return code set shared by the FAT backends.
type Result int

const (
	ResultOK               Result = iota // succeeded
	ResultDiskErr                        // hard error in the low level disk I/O layer
	ResultIntErr                         // assertion failed
	ResultNotReady                       // the physical drive cannot work
	ResultNoFile                         // could not find the file
	ResultNoPath                         // could not find the path
	ResultInvalidName                    // the path name format is invalid
	ResultDenied                         // access denied or directory full
	ResultExist                          // the object already exists
	ResultInvalidObject                  // the file/directory object is invalid
	ResultWriteProtected                 // the physical drive is write protected
	ResultInvalidDrive                   // the logical drive number is invalid
	ResultNotEnabled                     // the volume has no work area
	ResultNoFilesystem                   // there is no valid FAT volume
	ResultMkfsAborted                    // mkfs aborted
	ResultTimeout                        // could not get a grant to access the volume
	ResultLocked                         // rejected by the file sharing policy
	ResultNotEnoughCore                  // working buffer could not be allocated
	ResultTooManyOpenFiles               // too many open objects
	ResultInvalidParameter               // given parameter is invalid
	ResultUnsupported                    // operation not supported
)

func (r Result) Error() string {
	return "fat.fr:" + strconv.Itoa(int(r))
}
