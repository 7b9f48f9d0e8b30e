package posix

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rstms/vfs"
	"github.com/rstms/vfs/device"
	"github.com/rstms/vfs/internal/slot"
	"github.com/rstms/vfs/rtos"
	"github.com/stretchr/testify/require"
)

func TestDeviceNodes(t *testing.T) {
	i2c := device.NewI2C(2)
	spi := device.NewSPI(2, 4)
	uart := device.NewUART(2, 0)
	f := newFixture(t, DefaultConfig(), WithDrivers(vfs.Drivers{I2C: i2c, SPI: spi, UART: uart}))
	task := f.task

	tests := []struct {
		path    string
		class   vfs.DeviceClass
		number  int
		pending func() int
	}{
		{"/dev/i2c1", vfs.DeviceI2C, 1, func() int { return i2c.Pending(1) }},
		{"/dev/spi13", vfs.DeviceSPI, 0x13, func() int { return spi.Pending(1, 3) }},
		{"/dev/tty0", vfs.DeviceTTY, 0, func() int { return uart.Pending(0) }},
	}
	for _, tc := range tests {
		fd, err := task.Open(tc.path, vfs.O_RDWR, 0)
		require.Nil(t, err, tc.path)

		n, err := task.Write(fd, []byte("ping"))
		require.Nil(t, err)
		require.Equal(t, 4, n)
		require.Equal(t, 4, tc.pending())

		buf := make([]byte, 8)
		n, err = task.Read(fd, buf)
		require.Nil(t, err)
		require.Equal(t, "ping", string(buf[:n]))

		st, err := task.Fstat(fd)
		require.Nil(t, err)
		require.Equal(t, uint32(vfs.S_IFCHR|vfs.S_IRWALL), st.Mode)
		require.Equal(t, int(tc.class), st.Dev)
		require.Equal(t, tc.number, st.Rdev)

		_, err = task.Lseek(fd, 0, vfs.SEEK_SET)
		require.Equal(t, vfs.EBADF, err)
		_, err = task.Devctl(fd, vfs.DevctlSync)
		require.Equal(t, vfs.ENOSYS, err)
		_, err = task.Fstatfs(fd)
		require.Equal(t, vfs.EINVAL, err)
		require.Nil(t, task.Close(fd))

		st, err = task.Stat(tc.path)
		require.Nil(t, err)
		require.Equal(t, tc.number, st.Rdev)
	}

	// driver failures surface as EIO
	fd, err := task.Open("/dev/i2c7", vfs.O_WRONLY, 0)
	require.Nil(t, err)
	_, err = task.Write(fd, []byte("x"))
	require.Equal(t, vfs.EIO, err)
	require.Nil(t, task.Close(fd))

	// a malformed node name is not a device
	_, err = task.Open("/dev/spi1", vfs.O_RDWR, 0)
	require.Equal(t, vfs.EINVAL, err)
}

func TestDeviceWithoutDriver(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	task := f.task
	for _, path := range []string{"/dev/i2c0", "/dev/spi00", "/dev/tty0"} {
		fd, err := task.Open(path, vfs.O_RDWR, 0)
		require.Nil(t, err)
		_, err = task.Write(fd, []byte("x"))
		require.Equal(t, vfs.ENODEV, err, path)
		_, err = task.Read(fd, make([]byte, 1))
		require.Equal(t, vfs.ENODEV, err, path)
		require.Nil(t, task.Close(fd))
	}
}

func TestDeviceSurvivesUnmount(t *testing.T) {
	f := newFixture(t, DefaultConfig(), WithDrivers(vfs.Drivers{UART: device.NewUART(1, 0)}))
	f.mounted(t, "0:", "/dsk0")
	task := f.task
	fd, err := task.Open("/dev/tty0", vfs.O_RDWR, 0)
	require.Nil(t, err)
	require.Nil(t, task.Unmount("/dsk0"))
	_, err = task.Write(fd, []byte("still here"))
	require.Nil(t, err)
	require.Nil(t, task.Close(fd))
}

func TestErrnoOf(t *testing.T) {
	tests := []struct {
		err  error
		want vfs.Errno
	}{
		{vfs.ResultDiskErr, vfs.EIO},
		{vfs.ResultIntErr, vfs.EIO},
		{vfs.ResultNotReady, vfs.EIO},
		{vfs.ResultNoFile, vfs.ENOENT},
		{vfs.ResultNoPath, vfs.ENOENT},
		{vfs.ResultInvalidName, vfs.EINVAL},
		{vfs.ResultDenied, vfs.EACCES},
		{vfs.ResultExist, vfs.EEXIST},
		{vfs.ResultInvalidObject, vfs.EBADF},
		{vfs.ResultWriteProtected, vfs.EROFS},
		{vfs.ResultInvalidDrive, vfs.ENODEV},
		{vfs.ResultNotEnabled, vfs.ENODEV},
		{vfs.ResultNoFilesystem, vfs.ENODEV},
		{vfs.ResultMkfsAborted, vfs.EACCES},
		{vfs.ResultTimeout, vfs.ENOLCK},
		{vfs.ResultLocked, vfs.EBUSY},
		{vfs.ResultNotEnoughCore, vfs.ENOMEM},
		{vfs.ResultTooManyOpenFiles, vfs.ENFILE},
		{vfs.ResultInvalidParameter, vfs.EINVAL},
		{vfs.ResultUnsupported, vfs.ENOSYS},
		{vfs.EXDEV, vfs.EXDEV},
		{fmt.Errorf("wrapped: %w", vfs.ResultNoFile), vfs.ENOENT},
		{fmt.Errorf("%w: io", rtos.ErrDeadlock), vfs.ENOLCK},
		{slot.ErrFull, vfs.ENFILE},
		{slot.ErrStale, vfs.EBADF},
		{errors.New("anything else"), vfs.EACCES},
		{&PartialRenameError{Old: "/a", New: "/b", Err: vfs.EBUSY}, vfs.EBUSY},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, errnoOf(tc.err), tc.err.Error())
	}
}

func TestErrnoIsTaskLocal(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	a := f.v.NewTask("a")
	b := f.v.NewTask("b")

	_, err := a.Open("/nowhere", vfs.O_RDONLY, 0)
	require.Equal(t, vfs.EINVAL, err)
	require.Equal(t, vfs.EBADF, b.Close(42))
	require.Equal(t, vfs.EINVAL, a.Errno())
	require.Equal(t, vfs.EBADF, b.Errno())
	require.Equal(t, "a", a.Name())
}
