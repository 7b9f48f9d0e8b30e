package posix

import (
	"time"

	"github.com/rstms/vfs"
)

// deviceRecv and deviceSend route device descriptors straight to the
// hardware drivers. Caller holds the descriptor's I/O mutex.
func (v *VFS) deviceRecv(of *openFile, p []byte) (int, error) {
	var n int
	var err error
	switch of.class {
	case vfs.DeviceI2C:
		if v.drivers.I2C == nil {
			return 0, vfs.ENODEV
		}
		n, err = v.drivers.I2C.Recv(of.number, p)
	case vfs.DeviceSPI:
		if v.drivers.SPI == nil {
			return 0, vfs.ENODEV
		}
		n, err = v.drivers.SPI.Recv(of.number>>4, of.number&0xf, p)
	case vfs.DeviceTTY:
		if v.drivers.UART == nil {
			return 0, vfs.ENODEV
		}
		n, err = v.drivers.UART.Recv(of.number, p)
	default:
		return 0, vfs.ENODEV
	}
	return n, v.driverError(of, err)
}

func (v *VFS) deviceSend(of *openFile, p []byte) (int, error) {
	var n int
	var err error
	switch of.class {
	case vfs.DeviceI2C:
		if v.drivers.I2C == nil {
			return 0, vfs.ENODEV
		}
		n, err = v.drivers.I2C.Send(of.number, p)
	case vfs.DeviceSPI:
		if v.drivers.SPI == nil {
			return 0, vfs.ENODEV
		}
		n, err = v.drivers.SPI.Send(of.number>>4, of.number&0xf, p)
	case vfs.DeviceTTY:
		if v.drivers.UART == nil {
			return 0, vfs.ENODEV
		}
		n, err = v.drivers.UART.Send(of.number, p)
	default:
		return 0, vfs.ENODEV
	}
	return n, v.driverError(of, err)
}

func (v *VFS) driverError(of *openFile, err error) error {
	if err == nil {
		return nil
	}
	v.log.Debug("driver error", "class", of.class.String(), "number", of.number, "error", err)
	return vfs.EIO
}

// deviceStat synthesises the entry of a device node.
func deviceStat(class vfs.DeviceClass, number int) vfs.Stat {
	return vfs.Stat{
		Mode:  vfs.S_IFCHR | vfs.S_IRWALL,
		Dev:   int(class),
		Rdev:  number,
		Mtime: time.Unix(0, 0),
		Atime: time.Unix(0, 0),
		Ctime: time.Unix(0, 0),
	}
}
