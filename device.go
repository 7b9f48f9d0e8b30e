package vfs

// DeviceClass identifies the hardware driver behind a /dev node.
type DeviceClass uint8

const (
	DeviceNone DeviceClass = iota
	DeviceI2C
	DeviceSPI
	DeviceTTY
)

func (c DeviceClass) String() string {
	switch c {
	case DeviceI2C:
		return "i2c"
	case DeviceSPI:
		return "spi"
	case DeviceTTY:
		return "tty"
	}
	return "none"
}

type I2C interface {
	Send(bus int, p []byte) (int, error)
	Recv(bus int, p []byte) (int, error)
}

type SPI interface {
	Send(controller, slave int, p []byte) (int, error)
	Recv(controller, slave int, p []byte) (int, error)
}

type UART interface {
	Send(port int, p []byte) (int, error)
	Recv(port int, p []byte) (int, error)
}

// Drivers is the set of hardware drivers reachable through device nodes.
// A nil driver makes the matching nodes fail with ENODEV.
type Drivers struct {
	I2C  I2C
	SPI  SPI
	UART UART
}
