package device

import (
	"context"

	"github.com/rstms/vfs"
	"golang.org/x/time/rate"
)

// UART is a set of loopback serial ports. Transmission is paced at the
// configured baud rate, ten bit times per byte.
type UART struct {
	lb      *loopback
	limiter *rate.Limiter
}

var _ vfs.UART = (*UART)(nil)

// NewUART returns ports loopback ports. A baud of zero disables pacing.
func NewUART(ports, baud int) *UART {
	u := &UART{lb: newLoopback(ports, 0)}
	if bps := baud / 10; bps > 0 {
		u.limiter = rate.NewLimiter(rate.Limit(bps), bps)
	}
	return u
}

func (u *UART) Send(port int, p []byte) (int, error) {
	if u.limiter != nil {
		if err := u.pace(len(p)); err != nil {
			return 0, err
		}
	}
	return u.lb.send(port, p)
}

func (u *UART) pace(n int) error {
	burst := u.limiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := u.limiter.WaitN(context.Background(), chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (u *UART) Recv(port int, p []byte) (int, error) {
	return u.lb.recv(port, p)
}

func (u *UART) Pending(port int) int {
	return u.lb.pending(port)
}
