// Package device provides loopback hardware drivers for the /dev nodes.
// Whatever is sent on a channel is queued and handed back by Recv on the
// same channel, which is enough to exercise the passthrough path without
// real buses.
package device

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/rstms/vfs"
)

// ErrNoChannel is returned for a bus, slave or port that does not exist.
var ErrNoChannel = errors.New("no such channel")

// ErrOverrun is returned when a channel's receive queue is full.
var ErrOverrun = errors.New("receive queue overrun")

// DefaultQueueSize is the per-channel queue capacity in bytes.
const DefaultQueueSize = 4096

type loopback struct {
	mu       sync.Mutex
	channels int
	limit    int
	queues   map[int]*bytes.Buffer
}

func newLoopback(channels, limit int) *loopback {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	return &loopback{channels: channels, limit: limit, queues: make(map[int]*bytes.Buffer)}
}

func (l *loopback) queue(ch int) (*bytes.Buffer, error) {
	if ch < 0 || ch >= l.channels {
		return nil, fmt.Errorf("%w: %d", ErrNoChannel, ch)
	}
	q, ok := l.queues[ch]
	if !ok {
		q = new(bytes.Buffer)
		l.queues[ch] = q
	}
	return q, nil
}

func (l *loopback) send(ch int, p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, err := l.queue(ch)
	if err != nil {
		return 0, err
	}
	room := l.limit - q.Len()
	if room <= 0 {
		return 0, ErrOverrun
	}
	if len(p) > room {
		p = p[:room]
	}
	return q.Write(p)
}

func (l *loopback) recv(ch int, p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, err := l.queue(ch)
	if err != nil {
		return 0, err
	}
	if q.Len() == 0 {
		return 0, nil
	}
	return q.Read(p)
}

func (l *loopback) pending(ch int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if q, ok := l.queues[ch]; ok {
		return q.Len()
	}
	return 0
}

// I2C is a set of loopback I2C buses.
type I2C struct {
	lb *loopback
}

var _ vfs.I2C = (*I2C)(nil)

func NewI2C(buses int) *I2C {
	return &I2C{lb: newLoopback(buses, 0)}
}

func (d *I2C) Send(bus int, p []byte) (int, error) {
	return d.lb.send(bus, p)
}

func (d *I2C) Recv(bus int, p []byte) (int, error) {
	return d.lb.recv(bus, p)
}

func (d *I2C) Pending(bus int) int {
	return d.lb.pending(bus)
}

// SPI is a set of loopback SPI controllers, each with up to 16 slaves.
type SPI struct {
	slaves int
	lb     *loopback
}

var _ vfs.SPI = (*SPI)(nil)

func NewSPI(controllers, slaves int) *SPI {
	if slaves > 16 {
		slaves = 16
	}
	return &SPI{slaves: slaves, lb: newLoopback(controllers<<4, 0)}
}

func (d *SPI) channel(controller, slave int) int {
	if slave < 0 || slave >= d.slaves {
		return -1
	}
	return controller<<4 | slave
}

func (d *SPI) Send(controller, slave int, p []byte) (int, error) {
	return d.lb.send(d.channel(controller, slave), p)
}

func (d *SPI) Recv(controller, slave int, p []byte) (int, error) {
	return d.lb.recv(d.channel(controller, slave), p)
}

func (d *SPI) Pending(controller, slave int) int {
	return d.lb.pending(d.channel(controller, slave))
}
