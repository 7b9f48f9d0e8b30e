package rtos

import (
	"fmt"
	"strings"
	"time"
)

// LockMode selects how descriptor I/O is serialised.
type LockMode int

const (
	// LockNone performs descriptor I/O without any mutex.
	LockNone LockMode = iota
	// LockShared uses one mutex for all descriptors of a kind.
	LockShared
	// LockPerDescriptor gives every descriptor its own mutex.
	LockPerDescriptor
)

func (m LockMode) String() string {
	switch m {
	case LockNone:
		return "none"
	case LockShared:
		return "shared"
	case LockPerDescriptor:
		return "per-descriptor"
	}
	return fmt.Sprintf("LockMode(%d)", int(m))
}

func ParseLockMode(s string) (LockMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return LockNone, nil
	case "shared":
		return LockShared, nil
	case "", "per-descriptor", "perdescriptor":
		return LockPerDescriptor, nil
	}
	return LockNone, fmt.Errorf("unknown lock mode: %q", s)
}

// IOLocks hands out descriptor I/O mutexes according to a LockMode.
type IOLocks struct {
	mode    LockMode
	name    string
	timeout time.Duration
	shared  *Mutex
}

func NewIOLocks(name string, mode LockMode, timeout time.Duration) *IOLocks {
	l := &IOLocks{mode: mode, name: name, timeout: timeout}
	if mode == LockShared {
		l.shared = NewMutex(name, timeout)
	}
	return l
}

// New returns the mutex for a newly allocated descriptor. It is nil
// under LockNone.
func (l *IOLocks) New() *Mutex {
	switch l.mode {
	case LockShared:
		return l.shared
	case LockPerDescriptor:
		return NewMutex(l.name, l.timeout)
	}
	return nil
}

func (l *IOLocks) Mode() LockMode {
	return l.mode
}
