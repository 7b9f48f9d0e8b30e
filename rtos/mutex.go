// Package rtos provides the RTOS primitives the syscall layer depends
// on: a mutex with optional deadlock detection and the policy that
// decides how descriptor I/O is serialised.
package rtos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrDeadlock is returned by Lock when the deadlock-detection timeout
// expires before the mutex is granted.
var ErrDeadlock = errors.New("mutex: deadlock detected")

// Mutex is a binary semaphore. A zero timeout blocks forever; a
// positive timeout bounds the wait and surfaces ErrDeadlock.
//
// All methods are safe on a nil *Mutex and do nothing, which is how the
// "no protection" I/O lock mode is expressed.
type Mutex struct {
	name    string
	sem     *semaphore.Weighted
	timeout time.Duration
}

func NewMutex(name string, timeout time.Duration) *Mutex {
	return &Mutex{
		name:    name,
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
	}
}

func (m *Mutex) Name() string {
	if m == nil {
		return ""
	}
	return m.name
}

func (m *Mutex) Lock() error {
	if m == nil {
		return nil
	}
	if m.timeout <= 0 {
		return m.sem.Acquire(context.Background(), 1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %s after %s", ErrDeadlock, m.name, m.timeout)
	}
	return nil
}

// LockWait acquires the mutex without the deadlock timeout. It is for
// bookkeeping that has to run once work done outside the lock finishes.
func (m *Mutex) LockWait() {
	if m == nil {
		return
	}
	m.sem.Acquire(context.Background(), 1)
}

func (m *Mutex) TryLock() bool {
	if m == nil {
		return true
	}
	return m.sem.TryAcquire(1)
}

// Unlock releases the mutex. Releasing a mutex that is not held is a
// corrupted lock state and panics.
func (m *Mutex) Unlock() {
	if m == nil {
		return
	}
	m.sem.Release(1)
}
