package media

import (
	"errors"
	"sync"

	"github.com/rstms/vfs"
)

var (
	ErrNoMedia      = errors.New("no medium in drive")
	ErrNotReady     = errors.New("medium not initialized")
	ErrInvalidDrive = errors.New("invalid drive number")
)

type slot struct {
	name        string
	dev         vfs.BlockDevice
	removable   bool
	initialized bool
	probes      int
}

// Set is the drive-indexed media layer.
type Set struct {
	mu     sync.Mutex
	drives []slot
}

// ensure Set implements vfs.Media
var _ vfs.Media = (*Set)(nil)

func NewSet(drives int) *Set {
	return &Set{drives: make([]slot, drives)}
}

// Attach inserts dev into drive. The drive must be empty.
func (s *Set) Attach(drive int, name string, dev vfs.BlockDevice, removable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drive < 0 || drive >= len(s.drives) {
		return ErrInvalidDrive
	}
	if s.drives[drive].dev != nil {
		return Fatalf("drive %d already holds %s", drive, s.drives[drive].name)
	}
	s.drives[drive] = slot{name: name, dev: dev, removable: removable}
	return nil
}

// Detach removes the medium from drive and returns it.
func (s *Set) Detach(drive int) (vfs.BlockDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drive < 0 || drive >= len(s.drives) {
		return nil, ErrInvalidDrive
	}
	dev := s.drives[drive].dev
	if dev == nil {
		return nil, ErrNoMedia
	}
	s.drives[drive] = slot{}
	return dev, nil
}

func (s *Set) Initialize(drive int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.slot(drive)
	if err != nil {
		return err
	}
	d.initialized = true
	d.probes++
	return nil
}

func (s *Set) Device(drive int) (vfs.BlockDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.slot(drive)
	if err != nil {
		return nil, err
	}
	if !d.initialized {
		return nil, ErrNotReady
	}
	return d.dev, nil
}

func (s *Set) Info(drive int) (vfs.MediaInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.slot(drive)
	if err != nil {
		return vfs.MediaInfo{}, err
	}
	info := vfs.MediaInfo{
		Name:      d.name,
		Size:      d.dev.Size(),
		BlockSize: d.dev.BlockSize(),
		Removable: d.removable,
	}
	if ro, ok := d.dev.(interface{ ReadOnly() bool }); ok {
		info.ReadOnly = ro.ReadOnly()
	}
	return info, nil
}

func (s *Set) Release(drive int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drive >= 0 && drive < len(s.drives) {
		s.drives[drive].initialized = false
	}
}

// Probes counts how often drive has been initialized.
func (s *Set) Probes(drive int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drive < 0 || drive >= len(s.drives) {
		return 0
	}
	return s.drives[drive].probes
}

// Initialized reports whether drive holds cached probe state.
func (s *Set) Initialized(drive int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if drive < 0 || drive >= len(s.drives) {
		return false
	}
	return s.drives[drive].initialized
}

func (s *Set) slot(drive int) (*slot, error) {
	if drive < 0 || drive >= len(s.drives) {
		return nil, ErrInvalidDrive
	}
	d := &s.drives[drive]
	if d.dev == nil {
		return nil, ErrNoMedia
	}
	return d, nil
}
