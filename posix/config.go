package posix

import (
	"time"

	"github.com/rstms/vfs/internal/slot"
	"github.com/rstms/vfs/rtos"
)

// MaxDrives is the number of drive indices a one-digit drive prefix can
// address.
const MaxDrives = 10

// Config sizes the tables and selects the locking policy. The field tags
// let viper unmarshal it directly from a config file.
type Config struct {
	// Drives is the number of Mount Table slots.
	Drives int `mapstructure:"drives"`
	// MaxFiles and MaxDirs are the descriptor table capacities.
	MaxFiles int `mapstructure:"max_files"`
	MaxDirs  int `mapstructure:"max_dirs"`
	// IOLock is one of "none", "shared" or "per-descriptor".
	IOLock string `mapstructure:"io_lock"`
	// LockTimeout enables deadlock detection on every mutex when
	// positive.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// ScratchMin is the smallest mkfs work buffer.
	ScratchMin int `mapstructure:"scratch_min"`
	// AllowNestedMounts permits multi-component mount points such as
	// "/a/b".
	AllowNestedMounts bool `mapstructure:"allow_nested_mounts"`
}

func DefaultConfig() Config {
	return Config{
		Drives:     4,
		MaxFiles:   16,
		MaxDirs:    8,
		IOLock:     rtos.LockPerDescriptor.String(),
		ScratchMin: 4096,
	}
}

func (c Config) validate() (rtos.LockMode, error) {
	if c.Drives < 1 || c.Drives > MaxDrives {
		return 0, Fatalf("drives must be between 1 and %d, got %d", MaxDrives, c.Drives)
	}
	if c.MaxFiles < 1 || c.MaxFiles > slot.MaxCapacity {
		return 0, Fatalf("max_files must be between 1 and %d, got %d", slot.MaxCapacity, c.MaxFiles)
	}
	if c.MaxDirs < 1 || c.MaxDirs > slot.MaxCapacity {
		return 0, Fatalf("max_dirs must be between 1 and %d, got %d", slot.MaxCapacity, c.MaxDirs)
	}
	if c.LockTimeout < 0 {
		return 0, Fatalf("lock_timeout must not be negative")
	}
	mode, err := rtos.ParseLockMode(c.IOLock)
	if err != nil {
		return 0, Fatal(err)
	}
	return mode, nil
}
