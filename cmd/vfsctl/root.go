package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rstms/vfs/posix"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// hostFs holds the image files.
var hostFs afero.Fs = afero.NewOsFs()

var rootCmd = &cobra.Command{
	Use:   "vfsctl",
	Short: "operate on FAT volume images through the vfs syscall layer",
	Long: `
vfsctl attaches one or more image files as drives 0, 1, ... and mounts
each at /dskN before running the command. Paths may be logical
("/dsk0/docs/a.txt") or drive-qualified ("0:/docs/a.txt").
`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default $HOME/.vfsctl.yaml)")
	pf.StringArrayP("image", "i", nil, "image file for the next drive (repeatable)")
	pf.BoolP("readonly", "r", false, "open images read-only")
	pf.BoolP("in-memory", "m", false, "work on RAM copies, written back only if the command succeeds")
	pf.BoolP("verbose", "v", false, "log failing syscalls")
	pf.Int("drives", posix.DefaultConfig().Drives, "mount table size")
	pf.String("io-lock", posix.DefaultConfig().IOLock, "descriptor I/O locking: none, shared or per-descriptor")
	viper.BindPFlag("images", pf.Lookup("image"))
	viper.BindPFlag("readonly", pf.Lookup("readonly"))
	viper.BindPFlag("in_memory", pf.Lookup("in-memory"))
	viper.BindPFlag("verbose", pf.Lookup("verbose"))
	viper.BindPFlag("drives", pf.Lookup("drives"))
	viper.BindPFlag("io_lock", pf.Lookup("io-lock"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		name := filepath.Join(home, ".vfsctl.yaml")
		if IsFile(name) {
			viper.SetConfigFile(name)
		}
	}
	viper.SetEnvPrefix("VFS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if viper.ConfigFileUsed() != "" {
		cobra.CheckErr(viper.ReadInConfig())
	}
}

// loadConfig reads the syscall layer configuration from v on top of the
// built-in defaults.
func loadConfig(v *viper.Viper) (posix.Config, error) {
	def := posix.DefaultConfig()
	v.SetDefault("drives", def.Drives)
	v.SetDefault("max_files", def.MaxFiles)
	v.SetDefault("max_dirs", def.MaxDirs)
	v.SetDefault("io_lock", def.IOLock)
	v.SetDefault("lock_timeout", def.LockTimeout)
	v.SetDefault("scratch_min", def.ScratchMin)
	v.SetDefault("allow_nested_mounts", def.AllowNestedMounts)
	var cfg posix.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, Fatal(err)
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// withSession opens the configured images, mounts them, runs fn and
// flushes everything back to the image files.
func withSession(mount bool, fn func(s *session) error) (err error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	images := viper.GetStringSlice("images")
	if len(images) == 0 {
		return Fatalf("no image files given")
	}
	readOnly := viper.GetBool("readonly")
	s, err := newSession(hostFs, cfg, images, readOnly, viper.GetBool("in_memory"), newLogger(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.abort()
			return
		}
		err = s.close()
	}()
	if mount {
		if err := s.mountAll(); err != nil {
			return err
		}
	}
	return fn(s)
}
