package main

import (
	"strconv"
	"strings"

	"github.com/rstms/vfs/media"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// parseSize accepts a byte count with an optional k, m or g suffix.
func parseSize(s string) (int64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "k"):
		mult = media.KB
	case strings.HasSuffix(s, "m"):
		mult = media.MB
	case strings.HasSuffix(s, "g"):
		mult = 1024 * media.MB
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, Fatalf("invalid size: %q", s)
	}
	return n * mult, nil
}

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "format every image",
	Long: `
Format each image given with --image. With --size the image files are
created (or truncated) first. --type is AUTO, FAT12, FAT16, FAT32 or
exFAT; --backend selects the formatting implementation.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sizeArg := viper.GetString("mkfs.size"); sizeArg != "" {
			size, err := parseSize(sizeArg)
			if err != nil {
				return err
			}
			for _, name := range viper.GetStringSlice("images") {
				img, err := media.CreateImage(hostFs, name, size)
				if err != nil {
					return err
				}
				if err := img.Close(); err != nil {
					return err
				}
			}
		}
		return withSession(false, func(s *session) error {
			return s.mkfs(viper.GetString("mkfs.type"), viper.GetString("mkfs.backend"))
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "list a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) > 0 {
			path = args[0]
		}
		return withSession(true, func(s *session) error {
			return s.list(cmd.OutOrStdout(), path)
		})
	},
}

var catCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "write a file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(true, func(s *session) error {
			return s.cat(cmd.OutOrStdout(), args[0])
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put LOCAL_FILE PATH",
	Short: "copy a host file into a volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(true, func(s *session) error {
			return s.put(args[0], args[1])
		})
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv OLD NEW",
	Short: "rename a file, copying it when the drives use different backends",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(true, func(s *session) error {
			if err := s.task.Rename(args[0], args[1]); err != nil {
				return Fatalf("mv %s %s: %v", args[0], args[1], err)
			}
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm PATH...",
	Short: "remove files or empty directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(true, func(s *session) error {
			for _, path := range args {
				if err := s.task.Unlink(path); err != nil {
					return Fatalf("rm %s: %v", path, err)
				}
			}
			return nil
		})
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH...",
	Short: "create directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(true, func(s *session) error {
			for _, path := range args {
				if err := s.task.Mkdir(path, 0o777); err != nil {
					return Fatalf("mkdir %s: %v", path, err)
				}
			}
			return nil
		})
	},
}

var statCmd = &cobra.Command{
	Use:   "stat PATH",
	Short: "show file status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(true, func(s *session) error {
			return s.stat(cmd.OutOrStdout(), args[0])
		})
	},
}

var dfCmd = &cobra.Command{
	Use:   "df",
	Short: "show volume usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(true, func(s *session) error {
			return s.df(cmd.OutOrStdout())
		})
	},
}

func init() {
	mkfsCmd.Flags().String("size", "", "create the images with this size (e.g. 720k, 4m)")
	mkfsCmd.Flags().StringP("type", "t", "AUTO", "filesystem type")
	mkfsCmd.Flags().StringP("backend", "b", "", "backend name (default: first capable)")
	viper.BindPFlag("mkfs.size", mkfsCmd.Flags().Lookup("size"))
	viper.BindPFlag("mkfs.type", mkfsCmd.Flags().Lookup("type"))
	viper.BindPFlag("mkfs.backend", mkfsCmd.Flags().Lookup("backend"))

	rootCmd.AddCommand(mkfsCmd, lsCmd, catCmd, putCmd, mvCmd, rmCmd, mkdirCmd, statCmd, dfCmd)
}
