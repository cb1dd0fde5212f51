package cmd

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hardup/hardup/pkg/logger"
)

var (
	// Global flags
	FlagConfigFolder = defaultConfigFolder()
	FlagConfigFile   = "config.yaml"
	FlagLogFile      = ""
	FlagLogLevel     = 0

	// Global vars
	initialized bool
)

func RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hardup",
		Short: "Replace duplicate files with hardlinks",
		Long: `A CLI application that finds regular files with identical content on one file system
and replaces the duplicates with hardlinks to a single retained copy.
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	initialized = false

	// Parse persistent flags
	rootCmd.PersistentFlags().StringVar(&FlagConfigFolder, "config-dir", defaultConfigFolder(), "Config folder")
	rootCmd.PersistentFlags().StringVarP(&FlagConfigFile, "config", "c", "config.yaml", "Config file")
	rootCmd.PersistentFlags().StringVarP(&FlagLogFile, "log", "l", "", "Log file, relative paths are placed in the config folder")
	rootCmd.PersistentFlags().CountVarP(&FlagLogLevel, "verbose", "v", "Verbose level")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withCode(ExitUsage, err)
	})

	rootCmd.AddCommand(LinkCommand())
	rootCmd.AddCommand(VersionCommand())

	return rootCmd
}

func defaultConfigFolder() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	return filepath.Join(dir, "hardup")
}

func inConfigFolder(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(FlagConfigFolder, path)
}

// initCore sets up logging once per process; minLevel is the least verbose level allowed.
func initCore(minLevel logrus.Level) error {
	if initialized {
		return nil
	}

	if err := logger.Init(logger.Config{
		File:      inConfigFolder(FlagLogFile),
		Verbosity: FlagLogLevel,
		MinLevel:  minLevel,
	}); err != nil {
		return err
	}

	initialized = true
	return nil
}
