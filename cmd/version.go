package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hardup/hardup/pkg/runtime"
)

func VersionCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Long:  `Print version info`,
		Example: `  hardup version
  hardup version --help`,
		Args: cobra.NoArgs,
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "hardup version: %s commit: %s built at: %s\n",
			runtime.Version, runtime.GitCommit, runtime.Timestamp)
		return err
	}

	return command
}
