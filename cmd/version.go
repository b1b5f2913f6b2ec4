package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkdone/mongo-uk-car-data/internal/build"
)

// NewVersionCommand returns the command to get the motagg version
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Return the motagg version",
		Long:  "Return the motagg version.",
		RunE:  version,
		Args:  cobra.NoArgs,
	}

	return cmd
}

// print out the built version
func version(cmd *cobra.Command, _ []string) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "motagg Version %s Date %s commit id %s\n", build.Version, build.Date, build.Commit)
	return err
}
