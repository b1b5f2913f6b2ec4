// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with MOTAGG, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("MOTAGG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/motagg", "$HOME/.motagg", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "motagg",
		Short: "Load the UK MOT test results into MongoDB and analyse them with aggregation pipelines",
		Long: `Load the UK MOT test results into MongoDB and analyse them with aggregation pipelines.

Pipelines made of a single "$facet" stage are split into one aggregation per facet, run concurrently
against the collection, and merged back into the document a server side "$facet" would return.`,
		SilenceUsage: true,
	}
}
