package main

import (
	"os"

	"github.com/pkdone/mongo-uk-car-data/cmd"
	"github.com/pkdone/mongo-uk-car-data/cmd/aggregate"
	"github.com/pkdone/mongo-uk-car-data/cmd/load"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	aggregateCmd := aggregate.NewAggregateCommand()
	rootCmd.AddCommand(aggregateCmd)

	loadCmd := load.NewLoadCommand()
	rootCmd.AddCommand(loadCmd)

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
