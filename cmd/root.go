// Package cmd holds the command line interface of the butterfly API.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "1.0.0"

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "butterfly-api",
		Short: "butterfly, user and rating REST API",
		Long: fmt.Sprintf(`butterfly-api (v%s)

A small REST API over butterflies, users and their ratings, backed by a
single document persisted after every write.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "butterfly-api v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
