package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time via:
//   go build -ldflags "-X main.version=$(git describe --tags)"
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the ilfuzz version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "ilfuzz %s\n", version)
		return nil
	},
}
