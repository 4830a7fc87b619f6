// logpackd fronts an upstream HTTP service and packs diagnostics for the
// requests it fails or that match its filters.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "logpackd",
	Short:         "Capture diagnostic archives for failing HTTP requests",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "logpackd %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "logpack.yaml", "Path to a JSON or YAML config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
