package main

import (
	"fmt"

	"logpack/internal/config"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file without starting the proxy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		warnings, err := config.ValidateServe(cfg)
		out := cmd.OutOrStdout()
		for _, warning := range warnings {
			fmt.Fprintf(out, "warning: %s\n", warning)
		}
		if err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}
		fmt.Fprintf(out, "%s: ok\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
