// Package config implements the command printing the effective settings.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/naturethrive/birdmonitor/internal/conf"
)

// Command creates a new cobra.Command printing the effective configuration as YAML.
func Command(settings *conf.Settings, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Prints the configuration after defaults, config file, environment and flags are merged. Secrets are redacted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			source := v.ConfigFileUsed()
			if source == "" {
				source = "none, defaults and environment only"
			}
			fmt.Fprintf(out, "# config file: %s\n", source)
			return conf.WriteYAML(out, settings)
		},
	}
}
