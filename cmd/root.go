// Package cmd builds the birdmonitor command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/naturethrive/birdmonitor/cmd/config"
	"github.com/naturethrive/birdmonitor/cmd/dashboard"
	"github.com/naturethrive/birdmonitor/internal/buildinfo"
	"github.com/naturethrive/birdmonitor/internal/conf"
	"github.com/naturethrive/birdmonitor/internal/logger"
)

// RootCommand creates and returns the root command. Settings are loaded once
// flags are parsed and shared with every subcommand through settings.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	v := conf.NewViper()
	settings := new(conf.Settings)
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "birdmonitor",
		Short:         "Bird detection dashboard",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: birdmonitor.yaml in ., user config dir or /etc/birdmonitor)")
	if err := setupFlags(rootCmd, v); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		dashboard.Command(settings, v, build),
		config.Command(settings, v),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(v, configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		applyDebug(settings)

		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logger.SetGlobal(central)
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if central == nil {
			return nil
		}
		return central.Close()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, v *viper.Viper) error {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("base-url", conf.DefaultBaseURL, "Backend base URL")

	return conf.BindFlags(v, flags, map[string]string{
		"debug":           "debug",
		"backend.baseurl": "base-url",
	})
}

// applyDebug lowers every configured log level to debug.
func applyDebug(settings *conf.Settings) {
	if !settings.Debug {
		return
	}
	settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	if settings.Logging.Console != nil {
		settings.Logging.Console.Level = string(logger.LogLevelDebug)
	}
	if settings.Logging.FileOutput != nil {
		settings.Logging.FileOutput.Level = string(logger.LogLevelDebug)
	}
}
