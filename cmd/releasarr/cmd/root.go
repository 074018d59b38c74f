// Package cmd implements the CLI commands for releasarr.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/releasarr/internal/config"
	"github.com/jmylchreest/releasarr/internal/observability"
	"github.com/jmylchreest/releasarr/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "releasarr/skip-config"

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string
	// appConfig is loaded by PersistentPreRunE.
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "releasarr",
	Short:   "Release feed ingestion and library matching service",
	Version: version.Short(),
	Long: `releasarr ingests release feeds from indexers, normalizes titles and
categories, keeps each source within its retention caps and reports whether
a release is already present in Radarr or Sonarr.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set here to avoid an initialization cycle through rootCmd.PersistentFlags.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return nil
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		appConfig = cfg
		initLogging(cfg.Logging)
		return nil
	}

	// Logging flags are not bound to viper. They only override the loaded
	// configuration when set explicitly, so that flag > env > file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/releasarr, $HOME/.releasarr)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initLogging installs the default logger from cfg and any explicit
// --log-level and --log-format flags.
func initLogging(cfg config.LoggingConfig) {
	overrideString(rootCmd.PersistentFlags(), "log-level", &cfg.Level)
	overrideString(rootCmd.PersistentFlags(), "log-format", &cfg.Format)

	cfg.Level = strings.ToLower(cfg.Level)
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Level == "warning" {
		cfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(cfg, os.Stderr)
	observability.SetDefault(observability.WithApp(logger))
}

// overrideString sets dst from the named flag when the user set it.
func overrideString(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		*dst, _ = flags.GetString(name)
	}
}

// overrideInt sets dst from the named flag when the user set it.
func overrideInt(flags *pflag.FlagSet, name string, dst *int) {
	if flags.Changed(name) {
		*dst, _ = flags.GetInt(name)
	}
}

// logger returns the process logger for a command.
func logger(component string) *slog.Logger {
	return observability.WithComponent(slog.Default(), component)
}
