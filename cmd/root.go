// Package cmd provides the rescomp command-line interface.
//
// Configuration is read from several sources, highest priority first:
//  1. Command-line flags (--config, --context, --log-level, ...)
//  2. RESCOMP_CONFIG_FILE, naming a custom config file
//  3. Individual environment variables (RESCOMP_BUILD_OUT_DIR, ...)
//  4. The .rescomp.yml file in the current directory
//
// Environment variables follow the RESCOMP_<SECTION>_<OPTION> pattern.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/rescomp/internal/config"
	"github.com/conneroisu/rescomp/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rescomp",
	Short: "Compile style sheets and templates into their final text",
	Long: `rescomp runs each resource (style sheet, template) through an isolated
nested build, extracts the primary output as plain text, merges secondary
assets into the host build and records which files every resource read.

Quick Start:
  rescomp compile                 Compile every entry matched by build.entries
  rescomp compile src/main.css    Compile one resource
  rescomp deps                    Show the files each resource depends on
  rescomp watch                   Recompile on change, with optional live reload`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .rescomp.yml, can also use RESCOMP_CONFIG_FILE env var)")
	flags.StringP("context", "C", ".", "compile context directory")
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	AddFlagValidation(rootCmd.PersistentFlags(), "log-level", func(s string) error {
		_, err := logging.ParseLevel(s)
		return err
	})
	AddFlagValidation(rootCmd.PersistentFlags(), "log-format", ValidateOneOf("text", "json"))

	SetViperBindings(viper.GetViper(), rootCmd.PersistentFlags(), map[string]string{
		"context":    "context",
		"log-level":  "log.level",
		"log-format": "log.format",
	})
}

// initConfig points Viper at the config file and enables RESCOMP_ env
// overrides. A missing config file is not an error.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("RESCOMP_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".rescomp")
	}

	viper.SetEnvPrefix("RESCOMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadRuntime loads the configuration and builds the logger it describes.
func loadRuntime() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) logging.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    os.Stderr,
		Component: "rescomp",
	})
}
