// Package cmd provides the command-line interface for jitserve.
//
// Configuration is read, highest priority first, from command-line flags,
// JITSERVE_ prefixed environment variables (JITSERVE_SERVER_PORT,
// JITSERVE_OUT) and the configuration file. The file is --config, then
// JITSERVE_CONFIG_FILE, then .jitserve.yml in the working directory.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/conneroisu/jitserve/internal/config"
	"github.com/conneroisu/jitserve/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jitserve",
	Short: "An on-demand development server for ES modules",
	Long: `jitserve serves source modules to the browser without bundling. Each request
for a TypeScript, JSX or stylesheet module is transformed just in time, cached in
memory and mirrored to the output directory. File changes invalidate the cache
and reach the browser through the live-reload client.

Quick Start:
  jitserve config init            Write a default .jitserve.yml
  jitserve serve                  Start the development server
  jitserve version                Show version information`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .jitserve.yml, can also use JITSERVE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
	})
}

// bindFlags binds each named flag to its configuration key so flags take
// precedence over the environment and the configuration file.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

// initConfig points viper at the configuration file and the environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("JITSERVE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".jitserve")
	}

	viper.SetEnvPrefix("JITSERVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the log section of cfg.
func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	}), nil
}
