package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/jitserve/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage jitserve configuration",
	Long: `Manage jitserve configuration files and settings.

Examples:
  jitserve config init                 # Write .jitserve.yml with defaults
  jitserve config show                 # Show the resolved configuration
  jitserve config show --format json   # Show it as JSON
  jitserve config validate             # Report problems with the configuration`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration after loading the configuration file, applying
environment variable overrides and command-line flags, and setting defaults.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Check the resolved configuration for errors that prevent serving and for
settings that are likely mistakes, with hints for fixing each one.`,
	RunE: runConfigValidate,
}

var (
	configOutput string
	configForce  bool
	configFormat string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", ".jitserve.yml", "Output configuration file")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

// defaultFileConfig is the configuration written by config init. Paths stay
// relative so the file can be committed.
func defaultFileConfig() *config.Config {
	cfg := config.Default()
	cfg.WorkDir = ""
	cfg.Root = "."
	cfg.Out = ".jitserve"
	cfg.Watch.Ignore = []string{"*.swp", "*~", ".DS_Store"}
	return cfg
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configOutput); err == nil && !configForce {
		return fmt.Errorf("configuration file %s already exists (use --force to overwrite)", configOutput)
	}

	data, err := yaml.Marshal(defaultFileConfig())
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := os.WriteFile(configOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to %s\n", configOutput)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
}

func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "yaml", "yml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(cfg)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return reportValidation(cmd.OutOrStdout(), &cfg)
}

// reportValidation prints every issue found in cfg and fails when any of them
// is an error.
func reportValidation(w io.Writer, cfg *config.Config) error {
	result, err := config.Validate(cfg)
	if err != nil {
		return err
	}

	if !result.HasErrors() && !result.HasWarnings() {
		fmt.Fprintln(w, "Configuration is valid")
		return nil
	}

	fmt.Fprint(w, result.String())
	if result.HasErrors() {
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}
	return nil
}
