package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/conneroisu/jitserve/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	versionFormat   string
	versionShort    bool
	versionDetailed bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for jitserve.

Examples:
  jitserve version               # Version, commit and platform
  jitserve version --short       # Version only
  jitserve version --format json # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json, yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	return writeVersion(cmd.OutOrStdout(), versionFormat, versionShort, versionDetailed)
}

func writeVersion(w io.Writer, format string, short, detailed bool) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(version.GetBuildInfo())
	case "yaml":
		return yaml.NewEncoder(w).Encode(version.GetBuildInfo())
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}

	if short {
		_, err := fmt.Fprintln(w, version.GetShortVersion())
		return err
	}

	if detailed {
		fmt.Fprintln(w, version.GetDetailedVersion())
		if version.IsDirty() {
			fmt.Fprintln(w, "Working directory: dirty")
		}
		if version.IsRelease() {
			fmt.Fprintln(w, "Build type: release")
		} else {
			fmt.Fprintln(w, "Build type: development")
		}
		return nil
	}

	info := version.GetBuildInfo()
	line := "jitserve " + version.GetShortVersion()
	if info.Dirty {
		line += " (dirty)"
	}
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Go: %s\nPlatform: %s\n", info.GoVersion, info.Platform)
	return nil
}
