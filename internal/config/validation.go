package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ValidationError is a configuration problem with suggestions for fixing it.
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			fmt.Fprintf(&builder, "  - %s: %s\n", issue.Field, issue.Message)
			for _, suggestion := range issue.Suggestions {
				fmt.Fprintf(&builder, "      hint: %s\n", suggestion)
			}
		}
	}

	write("Errors", vr.Errors)
	if len(vr.Errors) > 0 && len(vr.Warnings) > 0 {
		builder.WriteString("\n")
	}
	write("Warnings", vr.Warnings)

	return builder.String()
}

// Validate applies defaults to cfg and reports its problems in detail.
func Validate(cfg *Config) (*ValidationResult, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return ValidateConfigWithDetails(cfg), nil
}

// ValidateConfigWithDetails reports every problem in config, separating
// errors that prevent serving from warnings. Paths are checked against the
// filesystem, so call it after defaults are applied.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateLayoutDetails(config, result)
	validateServerConfigDetails(&config.Server, result)
	validateWatchConfigDetails(&config.Watch, result)
	validateAliasDetails(config, result)
	validateLogDetails(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateLayoutDetails(config *Config, result *ValidationResult) {
	if info, err := os.Stat(config.Root); err != nil {
		result.addError("root", config.Root, "project root does not exist",
			"Create the directory or point root at an existing one",
			"Relative roots are resolved against cwd")
	} else if !info.IsDir() {
		result.addError("root", config.Root, "project root is not a directory")
	}

	if config.Out == config.Root {
		result.addError("out", config.Out, "out directory must differ from the project root",
			"The default out directory is .jitserve")
	} else if rel, err := filepath.Rel(config.Out, config.Root); err == nil && rel != ".." && !strings.HasPrefix(rel, "../") {
		result.addError("out", config.Out, "project root is inside the out directory",
			"The out directory is excluded from watching, so no change under the root would be seen")
	}

	if !pathExists(config.ManifestPath()) {
		result.addWarning("cwd", config.WorkDir, "no package.json found",
			"Bare imports are served from /@npm/ and usually need a package manifest")
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port, fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port, "port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		} else if config.Host == "0.0.0.0" || config.Host == "::" {
			result.addWarning("server.host", config.Host, "server is reachable from other machines",
				"Source files under the root are readable by anyone on the network")
		}
	}
}

func validateWatchConfigDetails(config *WatchConfig, result *ValidationResult) {
	if err := validateWatchConfig(config); err != nil {
		result.addError("watch.debounce", config.Debounce, err.Error())
	} else if config.Debounce > 0 && config.Debounce < 10*time.Millisecond {
		result.addWarning("watch.debounce", config.Debounce, "very short debounce may split one save into several reloads",
			fmt.Sprintf("The default is %s", DefaultDebounce))
	}

	for _, pattern := range config.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			result.addError("watch.ignore", pattern, "malformed glob pattern")
		}
	}
}

func validateAliasDetails(config *Config, result *ValidationResult) {
	for from, to := range config.Aliases {
		field := "aliases." + from
		if strings.TrimSpace(from) == "" {
			result.addError("aliases", to, "alias with empty name")
			continue
		}
		if err := validatePath(to); err != nil {
			result.addError(field, to, err.Error())
			continue
		}
		if !pathExists(filepath.Join(config.Root, filepath.FromSlash(to))) {
			result.addWarning(field, to, "alias target does not exist under the project root")
		}
	}
}

func validateLogDetails(config *LogConfig, result *ValidationResult) {
	switch strings.ToLower(config.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		result.addError("log.level", config.Level, "unknown log level",
			"Use one of debug, info, warn, error")
	}
	switch config.Format {
	case "", "text", "json":
	default:
		result.addWarning("log.format", config.Format, "unknown log format, falling back to text")
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
