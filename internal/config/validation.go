package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/conneroisu/rescomp/internal/logging"
	"github.com/conneroisu/rescomp/internal/validation"
)

// ValidationError represents a configuration validation error with suggestions
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

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, items []ValidationError) {
		if len(items) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, item := range items {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", item.Field, item.Message))
			for _, suggestion := range item.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateLogConfigDetails(&config.Log, result)
	validateBuildConfigDetails(&config.Build, result)
	validateCacheConfigDetails(&config.Cache, result)
	validateSandboxConfigDetails(&config.Sandbox, result)
	validateLoadersConfigDetails(&config.Loaders, result)
	validateWatchConfigDetails(&config.Watch, result)
	validateLiveReloadConfigDetails(&config.LiveReload, result)

	if config.Context != "" {
		if err := validation.ValidatePath(config.Context); err != nil {
			result.addError("context", config.Context, err.Error(),
				"Use '.' to compile relative to the working directory")
		}
	}

	result.Valid = !result.HasErrors()
	return result
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(),
			"Available levels: debug, info, warn, error")
	}
	if config.Format != "text" && config.Format != "json" {
		result.addError("log.format", config.Format, fmt.Sprintf("unknown log format '%s'", config.Format),
			"Use 'text' for terminals", "Use 'json' for log collectors")
	}
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	switch config.Extraction {
	case ExtractionStatic, ExtractionEvaluate:
	default:
		result.addError("build.extraction", config.Extraction,
			fmt.Sprintf("unknown extraction mode '%s'", config.Extraction),
			"Use 'static' to take loader output as final text",
			"Use 'evaluate' to run compiled modules in the sandbox")
	}

	if err := validation.ValidateOutputDir(config.OutDir); err != nil {
		result.addError("build.out_dir", config.OutDir, err.Error(),
			"Use a relative directory such as 'dist'")
	}

	if len(config.Entries) == 0 {
		result.addWarning("build.entries", config.Entries, "no entries configured",
			"Pass resources on the command line or add globs such as 'src/**/*.css'")
	}
	for _, entry := range config.Entries {
		if err := validation.ValidatePath(entry); err != nil {
			result.addError("build.entries", entry, err.Error())
		}
	}
}

func validateCacheConfigDetails(config *CacheConfig, result *ValidationResult) {
	if config.MaxEntries <= 0 {
		result.addError("cache.max_entries", config.MaxEntries, "cache size must be positive",
			"The default of 1024 suits most projects")
	}
	if config.Generations <= 0 {
		result.addError("cache.generations", config.Generations, "generation window must be positive",
			"Use 2 to keep the current and previous build")
	} else if config.Generations == 1 {
		result.addWarning("cache.generations", config.Generations,
			"a window of one generation discards every entry on rebuild")
	}
}

func validateSandboxConfigDetails(config *SandboxConfig, result *ValidationResult) {
	if config.Timeout <= 0 {
		result.addError("sandbox.timeout", config.Timeout, "timeout must be positive")
	} else if config.Timeout > time.Minute {
		result.addWarning("sandbox.timeout", config.Timeout, "timeouts above one minute stall rebuilds")
	}
	if config.MaxCallStack <= 0 {
		result.addError("sandbox.max_call_stack", config.MaxCallStack, "call stack limit must be positive")
	}
}

func validateLoadersConfigDetails(config *LoadersConfig, result *ValidationResult) {
	known := []string{LoaderCSS, LoaderHTML, LoaderRaw}

	for ext, loader := range config.Rules {
		if err := validation.ValidateExtension("." + ext); err != nil {
			result.addError("loaders.rules", ext, err.Error())
		}
		if !contains(known, loader) {
			result.addError("loaders.rules", loader, fmt.Sprintf("unknown loader '%s' for '.%s'", loader, ext),
				"Available loaders: "+strings.Join(known, ", "),
				"Use loaders.commands to run an external preprocessor")
		}
		if isScriptExtension(ext) {
			result.addError("loaders.rules", ext, fmt.Sprintf("script extension '.%s' cannot be a resource", ext))
		}
	}

	for ext, cmd := range config.Commands {
		if err := validation.ValidateExtension("." + ext); err != nil {
			result.addError("loaders.commands", ext, err.Error())
		}
		if _, clash := config.Rules[ext]; clash {
			result.addWarning("loaders.commands", ext,
				fmt.Sprintf("'.%s' has both a rule and a command; the command wins", ext))
		}
		if err := validation.ValidateCommandLine(cmd.Command, cmd.Args, config.AllowedCommands); err != nil {
			result.addError("loaders.commands", cmd.Command, err.Error(),
				"Add the command to loaders.allowed_commands",
				"Avoid shell metacharacters in arguments")
		}
	}
}

func validateWatchConfigDetails(config *WatchConfig, result *ValidationResult) {
	if config.Debounce < 0 {
		result.addError("watch.debounce", config.Debounce, "debounce cannot be negative")
	} else if config.Debounce > 5*time.Second {
		result.addWarning("watch.debounce", config.Debounce, "long debounce delays rebuilds noticeably")
	}
}

func validateLiveReloadConfigDetails(config *LiveReloadConfig, result *ValidationResult) {
	if config.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(config.Addr); err != nil {
		result.addError("livereload.addr", config.Addr, err.Error(),
			"Use host:port, for example 'localhost:35729'")
	}
	if len(config.AllowedOrigins) == 0 {
		result.addWarning("livereload.allowed_origins", config.AllowedOrigins,
			"no origins allowed; browsers will be rejected",
			"Add the dev server origin, for example 'localhost:3000'")
	}
}

func isScriptExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case "js", "ts", "mjs", "cjs", "mts", "cts", "jsx", "tsx":
		return true
	}
	return false
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
