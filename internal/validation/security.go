// Package validation provides safety checks for the external preprocessor
// commands, configured paths and live-reload origins rescomp accepts.
package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var shellMetacharacters = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}

// ValidateArgument validates a preprocessor argument to prevent injection attacks
func ValidateArgument(arg string) error {
	for _, char := range shellMetacharacters {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %q", char)
		}
	}

	if strings.Contains(arg, "..") {
		return fmt.Errorf("contains path traversal: %s", arg)
	}

	// flags may carry a value such as --load-path=/abs, so only inspect the value part
	value := arg
	if strings.HasPrefix(arg, "-") {
		if i := strings.IndexByte(arg, '='); i >= 0 {
			value = arg[i+1:]
		} else {
			return nil
		}
	}
	if filepath.IsAbs(value) && !strings.HasPrefix(value, "/usr/") && !strings.HasPrefix(value, "/bin/") {
		return fmt.Errorf("absolute path not allowed: %s", value)
	}

	return nil
}

// ValidateCommand validates a command name against an allowlist
func ValidateCommand(command string, allowed []string) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}

	permitted := false
	for _, a := range allowed {
		if a == command {
			permitted = true
			break
		}
	}
	if !permitted {
		return fmt.Errorf("command '%s' is not allowed", command)
	}

	if err := ValidateArgument(command); err != nil {
		return fmt.Errorf("invalid command '%s': %w", command, err)
	}

	return nil
}

// ValidateCommandLine validates a command and all of its arguments.
func ValidateCommandLine(command string, args []string, allowed []string) error {
	if err := ValidateCommand(command, allowed); err != nil {
		return err
	}
	for _, arg := range args {
		if err := ValidateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument %q for '%s': %w", arg, command, err)
		}
	}
	return nil
}

// ValidatePath validates a file path to prevent path traversal attacks
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %s", path)
	}

	restrictedPaths := []string{
		"/etc/",
		"/proc/",
		"/sys/",
		"/dev/",
		"/boot/",
	}

	cleanPathLower := strings.ToLower(filepath.ToSlash(cleanPath))
	for _, restricted := range restrictedPaths {
		if strings.HasPrefix(cleanPathLower+"/", restricted) {
			return fmt.Errorf("access to restricted path denied: %s", path)
		}
	}

	for _, char := range []string{";", "&", "|", "$", "`", "<", ">"} {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// ValidateOutputDir validates a build output directory. It must be a
// relative path that stays inside the context directory.
func ValidateOutputDir(dir string) error {
	if err := ValidatePath(dir); err != nil {
		return err
	}
	if filepath.IsAbs(dir) {
		return fmt.Errorf("output directory must be relative: %s", dir)
	}
	if filepath.Clean(dir) == "." {
		return fmt.Errorf("output directory cannot be the context directory itself")
	}
	return nil
}

// ValidateExtension validates a loader rule key such as ".css".
func ValidateExtension(ext string) error {
	if len(ext) < 2 || ext[0] != '.' {
		return fmt.Errorf("extension %q must start with a dot", ext)
	}
	if strings.ContainsAny(ext[1:], `./\ `) {
		return fmt.Errorf("extension %q contains invalid characters", ext)
	}
	return nil
}

// ValidateOrigin validates WebSocket origin for CSRF protection
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// SanitizeInput removes control characters other than common whitespace
// from text captured from external processes.
func SanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var sanitized strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			sanitized.WriteRune(r)
		}
	}

	return sanitized.String()
}
