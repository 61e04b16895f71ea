// Package config provides configuration management for rescomp using Viper
// for loading from files, environment variables, and command-line flags.
//
// Configuration is read from .rescomp.yml (or the file named by --config or
// RESCOMP_CONFIG_FILE), with RESCOMP_<SECTION>_<OPTION> environment
// overrides. It covers the compile context, cache bounds, sandbox limits,
// loader rules and the watch loop.
package config

import (
	"fmt"
	"hash/crc32"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/rescomp/internal/errors"
)

// Extraction modes for a nested build's primary output.
const (
	ExtractionStatic   = "static"
	ExtractionEvaluate = "evaluate"
)

// Loader names accepted in loaders.rules.
const (
	LoaderCSS  = "css"
	LoaderHTML = "html"
	LoaderRaw  = "raw"
)

type Config struct {
	Context    string           `mapstructure:"context" yaml:"context"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Build      BuildConfig      `mapstructure:"build" yaml:"build"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox" yaml:"sandbox"`
	Loaders    LoadersConfig    `mapstructure:"loaders" yaml:"loaders"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	LiveReload LiveReloadConfig `mapstructure:"livereload" yaml:"livereload"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type BuildConfig struct {
	Entries    []string `mapstructure:"entries" yaml:"entries"`
	OutDir     string   `mapstructure:"out_dir" yaml:"out_dir"`
	Extraction string   `mapstructure:"extraction" yaml:"extraction"`
	SourceMaps bool     `mapstructure:"source_maps" yaml:"source_maps"`
}

type CacheConfig struct {
	MaxEntries  int `mapstructure:"max_entries" yaml:"max_entries"`
	Generations int `mapstructure:"generations" yaml:"generations"`
}

type SandboxConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxCallStack int           `mapstructure:"max_call_stack" yaml:"max_call_stack"`
}

// LoadersConfig maps file extensions to loaders. Extension keys are written
// without the leading dot ("css", not ".css") since Viper treats dots as key
// separators.
type LoadersConfig struct {
	Rules           map[string]string        `mapstructure:"rules" yaml:"rules"`
	Commands        map[string]CommandConfig `mapstructure:"commands" yaml:"commands"`
	AllowedCommands []string                 `mapstructure:"allowed_commands" yaml:"allowed_commands"`
}

// CommandConfig describes an external preprocessor that reads the resource
// on stdin and writes CSS to stdout.
type CommandConfig struct {
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore"`
}

type LiveReloadConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("context", ".")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("build.entries", []string{"src/**"})
	v.SetDefault("build.out_dir", "dist")
	v.SetDefault("build.extraction", ExtractionStatic)
	v.SetDefault("build.source_maps", true)

	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.generations", 2)

	v.SetDefault("sandbox.timeout", 5*time.Second)
	v.SetDefault("sandbox.max_call_stack", 1024)

	v.SetDefault("loaders.rules", defaultRules())
	commands := make(map[string]interface{})
	for ext, c := range defaultCommands() {
		commands[ext] = map[string]interface{}{"command": c.Command, "args": c.Args}
	}
	v.SetDefault("loaders.commands", commands)
	v.SetDefault("loaders.allowed_commands", []string{"sass", "lessc"})

	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("watch.ignore", []string{"node_modules", ".git", "dist"})

	v.SetDefault("livereload.addr", "")
	v.SetDefault("livereload.allowed_origins", []string{})
}

func defaultRules() map[string]string {
	return map[string]string{
		"css":  LoaderCSS,
		"html": LoaderHTML,
		"htm":  LoaderHTML,
		"svg":  LoaderRaw,
		"txt":  LoaderRaw,
		"md":   LoaderRaw,
	}
}

func defaultCommands() map[string]CommandConfig {
	return map[string]CommandConfig{
		"scss": {
			Command: "sass",
			Args:    []string{"--stdin", "--no-source-map", "--load-path=."},
		},
	}
}

// overlay lays the entries of over on top of base and returns base.
func overlay[V any](base, over map[string]V) map[string]V {
	for k, v := range over {
		base[k] = v
	}
	return base
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	cfg, err := LoadFrom(v)
	if err != nil {
		// defaults are static and always valid
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// Load reads the configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom applies defaults to v, unmarshals it and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	// viper hands back nil for slices it decoded from an empty default
	if config.LiveReload.AllowedOrigins == nil {
		config.LiveReload.AllowedOrigins = []string{}
	}
	// a file or env value for a map replaces the whole default map in viper
	config.Loaders.Rules = overlay(defaultRules(), normalizeExtensions(config.Loaders.Rules))
	config.Loaders.Commands = overlay(defaultCommands(), normalizeCommandExtensions(config.Loaders.Commands))

	result := ValidateConfigWithDetails(&config)
	if result.HasErrors() {
		first := result.Errors[0]
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid configuration: %s", first.Error())).
			WithContext("field", first.Field).
			WithContext("error_count", len(result.Errors))
	}

	return &config, nil
}

// ContextDir returns the absolute compile context directory.
func (c *Config) ContextDir() (string, error) {
	dir := c.Context
	if dir == "" {
		dir = "."
	}
	return filepath.Abs(dir)
}

// OutputDir returns the absolute output directory under the context.
func (c *Config) OutputDir() (string, error) {
	ctx, err := c.ContextDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(ctx, c.Build.OutDir), nil
}

// RuleFor returns the loader configured for a file extension such as ".css".
func (c *Config) RuleFor(ext string) (string, bool) {
	name, ok := c.Loaders.Rules[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return name, ok
}

// Fingerprint hashes every setting that affects compiled output. Two hosts
// built from configs with different fingerprints never share a generation.
func (c *Config) Fingerprint() string {
	relevant := struct {
		Build   BuildConfig   `yaml:"build"`
		Loaders LoadersConfig `yaml:"loaders"`
	}{c.Build, c.Loaders}

	data, err := yaml.Marshal(relevant)
	if err != nil {
		return "unhashable"
	}
	return fmt.Sprintf("%08x", crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)))
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func normalizeExtensions(rules map[string]string) map[string]string {
	out := make(map[string]string, len(rules))
	for ext, loader := range rules {
		out[strings.ToLower(strings.TrimPrefix(ext, "."))] = strings.ToLower(loader)
	}
	return out
}

func normalizeCommandExtensions(cmds map[string]CommandConfig) map[string]CommandConfig {
	out := make(map[string]CommandConfig, len(cmds))
	for ext, c := range cmds {
		out[strings.ToLower(strings.TrimPrefix(ext, "."))] = c
	}
	return out
}
