package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Output formats accepted by --format.
const (
	FormatText  = "text"
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// StandardFlags provides consistent flag definitions across commands
type StandardFlags struct {
	// Build flags
	OutDir     string `flag:"out,o" desc:"Output directory" default:"dist"`
	Extraction string `flag:"extraction" desc:"Primary output extraction (static|evaluate)" default:"static"`
	Print      bool   `flag:"print" desc:"Print compiled text instead of writing files" default:"false"`

	// Output flags
	Format string `flag:"format,f" desc:"Output format" default:"text"`
	Quiet  bool   `flag:"quiet,q" desc:"Suppress the summary" default:"false"`
}

// AddStandardFlags adds standard flags to a command. The first format in
// formats is the default.
func AddStandardFlags(cmd *cobra.Command, formats []string, flagTypes ...string) *StandardFlags {
	flags := &StandardFlags{}

	for _, flagType := range flagTypes {
		switch flagType {
		case "build":
			addBuildFlags(cmd, flags)
		case "output":
			addOutputFlags(cmd, flags, formats)
		}
	}

	return flags
}

func addBuildFlags(cmd *cobra.Command, flags *StandardFlags) {
	cmd.Flags().StringVarP(&flags.OutDir, "out", "o", "dist", "Output directory, relative to the context")
	cmd.Flags().StringVar(&flags.Extraction, "extraction", "static", "Primary output extraction (static|evaluate)")
	cmd.Flags().BoolVar(&flags.Print, "print", false, "Print compiled text instead of writing files")

	AddFlagValidation(cmd.Flags(), "extraction", ValidateOneOf("static", "evaluate"))
}

// BindBuildFlags binds the build flags of the running command to their
// configuration keys. It runs per invocation since several commands define
// the same flags and Viper keeps one binding per key.
func BindBuildFlags(cmd *cobra.Command) {
	SetViperBindings(viper.GetViper(), cmd.Flags(), map[string]string{
		"out":        "build.out_dir",
		"extraction": "build.extraction",
	})
}

func addOutputFlags(cmd *cobra.Command, flags *StandardFlags, formats []string) {
	cmd.Flags().StringVarP(&flags.Format, "format", "f", formats[0],
		fmt.Sprintf("Output format (%s)", strings.Join(formats, "|")))
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress the summary")

	AddFlagValidation(cmd.Flags(), "format", ValidateOneOf(formats...))
}

// SetViperBindings binds flags to viper configuration keys. Unknown flag
// names are ignored.
func SetViperBindings(v *viper.Viper, fs *pflag.FlagSet, bindings map[string]string) {
	for flagName, configKey := range bindings {
		if flag := fs.Lookup(flagName); flag != nil {
			_ = v.BindPFlag(configKey, flag)
		}
	}
}

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(fs *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := fs.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:     flag.Value,
		validator: validator,
	}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidateOneOf returns a validator accepting only the listed values.
func ValidateOneOf(valid ...string) func(string) error {
	return func(val string) error {
		for _, v := range valid {
			if val == v {
				return nil
			}
		}
		return fmt.Errorf("invalid value %q, must be one of: %s", val, strings.Join(valid, ", "))
	}
}
