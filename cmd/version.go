package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/rescomp/internal/version"
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
	Long: `Display version information for rescomp including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version used for compilation
- Target platform (OS/architecture)

Examples:
  rescomp version              # Show version
  rescomp version --detailed   # Show detailed version info
  rescomp version -f json      # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", FormatText, "Output format (text|json|yaml)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Show detailed version information")
	AddFlagValidation(versionCmd.Flags(), "format", ValidateOneOf(FormatText, FormatJSON, FormatYAML))
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	return writeVersion(cmd.OutOrStdout(), versionFormat, versionShort, versionDetailed)
}

func writeVersion(w io.Writer, format string, short, detailed bool) error {
	switch format {
	case FormatJSON, FormatYAML:
		return encode(w, format, version.GetBuildInfo())
	case FormatText:
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}

	switch {
	case short:
		fmt.Fprintln(w, version.GetShortVersion())
	case detailed:
		fmt.Fprintln(w, version.GetDetailedVersion())
	default:
		info := version.GetBuildInfo()
		fmt.Fprintf(w, "rescomp %s\n", version.GetShortVersion())
		fmt.Fprintf(w, "Go: %s\n", info.GoVersion)
		fmt.Fprintf(w, "Platform: %s\n", info.Platform)
	}
	return nil
}
