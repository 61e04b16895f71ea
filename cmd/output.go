package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// DependencyEntry is one row of the deps listing.
type DependencyEntry struct {
	Path         string   `json:"path" yaml:"path"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Error        string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(v)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// outputResults writes the compile summary in format.
func outputResults(w io.Writer, format string, results []CompileResult) error {
	if format != FormatText {
		return encode(w, format, results)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			fmt.Fprintf(w, "FAIL %s\n%s\n", r.Path, indent(r.Error))
			continue
		}
		target := r.Output
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "ok   %s -> %s (%d bytes, %d deps, %s)\n",
			r.Path, target, r.Bytes, len(r.Dependencies), r.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "\nCompiled %d resources, %d failed\n", len(results), failed)
	return nil
}

// outputDependencies writes the dependency listing in format.
func outputDependencies(w io.Writer, format string, entries []DependencyEntry) error {
	if format != FormatTable {
		return encode(w, format, entries)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tDEPENDENCY")
	fmt.Fprintln(tw, strings.Repeat("-", 8)+"\t"+strings.Repeat("-", 10))

	total := 0
	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(tw, "%s\t(failed: %s)\n", e.Path, firstLine(e.Error))
			continue
		}
		for i, dep := range e.Dependencies {
			name := e.Path
			if i > 0 {
				name = ""
			}
			fmt.Fprintf(tw, "%s\t%s\n", name, dep)
		}
		total += len(e.Dependencies)
	}
	fmt.Fprintf(tw, "\nTotal: %d resources, %d dependencies\n", len(entries), total)
	return tw.Flush()
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(s, "\n", "\n    ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
