// Package output renders CLI results as a table, JSON or YAML, and reports
// failures as structured errors in the same format.
package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// OutputFormatter renders command results. Implementations are stateless.
type OutputFormatter interface {
	// Format renders a single result value
	Format(data interface{}) (string, error)

	// FormatError renders a failure
	FormatError(err StructuredError) (string, error)

	// FormatTable renders rows under headers
	FormatTable(headers []string, rows [][]string) (string, error)
}

// Supported output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// OutputEnvVar selects the default output format
const OutputEnvVar = "BMSB_OUTPUT"

// NewFormatter returns the formatter for format (case-insensitive). An empty
// format means table.
func NewFormatter(format string) (OutputFormatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return &JSONFormatter{Indent: true}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatTable, "":
		return &TableFormatter{
			NoColor:   os.Getenv("NO_COLOR") != "",
			Unicode:   true,
			Condensed: !term.IsTerminal(int(os.Stderr.Fd())),
		}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s (valid: %s, %s, %s)", format, FormatTable, FormatJSON, FormatYAML)
	}
}

// ResolveFormat picks the output format: --json, then --output, then
// BMSB_OUTPUT, then table
func ResolveFormat(outputFlag string, jsonFlag bool) string {
	if jsonFlag {
		return FormatJSON
	}
	if outputFlag != "" {
		return outputFlag
	}
	if env := os.Getenv(OutputEnvVar); env != "" {
		return env
	}
	return FormatTable
}
