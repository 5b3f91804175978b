package output

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var errorTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))

// TableFormatter prints aligned columns for people
type TableFormatter struct {
	NoColor   bool // Plain error banner
	Unicode   bool // Box-drawing rules under headers
	Condensed bool // One line per error field, for non-terminals
}

// Format prints values that implement fmt.Stringer with their own String;
// anything else falls back to %v
func (f *TableFormatter) Format(data interface{}) (string, error) {
	if s, ok := data.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return fmt.Sprintf("%v", data), nil
}

// FormatError prints err for a person reading a terminal
func (f *TableFormatter) FormatError(err StructuredError) (string, error) {
	var buf bytes.Buffer

	if f.Condensed {
		fmt.Fprintf(&buf, "Error: %s\n", err.Message)
		if err.Guidance != "" {
			fmt.Fprintf(&buf, "  Guidance: %s\n", err.Guidance)
		}
		if err.RecoveryCommand != "" {
			fmt.Fprintf(&buf, "  Try: %s\n", err.RecoveryCommand)
		}
		return buf.String(), nil
	}

	title := fmt.Sprintf("✗ %s", err.Message)
	if !f.NoColor {
		title = errorTitleStyle.Render(title)
	}
	fmt.Fprintln(&buf, title)
	fmt.Fprintf(&buf, "  code: %s\n", err.Code)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for k := range err.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "  %s: %v\n", k, err.Context[k])
		}
	}
	if err.Guidance != "" {
		fmt.Fprintf(&buf, "\n%s\n", err.Guidance)
	}
	if err.RecoveryCommand != "" {
		fmt.Fprintf(&buf, "\nTry: %s\n", err.RecoveryCommand)
	}

	return buf.String(), nil
}

// FormatTable aligns rows under headers. A rule is drawn under the headers
// only when stdout is a terminal.
func (f *TableFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	if len(rows) == 0 {
		return "No results found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, strings.Join(headers, "\t"))
	if f.Unicode && stdoutIsTerminal() {
		rules := make([]string, len(headers))
		for i, h := range headers {
			rules[i] = strings.Repeat("─", len(h))
		}
		fmt.Fprintln(w, strings.Join(rules, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	if err := w.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
