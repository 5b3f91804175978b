package output

import (
	"bytes"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// JSONFormatter prints results as JSON for scripts
type JSONFormatter struct {
	Indent bool
}

// Format marshals data to JSON. Kneeboard paths are printed as is, without
// HTML escaping.
func (f *JSONFormatter) Format(data interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// FormatError marshals a structured error to JSON
func (f *JSONFormatter) FormatError(err StructuredError) (string, error) {
	return f.Format(err)
}

// FormatTable prints one JSON object per row
func (f *JSONFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	return f.Format(tableRecords(headers, rows))
}

// YAMLFormatter prints results as YAML
type YAMLFormatter struct{}

// Format marshals data to YAML
func (f *YAMLFormatter) Format(data interface{}) (string, error) {
	out, err := yaml.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FormatError marshals a structured error to YAML
func (f *YAMLFormatter) FormatError(err StructuredError) (string, error) {
	return f.Format(err)
}

// FormatTable prints one YAML mapping per row
func (f *YAMLFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	return f.Format(tableRecords(headers, rows))
}

// tableRecords turns table rows into records keyed by column. Short rows
// get empty values.
func tableRecords(headers []string, rows [][]string) []map[string]string {
	keys := make([]string, len(headers))
	for i, h := range headers {
		keys[i] = columnKey(h)
	}

	records := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]string, len(keys))
		for i, key := range keys {
			if i < len(row) {
				rec[key] = row[i]
			} else {
				rec[key] = ""
			}
		}
		records = append(records, rec)
	}
	return records
}

// columnKey maps a display header like "HEALTH URL" onto "health_url"
func columnKey(header string) string {
	if strings.TrimSpace(header) == "#" {
		return "position"
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}
