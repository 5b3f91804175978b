package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  string
		want    interface{}
		wantErr bool
	}{
		{format: "json", want: &JSONFormatter{}},
		{format: "JSON", want: &JSONFormatter{}},
		{format: "yaml", want: &YAMLFormatter{}},
		{format: "table", want: &TableFormatter{}},
		{format: "", want: &TableFormatter{}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown output format")
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, f)
		})
	}
}

func TestResolveFormat(t *testing.T) {
	t.Setenv(OutputEnvVar, "")
	assert.Equal(t, "table", ResolveFormat("", false))
	assert.Equal(t, "yaml", ResolveFormat("yaml", false))
	assert.Equal(t, "json", ResolveFormat("yaml", true))

	t.Setenv(OutputEnvVar, "yaml")
	assert.Equal(t, "yaml", ResolveFormat("", false))
	assert.Equal(t, "table", ResolveFormat("table", false))
}

func TestFormatTable(t *testing.T) {
	headers := []string{"#", "PATH", "ENABLED"}
	rows := [][]string{
		{"0", "checklist.pdf", "yes"},
		{"1", "charts.png", "no"},
	}

	table := &TableFormatter{}
	out, err := table.FormatTable(headers, rows)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "#"))
	assert.Contains(t, lines[1], "checklist.pdf")

	empty, err := table.FormatTable(headers, nil)
	require.NoError(t, err)
	assert.Equal(t, "No results found\n", empty)

	js, err := (&JSONFormatter{Indent: true}).FormatTable(headers, rows)
	require.NoError(t, err)
	var decoded []map[string]string
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	assert.Equal(t, "charts.png", decoded[1]["path"])
	assert.Equal(t, "1", decoded[1]["position"])

	ym, err := (&YAMLFormatter{}).FormatTable(headers, [][]string{{"0"}})
	require.NoError(t, err)
	var decodedYAML []map[string]string
	require.NoError(t, yaml.Unmarshal([]byte(ym), &decodedYAML))
	assert.Equal(t, "", decodedYAML[0]["path"])
}

type stringer struct{}

func (stringer) String() string { return "custom" }

func TestJSONDoesNotEscapePaths(t *testing.T) {
	out, err := (&JSONFormatter{}).Format(map[string]string{"path": "maps & charts <1>.png"})
	require.NoError(t, err)
	assert.Equal(t, `{"path":"maps & charts <1>.png"}`, out)
}

func TestColumnKey(t *testing.T) {
	assert.Equal(t, "health_url", columnKey("HEALTH URL"))
	assert.Equal(t, "position", columnKey("#"))
	assert.Equal(t, "pid", columnKey("PID"))
}

func TestTableFormat(t *testing.T) {
	f := &TableFormatter{}

	out, err := f.Format(stringer{})
	require.NoError(t, err)
	assert.Equal(t, "custom", out)

	out, err = f.Format(42)
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestFormatError(t *testing.T) {
	se := NewStructuredError(ErrCodeExecutableNotFound, "BMS_Bridge_Server.exe not found").
		WithGuidance("Check --server-dir").
		WithRecoveryCommand("bmsbridge-launcher --server-dir <path>").
		WithContext("path", "/opt/Server")

	out, err := (&TableFormatter{Condensed: true}).FormatError(se)
	require.NoError(t, err)
	assert.Contains(t, out, "Error: BMS_Bridge_Server.exe not found")
	assert.Contains(t, out, "Guidance: Check --server-dir")
	assert.Contains(t, out, "Try: bmsbridge-launcher")

	js, err := (&JSONFormatter{}).FormatError(se)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	assert.Equal(t, ErrCodeExecutableNotFound, decoded["code"])
	assert.Equal(t, "/opt/Server", decoded["context"].(map[string]interface{})["path"])
}

func TestFromError(t *testing.T) {
	plain := FromError(fmt.Errorf("boom"), ErrCodeOperationFailed)
	assert.Equal(t, ErrCodeOperationFailed, plain.Code)
	assert.Equal(t, "boom", plain.Message)

	se := NewStructuredError(ErrCodeCancelled, "cancelled")
	wrapped := fmt.Errorf("add failed: %w", se)
	assert.Equal(t, ErrCodeCancelled, FromError(wrapped, ErrCodeOperationFailed).Code)
}

func TestFormatErrorBanner(t *testing.T) {
	se := NewStructuredError(ErrCodeJournalLocked, "journal is locked").
		WithContext("path", "/data/launcher.db").
		WithContext("listen", "")

	out, err := (&TableFormatter{NoColor: true}).FormatError(se)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "✗ journal is locked\n"))
	assert.Contains(t, out, "code: JOURNAL_LOCKED")
	assert.Less(t, strings.Index(out, "listen:"), strings.Index(out, "path:"), "context keys are sorted")
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("no such file")
	se := Wrap(fmt.Errorf("open: %w", cause), ErrCodeSettingsInvalid)

	assert.Equal(t, "open: no such file", se.Message)
	assert.ErrorIs(t, se, cause)

	base := NewStructuredError(ErrCodeInvalidInput, "bad")
	a := base.WithContext("k", 1)
	b := a.WithContext("k", 2)
	assert.Equal(t, 1, a.Context["k"])
	assert.Equal(t, 2, b.Context["k"])
}
