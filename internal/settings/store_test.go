package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/buger/jsonparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

const sampleSettings = `{
  "server_host": "0.0.0.0",
  "server_port": 8123,
  "kneeboard_scale_width": 1.4,
  "kneeboards": {
    "left": [
      {"path": "ramp.png", "enabled": true, "type": "user_file"},
      {"path": "taxi.pdf", "enabled": false}
    ],
    "right": []
  },
  "future_feature": {"nested": [1, 2, 3], "flag": null}
}`

func newTestStore(t *testing.T, content string) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config", "settings.json")
	if content != "" {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return NewStore(path, filepath.Join(dir, "user_kneeboards"), zap.NewNop().Sugar())
}

func readRaw(t *testing.T, s *Store, keys ...string) []byte {
	t.Helper()
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	value, _, _, err := jsonparser.Get(data, keys...)
	require.NoError(t, err)
	return value
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t, "")

	k, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, k.Left)
	assert.Empty(t, k.Right)
	assert.NotNil(t, k.Left)
	assert.Equal(t, DefaultServerPort, s.ServerPort())
}

func TestLoadParsesLists(t *testing.T) {
	s := newTestStore(t, sampleSettings)

	k, err := s.Load()
	require.NoError(t, err)
	require.Len(t, k.Left, 2)
	assert.Equal(t, KneeboardItem{Path: "ramp.png", Enabled: true, Type: "user_file"}, k.Left[0])
	assert.Equal(t, KneeboardItem{Path: "taxi.pdf", Enabled: false, Type: DefaultItemType}, k.Left[1])
	assert.Empty(t, k.Right)
	assert.Equal(t, 8123, s.ServerPort())
}

func TestLoadMalformedSection(t *testing.T) {
	for name, content := range map[string]string{
		"missing":      `{"server_port": 8000}`,
		"wrong type":   `{"kneeboards": "nope"}`,
		"list type":    `{"kneeboards": {"left": {"path": "x"}, "right": 5}}`,
		"null section": `{"kneeboards": null}`,
	} {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, content)
			k, err := s.Load()
			require.NoError(t, err)
			assert.Empty(t, k.Left)
			assert.Empty(t, k.Right)
		})
	}
}

func TestLoadRejectsNonObject(t *testing.T) {
	s := newTestStore(t, `[1, 2, 3]`)

	_, err := s.Load()
	require.ErrorIs(t, err, ErrNotObject)

	err = s.Save(Kneeboards{})
	require.ErrorIs(t, err, ErrNotObject)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, `[1, 2, 3]`, string(data))
}

func TestSavePreservesUnknownKeys(t *testing.T) {
	s := newTestStore(t, sampleSettings)

	before := readRaw(t, s, "future_feature")

	k, err := s.Load()
	require.NoError(t, err)
	k.Right = append(k.Right, KneeboardItem{Path: "comms.png", Enabled: true, Type: DefaultItemType})
	require.NoError(t, s.Save(k))

	assert.Equal(t, string(before), string(readRaw(t, s, "future_feature")))
	assert.Equal(t, "0.0.0.0", string(readRaw(t, s, "server_host")))
	assert.Equal(t, 8123, s.ServerPort())

	reloaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, k, reloaded)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestSaveCreatesFile(t *testing.T) {
	s := newTestStore(t, "")

	require.NoError(t, s.Save(Kneeboards{Left: []KneeboardItem{{Path: "a.png", Enabled: true, Type: DefaultItemType}}}))

	k, err := s.Load()
	require.NoError(t, err)
	require.Len(t, k.Left, 1)
	assert.NotNil(t, k.Right)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestAddFileCopiesAndStoresBareName(t *testing.T) {
	s := newTestStore(t, sampleSettings)
	src := writeSource(t, "checklist.png", "png-bytes")

	item, err := s.AddFile(Right, src, nil)
	require.NoError(t, err)
	assert.Equal(t, KneeboardItem{Path: "checklist.png", Enabled: true, Type: "user_file"}, item)

	copied, err := os.ReadFile(filepath.Join(s.ManagedDir(), "checklist.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(copied))

	k, err := s.Load()
	require.NoError(t, err)
	require.Len(t, k.Right, 1)
	assert.Equal(t, "checklist.png", k.Right[0].Path)
}

func TestAddFileOverwriteConfirmation(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, os.MkdirAll(s.ManagedDir(), 0755))
	existing := filepath.Join(s.ManagedDir(), "map.png")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))
	src := writeSource(t, "map.png", "new")

	t.Run("nil confirmer declines", func(t *testing.T) {
		_, err := s.AddFile(Left, src, nil)
		assert.ErrorIs(t, err, ErrAddCancelled)
	})

	t.Run("declined", func(t *testing.T) {
		var asked string
		_, err := s.AddFile(Left, src, ConfirmFunc(func(name string) (bool, error) {
			asked = name
			return false, nil
		}))
		assert.ErrorIs(t, err, ErrAddCancelled)
		assert.Equal(t, "map.png", asked)

		data, _ := os.ReadFile(existing)
		assert.Equal(t, "old", string(data))
		k, _ := s.Load()
		assert.Empty(t, k.Left)
	})

	t.Run("confirmer error", func(t *testing.T) {
		boom := errors.New("no tty")
		_, err := s.AddFile(Left, src, ConfirmFunc(func(string) (bool, error) { return false, boom }))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("accepted", func(t *testing.T) {
		_, err := s.AddFile(Left, src, ConfirmFunc(func(string) (bool, error) { return true, nil }))
		require.NoError(t, err)

		data, _ := os.ReadFile(existing)
		assert.Equal(t, "new", string(data))

		// Adding again does not duplicate the entry
		_, err = s.AddFile(Left, src, ConfirmFunc(func(string) (bool, error) { return true, nil }))
		require.NoError(t, err)
		k, _ := s.Load()
		assert.Len(t, k.Left, 1)
	})
}

func TestAddFileRejectsDirectory(t *testing.T) {
	s := newTestStore(t, "")
	_, err := s.AddFile(Left, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrSourceNotRegular)
}

func TestListOperations(t *testing.T) {
	s := newTestStore(t, `{"kneeboards":{"left":[
		{"path":"a","enabled":true,"type":"user_file"},
		{"path":"b","enabled":true,"type":"user_file"},
		{"path":"c","enabled":true,"type":"user_file"}],"right":[]}}`)

	paths := func(items []KneeboardItem) []string {
		out := []string{}
		for _, it := range items {
			out = append(out, it.Path)
		}
		return out
	}

	require.NoError(t, s.Move(Left, 0, 2))
	k, _ := s.Load()
	assert.Equal(t, []string{"b", "c", "a"}, paths(k.Left))

	require.NoError(t, s.Move(Left, 2, 0))
	k, _ = s.Load()
	assert.Equal(t, []string{"a", "b", "c"}, paths(k.Left))

	require.NoError(t, s.SetEnabled(Left, 1, false))
	k, _ = s.Load()
	assert.False(t, k.Left[1].Enabled)

	require.NoError(t, s.Transfer(Left, 1, Right))
	k, _ = s.Load()
	assert.Equal(t, []string{"a", "c"}, paths(k.Left))
	assert.Equal(t, []string{"b"}, paths(k.Right))
	assert.False(t, k.Right[0].Enabled)

	removed, err := s.Remove(Left, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", removed.Path)
	k, _ = s.Load()
	assert.Equal(t, []string{"c"}, paths(k.Left))

	assert.ErrorIs(t, s.Move(Left, 0, 5), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetEnabled(Right, -1, true), ErrIndexOutOfRange)
	_, err = s.Remove(Right, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Transfer(Board("middle"), 0, Left), ErrInvalidBoard)
}

func TestParseBoard(t *testing.T) {
	b, err := ParseBoard(" Left ")
	require.NoError(t, err)
	assert.Equal(t, Left, b)

	b, err = ParseBoard("RIGHT")
	require.NoError(t, err)
	assert.Equal(t, Right, b)

	_, err = ParseBoard("center")
	assert.ErrorIs(t, err, ErrInvalidBoard)
}

// Load followed by Save of the unchanged lists keeps every other key intact
func TestRoundTripPreservesOtherKeysProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir, err := os.MkdirTemp("", "bmsb-settings-*")
		if err != nil {
			rt.Fatal(err)
		}
		defer os.RemoveAll(dir)

		extra := rapid.MapOfN(
			rapid.StringMatching(`[a-z_]{1,12}`).Filter(func(s string) bool { return s != kneeboardsKey }),
			rapid.OneOf(
				rapid.Map(rapid.Int(), func(i int) any { return i }),
				rapid.Map(rapid.String(), func(s string) any { return s }),
				rapid.Map(rapid.Bool(), func(b bool) any { return b }),
			),
			0, 6,
		).Draw(rt, "extra")

		doc := map[string]any{}
		for k, v := range extra {
			doc[k] = v
		}
		doc[kneeboardsKey] = map[string]any{
			"left":  []any{map[string]any{"path": "x.png", "enabled": true, "type": "user_file"}},
			"right": []any{},
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			rt.Fatal(err)
		}

		path := filepath.Join(dir, "settings.json")
		if err := os.WriteFile(path, data, 0644); err != nil {
			rt.Fatal(err)
		}

		s := NewStore(path, filepath.Join(dir, "user_kneeboards"), zap.NewNop().Sugar())
		k, err := s.Load()
		if err != nil {
			rt.Fatal(err)
		}
		if err := s.Save(k); err != nil {
			rt.Fatal(err)
		}

		after, err := os.ReadFile(path)
		if err != nil {
			rt.Fatal(err)
		}
		for key := range extra {
			want, _, _, err := jsonparser.Get(data, key)
			if err != nil {
				rt.Fatalf("get %s before: %v", key, err)
			}
			got, _, _, err := jsonparser.Get(after, key)
			if err != nil {
				rt.Fatalf("get %s after: %v", key, err)
			}
			if string(want) != string(got) {
				rt.Fatalf("key %s changed: %s -> %s", key, want, got)
			}
		}

		reloaded, err := s.Load()
		if err != nil {
			rt.Fatal(err)
		}
		if len(reloaded.Left) != 1 || reloaded.Left[0].Path != "x.png" {
			rt.Fatalf("lists changed: %+v", reloaded)
		}
	})
}
