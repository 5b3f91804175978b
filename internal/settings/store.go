package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"
)

const (
	kneeboardsKey     = "kneeboards"
	serverPortKey     = "server_port"
	DefaultServerPort = 8000
	DefaultItemType   = "user_file"
)

var (
	ErrAddCancelled     = errors.New("add cancelled: file exists and overwrite was declined")
	ErrNotObject        = errors.New("settings file is not a JSON object")
	ErrIndexOutOfRange  = errors.New("kneeboard index out of range")
	ErrInvalidBoard     = errors.New("invalid board name")
	ErrSourceNotRegular = errors.New("source is not a regular file")
)

// Board names one of the two kneeboard lists
type Board string

const (
	Left  Board = "left"
	Right Board = "right"
)

// ParseBoard accepts "left" or "right" in any case
func ParseBoard(s string) (Board, error) {
	switch Board(strings.ToLower(strings.TrimSpace(s))) {
	case Left:
		return Left, nil
	case Right:
		return Right, nil
	}
	return "", fmt.Errorf("%w: %q (want left or right)", ErrInvalidBoard, s)
}

// KneeboardItem is one entry of a kneeboard list. Path is relative to the
// managed kneeboard directory.
type KneeboardItem struct {
	Path    string `json:"path" yaml:"path"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Type    string `json:"type" yaml:"type"`
}

// Kneeboards is the launcher-owned section of settings.json
type Kneeboards struct {
	Left  []KneeboardItem `json:"left" yaml:"left"`
	Right []KneeboardItem `json:"right" yaml:"right"`
}

// List returns the items of board
func (k *Kneeboards) List(board Board) []KneeboardItem {
	if board == Right {
		return k.Right
	}
	return k.Left
}

func (k *Kneeboards) set(board Board, items []KneeboardItem) {
	if board == Right {
		k.Right = items
	} else {
		k.Left = items
	}
}

// OverwriteConfirmer decides whether an existing managed file may be replaced
type OverwriteConfirmer interface {
	ConfirmOverwrite(name string) (bool, error)
}

// ConfirmFunc adapts a function to OverwriteConfirmer
type ConfirmFunc func(name string) (bool, error)

func (f ConfirmFunc) ConfirmOverwrite(name string) (bool, error) { return f(name) }

// Store edits the kneeboards section of the server's settings.json. Every
// other key in the document is kept byte for byte.
type Store struct {
	path       string
	managedDir string
	logger     *zap.SugaredLogger

	// Serializes read-modify-write cycles
	mu sync.Mutex
}

// NewStore creates a store for the settings file at path. Added files are
// copied into managedDir.
func NewStore(path, managedDir string, logger *zap.SugaredLogger) *Store {
	return &Store{
		path:       path,
		managedDir: managedDir,
		logger:     logger,
	}
}

// Path returns the settings file path
func (s *Store) Path() string {
	return s.path
}

// ManagedDir returns the directory added files are copied into
func (s *Store) ManagedDir() string {
	return s.managedDir
}

// Load returns both kneeboard lists. A missing file or a missing or
// malformed kneeboards section yields empty lists.
func (s *Store) Load() (Kneeboards, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, _, err := s.loadLocked()
	return k, err
}

// Save replaces the kneeboards section, leaving the rest of the document untouched
func (s *Store) Save(k Kneeboards) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	return s.saveLocked(doc, k)
}

// ServerPort returns the server_port setting, or the default when absent
func (s *Store) ServerPort() int {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return DefaultServerPort
	}
	port, err := jsonparser.GetInt(data, serverPortKey)
	if err != nil || port <= 0 || port > 65535 {
		return DefaultServerPort
	}
	return int(port)
}

// AddFile copies src into the managed directory and appends it to board,
// enabled. If a file of the same name is already managed, confirm decides
// whether it is replaced; declining returns ErrAddCancelled.
func (s *Store) AddFile(board Board, src string, confirm OverwriteConfirmer) (KneeboardItem, error) {
	if _, err := ParseBoard(string(board)); err != nil {
		return KneeboardItem{}, err
	}

	info, err := os.Stat(src)
	if err != nil {
		return KneeboardItem{}, fmt.Errorf("failed to read source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return KneeboardItem{}, fmt.Errorf("%w: %s", ErrSourceNotRegular, src)
	}

	name := filepath.Base(src)
	dest := filepath.Join(s.managedDir, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !samePath(src, dest) {
		if _, err := os.Stat(dest); err == nil {
			ok := false
			if confirm != nil {
				if ok, err = confirm.ConfirmOverwrite(name); err != nil {
					return KneeboardItem{}, err
				}
			}
			if !ok {
				return KneeboardItem{}, ErrAddCancelled
			}
		}

		if err := copyFile(src, dest); err != nil {
			return KneeboardItem{}, fmt.Errorf("failed to copy %s: %w", name, err)
		}
		s.logger.Infow("Copied kneeboard file", "source", src, "destination", dest)
	}

	item := KneeboardItem{Path: name, Enabled: true, Type: DefaultItemType}

	k, doc, err := s.loadLocked()
	if err != nil {
		return KneeboardItem{}, err
	}

	items := k.List(board)
	if i := indexOf(items, name); i >= 0 {
		// Re-adding a listed file replaces its content and enables it
		items[i].Enabled = true
		item = items[i]
	} else {
		items = append(items, item)
	}
	k.set(board, items)

	return item, s.saveLocked(doc, k)
}

// Remove deletes the item at index from board. The managed file stays on disk.
func (s *Store) Remove(board Board, index int) (KneeboardItem, error) {
	var removed KneeboardItem
	err := s.update(func(k *Kneeboards) error {
		items := k.List(board)
		if err := checkIndex(items, index); err != nil {
			return err
		}
		removed = items[index]
		k.set(board, append(items[:index:index], items[index+1:]...))
		return nil
	}, board)
	return removed, err
}

// Move reorders board so the item at from ends up at to
func (s *Store) Move(board Board, from, to int) error {
	return s.update(func(k *Kneeboards) error {
		items := k.List(board)
		if err := checkIndex(items, from); err != nil {
			return err
		}
		if err := checkIndex(items, to); err != nil {
			return err
		}
		item := items[from]
		rest := append(items[:from:from], items[from+1:]...)
		out := make([]KneeboardItem, 0, len(items))
		out = append(out, rest[:to]...)
		out = append(out, item)
		out = append(out, rest[to:]...)
		k.set(board, out)
		return nil
	}, board)
}

// Transfer moves the item at index from one board to the end of the other
func (s *Store) Transfer(from Board, index int, to Board) error {
	return s.update(func(k *Kneeboards) error {
		src := k.List(from)
		if err := checkIndex(src, index); err != nil {
			return err
		}
		item := src[index]
		k.set(from, append(src[:index:index], src[index+1:]...))
		k.set(to, append(k.List(to), item))
		return nil
	}, from, to)
}

// SetEnabled toggles whether the server publishes the item
func (s *Store) SetEnabled(board Board, index int, enabled bool) error {
	return s.update(func(k *Kneeboards) error {
		items := k.List(board)
		if err := checkIndex(items, index); err != nil {
			return err
		}
		items[index].Enabled = enabled
		return nil
	}, board)
}

// update runs one load-mutate-save cycle
func (s *Store) update(mutate func(k *Kneeboards) error, boards ...Board) error {
	for _, b := range boards {
		if _, err := ParseBoard(string(b)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k, doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := mutate(&k); err != nil {
		return err
	}
	return s.saveLocked(doc, k)
}

// loadLocked returns the parsed lists and the raw document they came from
func (s *Store) loadLocked() (Kneeboards, []byte, error) {
	empty := Kneeboards{Left: []KneeboardItem{}, Right: []KneeboardItem{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return empty, []byte("{}"), nil
		}
		return empty, nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return empty, []byte("{}"), nil
	}

	if _, dataType, _, err := jsonparser.Get(data); err != nil || dataType != jsonparser.Object {
		return empty, nil, fmt.Errorf("%w: %s", ErrNotObject, s.path)
	}

	section, dataType, _, err := jsonparser.Get(data, kneeboardsKey)
	if err != nil || dataType != jsonparser.Object {
		if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
			s.logger.Warnw("Ignoring malformed kneeboards section", "path", s.path, "error", err)
		}
		return empty, data, nil
	}

	empty.Left = parseItems(section, string(Left), s.logger)
	empty.Right = parseItems(section, string(Right), s.logger)
	return empty, data, nil
}

func parseItems(section []byte, board string, logger *zap.SugaredLogger) []KneeboardItem {
	items := []KneeboardItem{}

	list, dataType, _, err := jsonparser.Get(section, board)
	if err != nil || dataType != jsonparser.Array {
		return items
	}

	_, err = jsonparser.ArrayEach(list, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		path, err := jsonparser.GetString(value, "path")
		if err != nil || path == "" {
			return
		}
		enabled, _ := jsonparser.GetBoolean(value, "enabled")
		itemType, err := jsonparser.GetString(value, "type")
		if err != nil || itemType == "" {
			itemType = DefaultItemType
		}
		items = append(items, KneeboardItem{Path: path, Enabled: enabled, Type: itemType})
	})
	if err != nil {
		logger.Warnw("Ignoring malformed kneeboard list", "board", board, "error", err)
		return []KneeboardItem{}
	}
	return items
}

// saveLocked splices k into doc and replaces the file atomically
func (s *Store) saveLocked(doc []byte, k Kneeboards) error {
	if k.Left == nil {
		k.Left = []KneeboardItem{}
	}
	if k.Right == nil {
		k.Right = []KneeboardItem{}
	}

	value, err := json.MarshalIndent(k, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode kneeboards: %w", err)
	}

	out, err := jsonparser.Set(doc, value, kneeboardsKey)
	if err != nil {
		return fmt.Errorf("failed to update settings document: %w", err)
	}

	if err := writeFileAtomic(s.path, out); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	s.logger.Debugw("Saved kneeboards", "path", s.path, "left", len(k.Left), "right", len(k.Right))
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func copyFile(source, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	return out.Sync()
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return filepath.Clean(absA) == filepath.Clean(absB)
}

func indexOf(items []KneeboardItem, path string) int {
	for i, it := range items {
		if it.Path == path {
			return i
		}
	}
	return -1
}

func checkIndex(items []KneeboardItem, index int) error {
	if index < 0 || index >= len(items) {
		return fmt.Errorf("%w: %d (list has %d items)", ErrIndexOutOfRange, index, len(items))
	}
	return nil
}
