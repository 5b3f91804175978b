package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"bmsbridge-launcher/internal/state"
)

// Bucket names for bbolt database
const (
	JournalBucket = "journal"
	MetaBucket    = "meta"
)

// Meta keys
const (
	SchemaVersionKey = "schema"
)

// Current schema version
const CurrentSchemaVersion = 1

// DefaultLimit is the number of records kept when no limit is configured
const DefaultLimit = 1000

// ErrJournalLocked is returned when another launcher holds the database
var ErrJournalLocked = errors.New("journal is locked by a running launcher")

// RecordKind classifies a journal entry
type RecordKind string

const (
	KindStart  RecordKind = "start"
	KindStop   RecordKind = "stop"
	KindExit   RecordKind = "exit"
	KindStatus RecordKind = "status"
)

// Record is one lifecycle entry
type Record struct {
	ID        string             `json:"id" yaml:"id"`
	Session   string             `json:"session" yaml:"session"`
	Timestamp time.Time          `json:"timestamp" yaml:"timestamp"`
	Kind      RecordKind         `json:"kind" yaml:"kind"`
	From      state.ServerStatus `json:"from,omitempty" yaml:"from,omitempty"`
	To        state.ServerStatus `json:"to,omitempty" yaml:"to,omitempty"`
	PID       int                `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message   string             `json:"message,omitempty" yaml:"message,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler for BBolt storage
func (r *Record) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for BBolt storage
func (r *Record) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

// Options controls how the journal database is opened
type Options struct {
	Limit    int
	ReadOnly bool
	Timeout  time.Duration
}

// Journal is the append-only lifecycle log kept in <data_dir>/launcher.db.
// Keys are ULIDs, so cursor order is chronological.
type Journal struct {
	db      *bbolt.DB
	logger  *zap.SugaredLogger
	limit   int
	session string

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// OpenJournal opens or creates the journal at path
func OpenJournal(path string, opts Options, logger *zap.SugaredLogger) (*Journal, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	if !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	db, err := bbolt.Open(path, 0644, &bbolt.Options{
		Timeout:  opts.Timeout,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrJournalLocked, path)
		}
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}

	j := &Journal{
		db:      db,
		logger:  logger,
		limit:   opts.Limit,
		session: uuid.NewString(),
		entropy: ulid.Monotonic(ulid.DefaultEntropy(), 0),
	}

	if !opts.ReadOnly {
		if err := j.initBuckets(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize buckets: %w", err)
		}
	}

	logger.Debugw("Journal opened", "path", path, "session", j.session, "read_only", opts.ReadOnly)
	return j, nil
}

func (j *Journal) initBuckets() error {
	return j.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{JournalBucket, MetaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		versionBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(versionBytes, CurrentSchemaVersion)
		return tx.Bucket([]byte(MetaBucket)).Put([]byte(SchemaVersionKey), versionBytes)
	})
}

// Session returns the id stamped on every record written by this journal
func (j *Journal) Session() string { return j.session }

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores rec, filling ID, session and timestamp, then drops the oldest
// records beyond the retention limit.
func (j *Journal) Append(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("journal record cannot be nil")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Session == "" {
		rec.Session = j.session
	}
	id, err := ulid.New(ulid.Timestamp(rec.Timestamp), j.entropy)
	if err != nil {
		return fmt.Errorf("failed to generate record id: %w", err)
	}
	rec.ID = id.String()

	return j.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(JournalBucket))

		data, err := rec.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal journal record: %w", err)
		}
		if err := bucket.Put([]byte(rec.ID), data); err != nil {
			return fmt.Errorf("failed to store journal record: %w", err)
		}

		return pruneExcess(bucket, j.limit)
	})
}

// pruneExcess deletes the oldest keys until at most limit remain
func pruneExcess(bucket *bbolt.Bucket, limit int) error {
	excess := bucket.Stats().KeyN - limit
	if excess <= 0 {
		return nil
	}

	var keysToDelete [][]byte
	cursor := bucket.Cursor()
	for k, _ := cursor.First(); k != nil && len(keysToDelete) < excess; k, _ = cursor.Next() {
		keysToDelete = append(keysToDelete, append([]byte{}, k...))
	}
	for _, key := range keysToDelete {
		if err := bucket.Delete(key); err != nil {
			return fmt.Errorf("failed to prune journal record: %w", err)
		}
	}
	return nil
}

// List returns up to n records, newest first. n <= 0 returns all of them.
func (j *Journal) List(n int) ([]*Record, error) {
	var records []*Record

	err := j.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(JournalBucket))
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			if n > 0 && len(records) >= n {
				break
			}
			rec := &Record{}
			if err := rec.UnmarshalBinary(v); err != nil {
				j.logger.Warnw("Skipping unreadable journal record", "key", string(k), "error", err)
				continue
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

// Count returns the number of stored records
func (j *Journal) Count() (int, error) {
	var count int
	err := j.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket([]byte(JournalBucket)); bucket != nil {
			count = bucket.Stats().KeyN
		}
		return nil
	})
	return count, err
}

// Observe records process lifecycle events and status transitions. It is
// meant to be subscribed to the state machine.
func (j *Journal) Observe(u state.Update) {
	rec := recordFor(u)
	if rec == nil {
		return
	}
	if err := j.Append(rec); err != nil {
		j.logger.Warnw("Failed to write journal record", "kind", rec.Kind, "error", err)
	}
}

func recordFor(u state.Update) *Record {
	ev := u.Event
	switch ev.Type {
	case state.EventProcessStarted:
		return &Record{Kind: KindStart, PID: ev.PID, Timestamp: ev.Timestamp}
	case state.EventProcessStopped:
		return &Record{Kind: KindStop, Timestamp: ev.Timestamp}
	case state.EventProcessExited:
		rec := &Record{Kind: KindExit, PID: ev.PID, Timestamp: ev.Timestamp}
		if ev.Error != nil {
			rec.Message = ev.Error.Error()
		}
		return rec
	}

	if t := u.Transition; t != nil {
		return &Record{
			Kind:      KindStatus,
			From:      t.From,
			To:        t.To,
			Message:   t.Message,
			Timestamp: t.Timestamp,
		}
	}
	return nil
}
