// Package persist keeps named JSON collections in a local sqlite database.
//
// Every Save replaces one collection in a single statement, so a crash leaves
// either the previous or the new payload on disk.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrCorrupt marks a stored payload that no longer decodes.
var ErrCorrupt = errors.New("corrupt collection payload")

type Store struct {
	db          *sql.DB
	lock        *flock.Flock
	lockTimeout time.Duration
	now         func() time.Time
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init state schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), lockTimeout: 5 * time.Second, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load decodes the named collection into out. found is false when nothing was saved yet.
func (s *Store) Load(name string, out any) (bool, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM collections WHERE name = ?", name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read collection %s: %w", name, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return true, fmt.Errorf("decode collection %s: %w: %v", name, ErrCorrupt, err)
	}
	return true, nil
}

// Save replaces the named collection with the JSON encoding of v.
func (s *Store) Save(name string, v any) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("save collection: missing name")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal collection %s: %w", name, err)
	}
	return s.write(name, payload)
}

func (s *Store) write(name string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock state store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock state store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO collections (name, updated_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, name, s.now().UTC().Unix(), payload)
	if err != nil {
		return fmt.Errorf("save collection %s: %w", name, err)
	}
	return nil
}
