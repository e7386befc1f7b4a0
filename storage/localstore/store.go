package localstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/session"
)

var nowFunc = time.Now // mockable

// Store is a small durable key-value store backed by a single JSON file,
// bounded to a fixed record count with oldest-first eviction. It persists
// session snapshots across restarts; it is not a database.
type Store struct {
	mu         sync.Mutex
	path       string
	maxRecords int
	data       map[string]entry
}

type entry struct {
	Value   json.RawMessage `json:"value"`
	SavedAt time.Time       `json:"saved_at"`
}

var _ session.Store = (*Store)(nil)

// Open loads the store file if present; a missing or unreadable file yields
// an empty store rather than an error.
func Open(path string, maxRecords int) *Store {
	s := &Store{
		path:       path,
		maxRecords: maxRecords,
		data:       make(map[string]entry),
	}
	if raw, err := os.ReadFile(path); err == nil {
		// a corrupt file is discarded; the store is a cache, not a ledger
		_ = json.Unmarshal(raw, &s.data)
	}
	return s
}

// Get unmarshals the value stored under key into out; ok reports whether the
// key exists.
func (s *Store) Get(key string, out interface{}) (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return false, nil
	}
	if err = json.Unmarshal(e.Value, out); err != nil {
		return false, errors.Wrapf(err, "unmarshalling %q", key)
	}
	return true, nil
}

// Set stores value under key, evicting the oldest entries beyond the record
// cap, and flushes the file.
func (s *Store) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshalling %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = entry{Value: raw, SavedAt: nowFunc().UTC()}
	s.evictLocked()
	return s.flushLocked()
}

func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// SaveSnapshot implements session.Store.
func (s *Store) SaveSnapshot(snap session.Snapshot) error {
	key := "session"
	if snap.MeetingID != "" {
		key += ":" + snap.MeetingID
	}
	return s.Set(key, snap)
}

func (s *Store) evictLocked() {
	if s.maxRecords <= 0 {
		return
	}
	for len(s.data) > s.maxRecords {
		var oldestKey string
		var oldest time.Time
		for key, e := range s.data {
			if oldestKey == "" || e.SavedAt.Before(oldest) {
				oldestKey = key
				oldest = e.SavedAt
			}
		}
		delete(s.data, oldestKey)
	}
}

// flushLocked writes atomically via a temp file rename.
func (s *Store) flushLocked() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return errors.Wrap(err, "marshalling store")
	}
	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "writing store file")
	}
	if err = os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replacing store file")
	}
	return nil
}

// DefaultPath returns a store path under dir, creating dir if needed.
func DefaultPath(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating %q", dir)
	}
	return filepath.Join(dir, name), nil
}
