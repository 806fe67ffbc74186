package cellstore

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Store is a small disk-backed KV wrapper (Badger) for per-cell lookup
// results. Entries carry a TTL so stale map data ages out on its own.
type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path     string
	InMemory bool // no files, for tests
	ReadOnly bool
}

func Open(opts OpenOptions) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("cellstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").
			WithLogger(nil).
			WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get unmarshals the value stored under cell into out. The second return is
// false when the cell has no live entry.
func (s *Store) Get(cell string, out any) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("cellstore: not opened")
	}
	k := []byte(strings.TrimSpace(cell))
	if len(k) == 0 {
		return false, errors.New("cellstore: cell is empty")
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			found = true
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Put stores val under cell. ttl <= 0 keeps the entry forever.
func (s *Store) Put(cell string, val any, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return errors.New("cellstore: not opened")
	}
	k := []byte(strings.TrimSpace(cell))
	if len(k) == 0 {
		return errors.New("cellstore: cell is empty")
	}
	v, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(k, v)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes the entry for cell. Missing cells are not an error.
func (s *Store) Delete(cell string) error {
	if s == nil || s.db == nil {
		return errors.New("cellstore: not opened")
	}
	k := []byte(strings.TrimSpace(cell))
	if len(k) == 0 {
		return errors.New("cellstore: cell is empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}
