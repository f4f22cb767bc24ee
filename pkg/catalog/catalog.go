// Package catalog keeps the last published rendering of every pipeline in a
// local badger database, so publishing only ships what changed.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

const (
	dirMode        = 0o755
	pipelinePrefix = "pipeline:"
	keySplitParts  = 2 // kind:name
	maxPendingLoad = 256
)

var json = jsoniter.ConfigFastest

var ErrNotFound = errors.New("not found in catalog")

// Record is the stored rendering of one pipeline.
type Record struct {
	Name        string
	Fingerprint string
	Payload     []byte
	UpdatedAt   time.Time
}

type storedValue struct {
	Timestamp   int64  `json:"ts"`
	Fingerprint string `json:"fingerprint"`
	Payload     []byte `json:"payload"`
}

type Options struct {
	Path string
	// InMemory keeps the catalog in memory only; Path is ignored.
	InMemory bool
}

type Store struct {
	db   *badger.DB
	path string
}

// Open creates the catalog directory when needed and opens the database.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("catalog path is required")
		}
		if err := os.MkdirAll(opts.Path, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create catalog path: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}

	db, err := badger.Open(bopts.WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: opts.Path}, nil
}

// IsEmpty reports whether the catalog holds no pipeline yet.
func (s *Store) IsEmpty() (bool, error) {
	empty := true
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		it.Rewind()
		empty = !it.Valid()
		return nil
	})
	return empty, err
}

func pipelineKey(name string) []byte {
	return []byte(pipelinePrefix + name)
}

// Put stores the rendering of a pipeline. It reports false, and leaves the
// stored record untouched, when the fingerprint did not change.
func (s *Store) Put(name, fingerprint string, payload []byte, ts time.Time) (bool, error) {
	key := pipelineKey(name)
	changed := true

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var prev storedValue
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &prev) }); err != nil {
				return err
			}
			if prev.Fingerprint == fingerprint {
				changed = false
				return nil
			}
		}

		data, err := json.Marshal(storedValue{Timestamp: ts.Unix(), Fingerprint: fingerprint, Payload: payload})
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *Store) Get(name string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pipelineKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var sv storedValue
			if err := json.Unmarshal(v, &sv); err != nil {
				return err
			}
			rec = toRecord(name, sv)
			return nil
		})
	})
	return rec, err
}

func toRecord(name string, sv storedValue) Record {
	return Record{
		Name:        name,
		Fingerprint: sv.Fingerprint,
		Payload:     append([]byte(nil), sv.Payload...),
		UpdatedAt:   time.Unix(sv.Timestamp, 0).UTC(),
	}
}

// ForEach visits every stored pipeline in key order.
func (s *Store) ForEach(fn func(Record) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(pipelinePrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()

			var sv storedValue
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &sv)
			}); err != nil {
				return err
			}

			name := string(item.Key())[len(pipelinePrefix):]
			if err := fn(toRecord(name, sv)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats counts keys per kind prefix.
func (s *Store) Stats() (map[string]int, error) {
	stats := make(map[string]int)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			kind := strings.SplitN(key, ":", keySplitParts)[0]
			stats[kind]++
		}
		return nil
	})
	return stats, err
}

func (s *Store) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(pipelineKey(name))
	})
}

// Prune deletes every pipeline not listed in keep and returns the removed
// names.
func (s *Store) Prune(keep []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		wanted[k] = struct{}{}
	}

	var stale []string
	err := s.ForEach(func(r Record) error {
		if _, ok := wanted[r.Name]; !ok {
			stale = append(stale, r.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, name := range stale {
		if err := s.Delete(name); err != nil {
			return nil, err
		}
		log.Debug().Str("component", "catalog").Str("pipeline", name).Msg("Pruned stale pipeline")
	}
	return stale, nil
}

// Backup writes a full snapshot of the catalog to w.
func (s *Store) Backup(w io.Writer) error {
	_, err := s.db.Backup(w, 0)
	return err
}

// Restore loads a snapshot written by Backup.
func (s *Store) Restore(r io.Reader) error {
	return s.db.Load(r, maxPendingLoad)
}

func (s *Store) Close() error {
	return s.db.Close()
}
