// Package store persists decompiled sources in badger.
package store

import (
	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog/log"

	dlog "github.com/shapedtime/classfs/internal/log"
	"github.com/shapedtime/classfs/internal/vfs"
)

var _ vfs.ContentStore = &DB{}

const sourceRootKey = "/source/"

// DB is a ContentStore backed by badger. Keys carry the archive digest, so
// entries never need invalidation.
type DB struct {
	db *badger.DB
}

// NewDB opens the store at path. An empty path keeps everything in memory.
func NewDB(path string) (*DB, error) {
	l := log.Logger.With().Str("component", "source-store").Logger()

	opts := badger.DefaultOptions(path).
		WithLogger(&dlog.Badger{L: l}).
		WithValueLogFileSize(1<<26 - 1)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	if path != "" {
		err = db.RunValueLogGC(0.5)
		if err != nil && err != badger.ErrNoRewrite {
			db.Close()
			return nil, err
		}
	}

	return &DB{
		db: db,
	}, nil
}

func (s *DB) Get(key string) ([]byte, bool, error) {
	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	item, err := tx.Get([]byte(sourceRootKey + key))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *DB) Put(key string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sourceRootKey+key), data)
	})
}

// Len counts the stored sources.
func (s *DB) Len() (int, error) {
	tx := s.db.NewTransaction(false)
	defer tx.Discard()

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := tx.NewIterator(opts)
	defer it.Close()

	n := 0
	prefix := []byte(sourceRootKey)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}
