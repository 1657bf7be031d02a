// Package boltdb implements storage.Store on top of bbolt.
package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/sessionstore/internal/crypto"
	"github.com/iudanet/sessionstore/internal/storage"
)

var (
	// BoltDB bucket names
	bucketValueSets = []byte("valuesets")
	bucketIndex     = []byte("index")
	bucketIndexRev  = []byte("index_by_attr")
	bucketMetadata  = []byte("metadata")
)

var _ storage.Store = (*Storage)(nil)

// Storage represents BoltDB storage implementation
type Storage struct {
	db      *bbolt.DB
	sealKey []byte // nil - значения хранятся открытым JSON
}

// Option configures Storage.
type Option func(*options)

type options struct {
	passphrase string
}

// WithPassphrase enables at-rest sealing of value-set payloads. The sealing
// key is derived from passphrase and a salt kept in the database file.
func WithPassphrase(passphrase string) Option {
	return func(o *options) {
		o.passphrase = passphrase
	}
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	if o.passphrase != "" {
		salt, err := s.loadOrCreateSalt()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize sealing salt: %w", err)
		}
		key, err := crypto.DeriveStoreKey(o.passphrase, salt)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to derive sealing key: %w", err)
		}
		s.sealKey = key
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Sealed reports whether payloads are sealed at rest.
func (s *Storage) Sealed() bool {
	return s.sealKey != nil
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketValueSets, bucketIndex, bucketIndexRev, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}
