package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/sessionstore/internal/crypto"
	"github.com/iudanet/sessionstore/internal/storage"
)

const (
	keyLastChange = "last_change"
	keySealSalt   = "seal_salt"
)

// SaveLastChange saves the timestamp of the newest change id issued here
func (s *Storage) SaveLastChange(ctx context.Context, ts time.Duration) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		// Конвертируем int64 в bytes
		tsBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(tsBytes, uint64(ts))

		if err := bucket.Put([]byte(keyLastChange), tsBytes); err != nil {
			return fmt.Errorf("failed to save last change: %w", err)
		}

		return nil
	})
}

// GetLastChange retrieves the timestamp saved by SaveLastChange
// Returns 0 if nothing was saved yet
func (s *Storage) GetLastChange(ctx context.Context) (time.Duration, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var ts time.Duration

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		tsBytes := bucket.Get([]byte(keyLastChange))
		if tsBytes == nil {
			return nil
		}

		ts = time.Duration(binary.BigEndian.Uint64(tsBytes))
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to get last change: %w", err)
	}

	return ts, nil
}

// loadOrCreateSalt возвращает соль файла, создавая ее при первом открытии
func (s *Storage) loadOrCreateSalt() ([]byte, error) {
	var salt []byte

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if existing := bucket.Get([]byte(keySealSalt)); existing != nil {
			// bbolt отдает память mmap, копируем
			salt = append([]byte(nil), existing...)
			return nil
		}

		fresh, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		salt = fresh
		return bucket.Put([]byte(keySealSalt), fresh)
	})

	return salt, err
}
