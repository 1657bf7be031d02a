package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/sessionstore/internal/crypto"
	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/storage"
)

// indexSep separates the index key from the attribute key in the index
// bucket. Neither part can contain it.
const indexSep = 0x00

func indexEntry(indexKey string, key storage.AttrKey) []byte {
	out := make([]byte, 0, len(indexKey)+1+len(key.String()))
	out = append(out, indexKey...)
	out = append(out, indexSep)
	return append(out, key.String()...)
}

// SaveValueSet stores or replaces a value-set together with its index keys
func (s *Storage) SaveValueSet(ctx context.Context, key storage.AttrKey, value dbvalue.ValueSet, indexKeys []string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	// Сериализуем value-set в JSON
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value-set: %w", err)
	}
	if s.sealKey != nil {
		data, err = crypto.Seal(data, s.sealKey, []byte(key.String()))
		if err != nil {
			return fmt.Errorf("failed to seal value-set: %w", err)
		}
	}

	keys, err := json.Marshal(indexKeys)
	if err != nil {
		return fmt.Errorf("failed to marshal index keys: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := dropIndex(tx, key); err != nil {
			return err
		}

		if err := tx.Bucket(bucketValueSets).Put([]byte(key.String()), data); err != nil {
			return fmt.Errorf("failed to save value-set: %w", err)
		}

		index := tx.Bucket(bucketIndex)
		for _, ik := range indexKeys {
			if err := index.Put(indexEntry(ik, key), []byte{}); err != nil {
				return fmt.Errorf("failed to save index key: %w", err)
			}
		}

		if err := tx.Bucket(bucketIndexRev).Put([]byte(key.String()), keys); err != nil {
			return fmt.Errorf("failed to save index keys: %w", err)
		}
		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// GetValueSet retrieves a value-set
func (s *Storage) GetValueSet(ctx context.Context, key storage.AttrKey) (dbvalue.ValueSet, error) {
	if s.db == nil {
		return dbvalue.ValueSet{}, storage.ErrStorageClosed
	}

	var value dbvalue.ValueSet

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketValueSets).Get([]byte(key.String()))
		if data == nil {
			return storage.ErrValueSetNotFound
		}

		var err error
		value, err = s.decode(key, data)
		return err
	})

	if err != nil {
		if errors.Is(err, storage.ErrValueSetNotFound) {
			return dbvalue.ValueSet{}, err
		}
		return dbvalue.ValueSet{}, fmt.Errorf("failed to get value-set: %w", err)
	}

	return value, nil
}

// DeleteValueSet removes a value-set and its index keys
func (s *Storage) DeleteValueSet(ctx context.Context, key storage.AttrKey) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := dropIndex(tx, key); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIndexRev).Delete([]byte(key.String())); err != nil {
			return err
		}
		return tx.Bucket(bucketValueSets).Delete([]byte(key.String()))
	})

	if err != nil {
		return fmt.Errorf("failed to delete value-set: %w", err)
	}

	return nil
}

// ListValueSets returns every stored value-set ordered by key
func (s *Storage) ListValueSets(ctx context.Context) ([]storage.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var records []storage.Record

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketValueSets).ForEach(func(k, v []byte) error {
			key, err := storage.ParseAttrKey(string(k))
			if err != nil {
				return err
			}
			value, err := s.decode(key, v)
			if err != nil {
				return err
			}
			records = append(records, storage.Record{Key: key, Value: value})
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list value-sets: %w", err)
	}

	return records, nil
}

// LookupIndex returns the attributes whose value-set produced indexKey
func (s *Storage) LookupIndex(ctx context.Context, indexKey string) ([]storage.AttrKey, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var keys []storage.AttrKey
	prefix := append([]byte(indexKey), indexSep)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketIndex).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			key, err := storage.ParseAttrKey(string(k[len(prefix):]))
			if err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to lookup index: %w", err)
	}

	return keys, nil
}

func (s *Storage) decode(key storage.AttrKey, data []byte) (dbvalue.ValueSet, error) {
	if s.sealKey != nil {
		opened, err := crypto.Open(data, s.sealKey, []byte(key.String()))
		if err != nil {
			return dbvalue.ValueSet{}, fmt.Errorf("failed to open %s: %w", key, err)
		}
		data = opened
	}

	// Десериализуем
	var value dbvalue.ValueSet
	if err := json.Unmarshal(data, &value); err != nil {
		return dbvalue.ValueSet{}, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return value, nil
}

// dropIndex удаляет ранее сохраненные индексные ключи атрибута
func dropIndex(tx *bbolt.Tx, key storage.AttrKey) error {
	raw := tx.Bucket(bucketIndexRev).Get([]byte(key.String()))
	if raw == nil {
		return nil
	}

	var old []string
	if err := json.Unmarshal(raw, &old); err != nil {
		return fmt.Errorf("failed to unmarshal index keys: %w", err)
	}

	index := tx.Bucket(bucketIndex)
	for _, ik := range old {
		if err := index.Delete(indexEntry(ik, key)); err != nil {
			return fmt.Errorf("failed to delete index key: %w", err)
		}
	}
	return nil
}
