package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/storage"
)

// SaveValueSet stores or replaces a value-set together with its index keys
func (s *Storage) SaveValueSet(ctx context.Context, key storage.AttrKey, value dbvalue.ValueSet, indexKeys []string) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value-set: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO value_sets (entry_id, attr, kind, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entry_id, attr) DO UPDATE
		SET kind = excluded.kind, payload = excluded.payload, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query,
		key.EntryID.String(),
		key.Attr,
		value.Kind,
		payload,
		time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("failed to save value-set: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM value_set_index WHERE entry_id = ? AND attr = ?`,
		key.EntryID.String(), key.Attr,
	); err != nil {
		return fmt.Errorf("failed to clear index keys: %w", err)
	}

	for _, ik := range indexKeys {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO value_set_index (index_key, entry_id, attr) VALUES (?, ?, ?)`,
			ik, key.EntryID.String(), key.Attr,
		); err != nil {
			return fmt.Errorf("failed to save index key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// GetValueSet retrieves a value-set
// Returns ErrValueSetNotFound if nothing is stored under key
func (s *Storage) GetValueSet(ctx context.Context, key storage.AttrKey) (dbvalue.ValueSet, error) {
	var payload []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM value_sets WHERE entry_id = ? AND attr = ?`,
		key.EntryID.String(), key.Attr,
	).Scan(&payload)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbvalue.ValueSet{}, storage.ErrValueSetNotFound
		}
		return dbvalue.ValueSet{}, fmt.Errorf("failed to get value-set: %w", err)
	}

	var value dbvalue.ValueSet
	if err := json.Unmarshal(payload, &value); err != nil {
		return dbvalue.ValueSet{}, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return value, nil
}

// DeleteValueSet removes a value-set, index rows go with it by cascade
func (s *Storage) DeleteValueSet(ctx context.Context, key storage.AttrKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM value_sets WHERE entry_id = ? AND attr = ?`,
		key.EntryID.String(), key.Attr,
	)
	if err != nil {
		return fmt.Errorf("failed to delete value-set: %w", err)
	}
	return nil
}

// ListValueSets returns every stored value-set ordered by key
func (s *Storage) ListValueSets(ctx context.Context) ([]storage.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, attr, payload FROM value_sets ORDER BY entry_id, attr`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list value-sets: %w", err)
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var entryID, attr string
		var payload []byte
		if err := rows.Scan(&entryID, &attr, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan value-set: %w", err)
		}

		key, err := attrKey(entryID, attr)
		if err != nil {
			return nil, err
		}

		var value dbvalue.ValueSet
		if err := json.Unmarshal(payload, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		records = append(records, storage.Record{Key: key, Value: value})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// LookupIndex returns the attributes whose value-set produced indexKey
func (s *Storage) LookupIndex(ctx context.Context, indexKey string) ([]storage.AttrKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, attr FROM value_set_index WHERE index_key = ? ORDER BY entry_id, attr`,
		indexKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup index: %w", err)
	}
	defer rows.Close()

	var keys []storage.AttrKey
	for rows.Next() {
		var entryID, attr string
		if err := rows.Scan(&entryID, &attr); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		key, err := attrKey(entryID, attr)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return keys, nil
}

func attrKey(entryID, attr string) (storage.AttrKey, error) {
	id, err := uuid.Parse(entryID)
	if err != nil {
		return storage.AttrKey{}, fmt.Errorf("%w: entry id %q", storage.ErrInvalidKey, entryID)
	}
	return storage.AttrKey{EntryID: id, Attr: attr}, nil
}
