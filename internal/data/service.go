// Package data is the write and read path for credential value-sets of one
// replica. Every mutation loads the stored set, applies one engine operation,
// validates the result and saves it together with its index keys.
package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/metrics"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/valueset"
	"github.com/iudanet/sessionstore/pkg/api"
)

// Operation names reported to metrics.
const (
	OpInsert = "insert"
	OpRemove = "remove"
	OpPurge  = "purge"
	OpClear  = "clear"
)

// Service определяет интерфейс для data сервиса
type Service interface {
	Insert(ctx context.Context, key storage.AttrKey, v valueset.Value) (bool, error)
	Remove(ctx context.Context, key storage.AttrKey, id uuid.UUID, cid repl.Cid) (bool, error)
	Purge(ctx context.Context, key storage.AttrKey, cid repl.Cid) error
	Clear(ctx context.Context, key storage.AttrKey) error

	Get(ctx context.Context, key storage.AttrKey) (valueset.ValueSet, error)
	Project(ctx context.Context, key storage.AttrKey) (api.Projection, error)
	IndexKeys(ctx context.Context, key storage.AttrKey) ([]string, error)
	Lookup(ctx context.Context, indexKey string) ([]storage.AttrKey, error)
	List(ctx context.Context) ([]Summary, error)
}

// Summary describes one stored value-set.
type Summary struct {
	Key  storage.AttrKey
	Kind valueset.Kind
	Len  int
}

type service struct {
	store    storage.ValueSetStorage
	codec    *valueset.Codec
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewService creates a new data service. recorder and logger may be nil.
func NewService(store storage.ValueSetStorage, recorder metrics.Recorder, logger *slog.Logger) Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		store:    store,
		codec:    valueset.NewCodec(logger, recorder),
		recorder: recorder,
		logger:   logger,
	}
}

// load returns the stored set, or nil when nothing is stored under key.
func (s *service) load(ctx context.Context, key storage.AttrKey) (valueset.ValueSet, error) {
	dbv, err := s.store.GetValueSet(ctx, key)
	if errors.Is(err, storage.ErrValueSetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value-set %s: %w", key, err)
	}

	vs, err := s.codec.Decode(dbv)
	if err != nil {
		return nil, fmt.Errorf("failed to decode value-set %s: %w", key, err)
	}
	return vs, nil
}

// save validates vs and stores it with its index keys.
func (s *service) save(ctx context.Context, key storage.AttrKey, vs valueset.ValueSet) error {
	if err := vs.Validate(); err != nil {
		return fmt.Errorf("value-set %s: %w", key, err)
	}
	if err := s.store.SaveValueSet(ctx, key, s.codec.Encode(vs), vs.IndexKeys()); err != nil {
		return fmt.Errorf("failed to save value-set %s: %w", key, err)
	}
	return nil
}

// Insert adds v to the set stored under key, creating the set on first insert.
func (s *service) Insert(ctx context.Context, key storage.AttrKey, v valueset.Value) (bool, error) {
	vs, err := s.load(ctx, key)
	if err != nil {
		return false, err
	}

	if vs == nil {
		vs, err = valueset.FromValue(v)
		if err != nil {
			return false, err
		}
		if err := s.save(ctx, key, vs); err != nil {
			return false, err
		}
		s.recorder.RecordOperation(vs.Kind(), OpInsert, true)
		s.logger.Debug("value-set created", "key", key.String(), "kind", vs.Kind().String(), "id", v.Key())
		return true, nil
	}

	changed, err := vs.InsertChecked(v)
	if err != nil {
		return false, err
	}
	s.recorder.RecordOperation(vs.Kind(), OpInsert, changed)
	if !changed {
		return false, nil
	}

	if err := s.save(ctx, key, vs); err != nil {
		return false, err
	}
	s.logger.Debug("value inserted", "key", key.String(), "id", v.Key())
	return true, nil
}

// Remove revokes or deletes id in the set stored under key. A missing set is
// not an error.
func (s *service) Remove(ctx context.Context, key storage.AttrKey, id uuid.UUID, cid repl.Cid) (bool, error) {
	vs, err := s.load(ctx, key)
	if err != nil || vs == nil {
		return false, err
	}

	changed := vs.Remove(id, cid)
	s.recorder.RecordOperation(vs.Kind(), OpRemove, changed)
	if !changed {
		return false, nil
	}

	if err := s.save(ctx, key, vs); err != nil {
		return false, err
	}
	s.logger.Info("value removed", "key", key.String(), "id", id, "cid", cid.String())
	return true, nil
}

// Purge removes every value at cid. The set is saved even when it ends up
// empty, so the attribute stays present.
func (s *service) Purge(ctx context.Context, key storage.AttrKey, cid repl.Cid) error {
	vs, err := s.load(ctx, key)
	if err != nil || vs == nil {
		return err
	}

	empty := vs.Purge(cid)
	s.recorder.RecordOperation(vs.Kind(), OpPurge, true)

	if err := s.save(ctx, key, vs); err != nil {
		return err
	}
	s.logger.Info("value-set purged", "key", key.String(), "empty", empty, "remaining", vs.Len())
	return nil
}

// Clear drops the stored set entirely.
func (s *service) Clear(ctx context.Context, key storage.AttrKey) error {
	vs, err := s.load(ctx, key)
	if err != nil || vs == nil {
		return err
	}

	vs.Clear()
	if err := s.store.DeleteValueSet(ctx, key); err != nil {
		return fmt.Errorf("failed to delete value-set %s: %w", key, err)
	}
	s.recorder.RecordOperation(vs.Kind(), OpClear, true)
	s.logger.Info("value-set cleared", "key", key.String())
	return nil
}

// Get returns the decoded set stored under key.
// Returns storage.ErrValueSetNotFound if nothing is stored.
func (s *service) Get(ctx context.Context, key storage.AttrKey) (valueset.ValueSet, error) {
	vs, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if vs == nil {
		return nil, fmt.Errorf("value-set %s: %w", key, storage.ErrValueSetNotFound)
	}
	return vs, nil
}

// Project returns the read API view of the set stored under key.
func (s *service) Project(ctx context.Context, key storage.AttrKey) (api.Projection, error) {
	vs, err := s.Get(ctx, key)
	if err != nil {
		return api.Projection{}, err
	}
	return vs.Project(), nil
}

// IndexKeys returns the equality index keys of the set stored under key.
func (s *service) IndexKeys(ctx context.Context, key storage.AttrKey) ([]string, error) {
	vs, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return vs.IndexKeys(), nil
}

// Lookup returns the attributes indexed under indexKey.
func (s *service) Lookup(ctx context.Context, indexKey string) ([]storage.AttrKey, error) {
	keys, err := s.store.LookupIndex(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup index %q: %w", indexKey, err)
	}
	return keys, nil
}

// List summarises every stored set ordered by key. Sets of an unknown kind
// are logged and skipped.
func (s *service) List(ctx context.Context) ([]Summary, error) {
	records, err := s.store.ListValueSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list value-sets: %w", err)
	}

	out := make([]Summary, 0, len(records))
	for _, rec := range records {
		vs, err := s.codec.Decode(rec.Value)
		if err != nil {
			// Пропускаем поврежденные записи
			s.logger.Warn("skipping undecodable value-set", "key", rec.Key.String(), "error", err)
			continue
		}
		out = append(out, Summary{Key: rec.Key, Kind: vs.Kind(), Len: vs.Len()})
	}
	return out, nil
}
