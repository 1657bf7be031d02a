// Package sync applies value-sets received from other replicas and runs the
// periodic trim pass over local storage.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/crypto"
	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/metrics"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/valueset"
	"github.com/iudanet/sessionstore/pkg/api"
)

//go:generate moq -out service_mock.go . Service

// Service определяет интерфейс для sync.Service
type Service interface {
	// Apply merges a value-set received from another replica into the local copy
	Apply(ctx context.Context, key storage.AttrKey, incoming dbvalue.ValueSet, cutoff repl.Cid) (*Result, error)

	// SyncFrom applies every value-set held by a peer store
	SyncFrom(ctx context.Context, peer storage.ValueSetStorage, cutoff repl.Cid) (*Result, error)

	// TrimAll trims every local value-set at cutoff
	TrimAll(ctx context.Context, cutoff repl.Cid) (*Result, error)

	// Export snapshots every local value-set into a bundle
	Export(ctx context.Context, replicaID uuid.UUID) (*api.SyncBundle, error)

	// Import applies every entry of a bundle produced by Export
	Import(ctx context.Context, bundle *api.SyncBundle, cutoff repl.Cid) (*Result, error)
}

// Result contains sync operation results
type Result struct {
	Merged  int // количество value-set, изменённых слиянием
	Skipped int // количество value-set, уже совпадающих с локальными
	Expired int // количество отброшенных отзывов старше cutoff
	Evicted int // количество принудительно вытесненных сессий
	Failed  int // количество value-set, которые не удалось применить
}

func (r *Result) addTrim(stats valueset.TrimStats) {
	r.Expired += stats.Expired
	r.Evicted += stats.Evicted
}

// Response converts the result to its wire form.
func (r *Result) Response() api.SyncResponse {
	return api.SyncResponse{
		Merged:  r.Merged,
		Skipped: r.Skipped,
		Expired: r.Expired,
		Evicted: r.Evicted,
		Failed:  r.Failed,
	}
}

func (r *Result) add(other *Result) {
	r.Merged += other.Merged
	r.Skipped += other.Skipped
	r.Expired += other.Expired
	r.Evicted += other.Evicted
	r.Failed += other.Failed
}

type service struct {
	store    storage.ValueSetStorage
	codec    *valueset.Codec
	recorder metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new sync service. recorder may be nil.
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
		now:      time.Now,
	}
}

// Apply decodes both copies and compares their encoded digests. Converged
// copies are left untouched; otherwise the incoming copy is merged with the
// local one, trimmed at cutoff and saved.
func (s *service) Apply(ctx context.Context, key storage.AttrKey, incoming dbvalue.ValueSet, cutoff repl.Cid) (*Result, error) {
	result := &Result{}

	theirs, err := s.codec.Decode(incoming)
	if err != nil {
		return nil, fmt.Errorf("failed to decode incoming value-set %s: %w", key, err)
	}

	ours, err := s.loadOrEmpty(ctx, key, theirs.Kind())
	if err != nil {
		return nil, err
	}

	same, err := s.converged(ours, theirs)
	if err != nil {
		return nil, err
	}
	if same {
		s.logger.Debug("Skipping value-set (already converged)", "key", key.String())
		s.recorder.RecordReplMerge(theirs.Kind(), true)
		result.Skipped++
		return result, nil
	}

	merged, stats, err := theirs.ReplMerge(ours, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to merge value-set %s: %w", key, err)
	}
	result.addTrim(stats)
	s.recorder.RecordReplMerge(merged.Kind(), false)
	s.recorder.RecordTrim(merged.Kind(), stats)

	if merged.Equal(ours) {
		result.Skipped++
		return result, nil
	}

	if err := s.save(ctx, key, merged); err != nil {
		return nil, err
	}
	result.Merged++

	s.logger.Debug("Merged value-set",
		"key", key.String(),
		"kind", merged.Kind().String(),
		"values", merged.Len(),
		"expired", stats.Expired,
		"evicted", stats.Evicted)

	return result, nil
}

// SyncFrom applies every value-set of peer. A value-set that fails to apply
// is logged and counted; the rest are still applied.
func (s *service) SyncFrom(ctx context.Context, peer storage.ValueSetStorage, cutoff repl.Cid) (*Result, error) {
	s.logger.Info("Starting synchronization", "cutoff", cutoff.String())

	records, err := peer.ListValueSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list peer value-sets: %w", err)
	}

	result := &Result{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		applied, err := s.Apply(ctx, rec.Key, rec.Value, cutoff)
		if err != nil {
			s.logger.Warn("Failed to apply value-set",
				"key", rec.Key.String(),
				"error", err)
			result.Failed++
			continue
		}
		result.add(applied)
	}

	s.logger.Info("Synchronization completed",
		"received", len(records),
		"merged", result.Merged,
		"skipped", result.Skipped,
		"expired", result.Expired,
		"evicted", result.Evicted,
		"failed", result.Failed)

	return result, nil
}

// TrimAll runs Trim over every stored value-set and saves the ones that
// changed. Sets left empty by trim are deleted.
func (s *service) TrimAll(ctx context.Context, cutoff repl.Cid) (*Result, error) {
	started := s.now()
	defer func() {
		s.recorder.RecordTrimPass(s.now().Sub(started))
	}()

	records, err := s.store.ListValueSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list value-sets: %w", err)
	}

	result := &Result{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		vs, err := s.codec.Decode(rec.Value)
		if err != nil {
			s.logger.Warn("Skipping undecodable value-set", "key", rec.Key.String(), "error", err)
			result.Failed++
			continue
		}

		stats := vs.Trim(cutoff)
		if stats == (valueset.TrimStats{}) {
			continue
		}
		result.addTrim(stats)
		s.recorder.RecordTrim(vs.Kind(), stats)

		if vs.Len() == 0 {
			err = s.store.DeleteValueSet(ctx, rec.Key)
		} else {
			err = s.save(ctx, rec.Key, vs)
		}
		if err != nil {
			s.logger.Warn("Failed to store trimmed value-set", "key", rec.Key.String(), "error", err)
			result.Failed++
			continue
		}
		result.Merged++
	}

	s.logger.Info("Trim pass completed",
		"value_sets", len(records),
		"changed", result.Merged,
		"expired", result.Expired,
		"evicted", result.Evicted,
		"duration", s.now().Sub(started))

	return result, nil
}

// Export snapshots every local value-set. Payloads are written in their
// persisted form so that the receiver decodes them with the same codec.
func (s *service) Export(ctx context.Context, replicaID uuid.UUID) (*api.SyncBundle, error) {
	records, err := s.store.ListValueSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list value-sets: %w", err)
	}

	bundle := &api.SyncBundle{
		ExportedAt: s.now().UTC(),
		ReplicaID:  replicaID,
		Entries:    make([]api.SyncEntry, 0, len(records)),
	}
	for _, rec := range records {
		raw, err := json.Marshal(rec.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value-set %s: %w", rec.Key, err)
		}
		bundle.Entries = append(bundle.Entries, api.SyncEntry{
			Key:   rec.Key.String(),
			Value: raw,
		})
	}

	s.logger.Info("Exported value-sets", "count", len(bundle.Entries), "replica_id", replicaID.String())
	return bundle, nil
}

// Import applies every entry of bundle. Entries with a bad key or payload
// are counted as failed; the rest are still applied.
func (s *service) Import(ctx context.Context, bundle *api.SyncBundle, cutoff repl.Cid) (*Result, error) {
	s.logger.Info("Importing bundle",
		"replica_id", bundle.ReplicaID.String(),
		"exported_at", bundle.ExportedAt,
		"entries", len(bundle.Entries))

	result := &Result{}
	for _, entry := range bundle.Entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		applied, err := s.applyEntry(ctx, entry, cutoff)
		if err != nil {
			s.logger.Warn("Failed to apply bundle entry", "key", entry.Key, "error", err)
			result.Failed++
			continue
		}
		result.add(applied)
	}
	return result, nil
}

func (s *service) applyEntry(ctx context.Context, entry api.SyncEntry, cutoff repl.Cid) (*Result, error) {
	key, err := storage.ParseAttrKey(entry.Key)
	if err != nil {
		return nil, err
	}
	var value dbvalue.ValueSet
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value-set %s: %w", entry.Key, err)
	}
	return s.Apply(ctx, key, value, cutoff)
}

func (s *service) loadOrEmpty(ctx context.Context, key storage.AttrKey, kind valueset.Kind) (valueset.ValueSet, error) {
	dbv, err := s.store.GetValueSet(ctx, key)
	if errors.Is(err, storage.ErrValueSetNotFound) {
		return valueset.New(kind)
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

// converged reports whether both copies encode to the same bytes.
func (s *service) converged(a, b valueset.ValueSet) (bool, error) {
	if a.Kind() != b.Kind() {
		return false, nil
	}
	da, err := crypto.DigestValueSet(s.codec.Encode(a))
	if err != nil {
		return false, fmt.Errorf("failed to digest value-set: %w", err)
	}
	db, err := crypto.DigestValueSet(s.codec.Encode(b))
	if err != nil {
		return false, fmt.Errorf("failed to digest value-set: %w", err)
	}
	return da == db, nil
}

func (s *service) save(ctx context.Context, key storage.AttrKey, vs valueset.ValueSet) error {
	if err := vs.Validate(); err != nil {
		return fmt.Errorf("value-set %s: %w", key, err)
	}
	if err := s.store.SaveValueSet(ctx, key, s.codec.Encode(vs), vs.IndexKeys()); err != nil {
		return fmt.Errorf("failed to save value-set %s: %w", key, err)
	}
	return nil
}
