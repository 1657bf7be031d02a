// Package storage defines how persisted value-sets are kept. Implementations
// store the versioned record shapes from dbvalue and never interpret them.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/dbvalue"
)

// AttrKey addresses one attribute of one entry.
type AttrKey struct {
	Attr    string
	EntryID uuid.UUID
}

// String renders the key as "<entry id>/<attr>".
func (k AttrKey) String() string {
	return k.EntryID.String() + "/" + k.Attr
}

// ParseAttrKey parses a key produced by String.
func ParseAttrKey(s string) (AttrKey, error) {
	entry, attr, ok := strings.Cut(s, "/")
	if !ok || attr == "" {
		return AttrKey{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	id, err := uuid.Parse(entry)
	if err != nil {
		return AttrKey{}, fmt.Errorf("%w: %q: %v", ErrInvalidKey, s, err)
	}
	return AttrKey{EntryID: id, Attr: attr}, nil
}

// Record is a stored value-set together with its key.
type Record struct {
	Value dbvalue.ValueSet
	Key   AttrKey
}

//go:generate moq -out valuesetstorage_mock.go . ValueSetStorage

// ValueSetStorage stores the persisted form of value-sets.
type ValueSetStorage interface {
	// SaveValueSet stores or replaces a value-set and replaces its equality
	// index keys in the same transaction
	SaveValueSet(ctx context.Context, key AttrKey, value dbvalue.ValueSet, indexKeys []string) error

	// GetValueSet retrieves a value-set
	// Returns ErrValueSetNotFound if nothing is stored under key
	GetValueSet(ctx context.Context, key AttrKey) (dbvalue.ValueSet, error)

	// DeleteValueSet removes a value-set and its index keys
	// Deleting a missing key is not an error
	DeleteValueSet(ctx context.Context, key AttrKey) error

	// ListValueSets returns every stored value-set ordered by key
	ListValueSets(ctx context.Context) ([]Record, error)

	// LookupIndex returns the attributes whose value-set produced indexKey
	LookupIndex(ctx context.Context, indexKey string) ([]AttrKey, error)
}

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage keeps replica bookkeeping next to the value-sets.
type MetadataStorage interface {
	// SaveLastChange saves the timestamp of the newest change id issued
	// by this replica
	SaveLastChange(ctx context.Context, ts time.Duration) error

	// GetLastChange retrieves the timestamp saved by SaveLastChange
	// Returns 0 if nothing was saved yet
	GetLastChange(ctx context.Context) (time.Duration, error)
}

// Store is a complete storage backend.
type Store interface {
	ValueSetStorage
	MetadataStorage
	Close() error
}
