// Package valueset implements the replicated multi-valued attribute containers
// for credential-bearing attributes: interactive sessions, OAuth2 sessions and
// API tokens.
//
// A value-set owns all values of one attribute on one entry. It knows how to
// insert, revoke, merge with another replica's copy, trim revocation
// tombstones, produce index keys and project itself for the read API. All
// operations are synchronous and lock-free; the caller owns the write
// transaction of the entry.
package valueset

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/pkg/api"
)

// SessionMaximum is the most interactive sessions a single entry may hold.
// Trim force-evicts the oldest issued sessions above it.
const SessionMaximum = 48

// Kind enumerates the value-set implementations.
type Kind uint8

const (
	KindSession Kind = iota + 1
	KindOAuth2Session
	KindApiToken
)

// String returns the kind name, matching the persisted kind tag.
func (k Kind) String() string {
	switch k {
	case KindSession:
		return dbvalue.KindSession
	case KindOAuth2Session:
		return dbvalue.KindOAuth2Session
	case KindApiToken:
		return dbvalue.KindApiToken
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name produced by String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case dbvalue.KindSession:
		return KindSession, nil
	case dbvalue.KindOAuth2Session:
		return KindOAuth2Session, nil
	case dbvalue.KindApiToken:
		return KindApiToken, nil
	default:
		return 0, fmt.Errorf("unknown value-set kind %q", s)
	}
}

// Value is a single keyed value that can be inserted into a value-set of the
// matching kind.
type Value interface {
	Kind() Kind
	Key() uuid.UUID
}

// SessionValue is an interactive session keyed by its session id.
type SessionValue struct {
	Session models.Session
	ID      uuid.UUID
}

// Kind implements Value.
func (SessionValue) Kind() Kind { return KindSession }

// Key implements Value.
func (v SessionValue) Key() uuid.UUID { return v.ID }

// OAuth2SessionValue is an OAuth2 session keyed by its session id.
type OAuth2SessionValue struct {
	Session models.OAuth2Session
	ID      uuid.UUID
}

// Kind implements Value.
func (OAuth2SessionValue) Kind() Kind { return KindOAuth2Session }

// Key implements Value.
func (v OAuth2SessionValue) Key() uuid.UUID { return v.ID }

// ApiTokenValue is an API token keyed by its token id.
type ApiTokenValue struct {
	Token models.ApiToken
	ID    uuid.UUID
}

// Kind implements Value.
func (ApiTokenValue) Kind() Kind { return KindApiToken }

// Key implements Value.
func (v ApiTokenValue) Key() uuid.UUID { return v.ID }

// TrimStats reports what a trim removed.
type TrimStats struct {
	Expired int // tombstones past the cutoff
	Evicted int // sessions force-evicted above SessionMaximum
}

// Add sums two stats.
func (s TrimStats) Add(other TrimStats) TrimStats {
	return TrimStats{Expired: s.Expired + other.Expired, Evicted: s.Evicted + other.Evicted}
}

// ValueSet is the capability set shared by every credential value-set.
type ValueSet interface {
	// Kind identifies the implementation.
	Kind() Kind

	// InsertChecked adds a value. It reports whether the set changed and fails
	// only when the value is of another kind.
	InsertChecked(v Value) (bool, error)

	// Clear drops every value.
	Clear()

	// Remove deletes or revokes the value keyed by id at cid. It reports
	// whether anything changed.
	Remove(id uuid.UUID, cid repl.Cid) bool

	// Purge removes every value at cid. It reports whether the set is now
	// fully empty; false means tombstones remain and the set must be kept.
	Purge(cid repl.Cid) bool

	// Trim forgets revocations older than cutoff and enforces capacity limits.
	Trim(cutoff repl.Cid) TrimStats

	// Contains reports whether id is referenced by the set.
	Contains(id uuid.UUID) bool

	// Len returns the number of values, tombstones included.
	Len() int

	// Equal reports whether other holds exactly the same values.
	Equal(other ValueSet) bool

	// Merge combines other into the set in place, keeping the dominant value
	// per key.
	Merge(other ValueSet) error

	// ReplMerge returns a new set combining the set with an older replica's
	// copy, trimmed at cutoff. Neither input is modified.
	ReplMerge(older ValueSet, cutoff repl.Cid) (ValueSet, TrimStats, error)

	// IndexKeys returns the equality index keys for the set.
	IndexKeys() []string

	// RefUUIDs returns the ids this set depends on for referential integrity.
	RefUUIDs() []uuid.UUID

	// Validate checks values against invariants the type system cannot express.
	Validate() error

	// Strings renders each value for diagnostics.
	Strings() []string

	// Project returns the read API view of the set.
	Project() api.Projection

	// ToDB encodes the set in the latest persisted shape.
	ToDB() dbvalue.ValueSet

	// Clone returns a deep copy.
	Clone() ValueSet
}

// ErrInvalidValueState is the cause of every type mismatch error.
var ErrInvalidValueState = errors.New("invalid value state")

// TextCodeInvalidValueState tags type mismatch errors.
const TextCodeInvalidValueState = "VALUESET_INVALID_VALUE_STATE"

func invalidValueState(expected Kind, got fmt.Stringer) error {
	return goerrors.Wrap(ErrInvalidValueState, goerrors.CategoryBadInput,
		fmt.Sprintf("value-set of kind %s cannot accept %s", expected, got)).
		WithTextCode(TextCodeInvalidValueState).
		WithMetadata(map[string]any{
			"expected": expected.String(),
			"got":      got.String(),
		})
}

// IsInvalidValueState reports whether err is a type mismatch raised by this package.
func IsInvalidValueState(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == TextCodeInvalidValueState
	}
	return errors.Is(err, ErrInvalidValueState)
}

// New creates an empty value-set of the given kind.
func New(kind Kind) (ValueSet, error) {
	switch kind {
	case KindSession:
		return NewSessionSet(), nil
	case KindOAuth2Session:
		return NewOAuth2SessionSet(), nil
	case KindApiToken:
		return NewApiTokenSet(), nil
	default:
		return nil, fmt.Errorf("unknown value-set kind %d", kind)
	}
}

// FromValue creates a value-set holding a single value.
func FromValue(v Value) (ValueSet, error) {
	vs, err := New(v.Kind())
	if err != nil {
		return nil, err
	}
	if _, err := vs.InsertChecked(v); err != nil {
		return nil, err
	}
	return vs, nil
}

// sortedKeys returns map keys in uuid byte order, so iteration is
// deterministic across replicas.
func sortedKeys[V any](m map[uuid.UUID]V) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUUID)
	return keys
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

func projectState(state models.SessionState) (expires, revoked *time.Time) {
	if t, ok := state.Expiry(); ok {
		return &t, nil
	}
	if cid, ok := state.Revocation(); ok {
		t := cid.Time()
		return nil, &t
	}
	return nil, nil
}
