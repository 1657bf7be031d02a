package valueset

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/validation"
	"github.com/iudanet/sessionstore/pkg/api"
)

// ApiTokenSet holds the API tokens of one entry. Tokens have no revocation
// state: removing a token deletes it, and an empty set is a valid value.
type ApiTokenSet struct {
	m map[uuid.UUID]models.ApiToken
}

var _ ValueSet = (*ApiTokenSet)(nil)

// NewApiTokenSet creates an empty set.
func NewApiTokenSet() *ApiTokenSet {
	return &ApiTokenSet{m: make(map[uuid.UUID]models.ApiToken)}
}

// NewApiTokenSetWith creates a set holding one token.
func NewApiTokenSetWith(id uuid.UUID, t models.ApiToken) *ApiTokenSet {
	vs := NewApiTokenSet()
	vs.m[id] = t
	return vs
}

// ApiTokenSetFromMap creates a set from existing tokens. The map is copied.
func ApiTokenSetFromMap(m map[uuid.UUID]models.ApiToken) *ApiTokenSet {
	vs := &ApiTokenSet{m: make(map[uuid.UUID]models.ApiToken, len(m))}
	for id, t := range m {
		vs.m[id] = t
	}
	return vs
}

// Push stores a token, replacing any previous value under id.
func (vs *ApiTokenSet) Push(id uuid.UUID, t models.ApiToken) bool {
	_, exists := vs.m[id]
	vs.m[id] = t
	return !exists
}

// Get returns the token stored under id.
func (vs *ApiTokenSet) Get(id uuid.UUID) (models.ApiToken, bool) {
	t, ok := vs.m[id]
	return t, ok
}

// Kind implements ValueSet.
func (vs *ApiTokenSet) Kind() Kind {
	return KindApiToken
}

// InsertChecked adds a token if its id is absent.
func (vs *ApiTokenSet) InsertChecked(v Value) (bool, error) {
	tv, ok := v.(ApiTokenValue)
	if !ok {
		return false, invalidValueState(KindApiToken, v.Kind())
	}
	if _, exists := vs.m[tv.ID]; exists {
		return false, nil
	}
	vs.m[tv.ID] = tv.Token
	return true, nil
}

// Clear implements ValueSet.
func (vs *ApiTokenSet) Clear() {
	clear(vs.m)
}

// Remove deletes the token. The cid is unused.
func (vs *ApiTokenSet) Remove(id uuid.UUID, _ repl.Cid) bool {
	if _, ok := vs.m[id]; !ok {
		return false
	}
	delete(vs.m, id)
	return true
}

// Purge deletes every token and returns true.
func (vs *ApiTokenSet) Purge(_ repl.Cid) bool {
	clear(vs.m)
	return true
}

// Trim is a no-op, tokens leave no tombstones.
func (vs *ApiTokenSet) Trim(_ repl.Cid) TrimStats {
	return TrimStats{}
}

// Contains implements ValueSet.
func (vs *ApiTokenSet) Contains(id uuid.UUID) bool {
	_, ok := vs.m[id]
	return ok
}

// Len implements ValueSet.
func (vs *ApiTokenSet) Len() int {
	return len(vs.m)
}

// Equal implements ValueSet.
func (vs *ApiTokenSet) Equal(other ValueSet) bool {
	o, ok := other.(*ApiTokenSet)
	if !ok || len(o.m) != len(vs.m) {
		return false
	}
	for id, t := range vs.m {
		ot, ok := o.m[id]
		if !ok || !t.Equal(ot) {
			return false
		}
	}
	return true
}

// Merge adds the tokens of other that are missing here. Tokens already
// present are kept unchanged.
func (vs *ApiTokenSet) Merge(other ValueSet) error {
	o, ok := other.(*ApiTokenSet)
	if !ok {
		return invalidValueState(KindApiToken, other.Kind())
	}
	unionTokens(vs.m, o.m)
	return nil
}

// ReplMerge implements ValueSet. The result is a plain union; nothing is
// trimmed.
func (vs *ApiTokenSet) ReplMerge(older ValueSet, _ repl.Cid) (ValueSet, TrimStats, error) {
	o, ok := older.(*ApiTokenSet)
	if !ok {
		return nil, TrimStats{}, invalidValueState(KindApiToken, older.Kind())
	}

	merged := ApiTokenSetFromMap(vs.m)
	unionTokens(merged.m, o.m)

	return merged, TrimStats{}, nil
}

// IndexKeys returns the hyphenated token ids.
func (vs *ApiTokenSet) IndexKeys() []string {
	keys := make([]string, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		keys = append(keys, id.String())
	}
	return keys
}

// RefUUIDs returns the token ids.
func (vs *ApiTokenSet) RefUUIDs() []uuid.UUID {
	return sortedKeys(vs.m)
}

// Validate checks every token label. The first offending token is reported.
func (vs *ApiTokenSet) Validate() error {
	for _, id := range sortedKeys(vs.m) {
		if err := validation.ValidateLabel(vs.m[id].Label); err != nil {
			return fmt.Errorf("api token %s: %w", id, err)
		}
	}
	return nil
}

// Strings implements ValueSet.
func (vs *ApiTokenSet) Strings() []string {
	out := make([]string, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		out = append(out, fmt.Sprintf("%s: %s", id, vs.m[id]))
	}
	return out
}

// Project implements ValueSet.
func (vs *ApiTokenSet) Project() api.Projection {
	tokens := make([]api.ApiToken, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		t := vs.m[id]
		var expires *time.Time
		if t.Expiry != nil {
			e := *t.Expiry
			expires = &e
		}
		tokens = append(tokens, api.ApiToken{
			ID:       id,
			Label:    t.Label,
			Expires:  expires,
			IssuedAt: t.IssuedAt,
			IssuedBy: t.IssuedBy.UUID(),
			Scope:    t.Scope.String(),
		})
	}
	return api.Projection{Kind: KindApiToken.String(), ApiTokens: tokens}
}

// ToDB implements ValueSet.
func (vs *ApiTokenSet) ToDB() dbvalue.ValueSet {
	records := make([]dbvalue.ApiToken, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		records = append(records, encodeApiToken(id, vs.m[id]))
	}
	return dbvalue.ValueSet{Kind: dbvalue.KindApiToken, ApiTokens: records}
}

// Clone implements ValueSet.
func (vs *ApiTokenSet) Clone() ValueSet {
	return ApiTokenSetFromMap(vs.m)
}

func unionTokens(dst, src map[uuid.UUID]models.ApiToken) {
	for id, t := range src {
		if _, ok := dst[id]; !ok {
			dst[id] = t
		}
	}
}
