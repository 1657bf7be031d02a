package valueset

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/pkg/api"
)

// OAuth2SessionSet holds the OAuth2 sessions of one entry together with a
// filter over the resource servers they were issued against.
//
// Every resource server id held by a session is admitted by the filter. The
// filter only grows until Clear.
type OAuth2SessionSet struct {
	m      map[uuid.UUID]models.OAuth2Session
	filter RsFilter
}

var _ ValueSet = (*OAuth2SessionSet)(nil)

// NewOAuth2SessionSet creates an empty set.
func NewOAuth2SessionSet() *OAuth2SessionSet {
	return &OAuth2SessionSet{m: make(map[uuid.UUID]models.OAuth2Session)}
}

// NewOAuth2SessionSetWith creates a set holding one session.
func NewOAuth2SessionSetWith(id uuid.UUID, s models.OAuth2Session) *OAuth2SessionSet {
	vs := NewOAuth2SessionSet()
	vs.Push(id, s)
	return vs
}

// OAuth2SessionSetFromMap creates a set from existing sessions. The map is
// copied and the filter rebuilt from it.
func OAuth2SessionSetFromMap(m map[uuid.UUID]models.OAuth2Session) *OAuth2SessionSet {
	vs := &OAuth2SessionSet{m: make(map[uuid.UUID]models.OAuth2Session, len(m))}
	for id, s := range m {
		vs.Push(id, s)
	}
	return vs
}

// Push stores a session, replacing any previous value under id, and records
// its resource server. It reports whether id was new.
func (vs *OAuth2SessionSet) Push(id uuid.UUID, s models.OAuth2Session) bool {
	_, exists := vs.m[id]
	vs.m[id] = s
	vs.filter.Add(s.RsUUID)
	return !exists
}

// Get returns the session stored under id.
func (vs *OAuth2SessionSet) Get(id uuid.UUID) (models.OAuth2Session, bool) {
	s, ok := vs.m[id]
	return s, ok
}

// Kind implements ValueSet.
func (vs *OAuth2SessionSet) Kind() Kind {
	return KindOAuth2Session
}

// InsertChecked adds a session or refreshes an existing one. An existing
// session is replaced only when the incoming state is strictly greater, so an
// expiry can be extended but a revocation is never undone.
func (vs *OAuth2SessionSet) InsertChecked(v Value) (bool, error) {
	sv, ok := v.(OAuth2SessionValue)
	if !ok {
		return false, invalidValueState(KindOAuth2Session, v.Kind())
	}

	existing, exists := vs.m[sv.ID]
	if exists && !sv.Session.State.Greater(existing.State) {
		return false, nil
	}
	vs.Push(sv.ID, sv.Session)
	return true, nil
}

// Clear drops every session and resets the filter.
func (vs *OAuth2SessionSet) Clear() {
	clear(vs.m)
	vs.filter.Reset()
}

// Remove revokes the session with id at cid. When id is not a session id it
// is tried as a resource server id, and every live session issued against
// that resource server is revoked. It reports whether anything was revoked.
func (vs *OAuth2SessionSet) Remove(id uuid.UUID, cid repl.Cid) bool {
	if s, ok := vs.m[id]; ok {
		if s.State.IsRevoked() {
			return false
		}
		vs.m[id] = s.WithState(models.RevokedAt(cid))
		return true
	}

	if !vs.filter.MayContain(id) {
		return false
	}

	// фильтр может ошибаться в сторону "да", подтверждаем перебором
	revoked := false
	for sid, s := range vs.m {
		if s.RsUUID != id || s.State.IsRevoked() {
			continue
		}
		vs.m[sid] = s.WithState(models.RevokedAt(cid))
		revoked = true
	}
	return revoked
}

// Purge revokes every live session at cid. It always returns false.
func (vs *OAuth2SessionSet) Purge(cid repl.Cid) bool {
	revokeAll(vs.m, cid)
	return false
}

// Trim drops revocations older than cutoff. OAuth2 sessions have no
// capacity ceiling. The filter is left as is.
func (vs *OAuth2SessionSet) Trim(cutoff repl.Cid) TrimStats {
	return TrimStats{Expired: trimRevoked(vs.m, cutoff)}
}

// Contains reports whether id is a session id of the set, or the id of a
// resource server with at least one live session.
func (vs *OAuth2SessionSet) Contains(id uuid.UUID) bool {
	if _, ok := vs.m[id]; ok {
		return true
	}
	if !vs.filter.MayContain(id) {
		return false
	}
	for _, s := range vs.m {
		if s.RsUUID == id && !s.State.IsRevoked() {
			return true
		}
	}
	return false
}

// Len implements ValueSet.
func (vs *OAuth2SessionSet) Len() int {
	return len(vs.m)
}

// Equal implements ValueSet. The filter is not compared, it is derived data.
func (vs *OAuth2SessionSet) Equal(other ValueSet) bool {
	o, ok := other.(*OAuth2SessionSet)
	if !ok || len(o.m) != len(vs.m) {
		return false
	}
	for id, s := range vs.m {
		os, ok := o.m[id]
		if !ok || !s.Equal(os) {
			return false
		}
	}
	return true
}

// Merge implements ValueSet. The filters are united.
func (vs *OAuth2SessionSet) Merge(other ValueSet) error {
	o, ok := other.(*OAuth2SessionSet)
	if !ok {
		return invalidValueState(KindOAuth2Session, other.Kind())
	}
	mergeOAuth2Sessions(vs.m, o.m)
	vs.filter = vs.filter.Union(o.filter)
	return nil
}

// ReplMerge implements ValueSet.
func (vs *OAuth2SessionSet) ReplMerge(older ValueSet, cutoff repl.Cid) (ValueSet, TrimStats, error) {
	o, ok := older.(*OAuth2SessionSet)
	if !ok {
		return nil, TrimStats{}, invalidValueState(KindOAuth2Session, older.Kind())
	}

	merged := OAuth2SessionSetFromMap(vs.m)
	mergeOAuth2Sessions(merged.m, o.m)
	merged.filter = merged.filter.Union(vs.filter).Union(o.filter)
	stats := merged.Trim(cutoff)

	return merged, stats, nil
}

// IndexKeys returns the session ids and resource server ids as one sorted,
// deduplicated list.
func (vs *OAuth2SessionSet) IndexKeys() []string {
	keys := make([]string, 0, 2*len(vs.m))
	for id, s := range vs.m {
		keys = append(keys, id.String(), s.RsUUID.String())
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// RefUUIDs returns the resource server ids the sessions depend on, sorted and
// deduplicated.
func (vs *OAuth2SessionSet) RefUUIDs() []uuid.UUID {
	rs := make([]uuid.UUID, 0, len(vs.m))
	for _, s := range vs.m {
		rs = append(rs, s.RsUUID)
	}
	slices.SortFunc(rs, compareUUID)
	return slices.Compact(rs)
}

// Validate implements ValueSet.
func (vs *OAuth2SessionSet) Validate() error {
	return nil
}

// Strings implements ValueSet.
func (vs *OAuth2SessionSet) Strings() []string {
	out := make([]string, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		out = append(out, fmt.Sprintf("%s: %s", id, vs.m[id]))
	}
	return out
}

// Project implements ValueSet.
func (vs *OAuth2SessionSet) Project() api.Projection {
	sessions := make([]api.OAuth2Session, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		s := vs.m[id]
		expires, revoked := projectState(s.State)
		var parent *uuid.UUID
		if s.Parent != nil {
			p := *s.Parent
			parent = &p
		}
		sessions = append(sessions, api.OAuth2Session{
			ID:       id,
			ParentID: parent,
			ClientID: s.RsUUID,
			Expires:  expires,
			Revoked:  revoked,
			IssuedAt: s.IssuedAt,
		})
	}
	return api.Projection{Kind: KindOAuth2Session.String(), OAuth2Sessions: sessions}
}

// ToDB implements ValueSet.
func (vs *OAuth2SessionSet) ToDB() dbvalue.ValueSet {
	records := make([]dbvalue.OAuth2Session, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		records = append(records, encodeOAuth2Session(id, vs.m[id]))
	}
	return dbvalue.ValueSet{Kind: dbvalue.KindOAuth2Session, OAuth2Sessions: records}
}

// Clone implements ValueSet. The filter is copied, not rebuilt.
func (vs *OAuth2SessionSet) Clone() ValueSet {
	c := OAuth2SessionSetFromMap(vs.m)
	c.filter = c.filter.Union(vs.filter)
	return c
}

func mergeOAuth2Sessions(dst, src map[uuid.UUID]models.OAuth2Session) {
	for id, incoming := range src {
		existing, ok := dst[id]
		if !ok || incoming.State.Greater(existing.State) {
			dst[id] = incoming
		}
	}
}
