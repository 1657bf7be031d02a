package valueset

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/pkg/api"
)

// SessionSet holds the interactive sessions of one entry.
type SessionSet struct {
	m map[uuid.UUID]models.Session
}

var _ ValueSet = (*SessionSet)(nil)

// NewSessionSet creates an empty set.
func NewSessionSet() *SessionSet {
	return &SessionSet{m: make(map[uuid.UUID]models.Session)}
}

// NewSessionSetWith creates a set holding one session.
func NewSessionSetWith(id uuid.UUID, s models.Session) *SessionSet {
	vs := NewSessionSet()
	vs.m[id] = s
	return vs
}

// SessionSetFromMap creates a set from existing sessions. The map is copied.
func SessionSetFromMap(m map[uuid.UUID]models.Session) *SessionSet {
	vs := &SessionSet{m: make(map[uuid.UUID]models.Session, len(m))}
	for id, s := range m {
		vs.m[id] = s
	}
	return vs
}

// Push stores a session, replacing any previous value under id. It reports
// whether id was new. Used by builders; writes go through InsertChecked.
func (vs *SessionSet) Push(id uuid.UUID, s models.Session) bool {
	_, exists := vs.m[id]
	vs.m[id] = s
	return !exists
}

// Get returns the session stored under id.
func (vs *SessionSet) Get(id uuid.UUID) (models.Session, bool) {
	s, ok := vs.m[id]
	return s, ok
}

// Kind implements ValueSet.
func (vs *SessionSet) Kind() Kind {
	return KindSession
}

// InsertChecked adds a session if its id is absent. Existing sessions are
// never overwritten.
func (vs *SessionSet) InsertChecked(v Value) (bool, error) {
	sv, ok := v.(SessionValue)
	if !ok {
		return false, invalidValueState(KindSession, v.Kind())
	}
	if _, exists := vs.m[sv.ID]; exists {
		return false, nil
	}
	vs.m[sv.ID] = sv.Session
	return true, nil
}

// Clear implements ValueSet.
func (vs *SessionSet) Clear() {
	clear(vs.m)
}

// Remove revokes the session at cid. Sessions are never hard deleted here,
// the revocation has to replicate. Already revoked or unknown ids are a no-op.
func (vs *SessionSet) Remove(id uuid.UUID, cid repl.Cid) bool {
	s, ok := vs.m[id]
	if !ok || s.State.IsRevoked() {
		return false
	}
	s.State = models.RevokedAt(cid)
	vs.m[id] = s
	return true
}

// Purge revokes every live session at cid. It always returns false: the
// revocations must persist, so the set is never empty afterwards.
func (vs *SessionSet) Purge(cid repl.Cid) bool {
	revokeAll(vs.m, cid)
	return false
}

// Trim drops revocations older than cutoff, then force-evicts the oldest
// issued sessions until at most SessionMaximum remain.
//
// Eviction order is (issued_at, id) computed from the current contents only,
// so every replica trimming the same converged set removes the same sessions.
func (vs *SessionSet) Trim(cutoff repl.Cid) TrimStats {
	var stats TrimStats
	stats.Expired = trimRevoked(vs.m, cutoff)

	if len(vs.m) <= SessionMaximum {
		return stats
	}

	slog.Warn("entry has exceeded session maximum, force trimming will occur",
		"session_maximum", SessionMaximum,
		"count", len(vs.m))

	type issued struct {
		s  models.Session
		id uuid.UUID
	}
	order := make([]issued, 0, len(vs.m))
	for id, s := range vs.m {
		order = append(order, issued{id: id, s: s})
	}
	slices.SortFunc(order, func(a, b issued) int {
		if c := a.s.IssuedAt.Compare(b.s.IssuedAt); c != 0 {
			return c
		}
		return compareUUID(a.id, b.id)
	})

	surplus := len(vs.m) - SessionMaximum
	for _, victim := range order[:surplus] {
		slog.Warn("force trimmed", "session_id", victim.id, "issued_at", victim.s.IssuedAt)
		delete(vs.m, victim.id)
	}
	stats.Evicted = surplus

	return stats
}

// Contains implements ValueSet.
func (vs *SessionSet) Contains(id uuid.UUID) bool {
	_, ok := vs.m[id]
	return ok
}

// Len implements ValueSet.
func (vs *SessionSet) Len() int {
	return len(vs.m)
}

// Equal implements ValueSet.
func (vs *SessionSet) Equal(other ValueSet) bool {
	o, ok := other.(*SessionSet)
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

// Merge implements ValueSet. A session present on both sides is replaced
// only when the other side's state is strictly greater.
func (vs *SessionSet) Merge(other ValueSet) error {
	o, ok := other.(*SessionSet)
	if !ok {
		return invalidValueState(KindSession, other.Kind())
	}
	mergeSessions(vs.m, o.m)
	return nil
}

// ReplMerge implements ValueSet.
func (vs *SessionSet) ReplMerge(older ValueSet, cutoff repl.Cid) (ValueSet, TrimStats, error) {
	o, ok := older.(*SessionSet)
	if !ok {
		return nil, TrimStats{}, invalidValueState(KindSession, older.Kind())
	}

	merged := SessionSetFromMap(vs.m)
	mergeSessions(merged.m, o.m)
	stats := merged.Trim(cutoff)

	return merged, stats, nil
}

// IndexKeys returns the hyphenated session ids.
func (vs *SessionSet) IndexKeys() []string {
	keys := make([]string, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		keys = append(keys, id.String())
	}
	return keys
}

// RefUUIDs returns the session ids.
func (vs *SessionSet) RefUUIDs() []uuid.UUID {
	return sortedKeys(vs.m)
}

// Validate implements ValueSet. Sessions carry no invariant beyond their types.
func (vs *SessionSet) Validate() error {
	return nil
}

// Strings implements ValueSet.
func (vs *SessionSet) Strings() []string {
	out := make([]string, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		out = append(out, fmt.Sprintf("%s: %s", id, vs.m[id]))
	}
	return out
}

// Project implements ValueSet.
func (vs *SessionSet) Project() api.Projection {
	sessions := make([]api.AuthSession, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		s := vs.m[id]
		expires, revoked := projectState(s.State)
		sessions = append(sessions, api.AuthSession{
			ID:           id,
			Label:        s.Label,
			Expires:      expires,
			Revoked:      revoked,
			IssuedAt:     s.IssuedAt,
			IssuedBy:     s.IssuedBy.UUID(),
			CredentialID: s.CredID,
			AuthType:     s.Type.String(),
			SessionScope: s.Scope.String(),
		})
	}
	return api.Projection{Kind: KindSession.String(), Sessions: sessions}
}

// ToDB implements ValueSet.
func (vs *SessionSet) ToDB() dbvalue.ValueSet {
	records := make([]dbvalue.Session, 0, len(vs.m))
	for _, id := range sortedKeys(vs.m) {
		records = append(records, encodeSession(id, vs.m[id]))
	}
	return dbvalue.ValueSet{Kind: dbvalue.KindSession, Sessions: records}
}

// Clone implements ValueSet.
func (vs *SessionSet) Clone() ValueSet {
	return SessionSetFromMap(vs.m)
}

func mergeSessions(dst, src map[uuid.UUID]models.Session) {
	for id, incoming := range src {
		existing, ok := dst[id]
		if !ok || incoming.State.Greater(existing.State) {
			dst[id] = incoming
		}
	}
}

// stateful is satisfied by both session record types.
type stateful[S any] interface {
	LifecycleState() models.SessionState
	WithState(models.SessionState) S
}

// revokeAll moves every live session to RevokedAt(cid) and returns how many
// were revoked.
func revokeAll[S stateful[S]](m map[uuid.UUID]S, cid repl.Cid) int {
	n := 0
	for id, s := range m {
		if s.LifecycleState().IsRevoked() {
			continue
		}
		m[id] = s.WithState(models.RevokedAt(cid))
		n++
	}
	return n
}

// trimRevoked drops sessions revoked strictly before cutoff and returns how
// many were dropped.
func trimRevoked[S stateful[S]](m map[uuid.UUID]S, cutoff repl.Cid) int {
	n := 0
	for id, s := range m {
		if cid, ok := s.LifecycleState().Revocation(); ok && cid.Less(cutoff) {
			delete(m, id)
			n++
		}
	}
	return n
}
