package models

import (
	"fmt"
	"time"

	"github.com/iudanet/sessionstore/internal/repl"
)

// SessionStateKind discriminates the variants of SessionState.
type SessionStateKind uint8

const (
	// StateExpiresAt - сессия действительна до заданного момента времени
	StateExpiresAt SessionStateKind = iota
	// StateNeverExpires - сессия без срока действия
	StateNeverExpires
	// StateRevokedAt - сессия отозвана в заданной точке репликации
	StateRevokedAt
)

// String returns the state kind name.
func (k SessionStateKind) String() string {
	switch k {
	case StateExpiresAt:
		return "expires_at"
	case StateNeverExpires:
		return "never"
	case StateRevokedAt:
		return "revoked_at"
	default:
		return "unknown"
	}
}

// SessionState is the lifecycle of an interactive or OAuth2 session.
//
// States are totally ordered and replicas converge by keeping the greater one:
//
//	ExpiresAt(t1) < ExpiresAt(t2)   when t1 < t2
//	ExpiresAt(t)  < NeverExpires
//	NeverExpires  < RevokedAt(c)
//	RevokedAt(c1) < RevokedAt(c2)   when c1 < c2
//
// So a revocation always wins, a later revocation wins over an earlier one and
// an extended expiry wins over a shorter one.
type SessionState struct {
	expiresAt time.Time
	revokedAt repl.Cid
	kind      SessionStateKind
}

// NeverExpires returns a state with unbounded validity.
func NeverExpires() SessionState {
	return SessionState{kind: StateNeverExpires}
}

// ExpiresAt returns a state valid until t. The instant is normalized to UTC.
func ExpiresAt(t time.Time) SessionState {
	return SessionState{kind: StateExpiresAt, expiresAt: t.UTC()}
}

// RevokedAt returns a terminal state revoked at cid.
func RevokedAt(cid repl.Cid) SessionState {
	return SessionState{kind: StateRevokedAt, revokedAt: cid}
}

// Kind returns the variant of the state.
func (s SessionState) Kind() SessionStateKind {
	return s.kind
}

// Expiry returns the expiry instant when the state is ExpiresAt.
func (s SessionState) Expiry() (time.Time, bool) {
	return s.expiresAt, s.kind == StateExpiresAt
}

// Revocation returns the revocation cid when the state is RevokedAt.
func (s SessionState) Revocation() (repl.Cid, bool) {
	return s.revokedAt, s.kind == StateRevokedAt
}

// IsRevoked reports whether the state is terminal.
func (s SessionState) IsRevoked() bool {
	return s.kind == StateRevokedAt
}

// Compare returns -1, 0 or +1 depending on whether s sorts before, equal to
// or after other in the lifecycle order.
func (s SessionState) Compare(other SessionState) int {
	if s.kind != other.kind {
		if s.kind < other.kind {
			return -1
		}
		return 1
	}

	switch s.kind {
	case StateExpiresAt:
		return s.expiresAt.Compare(other.expiresAt)
	case StateRevokedAt:
		return s.revokedAt.Compare(other.revokedAt)
	default:
		return 0
	}
}

// Greater reports whether s strictly dominates other.
func (s SessionState) Greater(other SessionState) bool {
	return s.Compare(other) > 0
}

// Equal reports whether two states are the same.
func (s SessionState) Equal(other SessionState) bool {
	return s.Compare(other) == 0
}

// MaxState returns the dominating state of a and b.
func MaxState(a, b SessionState) SessionState {
	if b.Greater(a) {
		return b
	}
	return a
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s.kind {
	case StateExpiresAt:
		return fmt.Sprintf("ExpiresAt(%s)", s.expiresAt.Format(time.RFC3339))
	case StateRevokedAt:
		return fmt.Sprintf("RevokedAt(%s)", s.revokedAt)
	default:
		return "NeverExpires"
	}
}
