// Package dbvalue defines the persisted shapes of credential value-sets.
//
// Every record carries a version tag. Old versions stay decodable forever,
// only the latest version of each record kind is ever written.
package dbvalue

import (
	"time"

	"github.com/google/uuid"
)

// Version is the schema version tag of a single record.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
	V3 Version = 3
	V4 Version = 4
)

// Latest record versions written by the encoders.
const (
	SessionLatest       = V4
	OAuth2SessionLatest = V3
	ApiTokenLatest      = V1
)

// Set kinds stored in ValueSet.Kind.
const (
	KindSession       = "session"
	KindOAuth2Session = "oauth2_session"
	KindApiToken      = "api_token"
)

// Cid is the persisted form of a replication change id.
type Cid struct {
	ServerID  uuid.UUID     `json:"server_id"`
	Timestamp time.Duration `json:"timestamp"`
}

// Session state kinds.
const (
	StateExpiresAt = "expires_at"
	StateNever     = "never"
	StateRevokedAt = "revoked_at"
)

// SessionState is the persisted lifecycle state. Exactly one of ExpiresAt and
// RevokedAt is set, matching Kind; neither for StateNever.
type SessionState struct {
	RevokedAt *Cid   `json:"revoked_at,omitempty"`
	Kind      string `json:"kind"`
	ExpiresAt string `json:"expires_at,omitempty"` // RFC3339
}

// Identity kinds.
const (
	IdentityInternal = "internal"
	IdentityUUID     = "uuid"
	IdentitySync     = "sync"
)

// IdentityID is the persisted issuer of a credential.
type IdentityID struct {
	ID   *uuid.UUID `json:"id,omitempty"`
	Kind string     `json:"kind"`
}

// Session access scopes. ScopeIdentityOnly only appears in old records.
const (
	ScopeIdentityOnly     = "identity_only"
	ScopeReadOnly         = "read_only"
	ScopeReadWrite        = "read_write"
	ScopePrivilegeCapable = "privilege_capable"
	ScopeSynchronise      = "synchronise"
)

// Session is one persisted interactive session.
//
// V1-V3 records predate the auth type field. They are still recognised but
// dropped on load because a session without an auth type cannot be
// re-authenticated.
type Session struct {
	State    *SessionState `json:"state,omitempty"`
	IssuedBy *IdentityID   `json:"issued_by,omitempty"`
	Label    string        `json:"label"`
	IssuedAt string        `json:"issued_at"` // RFC3339
	Scope    string        `json:"scope,omitempty"`
	AuthType string        `json:"type,omitempty"` // V4+
	Version  Version       `json:"v"`
	Refer    uuid.UUID     `json:"refer"`
	CredID   uuid.UUID     `json:"cred_id"`
}

// OAuth2Session is one persisted OAuth2 session.
//
//	V1: flat optional Expiry, mandatory parent
//	V2: tri-state State, mandatory parent
//	V3: tri-state State, optional parent
type OAuth2Session struct {
	Parent   *uuid.UUID    `json:"parent,omitempty"`
	Expiry   *string       `json:"expiry,omitempty"` // V1 only, RFC3339
	State    *SessionState `json:"state,omitempty"`  // V2+
	IssuedAt string        `json:"issued_at"`        // RFC3339
	Version  Version       `json:"v"`
	Refer    uuid.UUID     `json:"refer"`
	RsUUID   uuid.UUID     `json:"rs_uuid"`
}

// API token scopes.
const (
	TokenScopeReadOnly    = "read_only"
	TokenScopeReadWrite   = "read_write"
	TokenScopeSynchronise = "synchronise"
)

// ApiToken is one persisted API token.
type ApiToken struct {
	Expiry   *string    `json:"expiry,omitempty"` // RFC3339
	IssuedBy IdentityID `json:"issued_by"`
	Label    string     `json:"label"`
	IssuedAt string     `json:"issued_at"` // RFC3339
	Scope    string     `json:"scope"`
	Version  Version    `json:"v"`
	Refer    uuid.UUID  `json:"refer"`
}

// ValueSet is the persisted form of one attribute's value-set. Kind selects
// which of the record lists is meaningful.
type ValueSet struct {
	Kind           string          `json:"kind"`
	Sessions       []Session       `json:"sessions,omitempty"`
	OAuth2Sessions []OAuth2Session `json:"oauth2_sessions,omitempty"`
	ApiTokens      []ApiToken      `json:"api_tokens,omitempty"`
}

// Len returns the number of records in the set, whatever its kind.
func (v ValueSet) Len() int {
	switch v.Kind {
	case KindSession:
		return len(v.Sessions)
	case KindOAuth2Session:
		return len(v.OAuth2Sessions)
	case KindApiToken:
		return len(v.ApiTokens)
	default:
		return 0
	}
}
