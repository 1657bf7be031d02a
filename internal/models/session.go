package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IdentityKind discriminates who issued a credential.
type IdentityKind uint8

const (
	// IdentityInternal - выпущено самим сервером
	IdentityInternal IdentityKind = iota
	// IdentityUser - выпущено конкретным пользователем
	IdentityUser
	// IdentitySynch - выпущено агентом синхронизации
	IdentitySynch
)

// IdentityID identifies the issuer of a session or token.
type IdentityID struct {
	ID   uuid.UUID
	Kind IdentityKind
}

// InternalIdentity returns the issuer id of the server itself.
func InternalIdentity() IdentityID {
	return IdentityID{Kind: IdentityInternal}
}

// UserIdentity returns the issuer id of a principal.
func UserIdentity(id uuid.UUID) IdentityID {
	return IdentityID{Kind: IdentityUser, ID: id}
}

// SynchIdentity returns the issuer id of a synchronization agent.
func SynchIdentity(id uuid.UUID) IdentityID {
	return IdentityID{Kind: IdentitySynch, ID: id}
}

// UUID resolves the issuer to a plain id. The internal identity resolves to
// the nil uuid.
func (i IdentityID) UUID() uuid.UUID {
	if i.Kind == IdentityInternal {
		return uuid.Nil
	}
	return i.ID
}

// String implements fmt.Stringer.
func (i IdentityID) String() string {
	switch i.Kind {
	case IdentityUser:
		return "user:" + i.ID.String()
	case IdentitySynch:
		return "synch:" + i.ID.String()
	default:
		return "internal"
	}
}

// SessionScope is the access granted to an interactive session.
type SessionScope uint8

const (
	SessionScopeReadOnly SessionScope = iota
	SessionScopeReadWrite
	SessionScopePrivilegeCapable
	SessionScopeSynchronise
)

// String returns the scope name used by the read API.
func (s SessionScope) String() string {
	switch s {
	case SessionScopeReadOnly:
		return "read_only"
	case SessionScopeReadWrite:
		return "read_write"
	case SessionScopePrivilegeCapable:
		return "privilege_capable"
	case SessionScopeSynchronise:
		return "synchronise"
	default:
		return "unknown"
	}
}

// ParseSessionScope parses a scope name produced by String.
func ParseSessionScope(s string) (SessionScope, error) {
	for _, scope := range []SessionScope{
		SessionScopeReadOnly,
		SessionScopeReadWrite,
		SessionScopePrivilegeCapable,
		SessionScopeSynchronise,
	} {
		if scope.String() == s {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("unknown session scope %q", s)
}

// ApiTokenScope is the access granted to an API token.
type ApiTokenScope uint8

const (
	ApiTokenScopeReadOnly ApiTokenScope = iota
	ApiTokenScopeReadWrite
	ApiTokenScopeSynchronise
)

// String returns the scope name used by the read API.
func (s ApiTokenScope) String() string {
	switch s {
	case ApiTokenScopeReadOnly:
		return "read_only"
	case ApiTokenScopeReadWrite:
		return "read_write"
	case ApiTokenScopeSynchronise:
		return "synchronise"
	default:
		return "unknown"
	}
}

// ParseApiTokenScope parses a scope name produced by String.
func ParseApiTokenScope(s string) (ApiTokenScope, error) {
	for _, scope := range []ApiTokenScope{
		ApiTokenScopeReadOnly,
		ApiTokenScopeReadWrite,
		ApiTokenScopeSynchronise,
	} {
		if scope.String() == s {
			return scope, nil
		}
	}
	return 0, fmt.Errorf("unknown api token scope %q", s)
}

// AuthType is the authentication method that established a session.
type AuthType uint8

const (
	AuthTypeAnonymous AuthType = iota
	AuthTypePassword
	AuthTypeGeneratedPassword
	AuthTypePasswordTotp
	AuthTypePasswordBackupCode
	AuthTypePasswordSecurityKey
	AuthTypePasskey
	AuthTypeAttestedPasskey
)

var authTypeNames = [...]string{
	AuthTypeAnonymous:           "anonymous",
	AuthTypePassword:            "password",
	AuthTypeGeneratedPassword:   "generatedpassword",
	AuthTypePasswordTotp:        "passwordtotp",
	AuthTypePasswordBackupCode:  "passwordbackupcode",
	AuthTypePasswordSecurityKey: "passwordsecuritykey",
	AuthTypePasskey:             "passkey",
	AuthTypeAttestedPasskey:     "attested_passkey",
}

// String returns the auth method name used by the read API.
func (a AuthType) String() string {
	if int(a) < len(authTypeNames) {
		return authTypeNames[a]
	}
	return "unknown"
}

// ParseAuthType parses an auth method name produced by String.
func ParseAuthType(s string) (AuthType, error) {
	for i, name := range authTypeNames {
		if name == s {
			return AuthType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown auth type %q", s)
}

// Session is an interactive session established by a principal.
type Session struct {
	IssuedAt time.Time    // IssuedAt время выпуска (UTC)
	State    SessionState // State состояние жизненного цикла
	Label    string       // Label отображаемое имя
	IssuedBy IdentityID   // IssuedBy кто выпустил сессию
	CredID   uuid.UUID    // CredID учетные данные, которыми открыта сессия
	Scope    SessionScope // Scope уровень доступа
	Type     AuthType     // Type способ аутентификации
}

// Equal reports whether two sessions hold the same data.
func (s Session) Equal(other Session) bool {
	return s.Label == other.Label &&
		s.State.Equal(other.State) &&
		s.IssuedAt.Equal(other.IssuedAt) &&
		s.IssuedBy == other.IssuedBy &&
		s.CredID == other.CredID &&
		s.Scope == other.Scope &&
		s.Type == other.Type
}

// LifecycleState returns the session state.
func (s Session) LifecycleState() SessionState {
	return s.State
}

// WithState returns a copy of the session in another state.
func (s Session) WithState(state SessionState) Session {
	s.State = state
	return s
}

// String implements fmt.Stringer.
func (s Session) String() string {
	return fmt.Sprintf("Session { label: %q, state: %s, issued_at: %s, issued_by: %s, cred_id: %s, scope: %s, type: %s }",
		s.Label, s.State, s.IssuedAt.Format(time.RFC3339), s.IssuedBy, s.CredID, s.Scope, s.Type)
}

// OAuth2Session is a session delegated to an OAuth2 resource server. It has no
// credential of its own and derives its trust from the parent session.
type OAuth2Session struct {
	IssuedAt time.Time    // IssuedAt время выпуска (UTC)
	State    SessionState // State состояние жизненного цикла
	Parent   *uuid.UUID   // Parent интерактивная сессия-родитель, если есть
	RsUUID   uuid.UUID    // RsUUID resource server (OAuth2 client)
}

// Equal reports whether two sessions hold the same data.
func (s OAuth2Session) Equal(other OAuth2Session) bool {
	if (s.Parent == nil) != (other.Parent == nil) {
		return false
	}
	if s.Parent != nil && *s.Parent != *other.Parent {
		return false
	}
	return s.State.Equal(other.State) &&
		s.IssuedAt.Equal(other.IssuedAt) &&
		s.RsUUID == other.RsUUID
}

// LifecycleState returns the session state.
func (s OAuth2Session) LifecycleState() SessionState {
	return s.State
}

// WithState returns a copy of the session in another state.
func (s OAuth2Session) WithState(state SessionState) OAuth2Session {
	s.State = state
	return s
}

// String implements fmt.Stringer.
func (s OAuth2Session) String() string {
	parent := "none"
	if s.Parent != nil {
		parent = s.Parent.String()
	}
	return fmt.Sprintf("Oauth2Session { parent: %s, state: %s, issued_at: %s, rs_uuid: %s }",
		parent, s.State, s.IssuedAt.Format(time.RFC3339), s.RsUUID)
}

// ApiToken is a long lived token for service accounts. Tokens are never
// revoked in place; they are either present or deleted.
type ApiToken struct {
	IssuedAt time.Time     // IssuedAt время выпуска (UTC)
	Expiry   *time.Time    // Expiry время истечения, nil - бессрочный
	Label    string        // Label отображаемое имя
	IssuedBy IdentityID    // IssuedBy кто выпустил токен
	Scope    ApiTokenScope // Scope уровень доступа
}

// Equal reports whether two tokens hold the same data.
func (t ApiToken) Equal(other ApiToken) bool {
	if (t.Expiry == nil) != (other.Expiry == nil) {
		return false
	}
	if t.Expiry != nil && !t.Expiry.Equal(*other.Expiry) {
		return false
	}
	return t.Label == other.Label &&
		t.IssuedAt.Equal(other.IssuedAt) &&
		t.IssuedBy == other.IssuedBy &&
		t.Scope == other.Scope
}

// String implements fmt.Stringer.
func (t ApiToken) String() string {
	expiry := "none"
	if t.Expiry != nil {
		expiry = t.Expiry.Format(time.RFC3339)
	}
	return fmt.Sprintf("ApiToken { label: %q, expiry: %s, issued_at: %s, issued_by: %s, scope: %s }",
		t.Label, expiry, t.IssuedAt.Format(time.RFC3339), t.IssuedBy, t.Scope)
}
