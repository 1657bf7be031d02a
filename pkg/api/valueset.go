package api

import (
	"time"

	"github.com/google/uuid"
)

// AuthSession представляет интерактивную сессию в API чтения.
// Из Expires и Revoked заполнено не больше одного; оба пустые - сессия бессрочная.
type AuthSession struct {
	IssuedAt     time.Time  `json:"issued_at"`
	Expires      *time.Time `json:"expires,omitempty"`
	Revoked      *time.Time `json:"revoked,omitempty"`
	Label        string     `json:"label"`
	AuthType     string     `json:"auth_type"`
	SessionScope string     `json:"session_scope"`
	ID           uuid.UUID  `json:"id"`
	IssuedBy     uuid.UUID  `json:"issued_by"`
	CredentialID uuid.UUID  `json:"credential_id"`
}

// OAuth2Session представляет делегированную OAuth2 сессию в API чтения.
type OAuth2Session struct {
	IssuedAt time.Time  `json:"issued_at"`
	Expires  *time.Time `json:"expires,omitempty"`
	Revoked  *time.Time `json:"revoked,omitempty"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	ID       uuid.UUID  `json:"id"`
	ClientID uuid.UUID  `json:"client_id"`
}

// ApiToken представляет API токен в API чтения.
type ApiToken struct {
	IssuedAt time.Time  `json:"issued_at"`
	Expires  *time.Time `json:"expires,omitempty"`
	Label    string     `json:"label"`
	Scope    string     `json:"scope"`
	ID       uuid.UUID  `json:"id"`
	IssuedBy uuid.UUID  `json:"issued_by"`
}

// Projection is the read-only view of one attribute's value-set. Kind tells
// which list is populated.
type Projection struct {
	Kind           string          `json:"kind"`
	Sessions       []AuthSession   `json:"sessions,omitempty"`
	OAuth2Sessions []OAuth2Session `json:"oauth2_sessions,omitempty"`
	ApiTokens      []ApiToken      `json:"api_tokens,omitempty"`
}
