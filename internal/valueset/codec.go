package valueset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
)

// Reasons a persisted record is dropped on decode.
const (
	DropLegacyVersion  = "legacy_version"
	DropUnknownVersion = "unknown_version"
	DropIssuedAt       = "invalid_issued_at"
	DropExpiry         = "invalid_expiry"
	DropState          = "invalid_state"
	DropField          = "invalid_field"
)

// Observer is notified about records dropped while decoding.
type Observer interface {
	RecordDropped(kind Kind, reason string)
}

type nopObserver struct{}

func (nopObserver) RecordDropped(Kind, string) {}

// Codec converts value-sets from and to their persisted shape.
//
// Decoding never fails because of a single bad record: the record is logged,
// reported to the observer and left out of the result.
type Codec struct {
	logger   *slog.Logger
	observer Observer
}

// NewCodec creates a codec. Both arguments may be nil.
func NewCodec(logger *slog.Logger, observer Observer) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Codec{logger: logger, observer: observer}
}

// Encode returns the latest persisted shape of vs.
func (c *Codec) Encode(vs ValueSet) dbvalue.ValueSet {
	return vs.ToDB()
}

// Decode rebuilds a value-set from any historical persisted shape. It fails
// only when the set kind itself is unknown.
func (c *Codec) Decode(dbv dbvalue.ValueSet) (ValueSet, error) {
	switch dbv.Kind {
	case dbvalue.KindSession:
		return c.decodeSessions(dbv.Sessions), nil
	case dbvalue.KindOAuth2Session:
		return c.decodeOAuth2Sessions(dbv.OAuth2Sessions), nil
	case dbvalue.KindApiToken:
		return c.decodeApiTokens(dbv.ApiTokens), nil
	default:
		return nil, fmt.Errorf("decode value-set: unknown kind %q", dbv.Kind)
	}
}

// dropError explains why one record was left out.
type dropError struct {
	err    error
	reason string
}

func (e *dropError) Error() string {
	if e.err == nil {
		return e.reason
	}
	return e.reason + ": " + e.err.Error()
}

func (e *dropError) Unwrap() error {
	return e.err
}

func drop(reason string, err error) error {
	return &dropError{reason: reason, err: err}
}

func (c *Codec) dropped(kind Kind, refer uuid.UUID, version dbvalue.Version, err error) {
	reason := DropField
	var de *dropError
	if errors.As(err, &de) {
		reason = de.reason
	}

	// устаревшие записи ожидаемы, это не ошибка данных
	level := slog.LevelError
	if reason == DropLegacyVersion {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "invalidating persisted record",
		"kind", kind.String(),
		"id", refer,
		"version", int(version),
		"reason", reason,
		"error", err)
	c.observer.RecordDropped(kind, reason)
}

func (c *Codec) decodeSessions(records []dbvalue.Session) *SessionSet {
	vs := NewSessionSet()
	for _, rec := range records {
		s, err := decodeSession(rec)
		if err != nil {
			c.dropped(KindSession, rec.Refer, rec.Version, err)
			continue
		}
		vs.Push(rec.Refer, s)
	}
	return vs
}

func (c *Codec) decodeOAuth2Sessions(records []dbvalue.OAuth2Session) *OAuth2SessionSet {
	vs := NewOAuth2SessionSet()
	for _, rec := range records {
		s, err := decodeOAuth2Session(rec)
		if err != nil {
			c.dropped(KindOAuth2Session, rec.Refer, rec.Version, err)
			continue
		}
		vs.Push(rec.Refer, s)
	}
	return vs
}

func (c *Codec) decodeApiTokens(records []dbvalue.ApiToken) *ApiTokenSet {
	vs := NewApiTokenSet()
	for _, rec := range records {
		t, err := decodeApiToken(rec)
		if err != nil {
			c.dropped(KindApiToken, rec.Refer, rec.Version, err)
			continue
		}
		vs.Push(rec.Refer, t)
	}
	return vs
}

func decodeSession(rec dbvalue.Session) (models.Session, error) {
	switch rec.Version {
	case dbvalue.V1, dbvalue.V2, dbvalue.V3:
		// без способа аутентификации сессию нельзя переаутентифицировать
		return models.Session{}, drop(DropLegacyVersion, nil)
	case dbvalue.V4:
	default:
		return models.Session{}, drop(DropUnknownVersion, fmt.Errorf("version %d", rec.Version))
	}

	issuedAt, err := parseTime(rec.IssuedAt)
	if err != nil {
		return models.Session{}, drop(DropIssuedAt, err)
	}

	if rec.State == nil {
		return models.Session{}, drop(DropState, errors.New("missing state"))
	}
	state, err := decodeState(*rec.State)
	if err != nil {
		return models.Session{}, err
	}

	if rec.IssuedBy == nil {
		return models.Session{}, drop(DropField, errors.New("missing issuer"))
	}
	issuedBy, err := decodeIdentity(*rec.IssuedBy)
	if err != nil {
		return models.Session{}, drop(DropField, err)
	}

	scope, err := decodeSessionScope(rec.Scope)
	if err != nil {
		return models.Session{}, drop(DropField, err)
	}

	authType, err := models.ParseAuthType(rec.AuthType)
	if err != nil {
		return models.Session{}, drop(DropField, err)
	}

	return models.Session{
		IssuedAt: issuedAt,
		State:    state,
		Label:    rec.Label,
		IssuedBy: issuedBy,
		CredID:   rec.CredID,
		Scope:    scope,
		Type:     authType,
	}, nil
}

func decodeOAuth2Session(rec dbvalue.OAuth2Session) (models.OAuth2Session, error) {
	issuedAt, err := parseTime(rec.IssuedAt)
	if err != nil {
		return models.OAuth2Session{}, drop(DropIssuedAt, err)
	}

	var state models.SessionState
	switch rec.Version {
	case dbvalue.V1:
		// V1 хранил только необязательный срок действия
		state = models.NeverExpires()
		if rec.Expiry != nil {
			expiry, err := parseTime(*rec.Expiry)
			if err != nil {
				return models.OAuth2Session{}, drop(DropExpiry, err)
			}
			state = models.ExpiresAt(expiry)
		}
	case dbvalue.V2, dbvalue.V3:
		if rec.State == nil {
			return models.OAuth2Session{}, drop(DropState, errors.New("missing state"))
		}
		state, err = decodeState(*rec.State)
		if err != nil {
			return models.OAuth2Session{}, err
		}
	default:
		return models.OAuth2Session{}, drop(DropUnknownVersion, fmt.Errorf("version %d", rec.Version))
	}

	// до V3 родитель был обязателен
	if rec.Version < dbvalue.V3 && rec.Parent == nil {
		return models.OAuth2Session{}, drop(DropField, errors.New("missing parent"))
	}

	var parent *uuid.UUID
	if rec.Parent != nil {
		p := *rec.Parent
		parent = &p
	}

	return models.OAuth2Session{
		IssuedAt: issuedAt,
		State:    state,
		Parent:   parent,
		RsUUID:   rec.RsUUID,
	}, nil
}

func decodeApiToken(rec dbvalue.ApiToken) (models.ApiToken, error) {
	if rec.Version != dbvalue.V1 {
		return models.ApiToken{}, drop(DropUnknownVersion, fmt.Errorf("version %d", rec.Version))
	}

	issuedAt, err := parseTime(rec.IssuedAt)
	if err != nil {
		return models.ApiToken{}, drop(DropIssuedAt, err)
	}

	var expiry *time.Time
	if rec.Expiry != nil {
		e, err := parseTime(*rec.Expiry)
		if err != nil {
			return models.ApiToken{}, drop(DropExpiry, err)
		}
		expiry = &e
	}

	issuedBy, err := decodeIdentity(rec.IssuedBy)
	if err != nil {
		return models.ApiToken{}, drop(DropField, err)
	}

	scope, err := models.ParseApiTokenScope(rec.Scope)
	if err != nil {
		return models.ApiToken{}, drop(DropField, err)
	}

	return models.ApiToken{
		IssuedAt: issuedAt,
		Expiry:   expiry,
		Label:    rec.Label,
		IssuedBy: issuedBy,
		Scope:    scope,
	}, nil
}

func decodeState(s dbvalue.SessionState) (models.SessionState, error) {
	switch s.Kind {
	case dbvalue.StateNever:
		return models.NeverExpires(), nil
	case dbvalue.StateExpiresAt:
		t, err := parseTime(s.ExpiresAt)
		if err != nil {
			return models.SessionState{}, drop(DropExpiry, err)
		}
		return models.ExpiresAt(t), nil
	case dbvalue.StateRevokedAt:
		if s.RevokedAt == nil {
			return models.SessionState{}, drop(DropState, errors.New("revoked state without cid"))
		}
		return models.RevokedAt(repl.New(s.RevokedAt.ServerID, s.RevokedAt.Timestamp)), nil
	default:
		return models.SessionState{}, drop(DropState, fmt.Errorf("unknown state kind %q", s.Kind))
	}
}

func decodeIdentity(id dbvalue.IdentityID) (models.IdentityID, error) {
	switch id.Kind {
	case dbvalue.IdentityInternal:
		return models.InternalIdentity(), nil
	case dbvalue.IdentityUUID, dbvalue.IdentitySync:
		if id.ID == nil {
			return models.IdentityID{}, fmt.Errorf("identity %q without id", id.Kind)
		}
		if id.Kind == dbvalue.IdentitySync {
			return models.SynchIdentity(*id.ID), nil
		}
		return models.UserIdentity(*id.ID), nil
	default:
		return models.IdentityID{}, fmt.Errorf("unknown identity kind %q", id.Kind)
	}
}

func decodeSessionScope(s string) (models.SessionScope, error) {
	if s == dbvalue.ScopeIdentityOnly {
		return models.SessionScopeReadOnly, nil
	}
	return models.ParseSessionScope(s)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeState(s models.SessionState) *dbvalue.SessionState {
	if t, ok := s.Expiry(); ok {
		return &dbvalue.SessionState{Kind: dbvalue.StateExpiresAt, ExpiresAt: formatTime(t)}
	}
	if cid, ok := s.Revocation(); ok {
		return &dbvalue.SessionState{
			Kind:      dbvalue.StateRevokedAt,
			RevokedAt: &dbvalue.Cid{ServerID: cid.ServerID, Timestamp: cid.TS},
		}
	}
	return &dbvalue.SessionState{Kind: dbvalue.StateNever}
}

func encodeIdentity(id models.IdentityID) dbvalue.IdentityID {
	switch id.Kind {
	case models.IdentityUser:
		u := id.ID
		return dbvalue.IdentityID{Kind: dbvalue.IdentityUUID, ID: &u}
	case models.IdentitySynch:
		u := id.ID
		return dbvalue.IdentityID{Kind: dbvalue.IdentitySync, ID: &u}
	default:
		return dbvalue.IdentityID{Kind: dbvalue.IdentityInternal}
	}
}

func encodeSession(id uuid.UUID, s models.Session) dbvalue.Session {
	issuedBy := encodeIdentity(s.IssuedBy)
	return dbvalue.Session{
		Version:  dbvalue.SessionLatest,
		Refer:    id,
		Label:    s.Label,
		State:    encodeState(s.State),
		IssuedAt: formatTime(s.IssuedAt),
		IssuedBy: &issuedBy,
		CredID:   s.CredID,
		Scope:    s.Scope.String(),
		AuthType: s.Type.String(),
	}
}

func encodeOAuth2Session(id uuid.UUID, s models.OAuth2Session) dbvalue.OAuth2Session {
	var parent *uuid.UUID
	if s.Parent != nil {
		p := *s.Parent
		parent = &p
	}
	return dbvalue.OAuth2Session{
		Version:  dbvalue.OAuth2SessionLatest,
		Refer:    id,
		Parent:   parent,
		State:    encodeState(s.State),
		IssuedAt: formatTime(s.IssuedAt),
		RsUUID:   s.RsUUID,
	}
}

func encodeApiToken(id uuid.UUID, t models.ApiToken) dbvalue.ApiToken {
	var expiry *string
	if t.Expiry != nil {
		e := formatTime(*t.Expiry)
		expiry = &e
	}
	return dbvalue.ApiToken{
		Version:  dbvalue.ApiTokenLatest,
		Refer:    id,
		Label:    t.Label,
		Expiry:   expiry,
		IssuedAt: formatTime(t.IssuedAt),
		IssuedBy: encodeIdentity(t.IssuedBy),
		Scope:    t.Scope.String(),
	}
}
