package valueset

import (
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
)

var testIssuedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(state models.SessionState) models.Session {
	return models.Session{
		IssuedAt: testIssuedAt,
		State:    state,
		Label:    "test",
		IssuedBy: models.InternalIdentity(),
		CredID:   uuid.New(),
		Scope:    models.SessionScopeReadOnly,
		Type:     models.AuthTypePasskey,
	}
}

func newTestOAuth2Session(rs uuid.UUID, state models.SessionState) models.OAuth2Session {
	parent := uuid.New()
	return models.OAuth2Session{
		IssuedAt: testIssuedAt,
		State:    state,
		Parent:   &parent,
		RsUUID:   rs,
	}
}

func newTestToken(label string) models.ApiToken {
	return models.ApiToken{
		IssuedAt: testIssuedAt,
		Label:    label,
		IssuedBy: models.UserIdentity(uuid.New()),
		Scope:    models.ApiTokenScopeReadWrite,
	}
}

func cid(n int) repl.Cid {
	return repl.NewCount(time.Duration(n) * time.Second)
}

// recordingObserver запоминает отброшенные записи
type recordingObserver struct {
	dropped map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{dropped: make(map[string]int)}
}

func (o *recordingObserver) RecordDropped(kind Kind, reason string) {
	o.dropped[kind.String()+"/"+reason]++
}
