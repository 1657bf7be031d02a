package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/storage/boltdb"
	"github.com/iudanet/sessionstore/internal/valueset"
)

var issuedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recorder - простой hand-written mock для metrics.Recorder
type recorder struct {
	ops     map[string]int
	dropped int
}

func newRecorder() *recorder {
	return &recorder{ops: make(map[string]int)}
}

func (r *recorder) RecordDropped(valueset.Kind, string) { r.dropped++ }

func (r *recorder) RecordOperation(kind valueset.Kind, op string, changed bool) {
	if changed {
		r.ops[kind.String()+"/"+op]++
	}
}

func (r *recorder) RecordReplMerge(valueset.Kind, bool)          {}
func (r *recorder) RecordTrim(valueset.Kind, valueset.TrimStats) {}
func (r *recorder) RecordTrimPass(time.Duration)                 {}

func setupService(t *testing.T) (Service, *boltdb.Storage, *recorder) {
	t.Helper()
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec := newRecorder()
	return NewService(store, rec, nil), store, rec
}

func sessionValue(id uuid.UUID) valueset.SessionValue {
	return valueset.SessionValue{
		ID: id,
		Session: models.Session{
			IssuedAt: issuedAt,
			State:    models.NeverExpires(),
			Label:    "laptop",
			IssuedBy: models.InternalIdentity(),
			CredID:   uuid.New(),
			Scope:    models.SessionScopeReadWrite,
			Type:     models.AuthTypePasskey,
		},
	}
}

func tokenValue(id uuid.UUID, label string) valueset.ApiTokenValue {
	return valueset.ApiTokenValue{
		ID: id,
		Token: models.ApiToken{
			IssuedAt: issuedAt,
			Label:    label,
			IssuedBy: models.InternalIdentity(),
			Scope:    models.ApiTokenScopeReadOnly,
		},
	}
}

func sessionKey() storage.AttrKey {
	return storage.AttrKey{EntryID: uuid.New(), Attr: "user_auth_token_session"}
}

func TestInsert_CreatesAndIgnoresDuplicate(t *testing.T) {
	svc, _, rec := setupService(t)
	ctx := context.Background()
	key := sessionKey()
	id := uuid.New()

	changed, err := svc.Insert(ctx, key, sessionValue(id))
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.Insert(ctx, key, sessionValue(id))
	require.NoError(t, err)
	assert.False(t, changed)

	proj, err := svc.Project(ctx, key)
	require.NoError(t, err)
	require.Len(t, proj.Sessions, 1)
	assert.Equal(t, id, proj.Sessions[0].ID)
	assert.Equal(t, "laptop", proj.Sessions[0].Label)
	assert.Nil(t, proj.Sessions[0].Revoked)

	assert.Equal(t, 1, rec.ops["session/insert"])
}

func TestInsert_KindMismatch(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	key := sessionKey()

	_, err := svc.Insert(ctx, key, sessionValue(uuid.New()))
	require.NoError(t, err)

	_, err = svc.Insert(ctx, key, tokenValue(uuid.New(), "ci"))
	require.Error(t, err)
	assert.True(t, valueset.IsInvalidValueState(err))
}

func TestInsert_InvalidLabelNotSaved(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	key := storage.AttrKey{EntryID: uuid.New(), Attr: "api_token_session"}

	_, err := svc.Insert(ctx, key, tokenValue(uuid.New(), "two\nlines"))
	require.Error(t, err)

	_, err = store.GetValueSet(ctx, key)
	assert.ErrorIs(t, err, storage.ErrValueSetNotFound)
}

func TestRemove_RevokesSession(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	key := sessionKey()
	id := uuid.New()

	_, err := svc.Insert(ctx, key, sessionValue(id))
	require.NoError(t, err)

	revokedAt := repl.NewCount(10 * time.Second)
	changed, err := svc.Remove(ctx, key, id, revokedAt)
	require.NoError(t, err)
	assert.True(t, changed)

	// повторный отзыв ничего не меняет
	changed, err = svc.Remove(ctx, key, id, repl.NewCount(20*time.Second))
	require.NoError(t, err)
	assert.False(t, changed)

	proj, err := svc.Project(ctx, key)
	require.NoError(t, err)
	require.Len(t, proj.Sessions, 1)
	require.NotNil(t, proj.Sessions[0].Revoked)
	assert.Equal(t, revokedAt.Time(), *proj.Sessions[0].Revoked)
}

func TestRemove_MissingSet(t *testing.T) {
	svc, _, _ := setupService(t)

	changed, err := svc.Remove(context.Background(), sessionKey(), uuid.New(), repl.NewCount(1))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPurge_ApiTokensPersistEmpty(t *testing.T) {
	svc, store, _ := setupService(t)
	ctx := context.Background()
	key := storage.AttrKey{EntryID: uuid.New(), Attr: "api_token_session"}

	_, err := svc.Insert(ctx, key, tokenValue(uuid.New(), "ci"))
	require.NoError(t, err)
	_, err = svc.Insert(ctx, key, tokenValue(uuid.New(), "deploy"))
	require.NoError(t, err)

	require.NoError(t, svc.Purge(ctx, key, repl.NewCount(5*time.Second)))

	dbv, err := store.GetValueSet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0, dbv.Len())
}

func TestPurge_SessionsKeepTombstones(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	key := sessionKey()

	for range 3 {
		_, err := svc.Insert(ctx, key, sessionValue(uuid.New()))
		require.NoError(t, err)
	}
	require.NoError(t, svc.Purge(ctx, key, repl.NewCount(5*time.Second)))

	proj, err := svc.Project(ctx, key)
	require.NoError(t, err)
	require.Len(t, proj.Sessions, 3)
	for _, s := range proj.Sessions {
		assert.NotNil(t, s.Revoked)
	}
}

func TestClear_DeletesSet(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	key := sessionKey()

	_, err := svc.Insert(ctx, key, sessionValue(uuid.New()))
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, key))

	_, err = svc.Get(ctx, key)
	assert.ErrorIs(t, err, storage.ErrValueSetNotFound)
}

func TestIndexKeysAndLookup(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()
	key := sessionKey()
	id := uuid.New()

	_, err := svc.Insert(ctx, key, sessionValue(id))
	require.NoError(t, err)

	keys, err := svc.IndexKeys(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{id.String()}, keys)

	found, err := svc.Lookup(ctx, id.String())
	require.NoError(t, err)
	assert.Equal(t, []storage.AttrKey{key}, found)
}

func TestList(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	sessions := sessionKey()
	tokens := storage.AttrKey{EntryID: uuid.New(), Attr: "api_token_session"}
	_, err := svc.Insert(ctx, sessions, sessionValue(uuid.New()))
	require.NoError(t, err)
	_, err = svc.Insert(ctx, tokens, tokenValue(uuid.New(), "ci"))
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	kinds := map[storage.AttrKey]valueset.Kind{}
	for _, s := range list {
		kinds[s.Key] = s.Kind
		assert.Equal(t, 1, s.Len)
	}
	assert.Equal(t, valueset.KindSession, kinds[sessions])
	assert.Equal(t, valueset.KindApiToken, kinds[tokens])
}
