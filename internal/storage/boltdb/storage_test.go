package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/sessionstore/internal/dbvalue"
	"github.com/iudanet/sessionstore/internal/storage"
)

func setupTestStorage(t *testing.T, opts ...Option) (*Storage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(context.Background(), dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dbPath
}

func testTokenSet(label string) dbvalue.ValueSet {
	return dbvalue.ValueSet{
		Kind: dbvalue.KindApiToken,
		ApiTokens: []dbvalue.ApiToken{{
			Version:  dbvalue.V1,
			Refer:    uuid.New(),
			Label:    label,
			IssuedAt: "2024-01-01T00:00:00Z",
			IssuedBy: dbvalue.IdentityID{Kind: dbvalue.IdentityInternal},
			Scope:    dbvalue.TokenScopeReadOnly,
		}},
	}
}

func TestNew_Success(t *testing.T) {
	s, dbPath := setupTestStorage(t)

	// Проверяем что файл БД действительно создан
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
	assert.False(t, s.Sealed())

	// Проверяем, что бакеты существуют
	err = s.db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketValueSets, bucketIndex, bucketIndexRev, bucketMetadata} {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "db"))
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestValueSet_SaveGet(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStorage(t)
	key := storage.AttrKey{EntryID: uuid.New(), Attr: "api_token"}

	_, err := s.GetValueSet(ctx, key)
	assert.ErrorIs(t, err, storage.ErrValueSetNotFound)

	value := testTokenSet("ci")
	require.NoError(t, s.SaveValueSet(ctx, key, value, nil))

	got, err := s.GetValueSet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	// перезапись
	value = testTokenSet("deploy")
	require.NoError(t, s.SaveValueSet(ctx, key, value, nil))
	got, err = s.GetValueSet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "deploy", got.ApiTokens[0].Label)
}

func TestValueSet_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStorage(t)

	k1 := storage.AttrKey{EntryID: uuid.New(), Attr: "a"}
	k2 := storage.AttrKey{EntryID: uuid.New(), Attr: "b"}
	require.NoError(t, s.SaveValueSet(ctx, k1, testTokenSet("one"), nil))
	require.NoError(t, s.SaveValueSet(ctx, k2, testTokenSet("two"), nil))

	records, err := s.ListValueSets(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	require.NoError(t, s.DeleteValueSet(ctx, k1))
	require.NoError(t, s.DeleteValueSet(ctx, k1), "deleting twice is fine")

	records, err = s.ListValueSets(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, k2, records[0].Key)
}

func TestValueSet_Index(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStorage(t)

	rs := uuid.NewString()
	k1 := storage.AttrKey{EntryID: uuid.New(), Attr: "oauth2_session"}
	k2 := storage.AttrKey{EntryID: uuid.New(), Attr: "oauth2_session"}

	require.NoError(t, s.SaveValueSet(ctx, k1, testTokenSet("x"), []string{"s1", rs}))
	require.NoError(t, s.SaveValueSet(ctx, k2, testTokenSet("y"), []string{rs}))

	keys, err := s.LookupIndex(ctx, rs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []storage.AttrKey{k1, k2}, keys)

	// новые ключи заменяют старые
	require.NoError(t, s.SaveValueSet(ctx, k1, testTokenSet("x"), []string{"s1"}))
	keys, err = s.LookupIndex(ctx, rs)
	require.NoError(t, err)
	assert.Equal(t, []storage.AttrKey{k2}, keys)

	require.NoError(t, s.DeleteValueSet(ctx, k2))
	keys, err = s.LookupIndex(ctx, rs)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = s.LookupIndex(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []storage.AttrKey{k1}, keys)
}

func TestSealed_RoundTripAndReopen(t *testing.T) {
	ctx := context.Background()
	s, dbPath := setupTestStorage(t, WithPassphrase("operator passphrase"))
	require.True(t, s.Sealed())

	key := storage.AttrKey{EntryID: uuid.New(), Attr: "api_token"}
	value := testTokenSet("secret-label")
	require.NoError(t, s.SaveValueSet(ctx, key, value, nil))

	// на диске нет открытого текста
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketValueSets).Get([]byte(key.String()))
		assert.NotContains(t, string(raw), "secret-label")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := New(ctx, dbPath, WithPassphrase("operator passphrase"))
	require.NoError(t, err)
	got, err := reopened.GetValueSet(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
	require.NoError(t, reopened.Close())

	wrong, err := New(ctx, dbPath, WithPassphrase("wrong"))
	require.NoError(t, err)
	defer wrong.Close()
	_, err = wrong.GetValueSet(ctx, key)
	assert.Error(t, err)
}

func TestMetadata_LastChange(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStorage(t)

	ts, err := s.GetLastChange(ctx)
	require.NoError(t, err)
	assert.Zero(t, ts)

	require.NoError(t, s.SaveLastChange(ctx, 42*time.Second))
	ts, err = s.GetLastChange(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, ts)
}

func TestClosedStorage(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStorage(t)
	require.NoError(t, s.Close())

	_, err := s.GetValueSet(ctx, storage.AttrKey{EntryID: uuid.New(), Attr: "a"})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, s.SaveLastChange(ctx, 1), storage.ErrStorageClosed)
}
