package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/sessionstore/internal/config"
	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/server/handlers"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/storage/boltdb"
	"github.com/iudanet/sessionstore/internal/valueset"
)

func setupDaemon(t *testing.T) (*Daemon, *boltdb.Storage) {
	t.Helper()
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		MetricsAddr:     "127.0.0.1:0",
		TrimInterval:    "1h",
		ChangelogMaxAge: "168h",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, store, logger, "test"), store
}

// saveStaleRevocation сохраняет набор из одного давно отозванного OAuth2 сеанса
func saveStaleRevocation(t *testing.T, store storage.ValueSetStorage) storage.AttrKey {
	t.Helper()
	k := storage.AttrKey{EntryID: uuid.New(), Attr: "oauth2_session"}
	vs := valueset.NewOAuth2SessionSetWith(uuid.New(), models.OAuth2Session{
		IssuedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		State:    models.RevokedAt(repl.NewCount(10 * time.Second)),
		RsUUID:   uuid.New(),
	})
	require.NoError(t, store.SaveValueSet(context.Background(), k, vs.ToDB(), vs.IndexKeys()))
	return k
}

func TestDaemon_TrimOnce(t *testing.T) {
	d, store := setupDaemon(t)
	ctx := context.Background()
	k := saveStaleRevocation(t, store)

	assert.True(t, d.LastTrim().IsZero())

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	result, err := d.TrimOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 1, result.Merged)
	assert.True(t, now.Equal(d.LastTrim()))

	_, err = store.GetValueSet(ctx, k)
	assert.ErrorIs(t, err, storage.ErrValueSetNotFound)
}

func TestDaemon_Handler(t *testing.T) {
	d, store := setupDaemon(t)
	saveStaleRevocation(t, store)
	_, err := d.TrimOnce(context.Background())
	require.NoError(t, err)

	h := d.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.NotNil(t, health.LastTrim)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `sessionstore_trimmed_total{cause="expired",kind="oauth2_session"} 1`)
	assert.Contains(t, body, "sessionstore_trim_pass_seconds_count 1")
	assert.Contains(t, body, "go_goroutines")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDaemon_HealthUnavailableAfterClose(t *testing.T) {
	d, store := setupDaemon(t)
	require.NoError(t, store.Close())

	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDaemon_Run(t *testing.T) {
	d, store := setupDaemon(t)
	k := saveStaleRevocation(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return !d.LastTrim().IsZero() }, 5*time.Second, 10*time.Millisecond)

	_, err := store.GetValueSet(context.Background(), k)
	assert.ErrorIs(t, err, storage.ErrValueSetNotFound)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
