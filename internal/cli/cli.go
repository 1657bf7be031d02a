// Package cli implements sessionctl, the operator tool for inspecting and
// editing the credential value-sets of a local replica.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/sessionstore/internal/data"
	"github.com/iudanet/sessionstore/internal/iocli"
	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/sync"
)

// Attribute names used by the add commands.
const (
	AttrSession  = "user_auth_token_session"
	AttrOAuth2   = "oauth2_session"
	AttrApiToken = "api_token_session"
)

// PeerOpener opens the store of another replica for sync.
type PeerOpener func(ctx context.Context, driver, path, passphrase string) (storage.Store, error)

type Cli struct {
	io          iocli.IO
	dataService data.Service
	syncService sync.Service
	meta        storage.MetadataStorage
	clock       *repl.Clock
	logger      *slog.Logger
	now         func() time.Time
	openPeer    PeerOpener
	maxAge      time.Duration
}

func New(io iocli.IO, dataService data.Service, syncService sync.Service, meta storage.MetadataStorage, clock *repl.Clock, maxAge time.Duration, logger *slog.Logger) *Cli {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cli{
		io:          io,
		dataService: dataService,
		syncService: syncService,
		meta:        meta,
		clock:       clock,
		logger:      logger,
		now:         time.Now,
		openPeer:    OpenStore,
		maxAge:      maxAge,
	}
}

// RestoreClock moves the clock past every change id this replica issued
// before, so ids stay increasing across restarts.
func (c *Cli) RestoreClock(ctx context.Context) error {
	last, err := c.meta.GetLastChange(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last change: %w", err)
	}
	if last > c.clock.Last() {
		c.clock.Restore(last)
	}
	return nil
}

// tick issues a change id and persists the clock position.
func (c *Cli) tick(ctx context.Context) (repl.Cid, error) {
	cid := c.clock.Tick()
	if err := c.meta.SaveLastChange(ctx, c.clock.Last()); err != nil {
		return repl.Cid{}, fmt.Errorf("failed to save last change: %w", err)
	}
	return cid, nil
}

// changeID returns a fresh change id, or the parsed raw one when it is set.
// A supplied id still moves the clock past it.
func (c *Cli) changeID(ctx context.Context, raw string) (repl.Cid, error) {
	if raw == "" {
		return c.tick(ctx)
	}

	cid, err := repl.Parse(raw)
	if err != nil {
		return repl.Cid{}, err
	}
	c.clock.Update(cid)
	if err := c.meta.SaveLastChange(ctx, c.clock.Last()); err != nil {
		return repl.Cid{}, fmt.Errorf("failed to save last change: %w", err)
	}
	return cid, nil
}

// printJSON пишет v в вывод с отступами
func (c *Cli) printJSON(v any) error {
	enc := json.NewEncoder(c.io)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func parseKey(entry, attr string) (storage.AttrKey, error) {
	id, err := uuid.Parse(entry)
	if err != nil {
		return storage.AttrKey{}, fmt.Errorf("invalid entry id %q: %w", entry, err)
	}
	if attr == "" {
		return storage.AttrKey{}, fmt.Errorf("attribute name is required")
	}
	return storage.AttrKey{EntryID: id, Attr: attr}, nil
}

// parseExpiry accepts "never", a duration from now or an RFC3339 instant.
func parseExpiry(s string, now time.Time) (*time.Time, error) {
	if s == "" || s == "never" {
		return nil, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		t := now.Add(d).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry %q: use never, a duration or RFC3339", s)
	}
	t = t.UTC()
	return &t, nil
}

func expiryState(expiry *time.Time) models.SessionState {
	if expiry == nil {
		return models.NeverExpires()
	}
	return models.ExpiresAt(*expiry)
}

// parseIdentity accepts "internal", "sync:<uuid>" or a principal uuid.
func parseIdentity(s string) (models.IdentityID, error) {
	if s == "" || s == "internal" {
		return models.InternalIdentity(), nil
	}
	if rest, ok := strings.CutPrefix(s, "sync:"); ok {
		id, err := uuid.Parse(rest)
		if err != nil {
			return models.IdentityID{}, fmt.Errorf("invalid issuer %q: %w", s, err)
		}
		return models.SynchIdentity(id), nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return models.IdentityID{}, fmt.Errorf("invalid issuer %q: %w", s, err)
	}
	return models.UserIdentity(id), nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
