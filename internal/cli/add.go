package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iudanet/sessionstore/internal/models"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/valueset"
)

type sessionOptions struct {
	label    string
	scope    string
	authType string
	credID   string
	issuer   string
	expires  string
}

type oauth2Options struct {
	rs      string
	parent  string
	expires string
}

type tokenOptions struct {
	label   string
	scope   string
	issuer  string
	expires string
}

func newAddSessionCommand(get func() *Cli) *cobra.Command {
	var opts sessionOptions
	cmd := &cobra.Command{
		Use:   "add-session <entry>",
		Short: "Add an interactive session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runAddSession(cmd.Context(), args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.label, "label", "", "display label")
	f.StringVar(&opts.scope, "scope", models.SessionScopeReadOnly.String(), "read_only, read_write, privilege_capable or synchronise")
	f.StringVar(&opts.authType, "auth-type", models.AuthTypePassword.String(), "authentication method")
	f.StringVar(&opts.credID, "cred", "", "credential id (random when empty)")
	f.StringVar(&opts.issuer, "issued-by", "internal", "internal, sync:<uuid> or a principal uuid")
	f.StringVar(&opts.expires, "expires", "never", "never, a duration or an RFC3339 instant")
	return cmd
}

func newAddOAuth2Command(get func() *Cli) *cobra.Command {
	var opts oauth2Options
	cmd := &cobra.Command{
		Use:   "add-oauth2 <entry>",
		Short: "Add an OAuth2 session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runAddOAuth2(cmd.Context(), args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.rs, "rs", "", "resource server id")
	f.StringVar(&opts.parent, "parent", "", "parent session id")
	f.StringVar(&opts.expires, "expires", "never", "never, a duration or an RFC3339 instant")
	_ = cmd.MarkFlagRequired("rs")
	return cmd
}

func newAddTokenCommand(get func() *Cli) *cobra.Command {
	var opts tokenOptions
	cmd := &cobra.Command{
		Use:   "add-token <entry>",
		Short: "Add an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runAddToken(cmd.Context(), args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.label, "label", "", "display label")
	f.StringVar(&opts.scope, "scope", models.ApiTokenScopeReadOnly.String(), "read_only, read_write or synchronise")
	f.StringVar(&opts.issuer, "issued-by", "internal", "internal, sync:<uuid> or a principal uuid")
	f.StringVar(&opts.expires, "expires", "never", "never, a duration or an RFC3339 instant")
	_ = cmd.MarkFlagRequired("label")
	return cmd
}

func (c *Cli) runAddSession(ctx context.Context, entry string, opts sessionOptions) error {
	key, err := parseKey(entry, AttrSession)
	if err != nil {
		return err
	}

	scope, err := models.ParseSessionScope(opts.scope)
	if err != nil {
		return err
	}
	authType, err := models.ParseAuthType(opts.authType)
	if err != nil {
		return err
	}
	issuer, err := parseIdentity(opts.issuer)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	expiry, err := parseExpiry(opts.expires, now)
	if err != nil {
		return err
	}
	credID := uuid.New()
	if opts.credID != "" {
		if credID, err = uuid.Parse(opts.credID); err != nil {
			return fmt.Errorf("invalid credential id: %w", err)
		}
	}

	v := valueset.SessionValue{
		ID: uuid.New(),
		Session: models.Session{
			IssuedAt: now,
			State:    expiryState(expiry),
			Label:    opts.label,
			IssuedBy: issuer,
			CredID:   credID,
			Scope:    scope,
			Type:     authType,
		},
	}
	return c.insert(ctx, key, v)
}

func (c *Cli) runAddOAuth2(ctx context.Context, entry string, opts oauth2Options) error {
	key, err := parseKey(entry, AttrOAuth2)
	if err != nil {
		return err
	}

	rs, err := uuid.Parse(opts.rs)
	if err != nil {
		return fmt.Errorf("invalid resource server id: %w", err)
	}
	var parent *uuid.UUID
	if opts.parent != "" {
		p, err := uuid.Parse(opts.parent)
		if err != nil {
			return fmt.Errorf("invalid parent session id: %w", err)
		}
		parent = &p
	}
	now := c.now().UTC()
	expiry, err := parseExpiry(opts.expires, now)
	if err != nil {
		return err
	}

	v := valueset.OAuth2SessionValue{
		ID: uuid.New(),
		Session: models.OAuth2Session{
			IssuedAt: now,
			State:    expiryState(expiry),
			Parent:   parent,
			RsUUID:   rs,
		},
	}
	return c.insert(ctx, key, v)
}

func (c *Cli) runAddToken(ctx context.Context, entry string, opts tokenOptions) error {
	key, err := parseKey(entry, AttrApiToken)
	if err != nil {
		return err
	}

	scope, err := models.ParseApiTokenScope(opts.scope)
	if err != nil {
		return err
	}
	issuer, err := parseIdentity(opts.issuer)
	if err != nil {
		return err
	}
	now := c.now().UTC()
	expiry, err := parseExpiry(opts.expires, now)
	if err != nil {
		return err
	}

	v := valueset.ApiTokenValue{
		ID: uuid.New(),
		Token: models.ApiToken{
			IssuedAt: now,
			Expiry:   expiry,
			Label:    opts.label,
			IssuedBy: issuer,
			Scope:    scope,
		},
	}
	return c.insert(ctx, key, v)
}

func (c *Cli) insert(ctx context.Context, key storage.AttrKey, v valueset.Value) error {
	if _, err := c.dataService.Insert(ctx, key, v); err != nil {
		return fmt.Errorf("failed to add %s: %w", v.Kind(), err)
	}
	c.io.Println(v.Key().String())
	return nil
}
