package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const cidFlagUsage = "apply the change under this change id (as printed by revoke) instead of issuing a new one"

func newRevokeCommand(get func() *Cli) *cobra.Command {
	var rawCid string
	cmd := &cobra.Command{
		Use:   "revoke <entry> <attr> <id>",
		Short: "Revoke a session, every session of a resource server, or delete a token",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runRevoke(cmd.Context(), args[0], args[1], args[2], rawCid)
		},
	}
	cmd.Flags().StringVar(&rawCid, "cid", "", cidFlagUsage)
	return cmd
}

func newPurgeCommand(get func() *Cli) *cobra.Command {
	var rawCid string
	cmd := &cobra.Command{
		Use:   "purge <entry> <attr>",
		Short: "Revoke or delete every value of an attribute",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runPurge(cmd.Context(), args[0], args[1], rawCid)
		},
	}
	cmd.Flags().StringVar(&rawCid, "cid", "", cidFlagUsage)
	return cmd
}

func (c *Cli) runRevoke(ctx context.Context, entry, attr, rawID, rawCid string) error {
	key, err := parseKey(entry, attr)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", rawID, err)
	}

	cid, err := c.changeID(ctx, rawCid)
	if err != nil {
		return err
	}
	changed, err := c.dataService.Remove(ctx, key, id, cid)
	if err != nil {
		return fmt.Errorf("failed to revoke %s: %w", id, err)
	}
	if !changed {
		c.io.Printf("Nothing to revoke for %s.\n", id)
		return nil
	}

	c.io.Printf("Revoked %s at %s.\n", id, cid)
	return nil
}

func (c *Cli) runPurge(ctx context.Context, entry, attr, rawCid string) error {
	key, err := parseKey(entry, attr)
	if err != nil {
		return err
	}

	cid, err := c.changeID(ctx, rawCid)
	if err != nil {
		return err
	}
	if err := c.dataService.Purge(ctx, key, cid); err != nil {
		return fmt.Errorf("failed to purge %s: %w", key, err)
	}

	c.io.Printf("Purged %s at %s.\n", key, cid)
	return nil
}
