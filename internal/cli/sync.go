package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/sync"
	"github.com/iudanet/sessionstore/pkg/api"
)

type syncOptions struct {
	driver     string
	passphrase string
}

func newTrimCommand(get func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "trim",
		Short: "Forget expired revocations and enforce session limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return get().runTrim(cmd.Context())
		},
	}
}

func newSyncCommand(get func() *Cli) *cobra.Command {
	var opts syncOptions
	cmd := &cobra.Command{
		Use:   "sync <peer-db>",
		Short: "Merge every value-set of another replica's database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runSync(cmd.Context(), args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.driver, "peer-driver", "bolt", "storage driver of the peer database")
	f.StringVar(&opts.passphrase, "peer-passphrase", "", "passphrase of a sealed peer database")
	return cmd
}

func newExportCommand(get func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write every value-set to a replication bundle (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return get().runExport(cmd.Context(), path)
		},
	}
}

func newImportCommand(get func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Merge a replication bundle written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runImport(cmd.Context(), args[0], cmd.InOrStdin())
		},
	}
}

func (c *Cli) cutoff() repl.Cid {
	return repl.TrimCutoff(c.now(), c.maxAge)
}

func (c *Cli) runTrim(ctx context.Context) error {
	result, err := c.syncService.TrimAll(ctx, c.cutoff())
	if err != nil {
		return fmt.Errorf("trim failed: %w", err)
	}
	return c.printResult("Trim", result)
}

func (c *Cli) runSync(ctx context.Context, peerPath string, opts syncOptions) error {
	peer, err := c.openPeer(ctx, opts.driver, peerPath, opts.passphrase)
	if err != nil {
		return fmt.Errorf("failed to open peer store: %w", err)
	}
	defer func() {
		if err := peer.Close(); err != nil {
			c.logger.Error("failed to close peer store", "error", err)
		}
	}()

	result, err := c.syncService.SyncFrom(ctx, peer, c.cutoff())
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}
	return c.printResult("Synchronization", result)
}

func (c *Cli) runExport(ctx context.Context, path string) error {
	bundle, err := c.syncService.Export(ctx, c.clock.ServerID())
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if path == "-" {
		return c.printJSON(bundle)
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	// пакет содержит идентификаторы учетных данных
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	c.io.Printf("Exported %d value-sets to %s\n", len(bundle.Entries), path)
	return nil
}

func (c *Cli) runImport(ctx context.Context, path string, stdin io.Reader) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}

	var bundle api.SyncBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}

	result, err := c.syncService.Import(ctx, &bundle, c.cutoff())
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return c.printResult("Import", result)
}

func (c *Cli) printResult(title string, result *sync.Result) error {
	if !c.io.IsTerminal() {
		return c.printJSON(result.Response())
	}

	c.io.Printf("%s completed.\n", title)
	c.io.Println()
	c.io.Printf("Changed value-sets:  %d\n", result.Merged)
	c.io.Printf("Already converged:   %d\n", result.Skipped)
	c.io.Printf("Expired revocations: %d\n", result.Expired)
	if result.Evicted > 0 {
		c.io.Printf("Evicted sessions:    %d\n", result.Evicted)
	}
	if result.Failed > 0 {
		c.io.Printf("Failed (see log):    %d\n", result.Failed)
	}
	return nil
}
