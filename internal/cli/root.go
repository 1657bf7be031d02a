package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/sessionstore/internal/config"
	"github.com/iudanet/sessionstore/internal/data"
	"github.com/iudanet/sessionstore/internal/iocli"
	"github.com/iudanet/sessionstore/internal/metrics"
	"github.com/iudanet/sessionstore/internal/repl"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/sync"
)

type rootFlags struct {
	driver          string
	dbPath          string
	passphrase      string
	changelogMaxAge string
	askPassphrase   bool
}

// NewRootCommand builds the sessionctl command tree. Defaults come from cfg.
// The store is opened before each command and closed after it succeeds; the
// returned closer releases it when a command fails.
func NewRootCommand(cfg *config.Config, io iocli.IO, logger *slog.Logger) (*cobra.Command, func() error) {
	flags := &rootFlags{
		driver:          cfg.DBDriver,
		dbPath:          cfg.DBPath,
		passphrase:      cfg.StorePassphrase,
		changelogMaxAge: cfg.ChangelogMaxAge,
	}

	var (
		c     *Cli
		store storage.Store
	)
	get := func() *Cli { return c }
	closeStore := func() error {
		if store == nil {
			return nil
		}
		err := store.Close()
		store = nil
		return err
	}

	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and edit credential value-sets of a replica",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := closeStore(); err != nil {
				return err
			}

			passphrase := flags.passphrase
			if flags.askPassphrase {
				p, err := io.ReadPassword("Store passphrase: ")
				if err != nil {
					return fmt.Errorf("failed to read passphrase: %w", err)
				}
				passphrase = p
			}

			maxAge, err := parsePositiveDuration(flags.changelogMaxAge)
			if err != nil {
				return fmt.Errorf("invalid changelog max age: %w", err)
			}

			store, err = OpenStore(cmd.Context(), flags.driver, flags.dbPath, passphrase)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}

			recorder := metrics.Nop{}
			c = New(io,
				data.NewService(store, recorder, logger),
				sync.NewService(store, recorder, logger),
				store,
				repl.NewClockWithServerID(cfg.ReplicaID()),
				maxAge,
				logger)
			return c.RestoreClock(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return closeStore()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.driver, "driver", flags.driver, "storage driver: bolt or sqlite")
	pf.StringVar(&flags.dbPath, "db", flags.dbPath, "path to the replica database")
	pf.BoolVar(&flags.askPassphrase, "ask-passphrase", false, "prompt for the store passphrase")
	pf.StringVar(&flags.changelogMaxAge, "changelog-max-age", flags.changelogMaxAge, "how long revocations are kept before trim")

	root.AddCommand(
		newListCommand(get),
		newShowCommand(get),
		newIndexCommand(get),
		newLookupCommand(get),
		newAddSessionCommand(get),
		newAddOAuth2Command(get),
		newAddTokenCommand(get),
		newRevokeCommand(get),
		newPurgeCommand(get),
		newTrimCommand(get),
		newSyncCommand(get),
		newExportCommand(get),
		newImportCommand(get),
	)
	return root, closeStore
}
