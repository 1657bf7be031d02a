package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/sessionstore/internal/config"
	"github.com/iudanet/sessionstore/internal/storage"
	"github.com/iudanet/sessionstore/internal/storage/boltdb"
	"github.com/iudanet/sessionstore/internal/storage/sqlite"
)

// OpenStore opens the store at path. passphrase seals bolt payloads; it is
// rejected for sqlite.
func OpenStore(ctx context.Context, driver, path, passphrase string) (storage.Store, error) {
	switch driver {
	case config.DriverBolt, "":
		var opts []boltdb.Option
		if passphrase != "" {
			opts = append(opts, boltdb.WithPassphrase(passphrase))
		}
		s, err := boltdb.New(ctx, path, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		if passphrase != "" {
			return nil, fmt.Errorf("sqlite store does not support sealing")
		}
		s, err := sqlite.New(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
