// Command agroledgerd serves the agricultural ledger over HTTP.
//
// Configuration is environment-driven:
//
//	AGROLEDGER_LISTEN_ADDR     listen address (default ":8080")
//	AGROLEDGER_DEPLOYER        identity granted Administrator at first boot
//	AGROLEDGER_STORAGE_DRIVER  memory | sqlite | postgres (default sqlite)
//	AGROLEDGER_BLOB_DRIVER     fs | s3 | memory (unset disables archiving)
package main

import (
	"context"
	"fmt"
	"os"

	"agroledger/internal/api"
	"agroledger/internal/blob"
	"agroledger/internal/infra/persistence"
	"agroledger/internal/ledger"
	"agroledger/pkg/domain"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "agroledgerd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	deployer := domain.Identity(os.Getenv("AGROLEDGER_DEPLOYER"))
	if deployer == "" {
		deployer = "admin"
	}

	store, err := persistence.Open(deployer)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	signals := ledger.NewJSONSignalRecorder(os.Stdout)
	prom := ledger.NewPrometheusRecorder(nil)
	svc := ledger.NewService(store, domain.NewDefaultAnomalyEngine(),
		ledger.WithSignalRecorder(signals),
		ledger.WithSignalRecorder(prom),
		ledger.WithMetricsRecorder(prom),
	)

	opts := []api.ServerOption{}
	if os.Getenv("AGROLEDGER_BLOB_DRIVER") != "" {
		archive, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		opts = append(opts, api.WithArchive(archive))
	}

	addr := os.Getenv("AGROLEDGER_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return api.NewServer(svc, opts...).Start(addr)
}
