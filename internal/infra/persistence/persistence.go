// Package persistence selects a concrete persistent ledger store.
package persistence

import (
	"fmt"
	"os"

	"agroledger/internal/infra/persistence/postgres"
	"agroledger/internal/infra/persistence/sqlite"
	"agroledger/internal/ledger"
	"agroledger/pkg/domain"
)

// Driver identifies a concrete persistent storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Open selects a backend using environment variables. Defaults to sqlite
// when unset.
//
//	AGROLEDGER_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	AGROLEDGER_SQLITE_PATH: path to sqlite file (default ./agroledger.db)
//	AGROLEDGER_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(deployer domain.Identity) (domain.PersistentStore, error) {
	driver := os.Getenv("AGROLEDGER_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return ledger.NewMemoryStore(deployer), nil
	case DriverSQLite:
		path := os.Getenv("AGROLEDGER_SQLITE_PATH")
		return sqlite.NewStore(path, deployer)
	case DriverPostgres:
		dsn := os.Getenv("AGROLEDGER_POSTGRES_DSN")
		return postgres.NewStore(dsn, deployer)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
