// Package persistence selects a PersistentStore implementation from the
// environment.
package persistence

import (
	"fmt"
	"os"

	"dentalcore/internal/infra/persistence/memory"
	"dentalcore/internal/infra/persistence/postgres"
	"dentalcore/internal/infra/persistence/sqlite"
	"dentalcore/pkg/domain"
)

// Driver identifies a persistence backend.
type Driver string

// Supported persistence drivers.
const (
	// DriverMemory is the in-memory store (tests, ephemeral runs).
	DriverMemory Driver = "memory"
	// DriverSQLite is the snapshotting SQLite store (default).
	DriverSQLite Driver = "sqlite"
	// DriverPostgres is the snapshotting Postgres store.
	DriverPostgres Driver = "postgres"
)

// Open selects a store implementation using environment variables.
//
//	DENTALCORE_STORE_DRIVER: memory|sqlite|postgres (default sqlite)
//	DENTALCORE_SQLITE_PATH: database file when driver=sqlite (default dentalcore.db)
//	DENTALCORE_POSTGRES_DSN: connection string when driver=postgres
func Open(engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("DENTALCORE_STORE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.NewStore(engine), nil
	case DriverSQLite:
		return sqlite.NewStore(os.Getenv("DENTALCORE_SQLITE_PATH"), engine)
	case DriverPostgres:
		return postgres.NewStore(os.Getenv("DENTALCORE_POSTGRES_DSN"), engine)
	default:
		return nil, fmt.Errorf("unknown store driver %s", driver)
	}
}
