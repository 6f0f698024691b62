package core

import (
	"context"
	"fmt"
	"os"

	"distributor/internal/infra/persistence/memory"
	"distributor/internal/infra/persistence/postgres"
	"distributor/internal/infra/persistence/sqlite"
	"distributor/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects and configures a backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// StorageConfigFromEnv reads the backend selection from the environment.
//
//	DISTRIBUTOR_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	DISTRIBUTOR_SQLITE_PATH: path to sqlite file (default ./distributor.db)
//	DISTRIBUTOR_POSTGRES_DSN: postgres DSN when driver=postgres
func StorageConfigFromEnv() StorageConfig {
	driver := os.Getenv("DISTRIBUTOR_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	return StorageConfig{
		Driver:      StorageDriver(driver),
		SQLitePath:  os.Getenv("DISTRIBUTOR_SQLITE_PATH"),
		PostgresDSN: os.Getenv("DISTRIBUTOR_POSTGRES_DSN"),
	}
}

// OpenPersistentStore constructs the configured backend around engine.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
