package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"distributor/internal/core"
	"distributor/internal/distributor"
	"distributor/internal/logger"
	"distributor/internal/token"
	"distributor/pkg/domain"

	flag "github.com/spf13/pflag"
)

const (
	defaultDistributorLabel = "distributor"
	defaultTokenLabel       = "token"
)

// globalFlags are shared by every command.
type globalFlags struct {
	verbose          *bool
	storageDriver    *string
	sqlitePath       *string
	postgresDSN      *string
	distributorLabel *string
	tokenLabel       *string
}

func newFlagSet(name string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	g := &globalFlags{
		verbose:          fs.Bool("verbose", false, "enable verbose (debug) logging"),
		storageDriver:    fs.String("storage-driver", "", "memory|sqlite|postgres (or set DISTRIBUTOR_STORAGE_DRIVER env var)"),
		sqlitePath:       fs.String("sqlite-path", "", "SQLite database path (or set DISTRIBUTOR_SQLITE_PATH env var)"),
		postgresDSN:      fs.String("postgres-dsn", "", "Postgres DSN (or set DISTRIBUTOR_POSTGRES_DSN env var)"),
		distributorLabel: fs.String("distributor", defaultDistributorLabel, "deployment label the distributor address is derived from"),
		tokenLabel:       fs.String("token", defaultTokenLabel, "deployment label the token address is derived from"),
	}
	return fs, g
}

// storageConfig starts from the environment and applies explicit flags on top.
func (g *globalFlags) storageConfig() core.StorageConfig {
	cfg := core.StorageConfigFromEnv()
	if *g.storageDriver != "" {
		cfg.Driver = core.StorageDriver(*g.storageDriver)
	}
	if *g.sqlitePath != "" {
		cfg.SQLitePath = *g.sqlitePath
	}
	if *g.postgresDSN != "" {
		cfg.PostgresDSN = *g.postgresDSN
	}
	return cfg
}

// app is one opened deployment: a host over the configured store with the
// token and distributor contracts bound to their derived addresses.
type app struct {
	log     *slog.Logger
	storage core.StorageConfig
	store   domain.PersistentStore
	host    *core.Host
	token   *token.Client
	dist    *distributor.Client
}

func openApp(ctx context.Context, g *globalFlags, sinks ...core.EventSink) (*app, error) {
	log := logger.NewWithWriter(os.Stderr, *g.verbose, false)
	distAddr := domain.ContractAddress(*g.distributorLabel)
	tokenAddr := domain.ContractAddress(*g.tokenLabel)

	engine := domain.NewRulesEngine()
	distributor.RegisterRules(engine, distAddr)
	storage := g.storageConfig()
	store, err := core.OpenPersistentStore(ctx, storage, engine)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	host, err := core.NewHost(core.HostConfig{Logger: log, Store: store, Sinks: sinks})
	if err != nil {
		closeStore(store)
		return nil, err
	}
	impl, err := distributor.NewContract(distributor.DefaultPolicy(), token.Service{})
	if err != nil {
		closeStore(store)
		return nil, err
	}
	return &app{
		log:     log,
		storage: storage,
		store:   store,
		host:    host,
		token:   token.NewClient(host, tokenAddr),
		dist:    distributor.NewClient(host, distAddr, impl),
	}, nil
}

// memoryStorage reports whether the app runs on the ephemeral backend.
func (a *app) memoryStorage() bool {
	return a.storage.Driver == core.StorageMemory
}

func (a *app) Close() {
	closeStore(a.store)
}

func closeStore(store domain.PersistentStore) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

func parseAddressFlag(name, value string) (domain.Address, error) {
	if value == "" {
		return domain.Address{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := domain.ParseAddress(value)
	if err != nil {
		return domain.Address{}, fmt.Errorf("--%s: %w", name, err)
	}
	return addr, nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func withApp(ctx context.Context, g *globalFlags, fn func(a *app) error) error {
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
