package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"distributor/internal/archive"
	"distributor/internal/blob"
	"distributor/internal/core"
	"distributor/internal/distributor"
	"distributor/internal/metrics"
	"distributor/internal/server"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func runServe(ctx context.Context, args []string, _ io.Writer) error {
	fs, g := newFlagSet("serve")
	addrFlag := fs.String("addr", getenvDefault("DISTRIBUTOR_HTTP_ADDR", ":8080"), "HTTP listen address (or set DISTRIBUTOR_HTTP_ADDR env var)")
	intervalFlag := fs.Duration("ledger-interval", core.DefaultLedgerInterval, "wall-clock time per ledger; 0 disables the ticker")
	rateFlag := fs.Float64("invoke-rate", 5, "state-changing requests per second per client IP")
	burstFlag := fs.Int("invoke-burst", 20, "request burst per client IP")
	originsFlag := fs.StringSlice("cors-origin", nil, "allowed CORS origins (or set DISTRIBUTOR_CORS_ORIGINS, comma separated)")
	eventsFlag := fs.Int("events-retained", 1000, "claim events kept in memory for GET /v1/events")
	archiveFlag := fs.Bool("archive", false, "archive claim events to the blob store (DISTRIBUTOR_BLOB_* env vars)")
	restoreFlag := fs.Bool("restore", false, "hydrate the memory backend from the newest archived snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !fs.Changed("cors-origin") {
		if env := getenvDefault("DISTRIBUTOR_CORS_ORIGINS", ""); env != "" {
			*originsFlag = strings.Split(env, ",")
		}
	}

	events := core.NewMemorySink(*eventsFlag)
	a, err := openApp(ctx, g, events)
	if err != nil {
		return err
	}
	defer a.Close()
	a.host.AddSink(core.NewLogSink(a.log))
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	var blobs blob.Store
	if *archiveFlag || *restoreFlag {
		if blobs, err = blob.Open(ctx, blob.ConfigFromEnv()); err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
	}
	if *restoreFlag {
		if !a.memoryStorage() {
			return errors.New("--restore requires the memory storage driver")
		}
		importer, ok := a.store.(archive.Importer)
		if !ok {
			return errors.New("storage backend cannot import snapshots")
		}
		key, err := archive.RestoreLatest(ctx, blobs, importer)
		switch {
		case errors.Is(err, archive.ErrNoSnapshot):
			a.log.Warn("serve: no snapshot to restore")
		case err != nil:
			return err
		default:
			a.log.Info("serve: restored snapshot", "key", key, "height", a.host.Height())
		}
	}
	if *archiveFlag {
		sink, err := archive.NewSink(archive.SinkConfig{Logger: a.log, Store: blobs, Topics: []string{distributor.TopicClaim}})
		if err != nil {
			return err
		}
		a.host.AddSink(sink)
	}

	srv, err := server.New(server.Config{
		Logger:         a.log,
		Host:           a.host,
		Distributor:    a.dist,
		Token:          a.token,
		Events:         events,
		Addr:           *addrFlag,
		InvokeRate:     rate.Limit(*rateFlag),
		InvokeBurst:    *burstFlag,
		AllowedOrigins: *originsFlag,
	})
	if err != nil {
		return err
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return srv.Run(gctx) })
	if *intervalFlag > 0 {
		ticker, err := core.NewLedgerTicker(core.LedgerTickerConfig{Logger: a.log, Host: a.host, Interval: *intervalFlag})
		if err != nil {
			return err
		}
		grp.Go(func() error { return ticker.Run(gctx) })
	}
	a.log.Info("serve: started",
		"storage", string(a.storage.Driver),
		"distributor", a.dist.Address().String(),
		"token", a.token.Address().String(),
		"height", a.host.Height(),
	)
	return grp.Wait()
}
