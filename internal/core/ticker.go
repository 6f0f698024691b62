package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultLedgerInterval approximates a network's ledger close time.
const DefaultLedgerInterval = 5 * time.Second

// LedgerTickerConfig wires a LedgerTicker.
type LedgerTickerConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Host     *Host
	Interval time.Duration
}

// Validate checks required fields and applies defaults.
func (cfg *LedgerTickerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Host == nil {
		return errors.New("host is required")
	}
	if cfg.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultLedgerInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// LedgerTicker closes one ledger per interval of wall-clock time.
type LedgerTicker struct {
	log *slog.Logger
	cfg LedgerTickerConfig
}

// NewLedgerTicker constructs a ticker from cfg.
func NewLedgerTicker(cfg LedgerTickerConfig) (*LedgerTicker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LedgerTicker{log: cfg.Logger, cfg: cfg}, nil
}

// Run advances the ledger until ctx is done.
func (t *LedgerTicker) Run(ctx context.Context) error {
	t.log.Info("ledger: ticker started", "interval", t.cfg.Interval)
	ticker := t.cfg.Clock.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log.Info("ledger: ticker stopped", "height", t.cfg.Host.Height())
			return nil
		case <-ticker.Chan():
			if _, err := t.cfg.Host.Advance(ctx, 1); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}
