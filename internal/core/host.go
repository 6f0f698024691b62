// Package core hosts contracts on top of a transactional ledger store. Every
// invocation runs in one atomic transaction: its writes, TTL bumps, nested
// contract calls, and events either all commit or all vanish.
package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"distributor/internal/metrics"
	"distributor/pkg/domain"
)

// HostConfig wires a Host.
type HostConfig struct {
	Logger *slog.Logger
	Store  domain.PersistentStore
	// Sinks receive the events of every committed invocation, in order.
	Sinks []EventSink
}

// Validate checks required fields.
func (cfg *HostConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	return nil
}

// Host runs contract invocations against a store.
type Host struct {
	log   *slog.Logger
	store domain.PersistentStore
	sinks []EventSink
}

// NewHost constructs a host from cfg.
func NewHost(cfg HostConfig) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Host{
		log:   cfg.Logger,
		store: cfg.Store,
		sinks: append([]EventSink(nil), cfg.Sinks...),
	}, nil
}

// Store returns the backing store.
func (h *Host) Store() domain.PersistentStore { return h.store }

// Height returns the current ledger sequence.
func (h *Host) Height() domain.Height { return h.store.Height() }

// AddSink registers another event sink. Not safe for use concurrently with Invoke.
func (h *Host) AddSink(sink EventSink) {
	h.sinks = append(h.sinks, sink)
}

// Invocation identifies one top-level contract call and the signers that authorized it.
type Invocation struct {
	Contract domain.Address
	Function string
	Auth     []domain.Address
}

// Invoke runs fn inside a single transaction. Events are delivered to the
// sinks only after the transaction commits.
func (h *Host) Invoke(ctx context.Context, inv Invocation, fn func(env *Env) error) (domain.Result, error) {
	start := time.Now()
	signers := make(map[domain.Address]struct{}, len(inv.Auth))
	for _, a := range inv.Auth {
		signers[a] = struct{}{}
	}
	res, err := h.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return fn(&Env{ctx: ctx, tx: tx, contract: inv.Contract, signers: signers})
	})
	metrics.RecordInvocation(inv.Function, time.Since(start), err)
	if err != nil {
		h.logFailure(inv, err)
		return res, err
	}
	for _, v := range res.Violations {
		h.log.Warn("host: rule warning", "rule", v.Rule, "key", v.Key.String(), "message", v.Message)
	}
	h.log.Debug("host: invocation committed",
		"contract", inv.Contract.String(),
		"function", inv.Function,
		"events", len(res.Events),
		"height", h.store.Height(),
	)
	metrics.RecordEvents(res.Events)
	h.deliver(ctx, res.Events)
	return res, nil
}

func (h *Host) logFailure(inv Invocation, err error) {
	if ce, ok := domain.AsContractError(err); ok {
		h.log.Warn("host: invocation rejected",
			"contract", inv.Contract.String(),
			"function", inv.Function,
			"code", ce.Code,
			"error", ce.Name,
		)
		return
	}
	h.log.Error("host: invocation failed",
		"contract", inv.Contract.String(),
		"function", inv.Function,
		"error", err,
	)
}

func (h *Host) deliver(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	for _, sink := range h.sinks {
		err := sink.Deliver(ctx, events)
		metrics.RecordSinkDelivery(sink.Name(), err)
		if err != nil {
			h.log.Error("host: event delivery failed", "sink", sink.Name(), "events", len(events), "error", err)
		}
	}
}

// View runs fn against a read-only snapshot.
func (h *Host) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	return h.store.View(ctx, fn)
}

// Advance closes ticks ledgers.
func (h *Host) Advance(ctx context.Context, ticks uint32) (domain.LedgerClose, error) {
	closed, err := h.store.Advance(ctx, ticks)
	if err != nil {
		h.log.Error("host: ledger advance failed", "ticks", ticks, "error", err)
		return closed, err
	}
	metrics.RecordLedgerClose(closed)
	h.log.Debug("host: ledger closed", "height", closed.Height, "swept", closed.Swept)
	return closed, nil
}

// Env is the execution context of one contract frame.
type Env struct {
	ctx      context.Context
	tx       domain.Transaction
	contract domain.Address
	caller   *domain.Address
	signers  map[domain.Address]struct{}
}

// Context returns the invocation context.
func (e *Env) Context() context.Context { return e.ctx }

// Contract returns the address of the executing contract.
func (e *Env) Contract() domain.Address { return e.contract }

// Height returns the ledger sequence the invocation runs at.
func (e *Env) Height() domain.Height { return e.tx.Height() }

// Tx exposes the invocation's transaction.
func (e *Env) Tx() domain.Transaction { return e.tx }

// RequireAuth succeeds if addr signed the invocation or is the contract that
// called into this frame. A contract never authorizes itself.
func (e *Env) RequireAuth(addr domain.Address) error {
	if _, ok := e.signers[addr]; ok {
		return nil
	}
	if e.caller != nil && *e.caller == addr {
		return nil
	}
	return domain.ErrUnauthorized
}

// Call returns a nested frame executing as contract, invoked by the current one.
func (e *Env) Call(contract domain.Address) *Env {
	caller := e.contract
	return &Env{
		ctx:      e.ctx,
		tx:       e.tx,
		contract: contract,
		caller:   &caller,
		signers:  e.signers,
	}
}

// Publish emits an event from the executing contract.
func (e *Env) Publish(topic string, key domain.Address, payload domain.Amount) {
	e.tx.Publish(domain.Event{Contract: e.contract, Topic: topic, Key: key, Payload: payload})
}
