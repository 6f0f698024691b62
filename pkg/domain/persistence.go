package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrEntryMissing is returned when a TTL operation targets an entry that does not exist.
var ErrEntryMissing = errors.New("storage entry missing")

// TransactionView provides read-only access to ledger state.
type TransactionView interface {
	// Height is the ledger sequence the view observes.
	Height() Height
	// Get returns the entry for key. Expired expiring-tier entries read as absent.
	Get(tier Tier, key Key) (Entry, bool)
	// Keys lists the live keys of a contract in a tier, ordered by key string.
	Keys(tier Tier, contract Address) []Key
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope.
type Transaction interface {
	TransactionView
	// Set writes value under key. New entries get the tier's minimum TTL.
	Set(tier Tier, key Key, value json.RawMessage) error
	// ExtendTTL bumps the entry to extendTo ticks when its TTL is below threshold.
	ExtendTTL(tier Tier, key Key, threshold, extendTo uint32) error
	// ExtendInstance applies ExtendTTL to every durable entry of contract.
	ExtendInstance(contract Address, threshold, extendTo uint32) error
	// Publish buffers an event; it is only delivered if the transaction commits.
	Publish(event Event)
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// Advance closes ticks ledgers and sweeps lapsed expiring-tier entries.
	Advance(ctx context.Context, ticks uint32) (LedgerClose, error)
	Height() Height
	RulesEngine() *RulesEngine
}
