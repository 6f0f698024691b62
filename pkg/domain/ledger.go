// Package domain defines the ledger vocabulary shared by the host, its storage
// backends, and the contracts that run on it.
package domain

import (
	"encoding/json"
	"fmt"
)

// Height is the ledger sequence number. It only moves forward and is the clock
// every deadline is measured in.
type Height uint32

// Amount is a signed token quantity in the token's smallest unit.
type Amount int64

// Tier identifies a storage durability partition.
type Tier string

const (
	// TierDurable holds long-lived contract configuration. Entries past their TTL
	// are archived and restored on the next transactional access.
	TierDurable Tier = "durable"
	// TierExpiring holds many small per-holder records. Entries past their TTL are
	// gone and are swept when the ledger closes.
	TierExpiring Tier = "expiring"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierDurable || t == TierExpiring
}

// Key addresses a storage entry. Every key is namespaced by the contract that
// owns it. A zero Holder denotes a plain symbol key such as "Admin"; otherwise
// the key is a tagged variant such as Claim(holder).
type Key struct {
	Contract Address `json:"contract"`
	Name     string  `json:"name"`
	Holder   Address `json:"holder"`
}

// SymbolKey builds a plain named key.
func SymbolKey(contract Address, name string) Key {
	return Key{Contract: contract, Name: name}
}

// HolderKey builds a tagged key keyed by holder.
func HolderKey(contract Address, name string, holder Address) Key {
	return Key{Contract: contract, Name: name, Holder: holder}
}

// Tagged reports whether the key carries a holder.
func (k Key) Tagged() bool {
	return !k.Holder.IsZero()
}

// String renders the key without its contract namespace, e.g. "Dist(<holder>)".
func (k Key) String() string {
	if !k.Tagged() {
		return k.Name
	}
	return fmt.Sprintf("%s(%s)", k.Name, k.Holder)
}

// Entry is a stored value and the last height at which it is live.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	LiveUntil Height          `json:"live_until"`
}

// Live reports whether the entry is live at height h.
func (e Entry) Live(h Height) bool {
	return e.LiveUntil >= h
}

// TTL returns the number of ticks the entry stays live after h, or 0 if it has lapsed.
func (e Entry) TTL(h Height) uint32 {
	if e.LiveUntil < h {
		return 0
	}
	return uint32(e.LiveUntil - h)
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	cp := e
	if e.Value != nil {
		cp.Value = append(json.RawMessage(nil), e.Value...)
	}
	return cp
}

// Action classifies a storage mutation.
type Action string

const (
	ActionSet     Action = "set"
	ActionExtend  Action = "extend"
	ActionRestore Action = "restore"
)

// Change records one storage mutation within a transaction.
type Change struct {
	Tier   Tier   `json:"tier"`
	Key    Key    `json:"key"`
	Action Action `json:"action"`
	Before *Entry `json:"before,omitempty"`
	After  *Entry `json:"after,omitempty"`
}

// ValueChanged reports whether the change altered the stored value, as opposed
// to only its TTL.
func (c Change) ValueChanged() bool {
	if c.Before == nil || c.After == nil {
		return c.Before != c.After
	}
	return string(c.Before.Value) != string(c.After.Value)
}

// Event is a contract notification published by a committed transaction.
type Event struct {
	ID       string  `json:"id"`
	Contract Address `json:"contract"`
	Topic    string  `json:"topic"`
	Key      Address `json:"key"`
	Payload  Amount  `json:"payload"`
	Height   Height  `json:"height"`
}

// LedgerClose summarizes advancing the ledger.
type LedgerClose struct {
	Height Height `json:"height"`
	Swept  int    `json:"swept"`
}
