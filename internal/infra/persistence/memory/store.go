// Package memory provides an in-memory implementation of the ledger store used
// for tests, ephemeral hosts, and as the working set of the durable backends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"distributor/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// TTLConfig holds the host's entry lifetime limits, in ticks.
type TTLConfig struct {
	// MinDurable is the TTL a new (or restored) durable entry receives.
	MinDurable uint32
	// MinExpiring is the TTL a new expiring entry receives.
	MinExpiring uint32
	// Max bounds any extendTo passed to ExtendTTL.
	Max uint32
}

// DefaultTTLConfig mirrors typical network settings.
func DefaultTTLConfig() TTLConfig {
	return TTLConfig{
		MinDurable:  4096,
		MinExpiring: 16,
		Max:         3_110_400,
	}
}

func (c TTLConfig) min(tier domain.Tier) uint32 {
	if tier == domain.TierDurable {
		return c.MinDurable
	}
	return c.MinExpiring
}

type ledgerState struct {
	height   domain.Height
	durable  map[domain.Key]domain.Entry
	expiring map[domain.Key]domain.Entry
}

func newLedgerState() ledgerState {
	return ledgerState{
		durable:  make(map[domain.Key]domain.Entry),
		expiring: make(map[domain.Key]domain.Entry),
	}
}

func (s ledgerState) clone() ledgerState {
	cloned := newLedgerState()
	cloned.height = s.height
	for k, v := range s.durable {
		cloned.durable[k] = v.Clone()
	}
	for k, v := range s.expiring {
		cloned.expiring[k] = v.Clone()
	}
	return cloned
}

func (s *ledgerState) bucket(tier domain.Tier) map[domain.Key]domain.Entry {
	if tier == domain.TierDurable {
		return s.durable
	}
	return s.expiring
}

// Record is one persisted entry in a Snapshot.
type Record struct {
	Key   domain.Key   `json:"key"`
	Entry domain.Entry `json:"entry"`
}

// Snapshot captures a point-in-time clone of the ledger state.
type Snapshot struct {
	Height   domain.Height `json:"height"`
	Durable  []Record      `json:"durable"`
	Expiring []Record      `json:"expiring"`
}

func records(bucket map[domain.Key]domain.Entry) []Record {
	out := make([]Record, 0, len(bucket))
	for k, v := range bucket {
		out = append(out, Record{Key: k, Entry: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].Key, out[j].Key) })
	return out
}

func keyLess(a, b domain.Key) bool {
	if a.Contract != b.Contract {
		return a.Contract.String() < b.Contract.String()
	}
	return a.String() < b.String()
}

func snapshotFromLedgerState(state ledgerState) Snapshot {
	return Snapshot{
		Height:   state.height,
		Durable:  records(state.durable),
		Expiring: records(state.expiring),
	}
}

func ledgerStateFromSnapshot(s Snapshot) ledgerState {
	state := newLedgerState()
	state.height = s.Height
	for _, r := range s.Durable {
		state.durable[r.Key] = r.Entry.Clone()
	}
	for _, r := range s.Expiring {
		state.expiring[r.Key] = r.Entry.Clone()
	}
	return state
}

// CommitHook receives the state a commit or ledger close is about to install.
// An error aborts it and leaves the previous state in place.
type CommitHook func(ctx context.Context, next Snapshot) error

// Store provides an in-memory transactional ledger.
type Store struct {
	mu       sync.RWMutex
	state    ledgerState
	engine   *domain.RulesEngine
	ttl      TTLConfig
	onCommit CommitHook
}

// NewStore constructs an in-memory store with default TTL limits.
func NewStore(engine *domain.RulesEngine) *Store {
	return NewStoreWithConfig(engine, DefaultTTLConfig())
}

// NewStoreWithConfig constructs an in-memory store with explicit TTL limits.
func NewStoreWithConfig(engine *domain.RulesEngine, ttl TTLConfig) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newLedgerState(),
		engine: engine,
		ttl:    ttl,
	}
}

// ExportState clones the current ledger state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromLedgerState(s.state)
}

// ImportState replaces the ledger state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ledgerStateFromSnapshot(snapshot)
}

// OnCommit installs hook; it runs under the store lock before every state swap.
func (s *Store) OnCommit(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = hook
}

// install swaps in next once the commit hook accepts it.
func (s *Store) install(ctx context.Context, next ledgerState) error {
	if s.onCommit != nil {
		if err := s.onCommit(ctx, snapshotFromLedgerState(next)); err != nil {
			return err
		}
	}
	s.state = next
	return nil
}

// RulesEngine exposes the engine evaluated on every commit.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// TTLConfig returns the lifetime limits applied by the store.
func (s *Store) TTLConfig() TTLConfig {
	return s.ttl
}

// Height returns the current ledger sequence.
func (s *Store) Height() domain.Height {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.height
}

// Advance closes ticks ledgers and drops expiring entries that lapsed.
func (s *Store) Advance(ctx context.Context, ticks uint32) (domain.LedgerClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	height := uint64(s.state.height) + uint64(ticks)
	if height > math.MaxUint32 {
		return domain.LedgerClose{}, fmt.Errorf("advance %d ticks from %d overflows height", ticks, s.state.height)
	}
	next := s.state.clone()
	next.height = domain.Height(height)
	swept := 0
	for k, e := range next.expiring {
		if !e.Live(next.height) {
			delete(next.expiring, k)
			swept++
		}
	}
	if err := s.install(ctx, next); err != nil {
		return domain.LedgerClose{}, err
	}
	return domain.LedgerClose{Height: next.height, Swept: swept}, nil
}

// RunInTransaction executes fn within a transactional copy of the ledger state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if err := s.install(ctx, tx.state); err != nil {
		return domain.Result{}, err
	}
	result.Events = tx.events
	return result, nil
}

// View executes fn against a read-only snapshot of the ledger state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: &snapshot})
}

type view struct {
	state *ledgerState
}

func (v view) Height() domain.Height { return v.state.height }

// Get reads without restoring: archived durable entries are still visible.
func (v view) Get(tier domain.Tier, key domain.Key) (domain.Entry, bool) {
	e, ok := v.state.bucket(tier)[key]
	if !ok {
		return domain.Entry{}, false
	}
	if tier == domain.TierExpiring && !e.Live(v.state.height) {
		return domain.Entry{}, false
	}
	return e.Clone(), true
}

func (v view) Keys(tier domain.Tier, contract domain.Address) []domain.Key {
	return liveKeys(v.state, tier, contract)
}

func liveKeys(state *ledgerState, tier domain.Tier, contract domain.Address) []domain.Key {
	var out []domain.Key
	for k, e := range state.bucket(tier) {
		if k.Contract != contract {
			continue
		}
		if tier == domain.TierExpiring && !e.Live(state.height) {
			continue
		}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i], out[j]) })
	return out
}

type transaction struct {
	store   *Store
	state   ledgerState
	changes []domain.Change
	events  []domain.Event
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Height() domain.Height { return tx.state.height }

func (tx *transaction) Keys(tier domain.Tier, contract domain.Address) []domain.Key {
	return liveKeys(&tx.state, tier, contract)
}

// Get reads an entry. Touching an archived durable entry restores it.
func (tx *transaction) Get(tier domain.Tier, key domain.Key) (domain.Entry, bool) {
	e, ok := tx.lookup(tier, key)
	if !ok {
		return domain.Entry{}, false
	}
	return e.Clone(), true
}

func (tx *transaction) lookup(tier domain.Tier, key domain.Key) (domain.Entry, bool) {
	bucket := tx.state.bucket(tier)
	e, ok := bucket[key]
	if !ok {
		return domain.Entry{}, false
	}
	if e.Live(tx.state.height) {
		return e, true
	}
	if tier == domain.TierExpiring {
		return domain.Entry{}, false
	}
	before := e.Clone()
	e.LiveUntil = tx.state.height + domain.Height(tx.store.ttl.MinDurable)
	bucket[key] = e
	after := e.Clone()
	tx.recordChange(domain.Change{Tier: tier, Key: key, Action: domain.ActionRestore, Before: &before, After: &after})
	return e, true
}

func (tx *transaction) Set(tier domain.Tier, key domain.Key, value json.RawMessage) error {
	if !tier.Valid() {
		return fmt.Errorf("unknown storage tier %q", tier)
	}
	if key.Name == "" {
		return fmt.Errorf("storage key requires a name")
	}
	if !json.Valid(value) {
		return fmt.Errorf("storage value for %s is not valid JSON", key)
	}
	var before *domain.Entry
	next := domain.Entry{Value: append(json.RawMessage(nil), value...)}
	if current, ok := tx.lookup(tier, key); ok {
		cp := current.Clone()
		before = &cp
		next.LiveUntil = current.LiveUntil
	} else {
		next.LiveUntil = tx.state.height + domain.Height(tx.store.ttl.min(tier))
	}
	tx.state.bucket(tier)[key] = next
	after := next.Clone()
	tx.recordChange(domain.Change{Tier: tier, Key: key, Action: domain.ActionSet, Before: before, After: &after})
	return nil
}

func (tx *transaction) ExtendTTL(tier domain.Tier, key domain.Key, threshold, extendTo uint32) error {
	if extendTo > tx.store.ttl.Max {
		return fmt.Errorf("extend %s to %d ticks exceeds max TTL %d", key, extendTo, tx.store.ttl.Max)
	}
	if threshold > extendTo {
		return fmt.Errorf("extend %s: threshold %d above extendTo %d", key, threshold, extendTo)
	}
	current, ok := tx.lookup(tier, key)
	if !ok {
		return fmt.Errorf("extend %s: %w", key, domain.ErrEntryMissing)
	}
	if current.TTL(tx.state.height) >= threshold {
		return nil
	}
	if uint64(tx.state.height)+uint64(extendTo) > math.MaxUint32 {
		return fmt.Errorf("extend %s to %d ticks overflows height", key, extendTo)
	}
	before := current.Clone()
	current.LiveUntil = tx.state.height + domain.Height(extendTo)
	tx.state.bucket(tier)[key] = current
	after := current.Clone()
	tx.recordChange(domain.Change{Tier: tier, Key: key, Action: domain.ActionExtend, Before: &before, After: &after})
	return nil
}

func (tx *transaction) ExtendInstance(contract domain.Address, threshold, extendTo uint32) error {
	for _, key := range tx.Keys(domain.TierDurable, contract) {
		if err := tx.ExtendTTL(domain.TierDurable, key, threshold, extendTo); err != nil {
			return err
		}
	}
	return nil
}

func (tx *transaction) Publish(event domain.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Height = tx.state.height
	tx.events = append(tx.events, event)
}

// Bucket names used by the durable backends to persist a Snapshot row-per-bucket.
const (
	BucketHeight   = "height"
	BucketDurable  = "durable"
	BucketExpiring = "expiring"
)

// Buckets lists the persisted bucket names in write order.
var Buckets = []string{BucketHeight, BucketDurable, BucketExpiring}

// EncodeBuckets renders the snapshot as one JSON payload per bucket.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case BucketHeight:
			data, err = json.Marshal(s.Height)
		case BucketDurable:
			data, err = json.Marshal(s.Durable)
		case BucketExpiring:
			data, err = json.Marshal(s.Expiring)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket merges one persisted bucket payload into the snapshot. Unknown
// buckets are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketHeight:
		target = &s.Height
	case BucketDurable:
		target = &s.Durable
	case BucketExpiring:
		target = &s.Expiring
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
