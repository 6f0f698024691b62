package distributor

import (
	"fmt"

	"distributor/internal/core"
	"distributor/pkg/domain"
)

// Storage key names. Symbol keys live in the durable tier, tagged keys in the
// expiring tier.
const (
	KeyIsInit    = "IsInit"
	KeyAdmin     = "Admin"
	KeyToken     = "Token"
	KeyDeadline  = "Deadline"
	KeyFinalized = "Final"
	KeyClaim     = "Claim"
	KeyDist      = "Dist"
)

// DayInLedgers assumes five seconds per ledger.
const DayInLedgers uint32 = 17280

// Policy holds the TTL and deadline constants of the storage model.
type Policy struct {
	DayInLedgers uint32
	// InstanceBump and InstanceThreshold drive the durable-tier bump applied on
	// every configuration write.
	InstanceBump      uint32
	InstanceThreshold uint32
	// HolderBump is the TTL every Claim and Dist entry gets on write. It must
	// exceed MaxDeadlineDays.
	HolderBump      uint32
	MinDeadlineDays uint32
	MaxDeadlineDays uint32
}

// DefaultPolicy returns the production constants.
func DefaultPolicy() Policy {
	return Policy{
		DayInLedgers:      DayInLedgers,
		InstanceBump:      31 * DayInLedgers,
		InstanceThreshold: 30 * DayInLedgers,
		HolderBump:        91 * DayInLedgers,
		MinDeadlineDays:   30,
		MaxDeadlineDays:   90,
	}
}

// Validate checks the policy is internally consistent.
func (p *Policy) Validate() error {
	if p.DayInLedgers == 0 {
		return fmt.Errorf("day in ledgers must be positive")
	}
	if p.InstanceThreshold > p.InstanceBump {
		return fmt.Errorf("instance threshold %d exceeds bump %d", p.InstanceThreshold, p.InstanceBump)
	}
	if p.MinDeadlineDays > p.MaxDeadlineDays {
		return fmt.Errorf("deadline window [%d, %d] is empty", p.MinDeadlineDays, p.MaxDeadlineDays)
	}
	if uint64(p.HolderBump) <= uint64(p.MaxDeadlineDays)*uint64(p.DayInLedgers) {
		return fmt.Errorf("holder bump %d does not outlive the latest deadline", p.HolderBump)
	}
	return nil
}

// DeadlineWindow returns the inclusive range of valid deadlines for a
// distribution initialized at now.
func (p Policy) DeadlineWindow(now domain.Height) (lo, hi uint64) {
	day := uint64(p.DayInLedgers)
	return uint64(now) + uint64(p.MinDeadlineDays)*day, uint64(now) + uint64(p.MaxDeadlineDays)*day
}

// Config is the durable configuration of a distribution.
type Config struct {
	Token     domain.Address `json:"token"`
	Admin     domain.Address `json:"admin"`
	Deadline  domain.Height  `json:"deadline"`
	Finalized bool           `json:"finalized"`
}

// Expired reports whether the claim window has closed at h.
func (c Config) Expired(h domain.Height) bool {
	return h > c.Deadline
}

// reader reads distributor state from any view.
type reader struct {
	view     domain.TransactionView
	contract domain.Address
}

func (r reader) symbol(name string) domain.Key {
	return domain.SymbolKey(r.contract, name)
}

func (r reader) holder(name string, user domain.Address) domain.Key {
	return domain.HolderKey(r.contract, name, user)
}

func (r reader) initialized() bool {
	_, ok := r.view.Get(domain.TierDurable, r.symbol(KeyIsInit))
	return ok
}

func (r reader) finalized() bool {
	_, ok := r.view.Get(domain.TierDurable, r.symbol(KeyFinalized))
	return ok
}

func (r reader) address(name string) (domain.Address, error) {
	addr, ok, err := core.Load[domain.Address](r.view, domain.TierDurable, r.symbol(name))
	if err != nil {
		return domain.Address{}, err
	}
	if !ok {
		return domain.Address{}, fmt.Errorf("%s missing: %w", name, domain.ErrInternal)
	}
	return addr, nil
}

func (r reader) deadline() (domain.Height, error) {
	h, ok, err := core.Load[domain.Height](r.view, domain.TierDurable, r.symbol(KeyDeadline))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s missing: %w", KeyDeadline, domain.ErrInternal)
	}
	return h, nil
}

// config loads the configuration, failing with ErrNotInitialized before
// initialize has run.
func (r reader) config() (Config, error) {
	if !r.initialized() {
		return Config{}, ErrNotInitialized
	}
	var cfg Config
	var err error
	if cfg.Token, err = r.address(KeyToken); err != nil {
		return Config{}, err
	}
	if cfg.Admin, err = r.address(KeyAdmin); err != nil {
		return Config{}, err
	}
	if cfg.Deadline, err = r.deadline(); err != nil {
		return Config{}, err
	}
	cfg.Finalized = r.finalized()
	return cfg, nil
}

func (r reader) claimed(user domain.Address) bool {
	_, ok := r.view.Get(domain.TierExpiring, r.holder(KeyClaim, user))
	return ok
}

// allocation returns the amount owed to user; no allocation reads as zero.
func (r reader) allocation(user domain.Address) (domain.Amount, error) {
	amount, _, err := core.Load[domain.Amount](r.view, domain.TierExpiring, r.holder(KeyDist, user))
	return amount, err
}

// writer mutates distributor state within one transaction.
type writer struct {
	reader
	tx     domain.Transaction
	policy Policy
}

func newWriter(env *core.Env, policy Policy) writer {
	tx := env.Tx()
	return writer{reader: reader{view: tx, contract: env.Contract()}, tx: tx, policy: policy}
}

func (w writer) setFlag(name string) error {
	return core.Save(w.tx, domain.TierDurable, w.symbol(name), true)
}

func (w writer) setAddress(name string, addr domain.Address) error {
	return core.Save(w.tx, domain.TierDurable, w.symbol(name), addr)
}

func (w writer) setDeadline(h domain.Height) error {
	return core.Save(w.tx, domain.TierDurable, w.symbol(KeyDeadline), h)
}

// extendInstance bumps every durable entry of the contract.
func (w writer) extendInstance() error {
	return w.tx.ExtendInstance(w.contract, w.policy.InstanceThreshold, w.policy.InstanceBump)
}

func (w writer) setHolder(name string, user domain.Address, v any) error {
	key := w.holder(name, user)
	if err := core.Save(w.tx, domain.TierExpiring, key, v); err != nil {
		return err
	}
	return w.tx.ExtendTTL(domain.TierExpiring, key, w.policy.HolderBump, w.policy.HolderBump)
}

func (w writer) setAllocation(user domain.Address, amount domain.Amount) error {
	return w.setHolder(KeyDist, user, amount)
}

func (w writer) setClaimed(user domain.Address) error {
	return w.setHolder(KeyClaim, user, true)
}
