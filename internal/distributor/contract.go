// Package distributor implements a one-time, deadline-bounded token
// distribution. The admin registers allocations, finalizes them, and
// recipients claim until the deadline; whatever is left afterwards refunds to
// the admin.
//
// A distribution moves through Uninitialized, Configuring and Finalized.
// Expiry is not a state: it is the predicate height > deadline.
package distributor

import (
	"fmt"

	"distributor/internal/core"
	"distributor/pkg/domain"
)

// TokenService is the token capability the distributor pays out through. Calls
// run inside the caller's invocation, so a failed transfer aborts it.
type TokenService interface {
	Transfer(env *core.Env, token, from, to domain.Address, amount domain.Amount) error
	Balance(env *core.Env, token, holder domain.Address) (domain.Amount, error)
}

// Allocation is the amount owed to one recipient.
type Allocation struct {
	User   domain.Address `json:"user"`
	Amount domain.Amount  `json:"amount"`
}

// Contract carries the lifecycle operations. It holds no ledger state; every
// operation reads and writes through the env it is given.
type Contract struct {
	policy Policy
	tokens TokenService
}

// NewContract builds a contract with policy paying out through tokens.
func NewContract(policy Policy, tokens TokenService) (*Contract, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("distributor policy: %w", err)
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service is required")
	}
	return &Contract{policy: policy, tokens: tokens}, nil
}

// Policy returns the storage policy in use.
func (c *Contract) Policy() Policy { return c.policy }

// Initialize records the configuration. It needs no authorization; whoever
// deploys the contract initializes it.
func (c *Contract) Initialize(env *core.Env, token, admin domain.Address, deadline domain.Height) error {
	w := newWriter(env, c.policy)
	if w.initialized() {
		return domain.ErrAlreadyInit
	}
	if token.IsZero() || admin.IsZero() || admin == env.Contract() {
		return domain.ErrInvalidArgument
	}
	lo, hi := c.policy.DeadlineWindow(env.Height())
	if d := uint64(deadline); d < lo || d > hi {
		return ErrDeadlineOutOfRange
	}
	if err := w.setAddress(KeyToken, token); err != nil {
		return err
	}
	if err := w.setDeadline(deadline); err != nil {
		return err
	}
	if err := w.setAddress(KeyAdmin, admin); err != nil {
		return err
	}
	if err := w.setFlag(KeyIsInit); err != nil {
		return err
	}
	return w.extendInstance()
}

// requireAdmin loads the configuration and checks the stored admin authorized
// the invocation.
func (c *Contract) requireAdmin(env *core.Env, w writer) (Config, error) {
	cfg, err := w.config()
	if err != nil {
		return Config{}, err
	}
	if err := env.RequireAuth(cfg.Admin); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDistribution overwrites the allocation of every listed recipient. Later
// entries for the same recipient win. Admin only, before finalization.
func (c *Contract) SetDistribution(env *core.Env, entries []Allocation) error {
	w := newWriter(env, c.policy)
	cfg, err := c.requireAdmin(env, w)
	if err != nil {
		return err
	}
	if cfg.Finalized {
		return ErrAlreadyFinalized
	}
	if err := w.extendInstance(); err != nil {
		return err
	}
	for _, e := range entries {
		if e.User.IsZero() {
			return domain.ErrInvalidArgument
		}
		if err := w.setAllocation(e.User, e.Amount); err != nil {
			return err
		}
	}
	return nil
}

// Finalize freezes the allocations and opens claiming. Admin only, once.
func (c *Contract) Finalize(env *core.Env) error {
	w := newWriter(env, c.policy)
	cfg, err := c.requireAdmin(env, w)
	if err != nil {
		return err
	}
	if cfg.Finalized {
		return ErrAlreadyFinalized
	}
	if err := w.setFlag(KeyFinalized); err != nil {
		return err
	}
	return w.extendInstance()
}

// SetAdmin replaces the admin. Admin only, in any phase.
func (c *Contract) SetAdmin(env *core.Env, admin domain.Address) error {
	w := newWriter(env, c.policy)
	if _, err := c.requireAdmin(env, w); err != nil {
		return err
	}
	if admin.IsZero() || admin == env.Contract() {
		return domain.ErrInvalidArgument
	}
	if err := w.setAddress(KeyAdmin, admin); err != nil {
		return err
	}
	return w.extendInstance()
}

// Claim pays user their allocation. The checks run in a fixed order so the
// reported error is deterministic when several apply: NotFinalized,
// AlreadyClaimed, DeadlinePassed, NoDistribution.
//
// The claim record is written before the transfer. A failed transfer aborts
// the invocation, which discards the record with it.
func (c *Contract) Claim(env *core.Env, user domain.Address) (domain.Amount, error) {
	w := newWriter(env, c.policy)
	cfg, err := w.config()
	if err != nil {
		return 0, err
	}
	if err := env.RequireAuth(user); err != nil {
		return 0, err
	}
	if !cfg.Finalized {
		return 0, ErrNotFinalized
	}
	if w.claimed(user) {
		return 0, ErrAlreadyClaimed
	}
	if cfg.Expired(env.Height()) {
		return 0, ErrDeadlinePassed
	}
	if err := w.extendInstance(); err != nil {
		return 0, err
	}
	amount, err := w.allocation(user)
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, ErrNoDistribution
	}
	if err := w.setClaimed(user); err != nil {
		return 0, err
	}
	if err := c.tokens.Transfer(env, cfg.Token, env.Contract(), user, amount); err != nil {
		return 0, err
	}
	publishClaim(env, user, amount)
	return amount, nil
}

// Refund sends the contract's remaining token balance to the admin once the
// deadline has passed. Anyone may call it; a zero balance transfers nothing.
func (c *Contract) Refund(env *core.Env) (domain.Amount, error) {
	w := newWriter(env, c.policy)
	cfg, err := w.config()
	if err != nil {
		return 0, err
	}
	if !cfg.Expired(env.Height()) {
		return 0, ErrDeadlineNotPassed
	}
	balance, err := c.tokens.Balance(env, cfg.Token, env.Contract())
	if err != nil {
		return 0, err
	}
	if balance > 0 {
		if err := c.tokens.Transfer(env, cfg.Token, env.Contract(), cfg.Admin, balance); err != nil {
			return 0, err
		}
	}
	return balance, nil
}
