// Package token implements a minimal fungible token contract: an admin mints,
// holders transfer, and balances live in the token's durable tier.
package token

import (
	"fmt"
	"math"

	"distributor/internal/core"
	"distributor/pkg/domain"
)

// Token error codes.
var (
	ErrNegativeAmount = domain.ContractError{Code: 8, Name: "NegativeAmount"}
	ErrBalance        = domain.ContractError{Code: 10, Name: "Balance"}
	ErrOverflow       = domain.ContractError{Code: 12, Name: "Overflow"}
)

const (
	keyAdmin   = "Admin"
	keyBalance = "Balance"

	dayInLedgers  = 17280
	bumpAmount    = 31 * dayInLedgers
	bumpThreshold = bumpAmount - dayInLedgers
)

// TopicMint and TopicTransfer name the events the token publishes.
const (
	TopicMint     = "mint"
	TopicTransfer = "transfer"
)

func adminKey(contract domain.Address) domain.Key {
	return domain.SymbolKey(contract, keyAdmin)
}

func balanceKey(contract, holder domain.Address) domain.Key {
	return domain.HolderKey(contract, keyBalance, holder)
}

// Deploy records the token admin. A token is deployed once.
func Deploy(env *core.Env, admin domain.Address) error {
	if admin.IsZero() {
		return domain.ErrInvalidArgument
	}
	tx := env.Tx()
	key := adminKey(env.Contract())
	if _, ok := tx.Get(domain.TierDurable, key); ok {
		return domain.ErrAlreadyInit
	}
	if err := core.Save(tx, domain.TierDurable, key, admin); err != nil {
		return err
	}
	return tx.ExtendTTL(domain.TierDurable, key, bumpThreshold, bumpAmount)
}

// Admin returns the token admin.
func Admin(view domain.TransactionView, contract domain.Address) (domain.Address, error) {
	admin, ok, err := core.Load[domain.Address](view, domain.TierDurable, adminKey(contract))
	if err != nil {
		return domain.Address{}, err
	}
	if !ok {
		return domain.Address{}, fmt.Errorf("token %s not deployed: %w", contract, domain.ErrInternal)
	}
	return admin, nil
}

// Balance returns holder's balance; a holder never credited has zero.
func Balance(view domain.TransactionView, contract, holder domain.Address) (domain.Amount, error) {
	amount, _, err := core.Load[domain.Amount](view, domain.TierDurable, balanceKey(contract, holder))
	return amount, err
}

// Mint credits amount to to. Requires the token admin's authorization.
func Mint(env *core.Env, to domain.Address, amount domain.Amount) error {
	tx := env.Tx()
	admin, err := Admin(tx, env.Contract())
	if err != nil {
		return err
	}
	if err := env.RequireAuth(admin); err != nil {
		return err
	}
	if amount < 0 {
		return ErrNegativeAmount
	}
	if err := credit(env, to, amount); err != nil {
		return err
	}
	if err := tx.ExtendTTL(domain.TierDurable, adminKey(env.Contract()), bumpThreshold, bumpAmount); err != nil {
		return err
	}
	env.Publish(TopicMint, to, amount)
	return nil
}

// Transfer moves amount from from to to. Requires from's authorization.
func Transfer(env *core.Env, from, to domain.Address, amount domain.Amount) error {
	if err := env.RequireAuth(from); err != nil {
		return err
	}
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount == 0 {
		return nil
	}
	tx := env.Tx()
	balance, err := Balance(tx, env.Contract(), from)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrBalance
	}
	if err := setBalance(env, from, balance-amount); err != nil {
		return err
	}
	if err := credit(env, to, amount); err != nil {
		return err
	}
	env.Publish(TopicTransfer, from, amount)
	return nil
}

func credit(env *core.Env, holder domain.Address, amount domain.Amount) error {
	balance, err := Balance(env.Tx(), env.Contract(), holder)
	if err != nil {
		return err
	}
	if balance > math.MaxInt64-amount {
		return ErrOverflow
	}
	return setBalance(env, holder, balance+amount)
}

func setBalance(env *core.Env, holder domain.Address, amount domain.Amount) error {
	tx := env.Tx()
	key := balanceKey(env.Contract(), holder)
	if err := core.Save(tx, domain.TierDurable, key, amount); err != nil {
		return err
	}
	return tx.ExtendTTL(domain.TierDurable, key, bumpThreshold, bumpAmount)
}
