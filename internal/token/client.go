package token

import (
	"context"

	"distributor/internal/core"
	"distributor/pkg/domain"
)

// Service exposes the token to other contracts running in the same invocation.
type Service struct{}

// Transfer calls the token at contract on behalf of the calling frame.
func (Service) Transfer(env *core.Env, contract, from, to domain.Address, amount domain.Amount) error {
	return Transfer(env.Call(contract), from, to, amount)
}

// Balance reads holder's balance at contract within the calling frame's transaction.
func (Service) Balance(env *core.Env, contract, holder domain.Address) (domain.Amount, error) {
	return Balance(env.Tx(), contract, holder)
}

// Client submits top-level token invocations to a host.
type Client struct {
	host     *core.Host
	contract domain.Address
}

// NewClient returns a client for the token deployed at contract.
func NewClient(host *core.Host, contract domain.Address) *Client {
	return &Client{host: host, contract: contract}
}

// Address returns the token contract address.
func (c *Client) Address() domain.Address { return c.contract }

// Deploy records admin as the token admin.
func (c *Client) Deploy(ctx context.Context, admin domain.Address) error {
	_, err := c.host.Invoke(ctx, core.Invocation{Contract: c.contract, Function: "token.deploy", Auth: []domain.Address{admin}}, func(env *core.Env) error {
		return Deploy(env, admin)
	})
	return err
}

// Mint credits to; signer must be the token admin.
func (c *Client) Mint(ctx context.Context, signer, to domain.Address, amount domain.Amount) error {
	_, err := c.host.Invoke(ctx, core.Invocation{Contract: c.contract, Function: "token.mint", Auth: []domain.Address{signer}}, func(env *core.Env) error {
		return Mint(env, to, amount)
	})
	return err
}

// Transfer moves amount from from, which signs the invocation.
func (c *Client) Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) error {
	_, err := c.host.Invoke(ctx, core.Invocation{Contract: c.contract, Function: "token.transfer", Auth: []domain.Address{from}}, func(env *core.Env) error {
		return Transfer(env, from, to, amount)
	})
	return err
}

// Balance reads holder's balance.
func (c *Client) Balance(ctx context.Context, holder domain.Address) (domain.Amount, error) {
	var out domain.Amount
	err := c.host.View(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = Balance(v, c.contract, holder)
		return err
	})
	return out, err
}
