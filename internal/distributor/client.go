package distributor

import (
	"context"

	"distributor/internal/core"
	"distributor/pkg/domain"
)

// Client submits distributor invocations to a host, one transaction per call.
type Client struct {
	host     *core.Host
	contract domain.Address
	impl     *Contract
}

// NewClient returns a client for the distribution deployed at contract.
func NewClient(host *core.Host, contract domain.Address, impl *Contract) *Client {
	return &Client{host: host, contract: contract, impl: impl}
}

// Address returns the distributor contract address.
func (c *Client) Address() domain.Address { return c.contract }

func (c *Client) invoke(ctx context.Context, fn string, auth []domain.Address, body func(env *core.Env) error) error {
	_, err := c.host.Invoke(ctx, core.Invocation{Contract: c.contract, Function: "distributor." + fn, Auth: auth}, body)
	return err
}

func (c *Client) view(ctx context.Context, fn func(domain.TransactionView) error) error {
	return c.host.View(ctx, fn)
}

func signers(addrs ...domain.Address) []domain.Address {
	out := make([]domain.Address, 0, len(addrs))
	for _, a := range addrs {
		if !a.IsZero() {
			out = append(out, a)
		}
	}
	return out
}

// Initialize sets up the distribution.
func (c *Client) Initialize(ctx context.Context, token, admin domain.Address, deadline domain.Height) error {
	return c.invoke(ctx, "initialize", nil, func(env *core.Env) error {
		return c.impl.Initialize(env, token, admin, deadline)
	})
}

// SetDistribution writes allocations; signer must be the admin.
func (c *Client) SetDistribution(ctx context.Context, signer domain.Address, entries []Allocation) error {
	return c.invoke(ctx, "set_distribution", signers(signer), func(env *core.Env) error {
		return c.impl.SetDistribution(env, entries)
	})
}

// Finalize freezes the allocations; signer must be the admin.
func (c *Client) Finalize(ctx context.Context, signer domain.Address) error {
	return c.invoke(ctx, "finalize", signers(signer), func(env *core.Env) error {
		return c.impl.Finalize(env)
	})
}

// SetAdmin rotates the admin; signer must be the current admin.
func (c *Client) SetAdmin(ctx context.Context, signer, admin domain.Address) error {
	return c.invoke(ctx, "set_admin", signers(signer), func(env *core.Env) error {
		return c.impl.SetAdmin(env, admin)
	})
}

// Claim pays out user's allocation; user signs.
func (c *Client) Claim(ctx context.Context, user domain.Address) (domain.Amount, error) {
	return c.ClaimAs(ctx, user, user)
}

// ClaimAs submits a claim for user signed by signer.
func (c *Client) ClaimAs(ctx context.Context, signer, user domain.Address) (domain.Amount, error) {
	var out domain.Amount
	err := c.invoke(ctx, "claim", signers(signer), func(env *core.Env) error {
		amount, err := c.impl.Claim(env, user)
		out = amount
		return err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

// Refund returns the remaining balance to the admin after the deadline.
func (c *Client) Refund(ctx context.Context) (domain.Amount, error) {
	var out domain.Amount
	err := c.invoke(ctx, "refund", nil, func(env *core.Env) error {
		amount, err := c.impl.Refund(env)
		out = amount
		return err
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

// GetClaimed reports whether user has claimed.
func (c *Client) GetClaimed(ctx context.Context, user domain.Address) (bool, error) {
	var out bool
	err := c.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = GetClaimed(v, c.contract, user)
		return err
	})
	return out, err
}

// GetDeadline returns the claim deadline.
func (c *Client) GetDeadline(ctx context.Context) (domain.Height, error) {
	var out domain.Height
	err := c.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = GetDeadline(v, c.contract)
		return err
	})
	return out, err
}

// GetAdmin returns the admin.
func (c *Client) GetAdmin(ctx context.Context) (domain.Address, error) {
	var out domain.Address
	err := c.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = GetAdmin(v, c.contract)
		return err
	})
	return out, err
}

// GetToken returns the distributed token.
func (c *Client) GetToken(ctx context.Context) (domain.Address, error) {
	var out domain.Address
	err := c.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = GetToken(v, c.contract)
		return err
	})
	return out, err
}

// GetAllocation returns user's allocation.
func (c *Client) GetAllocation(ctx context.Context, user domain.Address) (domain.Amount, error) {
	var out domain.Amount
	err := c.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = GetAllocation(v, c.contract, user)
		return err
	})
	return out, err
}

// Status summarizes the distribution.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.view(ctx, func(v domain.TransactionView) error {
		var err error
		out, err = GetStatus(v, c.contract)
		return err
	})
	return out, err
}
