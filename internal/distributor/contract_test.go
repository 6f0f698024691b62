package distributor

import (
	"context"
	"testing"

	"distributor/internal/core"
	"distributor/internal/infra/persistence/memory"
	"distributor/internal/logger"
	"distributor/internal/token"
	"distributor/pkg/domain"

	"github.com/stretchr/testify/require"
)

const day = domain.Height(DayInLedgers)

type fixture struct {
	t          *testing.T
	ctx        context.Context
	host       *core.Host
	sink       *core.MemorySink
	token      *token.Client
	dist       *Client
	tokenAdmin domain.Address
	admin      domain.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	distAddr := domain.NewAddress()
	engine := domain.NewRulesEngine()
	RegisterRules(engine, distAddr)
	sink := core.NewMemorySink(0)
	host, err := core.NewHost(core.HostConfig{
		Logger: logger.ForTest(),
		Store:  memory.NewStore(engine),
		Sinks:  []core.EventSink{sink},
	})
	require.NoError(t, err)
	impl, err := NewContract(DefaultPolicy(), token.Service{})
	require.NoError(t, err)

	f := &fixture{
		t:          t,
		ctx:        ctx,
		host:       host,
		sink:       sink,
		token:      token.NewClient(host, domain.NewAddress()),
		dist:       NewClient(host, distAddr, impl),
		tokenAdmin: domain.NewAddress(),
		admin:      domain.NewAddress(),
	}
	require.NoError(t, f.token.Deploy(ctx, f.tokenAdmin))
	// start away from zero so deadline arithmetic is relative
	f.advance(1000)
	return f
}

func (f *fixture) advance(ticks domain.Height) {
	f.t.Helper()
	_, err := f.host.Advance(f.ctx, uint32(ticks))
	require.NoError(f.t, err)
}

func (f *fixture) advanceTo(h domain.Height) {
	f.t.Helper()
	require.GreaterOrEqual(f.t, h, f.host.Height())
	f.advance(h - f.host.Height())
}

// setup initializes with deadline now+days, funds the contract, allocates and
// optionally finalizes.
func (f *fixture) setup(days domain.Height, funds domain.Amount, finalize bool, allocs ...Allocation) domain.Height {
	f.t.Helper()
	deadline := f.host.Height() + days*day
	require.NoError(f.t, f.dist.Initialize(f.ctx, f.token.Address(), f.admin, deadline))
	if funds > 0 {
		require.NoError(f.t, f.token.Mint(f.ctx, f.tokenAdmin, f.dist.Address(), funds))
	}
	if len(allocs) > 0 {
		require.NoError(f.t, f.dist.SetDistribution(f.ctx, f.admin, allocs))
	}
	if finalize {
		require.NoError(f.t, f.dist.Finalize(f.ctx, f.admin))
	}
	return deadline
}

func (f *fixture) balance(holder domain.Address) domain.Amount {
	f.t.Helper()
	b, err := f.token.Balance(f.ctx, holder)
	require.NoError(f.t, err)
	return b
}

func TestInitializeDeadlineBounds(t *testing.T) {
	cases := []struct {
		name   string
		offset func(now domain.Height) domain.Height
		err    error
	}{
		{"below window", func(now domain.Height) domain.Height { return now + 30*day - 1 }, ErrDeadlineOutOfRange},
		{"lower bound", func(now domain.Height) domain.Height { return now + 30*day }, nil},
		{"upper bound", func(now domain.Height) domain.Height { return now + 90*day }, nil},
		{"above window", func(now domain.Height) domain.Height { return now + 90*day + 1 }, ErrDeadlineOutOfRange},
		{"in the past", func(now domain.Height) domain.Height { return now - 1 }, ErrDeadlineOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			deadline := tc.offset(f.host.Height())
			err := f.dist.Initialize(f.ctx, f.token.Address(), f.admin, deadline)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				st, err := f.dist.Status(f.ctx)
				require.NoError(t, err)
				require.Equal(t, PhaseUninitialized, st.Phase)
				return
			}
			require.NoError(t, err)
			got, err := f.dist.GetDeadline(f.ctx)
			require.NoError(t, err)
			require.Equal(t, deadline, got)
		})
	}
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	f.setup(60, 0, false)

	other := domain.NewAddress()
	err := f.dist.Initialize(f.ctx, other, other, f.host.Height()+45*day)
	require.ErrorIs(t, err, domain.ErrAlreadyInit)
	// out-of-range deadline still reports AlreadyInitialized
	err = f.dist.Initialize(f.ctx, other, other, 0)
	require.ErrorIs(t, err, domain.ErrAlreadyInit)

	admin, err := f.dist.GetAdmin(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.admin, admin)
	tok, err := f.dist.GetToken(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.token.Address(), tok)
}

func TestInitializeRejectsZeroAddresses(t *testing.T) {
	f := newFixture(t)
	deadline := f.host.Height() + 60*day
	require.ErrorIs(t, f.dist.Initialize(f.ctx, domain.Address{}, f.admin, deadline), domain.ErrInvalidArgument)
	require.ErrorIs(t, f.dist.Initialize(f.ctx, f.token.Address(), domain.Address{}, deadline), domain.ErrInvalidArgument)
}

func TestOperationsBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	user := domain.NewAddress()

	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, f.admin, []Allocation{{User: user, Amount: 1}}), ErrNotInitialized)
	require.ErrorIs(t, f.dist.Finalize(f.ctx, f.admin), ErrNotInitialized)
	require.ErrorIs(t, f.dist.SetAdmin(f.ctx, f.admin, user), ErrNotInitialized)
	_, err := f.dist.Claim(f.ctx, user)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.dist.Refund(f.ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.dist.GetClaimed(f.ctx, user)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.dist.GetDeadline(f.ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.dist.GetAdmin(f.ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.dist.GetToken(f.ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = f.dist.GetAllocation(f.ctx, user)
	require.ErrorIs(t, err, ErrNotInitialized)

	st, err := f.dist.Status(f.ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseUninitialized, st.Phase)
	require.Equal(t, f.host.Height(), st.Height)
}

func TestAdminGating(t *testing.T) {
	f := newFixture(t)
	f.setup(60, 0, false)
	user := domain.NewAddress()
	stranger := domain.NewAddress()
	allocs := []Allocation{{User: user, Amount: 5}}

	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, stranger, allocs), domain.ErrUnauthorized)
	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, domain.Address{}, allocs), domain.ErrUnauthorized)
	require.ErrorIs(t, f.dist.Finalize(f.ctx, stranger), domain.ErrUnauthorized)
	require.ErrorIs(t, f.dist.SetAdmin(f.ctx, stranger, stranger), domain.ErrUnauthorized)

	require.NoError(t, f.dist.SetDistribution(f.ctx, f.admin, allocs))

	next := domain.NewAddress()
	require.NoError(t, f.dist.SetAdmin(f.ctx, f.admin, next))
	admin, err := f.dist.GetAdmin(f.ctx)
	require.NoError(t, err)
	require.Equal(t, next, admin)

	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, f.admin, allocs), domain.ErrUnauthorized)
	require.ErrorIs(t, f.dist.Finalize(f.ctx, f.admin), domain.ErrUnauthorized)
	require.ErrorIs(t, f.dist.SetAdmin(f.ctx, f.admin, f.admin), domain.ErrUnauthorized)

	require.ErrorIs(t, f.dist.SetAdmin(f.ctx, next, domain.Address{}), domain.ErrInvalidArgument)
	require.NoError(t, f.dist.Finalize(f.ctx, next))
	// rotation stays available after finalization
	require.NoError(t, f.dist.SetAdmin(f.ctx, next, f.admin))
}

func TestContractIsNeverItsOwnAdmin(t *testing.T) {
	f := newFixture(t)
	self := f.dist.Address()
	deadline := f.host.Height() + 60*day
	require.ErrorIs(t, f.dist.Initialize(f.ctx, f.token.Address(), self, deadline), domain.ErrInvalidArgument)

	f.setup(60, 10, false, Allocation{User: self, Amount: 10})
	require.ErrorIs(t, f.dist.SetAdmin(f.ctx, f.admin, self), domain.ErrInvalidArgument)
	admin, err := f.dist.GetAdmin(f.ctx)
	require.NoError(t, err)
	require.Equal(t, f.admin, admin)

	// without a signer the contract address authorizes nothing
	stranger := domain.NewAddress()
	require.ErrorIs(t, f.dist.SetAdmin(f.ctx, domain.Address{}, stranger), domain.ErrUnauthorized)
	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, stranger, []Allocation{{User: stranger, Amount: 5}}), domain.ErrUnauthorized)

	require.NoError(t, f.dist.Finalize(f.ctx, f.admin))
	_, err = f.dist.ClaimAs(f.ctx, domain.Address{}, self)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	require.Equal(t, domain.Amount(10), f.balance(self))
}

func TestSetDistributionChecksAuthBeforeFinalized(t *testing.T) {
	f := newFixture(t)
	f.setup(60, 0, true)
	allocs := []Allocation{{User: domain.NewAddress(), Amount: 5}}
	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, domain.NewAddress(), allocs), domain.ErrUnauthorized)
	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, f.admin, allocs), ErrAlreadyFinalized)
}

func TestConfigurationFreeze(t *testing.T) {
	f := newFixture(t)
	user := domain.NewAddress()
	f.setup(60, 10, true, Allocation{User: user, Amount: 10})

	require.ErrorIs(t, f.dist.SetDistribution(f.ctx, f.admin, []Allocation{{User: user, Amount: 99}}), ErrAlreadyFinalized)
	require.ErrorIs(t, f.dist.Finalize(f.ctx, f.admin), ErrAlreadyFinalized)

	amount, err := f.dist.GetAllocation(f.ctx, user)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(10), amount)

	st, err := f.dist.Status(f.ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseFinalized, st.Phase)
	require.False(t, st.Expired)
}

func TestSetDistributionRejectsZeroRecipient(t *testing.T) {
	f := newFixture(t)
	f.setup(60, 0, false)
	user := domain.NewAddress()
	err := f.dist.SetDistribution(f.ctx, f.admin, []Allocation{{User: user, Amount: 3}, {Amount: 4}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	amount, err := f.dist.GetAllocation(f.ctx, user)
	require.NoError(t, err)
	require.Zero(t, amount, "the whole batch is rolled back")
}

func TestAllocationOverwrite(t *testing.T) {
	f := newFixture(t)
	a := domain.NewAddress()
	f.setup(60, 100, false, Allocation{User: a, Amount: 10})
	require.NoError(t, f.dist.SetDistribution(f.ctx, f.admin, []Allocation{{User: a, Amount: 25}}))
	// later entries in one batch win too
	require.NoError(t, f.dist.SetDistribution(f.ctx, f.admin, []Allocation{{User: a, Amount: 30}, {User: a, Amount: 40}}))
	require.NoError(t, f.dist.Finalize(f.ctx, f.admin))

	amount, err := f.dist.Claim(f.ctx, a)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(40), amount)
	require.Equal(t, domain.Amount(40), f.balance(a))
	require.Equal(t, domain.Amount(60), f.balance(f.dist.Address()))
}

func TestClaimIdempotence(t *testing.T) {
	f := newFixture(t)
	a := domain.NewAddress()
	f.setup(60, 100, true, Allocation{User: a, Amount: 10})

	amount, err := f.dist.Claim(f.ctx, a)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(10), amount)

	_, err = f.dist.Claim(f.ctx, a)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.Equal(t, domain.Amount(10), f.balance(a))

	claimed, err := f.dist.GetClaimed(f.ctx, a)
	require.NoError(t, err)
	require.True(t, claimed)

	events := f.sink.Events(TopicClaim)
	require.Len(t, events, 1)
	require.Equal(t, f.dist.Address(), events[0].Contract)
	require.Equal(t, a, events[0].Key)
	require.Equal(t, domain.Amount(10), events[0].Payload)
}

func TestClaimRequiresRecipientAuth(t *testing.T) {
	f := newFixture(t)
	a := domain.NewAddress()
	f.setup(60, 100, true, Allocation{User: a, Amount: 10})

	_, err := f.dist.ClaimAs(f.ctx, f.admin, a)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	claimed, err := f.dist.GetClaimed(f.ctx, a)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestClaimErrorPrecedence(t *testing.T) {
	t.Run("not finalized wins over everything", func(t *testing.T) {
		f := newFixture(t)
		deadline := f.setup(30, 0, false)
		f.advanceTo(deadline + 1)
		_, err := f.dist.Claim(f.ctx, domain.NewAddress())
		require.ErrorIs(t, err, ErrNotFinalized)
	})
	t.Run("already claimed wins over deadline", func(t *testing.T) {
		f := newFixture(t)
		a := domain.NewAddress()
		deadline := f.setup(30, 10, true, Allocation{User: a, Amount: 10})
		_, err := f.dist.Claim(f.ctx, a)
		require.NoError(t, err)
		f.advanceTo(deadline + 1)
		_, err = f.dist.Claim(f.ctx, a)
		require.ErrorIs(t, err, ErrAlreadyClaimed)
	})
	t.Run("deadline wins over missing allocation", func(t *testing.T) {
		f := newFixture(t)
		deadline := f.setup(30, 10, true)
		f.advanceTo(deadline + 1)
		_, err := f.dist.Claim(f.ctx, domain.NewAddress())
		require.ErrorIs(t, err, ErrDeadlinePassed)
	})
	t.Run("missing allocation", func(t *testing.T) {
		f := newFixture(t)
		f.setup(30, 10, true)
		_, err := f.dist.Claim(f.ctx, domain.NewAddress())
		require.ErrorIs(t, err, ErrNoDistribution)
	})
	t.Run("zero and negative allocations", func(t *testing.T) {
		f := newFixture(t)
		zero, negative := domain.NewAddress(), domain.NewAddress()
		f.setup(30, 10, true, Allocation{User: zero}, Allocation{User: negative, Amount: -5})
		_, err := f.dist.Claim(f.ctx, zero)
		require.ErrorIs(t, err, ErrNoDistribution)
		_, err = f.dist.Claim(f.ctx, negative)
		require.ErrorIs(t, err, ErrNoDistribution)
	})
}

func TestClaimRollsBackWhenTransferFails(t *testing.T) {
	f := newFixture(t)
	a := domain.NewAddress()
	f.setup(60, 5, true, Allocation{User: a, Amount: 10})

	_, err := f.dist.Claim(f.ctx, a)
	require.ErrorIs(t, err, token.ErrBalance)

	claimed, err := f.dist.GetClaimed(f.ctx, a)
	require.NoError(t, err)
	require.False(t, claimed, "claim record is discarded with the failed transfer")
	require.Empty(t, f.sink.Events(TopicClaim))

	require.NoError(t, f.token.Mint(f.ctx, f.tokenAdmin, f.dist.Address(), 5))
	amount, err := f.dist.Claim(f.ctx, a)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(10), amount)
}

func TestTemporalExclusivity(t *testing.T) {
	f := newFixture(t)
	a, b := domain.NewAddress(), domain.NewAddress()
	deadline := f.setup(30, 30, true, Allocation{User: a, Amount: 10}, Allocation{User: b, Amount: 20})

	f.advanceTo(deadline)
	_, err := f.dist.Refund(f.ctx)
	require.ErrorIs(t, err, ErrDeadlineNotPassed)
	amount, err := f.dist.Claim(f.ctx, a)
	require.NoError(t, err, "claims are accepted at the deadline itself")
	require.Equal(t, domain.Amount(10), amount)

	f.advance(1)
	_, err = f.dist.Claim(f.ctx, b)
	require.ErrorIs(t, err, ErrDeadlinePassed)
	refunded, err := f.dist.Refund(f.ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(20), refunded)

	st, err := f.dist.Status(f.ctx)
	require.NoError(t, err)
	require.True(t, st.Expired)
}

func TestRefundDoesNotRequireFinalization(t *testing.T) {
	f := newFixture(t)
	deadline := f.setup(30, 7, false)
	f.advanceTo(deadline + 1)
	refunded, err := f.dist.Refund(f.ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(7), refunded)
	require.Equal(t, domain.Amount(7), f.balance(f.admin))
}

func TestEndToEnd(t *testing.T) {
	f := newFixture(t)
	a, b, c := domain.NewAddress(), domain.NewAddress(), domain.NewAddress()
	deadline := f.setup(90, 60, false)
	require.NoError(t, f.dist.SetDistribution(f.ctx, f.admin, []Allocation{
		{User: a, Amount: 10},
		{User: b, Amount: 20},
		{User: c, Amount: 30},
	}))
	require.NoError(t, f.dist.Finalize(f.ctx, f.admin))

	f.advance(10 * day)
	amount, err := f.dist.Claim(f.ctx, a)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(10), amount)
	require.Equal(t, domain.Amount(10), f.balance(a))
	claimed, err := f.dist.GetClaimed(f.ctx, a)
	require.NoError(t, err)
	require.True(t, claimed)

	f.advanceTo(deadline + 1)
	_, err = f.dist.Claim(f.ctx, b)
	require.ErrorIs(t, err, ErrDeadlinePassed)

	refunded, err := f.dist.Refund(f.ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Amount(50), refunded)
	require.Equal(t, domain.Amount(50), f.balance(f.admin))
	require.Zero(t, f.balance(f.dist.Address()))

	refunded, err = f.dist.Refund(f.ctx)
	require.NoError(t, err)
	require.Zero(t, refunded)
}

func TestNewContractValidates(t *testing.T) {
	_, err := NewContract(DefaultPolicy(), nil)
	require.ErrorContains(t, err, "token service is required")

	p := DefaultPolicy()
	p.HolderBump = 90 * DayInLedgers
	_, err = NewContract(p, token.Service{})
	require.ErrorContains(t, err, "does not outlive")
}

func TestErrorsAreUnique(t *testing.T) {
	seen := map[uint32]string{}
	for _, e := range Errors() {
		prev, dup := seen[e.Code]
		require.False(t, dup, "code %d used by %s and %s", e.Code, prev, e.Name)
		seen[e.Code] = e.Name
	}
}
