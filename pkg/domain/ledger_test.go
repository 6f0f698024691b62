package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	a := NewAddress()
	require.False(t, a.IsZero())
	parsed, err := ParseAddress(a.String())
	require.NoError(t, err)
	require.Equal(t, a, parsed)

	raw, err := json.Marshal(map[string]Address{"admin": a})
	require.NoError(t, err)
	require.JSONEq(t, `{"admin":"`+a.String()+`"}`, string(raw))

	var decoded map[string]Address
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, a, decoded["admin"])
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "0OIl", "3mJr7AoUXx2Wqd"} {
		_, err := ParseAddress(in)
		require.ErrorIs(t, err, ErrInvalidAddress, in)
	}
	require.Panics(t, func() { MustParseAddress("") })
}

func TestContractAddressIsStable(t *testing.T) {
	require.Equal(t, ContractAddress("distributor"), ContractAddress("distributor"))
	require.NotEqual(t, ContractAddress("distributor"), ContractAddress("token"))
	require.False(t, ContractAddress("").IsZero())
}

func TestKeyString(t *testing.T) {
	contract := Address{0xC0}
	holder := Address{0xA1}
	require.Equal(t, "Admin", SymbolKey(contract, "Admin").String())
	require.False(t, SymbolKey(contract, "Admin").Tagged())
	k := HolderKey(contract, "Dist", holder)
	require.True(t, k.Tagged())
	require.Equal(t, "Dist("+holder.String()+")", k.String())
}

func TestEntryTTL(t *testing.T) {
	e := Entry{Value: json.RawMessage(`true`), LiveUntil: 100}
	require.True(t, e.Live(100))
	require.False(t, e.Live(101))
	require.Equal(t, uint32(40), e.TTL(60))
	require.Zero(t, e.TTL(101))

	cp := e.Clone()
	cp.Value[0] = 'x'
	require.Equal(t, `true`, string(e.Value))
}

func TestChangeValueChanged(t *testing.T) {
	before := Entry{Value: json.RawMessage(`1`), LiveUntil: 10}
	bumped := Entry{Value: json.RawMessage(`1`), LiveUntil: 20}
	written := Entry{Value: json.RawMessage(`2`), LiveUntil: 10}

	require.True(t, Change{After: &written}.ValueChanged())
	require.False(t, Change{Before: &before, After: &bumped}.ValueChanged())
	require.True(t, Change{Before: &before, After: &written}.ValueChanged())
}

func TestTierValid(t *testing.T) {
	require.True(t, TierDurable.Valid())
	require.True(t, TierExpiring.Valid())
	require.False(t, Tier("temporary").Valid())
}
