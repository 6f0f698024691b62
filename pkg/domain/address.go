package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressSize is the length in bytes of an on-ledger identity.
const AddressSize = 32

// ErrInvalidAddress is returned when an address string cannot be decoded.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account or contract on the ledger. It renders as base58.
type Address [AddressSize]byte

// NewAddress returns a random address. Used for contract deployment and tests.
func NewAddress() Address {
	var a Address
	if _, err := rand.Read(a[:]); err != nil {
		panic(fmt.Errorf("address: read random: %w", err))
	}
	return a
}

// ContractAddress derives a stable contract address from a deployment label,
// so separate processes sharing a store agree on where a contract lives.
func ContractAddress(label string) Address {
	return Address(sha256.Sum256([]byte("contract:" + label)))
}

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != AddressSize {
		return Address{}, fmt.Errorf("%w: decoded length %d, want %d", ErrInvalidAddress, len(raw), AddressSize)
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is ParseAddress that panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the base58 form of the address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
