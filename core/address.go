package core

import (
	"encoding/hex"
	"strings"

	"golang.org/x/xerrors"
)

// AddressLength is the number of bytes in a publisher address.
const AddressLength = 20

// Address identifies a publisher. It is the rightmost twenty bytes of
// the Keccak-256 hash of the publisher's uncompressed public key with
// the format byte stripped.
type Address [AddressLength]byte

// ParseAddress decodes an address from its hex form. A leading "0x" is
// accepted and case is ignored.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, xerrors.Errorf("decoding address %q: %w", s, err)
	}
	if len(b) != AddressLength {
		return a, xerrors.Errorf("address %q: expected %d bytes, got %d", s, AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromBytes converts a raw twenty byte slice into an address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, xerrors.Errorf("expected %d address bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
