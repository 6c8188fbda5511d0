package core

import (
	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

// SignatureLength is the number of bytes in a recoverable signature:
// 64 bytes of r followed by s, then one recovery id byte.
const SignatureLength = 65

// Signature is a recoverable secp256k1 ECDSA signature in r || s || v
// layout. Both recovery id conventions are accepted: v may be 0/1 or
// 27/28.
type Signature [SignatureLength]byte

// SignatureFromBytes converts a raw 65 byte slice into a signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLength {
		return sig, xerrors.Errorf("expected %d signature bytes, got %d: %w", SignatureLength, len(b), ErrInvalidSignature)
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	copy(out, s[:])
	return out
}

// Keccak256 computes the legacy Keccak-256 digest of the input.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// RecoverAddress recovers the signing address from a signature over the
// payload bytes. The message digest is the Keccak-256 hash of the
// payload and the address is derived from the recovered public key the
// Ethereum way.
func RecoverAddress(sig Signature, payload []byte) (Address, error) {
	var addr Address

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return addr, xerrors.Errorf("recovery id %d out of range: %w", sig[64], ErrInvalidSignature)
	}

	// The compact format expected below leads with a header byte of
	// 27 + recovery id followed by r || s.
	compact := make([]byte, SignatureLength)
	compact[0] = 27 + v
	copy(compact[1:], sig[:64])

	digest := Keccak256(payload)
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return addr, xerrors.Errorf("recovering public key: %w", ErrInvalidSignature)
	}

	return pubkeyAddress(pub), nil
}

// Sign produces a recoverable signature over the Keccak-256 digest of
// the payload in r || s || v layout with v in {0, 1}.
func Sign(key *secp256k1.PrivateKey, payload []byte) Signature {
	digest := Keccak256(payload)
	compact := ecdsa.SignCompact(key, digest, false)

	var sig Signature
	copy(sig[:64], compact[1:])
	sig[64] = compact[0] - 27
	return sig
}

// SignerAddress derives the address for a private key.
func SignerAddress(key *secp256k1.PrivateKey) Address {
	return pubkeyAddress(key.PubKey())
}

func pubkeyAddress(pub *secp256k1.PublicKey) Address {
	var addr Address
	uncompressed := pub.SerializeUncompressed()
	digest := Keccak256(uncompressed[1:])
	copy(addr[:], digest[12:])
	return addr
}
