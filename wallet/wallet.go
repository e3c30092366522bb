// Package wallet provides the identity side of the protocol: Ed25519
// ledger identities, deterministic byte signing, and a local-first
// keystore for identity seeds.
//
// Signing is deliberately deterministic (Ed25519): the signature over the
// fixed inbox-activation message is the entropy source for the recipient's
// encryption key pair, so the same wallet must produce the same signature
// on every device.
package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// IdentitySize is the width of a ledger identity in bytes.
const IdentitySize = ed25519.PublicKeySize

// An Identity is a wallet's public ledger identity.
type Identity [IdentitySize]byte

// String returns the base58 form of the identity.
func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether id is the zero identity.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// ParseIdentity decodes a base58 identity string.
func ParseIdentity(s string) (Identity, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Identity{}, fmt.Errorf("wallet: invalid base58: %w", err)
	}
	if len(raw) != IdentitySize {
		return Identity{}, fmt.Errorf("wallet: expected %d bytes, got %d", IdentitySize, len(raw))
	}
	var id Identity
	copy(id[:], raw)
	return id, nil
}

// A Signer can sign arbitrary bytes on behalf of an identity. This is the
// "wallet provider" boundary: hardware wallets or remote signers slot in
// behind this interface.
type Signer interface {
	Identity() Identity
	Sign(message []byte) ([]byte, error)
}

// A KeyPair is an in-memory Ed25519 signing key.
type KeyPair struct {
	priv ed25519.PrivateKey
}

var _ Signer = (*KeyPair)(nil)

// NewKeyPair generates a fresh identity key.
func NewKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// FromSeed reconstructs a key pair from a 32-byte seed.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Identity returns the public identity for this key pair.
func (kp *KeyPair) Identity() Identity {
	var id Identity
	copy(id[:], kp.priv.Public().(ed25519.PublicKey))
	return id
}

// Sign signs message with the identity key. Ed25519 signatures are
// deterministic: the same message always yields the same signature.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	if kp == nil || kp.priv == nil {
		return nil, errors.New("wallet: missing private key")
	}
	return ed25519.Sign(kp.priv, message), nil
}

// Seed returns the 32-byte seed for keystore persistence.
func (kp *KeyPair) Seed() []byte {
	return kp.priv.Seed()
}

// Verify reports whether sig is a valid signature by id over message.
func Verify(id Identity, message, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(id[:]), message, sig)
}
