package seal

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ActivationMessage is the fixed message a wallet signs to derive its inbox
// encryption key pair. Every implementation must sign exactly these bytes;
// a different message yields a different key and an unreadable inbox.
const ActivationMessage = "void/v1: derive inbox encryption key from this signature"

// Deterministic-derivation constants (mode B). Fixed points, like the
// sealing constants above.
const (
	kdfSaltInbox = "void/inbox/salt/v1"
	kdfInfoInbox = "void/inbox/key/v1"

	// derivationAttempts bounds the rejection-sampling loop. Each attempt
	// fails with probability ~2^-32 on P-256, so exhausting the budget
	// indicates a broken KDF, not bad luck.
	derivationAttempts = 64
)

// ErrDerivation reports that deterministic key derivation exhausted its
// rejection-sampling attempts. Practically unreachable; treat an
// occurrence as a programming-contract violation.
var ErrDerivation = errors.New("seal: key derivation exhausted rejection sampling")

// A KeyPair is a recipient encryption key pair.
//
// The private half exists only in memory. For explicitly generated pairs
// (mode A) the caller is solely responsible for custody: the protocol has
// no recovery path if it is lost. Signature-derived pairs (mode B) are
// recomputable at any time from a fresh signature over ActivationMessage
// and must never be persisted.
type KeyPair struct {
	priv *ecdh.PrivateKey
}

// GenerateRecipientKey creates a fresh long-lived key pair (mode A).
func GenerateRecipientKey() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal: generate key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// DeriveRecipientKey deterministically derives a key pair from signature
// bytes (mode B). The signature bytes are hashed to fixed-width entropy,
// expanded through HKDF-SHA256 with the protocol-constant salt and context,
// and rejection-sampled against the P-256 group order until a valid private
// scalar appears. The same signature always yields the same pair.
func DeriveRecipientKey(signature []byte) (*KeyPair, error) {
	if len(signature) == 0 {
		return nil, errors.New("seal: empty signature")
	}
	entropy := sha256.Sum256(signature)
	r := hkdf.New(sha256.New, entropy[:], []byte(kdfSaltInbox), []byte(kdfInfoInbox))

	candidate := make([]byte, PrivateKeySize)
	for i := 0; i < derivationAttempts; i++ {
		if _, err := io.ReadFull(r, candidate); err != nil {
			return nil, fmt.Errorf("seal: key derivation: %w", err)
		}
		priv, err := ecdh.P256().NewPrivateKey(candidate)
		if err != nil {
			// Scalar out of [1, n-1]; draw the next candidate.
			continue
		}
		return &KeyPair{priv: priv}, nil
	}
	return nil, ErrDerivation
}

// ParsePrivateKey reconstructs a key pair from a raw 32-byte private
// scalar, as disclosed once by namespace creation.
func ParsePrivateKey(raw []byte) (*KeyPair, error) {
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("seal: invalid private key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// PublicKey returns the 65-byte uncompressed public point.
func (kp *KeyPair) PublicKey() []byte {
	return kp.priv.PublicKey().Bytes()
}

// PrivateKey returns the raw 32-byte private scalar. Callers handling this
// value own its custody; it must never be logged or stored by the protocol.
func (kp *KeyPair) PrivateKey() []byte {
	return kp.priv.Bytes()
}
