// Package seal implements the hybrid encryption engine used to deliver
// confidential payloads to a single designated recipient.
//
// Payloads are sealed with ECIES over NIST P-256: a fresh single-use key
// pair performs an ECDH agreement against the recipient's public key, the
// shared secret is expanded to an AES-256 key through HKDF-SHA256 with
// protocol-constant salt and context strings, and the plaintext is
// encrypted with AES-GCM. The ephemeral public key is bound into the
// authenticated data, so a packet cannot be re-attached to a different
// ephemeral key without failing authentication.
//
// The wire format and every derivation constant in this package are
// cross-implementation fixed points (see constants below).
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Wire format: ephemeral public key (65 bytes, uncompressed point) ||
// nonce (12 bytes) || ciphertext with GCM tag (variable).
const (
	PublicKeySize  = 65
	PrivateKeySize = 32
	NonceSize      = 12
	tagSize        = 16
	minPacketSize  = PublicKeySize + NonceSize + tagSize
)

// Protocol constants. Changing any of these breaks interoperability with
// every existing sealed payload and every previously derived inbox key.
const (
	// kdfSalt and kdfInfoSeal parameterize the HKDF expansion of an ECDH
	// shared secret into a symmetric key.
	kdfSalt     = "void/ecies/salt/v1"
	kdfInfoSeal = "void/ecies/key/v1"
)

var (
	// ErrAuthentication reports that a sealed packet failed its integrity
	// check: the ciphertext or nonce was tampered with, or the wrong
	// private key was supplied. Distinct from any transport or lookup
	// failure so callers can tell "wrong key" from "data unavailable".
	ErrAuthentication = errors.New("seal: authentication failed")

	// ErrTruncated reports a packet shorter than the fixed-width header.
	ErrTruncated = errors.New("seal: packet truncated")
)

// A Packet is one sealed payload.
type Packet struct {
	EphemeralKey []byte // 65-byte uncompressed P-256 point
	Nonce        []byte // 12-byte AES-GCM nonce
	Ciphertext   []byte // variable, includes the authentication tag
}

// Seal encrypts plaintext so that only the holder of the private half of
// recipientPub can recover it. The single-use private key is discarded
// before Seal returns; it is never persisted, transmitted, or logged.
func Seal(plaintext []byte, recipientPub []byte) (Packet, error) {
	pub, err := ecdh.P256().NewPublicKey(recipientPub)
	if err != nil {
		return Packet{}, fmt.Errorf("seal: invalid recipient key: %w", err)
	}

	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return Packet{}, fmt.Errorf("seal: generate ephemeral key: %w", err)
	}

	shared, err := ephemeral.ECDH(pub)
	if err != nil {
		return Packet{}, fmt.Errorf("seal: key agreement: %w", err)
	}

	aead, err := newAEAD(shared)
	if err != nil {
		return Packet{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Packet{}, fmt.Errorf("seal: nonce: %w", err)
	}

	ephemeralPub := ephemeral.PublicKey().Bytes()
	return Packet{
		EphemeralKey: ephemeralPub,
		Nonce:        nonce,
		Ciphertext:   aead.Seal(nil, nonce, plaintext, ephemeralPub),
	}, nil
}

// Unseal recovers the plaintext of a packet sealed for kp's public key.
// Returns ErrAuthentication if the packet was tampered with or kp is not
// the designated recipient.
func Unseal(p Packet, kp *KeyPair) ([]byte, error) {
	if kp == nil || kp.priv == nil {
		return nil, errors.New("seal: missing private key")
	}
	ephemeral, err := ecdh.P256().NewPublicKey(p.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("seal: invalid ephemeral key: %w", err)
	}

	shared, err := kp.priv.ECDH(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("seal: key agreement: %w", err)
	}

	aead, err := newAEAD(shared)
	if err != nil {
		return nil, err
	}
	if len(p.Nonce) != NonceSize {
		return nil, ErrAuthentication
	}

	plaintext, err := aead.Open(nil, p.Nonce, p.Ciphertext, p.EphemeralKey)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Encode packs the packet into its single-blob wire form.
func (p Packet) Encode() []byte {
	out := make([]byte, 0, len(p.EphemeralKey)+len(p.Nonce)+len(p.Ciphertext))
	out = append(out, p.EphemeralKey...)
	out = append(out, p.Nonce...)
	out = append(out, p.Ciphertext...)
	return out
}

// ParsePacket splits a wire-form blob back into its parts.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < minPacketSize {
		return Packet{}, ErrTruncated
	}
	return Packet{
		EphemeralKey: b[:PublicKeySize],
		Nonce:        b[PublicKeySize : PublicKeySize+NonceSize],
		Ciphertext:   b[PublicKeySize+NonceSize:],
	}, nil
}

func newAEAD(shared []byte) (cipher.AEAD, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, shared, []byte(kdfSalt), []byte(kdfInfoSeal))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("seal: key derivation: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("seal: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
