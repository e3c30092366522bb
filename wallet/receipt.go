package wallet

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// A Receipt is an exportable, independently verifiable statement that an
// identity committed a fingerprint at a time. Receipts are signed with
// Dilithium3 so they stay verifiable even against a quantum-capable
// adversary reading the export years later; the ledger identity itself
// stays Ed25519.
type Receipt struct {
	Identity    Identity
	Fingerprint [32]byte
	Timestamp   int64
}

const receiptDomain = "void/receipt/v1"

// Digest returns the sha3-256 digest signed by receipt signatures.
func (r Receipt) Digest() [32]byte {
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(r.Timestamp))

	h := sha3.New256()
	h.Write([]byte(receiptDomain))
	h.Write([]byte{0})
	h.Write(r.Identity[:])
	h.Write(r.Fingerprint[:])
	h.Write(ts[:])

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// A ReceiptKey signs exported receipts.
type ReceiptKey struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

// NewReceiptKey generates a Dilithium3 receipt signing key.
func NewReceiptKey() (*ReceiptKey, error) {
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate receipt key: %w", err)
	}
	return &ReceiptKey{pub: pub, priv: priv}, nil
}

// PublicKey returns the receipt verification key in its string encoding:
// "dilithium3:" + base64.
func (rk *ReceiptKey) PublicKey() string {
	raw, _ := rk.pub.MarshalBinary()
	return "dilithium3:" + base64.StdEncoding.EncodeToString(raw)
}

// Sign returns a base64 Dilithium3 signature over the receipt digest.
func (rk *ReceiptKey) Sign(r Receipt) string {
	digest := r.Digest()
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(rk.priv, digest[:], sig)
	return base64.StdEncoding.EncodeToString(sig)
}

// VerifyReceipt checks a receipt signature against an encoded public key.
func VerifyReceipt(r Receipt, publicKey, signature string) error {
	alg, enc, ok := strings.Cut(publicKey, ":")
	if !ok || alg != "dilithium3" {
		return errors.New("wallet: unsupported receipt key encoding")
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return fmt.Errorf("wallet: invalid receipt key base64: %w", err)
	}
	var pub mode3.PublicKey
	if err := pub.UnmarshalBinary(raw); err != nil {
		return fmt.Errorf("wallet: invalid receipt key: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("wallet: invalid signature base64: %w", err)
	}
	if len(sig) != mode3.SignatureSize {
		return errors.New("wallet: invalid receipt signature length")
	}
	digest := r.Digest()
	if !mode3.Verify(&pub, digest[:], sig) {
		return errors.New("wallet: receipt signature verification failed")
	}
	return nil
}
