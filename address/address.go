// Package address implements deterministic account-address derivation.
//
// Every ledger-resident record in the void protocol lives at an address
// computed from a namespace tag plus one or more seed byte strings. The
// derivation is one-way and collision-resistant, so address occupancy is
// equivalent to "this exact (tag, seeds) tuple has been committed before".
// No index or lookup table exists anywhere; the seeds themselves are the
// only information needed to locate a record.
//
// The derivation below is a cross-implementation fixed point. Tags, seed
// encodings, and the domain string MUST match bit-for-bit in every client
// or derived addresses will not agree.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// Size is the width of a derived address in bytes.
const Size = 32

// Namespace tags. Tags are fixed ASCII literals and part of the wire
// contract; never reuse a tag for a different record shape.
const (
	TagProof      = "proof"
	TagNamespace  = "org"
	TagSubmission = "submission"
	TagInbox      = "inbox"
	TagMessage    = "dm"
	TagProfile    = "profile"
	TagFollow     = "follow"
	TagVouch      = "vouch"
)

// maxSeedLen is the longest raw seed accepted by Derive. Longer seeds MUST
// be pre-hashed to a fingerprint by the caller; this mirrors the underlying
// ledger's derivation-input limit and is why fingerprints are always
// fixed-width hashes, never raw content.
const maxSeedLen = 32

// domain separates void address derivation from any other sha256 use.
const domain = "void/account/v1"

// An Address identifies one program-owned account.
type Address [Size]byte

// Derive computes the address for (tag, seeds...).
//
// The digest input is unambiguous: the domain string and tag are
// NUL-terminated ASCII, and every seed is prefixed with its length as a
// 16-bit little-endian integer. Seeds longer than 32 bytes are reduced to
// sha256(seed) before use, so two calls with the same logical content
// always agree regardless of which side pre-hashed.
func Derive(tag string, seeds ...[]byte) Address {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write([]byte(tag))
	h.Write([]byte{0})

	var lenBuf [2]byte
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			sum := sha256.Sum256(seed)
			seed = sum[:]
		}
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(seed)))
		h.Write(lenBuf[:])
		h.Write(seed)
	}

	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// Uint64Seed encodes a sequence id as an 8-byte little-endian seed.
// This is the fixed encoding for all counter-derived addresses
// (submissions, direct messages).
func Uint64Seed(id uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return b[:]
}

// String returns the base58 form of the address.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Parse decodes a base58 address string.
func Parse(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("address: invalid base58: %w", err)
	}
	if len(raw) != Size {
		return Address{}, fmt.Errorf("address: expected %d bytes, got %d", Size, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}
