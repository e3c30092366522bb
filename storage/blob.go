// Package storage defines the off-chain blob store boundary: sealed
// payloads are persisted in an external content-addressable system and
// referenced from the ledger by an opaque locator string.
//
// Locators are CIDv1 (raw codec, sha2-256) strings, derived from the
// bytes themselves. Because the locator is content-derived rather than
// assigned by any one backend, the same string resolves in every backend
// that holds the bytes. That is what makes the local write-fallback
// (Fallback) transparent to readers.
package storage

import "github.com/ipfs/go-cid"

// BlobStore is the store contract.
//
// Contract:
// - Put MUST be idempotent and MUST return the locator derived from the bytes written.
// - Stored blobs MUST be immutable.
// - Get MUST return ErrNotFound when the locator is absent, and ErrUnavailable
//   when the backend cannot be reached; callers branch on the difference.
type BlobStore interface {
	Put(data []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
