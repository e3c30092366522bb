package storage

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// LocatorFor derives the canonical locator (CIDv1, raw codec, sha2-256)
// for a blob. Every backend must agree with this derivation; a backend
// returning a different locator for the same bytes is corrupt.
func LocatorFor(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// ParseLocator decodes a locator string as stored on the ledger.
func ParseLocator(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, ErrInvalidLocator
	}
	return id, nil
}
