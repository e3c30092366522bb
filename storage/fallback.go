package storage

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// Fallback pairs an external blob store with a local content-addressed
// fallback so that a transient external outage never blocks a commitment.
//
// Put writes to the remote store first; if the remote is unreachable the
// sealed bytes are persisted locally under the same content-derived
// locator, so the string recorded on the ledger is identical either way.
// Get consults the remote first and falls back to the local store. Content
// errors (locator mismatch, immutability violations) are never masked by
// the fallback; only unavailability is.
type Fallback struct {
	Remote BlobStore
	Local  BlobStore
}

var _ BlobStore = (*Fallback)(nil)

func (f Fallback) Put(data []byte) (cid.Cid, error) {
	if f.Remote == nil {
		if f.Local == nil {
			return cid.Undef, errors.New("storage: Fallback has no backends")
		}
		return f.Local.Put(data)
	}
	id, err := f.Remote.Put(data)
	if err == nil {
		return id, nil
	}
	if !IsUnavailable(err) || f.Local == nil {
		return cid.Undef, err
	}
	return f.Local.Put(data)
}

func (f Fallback) Get(id cid.Cid) ([]byte, error) {
	var remoteErr error
	if f.Remote != nil {
		b, err := f.Remote.Get(id)
		if err == nil {
			return b, nil
		}
		if !IsUnavailable(err) && !IsNotFound(err) {
			return nil, err
		}
		remoteErr = err
	}

	if f.Local != nil {
		b, err := f.Local.Get(id)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}

	// Both stores missed. If the remote was unreachable the blob may still
	// exist there, so surface the transport failure rather than absence.
	if remoteErr != nil && IsUnavailable(remoteErr) {
		return nil, remoteErr
	}
	return nil, ErrNotFound
}

func (f Fallback) Has(id cid.Cid) bool {
	if f.Remote != nil && f.Remote.Has(id) {
		return true
	}
	return f.Local != nil && f.Local.Has(id)
}
