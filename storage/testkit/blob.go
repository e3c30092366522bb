// Package testkit holds a reusable conformance suite for blob store
// implementations plus test doubles for outage scenarios.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/void/storage"
)

// NewStore constructs a fresh, empty store for a test. The returned store
// MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.BlobStore

// RunBlobStoreConformance exercises the storage.BlobStore contract.
func RunBlobStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		want := []byte("sealed payload bytes")

		id, err := store.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := storage.LocatorFor(want)
		if err != nil {
			t.Fatalf("LocatorFor failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put locator mismatch: got %s want %s", id, wantID)
		}

		got, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		store := newStore(t)
		b := []byte("same bytes")

		id1, err := store.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := store.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		store := newStore(t)
		missing, err := storage.LocatorFor([]byte("never stored"))
		if err != nil {
			t.Fatalf("LocatorFor failed: %v", err)
		}

		if store.Has(missing) {
			t.Fatalf("Has returned true for a missing locator")
		}
		if _, err := store.Get(missing); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got %v, want ErrNotFound", err)
		}

		id, err := store.Put([]byte("stored"))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !store.Has(id) {
			t.Fatalf("Has returned false for a stored locator")
		}
	})

	t.Run("DistinctBlobsDistinctLocators", func(t *testing.T) {
		store := newStore(t)
		a, err := store.Put([]byte{0x00})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		b, err := store.Put([]byte{0x01})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if a == b {
			t.Fatalf("distinct blobs share locator %s", a)
		}
	})
}

// Flaky wraps a store and simulates a backend outage when Down is true.
type Flaky struct {
	Inner storage.BlobStore
	Down  bool
}

var _ storage.BlobStore = (*Flaky)(nil)

func (f *Flaky) Put(data []byte) (cid.Cid, error) {
	if f.Down {
		return cid.Undef, storage.ErrUnavailable
	}
	return f.Inner.Put(data)
}

func (f *Flaky) Get(id cid.Cid) ([]byte, error) {
	if f.Down {
		return nil, storage.ErrUnavailable
	}
	return f.Inner.Get(id)
}

func (f *Flaky) Has(id cid.Cid) bool {
	if f.Down {
		return false
	}
	return f.Inner.Has(id)
}
