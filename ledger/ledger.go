// Package ledger models the account substrate the protocol writes to: a
// serialized store of program-owned accounts keyed by derived address.
//
// The ledger enforces exactly two things, and they are what every
// protocol invariant rests on:
//
//   - creation at an occupied address fails (ErrOccupied), which gives
//     at-most-once semantics for content-derived addresses, and
//   - mutations are compare-and-swap on the account payload (ErrStale on
//     a lost race), which gives counters their exactly-once increments.
//
// A Transaction applies atomically: either every create, update, and
// delete in it takes effect, or none do. No client-side lock is needed or
// sufficient; serialization lives here.
package ledger

import (
	"context"
	"errors"

	"xdao.co/void/address"
	"xdao.co/void/wallet"
)

var (
	// ErrOccupied reports account creation at an already-occupied address.
	ErrOccupied = errors.New("ledger: address occupied")

	// ErrAbsent reports a read or mutation of a nonexistent account. A
	// valid, expected outcome on read paths.
	ErrAbsent = errors.New("ledger: account absent")

	// ErrStale reports a compare-and-swap whose expected payload no longer
	// matches; the caller raced a concurrent transaction and must re-read.
	ErrStale = errors.New("ledger: stale account data")
)

// An Account is one program-owned, fixed-layout record.
type Account struct {
	Address   address.Address
	Tag       string
	Owner     wallet.Identity
	CreatedAt int64
	Data      []byte
}

// An Update is a compare-and-swap on an account's payload.
type Update struct {
	Address address.Address
	Prev    []byte // expected current payload
	Next    []byte
}

// A Delete removes an account, freeing its address for re-creation.
// Prev guards against deleting a record the caller has not seen.
type Delete struct {
	Address address.Address
	Prev    []byte
}

// A Transaction is an atomic batch of account mutations.
type Transaction struct {
	Creates []Account
	Updates []Update
	Deletes []Delete
}

// Ledger is the substrate interface.
type Ledger interface {
	// Get reads the account at addr, or ErrAbsent.
	Get(ctx context.Context, addr address.Address) (Account, error)

	// Apply commits tx atomically. It fails with ErrOccupied, ErrAbsent,
	// or ErrStale without partial effects.
	Apply(ctx context.Context, tx Transaction) error
}

func cloneData(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func bytesEqual(a, b []byte) bool {
	return string(a) == string(b)
}
