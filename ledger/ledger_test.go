package ledger

import (
	"context"
	"errors"
	"testing"

	"xdao.co/void/address"
	"xdao.co/void/wallet"
)

type newLedger func(t *testing.T) Ledger

func backends(t *testing.T) map[string]newLedger {
	t.Helper()
	return map[string]newLedger{
		"memory": func(t *testing.T) Ledger { return NewMemory() },
		"leveldb": func(t *testing.T) Ledger {
			l, err := OpenLevelDB(t.TempDir())
			if err != nil {
				t.Fatalf("OpenLevelDB failed: %v", err)
			}
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
	}
}

func testIdentity(t *testing.T) wallet.Identity {
	t.Helper()
	kp, err := wallet.NewKeyPair()
	if err != nil {
		t.Fatalf("NewKeyPair failed: %v", err)
	}
	return kp.Identity()
}

func TestLedger_CreateOnce(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			owner := testIdentity(t)
			addr := address.Derive(address.TagProof, []byte("create-once"))

			acct := Account{Address: addr, Tag: address.TagProof, Owner: owner, CreatedAt: 1, Data: []byte("payload")}
			if err := l.Apply(ctx, Transaction{Creates: []Account{acct}}); err != nil {
				t.Fatalf("first create failed: %v", err)
			}
			if err := l.Apply(ctx, Transaction{Creates: []Account{acct}}); !errors.Is(err, ErrOccupied) {
				t.Fatalf("second create: got %v, want ErrOccupied", err)
			}

			got, err := l.Get(ctx, addr)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Tag != address.TagProof || got.Owner != owner || got.CreatedAt != 1 || string(got.Data) != "payload" {
				t.Fatalf("account round trip mismatch: %+v", got)
			}
		})
	}
}

func TestLedger_GetAbsent(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			_, err := l.Get(context.Background(), address.Derive(address.TagProof, []byte("nothing here")))
			if !errors.Is(err, ErrAbsent) {
				t.Fatalf("Get absent: got %v, want ErrAbsent", err)
			}
		})
	}
}

func TestLedger_UpdateCompareAndSwap(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			addr := address.Derive(address.TagNamespace, []byte("cas"))

			create := Account{Address: addr, Tag: address.TagNamespace, Owner: testIdentity(t), Data: []byte("v1")}
			if err := l.Apply(ctx, Transaction{Creates: []Account{create}}); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			ok := Update{Address: addr, Prev: []byte("v1"), Next: []byte("v2")}
			if err := l.Apply(ctx, Transaction{Updates: []Update{ok}}); err != nil {
				t.Fatalf("update failed: %v", err)
			}

			// Replaying the same CAS must now fail: the payload moved on.
			if err := l.Apply(ctx, Transaction{Updates: []Update{ok}}); !errors.Is(err, ErrStale) {
				t.Fatalf("stale update: got %v, want ErrStale", err)
			}

			got, err := l.Get(ctx, addr)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got.Data) != "v2" {
				t.Fatalf("payload = %q, want v2", got.Data)
			}

			missing := address.Derive(address.TagNamespace, []byte("missing"))
			err = l.Apply(ctx, Transaction{Updates: []Update{{Address: missing, Prev: nil, Next: []byte("x")}}})
			if !errors.Is(err, ErrAbsent) {
				t.Fatalf("update absent: got %v, want ErrAbsent", err)
			}
		})
	}
}

func TestLedger_DeleteFreesAddress(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			addr := address.Derive(address.TagVouch, []byte("toggle"))

			acct := Account{Address: addr, Tag: address.TagVouch, Owner: testIdentity(t), Data: []byte("opinion")}
			if err := l.Apply(ctx, Transaction{Creates: []Account{acct}}); err != nil {
				t.Fatalf("create failed: %v", err)
			}
			if err := l.Apply(ctx, Transaction{Deletes: []Delete{{Address: addr, Prev: []byte("opinion")}}}); err != nil {
				t.Fatalf("delete failed: %v", err)
			}
			if _, err := l.Get(ctx, addr); !errors.Is(err, ErrAbsent) {
				t.Fatalf("Get after delete: got %v, want ErrAbsent", err)
			}

			// The address is free again; a re-create succeeds.
			if err := l.Apply(ctx, Transaction{Creates: []Account{acct}}); err != nil {
				t.Fatalf("re-create failed: %v", err)
			}

			err := l.Apply(ctx, Transaction{Deletes: []Delete{{Address: addr, Prev: []byte("changed")}}})
			if !errors.Is(err, ErrStale) {
				t.Fatalf("guarded delete: got %v, want ErrStale", err)
			}
		})
	}
}

func TestLedger_TransactionAtomicity(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			ctx := context.Background()
			owner := testIdentity(t)

			counterAddr := address.Derive(address.TagInbox, []byte("atomic"))
			counter := Account{Address: counterAddr, Tag: address.TagInbox, Owner: owner, Data: []byte{0}}
			if err := l.Apply(ctx, Transaction{Creates: []Account{counter}}); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			// Occupy the message slot so the combined transaction must fail.
			msgAddr := address.Derive(address.TagMessage, []byte("atomic"), address.Uint64Seed(0))
			msg := Account{Address: msgAddr, Tag: address.TagMessage, Owner: owner, Data: []byte("first")}
			if err := l.Apply(ctx, Transaction{Creates: []Account{msg}}); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			err := l.Apply(ctx, Transaction{
				Creates: []Account{{Address: msgAddr, Tag: address.TagMessage, Owner: owner, Data: []byte("second")}},
				Updates: []Update{{Address: counterAddr, Prev: []byte{0}, Next: []byte{1}}},
			})
			if !errors.Is(err, ErrOccupied) {
				t.Fatalf("conflicting tx: got %v, want ErrOccupied", err)
			}

			// The update half must not have been applied.
			got, err := l.Get(ctx, counterAddr)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got.Data) != string([]byte{0}) {
				t.Fatalf("counter mutated by failed transaction: %v", got.Data)
			}
		})
	}
}

func TestLevelDB_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	owner := testIdentity(t)
	addr := address.Derive(address.TagProof, []byte("durable"))

	l, err := OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("OpenLevelDB failed: %v", err)
	}
	acct := Account{Address: addr, Tag: address.TagProof, Owner: owner, CreatedAt: 99, Data: []byte("still here")}
	if err := l.Apply(ctx, Transaction{Creates: []Account{acct}}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenLevelDB(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, addr)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.Owner != owner || got.CreatedAt != 99 || string(got.Data) != "still here" {
		t.Fatalf("account did not survive reopen: %+v", got)
	}
}
