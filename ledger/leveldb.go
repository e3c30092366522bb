package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"

	"xdao.co/void/address"
	"xdao.co/void/wallet"
)

// accountPrefix namespaces account records inside the database so future
// record kinds can share the same file.
const accountPrefix = 'a'

// LevelDB is a persistent ledger backed by a local goleveldb database.
//
// A single mutex serializes Apply; batches commit atomically through the
// database's write batch, so a crash mid-transaction leaves either all of
// its effects or none.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

var _ Ledger = (*LevelDB)(nil)

// OpenLevelDB opens (creating if needed) a ledger database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

func accountKey(addr address.Address) []byte {
	key := make([]byte, 1+address.Size)
	key[0] = accountPrefix
	copy(key[1:], addr[:])
	return key
}

func (l *LevelDB) Get(ctx context.Context, addr address.Address) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	raw, err := l.db.Get(accountKey(addr), nil)
	if err != nil {
		if err == ldberrors.ErrNotFound {
			return Account{}, ErrAbsent
		}
		return Account{}, fmt.Errorf("ledger: read: %w", err)
	}
	acct, err := decodeAccount(raw)
	if err != nil {
		return Account{}, err
	}
	acct.Address = addr
	return acct, nil
}

func (l *LevelDB) Apply(ctx context.Context, tx Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := new(leveldb.Batch)

	staged := make(map[address.Address]bool, len(tx.Creates))
	for _, acct := range tx.Creates {
		ok, err := l.db.Has(accountKey(acct.Address), nil)
		if err != nil {
			return fmt.Errorf("ledger: read: %w", err)
		}
		if ok || staged[acct.Address] {
			return ErrOccupied
		}
		staged[acct.Address] = true
		batch.Put(accountKey(acct.Address), encodeAccount(acct))
	}
	for _, u := range tx.Updates {
		current, err := l.getLocked(u.Address)
		if err != nil {
			return err
		}
		if !bytesEqual(current.Data, u.Prev) {
			return ErrStale
		}
		current.Data = cloneData(u.Next)
		batch.Put(accountKey(u.Address), encodeAccount(current))
	}
	for _, d := range tx.Deletes {
		current, err := l.getLocked(d.Address)
		if err != nil {
			return err
		}
		if d.Prev != nil && !bytesEqual(current.Data, d.Prev) {
			return ErrStale
		}
		batch.Delete(accountKey(d.Address))
	}

	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("ledger: commit: %w", err)
	}
	return nil
}

func (l *LevelDB) getLocked(addr address.Address) (Account, error) {
	raw, err := l.db.Get(accountKey(addr), nil)
	if err != nil {
		if err == ldberrors.ErrNotFound {
			return Account{}, ErrAbsent
		}
		return Account{}, fmt.Errorf("ledger: read: %w", err)
	}
	acct, err := decodeAccount(raw)
	if err != nil {
		return Account{}, err
	}
	acct.Address = addr
	return acct, nil
}

// On-disk account layout: tag length (1) || tag || owner (32) ||
// created-at (8, little-endian) || payload length (4, little-endian) ||
// payload. Fixed and versioned by the key prefix.
func encodeAccount(acct Account) []byte {
	out := make([]byte, 0, 1+len(acct.Tag)+wallet.IdentitySize+8+4+len(acct.Data))
	out = append(out, byte(len(acct.Tag)))
	out = append(out, acct.Tag...)
	out = append(out, acct.Owner[:]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(acct.CreatedAt))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(acct.Data)))
	out = append(out, acct.Data...)
	return out
}

func decodeAccount(raw []byte) (Account, error) {
	var acct Account
	if len(raw) < 1 {
		return acct, fmt.Errorf("ledger: truncated account record")
	}
	tagLen := int(raw[0])
	raw = raw[1:]
	if len(raw) < tagLen+wallet.IdentitySize+8+4 {
		return acct, fmt.Errorf("ledger: truncated account record")
	}
	acct.Tag = string(raw[:tagLen])
	raw = raw[tagLen:]
	copy(acct.Owner[:], raw[:wallet.IdentitySize])
	raw = raw[wallet.IdentitySize:]
	acct.CreatedAt = int64(binary.LittleEndian.Uint64(raw[:8]))
	raw = raw[8:]
	dataLen := int(binary.LittleEndian.Uint32(raw[:4]))
	raw = raw[4:]
	if len(raw) != dataLen {
		return acct, fmt.Errorf("ledger: truncated account record")
	}
	acct.Data = cloneData(raw)
	return acct, nil
}
