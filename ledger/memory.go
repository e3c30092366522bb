package ledger

import (
	"context"
	"sync"

	"xdao.co/void/address"
)

// Memory is an in-process ledger for tests and ephemeral use.
type Memory struct {
	mu       sync.Mutex
	accounts map[address.Address]Account
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{accounts: make(map[address.Address]Account)}
}

func (m *Memory) Get(ctx context.Context, addr address.Address) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[addr]
	if !ok {
		return Account{}, ErrAbsent
	}
	acct.Data = cloneData(acct.Data)
	return acct, nil
}

func (m *Memory) Apply(ctx context.Context, tx Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate the whole batch before touching anything.
	staged := make(map[address.Address]bool, len(tx.Creates))
	for _, acct := range tx.Creates {
		if _, exists := m.accounts[acct.Address]; exists || staged[acct.Address] {
			return ErrOccupied
		}
		staged[acct.Address] = true
	}
	for _, u := range tx.Updates {
		current, ok := m.accounts[u.Address]
		if !ok {
			return ErrAbsent
		}
		if !bytesEqual(current.Data, u.Prev) {
			return ErrStale
		}
	}
	for _, d := range tx.Deletes {
		current, ok := m.accounts[d.Address]
		if !ok {
			return ErrAbsent
		}
		if d.Prev != nil && !bytesEqual(current.Data, d.Prev) {
			return ErrStale
		}
	}

	for _, acct := range tx.Creates {
		acct.Data = cloneData(acct.Data)
		m.accounts[acct.Address] = acct
	}
	for _, u := range tx.Updates {
		acct := m.accounts[u.Address]
		acct.Data = cloneData(u.Next)
		m.accounts[u.Address] = acct
	}
	for _, d := range tx.Deletes {
		delete(m.accounts, d.Address)
	}
	return nil
}
