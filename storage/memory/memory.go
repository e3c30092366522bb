// Package memory is an in-process blob store for tests and ephemeral use.
package memory

import (
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/void/storage"
)

type Store struct {
	mu    sync.RWMutex
	blobs map[cid.Cid][]byte
}

var _ storage.BlobStore = (*Store)(nil)

func New() *Store {
	return &Store{blobs: make(map[cid.Cid][]byte)}
}

func (s *Store) Put(data []byte) (cid.Cid, error) {
	id, err := storage.LocatorFor(data)
	if err != nil {
		return cid.Undef, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.blobs[id]; ok {
		if string(existing) != string(data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	s.blobs[id] = append([]byte(nil), data...)
	return id, nil
}

func (s *Store) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidLocator
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[id]
	return ok
}

// Len reports the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
