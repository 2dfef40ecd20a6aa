// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
)

// MemoryStore is an in-memory BlockStore, suitable for tests and demos.
// It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
}

// NewMemoryStore creates an empty in-memory block store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[cid.Cid][]byte)}
}

// Put implements BlockStore.
func (s *MemoryStore) Put(ctx context.Context, data []byte, codec uint64) (cid.Cid, error) {
	if len(data) > MaxBlockSize {
		return cid.Undef, ErrMaximumBlockSizeExceeded
	}

	c, err := ComputeCid(data, codec)
	if err != nil {
		return cid.Undef, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blocks[c]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blocks[c] = cp
	}
	return c, nil
}

// Get implements BlockStore.
func (s *MemoryStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blocks[c]
	if !ok {
		return nil, ErrBlockNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Has implements BlockStore.
func (s *MemoryStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[c]
	return ok, nil
}

// Len returns the number of distinct blocks currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}
