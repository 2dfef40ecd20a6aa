// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"container/list"
	"context"
	"os"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/vmihailenco/msgpack/v5"
)

// CachingStore wraps a BlockStore with an in-memory LRU of recently
// fetched/stored blocks, so that a single task doesn't round-trip to the
// backing store for blocks it has already touched (headers and forest
// roots in particular tend to be re-read many times within one operation).
//
// CachingStore is safe for concurrent use.
type CachingStore struct {
	backing BlockStore
	maxSize int

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	index map[cid.Cid]*list.Element
}

type cacheEntry struct {
	key  cid.Cid
	data []byte
}

// NewCachingStore wraps backing with an LRU of at most maxSize blocks.
func NewCachingStore(backing BlockStore, maxSize int) *CachingStore {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &CachingStore{
		backing: backing,
		maxSize: maxSize,
		ll:      list.New(),
		index:   make(map[cid.Cid]*list.Element),
	}
}

// Put implements BlockStore.
func (c *CachingStore) Put(ctx context.Context, data []byte, codec uint64) (cid.Cid, error) {
	id, err := c.backing.Put(ctx, data, codec)
	if err != nil {
		return cid.Undef, err
	}
	c.insert(id, data)
	return id, nil
}

// Get implements BlockStore.
func (c *CachingStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if data, ok := c.lookup(id); ok {
		return data, nil
	}
	data, err := c.backing.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.insert(id, data)
	return data, nil
}

// Has implements BlockStore.
func (c *CachingStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if _, ok := c.lookup(id); ok {
		return true, nil
	}
	return c.backing.Has(ctx, id)
}

func (c *CachingStore) lookup(id cid.Cid) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).data, true
}

func (c *CachingStore) insert(id cid.Cid, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[id]; ok {
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheEntry{key: id, data: data})
	c.index[id] = el

	for c.ll.Len() > c.maxSize {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
}

// cacheIndexEntry is the on-disk record for one cached CID, msgpack-encoded
// with numeric field tags in the style of the rest of the wire formats.
type cacheIndexEntry struct {
	Cid string `msgpack:"1"`
}

// SaveIndexHint writes the set of currently-cached CIDs (most-recent first)
// to path as msgpack. It is a warm-start hint only: on the next run a
// caller may use it to prime a CachingStore by re-fetching the listed CIDs,
// but losing it is harmless since the backing store remains authoritative.
func (c *CachingStore) SaveIndexHint(path string) error {
	c.mu.Lock()
	entries := make([]cacheIndexEntry, 0, c.ll.Len())
	for el := c.ll.Front(); el != nil; el = el.Next() {
		entries = append(entries, cacheIndexEntry{Cid: el.Value.(*cacheEntry).key.String()})
	}
	c.mu.Unlock()

	data, err := msgpack.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadIndexHint reads a hint file written by SaveIndexHint and returns the
// CIDs it names, most-recent first. The caller is responsible for fetching
// and re-inserting them via Get.
func LoadIndexHint(path string) ([]cid.Cid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []cacheIndexEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	cids := make([]cid.Cid, 0, len(entries))
	for _, e := range entries {
		id, err := cid.Decode(e.Cid)
		if err != nil {
			continue
		}
		cids = append(cids, id)
	}
	return cids, nil
}
