// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"
)

func TestMemoryStorePutGetHas(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("hello")
	c, err := s.Put(ctx, data, CodecRaw)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	has, err := s.Has(ctx, c)
	if err != nil || !has {
		t.Fatalf("Has = %v, %v; want true, nil", has, err)
	}

	got, err := s.Get(ctx, c)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, want %q", got, data)
	}

	// Putting the same bytes twice is idempotent.
	c2, err := s.Put(ctx, data, CodecRaw)
	if err != nil {
		t.Fatalf("Put (again): %v", err)
	}
	if c2 != c {
		t.Fatalf("Put not idempotent: %s != %s", c2, c)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c, err := ComputeCid([]byte("nope"), CodecRaw)
	if err != nil {
		t.Fatalf("ComputeCid: %v", err)
	}

	if _, err := s.Get(ctx, c); err != ErrBlockNotFound {
		t.Fatalf("Get missing = %v, want ErrBlockNotFound", err)
	}
	if has, _ := s.Has(ctx, c); has {
		t.Fatalf("Has missing = true, want false")
	}
}

func TestCachingStoreServesFromCache(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	cached := NewCachingStore(backing, 8)

	data := []byte("cached block")
	c, err := cached.Put(ctx, data, CodecRaw)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := cached.Get(ctx, c)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, %v; want %q, nil", got, err, data)
	}
}

func TestCachingStoreEvictsLRU(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	cached := NewCachingStore(backing, 2)

	var cids []cid.Cid
	for i := 0; i < 3; i++ {
		c, err := cached.Put(ctx, []byte{byte(i)}, CodecRaw)
		if err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
		cids = append(cids, c)
	}

	// The least recently used block (the first one put) has left the LRU.
	if _, ok := cached.lookup(cids[0]); ok {
		t.Fatalf("block 0 still cached after 3 puts into a 2-entry LRU")
	}

	// All three blocks remain retrievable via the backing store even though
	// only 2 fit in the LRU.
	for i, c := range cids {
		got, err := cached.Get(ctx, c)
		if err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
		if got[0] != byte(i) {
			t.Fatalf("Get %d = %v, want %v", i, got, []byte{byte(i)})
		}
	}
}
