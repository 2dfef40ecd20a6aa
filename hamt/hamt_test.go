// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hamt

import (
	"context"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/store"
)

func fakeCid(t *testing.T, label string) cid.Cid {
	t.Helper()
	c, err := store.ComputeCid([]byte(label), store.CodecRaw)
	if err != nil {
		t.Fatalf("ComputeCid: %v", err)
	}
	return c
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()
	n := New()

	var err error
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		n, err = n.Set(ctx, key, []cid.Cid{fakeCid(t, key)}, bs)
		if err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		got, err := n.Get(ctx, key, bs)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if len(got) != 1 || got[0] != fakeCid(t, key) {
			t.Fatalf("Get(%d) = %v, want [%v]", i, got, fakeCid(t, key))
		}
	}

	missing, err := n.Get(ctx, []byte("nope"), bs)
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestRemoveThenGetMissing(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()
	n := New()

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e")}
	var err error
	for _, k := range keys {
		n, err = n.Set(ctx, k, []cid.Cid{fakeCid(t, string(k))}, bs)
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	n, removed, err := n.Remove(ctx, []byte("c"), bs)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(removed) != 1 || removed[0] != fakeCid(t, "c") {
		t.Fatalf("Remove returned %v, want [%v]", removed, fakeCid(t, "c"))
	}

	got, err := n.Get(ctx, []byte("c"), bs)
	if err != nil || got != nil {
		t.Fatalf("Get(removed) = %v, %v; want nil, nil", got, err)
	}

	for _, k := range []string{"a", "b", "d", "e"} {
		got, err := n.Get(ctx, []byte(k), bs)
		if err != nil || len(got) != 1 {
			t.Fatalf("Get(%s) after unrelated remove = %v, %v", k, got, err)
		}
	}
}

func TestCidIsFunctionOfMultisetNotInsertOrder(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()

	keys := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}

	forward := New()
	var err error
	for _, k := range keys {
		forward, err = forward.Set(ctx, []byte(k), []cid.Cid{fakeCid(t, k)}, bs)
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	backward := New()
	for i := len(keys) - 1; i >= 0; i-- {
		k := keys[i]
		backward, err = backward.Set(ctx, []byte(k), []cid.Cid{fakeCid(t, k)}, bs)
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	forwardCid, err := Store(ctx, forward, bs)
	if err != nil {
		t.Fatalf("Store(forward): %v", err)
	}
	backwardCid, err := Store(ctx, backward, bs)
	if err != nil {
		t.Fatalf("Store(backward): %v", err)
	}

	if forwardCid != backwardCid {
		t.Fatalf("CID depends on insertion order: %s != %s", forwardCid, backwardCid)
	}
}

func TestDiffDetectsAddRemoveModify(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()

	a := New()
	a, _ = a.Set(ctx, []byte("shared"), []cid.Cid{fakeCid(t, "shared-v1")}, bs)
	a, _ = a.Set(ctx, []byte("only-a"), []cid.Cid{fakeCid(t, "only-a")}, bs)

	b := New()
	b, _ = b.Set(ctx, []byte("shared"), []cid.Cid{fakeCid(t, "shared-v2")}, bs)
	b, _ = b.Set(ctx, []byte("only-b"), []cid.Cid{fakeCid(t, "only-b")}, bs)

	changes, err := a.Diff(ctx, b, bs)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	var sawAdd, sawRemove, sawModify bool
	for _, c := range changes {
		switch c.Type {
		case ChangeAdd:
			if string(c.Key) == "only-b" {
				sawAdd = true
			}
		case ChangeRemove:
			if string(c.Key) == "only-a" {
				sawRemove = true
			}
		case ChangeModify:
			if string(c.Key) == "shared" {
				sawModify = true
			}
		}
	}
	if !sawAdd || !sawRemove || !sawModify {
		t.Fatalf("Diff missed a change: add=%v remove=%v modify=%v", sawAdd, sawRemove, sawModify)
	}
}

func TestMergeIsCommutativeAndIdempotent(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()

	a := New()
	a, _ = a.Set(ctx, []byte("x"), []cid.Cid{fakeCid(t, "x1")}, bs)
	b := New()
	b, _ = b.Set(ctx, []byte("y"), []cid.Cid{fakeCid(t, "y1")}, bs)

	ab, err := Merge(ctx, a, b, UnionCombiner, bs)
	if err != nil {
		t.Fatalf("Merge(a,b): %v", err)
	}
	ba, err := Merge(ctx, b, a, UnionCombiner, bs)
	if err != nil {
		t.Fatalf("Merge(b,a): %v", err)
	}

	abCid, err := Store(ctx, ab, bs)
	if err != nil {
		t.Fatalf("Store(ab): %v", err)
	}
	baCid, err := Store(ctx, ba, bs)
	if err != nil {
		t.Fatalf("Store(ba): %v", err)
	}
	if abCid != baCid {
		t.Fatalf("Merge not commutative: %s != %s", abCid, baCid)
	}

	aa, err := Merge(ctx, a, a, UnionCombiner, bs)
	if err != nil {
		t.Fatalf("Merge(a,a): %v", err)
	}
	aCid, err := Store(ctx, a, bs)
	if err != nil {
		t.Fatalf("Store(a): %v", err)
	}
	aaCid, err := Store(ctx, aa, bs)
	if err != nil {
		t.Fatalf("Store(aa): %v", err)
	}
	if aCid != aaCid {
		t.Fatalf("Merge not idempotent: %s != %s", aCid, aaCid)
	}
}

func TestGetByHash(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()
	n := New()

	key := []byte("findable")
	n, err := n.Set(ctx, key, []cid.Cid{fakeCid(t, "v")}, bs)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}

	gotKey, gotValue, err := n.GetByHash(ctx, HashKey(key), bs)
	if err != nil {
		t.Fatalf("GetByHash: %v", err)
	}
	if string(gotKey) != string(key) || len(gotValue) != 1 {
		t.Fatalf("GetByHash = %q, %v, want %q, [1 cid]", gotKey, gotValue, key)
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()
	n := New()

	var err error
	for i := 0; i < 30; i++ {
		key := []byte(fmt.Sprintf("rt-%d", i))
		n, err = n.Set(ctx, key, []cid.Cid{fakeCid(t, key)}, bs)
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	root, err := Store(ctx, n, bs)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, err := Load(ctx, root, bs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	for i := 0; i < 30; i++ {
		key := []byte(fmt.Sprintf("rt-%d", i))
		got, err := loaded.Get(ctx, key, bs)
		if err != nil {
			t.Fatalf("Get after load(%d): %v", i, err)
		}
		if len(got) != 1 || got[0] != fakeCid(t, key) {
			t.Fatalf("Get after load(%d) = %v", i, got)
		}
	}
}
