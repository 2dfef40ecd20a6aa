// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/webnative-fs/wnfs/store"
)

func newTestRoot(t *testing.T, forest *Forest) *PrivateDirectory {
	t.Helper()
	dir, err := NewDirectory(forest.Setup, rand.Reader, testMtime())
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	if _, err := forest.Put(context.Background(), WrapDirectory(dir)); err != nil {
		t.Fatalf("forest.Put(root): %v", err)
	}
	return dir
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)
	root := newTestRoot(t, forest)

	if err := Write(ctx, &root, forest, Path{"docs", "hello.txt"}, []byte("hello wnfs"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(ctx, root, forest, Path{"docs", "hello.txt"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "hello wnfs" {
		t.Fatalf("Read = %q, want %q", got, "hello wnfs")
	}

	entries, err := Ls(ctx, root, forest, Path{"docs"})
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "hello.txt" || entries[0].IsDir {
		t.Fatalf("Ls = %+v, want a single file entry hello.txt", entries)
	}
}

func TestWriteOverExistingDirectoryFails(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)
	root := newTestRoot(t, forest)

	if err := Mkdir(ctx, &root, forest, Path{"a"}, testMtime(), rand.Reader); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := Write(ctx, &root, forest, Path{"a"}, []byte("x"), testMtime(), rand.Reader); err == nil {
		t.Fatalf("Write over a directory should fail")
	}
}

func TestLargeFileChunking(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)
	root := newTestRoot(t, forest)

	content := bytes.Repeat([]byte{0xAB}, 1_048_576)
	if err := Write(ctx, &root, forest, Path{"big.bin"}, content, testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write: %v", err)
	}

	node, err := GetNode(ctx, root, forest, Path{"big.bin"}, false)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if !node.IsFile() {
		t.Fatalf("expected a file")
	}
	wantChunks := uint64(4) // ceil(1048576 / 262144)
	if node.File.external == nil || node.File.external.BlockCount != wantChunks {
		t.Fatalf("BlockCount = %v, want %d", node.File.external, wantChunks)
	}
	for i := uint64(0); i < wantChunks; i++ {
		label := node.File.ChunkLabel(forest.Setup, i)
		has, err := forest.Has(ctx, label)
		if err != nil {
			t.Fatalf("Has(chunk %d): %v", i, err)
		}
		if !has {
			t.Fatalf("chunk %d missing from forest", i)
		}
	}

	one, err := ReadAt(ctx, root, forest, Path{"big.bin"}, 500_000, 1)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if len(one) != 1 || one[0] != 0xAB {
		t.Fatalf("ReadAt(500000,1) = %v, want [0xAB]", one)
	}

	full, err := Read(ctx, root, forest, Path{"big.bin"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(full, content) {
		t.Fatalf("Read mismatch: got %d bytes, want %d", len(full), len(content))
	}
}

func TestRmRemovesNode(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)
	root := newTestRoot(t, forest)

	if err := Write(ctx, &root, forest, Path{"a.txt"}, []byte("a"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write: %v", err)
	}
	removed, err := Rm(ctx, &root, forest, Path{"a.txt"}, rand.Reader)
	if err != nil {
		t.Fatalf("Rm: %v", err)
	}
	if !removed.IsFile() {
		t.Fatalf("Rm should return the removed file node")
	}
	if _, err := Read(ctx, root, forest, Path{"a.txt"}); err != ErrPathNotFound {
		t.Fatalf("Read after Rm = %v, want ErrPathNotFound", err)
	}
	if _, err := Rm(ctx, &root, forest, Path{"a.txt"}, rand.Reader); err != ErrPathNotFound {
		t.Fatalf("second Rm = %v, want ErrPathNotFound", err)
	}
}

func TestBasicMvRelabelsSubtree(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)
	root := newTestRoot(t, forest)

	if err := Write(ctx, &root, forest, Path{"src", "a.txt"}, []byte("a"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write: %v", err)
	}
	beforeNode, err := GetNode(ctx, root, forest, Path{"src", "a.txt"}, false)
	if err != nil {
		t.Fatalf("GetNode before: %v", err)
	}
	beforeInum := beforeNode.Header().Inumber

	if err := BasicMv(ctx, &root, forest, Path{"src", "a.txt"}, Path{"dst", "a.txt"}, testMtime(), rand.Reader); err != nil {
		t.Fatalf("BasicMv: %v", err)
	}

	if _, err := Read(ctx, root, forest, Path{"src", "a.txt"}); err != ErrPathNotFound {
		t.Fatalf("old path should be gone, got err=%v", err)
	}
	content, err := Read(ctx, root, forest, Path{"dst", "a.txt"})
	if err != nil {
		t.Fatalf("Read new path: %v", err)
	}
	if string(content) != "a" {
		t.Fatalf("Read new path = %q, want %q", content, "a")
	}

	afterNode, err := GetNode(ctx, root, forest, Path{"dst", "a.txt"}, false)
	if err != nil {
		t.Fatalf("GetNode after: %v", err)
	}
	if !afterNode.Header().Inumber.Equal(beforeInum) {
		t.Fatalf("basic_mv must preserve inumber identity")
	}
	if afterNode.Header().Name.Equal(beforeNode.Header().Name) {
		t.Fatalf("basic_mv must change the accumulated name once the parent changes")
	}
}

func TestCpDecorrelatesIdentity(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)
	root := newTestRoot(t, forest)

	if err := Write(ctx, &root, forest, Path{"src", "a.txt"}, []byte("a"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write: %v", err)
	}
	original, err := GetNode(ctx, root, forest, Path{"src", "a.txt"}, false)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}

	if err := Cp(ctx, &root, forest, Path{"src", "a.txt"}, Path{"dst", "a.txt"}, testMtime(), rand.Reader); err != nil {
		t.Fatalf("Cp: %v", err)
	}

	// original still present and unaffected
	stillThere, err := Read(ctx, root, forest, Path{"src", "a.txt"})
	if err != nil || string(stillThere) != "a" {
		t.Fatalf("original should be untouched by Cp: content=%q err=%v", stillThere, err)
	}

	copyNode, err := GetNode(ctx, root, forest, Path{"dst", "a.txt"}, false)
	if err != nil {
		t.Fatalf("GetNode(copy): %v", err)
	}
	if copyNode.Header().Inumber.Equal(original.Header().Inumber) {
		t.Fatalf("cp must mint a fresh inumber for the copy")
	}
	if copyNode.Header().Name.Equal(original.Header().Name) {
		t.Fatalf("cp must produce a decorrelated name")
	}
	copyContent, err := Read(ctx, root, forest, Path{"dst", "a.txt"})
	if err != nil || string(copyContent) != "a" {
		t.Fatalf("copy content mismatch: %q, err=%v", copyContent, err)
	}
}

func TestCpExistingTargetFails(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)
	root := newTestRoot(t, forest)

	if err := Write(ctx, &root, forest, Path{"a.txt"}, []byte("a"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write a: %v", err)
	}
	if err := Write(ctx, &root, forest, Path{"b.txt"}, []byte("b"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write b: %v", err)
	}
	if err := Cp(ctx, &root, forest, Path{"a.txt"}, Path{"b.txt"}, testMtime(), rand.Reader); err != ErrAlreadyExists {
		t.Fatalf("Cp onto existing = %v, want ErrAlreadyExists", err)
	}
}

// TestConcurrentMergeConvergesDeterministically forks a forest after one
// persisted root revision, has two replicas independently write a
// sibling file from that same revision (landing both writes at the
// same next-ratchet label, since both start from an identical header),
// and checks that the forest merge unions both revisions at that label
// and produces the same merged Cid regardless of merge order.
func TestConcurrentMergeConvergesDeterministically(t *testing.T) {
	ctx := context.Background()
	setup := testSetup(t)
	// Both replicas share one block store, as the concurrency model
	// requires; only their in-memory forest (HAMT) views diverge.
	bs := store.NewMemoryStore()

	forestA := NewForest(setup, bs, rand.Reader)
	original := newTestRoot(t, forestA)
	baseLabel := original.Header.RevisionLabel(setup)

	forestB := NewForest(setup, bs, rand.Reader)
	forestB.root = forestA.root

	rootA := WrapDirectory(original).clone().Dir
	rootB := WrapDirectory(original).clone().Dir

	if err := Write(ctx, &rootA, forestA, Path{"a.txt"}, []byte("a"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write a (replica A): %v", err)
	}
	if err := Write(ctx, &rootB, forestB, Path{"b.txt"}, []byte("b"), testMtime(), rand.Reader); err != nil {
		t.Fatalf("Write b (replica B): %v", err)
	}

	if rootA.Header.RevisionLabel(setup).Equal(baseLabel) || rootB.Header.RevisionLabel(setup).Equal(baseLabel) {
		t.Fatalf("clone-on-write should have advanced both replicas off the base revision")
	}
	if !rootA.Header.Ratchet.Equal(rootB.Header.Ratchet) || !rootA.Header.Name.Equal(rootB.Header.Name) {
		t.Fatalf("replicas forked from the same revision must advance to the same next header")
	}
	nextLabel := rootA.Header.RevisionLabel(setup)
	nextTemporal := rootA.Header.TemporalKey()

	merged, err := forestA.Merge(ctx, forestB)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	revisions, err := merged.GetLatest(ctx, nextLabel, nextTemporal)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if len(revisions) != 2 {
		t.Fatalf("merged forest should hold both replicas' revisions at the shared label, got %d", len(revisions))
	}
	names := map[string]bool{}
	for _, rev := range revisions {
		for name := range rev.Dir.Entries {
			names[name] = true
		}
	}
	if !names["a.txt"] || !names["b.txt"] {
		t.Fatalf("merged revisions should together cover both writes, got %v", names)
	}

	mergedAgain, err := forestB.Merge(ctx, forestA)
	if err != nil {
		t.Fatalf("Merge (reverse order): %v", err)
	}
	rootCidOrderOne, err := merged.StoreRoot(ctx)
	if err != nil {
		t.Fatalf("StoreRoot(order one): %v", err)
	}
	rootCidOrderTwo, err := mergedAgain.StoreRoot(ctx)
	if err != nil {
		t.Fatalf("StoreRoot(order two): %v", err)
	}
	if !rootCidOrderOne.Equals(rootCidOrderTwo) {
		t.Fatalf("merge must be order-independent: %v != %v", rootCidOrderOne, rootCidOrderTwo)
	}
}
