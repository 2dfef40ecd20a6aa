// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/webnative-fs/wnfs/crypto"
)

func accessKeysEqual(a, b AccessKey) bool {
	return a.RevisionLabelHash == b.RevisionLabelHash &&
		a.Temporal == b.Temporal &&
		a.Snapshot == b.Snapshot &&
		a.IsTemporal == b.IsTemporal &&
		bytes.Equal(a.ContentCid, b.ContentCid)
}

func TestShareAndReceiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)

	file, err := NewFile(forest.Setup, forest.Setup.EmptyAccumulator(), []byte("shared content"), testMtime(), rand.Reader)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ref, err := forest.Put(ctx, WrapFile(file))
	if err != nil {
		t.Fatalf("forest.Put: %v", err)
	}
	ak := AccessKeyFromRef(ref)

	recipient, err := crypto.GenerateExchangeKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateExchangeKeyPair: %v", err)
	}

	sharerRootDid := "did:key:zExample"
	if err := Share(ctx, forest, sharerRootDid, recipient.Public, 0, ak, rand.Reader); err != nil {
		t.Fatalf("Share: %v", err)
	}

	received, err := ReceiveShare(ctx, forest, sharerRootDid, recipient, 0, 10)
	if err != nil {
		t.Fatalf("ReceiveShare: %v", err)
	}
	if !accessKeysEqual(received, ak) {
		t.Fatalf("ReceiveShare = %+v, want %+v", received, ak)
	}

	node, err := received.Resolve(ctx, forest.blockStore)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !node.IsFile() {
		t.Fatalf("resolved node is not a file")
	}
	content, err := node.File.Read(ctx, forest)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(content, []byte("shared content")) {
		t.Fatalf("content = %q, want %q", content, "shared content")
	}
}

func TestReceiveShareSkipsOtherRecipientsShares(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)

	file, err := NewFile(forest.Setup, forest.Setup.EmptyAccumulator(), []byte("for bob"), testMtime(), rand.Reader)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ref, err := forest.Put(ctx, WrapFile(file))
	if err != nil {
		t.Fatalf("forest.Put: %v", err)
	}
	ak := AccessKeyFromRef(ref)

	alice, err := crypto.GenerateExchangeKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateExchangeKeyPair(alice): %v", err)
	}
	bob, err := crypto.GenerateExchangeKeyPair(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateExchangeKeyPair(bob): %v", err)
	}

	sharerRootDid := "did:key:zExample"
	// Share at counters 0 and 1 for alice, counter 0 for bob: bob must
	// find his own share without ever successfully decrypting alice's.
	if err := Share(ctx, forest, sharerRootDid, alice.Public, 0, ak, rand.Reader); err != nil {
		t.Fatalf("Share(alice, 0): %v", err)
	}
	if err := Share(ctx, forest, sharerRootDid, alice.Public, 1, ak, rand.Reader); err != nil {
		t.Fatalf("Share(alice, 1): %v", err)
	}
	if err := Share(ctx, forest, sharerRootDid, bob.Public, 0, ak, rand.Reader); err != nil {
		t.Fatalf("Share(bob, 0): %v", err)
	}

	got, err := ReceiveShare(ctx, forest, sharerRootDid, bob, 0, 10)
	if err != nil {
		t.Fatalf("ReceiveShare(bob): %v", err)
	}
	if !accessKeysEqual(got, ak) {
		t.Fatalf("bob's recovered access key = %+v, want %+v", got, ak)
	}

	if _, err := ReceiveShare(ctx, forest, sharerRootDid, bob, 5, 3); err != ErrShareLabelNotFound {
		t.Fatalf("ReceiveShare(bob, 5, 3) err = %v, want ErrShareLabelNotFound", err)
	}
}

func TestSnapshotAccessKeyResolvesContentOnly(t *testing.T) {
	ctx := context.Background()
	forest := testForest(t)

	file, err := NewFile(forest.Setup, forest.Setup.EmptyAccumulator(), []byte("snapshot content"), testMtime(), rand.Reader)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	ref, err := forest.Put(ctx, WrapFile(file))
	if err != nil {
		t.Fatalf("forest.Put: %v", err)
	}

	snapshotKey := ref.Temporal.DeriveSnapshotKey()
	ak := AccessKey{
		RevisionLabelHash: ref.RevisionLabelHash,
		Snapshot:          snapshotKey,
		IsTemporal:        false,
		ContentCid:        ref.ContentCid,
	}

	node, err := ak.Resolve(ctx, forest.blockStore)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !node.IsFile() {
		t.Fatalf("resolved node is not a file")
	}
	content, err := node.File.Read(ctx, forest)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(content, []byte("snapshot content")) {
		t.Fatalf("content = %q, want %q", content, "snapshot content")
	}
}
