// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package public

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/webnative-fs/wnfs/store"
)

func TestFilePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()

	c, err := PutFile(ctx, bs, &PublicFile{Content: []byte("recipient public key bytes")})
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	got, err := GetFile(ctx, bs, c)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if !bytes.Equal(got.Content, []byte("recipient public key bytes")) {
		t.Fatalf("Content = %q, want %q", got.Content, "recipient public key bytes")
	}
}

func TestDirectoryPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()

	fileCid, err := PutFile(ctx, bs, &PublicFile{Content: []byte("hello")})
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}

	dirCid, err := PutDirectory(ctx, bs, &PublicDirectory{Entries: map[string]cid.Cid{
		"hello.txt": fileCid,
	}})
	if err != nil {
		t.Fatalf("PutDirectory: %v", err)
	}

	dir, err := GetDirectory(ctx, bs, dirCid)
	if err != nil {
		t.Fatalf("GetDirectory: %v", err)
	}
	names := dir.Ls()
	if len(names) != 1 || names[0] != "hello.txt" {
		t.Fatalf("Ls() = %v, want [hello.txt]", names)
	}

	got, err := GetFile(ctx, bs, dir.Entries["hello.txt"])
	if err != nil {
		t.Fatalf("GetFile on child: %v", err)
	}
	if !bytes.Equal(got.Content, []byte("hello")) {
		t.Fatalf("child content = %q, want %q", got.Content, "hello")
	}
}

func TestGetFileRejectsDirectoryType(t *testing.T) {
	ctx := context.Background()
	bs := store.NewMemoryStore()

	dirCid, err := PutDirectory(ctx, bs, &PublicDirectory{Entries: map[string]cid.Cid{}})
	if err != nil {
		t.Fatalf("PutDirectory: %v", err)
	}

	if _, err := GetFile(ctx, bs, dirCid); err != ErrUnexpectedNodeType {
		t.Fatalf("GetFile on a directory cid err = %v, want ErrUnexpectedNodeType", err)
	}
}
