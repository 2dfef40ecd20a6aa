// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Put implements BlockStore by sending the raw bytes to the server; the
// server is expected to hash with BLAKE3-256 and return the resulting CID,
// which is verified against the client's own computation.
func (c *RemoteClient) Put(ctx context.Context, data []byte, codec uint64) (cid.Cid, error) {
	if len(data) > MaxBlockSize {
		return cid.Undef, ErrMaximumBlockSizeExceeded
	}

	want, err := ComputeCid(data, codec)
	if err != nil {
		return cid.Undef, err
	}

	payload := &bytes.Buffer{}
	_ = binary.Write(payload, binary.LittleEndian, codec)
	_ = binary.Write(payload, binary.LittleEndian, uint32(len(data)))
	payload.Write(data)

	resp, err := c.sendRequest(ctx, msgPut, payload.Bytes())
	if err != nil {
		return cid.Undef, fmt.Errorf("store: put: %w", err)
	}

	got, err := cid.Cast(resp.payload)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: put response: %v", ErrInvalidResponse, err)
	}
	if !got.Equals(want) {
		return cid.Undef, fmt.Errorf("%w: server returned cid %s, expected %s", ErrInvalidResponse, got, want)
	}
	return got, nil
}

// Get implements BlockStore.
func (c *RemoteClient) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	resp, err := c.sendRequest(ctx, msgGet, id.Bytes())
	if err != nil {
		if IsServerError(err, serverErrNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return resp.payload, nil
}

// Has implements BlockStore.
func (c *RemoteClient) Has(ctx context.Context, id cid.Cid) (bool, error) {
	resp, err := c.sendRequest(ctx, msgHas, id.Bytes())
	if err != nil {
		return false, fmt.Errorf("store: has: %w", err)
	}
	if len(resp.payload) < 1 {
		return false, fmt.Errorf("%w: has response too short", ErrInvalidResponse)
	}
	return resp.payload[0] == 1, nil
}

// serverErrNotFound is the server-side error code for a missing block.
const serverErrNotFound uint32 = 1
