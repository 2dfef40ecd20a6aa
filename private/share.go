// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/webnative-fs/wnfs/crypto"
	"github.com/webnative-fs/wnfs/nameaccumulator"
	"github.com/webnative-fs/wnfs/store"
)

const (
	typeTagShareTemporal = "wnfs/share/temporal"
	typeTagShareSnapshot = "wnfs/share/snapshot"

	shareLabelDomain = "wnfs/share/label"
)

// AccessKeyFromRef builds a temporal Access Key from a PrivateRef, the
// ordinary case: whoever holds a PrivateRef already has everything a
// temporal share needs.
func AccessKeyFromRef(ref PrivateRef) AccessKey {
	return AccessKey{
		RevisionLabelHash: ref.RevisionLabelHash,
		Temporal:          ref.Temporal,
		IsTemporal:        true,
		ContentCid:        ref.ContentCid,
	}
}

// ToRef recovers the PrivateRef a temporal Access Key carries. Snapshot
// keys have no ref, only a fixed, already-resolved content block.
func (ak AccessKey) ToRef() (PrivateRef, error) {
	if !ak.IsTemporal {
		return PrivateRef{}, fmt.Errorf("private: access key is not temporal")
	}
	return PrivateRef{
		RevisionLabelHash: ak.RevisionLabelHash,
		Temporal:          ak.Temporal,
		ContentCid:        ak.ContentCid,
	}, nil
}

// Resolve loads the node an Access Key points to. A snapshot key can
// only decrypt that revision's content block, so the node it returns
// carries no usable header (its ratchet cannot be advanced further);
// a temporal key resolves the node fully.
func (ak AccessKey) Resolve(ctx context.Context, bs store.BlockStore) (*PrivateNode, error) {
	c, err := cid.Cast(ak.ContentCid)
	if err != nil {
		return nil, fmt.Errorf("private: decode access key content cid: %w", err)
	}
	if ak.IsTemporal {
		return loadNode(ctx, bs, c, ak.Temporal)
	}
	return loadNodeFromSnapshot(ctx, bs, c, crypto.AesKey(ak.Snapshot))
}

// loadNodeFromSnapshot decrypts a content block directly under a
// snapshot key, without the header block a temporal key would also
// grant access to. The returned node's header is empty: callers that
// received a snapshot share get read access to this one revision's
// metadata and body, nothing more.
func loadNodeFromSnapshot(ctx context.Context, bs store.BlockStore, contentCid cid.Cid, snapshotKey crypto.AesKey) (*PrivateNode, error) {
	ciphertext, err := bs.Get(ctx, contentCid)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.DecryptGCM(snapshotKey, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	var wire wireContent
	if err := cbor.Unmarshal(plaintext, &wire); err != nil {
		return nil, fmt.Errorf("private: decode content: %w", err)
	}

	switch wire.Type {
	case typeTagFile:
		var body wireFileBody
		if err := cbor.Unmarshal(wire.Body, &body); err != nil {
			return nil, fmt.Errorf("private: decode file body: %w", err)
		}
		f := &PrivateFile{Metadata: wire.Metadata}
		if err := f.fromWireBody(body); err != nil {
			return nil, err
		}
		return WrapFile(f), nil
	case typeTagDir:
		var body wireDirBody
		if err := cbor.Unmarshal(wire.Body, &body); err != nil {
			return nil, fmt.Errorf("private: decode dir body: %w", err)
		}
		d := &PrivateDirectory{Metadata: wire.Metadata, Entries: make(map[string]PrivateLink, len(body.Entries))}
		for _, e := range body.Entries {
			d.Entries[e.Name] = NewUnresolvedLink(PrivateRef{
				RevisionLabelHash: [32]byte(e.RevisionLabelHash),
				Temporal:          TemporalKey(crypto.AesKey(e.Temporal)),
				ContentCid:        e.ContentCid,
			})
		}
		return WrapDirectory(d), nil
	default:
		return nil, ErrUnexpectedNodeType
	}
}

// wireAccessKey is the DAG-CBOR shape of an Access Key as carried
// inside a share's RSA-OAEP ciphertext, discriminated by Type.
type wireAccessKey struct {
	Type       string `cbor:"1,keyasint"`
	Label      []byte `cbor:"2,keyasint"`
	ContentCid []byte `cbor:"3,keyasint"`
	Key        []byte `cbor:"4,keyasint"`
}

func marshalAccessKey(ak AccessKey) ([]byte, error) {
	wire := wireAccessKey{Label: ak.RevisionLabelHash[:], ContentCid: ak.ContentCid}
	if ak.IsTemporal {
		wire.Type = typeTagShareTemporal
		wire.Key = crypto.AesKey(ak.Temporal)[:]
	} else {
		wire.Type = typeTagShareSnapshot
		wire.Key = crypto.AesKey(ak.Snapshot)[:]
	}
	data, err := cborEncMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("private: encode access key: %w", err)
	}
	return data, nil
}

func unmarshalAccessKey(data []byte) (AccessKey, error) {
	var wire wireAccessKey
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return AccessKey{}, fmt.Errorf("private: decode access key: %w", err)
	}
	ak := AccessKey{ContentCid: wire.ContentCid}
	copy(ak.RevisionLabelHash[:], wire.Label)
	switch wire.Type {
	case typeTagShareTemporal:
		ak.IsTemporal = true
		ak.Temporal = TemporalKey(crypto.AesKey(wire.Key))
	case typeTagShareSnapshot:
		ak.Snapshot = SnapshotKey(crypto.AesKey(wire.Key))
	default:
		return AccessKey{}, ErrUnexpectedNodeType
	}
	return ak, nil
}

// shareLabel derives the deterministic forest label a share at
// (sharerRootDid, recipientModulus, counter) is written to: both
// sides compute it independently, the sharer to write, the recipient
// to scan.
func shareLabel(setup *nameaccumulator.Setup, sharerRootDid string, recipientModulus []byte, counter uint64) nameaccumulator.NameAccumulator {
	seed := make([]byte, 0, len(sharerRootDid)+len(recipientModulus)+8)
	seed = append(seed, []byte(sharerRootDid)...)
	seed = append(seed, recipientModulus...)
	for b := 0; b < 8; b++ {
		seed = append(seed, byte(counter>>(8*b)))
	}
	segment := nameaccumulator.DeriveNameSegment(shareLabelDomain, seed)
	label, _ := nameaccumulator.Accumulate(setup, setup.EmptyAccumulator(), []nameaccumulator.NameSegment{segment})
	return label
}

// Share encrypts ak under the recipient's RSA-OAEP public key and
// writes it into forest at the deterministic share label for
// (sharerRootDid, recipient, counter). Counter must be advanced by the
// caller (typically tracked per recipient) so repeated shares land at
// distinct labels.
func Share(ctx context.Context, forest *Forest, sharerRootDid string, recipient *rsa.PublicKey, counter uint64, ak AccessKey, rng io.Reader) error {
	plaintext, err := marshalAccessKey(ak)
	if err != nil {
		return err
	}
	ciphertext, err := crypto.EncryptForRecipient(recipient, plaintext, rng)
	if err != nil {
		return err
	}
	blockCid, err := forest.blockStore.Put(ctx, ciphertext, store.CodecRaw)
	if err != nil {
		return err
	}
	label := shareLabel(forest.Setup, sharerRootDid, recipient.N.Bytes(), counter)
	return forest.putLabel(ctx, label, blockCid)
}

// ReceiveShare scans share labels for (sharerRootDid, recipient) from
// startCounter upward, returning the first Access Key recipient's
// private key can decrypt. It returns ErrShareLabelNotFound once
// maxScan consecutive labels are tried without a hit.
func ReceiveShare(ctx context.Context, forest *Forest, sharerRootDid string, recipient *crypto.ExchangeKeyPair, startCounter uint64, maxScan uint64) (AccessKey, error) {
	modulus := recipient.PublicModulus()
	for i := uint64(0); i < maxScan; i++ {
		counter := startCounter + i
		label := shareLabel(forest.Setup, sharerRootDid, modulus, counter)
		cids, err := forest.getCids(ctx, label)
		if err != nil {
			return AccessKey{}, err
		}
		for _, c := range cids {
			ciphertext, err := forest.blockStore.Get(ctx, c)
			if err != nil {
				continue
			}
			plaintext, err := recipient.DecryptAsRecipient(ciphertext)
			if err != nil {
				continue
			}
			return unmarshalAccessKey(plaintext)
		}
	}
	return AccessKey{}, ErrShareLabelNotFound
}
