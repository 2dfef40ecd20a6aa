// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import "errors"

var (
	// ErrNodeNotFound is returned when a forest lookup for a revision
	// label or content CID turns up nothing.
	ErrNodeNotFound = errors.New("private: node not found")

	// ErrNotAFile is returned when a file-only operation (read, write,
	// read_at) is attempted against a directory node.
	ErrNotAFile = errors.New("private: not a file")

	// ErrNotADirectory is returned when a directory-only operation
	// (ls, mkdir, lookup_node) is attempted against a file node.
	ErrNotADirectory = errors.New("private: not a directory")

	// ErrPathNotFound is returned when get_node or a derived operation
	// cannot resolve every segment of a path.
	ErrPathNotFound = errors.New("private: path not found")

	// ErrInvalidPath is returned for a structurally invalid path, such
	// as one with zero segments where at least one is required.
	ErrInvalidPath = errors.New("private: invalid path")

	// ErrAlreadyExists is returned by an operation that would overwrite
	// an existing node where overwriting isn't the requested semantics
	// (e.g. cp onto a path that is already taken).
	ErrAlreadyExists = errors.New("private: already exists")

	// ErrDecryptionFailed is the node-level counterpart of
	// crypto.ErrDecryptionFailed, a separate sentinel that does not wrap
	// it: a content or header block failed to authenticate under
	// the supplied key, whether because the key is wrong or the block
	// is corrupted.
	ErrDecryptionFailed = errors.New("private: decryption failed")

	// ErrNoIntermediateRatchet is history traversal's BudgetExceeded:
	// too many ratchet steps lie between the requested revision and
	// the current one for the supplied budget.
	ErrNoIntermediateRatchet = errors.New("private: no intermediate ratchet within budget")

	// ErrIncompatibleAccumulatorSetups is returned when two forests
	// were built under different RSA moduli and cannot be diffed or
	// merged.
	ErrIncompatibleAccumulatorSetups = errors.New("private: incompatible accumulator setups")

	// ErrInvalidChunkRange is returned by read_at for an out-of-bounds
	// or zero-length byte range.
	ErrInvalidChunkRange = errors.New("private: invalid chunk range")

	// ErrShareLabelNotFound is returned when a recipient scans the
	// expected counter range for a share and finds nothing.
	ErrShareLabelNotFound = errors.New("private: share label not found")
)
