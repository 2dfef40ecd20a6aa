// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package hamt

import "errors"

// ErrCursorOutOfBounds is returned when a hash's nibbles are exhausted
// before the descent reaches a leaf bucket. With a 256-bit Blake3
// digest and 4-bit branching this would require 64 levels of
// collision, a structural bug rather than something a caller can
// cause by normal use.
var ErrCursorOutOfBounds = errors.New("hamt: cursor out of bounds")

// ErrKeyNotFound names a missing key. No function in this package
// returns it: lookups and removals of an absent key report absence
// without an error, and Merge resolves Modify changes from the values
// the diff carries.
var ErrKeyNotFound = errors.New("hamt: key not found")
