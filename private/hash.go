// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import "github.com/zeebo/blake3"

func newDomainHasher(domain string) *blake3.Hasher {
	h := blake3.New()
	h.Write([]byte(domain))
	return h
}
