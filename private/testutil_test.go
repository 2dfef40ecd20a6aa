// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/webnative-fs/wnfs/nameaccumulator"
	"github.com/webnative-fs/wnfs/store"
)

func testSetup(t *testing.T) *nameaccumulator.Setup {
	t.Helper()
	setup, err := nameaccumulator.TrustedSetup(rand.Reader)
	if err != nil {
		t.Fatalf("TrustedSetup: %v", err)
	}
	return setup
}

func testForest(t *testing.T) *Forest {
	t.Helper()
	return NewForest(testSetup(t), store.NewMemoryStore(), rand.Reader)
}

func testMtime() int64 {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
}
