// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("private: build canonical cbor enc mode: %v", err))
	}
	return mode
}()
