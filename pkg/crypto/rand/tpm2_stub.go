// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keyengine.
//
// go-keyengine is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

//go:build !tpm2

package rand

import "fmt"

const tpm2Compiled = false

// newTPM2Source reports the TPM as absent. GetRandom needs the tpm2 tag.
func newTPM2Source(cfg *TPM2Config) (Source, error) {
	target := "/dev/tpm0"
	switch {
	case cfg == nil:
	case cfg.UseSimulator:
		target = "simulator"
	case cfg.Device != "":
		target = cfg.Device
	}
	return nil, fmt.Errorf("%w: tpm2 %s: binary built without -tags tpm2", ErrUnavailable, target)
}
