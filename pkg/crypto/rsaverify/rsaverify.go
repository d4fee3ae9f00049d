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

// Package rsaverify checks RSASSA-PSS and RSASSA-PKCS1-v1_5 encoded
// messages recovered by an RSA public key operation.
//
// Inputs are message representatives in the little-endian byte order
// produced by the asymmetric engine. Every content mismatch is reported
// as ErrSignatureInvalid. Sizes that can never verify are rejected with
// ErrBadLength before any data dependent work.
package rsaverify

import (
	"crypto"
	"crypto/subtle"
	"fmt"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Modulus size limits in bits.
const (
	MinModulusBits = 1024
	MaxModulusBits = 8192
)

var (
	// ErrSignatureInvalid is the single outcome for all content mismatches.
	ErrSignatureInvalid = types.ErrSignatureInvalid

	// ErrBadLength is returned for structurally impossible sizes.
	ErrBadLength = fmt.Errorf("rsaverify: %w", types.ErrBadLength)

	// ErrFault is returned when the redundant comparison disagrees with
	// the primary comparison.
	ErrFault = fmt.Errorf("rsaverify: comparison mismatch: %w", types.ErrFault)

	// ErrScratch is returned when the scratch buffer is too small.
	ErrScratch = fmt.Errorf("rsaverify: scratch buffer too small: %w", types.ErrInvalidArgument)

	// ErrHash is returned for digests without an implementation.
	ErrHash = fmt.Errorf("rsaverify: unsupported hash: %w", types.ErrNotSupported)
)

// Params describes the key and digest of a verification.
type Params struct {
	ModulusBits int
	Hash        crypto.Hash
}

func (p Params) modulusBytes() int {
	return (p.ModulusBits + 7) / 8
}

func (p Params) check() error {
	if p.ModulusBits < MinModulusBits || p.ModulusBits > MaxModulusBits {
		return ErrBadLength
	}
	if !p.Hash.Available() {
		return ErrHash
	}
	return nil
}

// reverse writes the big-endian form of a little-endian representative.
func reverse(dst, le []byte) {
	n := len(le)
	for i := 0; i < n; i++ {
		dst[i] = le[n-1-i]
	}
}

// canary repeats a comparison with a different code path. It reports
// ErrFault if the result differs from primary.
func canary(primary int, a, b []byte) error {
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	second := subtle.ConstantTimeByteEq(diff, 0)
	if len(a) != len(b) {
		second = 0
	}
	if second != primary {
		return ErrFault
	}
	return nil
}
