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

package rsaverify

import (
	"crypto"
	"crypto/subtle"
)

// digestInfoPrefix holds the DER DigestInfo header for each digest.
var digestInfoPrefix = map[crypto.Hash][]byte{
	crypto.MD5:    {0x30, 0x20, 0x30, 0x0c, 0x06, 0x08, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x02, 0x05, 0x05, 0x00, 0x04, 0x10},
	crypto.SHA1:   {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA224: {0x30, 0x2d, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x04, 0x05, 0x00, 0x04, 0x1c},
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

// DigestInfoPrefix returns the DigestInfo header for h.
func DigestInfoPrefix(h crypto.Hash) ([]byte, bool) {
	p, ok := digestInfoPrefix[h]
	return p, ok
}

// PKCS1v15ScratchSize returns the scratch size VerifyPKCS1v15 needs.
func PKCS1v15ScratchSize(p Params) int {
	return 2 * p.modulusBytes()
}

// VerifyPKCS1v15 checks an EMSA-PKCS1-v1_5 encoded message by building
// the expected encoding and comparing it with the representative.
func VerifyPKCS1v15(p Params, rep, digest, scratch []byte) error {
	if err := p.check(); err != nil {
		return err
	}
	prefix, ok := digestInfoPrefix[p.Hash]
	if !ok {
		return ErrHash
	}
	k := p.modulusBytes()
	tLen := len(prefix) + p.Hash.Size()
	if len(rep) != k || len(digest) != p.Hash.Size() || k < tLen+11 {
		return ErrBadLength
	}
	if len(scratch) < PKCS1v15ScratchSize(p) {
		return ErrScratch
	}
	defer clear(scratch)

	em := scratch[:k]
	want := scratch[k : 2*k]
	reverse(em, rep)

	want[0] = 0x00
	want[1] = 0x01
	psEnd := k - tLen - 1
	for i := 2; i < psEnd; i++ {
		want[i] = 0xff
	}
	want[psEnd] = 0x00
	copy(want[psEnd+1:], prefix)
	copy(want[psEnd+1+len(prefix):], digest)

	eq := subtle.ConstantTimeCompare(em, want)
	if err := canary(eq, em, want); err != nil {
		return err
	}
	if eq != 1 {
		return ErrSignatureInvalid
	}
	return nil
}
