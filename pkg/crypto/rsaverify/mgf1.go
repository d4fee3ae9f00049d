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
	"encoding/binary"
	"hash"
)

// MGF1 returns outLen bytes of MGF1(seed) as defined in RFC 8017 B.2.1.
func MGF1(h crypto.Hash, seed []byte, outLen int) []byte {
	out := make([]byte, outLen)
	mgf1XOR(out, h.New(), seed)
	return out
}

// mgf1XOR XORs MGF1(seed) into out.
func mgf1XOR(out []byte, h hash.Hash, seed []byte) {
	var counter [4]byte
	var digest []byte
	done := 0
	for i := uint32(0); done < len(out); i++ {
		binary.BigEndian.PutUint32(counter[:], i)
		h.Reset()
		h.Write(seed)
		h.Write(counter[:])
		digest = h.Sum(digest[:0])
		for j := 0; j < len(digest) && done < len(out); j++ {
			out[done] ^= digest[j]
			done++
		}
	}
	clear(digest)
}
