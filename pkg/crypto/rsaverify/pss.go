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
	"crypto/subtle"
)

const pssTrailer = 0xbc

// SaltPolicy selects how the salt length is determined.
type SaltPolicy struct {
	// Dynamic takes the salt length from the encoded message.
	Dynamic bool
	// Length is the required salt length when Dynamic is false.
	Length int
}

// SaltFixed requires a salt of n bytes.
func SaltFixed(n int) SaltPolicy {
	return SaltPolicy{Length: n}
}

// SaltDynamic accepts any salt length the encoded message declares.
func SaltDynamic() SaltPolicy {
	return SaltPolicy{Dynamic: true}
}

// PSSScratchSize returns the scratch size VerifyPSS needs for params.
func PSSScratchSize(p Params) int {
	k := p.modulusBytes()
	emLen := (p.ModulusBits - 1 + 7) / 8
	hLen := p.Hash.Size()
	maxSalt := max(emLen-hLen-2, 0)
	return k + emLen + 8 + hLen + maxSalt + hLen
}

// VerifyPSS checks an EMSA-PSS encoded message. rep is the little-endian
// message representative, exactly ceil(ModulusBits/8) bytes. scratch must
// hold PSSScratchSize(p) bytes and is zeroed before returning.
func VerifyPSS(p Params, salt SaltPolicy, rep, digest, scratch []byte) error {
	if err := p.check(); err != nil {
		return err
	}
	k := p.modulusBytes()
	emBits := p.ModulusBits - 1
	emLen := (emBits + 7) / 8
	hLen := p.Hash.Size()

	if len(rep) != k || len(digest) != hLen {
		return ErrBadLength
	}
	if salt.Dynamic {
		if emLen < hLen+2 {
			return ErrBadLength
		}
	} else if salt.Length < 0 || emLen < hLen+salt.Length+2 {
		return ErrBadLength
	}
	if len(scratch) < PSSScratchSize(p) {
		return ErrScratch
	}
	defer clear(scratch)

	be := scratch[:k]
	reverse(be, rep)
	dbLen := emLen - hLen - 1
	db := scratch[k : k+dbLen]
	mPrime := scratch[k+emLen : k+emLen+8+hLen+emLen-hLen-2]
	hPrime := scratch[len(scratch)-hLen:]

	// The representative has k bytes; a modulus with a bit count of 8n+1
	// leaves one extra leading byte that must be zero.
	ok := 1
	for _, b := range be[:k-emLen] {
		ok &= subtle.ConstantTimeByteEq(b, 0)
	}
	em := be[k-emLen:]

	ok &= subtle.ConstantTimeByteEq(em[emLen-1], pssTrailer)

	maskedDB := em[:dbLen]
	h := em[dbLen : dbLen+hLen]

	topMask := byte(0xff >> (8*emLen - emBits))
	ok &= subtle.ConstantTimeByteEq(maskedDB[0]&^topMask, 0)

	copy(db, maskedDB)
	mgf1XOR(db, p.Hash.New(), h)
	db[0] &= topMask

	// DB = PS || 0x01 || salt. Locate the 0x01 separator without
	// branching on secret-independent but attacker-controlled content.
	sep := 0
	found := 0
	for i, b := range db {
		isZero := subtle.ConstantTimeByteEq(b, 0)
		isOne := subtle.ConstantTimeByteEq(b, 1)
		first := isOne & (found ^ 1)
		sep = subtle.ConstantTimeSelect(first, i, sep)
		// Any non-zero byte before the separator is padding corruption.
		ok &= found | isZero | isOne
		found |= isOne
	}
	ok &= found

	saltLen := dbLen - sep - 1
	if !salt.Dynamic {
		ok &= subtle.ConstantTimeEq(int32(saltLen), int32(salt.Length))
		saltLen = salt.Length
		sep = dbLen - saltLen - 1
	}
	if sep < 0 || saltLen < 0 || saltLen > dbLen-1 {
		return ErrSignatureInvalid
	}

	clear(mPrime[:8])
	copy(mPrime[8:], digest)
	copy(mPrime[8+hLen:], db[sep+1:])
	mPrime = mPrime[:8+hLen+saltLen]

	hh := p.Hash.New()
	hh.Write(mPrime)
	hPrime = hh.Sum(hPrime[:0])

	ok &= subtle.ConstantTimeCompare(h, hPrime)
	if err := canary(subtle.ConstantTimeCompare(h, hPrime), h, hPrime); err != nil {
		return err
	}
	if ok != 1 {
		return ErrSignatureInvalid
	}
	return nil
}
