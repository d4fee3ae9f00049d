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

package keyslot

import (
	"crypto"
	"hash"
)

// Zeroer is implemented by keyed state that can wipe its key material.
type Zeroer interface {
	Zero()
}

// keyedHMAC is RFC 2104 HMAC whose padded keys stay in buffers it owns,
// so Zero can clear them when the engine releases the computation.
type keyedHMAC struct {
	inner, outer hash.Hash
	ipad, opad   []byte
}

var (
	_ hash.Hash = (*keyedHMAC)(nil)
	_ Zeroer    = (*keyedHMAC)(nil)
)

func newKeyedHMAC(h crypto.Hash, key []byte) *keyedHMAC {
	m := &keyedHMAC{inner: h.New(), outer: h.New()}
	bs := m.inner.BlockSize()
	m.ipad = make([]byte, bs)
	m.opad = make([]byte, bs)
	if len(key) > bs {
		m.outer.Write(key)
		m.outer.Sum(m.ipad[:0])
		m.outer.Reset()
	} else {
		copy(m.ipad, key)
	}
	copy(m.opad, m.ipad)
	for i := range m.ipad {
		m.ipad[i] ^= 0x36
		m.opad[i] ^= 0x5c
	}
	m.inner.Write(m.ipad)
	return m
}

func (m *keyedHMAC) Write(p []byte) (int, error) { return m.inner.Write(p) }

func (m *keyedHMAC) Sum(b []byte) []byte {
	in := m.inner.Sum(nil)
	defer clear(in)
	m.outer.Reset()
	m.outer.Write(m.opad)
	m.outer.Write(in)
	return m.outer.Sum(b)
}

func (m *keyedHMAC) Reset() {
	m.inner.Reset()
	m.inner.Write(m.ipad)
}

func (m *keyedHMAC) Size() int { return m.inner.Size() }

func (m *keyedHMAC) BlockSize() int { return m.inner.BlockSize() }

// Zero clears both padded keys and the running digests. The HMAC is
// unusable afterwards.
func (m *keyedHMAC) Zero() {
	clear(m.ipad)
	clear(m.opad)
	m.inner.Reset()
	m.outer.Reset()
}
