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
	"bytes"
	"crypto"
	"crypto/hmac"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedHMAC_MatchesStdlib(t *testing.T) {
	msg := []byte("what do ya want for nothing?")
	tests := []struct {
		name string
		hash crypto.Hash
		key  []byte
	}{
		{"sha256 short key", crypto.SHA256, []byte("Jefe")},
		{"sha256 block key", crypto.SHA256, bytes.Repeat([]byte{0x0b}, 64)},
		{"sha256 long key", crypto.SHA256, bytes.Repeat([]byte{0xaa}, 131)},
		{"sha512 slot key", crypto.SHA512, bytes.Repeat([]byte{0x5a}, 32)},
		{"sha1 slot key", crypto.SHA1, bytes.Repeat([]byte{0x11}, 16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := hmac.New(tt.hash.New, tt.key)
			ref.Write(msg)
			want := ref.Sum(nil)

			m := newKeyedHMAC(tt.hash, tt.key)
			assert.Equal(t, tt.hash.Size(), m.Size())
			m.Write(msg[:7])
			m.Write(msg[7:])
			assert.Equal(t, want, m.Sum(nil))
			assert.Equal(t, want, m.Sum(nil), "Sum must not change the running state")

			m.Reset()
			m.Write(msg)
			assert.Equal(t, want, m.Sum(nil))
		})
	}
}

func TestKeyedHMAC_Zero(t *testing.T) {
	b := NewSoftwareBank(2)
	require.NoError(t, b.Load(1, bytes.Repeat([]byte{0x3c}, 16), Manifest{KeyBits: 128}))

	mac, err := b.NewHMAC(1, crypto.SHA256, Access{Usage: UsageMAC, User: UserKernel})
	require.NoError(t, err)
	z, ok := mac.(Zeroer)
	require.True(t, ok)

	m := mac.(*keyedHMAC)
	zero := make([]byte, m.BlockSize())
	assert.NotEqual(t, zero, m.ipad)
	assert.NotEqual(t, zero, m.opad)

	mac.Write([]byte("message"))
	mac.Sum(nil)
	z.Zero()
	assert.Equal(t, zero, m.ipad)
	assert.Equal(t, zero, m.opad)
}
