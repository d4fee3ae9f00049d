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

package sp800108

import (
	"bytes"
	"crypto"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"testing"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncode_Layout checks every field of the encoding.
func TestEncode_Layout(t *testing.T) {
	out, err := Encode(1, []byte("label"), []byte("ctx"), 256)
	require.NoError(t, err)
	assert.Equal(t, "00000001"+hex.EncodeToString([]byte("label"))+"00"+
		hex.EncodeToString([]byte("ctx"))+"00000100", hex.EncodeToString(out))
	assert.Equal(t, EncodedLength([]byte("label"), []byte("ctx")), len(out))
}

// TestEncode_Empty encodes empty label and context.
func TestEncode_Empty(t *testing.T) {
	out, err := Encode(1, nil, nil, 128)
	require.NoError(t, err)
	assert.Equal(t, "000000010000000080", hex.EncodeToString(out))
	assert.Len(t, out, 9)
}

// TestEncode_MaxInputLength accepts the limit and rejects one byte more.
func TestEncode_MaxInputLength(t *testing.T) {
	label := bytes.Repeat([]byte{'l'}, MaxInputLength-overhead)
	_, err := Encode(1, label, nil, 128)
	require.NoError(t, err)

	_, err = Encode(1, label, []byte{1}, 128)
	assert.ErrorIs(t, err, ErrTooBig)
	assert.ErrorIs(t, err, types.ErrTooBig)
}

// TestBumpCounter requires the previous value to be n-1.
func TestBumpCounter(t *testing.T) {
	enc, err := Encode(1, []byte("a"), []byte("b"), 256)
	require.NoError(t, err)

	require.NoError(t, BumpCounter(enc, 2))
	c, err := Counter(enc)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), c)

	assert.ErrorIs(t, BumpCounter(enc, 2), ErrCounter)
	assert.ErrorIs(t, BumpCounter(enc, 4), ErrCounter)
	assert.ErrorIs(t, BumpCounter(enc, 0), ErrCounter)
	assert.ErrorIs(t, BumpCounter([]byte{0, 0}, 1), ErrShortInput)
}

// TestDerive_MatchesSingleBlock checks a 256-bit HMAC-SHA256 derivation
// equals one PRF call over the counter-1 encoding.
func TestDerive_MatchesSingleBlock(t *testing.T) {
	key := bytes.Repeat([]byte{0x0b}, 32)
	label, context := []byte("engine"), []byte("slot")

	got, err := Derive(crypto.SHA256, key, label, context, 256)
	require.NoError(t, err)

	enc, err := Encode(1, label, context, 256)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write(enc)
	assert.Equal(t, mac.Sum(nil), got)

	short, err := Derive(crypto.SHA256, key, label, context, 128)
	require.NoError(t, err)
	assert.Len(t, short, 16)
}

// TestDeriveKeyed matches Derive when the PRF holds the same key.
func TestDeriveKeyed(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	prf := NewKeyedPRF(sha256.Size, func() (hash.Hash, error) {
		return hmac.New(sha256.New, key), nil
	})
	assert.Equal(t, uint32(256), prf.Len())

	got, err := DeriveKeyed(prf, []byte("l"), []byte("c"), 192)
	require.NoError(t, err)
	want, err := Derive(crypto.SHA256, key, []byte("l"), []byte("c"), 192)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

// TestDeriveKeyed_Error surfaces MAC construction failures.
func TestDeriveKeyed_Error(t *testing.T) {
	boom := errors.New("slot empty")
	prf := NewKeyedPRF(sha256.Size, func() (hash.Hash, error) { return nil, boom })
	_, err := DeriveKeyed(prf, nil, nil, 256)
	assert.ErrorIs(t, err, boom)

	_, err = DeriveKeyed(prf, bytes.Repeat([]byte{1}, MaxInputLength), nil, 256)
	assert.ErrorIs(t, err, ErrTooBig)
}
