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

package engine

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/hmac"
	"hash"
	"testing"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/cmac"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/logging"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func macRequest(op Op, alg types.Algorithm, key SymmetricKey, msg, tag []byte) *Request {
	return &Request{
		Op:        op,
		Algorithm: alg,
		Mode:      types.ModeMAC,
		Key:       key,
		Data:      DataArgs{Src: Bytes(msg), Dst: Bytes(tag)},
	}
}

func stdHMAC(h crypto.Hash, key, msg []byte) []byte {
	m := hmac.New(h.New, key)
	m.Write(msg)
	return m.Sum(nil)
}

// TestHMAC_RFC4231 checks the software path against RFC 4231 vectors,
// including a key longer than the block size.
func TestHMAC_RFC4231(t *testing.T) {
	e := newTestEngine(t, nil)
	tests := []struct {
		name string
		key  []byte
		msg  []byte
		want string
	}{
		{
			name: "case 2",
			key:  []byte("Jefe"),
			msg:  []byte("what do ya want for nothing?"),
			want: "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		},
		{
			name: "case 6",
			key:  bytes.Repeat([]byte{0xaa}, 131),
			msg:  []byte("Test Using Larger Than Block-Size Key - Hash Key First"),
			want: "60e431591ee0b67f0d8a26aacbf5b77f8e0bc6213728c5140546040f0ee37f54",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := make([]byte, 32)
			_, err := e.Perform(newKernelContext(t, e),
				macRequest(OpOneShot, types.AlgorithmHMACSHA256, SymmetricKey{Value: tt.key}, tt.msg, tag))
			require.NoError(t, err)
			assert.Equal(t, unhex(t, tt.want), tag)
		})
	}
}

// TestHMAC_HybridMatchesSoftware computes identical tags from inline and
// slot resident keys for every hash.
func TestHMAC_HybridMatchesSoftware(t *testing.T) {
	e := newTestEngine(t, nil)
	msg := []byte("the same message through both paths")
	algs := []types.Algorithm{
		types.AlgorithmHMACSHA1, types.AlgorithmHMACSHA224, types.AlgorithmHMACSHA256,
		types.AlgorithmHMACSHA384, types.AlgorithmHMACSHA512,
	}
	for _, size := range []int{16, 24, 32} {
		key := bytes.Repeat([]byte{byte(size)}, size)
		for _, alg := range algs {
			t.Run(alg.String(), func(t *testing.T) {
				n := alg.Hash().Size()
				soft := make([]byte, n)
				_, err := e.Perform(newKernelContext(t, e),
					macRequest(OpOneShot, alg, SymmetricKey{Value: key}, msg, soft))
				require.NoError(t, err)

				hybrid := make([]byte, n)
				_, err = e.Perform(newKernelContext(t, e),
					macRequest(OpOneShot, alg, SymmetricKey{Value: key, Slot: 2, WriteToSlot: true}, msg, hybrid))
				require.NoError(t, err)

				assert.Equal(t, stdHMAC(alg.Hash(), key, msg), soft)
				assert.Equal(t, soft, hybrid)
			})
		}
	}
}

// zeroCountingBank counts how often the keyed HMACs it hands out are zeroed.
type zeroCountingBank struct {
	keyslot.Bank
	zeroed int
}

type countedHMAC struct {
	hash.Hash
	bank *zeroCountingBank
}

func (m *countedHMAC) Zero() {
	m.Hash.(keyslot.Zeroer).Zero()
	m.bank.zeroed++
}

func (b *zeroCountingBank) NewHMAC(index int, h crypto.Hash, access keyslot.Access) (hash.Hash, error) {
	mac, err := b.Bank.NewHMAC(index, h, access)
	if err != nil {
		return nil, err
	}
	return &countedHMAC{Hash: mac, bank: b}, nil
}

// TestHMAC_HybridKeyZeroedOnReset wipes the keyed HMAC when the context
// resets, after success and after a failed verify.
func TestHMAC_HybridKeyZeroedOnReset(t *testing.T) {
	bank := &zeroCountingBank{Bank: keyslot.NewSoftwareBank(keyslot.DefaultSlots)}
	e := newTestEngine(t, &Config{Switch: hwengine.New(&hwengine.Config{Bank: bank, Logger: logging.Discard()})})
	key := bytes.Repeat([]byte{0x2f}, 32)
	msg := []byte("hybrid")

	tag := make([]byte, 32)
	_, err := e.Perform(newKernelContext(t, e),
		macRequest(OpOneShot, types.AlgorithmHMACSHA256, SymmetricKey{Value: key, Slot: 5, WriteToSlot: true}, msg, tag))
	require.NoError(t, err)
	assert.Equal(t, stdHMAC(crypto.SHA256, key, msg), tag)
	assert.Equal(t, 1, bank.zeroed)

	tag[0] ^= 1
	_, err = e.Perform(newKernelContext(t, e), &Request{
		Op:        OpOneShot,
		Algorithm: types.AlgorithmHMACSHA256,
		Mode:      types.ModeMACVerify,
		Key:       SymmetricKey{Value: key, Slot: 5, WriteToSlot: true},
		Data:      DataArgs{Src: Bytes(msg), MAC: Bytes(tag)},
	})
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	assert.Equal(t, 2, bank.zeroed)
}

// TestHMAC_Streaming gives the same tag for split and whole input.
func TestHMAC_Streaming(t *testing.T) {
	e := newTestEngine(t, nil)
	msg := bytes.Repeat([]byte("stream"), 50)

	for _, key := range []SymmetricKey{
		{Value: []byte("inline key")},
		{Value: bytes.Repeat([]byte{3}, 32), Slot: 1, WriteToSlot: true},
	} {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, macRequest(OpInit|OpSetKey, types.AlgorithmHMACSHA512, key, nil, nil))
		require.NoError(t, err)
		for i := 0; i < len(msg); i += 70 {
			_, err = e.Perform(c, macRequest(OpUpdate, 0, SymmetricKey{}, msg[i:min(i+70, len(msg))], nil))
			require.NoError(t, err)
		}
		tag := make([]byte, 64)
		res, err := e.Perform(c, macRequest(OpDoFinal|OpReset, 0, SymmetricKey{}, nil, tag))
		require.NoError(t, err)
		assert.Equal(t, 64, res.Written)
		assert.Equal(t, stdHMAC(crypto.SHA512, key.Value, msg), tag)
	}
}

// TestHMAC_EmptyMessage applies the inner pad even without data.
func TestHMAC_EmptyMessage(t *testing.T) {
	e := newTestEngine(t, nil)
	tag := make([]byte, 32)
	_, err := e.Perform(newKernelContext(t, e),
		macRequest(OpOneShot, types.AlgorithmHMACSHA256, SymmetricKey{Value: []byte("k")}, nil, tag))
	require.NoError(t, err)
	assert.Equal(t, stdHMAC(crypto.SHA256, []byte("k"), nil), tag)
}

// TestHMAC_SlotRestrictions rejects MD5 slot keys and slots provisioned
// for another purpose.
func TestHMAC_SlotRestrictions(t *testing.T) {
	e := newTestEngine(t, nil)
	key := bytes.Repeat([]byte{1}, 16)

	_, err := e.Perform(newKernelContext(t, e),
		macRequest(OpOneShot, types.AlgorithmHMACMD5, SymmetricKey{Value: key, Slot: 5, WriteToSlot: true}, nil, make([]byte, 16)))
	assert.ErrorIs(t, err, ErrNotSupported)
	_, resident := e.Switch().SlotResident(5)
	assert.False(t, resident)

	m := keyslot.Manifest{Purpose: keyslot.PurposeCipher, User: keyslot.UserAny, KeyBits: 128}
	require.NoError(t, e.Switch().LoadSlot(6, key, m))
	_, err = e.Perform(newKernelContext(t, e),
		macRequest(OpOneShot, types.AlgorithmHMACSHA256, SymmetricKey{Slot: 6, UseExistingSlot: true}, nil, make([]byte, 32)))
	assert.ErrorIs(t, err, keyslot.ErrAccessDenied)

	tag := make([]byte, 16)
	_, err = e.Perform(newKernelContext(t, e),
		macRequest(OpOneShot, types.AlgorithmHMACMD5, SymmetricKey{Value: key}, []byte("md5"), tag))
	require.NoError(t, err)
	assert.Equal(t, stdHMAC(crypto.MD5, key, []byte("md5")), tag)
}

// TestMAC_Verify accepts only the full tag. Wrong bytes and wrong
// lengths fail the same way.
func TestMAC_Verify(t *testing.T) {
	e := newTestEngine(t, nil)
	key := []byte("verification key")
	msg := []byte("payload")
	good := stdHMAC(crypto.SHA256, key, msg)

	verify := func(expected []byte) error {
		_, err := e.Perform(newKernelContext(t, e), &Request{
			Op:        OpOneShot,
			Algorithm: types.AlgorithmHMACSHA256,
			Mode:      types.ModeMACVerify,
			Key:       SymmetricKey{Value: key},
			Data:      DataArgs{Src: Bytes(msg), MAC: Bytes(expected)},
		})
		return err
	}

	assert.NoError(t, verify(good))

	bad := bytes.Clone(good)
	bad[31] ^= 1
	tests := []struct {
		name     string
		expected []byte
	}{
		{"flipped byte", bad},
		{"one byte prefix", good[:1]},
		{"half tag", good[:16]},
		{"empty", nil},
		{"trailing byte", append(bytes.Clone(good), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verify(tt.expected)
			assert.ErrorIs(t, err, ErrSignatureInvalid)
			assert.NotErrorIs(t, err, ErrBadLength)
		})
	}
}

// TestCMAC_NIST matches SP 800-38B AES-128 examples.
func TestCMAC_NIST(t *testing.T) {
	e := newTestEngine(t, nil)
	key := unhex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	tests := []struct {
		msg  string
		want string
	}{
		{"", "bb1d6929e95937287fa37d129b756746"},
		{"6bc1bee22e409f96e93d7e117393172a", "070a16b46b4d4144f79bdd9dd04a287c"},
	}
	for _, tt := range tests {
		tag := make([]byte, 16)
		_, err := e.Perform(newKernelContext(t, e),
			macRequest(OpOneShot, types.AlgorithmCMACAES, SymmetricKey{Value: key}, unhex(t, tt.msg), tag))
		require.NoError(t, err)
		assert.Equal(t, unhex(t, tt.want), tag)
	}
}

// TestCMAC_SlotKeyAndStreaming matches the package implementation.
func TestCMAC_SlotKeyAndStreaming(t *testing.T) {
	e := newTestEngine(t, nil)
	key := bytes.Repeat([]byte{0x33}, 32)
	msg := bytes.Repeat([]byte{0xee}, 45)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	want, err := cmac.Sum(block, msg)
	require.NoError(t, err)

	c := newKernelContext(t, e)
	_, err = e.Perform(c, macRequest(OpInit|OpSetKey|OpUpdate, types.AlgorithmCMACAES,
		SymmetricKey{Value: key, Slot: 0, WriteToSlot: true, Purpose: keyslot.PurposeMAC}, msg[:20], nil))
	require.NoError(t, err)
	tag := make([]byte, 16)
	_, err = e.Perform(c, macRequest(OpDoFinal|OpReset, 0, SymmetricKey{}, msg[20:], tag))
	require.NoError(t, err)
	assert.Equal(t, want, tag)
}

// TestCMAC_DestSlot writes tags into both halves of a slot.
func TestCMAC_DestSlot(t *testing.T) {
	e := newTestEngine(t, nil)
	key := bytes.Repeat([]byte{0x44}, 16)
	target := &SlotTarget{
		Index:    9,
		Manifest: keyslot.Manifest{Purpose: keyslot.PurposeCipher, User: keyslot.UserAny, KeyBits: 256},
	}

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	var want []byte
	for i, half := range []keyslot.Half{keyslot.HalfLower, keyslot.HalfUpper} {
		msg := []byte{byte(i)}
		req := macRequest(OpOneShot, types.AlgorithmCMACAES, SymmetricKey{Value: key}, msg, nil)
		req.Init = MACInit{Dest: target, Half: half}
		res, err := e.Perform(newKernelContext(t, e), req)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Written)

		tag, err := cmac.Sum(block, msg)
		require.NoError(t, err)
		want = append(want, tag...)
	}

	_, resident := e.Switch().SlotResident(9)
	require.True(t, resident)

	// the slot now holds want: encrypt through it and compare
	pt := make([]byte, 16)
	viaSlot := make([]byte, 16)
	req := cipherRequest(OpOneShot, types.AlgorithmAESECB, types.ModeEncrypt, nil, nil, pt, viaSlot)
	req.Key = SymmetricKey{Slot: 9, UseExistingSlot: true}
	_, err = e.Perform(newKernelContext(t, e), req)
	require.NoError(t, err)

	expect, err := aes.NewCipher(want)
	require.NoError(t, err)
	direct := make([]byte, 16)
	expect.Encrypt(direct, pt)
	assert.Equal(t, direct, viaSlot)

	bad := macRequest(OpOneShot, types.AlgorithmHMACSHA256, SymmetricKey{Value: key}, nil, nil)
	bad.Init = MACInit{Dest: target}
	_, err = e.Perform(newKernelContext(t, e), bad)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
