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

// Package sp800108 implements the NIST SP 800-108 counter-mode key
// derivation input encoding and an HMAC based derivation on top of it.
//
// The fixed input layout is
//
//	BE32(counter) || label || 0x00 || context || BE32(bits)
package sp800108

import (
	"crypto"
	"encoding/binary"
	"fmt"
	"hash"

	kdf "github.com/canonical/go-sp800.108-kdf"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

const (
	// MaxInputLength is the largest encoded input accepted by the engines.
	MaxInputLength = 128

	// overhead is the counter, separator and length field.
	overhead = 4 + 1 + 4
)

var (
	// ErrTooBig is returned when the encoded input exceeds MaxInputLength.
	ErrTooBig = fmt.Errorf("sp800108: encoded input exceeds %d bytes: %w", MaxInputLength, types.ErrTooBig)

	// ErrCounter is returned by BumpCounter when the current counter is not n-1.
	ErrCounter = fmt.Errorf("sp800108: unexpected counter value: %w", types.ErrBadState)

	// ErrShortInput is returned for buffers too short to hold a counter.
	ErrShortInput = fmt.Errorf("sp800108: encoded input too short: %w", types.ErrBadLength)
)

// EncodedLength returns the encoded size for the given label and context.
func EncodedLength(label, context []byte) int {
	return overhead + len(label) + len(context)
}

// Encode builds the fixed input for one PRF invocation.
func Encode(counter uint32, label, context []byte, bits uint32) ([]byte, error) {
	n := EncodedLength(label, context)
	if n > MaxInputLength {
		return nil, ErrTooBig
	}
	out := make([]byte, 0, n)
	out = binary.BigEndian.AppendUint32(out, counter)
	out = append(out, label...)
	out = append(out, 0x00)
	out = append(out, context...)
	out = binary.BigEndian.AppendUint32(out, bits)
	return out, nil
}

// Counter returns the counter field of an encoded input.
func Counter(encoded []byte) (uint32, error) {
	if len(encoded) < overhead {
		return 0, ErrShortInput
	}
	return binary.BigEndian.Uint32(encoded), nil
}

// BumpCounter sets the counter field of encoded to n in place. The
// current value must be n-1.
func BumpCounter(encoded []byte, n uint32) error {
	cur, err := Counter(encoded)
	if err != nil {
		return err
	}
	if n == 0 || cur != n-1 {
		return ErrCounter
	}
	binary.BigEndian.PutUint32(encoded, n)
	return nil
}

// Derive runs the counter-mode KDF with an HMAC PRF over key.
func Derive(h crypto.Hash, key, label, context []byte, bits uint32) ([]byte, error) {
	if !h.Available() {
		return nil, types.ErrNotSupported
	}
	if EncodedLength(label, context) > MaxInputLength {
		return nil, ErrTooBig
	}
	return kdf.CounterModeKey(kdf.NewHMACPRF(h), key, label, context, bits), nil
}

// KeyedPRF is a PRF whose key lives elsewhere, such as in a keyslot.
// The key argument passed by the KDF is ignored.
type KeyedPRF struct {
	newMAC func() (hash.Hash, error)
	size   int
	err    error
}

var _ kdf.PRF = (*KeyedPRF)(nil)

// NewKeyedPRF wraps a constructor for a pre-keyed MAC producing size bytes.
func NewKeyedPRF(size int, newMAC func() (hash.Hash, error)) *KeyedPRF {
	return &KeyedPRF{newMAC: newMAC, size: size}
}

// Len implements kdf.PRF. The length is in bits.
func (p *KeyedPRF) Len() uint32 {
	return uint32(p.size * 8)
}

// Run implements kdf.PRF. The first error is kept and reported by Err;
// later calls return zeros.
func (p *KeyedPRF) Run(_, x []byte) []byte {
	if p.err != nil {
		return make([]byte, p.size)
	}
	mac, err := p.newMAC()
	if err != nil {
		p.err = err
		return make([]byte, p.size)
	}
	mac.Write(x)
	return mac.Sum(nil)
}

// Err returns the first error raised by the MAC constructor.
func (p *KeyedPRF) Err() error {
	return p.err
}

// DeriveKeyed runs the counter-mode KDF with a keyed PRF.
func DeriveKeyed(prf *KeyedPRF, label, context []byte, bits uint32) ([]byte, error) {
	if EncodedLength(label, context) > MaxInputLength {
		return nil, ErrTooBig
	}
	out := kdf.CounterModeKey(prf, nil, label, context, bits)
	if err := prf.Err(); err != nil {
		clear(out)
		return nil, err
	}
	return out, nil
}
