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

// Package cmac implements the AES-CMAC message authentication code of
// NIST SP 800-38B over any 128-bit cipher.Block, including blocks backed
// by keyslots or hardware engines.
package cmac

import (
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
	"hash"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// BlockSize is the only supported cipher block size.
const BlockSize = 16

// rb is the constant used to derive subkeys for 128-bit blocks.
const rb = 0x87

// ErrBlockSize is returned for ciphers whose block size is not 16.
var ErrBlockSize = fmt.Errorf("cmac: cipher block size must be %d: %w", BlockSize, types.ErrInvalidArgument)

// CMAC is a streaming CMAC computation. It implements hash.Hash.
type CMAC struct {
	block  cipher.Block
	k1, k2 [BlockSize]byte
	state  [BlockSize]byte
	buf    [BlockSize]byte
	n      int
}

var _ hash.Hash = (*CMAC)(nil)

// shift sets dst to src<<1 and applies the Rb reduction when the top
// bit of src was set.
func shift(dst, src *[BlockSize]byte) {
	msb := src[0] >> 7
	for i := 0; i < BlockSize-1; i++ {
		dst[i] = src[i]<<1 | src[i+1]>>7
	}
	dst[BlockSize-1] = src[BlockSize-1] << 1
	dst[BlockSize-1] ^= byte(subtle.ConstantTimeSelect(int(msb), rb, 0))
}

// Subkeys derives K1 and K2 from the block cipher.
func Subkeys(block cipher.Block) (k1, k2 [BlockSize]byte, err error) {
	if block.BlockSize() != BlockSize {
		return k1, k2, ErrBlockSize
	}
	var l [BlockSize]byte
	block.Encrypt(l[:], l[:])
	shift(&k1, &l)
	shift(&k2, &k1)
	clear(l[:])
	return k1, k2, nil
}

// New returns a CMAC keyed by block. The subkeys are computed once.
func New(block cipher.Block) (*CMAC, error) {
	k1, k2, err := Subkeys(block)
	if err != nil {
		return nil, err
	}
	return &CMAC{block: block, k1: k1, k2: k2}, nil
}

// NewWithSubkeys returns a CMAC using previously derived subkeys.
func NewWithSubkeys(block cipher.Block, k1, k2 [BlockSize]byte) (*CMAC, error) {
	if block.BlockSize() != BlockSize {
		return nil, ErrBlockSize
	}
	return &CMAC{block: block, k1: k1, k2: k2}, nil
}

// Size implements hash.Hash.
func (c *CMAC) Size() int { return BlockSize }

// BlockSize implements hash.Hash.
func (c *CMAC) BlockSize() int { return BlockSize }

// Reset clears the chaining state. The subkeys are kept.
func (c *CMAC) Reset() {
	clear(c.state[:])
	clear(c.buf[:])
	c.n = 0
}

// Write absorbs p. The most recent full block is held back until more
// data arrives because the final block is processed differently.
func (c *CMAC) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		if c.n == BlockSize {
			subtle.XORBytes(c.state[:], c.state[:], c.buf[:])
			c.block.Encrypt(c.state[:], c.state[:])
			c.n = 0
		}
		k := copy(c.buf[c.n:], p)
		c.n += k
		p = p[k:]
	}
	return written, nil
}

// Sum appends the tag to b without changing the running state.
func (c *CMAC) Sum(b []byte) []byte {
	var last [BlockSize]byte
	if c.n == BlockSize {
		subtle.XORBytes(last[:], c.buf[:], c.k1[:])
	} else {
		copy(last[:], c.buf[:c.n])
		last[c.n] = 0x80
		subtle.XORBytes(last[:], last[:], c.k2[:])
	}
	subtle.XORBytes(last[:], last[:], c.state[:])
	c.block.Encrypt(last[:], last[:])
	return append(b, last[:]...)
}

// Verify reports whether tag equals the full tag of the data written so
// far. Truncated tags do not verify.
func (c *CMAC) Verify(tag []byte) bool {
	sum := c.Sum(nil)
	defer clear(sum)
	return subtle.ConstantTimeCompare(sum, tag) == 1
}

// Zero clears subkeys and state.
func (c *CMAC) Zero() {
	c.Reset()
	clear(c.k1[:])
	clear(c.k2[:])
}

// Sum computes the CMAC of msg in one call.
func Sum(block cipher.Block, msg []byte) ([]byte, error) {
	c, err := New(block)
	if err != nil {
		return nil, err
	}
	defer c.Zero()
	c.Write(msg)
	return c.Sum(nil), nil
}
