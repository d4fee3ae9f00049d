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
	"crypto"
	"crypto/subtle"
	"fmt"
	"hash"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/cmac"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/memory"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

const (
	ipad = 0x36
	opad = 0x5c
)

// macState computes HMAC and AES-CMAC tags.
//
// HMAC keys held in a keyslot run on the digest engine's keyed HMAC
// (hybrid). Inline HMAC keys, and every MD5 key, run in software: the
// key is padded to the hash block size in a key buffer, the inner pad is
// absorbed before the first data and the outer pass runs at DOFINAL.
type macState struct {
	alg    types.Algorithm
	verify bool

	// dest receives the CMAC tag in place of Dst.
	dest *SlotTarget
	half keyslot.Half

	hash        crypto.Hash
	inner       hash.Hash
	ipadApplied bool

	keyed hash.Hash
	cm    *cmac.CMAC
}

func newMACState(cl *call) (*macState, error) {
	s := &macState{
		alg:    cl.req.Algorithm,
		verify: cl.req.Mode == types.ModeMACVerify,
		hash:   cl.req.Algorithm.Hash(),
	}
	if cl.req.Init != nil {
		args, ok := cl.req.Init.(MACInit)
		if !ok {
			return nil, fmt.Errorf("%w: expected MAC init arguments, got %T", ErrInvalidArgument, cl.req.Init)
		}
		if args.Dest != nil {
			if s.alg != types.AlgorithmCMACAES || s.verify {
				return nil, fmt.Errorf("%w: only CMAC tags can be written to a keyslot", ErrInvalidArgument)
			}
			if err := args.Dest.Manifest.Validate(); err != nil {
				return nil, err
			}
			if args.Half != keyslot.HalfLower && args.Half != keyslot.HalfUpper {
				return nil, fmt.Errorf("%w: half %d", ErrInvalidArgument, args.Half)
			}
			d := *args.Dest
			s.dest, s.half = &d, args.Half
		}
	}
	if s.alg != types.AlgorithmCMACAES && !s.hash.Available() {
		return nil, fmt.Errorf("engine: %s: %w", s.alg, ErrNotSupported)
	}
	return s, nil
}

func (s *macState) class() types.Class { return types.ClassMAC }

func (s *macState) size() int {
	if s.alg == types.AlgorithmCMACAES {
		return cmac.BlockSize
	}
	return s.hash.Size()
}

// hybrid reports whether an HMAC key is served from its keyslot.
func hybrid(alg types.Algorithm, key SymmetricKey, bits int) bool {
	if alg == types.AlgorithmHMACMD5 {
		return false
	}
	return (key.UseExistingSlot || key.WriteToSlot) && keyslot.ValidKeyBits(bits)
}

func (s *macState) setKey(cl *call, args KeyArgs) error {
	c := cl.c
	if s.alg == types.AlgorithmCMACAES {
		return s.setCMACKey(cl)
	}

	key, ok := args.(SymmetricKey)
	if !ok {
		return fmt.Errorf("%w: expected a symmetric key, got %T", ErrInvalidArgument, args)
	}
	if key.UseExistingSlot || key.WriteToSlot {
		km, err := c.loadSymmetric(key, keyslot.UsageMAC)
		if err != nil {
			return err
		}
		c.key = km
		if !hybrid(s.alg, key, km.bits) {
			return fmt.Errorf("engine: %s with a keyslot key: %w", s.alg, ErrNotSupported)
		}
		keyed, err := cl.e.sw.KeyedHMAC(km.slot, s.hash, c.access(keyslot.UsageMAC))
		if err != nil {
			return err
		}
		s.keyed = keyed
		return nil
	}

	if len(key.Value) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	s.inner = s.hash.New()
	pad, err := cl.e.mem.Alloc(memory.PurposeKey, s.inner.BlockSize())
	if err != nil {
		return err
	}
	c.key = &keyMaterial{buf: pad, bits: len(key.Value) * 8}
	if len(key.Value) > len(pad.Bytes()) {
		h := s.hash.New()
		h.Write(key.Value)
		h.Sum(pad.Bytes()[:0])
	} else {
		copy(pad.Bytes(), key.Value)
	}
	return nil
}

func (s *macState) setCMACKey(cl *call) error {
	c := cl.c
	if err := c.loadAESKey(cl.req.Key, keyslot.UsageMAC); err != nil {
		return err
	}
	block, err := cl.e.sw.Block(c.key.ref(), c.access(keyslot.UsageMAC))
	if err != nil {
		return err
	}
	return cl.e.sw.Run(cl.ctx, hwengine.KindCipher, func() error {
		cm, err := cmac.New(block)
		s.cm = cm
		return err
	})
}

// xorPad applies b to every byte of the padded key.
func xorPad(pad []byte, b byte) {
	for i := range pad {
		pad[i] ^= b
	}
}

func (s *macState) absorb(c *Context, src []byte) {
	switch {
	case s.cm != nil:
		s.cm.Write(src)
	case s.keyed != nil:
		s.keyed.Write(src)
	default:
		if !s.ipadApplied {
			pad := c.key.bytes()
			xorPad(pad, ipad)
			s.inner.Write(pad)
			xorPad(pad, ipad)
			s.ipadApplied = true
		}
		s.inner.Write(src)
	}
}

// tag finishes the computation into out, which holds size() bytes.
func (s *macState) tag(c *Context, out []byte) {
	switch {
	case s.cm != nil:
		s.cm.Sum(out[:0])
	case s.keyed != nil:
		s.keyed.Sum(out[:0])
	default:
		s.absorb(c, nil)
		innerSum := s.inner.Sum(nil)
		pad := c.key.bytes()
		outer := s.hash.New()
		xorPad(pad, opad)
		outer.Write(pad)
		xorPad(pad, opad)
		outer.Write(innerSum)
		outer.Sum(out[:0])
		clear(innerSum)
	}
}

func (s *macState) engineKind() hwengine.Kind {
	if s.cm != nil {
		return hwengine.KindCipher
	}
	return hwengine.KindDigest
}

func (s *macState) update(cl *call, data *DataArgs) (int, error) {
	src, err := cl.c.resolve(data.Src)
	if err != nil {
		return 0, err
	}
	return 0, cl.e.sw.Run(cl.ctx, s.engineKind(), func() error {
		s.absorb(cl.c, src)
		return nil
	})
}

func (s *macState) doFinal(cl *call, data *DataArgs) (int, error) {
	c := cl.c
	src, err := c.resolve(data.Src)
	if err != nil {
		return 0, err
	}

	var expected, dst []byte
	switch {
	case s.verify:
		if expected, err = c.resolve(data.MAC); err != nil {
			return 0, err
		}
	case s.dest == nil:
		if dst, err = c.output(data.Dst, s.size()); err != nil {
			return 0, err
		}
	}

	out := make([]byte, s.size())
	defer clear(out)
	err = cl.e.sw.Run(cl.ctx, s.engineKind(), func() error {
		s.absorb(c, src)
		s.tag(c, out)
		return nil
	})
	if err != nil {
		return 0, err
	}

	switch {
	case s.verify:
		// A tag of the wrong length fails like a wrong byte.
		if subtle.ConstantTimeCompare(out, expected) != 1 {
			return 0, ErrSignatureInvalid
		}
		return 0, nil
	case s.dest != nil:
		w := hwengine.SlotWrite{Index: s.dest.Index, Half: s.half, Manifest: s.dest.Manifest}
		return 0, cl.e.sw.WriteSlot(w, out)
	default:
		return copy(dst, out), nil
	}
}

func (s *macState) teardown(*Engine) {
	if s.cm != nil {
		s.cm.Zero()
		s.cm = nil
	}
	if s.keyed != nil {
		if z, ok := s.keyed.(keyslot.Zeroer); ok {
			z.Zero()
		} else {
			s.keyed.Reset()
		}
		s.keyed = nil
	}
	if s.inner != nil {
		s.inner.Reset()
		s.inner = nil
	}
	s.ipadApplied = false
}
