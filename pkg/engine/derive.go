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
	"crypto/cipher"
	"crypto/hmac"
	"fmt"
	"hash"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/cmac"
	"github.com/jeremyhahn/go-keyengine/pkg/crypto/ecdh"
	"github.com/jeremyhahn/go-keyengine/pkg/crypto/sp800108"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// kdfHash is the PRF hash of the hash based derivation.
const kdfHash = crypto.SHA256

// deriveState runs ECDH and the three keyslot derivations.
type deriveState struct {
	keyless

	alg   types.Algorithm
	curve types.EllipticCurve
	kdf   KDFInit

	// public is the context's own point for ECDH.
	public []byte

	// block and the CMAC subkeys are fixed at SET_KEY for KDF-CMAC.
	block  cipher.Block
	k1, k2 [cmac.BlockSize]byte
}

func newDeriveState(cl *call) (*deriveState, error) {
	s := &deriveState{alg: cl.req.Algorithm}
	switch s.alg {
	case types.AlgorithmECDH:
		args, ok := cl.req.Init.(ECDHInit)
		if !ok {
			return nil, fmt.Errorf("%w: ECDH needs a curve", ErrInvalidArgument)
		}
		if !ecdh.Supported(args.Curve) {
			return nil, fmt.Errorf("engine: curve %q: %w", args.Curve, ErrNotSupported)
		}
		s.curve = args.Curve
	default:
		args, ok := cl.req.Init.(KDFInit)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a target slot", ErrInvalidArgument, s.alg)
		}
		if err := args.Target.Manifest.Validate(); err != nil {
			return nil, err
		}
		if s.alg != types.AlgorithmKDFAES && sp800108.EncodedLength(args.Label, args.Context) > sp800108.MaxInputLength {
			return nil, fmt.Errorf("engine: label and context: %w", sp800108.ErrTooBig)
		}
		if args.IV != nil && (s.alg != types.AlgorithmKDFAES || len(args.IV) != aesBlockSize) {
			return nil, fmt.Errorf("%w: IV of %d bytes for %s", ErrInvalidArgument, len(args.IV), s.alg)
		}
		s.kdf = args
		s.kdf.Label = append([]byte(nil), args.Label...)
		s.kdf.Context = append([]byte(nil), args.Context...)
		s.kdf.IV = append([]byte(nil), args.IV...)
	}
	return s, nil
}

func (s *deriveState) class() types.Class { return types.ClassDerive }

func (s *deriveState) setKey(cl *call, args KeyArgs) error {
	c := cl.c
	switch s.alg {
	case types.AlgorithmECDH:
		key, ok := args.(ECKey)
		if !ok {
			return fmt.Errorf("%w: expected an EC key, got %T", ErrInvalidArgument, args)
		}
		if len(key.Private) != s.curve.ScalarSize() {
			return fmt.Errorf("%w: %d byte scalar for %s", ErrBadLength, len(key.Private), s.curve)
		}
		km, err := c.copyKey(key.Private)
		if err != nil {
			return err
		}
		c.key = km
		if len(key.Public) > 0 {
			s.public = append([]byte(nil), key.Public...)
			return nil
		}
		s.public, err = cl.e.sw.PublicPoint(cl.ctx, s.curve, km.bytes())
		return err

	case types.AlgorithmKDFHash:
		key, ok := args.(SymmetricKey)
		if !ok {
			return fmt.Errorf("%w: expected a symmetric key, got %T", ErrInvalidArgument, args)
		}
		km, err := c.loadSymmetric(key, keyslot.UsageDerive)
		if err != nil {
			return err
		}
		c.key = km
		return nil

	default:
		if err := c.loadAESKey(args, keyslot.UsageDerive); err != nil {
			return err
		}
		if s.alg != types.AlgorithmKDFCMAC {
			return nil
		}
		return s.cmacSubkeys(cl)
	}
}

// cmacSubkeys derives K1 and K2 once. Both counter passes share them.
func (s *deriveState) cmacSubkeys(cl *call) error {
	c := cl.c
	block, err := cl.e.sw.Block(c.key.ref(), c.access(keyslot.UsageDerive))
	if err != nil {
		return err
	}
	return cl.e.sw.Run(cl.ctx, hwengine.KindCipher, func() error {
		k1, k2, err := cmac.Subkeys(block)
		if err != nil {
			return err
		}
		s.block, s.k1, s.k2 = block, k1, k2
		clear(k1[:])
		clear(k2[:])
		return nil
	})
}

func (s *deriveState) doFinal(cl *call, data *DataArgs) (int, error) {
	switch s.alg {
	case types.AlgorithmECDH:
		return s.ecdh(cl, data)
	case types.AlgorithmKDFHash:
		return 0, s.hashKDF(cl, data)
	case types.AlgorithmKDFAES:
		return 0, s.aesKDF(cl, data)
	case types.AlgorithmKDFCMAC:
		return 0, s.cmacKDF(cl)
	default:
		return 0, ErrNotSupported
	}
}

// ecdh multiplies the private scalar with the peer point in Src, or with
// the context's own public point when Src is empty.
func (s *deriveState) ecdh(cl *call, data *DataArgs) (int, error) {
	c := cl.c
	point, err := c.resolve(data.Src)
	if err != nil {
		return 0, err
	}
	if len(point) == 0 {
		point = s.public
	}
	if len(point) != ecdh.PointSize(s.curve) {
		return 0, fmt.Errorf("%w: %d byte point for %s", ErrBadLength, len(point), s.curve)
	}
	dst, err := c.output(data.Dst, s.curve.ScalarSize())
	if err != nil {
		return 0, err
	}
	out, err := cl.e.sw.PointMul(cl.ctx, s.curve, c.key.bytes(), point)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	defer clear(out)
	return copy(dst, out), nil
}

func (s *deriveState) target(half keyslot.Half, whole bool) hwengine.SlotWrite {
	return hwengine.SlotWrite{
		Index:    s.kdf.Target.Index,
		Half:     half,
		Whole:    whole,
		Manifest: s.kdf.Target.Manifest,
	}
}

func (s *deriveState) bits() uint32 {
	return uint32(s.kdf.Target.Manifest.KeyBits)
}

// hashKDF runs the SP 800-108 counter KDF with HMAC-SHA256. Without
// AutoEncode, Src is an already encoded input and the PRF runs once.
func (s *deriveState) hashKDF(cl *call, data *DataArgs) error {
	c := cl.c
	var src []byte
	if !s.kdf.AutoEncode {
		var err error
		if src, err = c.resolve(data.Src); err != nil {
			return err
		}
		if len(src) == 0 {
			return fmt.Errorf("%w: no encoded input", ErrInvalidArgument)
		}
		if len(src) > sp800108.MaxInputLength {
			return fmt.Errorf("engine: encoded input: %w", sp800108.ErrTooBig)
		}
	}

	var out []byte
	err := cl.e.sw.Run(cl.ctx, hwengine.KindDigest, func() error {
		newMAC := s.prf(cl)
		if s.kdf.AutoEncode {
			prf := sp800108.NewKeyedPRF(kdfHash.Size(), newMAC)
			var err error
			out, err = sp800108.DeriveKeyed(prf, s.kdf.Label, s.kdf.Context, s.bits())
			return err
		}
		mac, err := newMAC()
		if err != nil {
			return err
		}
		mac.Write(src)
		out = mac.Sum(nil)
		return nil
	})
	if err != nil {
		return err
	}
	defer clear(out)
	return cl.e.sw.WriteSlot(s.target(0, true), out)
}

// prf returns a constructor for the HMAC keyed with the context key,
// served from its keyslot when the key is resident.
func (s *deriveState) prf(cl *call) func() (hash.Hash, error) {
	c := cl.c
	if c.key.inSlot {
		return func() (hash.Hash, error) {
			return cl.e.sw.KeyedHMAC(c.key.slot, kdfHash, c.access(keyslot.UsageDerive))
		}
	}
	return func() (hash.Hash, error) {
		return hmac.New(kdfHash.New, c.key.bytes()), nil
	}
}

// aesKDF encrypts Src under the context key and loads the result into
// the target slot. A 128-bit target takes one block; wider targets take two.
func (s *deriveState) aesKDF(cl *call, data *DataArgs) error {
	c := cl.c
	src, err := c.resolve(data.Src)
	if err != nil {
		return err
	}
	want := 2 * aesBlockSize
	if s.bits() == keyslot.KeyBits128 {
		want = aesBlockSize
	}
	if len(src) != want {
		return fmt.Errorf("%w: %d byte input for a %d-bit key", ErrBadLength, len(src), s.bits())
	}
	block, err := cl.e.sw.Block(c.key.ref(), c.access(keyslot.UsageDerive))
	if err != nil {
		return err
	}

	out := make([]byte, len(src))
	defer clear(out)
	err = cl.e.sw.Run(cl.ctx, hwengine.KindCipher, func() error {
		if len(s.kdf.IV) > 0 {
			cipher.NewCTR(block, s.kdf.IV).XORKeyStream(out, src)
			return nil
		}
		for i := 0; i < len(src); i += aesBlockSize {
			block.Encrypt(out[i:i+aesBlockSize], src[i:i+aesBlockSize])
		}
		return nil
	})
	if err != nil {
		return err
	}
	return cl.e.sw.WriteSlot(s.target(0, true), out)
}

// cmacKDF fills the target slot with AES-CMAC over the encoded input,
// counter 1 into the lower half and, for keys wider than 128 bits,
// counter 2 into the upper half. A failure after the first half clears
// the target and any slot held source key.
func (s *deriveState) cmacKDF(cl *call) (err error) {
	bits := s.bits()
	if s.block == nil {
		return fmt.Errorf("%w: CMAC subkeys not derived", ErrBadState)
	}
	enc, err := sp800108.Encode(1, s.kdf.Label, s.kdf.Context, bits)
	if err != nil {
		return err
	}
	cm, err := cmac.NewWithSubkeys(s.block, s.k1, s.k2)
	if err != nil {
		return err
	}
	defer cm.Zero()

	out := make([]byte, cmac.BlockSize)
	defer clear(out)
	pass := func() error {
		return cl.e.sw.Run(cl.ctx, hwengine.KindCipher, func() error {
			cm.Reset()
			cm.Write(enc)
			cm.Sum(out[:0])
			return nil
		})
	}

	if err := pass(); err != nil {
		return err
	}
	if err := cl.e.sw.WriteSlot(s.target(keyslot.HalfLower, false), out); err != nil {
		return err
	}
	if bits <= keyslot.KeyBits128 {
		return nil
	}

	defer func() {
		if err != nil {
			s.scrub(cl)
		}
	}()
	if err = sp800108.BumpCounter(enc, 2); err != nil {
		return err
	}
	if err = pass(); err != nil {
		return err
	}
	return cl.e.sw.WriteSlot(s.target(keyslot.HalfUpper, false), out)
}

// scrub clears the target slot and a slot held source key.
func (s *deriveState) scrub(cl *call) {
	c := cl.c
	if c.key.inSlot {
		if err := cl.e.sw.ClearSlot(c.key.slot); err != nil {
			cl.e.logger.Warn("failed to clear source keyslot", "slot", c.key.slot, "error", err.Error())
		}
	}
	if err := cl.e.sw.ClearSlot(s.kdf.Target.Index); err != nil {
		cl.e.logger.Warn("failed to clear target keyslot", "slot", s.kdf.Target.Index, "error", err.Error())
	}
}

func (s *deriveState) teardown(*Engine) {
	clear(s.kdf.Label)
	clear(s.kdf.Context)
	clear(s.kdf.IV)
	clear(s.k1[:])
	clear(s.k2[:])
	s.block = nil
	s.public = nil
}
