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
	"crypto/rsa"
	"fmt"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/rsaverify"
	"github.com/jeremyhahn/go-keyengine/pkg/memory"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// signatureState verifies RSA signatures. The modular exponentiation runs
// on the asymmetric engine and the encoding checks run in scratch memory
// allocated at SET_KEY.
type signatureState struct {
	keyless

	alg  types.Algorithm
	salt rsaverify.SaltPolicy

	pub     *rsa.PublicKey
	params  rsaverify.Params
	scratch *memory.Buffer
}

func newSignatureState(cl *call) (*signatureState, error) {
	s := &signatureState{alg: cl.req.Algorithm}
	h := s.alg.Hash()
	if !h.Available() {
		return nil, fmt.Errorf("engine: %s: %w", s.alg, ErrNotSupported)
	}
	s.salt = rsaverify.SaltFixed(h.Size())
	if cl.req.Init != nil {
		args, ok := cl.req.Init.(SignatureInit)
		if !ok {
			return nil, fmt.Errorf("%w: expected signature init arguments, got %T", ErrInvalidArgument, cl.req.Init)
		}
		if !s.alg.IsPSS() {
			return nil, fmt.Errorf("%w: salt policy for %s", ErrInvalidArgument, s.alg)
		}
		if !args.Salt.Dynamic && args.Salt.Length < 0 {
			return nil, fmt.Errorf("%w: salt length %d", ErrInvalidArgument, args.Salt.Length)
		}
		s.salt = args.Salt
	}
	return s, nil
}

func (s *signatureState) class() types.Class { return types.ClassSignature }

func (s *signatureState) setKey(cl *call, args KeyArgs) error {
	key, ok := args.(RSAPublicKey)
	if !ok || key.Key == nil || key.Key.N == nil {
		return fmt.Errorf("%w: expected an RSA public key, got %T", ErrInvalidArgument, args)
	}
	bits := key.Key.N.BitLen()
	if bits < rsaverify.MinModulusBits || bits > rsaverify.MaxModulusBits {
		return fmt.Errorf("engine: %d-bit modulus: %w", bits, ErrNotSupported)
	}
	s.pub = key.Key
	s.params = rsaverify.Params{ModulusBits: bits, Hash: s.alg.Hash()}

	size := rsaverify.PKCS1v15ScratchSize(s.params)
	if s.alg.IsPSS() {
		size = rsaverify.PSSScratchSize(s.params)
	}
	scratch, err := cl.e.mem.Alloc(memory.PurposeDMA, size)
	if err != nil {
		return err
	}
	s.scratch = scratch
	return nil
}

func (s *signatureState) doFinal(cl *call, data *DataArgs) (int, error) {
	c := cl.c
	digest, err := c.resolve(data.Digest)
	if err != nil {
		return 0, err
	}
	if len(digest) != s.params.Hash.Size() {
		return 0, fmt.Errorf("%w: %d byte digest for %s", ErrBadLength, len(digest), s.alg)
	}
	sig, err := c.resolve(data.Signature)
	if err != nil {
		return 0, err
	}

	rep, err := cl.e.sw.ModExp(cl.ctx, s.pub, sig)
	if err != nil {
		return 0, err
	}
	defer clear(rep)

	if s.alg.IsPSS() {
		return 0, rsaverify.VerifyPSS(s.params, s.salt, rep, digest, s.scratch.Bytes())
	}
	return 0, rsaverify.VerifyPKCS1v15(s.params, rep, digest, s.scratch.Bytes())
}

func (s *signatureState) teardown(e *Engine) {
	if s.scratch != nil {
		e.mem.Release(s.scratch)
		s.scratch = nil
	}
	s.pub = nil
}
