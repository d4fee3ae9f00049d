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

package hwengine

import (
	"context"
	"crypto/rsa"
	"math/big"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/ecdh"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// ModExp computes sig^e mod n and returns the result little-endian,
// padded to the modulus size. A signature not smaller than n is
// rejected as invalid.
func (s *Switch) ModExp(ctx context.Context, pub *rsa.PublicKey, sig []byte) ([]byte, error) {
	if pub == nil || pub.N == nil || pub.E < 3 {
		return nil, types.ErrInvalidArgument
	}
	k := (pub.N.BitLen() + 7) / 8
	if len(sig) != k {
		return nil, types.ErrBadLength
	}

	out := make([]byte, k)
	err := s.Run(ctx, KindAsym, func() error {
		c := new(big.Int).SetBytes(sig)
		if c.Cmp(pub.N) >= 0 {
			return types.ErrSignatureInvalid
		}
		m := c.Exp(c, big.NewInt(int64(pub.E)), pub.N)
		be := m.FillBytes(make([]byte, k))
		for i := range be {
			out[i] = be[k-1-i]
		}
		clear(be)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PointMul runs an ECDH scalar multiplication on the asymmetric engine.
func (s *Switch) PointMul(ctx context.Context, curve types.EllipticCurve, scalar, point []byte) ([]byte, error) {
	var out []byte
	err := s.Run(ctx, KindAsym, func() error {
		var err error
		out, err = ecdh.PointMul(curve, scalar, point)
		return err
	})
	return out, err
}

// PublicPoint derives the public point of scalar on the asymmetric engine.
func (s *Switch) PublicPoint(ctx context.Context, curve types.EllipticCurve, scalar []byte) ([]byte, error) {
	var out []byte
	err := s.Run(ctx, KindAsym, func() error {
		var err error
		out, err = ecdh.PublicKey(curve, scalar)
		return err
	})
	return out, err
}
