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

// Package ecdh implements the raw scalar multiplication used by the key
// derivation engine for NIST P-256, P-384, P-521 and X25519.
//
// Scalars are big-endian for the NIST curves and RFC 7748 little-endian
// for X25519. NIST points use the uncompressed SEC 1 encoding; X25519
// points are 32-byte u-coordinates. Results are the shared x-coordinate.
package ecdh

import (
	"crypto/ecdh"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrCurve is returned for curves without an implementation.
	ErrCurve = fmt.Errorf("ecdh: unsupported curve: %w", types.ErrNotSupported)

	// ErrScalar is returned for scalars of the wrong size or out of range.
	ErrScalar = fmt.Errorf("ecdh: invalid scalar: %w", types.ErrInvalidArgument)

	// ErrPoint is returned for points that fail to decode or lie off the curve.
	ErrPoint = fmt.Errorf("ecdh: invalid point: %w", types.ErrInvalidArgument)

	// ErrLowOrder is returned when an X25519 result is all zeros.
	ErrLowOrder = fmt.Errorf("ecdh: low order point: %w", types.ErrInvalidArgument)
)

func nistCurve(c types.EllipticCurve) (ecdh.Curve, error) {
	switch c {
	case types.CurveP256:
		return ecdh.P256(), nil
	case types.CurveP384:
		return ecdh.P384(), nil
	case types.CurveP521:
		return ecdh.P521(), nil
	default:
		return nil, ErrCurve
	}
}

// Supported reports whether curve has an implementation.
func Supported(curve types.EllipticCurve) bool {
	if curve == types.CurveX25519 {
		return true
	}
	_, err := nistCurve(curve)
	return err == nil
}

// PointSize returns the encoded public point size for curve.
func PointSize(curve types.EllipticCurve) int {
	switch curve {
	case types.CurveX25519:
		return curve25519.PointSize
	case types.CurveP256, types.CurveP384, types.CurveP521:
		return 1 + 2*curve.ScalarSize()
	default:
		return 0
	}
}

// PointMul returns the x-coordinate of scalar x point.
func PointMul(curve types.EllipticCurve, scalar, point []byte) ([]byte, error) {
	if curve == types.CurveX25519 {
		if len(scalar) != curve25519.ScalarSize {
			return nil, ErrScalar
		}
		if len(point) != curve25519.PointSize {
			return nil, ErrPoint
		}
		out, err := curve25519.X25519(scalar, point)
		if err != nil {
			return nil, ErrLowOrder
		}
		return out, nil
	}

	c, err := nistCurve(curve)
	if err != nil {
		return nil, err
	}
	priv, err := c.NewPrivateKey(scalar)
	if err != nil {
		return nil, ErrScalar
	}
	pub, err := c.NewPublicKey(point)
	if err != nil {
		return nil, ErrPoint
	}
	out, err := priv.ECDH(pub)
	if err != nil {
		return nil, errors.Join(ErrPoint, err)
	}
	return out, nil
}

// PublicKey returns scalar x G in the curve's point encoding.
func PublicKey(curve types.EllipticCurve, scalar []byte) ([]byte, error) {
	if curve == types.CurveX25519 {
		if len(scalar) != curve25519.ScalarSize {
			return nil, ErrScalar
		}
		return curve25519.X25519(scalar, curve25519.Basepoint)
	}
	c, err := nistCurve(curve)
	if err != nil {
		return nil, err
	}
	priv, err := c.NewPrivateKey(scalar)
	if err != nil {
		return nil, ErrScalar
	}
	return priv.PublicKey().Bytes(), nil
}

// GenerateKey returns a new scalar and its public point.
func GenerateKey(curve types.EllipticCurve, rand io.Reader) (scalar, point []byte, err error) {
	if curve == types.CurveX25519 {
		scalar = make([]byte, curve25519.ScalarSize)
		if _, err := io.ReadFull(rand, scalar); err != nil {
			return nil, nil, err
		}
		point, err = PublicKey(curve, scalar)
		return scalar, point, err
	}
	c, err := nistCurve(curve)
	if err != nil {
		return nil, nil, err
	}
	priv, err := c.GenerateKey(rand)
	if err != nil {
		return nil, nil, err
	}
	return priv.Bytes(), priv.PublicKey().Bytes(), nil
}

// DeriveKey expands a shared secret with HKDF-SHA256.
func DeriveKey(sharedSecret, salt, info []byte, keyLength int) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, fmt.Errorf("ecdh: empty shared secret: %w", types.ErrInvalidArgument)
	}
	if keyLength <= 0 || keyLength > 255*sha256.Size {
		return nil, fmt.Errorf("ecdh: key length %d: %w", keyLength, types.ErrBadLength)
	}
	out := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, salt, info), out); err != nil {
		return nil, fmt.Errorf("ecdh: hkdf: %w", err)
	}
	return out, nil
}
