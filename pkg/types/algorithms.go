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

// Package types defines the identifiers shared across the engine: algorithms,
// operation modes, operation classes, hash and curve names, and the error
// taxonomy every layer reports through.
package types

import (
	"crypto"
	_ "crypto/md5"    // register MD5 with crypto.Hash
	_ "crypto/sha1"   // register SHA-1 with crypto.Hash
	_ "crypto/sha256" // register SHA-224 and SHA-256 with crypto.Hash
	_ "crypto/sha512" // register SHA-384 and SHA-512 with crypto.Hash
	"strings"
)

// =============================================================================
// Algorithm Identifiers
// =============================================================================

// Algorithm identifies the cryptographic algorithm bound to a context at INIT.
type Algorithm uint32

const (
	AlgorithmNone Algorithm = iota

	// Block cipher algorithms (cipher class)
	AlgorithmAESECB
	AlgorithmAESCBC
	AlgorithmAESCTR

	// Digest algorithms (digest class)
	AlgorithmSHA1
	AlgorithmSHA224
	AlgorithmSHA256
	AlgorithmSHA384
	AlgorithmSHA512
	AlgorithmMD5

	// MAC algorithms (mac class)
	AlgorithmHMACSHA1
	AlgorithmHMACSHA224
	AlgorithmHMACSHA256
	AlgorithmHMACSHA384
	AlgorithmHMACSHA512
	AlgorithmHMACMD5
	AlgorithmCMACAES

	// RSA signature verification (signature class)
	AlgorithmRSAPSSSHA1
	AlgorithmRSAPSSSHA224
	AlgorithmRSAPSSSHA256
	AlgorithmRSAPSSSHA384
	AlgorithmRSAPSSSHA512
	AlgorithmRSAPKCS1v15SHA1
	AlgorithmRSAPKCS1v15SHA224
	AlgorithmRSAPKCS1v15SHA256
	AlgorithmRSAPKCS1v15SHA384
	AlgorithmRSAPKCS1v15SHA512

	// Key derivation (derive class)
	AlgorithmECDH
	AlgorithmKDFHash
	AlgorithmKDFAES
	AlgorithmKDFCMAC

	// Random number generation (random class)
	AlgorithmRNG
)

var algorithmNames = map[Algorithm]string{
	AlgorithmNone:              "none",
	AlgorithmAESECB:            "AES-ECB",
	AlgorithmAESCBC:            "AES-CBC",
	AlgorithmAESCTR:            "AES-CTR",
	AlgorithmSHA1:              "SHA-1",
	AlgorithmSHA224:            "SHA-224",
	AlgorithmSHA256:            "SHA-256",
	AlgorithmSHA384:            "SHA-384",
	AlgorithmSHA512:            "SHA-512",
	AlgorithmMD5:               "MD5",
	AlgorithmHMACSHA1:          "HMAC-SHA-1",
	AlgorithmHMACSHA224:        "HMAC-SHA-224",
	AlgorithmHMACSHA256:        "HMAC-SHA-256",
	AlgorithmHMACSHA384:        "HMAC-SHA-384",
	AlgorithmHMACSHA512:        "HMAC-SHA-512",
	AlgorithmHMACMD5:           "HMAC-MD5",
	AlgorithmCMACAES:           "CMAC-AES",
	AlgorithmRSAPSSSHA1:        "RSASSA-PSS-SHA-1",
	AlgorithmRSAPSSSHA224:      "RSASSA-PSS-SHA-224",
	AlgorithmRSAPSSSHA256:      "RSASSA-PSS-SHA-256",
	AlgorithmRSAPSSSHA384:      "RSASSA-PSS-SHA-384",
	AlgorithmRSAPSSSHA512:      "RSASSA-PSS-SHA-512",
	AlgorithmRSAPKCS1v15SHA1:   "RSASSA-PKCS1-v1_5-SHA-1",
	AlgorithmRSAPKCS1v15SHA224: "RSASSA-PKCS1-v1_5-SHA-224",
	AlgorithmRSAPKCS1v15SHA256: "RSASSA-PKCS1-v1_5-SHA-256",
	AlgorithmRSAPKCS1v15SHA384: "RSASSA-PKCS1-v1_5-SHA-384",
	AlgorithmRSAPKCS1v15SHA512: "RSASSA-PKCS1-v1_5-SHA-512",
	AlgorithmECDH:              "ECDH",
	AlgorithmKDFHash:           "KDF-HMAC-SHA-256",
	AlgorithmKDFAES:            "KDF-AES",
	AlgorithmKDFCMAC:           "KDF-CMAC-AES",
	AlgorithmRNG:               "RNG",
}

// String returns the canonical algorithm name.
func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAlgorithm performs a case-insensitive lookup of a canonical algorithm name.
func ParseAlgorithm(s string) (Algorithm, bool) {
	for alg, name := range algorithmNames {
		if alg != AlgorithmNone && strings.EqualFold(name, s) {
			return alg, true
		}
	}
	return AlgorithmNone, false
}

// Algorithms returns every defined algorithm except AlgorithmNone, in
// declaration order.
func Algorithms() []Algorithm {
	algs := make([]Algorithm, 0, int(AlgorithmRNG))
	for a := AlgorithmAESECB; a <= AlgorithmRNG; a++ {
		algs = append(algs, a)
	}
	return algs
}

// Hash returns the hash function an algorithm is built on, or 0 when the
// algorithm is not hash based.
func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case AlgorithmSHA1, AlgorithmHMACSHA1, AlgorithmRSAPSSSHA1, AlgorithmRSAPKCS1v15SHA1:
		return crypto.SHA1
	case AlgorithmSHA224, AlgorithmHMACSHA224, AlgorithmRSAPSSSHA224, AlgorithmRSAPKCS1v15SHA224:
		return crypto.SHA224
	case AlgorithmSHA256, AlgorithmHMACSHA256, AlgorithmRSAPSSSHA256, AlgorithmRSAPKCS1v15SHA256,
		AlgorithmKDFHash:
		return crypto.SHA256
	case AlgorithmSHA384, AlgorithmHMACSHA384, AlgorithmRSAPSSSHA384, AlgorithmRSAPKCS1v15SHA384:
		return crypto.SHA384
	case AlgorithmSHA512, AlgorithmHMACSHA512, AlgorithmRSAPSSSHA512, AlgorithmRSAPKCS1v15SHA512:
		return crypto.SHA512
	case AlgorithmMD5, AlgorithmHMACMD5:
		return crypto.MD5
	default:
		return 0
	}
}

// IsHMAC reports whether the algorithm is one of the HMAC variants.
func (a Algorithm) IsHMAC() bool {
	return a >= AlgorithmHMACSHA1 && a <= AlgorithmHMACMD5
}

// IsPSS reports whether the algorithm is an RSASSA-PSS variant.
func (a Algorithm) IsPSS() bool {
	return a >= AlgorithmRSAPSSSHA1 && a <= AlgorithmRSAPSSSHA512
}

// IsPKCS1v15 reports whether the algorithm is an RSASSA-PKCS1-v1_5 variant.
func (a Algorithm) IsPKCS1v15() bool {
	return a >= AlgorithmRSAPKCS1v15SHA1 && a <= AlgorithmRSAPKCS1v15SHA512
}

// =============================================================================
// Operation Modes
// =============================================================================

// Mode is the operation mode a context is initialized for.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeEncrypt
	ModeDecrypt
	ModeDigest
	ModeMAC
	ModeMACVerify
	ModeSign
	ModeVerify
	ModeDerive
	ModeRandom
)

var modeNames = [...]string{
	ModeNone:      "none",
	ModeEncrypt:   "encrypt",
	ModeDecrypt:   "decrypt",
	ModeDigest:    "digest",
	ModeMAC:       "mac",
	ModeMACVerify: "mac-verify",
	ModeSign:      "sign",
	ModeVerify:    "verify",
	ModeDerive:    "derive",
	ModeRandom:    "random",
}

// String returns the mode name.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// Modes returns every defined mode except ModeNone.
func Modes() []Mode {
	modes := make([]Mode, 0, len(modeNames)-1)
	for m := ModeEncrypt; m <= ModeRandom; m++ {
		modes = append(modes, m)
	}
	return modes
}

// =============================================================================
// Operation Classes
// =============================================================================

// Class is the operation class an (algorithm, mode) pair resolves to. Each
// class has exactly one handler and one capability mask.
type Class uint8

const (
	ClassNone Class = iota
	ClassCipher
	ClassDigest
	ClassMAC
	ClassSignature
	ClassDerive
	ClassRandom
)

var classNames = [...]string{
	ClassNone:      "none",
	ClassCipher:    "cipher",
	ClassDigest:    "digest",
	ClassMAC:       "mac",
	ClassSignature: "signature",
	ClassDerive:    "derive",
	ClassRandom:    "random",
}

// String returns the class name, used as a metrics label.
func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// =============================================================================
// Hash Algorithm String Constants
// =============================================================================
// Hash names follow the standard library crypto.Hash naming with dashes.

// HashName represents hash algorithm identifiers.
type HashName string

const (
	// HashMD5 is MD5 (legacy, HMAC only).
	HashMD5 HashName = "MD5"

	// HashSHA1 is SHA-1 (legacy, use SHA-256+ for new applications).
	HashSHA1 HashName = "SHA-1"

	// HashSHA224 is SHA-224.
	HashSHA224 HashName = "SHA-224"

	// HashSHA256 is SHA-256 (recommended minimum).
	HashSHA256 HashName = "SHA-256"

	// HashSHA384 is SHA-384.
	HashSHA384 HashName = "SHA-384"

	// HashSHA512 is SHA-512.
	HashSHA512 HashName = "SHA-512"
)

// String returns the string representation.
func (h HashName) String() string {
	return string(h)
}

// Equals performs case-insensitive comparison.
func (h HashName) Equals(s string) bool {
	return strings.EqualFold(string(h), s)
}

// ToCrypto converts the name to a crypto.Hash, returning 0 when unknown.
func (h HashName) ToCrypto() crypto.Hash {
	switch HashName(strings.ToUpper(string(h))) {
	case HashMD5:
		return crypto.MD5
	case HashSHA1:
		return crypto.SHA1
	case HashSHA224:
		return crypto.SHA224
	case HashSHA256:
		return crypto.SHA256
	case HashSHA384:
		return crypto.SHA384
	case HashSHA512:
		return crypto.SHA512
	default:
		return 0
	}
}

// =============================================================================
// Curve Name Constants
// =============================================================================

// EllipticCurve represents elliptic curve identifiers.
type EllipticCurve string

const (
	// CurveP256 is NIST P-256 curve (secp256r1, prime256v1).
	CurveP256 EllipticCurve = "P-256"

	// CurveP384 is NIST P-384 curve (secp384r1).
	CurveP384 EllipticCurve = "P-384"

	// CurveP521 is NIST P-521 curve (secp521r1).
	CurveP521 EllipticCurve = "P-521"

	// CurveX25519 is Curve25519 for key agreement (X25519).
	CurveX25519 EllipticCurve = "X25519"
)

// String returns the string representation.
func (c EllipticCurve) String() string {
	return string(c)
}

// Equals performs case-insensitive comparison.
func (c EllipticCurve) Equals(s string) bool {
	return strings.EqualFold(string(c), s)
}

// ScalarSize returns the private scalar size in bytes, or 0 for unknown curves.
func (c EllipticCurve) ScalarSize() int {
	switch c {
	case CurveP256, CurveX25519:
		return 32
	case CurveP384:
		return 48
	case CurveP521:
		return 66
	default:
		return 0
	}
}
