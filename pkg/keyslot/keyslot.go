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

// Package keyslot models hardware-resident key storage. A keyslot is
// addressed by index; its value can be written, cleared and used by the
// engines but never read back.
//
// The software Bank emulates an engine key RAM on the Go heap. A PKCS#11
// backed bank is available with the pkcs11 build tag.
package keyslot

import (
	"crypto"
	"crypto/cipher"
	"fmt"
	"hash"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Supported slot key sizes. Engines only accept AES-class sizes.
const (
	KeyBits128 = 128
	KeyBits192 = 192
	KeyBits256 = 256

	// MaxKeySize is the storage size of one slot in bytes.
	MaxKeySize = 32

	// HalfSize is the size of one half-slot write in bytes.
	HalfSize = 16
)

// ValidKeyBits reports whether bits is a supported slot key size.
func ValidKeyBits(bits int) bool {
	return bits == KeyBits128 || bits == KeyBits192 || bits == KeyBits256
}

// Usage is the kind of engine operation requesting a slot.
type Usage uint8

const (
	UsageCipher Usage = iota + 1
	UsageMAC
	UsageDerive
)

// String returns the usage name.
func (u Usage) String() string {
	switch u {
	case UsageCipher:
		return "cipher"
	case UsageMAC:
		return "mac"
	case UsageDerive:
		return "derive"
	default:
		return "unknown"
	}
}

// Purpose restricts the usages a slot value may serve.
type Purpose uint8

const (
	// PurposeAny allows every usage.
	PurposeAny Purpose = iota
	PurposeCipher
	PurposeMAC
	PurposeDerive
)

// Allows reports whether a slot with this purpose may serve usage.
func (p Purpose) Allows(u Usage) bool {
	switch p {
	case PurposeAny:
		return true
	case PurposeCipher:
		return u == UsageCipher
	case PurposeMAC:
		return u == UsageMAC
	case PurposeDerive:
		return u == UsageDerive
	default:
		return false
	}
}

// User is the authorized user class of a slot value.
type User uint8

const (
	// UserAny allows kernel and isolated callers.
	UserAny User = iota
	UserKernel
	UserIsolated
)

// Allows reports whether caller may use a slot restricted to u.
func (u User) Allows(caller User) bool {
	return u == UserAny || u == caller
}

// Manifest is the metadata bound to a slot value when it is written.
type Manifest struct {
	Purpose Purpose
	User    User
	KeyBits int
}

// Validate checks the manifest fields.
func (m Manifest) Validate() error {
	if !ValidKeyBits(m.KeyBits) {
		return fmt.Errorf("%w: key size %d bits", ErrInvalidKeySize, m.KeyBits)
	}
	if m.Purpose > PurposeDerive {
		return fmt.Errorf("%w: purpose %d", ErrInvalidManifest, m.Purpose)
	}
	if m.User > UserIsolated {
		return fmt.Errorf("%w: user %d", ErrInvalidManifest, m.User)
	}
	return nil
}

// Access describes who uses a slot and for what.
type Access struct {
	Usage Usage
	User  User
}

// Half selects one 128-bit half of a 256-bit slot.
type Half uint8

const (
	HalfLower Half = iota
	HalfUpper
)

var (
	// ErrInvalidSlot is returned for out of range slot indices.
	ErrInvalidSlot = fmt.Errorf("keyslot: invalid slot index: %w", types.ErrInvalidArgument)

	// ErrInvalidKeySize is returned when a key is not 128, 192 or 256 bits.
	ErrInvalidKeySize = fmt.Errorf("keyslot: invalid key size: %w", types.ErrBadLength)

	// ErrInvalidManifest is returned for unknown manifest fields.
	ErrInvalidManifest = fmt.Errorf("keyslot: invalid manifest: %w", types.ErrInvalidArgument)

	// ErrEmpty is returned when a slot holds no complete key.
	ErrEmpty = fmt.Errorf("keyslot: slot empty: %w", types.ErrBadState)

	// ErrAccessDenied is returned when a manifest forbids the access.
	ErrAccessDenied = fmt.Errorf("keyslot: access denied by manifest: %w", types.ErrNotSupported)

	// ErrHalfOrder is returned when the upper half is written before the lower.
	ErrHalfOrder = fmt.Errorf("keyslot: upper half written before lower half: %w", types.ErrBadState)
)

// Bank is a set of hardware keyslots.
type Bank interface {
	// Slots returns the number of slots.
	Slots() int

	// Load writes a complete key into a slot, replacing any previous value.
	Load(index int, key []byte, m Manifest) error

	// LoadHalf writes one 128-bit half of a key whose final size is
	// m.KeyBits. A slot becomes usable once its last half is written:
	// the lower half alone for 128-bit keys, both halves otherwise.
	LoadHalf(index int, half Half, data []byte, m Manifest) error

	// Clear zeroes a slot. Clearing an empty slot succeeds.
	Clear(index int) error

	// Resident returns the manifest of a slot holding a complete key.
	Resident(index int) (Manifest, bool)

	// Block returns an AES block cipher keyed from the slot.
	Block(index int, access Access) (cipher.Block, error)

	// NewHMAC returns an HMAC keyed from the slot.
	NewHMAC(index int, h crypto.Hash, access Access) (hash.Hash, error)
}
