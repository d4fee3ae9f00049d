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

package keyslot

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"hash"
	"sync"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// DefaultSlots is the slot count of a bank created with NewSoftwareBank(0).
const DefaultSlots = 16

type slot struct {
	key      [MaxKeySize]byte
	manifest Manifest
	complete bool
	lower    bool
}

func (s *slot) zero() {
	clear(s.key[:])
	*s = slot{}
}

// SoftwareBank emulates a keyslot RAM.
type SoftwareBank struct {
	mu    sync.RWMutex
	slots []slot
}

var _ Bank = (*SoftwareBank)(nil)

// NewSoftwareBank creates a bank with n slots, or DefaultSlots when n <= 0.
func NewSoftwareBank(n int) *SoftwareBank {
	if n <= 0 {
		n = DefaultSlots
	}
	return &SoftwareBank{slots: make([]slot, n)}
}

// Slots implements Bank.
func (b *SoftwareBank) Slots() int {
	return len(b.slots)
}

func (b *SoftwareBank) slotAt(index int) (*slot, error) {
	if index < 0 || index >= len(b.slots) {
		return nil, ErrInvalidSlot
	}
	return &b.slots[index], nil
}

// Load implements Bank.
func (b *SoftwareBank) Load(index int, key []byte, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(key)*8 != m.KeyBits {
		return ErrInvalidKeySize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.slotAt(index)
	if err != nil {
		return err
	}
	s.zero()
	copy(s.key[:], key)
	s.manifest = m
	s.complete = true
	return nil
}

// LoadHalf implements Bank.
func (b *SoftwareBank) LoadHalf(index int, half Half, data []byte, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(data) != HalfSize {
		return ErrInvalidKeySize
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.slotAt(index)
	if err != nil {
		return err
	}

	switch half {
	case HalfLower:
		s.zero()
		copy(s.key[:HalfSize], data)
		s.manifest = m
		s.lower = true
		s.complete = m.KeyBits == KeyBits128
	case HalfUpper:
		if !s.lower || s.manifest != m || m.KeyBits == KeyBits128 {
			return ErrHalfOrder
		}
		copy(s.key[HalfSize:], data)
		s.complete = true
	default:
		return types.ErrInvalidArgument
	}
	return nil
}

// Clear implements Bank.
func (b *SoftwareBank) Clear(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.slotAt(index)
	if err != nil {
		return err
	}
	s.zero()
	return nil
}

// Resident implements Bank.
func (b *SoftwareBank) Resident(index int) (Manifest, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, err := b.slotAt(index)
	if err != nil || !s.complete {
		return Manifest{}, false
	}
	return s.manifest, true
}

// withKey runs fn on a copy of the slot key after checking access. The copy
// is zeroed when fn returns.
func (b *SoftwareBank) withKey(index int, access Access, fn func(key []byte) error) error {
	var key [MaxKeySize]byte
	defer clear(key[:])

	b.mu.RLock()
	s, err := b.slotAt(index)
	if err != nil {
		b.mu.RUnlock()
		return err
	}
	if !s.complete {
		b.mu.RUnlock()
		return ErrEmpty
	}
	if !s.manifest.Purpose.Allows(access.Usage) || !s.manifest.User.Allows(access.User) {
		b.mu.RUnlock()
		return ErrAccessDenied
	}
	n := copy(key[:], s.key[:s.manifest.KeyBits/8])
	b.mu.RUnlock()

	return fn(key[:n])
}

// Block implements Bank.
func (b *SoftwareBank) Block(index int, access Access) (cipher.Block, error) {
	var block cipher.Block
	err := b.withKey(index, access, func(key []byte) error {
		var err error
		block, err = aes.NewCipher(key)
		return err
	})
	return block, err
}

// NewHMAC implements Bank.
func (b *SoftwareBank) NewHMAC(index int, h crypto.Hash, access Access) (hash.Hash, error) {
	if !h.Available() {
		return nil, types.ErrNotSupported
	}
	var mac hash.Hash
	err := b.withKey(index, access, func(key []byte) error {
		mac = newKeyedHMAC(h, key)
		return nil
	})
	return mac, err
}
