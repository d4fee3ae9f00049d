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
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"hash"

	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// KeyRef names the key for a symmetric job: inline bytes or a keyslot.
type KeyRef struct {
	Key    []byte
	Slot   int
	InSlot bool
}

// SlotKey references keyslot index.
func SlotKey(index int) KeyRef {
	return KeyRef{Slot: index, InSlot: true}
}

// InlineKey references raw key bytes.
func InlineKey(key []byte) KeyRef {
	return KeyRef{Key: key}
}

// SlotWrite directs engine output into a keyslot instead of memory.
type SlotWrite struct {
	Index    int
	Half     keyslot.Half
	Whole    bool
	Manifest keyslot.Manifest
}

// Block returns an AES block cipher for ref. Callers run it under
// Run(ctx, KindCipher, ...).
func (s *Switch) Block(ref KeyRef, access keyslot.Access) (cipher.Block, error) {
	if ref.InSlot {
		if s.bank == nil {
			return nil, ErrNoBank
		}
		return s.bank.Block(ref.Slot, access)
	}
	switch len(ref.Key) {
	case 16, 24, 32:
		return aes.NewCipher(ref.Key)
	default:
		return nil, types.ErrBadLength
	}
}

// KeyedHMAC returns the digest engine's keyed HMAC over a slot key.
func (s *Switch) KeyedHMAC(slot int, h crypto.Hash, access keyslot.Access) (hash.Hash, error) {
	if s.bank == nil {
		return nil, ErrNoBank
	}
	return s.bank.NewHMAC(slot, h, access)
}

// LoadSlot writes a complete key into a slot.
func (s *Switch) LoadSlot(index int, key []byte, m keyslot.Manifest) error {
	if s.bank == nil {
		return ErrNoBank
	}
	return s.bank.Load(index, key, m)
}

// WriteSlot stores engine output as directed by w.
func (s *Switch) WriteSlot(w SlotWrite, data []byte) error {
	if s.bank == nil {
		return ErrNoBank
	}
	if w.Whole {
		return s.bank.Load(w.Index, data[:w.Manifest.KeyBits/8], w.Manifest)
	}
	return s.bank.LoadHalf(w.Index, w.Half, data, w.Manifest)
}

// ClearSlot zeroes a slot.
func (s *Switch) ClearSlot(index int) error {
	if s.bank == nil {
		return ErrNoBank
	}
	return s.bank.Clear(index)
}

// SlotResident returns the manifest of a slot holding a complete key.
func (s *Switch) SlotResident(index int) (keyslot.Manifest, bool) {
	if s.bank == nil {
		return keyslot.Manifest{}, false
	}
	return s.bank.Resident(index)
}
