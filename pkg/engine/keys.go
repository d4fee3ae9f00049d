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
	"fmt"

	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/memory"
)

// keyMaterial is the key a context holds: a locked key buffer, a keyslot,
// or both while a slot is being written.
type keyMaterial struct {
	buf *memory.Buffer

	slot   int
	inSlot bool
	// clearSlot is set when this context loaded the slot and must clear
	// it at teardown.
	clearSlot bool

	bits int
}

func (k *keyMaterial) ref() hwengine.KeyRef {
	if k.inSlot {
		return hwengine.SlotKey(k.slot)
	}
	return hwengine.InlineKey(k.buf.Bytes())
}

// bytes returns the inline key, or nil for slot keys.
func (k *keyMaterial) bytes() []byte {
	if k.inSlot {
		return nil
	}
	return k.buf.Bytes()
}

func (k *keyMaterial) release(e *Engine) {
	if k.buf != nil {
		e.mem.Release(k.buf)
		k.buf = nil
	}
	if k.inSlot && k.clearSlot {
		if err := e.sw.ClearSlot(k.slot); err != nil {
			e.logger.Warn("failed to clear keyslot", "slot", k.slot, "error", err.Error())
		}
	}
}

// access is the slot access a context of this domain requests.
func (c *Context) access(usage keyslot.Usage) keyslot.Access {
	return keyslot.Access{Usage: usage, User: c.domain.user()}
}

// copyKey places key bytes in a fresh key buffer.
func (c *Context) copyKey(key []byte) (*keyMaterial, error) {
	buf, err := c.engine.mem.Alloc(memory.PurposeKey, len(key))
	if err != nil {
		return nil, err
	}
	copy(buf.Bytes(), key)
	return &keyMaterial{buf: buf, bits: len(key) * 8}, nil
}

// loadSymmetric resolves a SymmetricKey into key material owned by c.
// Inline keys of any non-zero length are accepted; slot keys are always
// 128, 192 or 256 bits.
func (c *Context) loadSymmetric(key SymmetricKey, usage keyslot.Usage) (*keyMaterial, error) {
	switch {
	case key.UseExistingSlot && key.WriteToSlot:
		return nil, fmt.Errorf("%w: use-existing-slot and write-to-slot are exclusive", ErrInvalidArgument)

	case key.UseExistingSlot:
		m, ok := c.engine.sw.SlotResident(key.Slot)
		if !ok {
			return nil, fmt.Errorf("engine: slot %d: %w", key.Slot, keyslot.ErrEmpty)
		}
		if !m.User.Allows(c.domain.user()) || !m.Purpose.Allows(usage) {
			return nil, fmt.Errorf("engine: slot %d: %w", key.Slot, keyslot.ErrAccessDenied)
		}
		return &keyMaterial{slot: key.Slot, inSlot: true, bits: m.KeyBits}, nil

	case key.WriteToSlot:
		if !keyslot.ValidKeyBits(len(key.Value) * 8) {
			return nil, fmt.Errorf("%w: %d byte slot key", ErrBadLength, len(key.Value))
		}
		m := keyslot.Manifest{Purpose: key.Purpose, User: c.domain.user(), KeyBits: len(key.Value) * 8}
		if err := c.engine.sw.LoadSlot(key.Slot, key.Value, m); err != nil {
			return nil, err
		}
		return &keyMaterial{
			slot:      key.Slot,
			inSlot:    true,
			clearSlot: !key.LeaveResident,
			bits:      m.KeyBits,
		}, nil

	default:
		if len(key.Value) == 0 {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidArgument)
		}
		return c.copyKey(key.Value)
	}
}

// loadAESKey is loadSymmetric restricted to AES key sizes.
func (c *Context) loadAESKey(args KeyArgs, usage keyslot.Usage) error {
	key, ok := args.(SymmetricKey)
	if !ok {
		return fmt.Errorf("%w: expected a symmetric key, got %T", ErrInvalidArgument, args)
	}
	if !key.UseExistingSlot && !keyslot.ValidKeyBits(len(key.Value)*8) {
		return fmt.Errorf("%w: %d byte AES key", ErrBadLength, len(key.Value))
	}
	km, err := c.loadSymmetric(key, usage)
	if err != nil {
		return err
	}
	c.key = km
	return nil
}
