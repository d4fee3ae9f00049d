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

package memory

import (
	"errors"
	"testing"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPool_AllocRelease tests that released buffers are zeroed and accounted
func TestPool_AllocRelease(t *testing.T) {
	p := NewPool(nil)

	buf, err := p.Alloc(PurposeKey, 32)
	require.NoError(t, err)
	require.Len(t, buf.Bytes(), 32)
	assert.Equal(t, PurposeKey, buf.Purpose())
	assert.Equal(t, 32, p.InUse())

	raw := buf.Bytes()
	for i := range raw {
		raw[i] = 0xA5
	}

	p.Release(buf)
	assert.True(t, buf.Released())
	assert.Nil(t, buf.Bytes())
	assert.Equal(t, make([]byte, 32), raw)
	assert.Equal(t, 0, p.InUse())

	// Double release is a no-op
	p.Release(buf)
	p.Release(nil)
	assert.Equal(t, 0, p.InUse())
}

// TestPool_DMARounding tests that DMA buffers are rounded to whole lines
func TestPool_DMARounding(t *testing.T) {
	p := NewPool(nil)

	buf, err := p.Alloc(PurposeDMA, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, buf.Len())
	assert.Equal(t, 128, p.InUse())

	p.Release(buf)
	assert.Equal(t, 0, p.InUse())
}

// TestPool_Limit tests exhaustion reporting
func TestPool_Limit(t *testing.T) {
	p := NewPool(&Config{Limit: 48})

	a, err := p.Alloc(PurposeGeneric, 32)
	require.NoError(t, err)

	_, err = p.Alloc(PurposeGeneric, 32)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.True(t, errors.Is(err, types.ErrNoMemory))

	p.Release(a)
	b, err := p.Alloc(PurposeGeneric, 32)
	require.NoError(t, err)
	p.Release(b)
}

// TestPool_InvalidSize tests negative sizes
func TestPool_InvalidSize(t *testing.T) {
	_, err := NewPool(nil).Alloc(PurposeGeneric, -1)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

// TestPool_LockKeys tests that locking is best effort and unlocks on release
func TestPool_LockKeys(t *testing.T) {
	p := NewPool(&Config{LockKeys: true})

	buf, err := p.Alloc(PurposeKey, 16)
	require.NoError(t, err)

	p.Release(buf)
	assert.False(t, buf.Locked())
}

func TestPurpose_String(t *testing.T) {
	assert.Equal(t, "generic", PurposeGeneric.String())
	assert.Equal(t, "dma", PurposeDMA.String())
	assert.Equal(t, "key", PurposeKey.String())
	assert.Equal(t, "unknown", Purpose(9).String())
}
