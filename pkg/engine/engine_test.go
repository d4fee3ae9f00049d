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
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/jeremyhahn/go-keyengine/pkg/correlation"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/logging"
	"github.com/jeremyhahn/go-keyengine/pkg/memory"
	"github.com/jeremyhahn/go-keyengine/pkg/memory/memorytest"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// newTestEngine builds an engine over a software bank. A nil config uses
// defaults with a discarding logger.
func newTestEngine(t *testing.T, config *Config) *Engine {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	config.Logger = logging.Discard()
	if config.Switch == nil {
		config.Switch = hwengine.New(&hwengine.Config{
			Bank:   keyslot.NewSoftwareBank(keyslot.DefaultSlots),
			Logger: config.Logger,
		})
	}
	e := New(config)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newKernelContext(t *testing.T, e *Engine) *Context {
	t.Helper()
	c, err := e.NewContext(DomainKernel, nil)
	require.NoError(t, err)
	return c
}

func hmacRequest(op Op, key, msg, tag []byte) *Request {
	return &Request{
		Op:        op,
		Algorithm: types.AlgorithmHMACSHA256,
		Mode:      types.ModeMAC,
		Key:       SymmetricKey{Value: key},
		Data:      DataArgs{Src: Bytes(msg), Dst: Bytes(tag)},
	}
}

// TestPerform_OneShotDigest runs a digest through every one-shot step and
// returns the context to RESET.
func TestPerform_OneShotDigest(t *testing.T) {
	e := newTestEngine(t, nil)
	c := newKernelContext(t, e)

	out := make([]byte, 32)
	res, err := e.Perform(c, &Request{
		Op:        OpOneShot,
		Algorithm: types.AlgorithmSHA256,
		Mode:      types.ModeDigest,
		Data:      DataArgs{Src: Bytes([]byte("abc")), Dst: Bytes(out)},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Steps)
	assert.Equal(t, 32, res.Written)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hex.EncodeToString(out))
	assert.Equal(t, Flags(0), c.Flags())
	assert.Equal(t, types.ClassNone, c.Class())
}

// TestPerform_RejectsBadOpcodes leaves the context untouched.
func TestPerform_RejectsBadOpcodes(t *testing.T) {
	e := newTestEngine(t, nil)
	c := newKernelContext(t, e)

	_, err := e.Perform(c, hmacRequest(OpInit|OpSetKey, make([]byte, 32), nil, nil))
	require.NoError(t, err)
	before := c.Flags()

	tests := []struct {
		name string
		op   Op
		want error
	}{
		{"empty", 0, ErrNotSupported},
		{"unknown bit", Op(1 << 20), ErrNotSupported},
		{"unknown with known", OpUpdate | Op(1<<25), ErrNotSupported},
		{"two async", OpAsyncUpdateStart | OpAsyncFinish, ErrInvalidArgument},
		{"async with update", OpAsyncCheck | OpUpdate, ErrInvalidArgument},
		{"async with dofinal", OpAsyncDoFinalStart | OpDoFinal, ErrInvalidArgument},
		{"update with dofinal", OpUpdate | OpDoFinal, ErrInvalidArgument},
		{"release kernel", OpRelease, ErrNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Perform(c, &Request{Op: tt.op})
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
			assert.Equal(t, before, c.Flags())
		})
	}
}

// TestPerform_StepOrder executes steps in fixed order regardless of how
// the bits are combined.
func TestPerform_StepOrder(t *testing.T) {
	e := newTestEngine(t, nil)
	c := newKernelContext(t, e)
	key := []byte("0123456789abcdef0123456789abcdef")
	tag := make([]byte, 32)

	res, err := e.Perform(c, hmacRequest(OpDoFinal|OpSetKey|OpInit, key, []byte("msg"), tag))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, FlagInitialized|FlagKeySet|FlagFinalized, c.Flags())
	assert.Equal(t, "FINALIZED", c.Flags().String())

	m := hmac.New(sha256.New, key)
	m.Write([]byte("msg"))
	assert.Equal(t, m.Sum(nil), tag)

	_, err = e.Perform(c, &Request{Op: OpReset})
	require.NoError(t, err)
	assert.Equal(t, "RESET", c.Flags().String())
}

// TestPerform_DoubleSetKey moves the context to ERROR where only RESET
// and RELEASE are accepted.
func TestPerform_DoubleSetKey(t *testing.T) {
	e := newTestEngine(t, nil)
	c := newKernelContext(t, e)
	key := make([]byte, 32)

	_, err := e.Perform(c, hmacRequest(OpInit|OpSetKey, key, nil, nil))
	require.NoError(t, err)

	_, err = e.Perform(c, hmacRequest(OpSetKey, key, nil, nil))
	assert.ErrorIs(t, err, ErrBadState)
	assert.Equal(t, FlagError, c.Flags())
	assert.Equal(t, "ERROR", c.Flags().String())

	for _, op := range []Op{OpInit, OpSetKey, OpUpdate, OpDoFinal, OpAsyncCheck, OpOneShot} {
		_, err = e.Perform(c, hmacRequest(op, key, nil, nil))
		assert.ErrorIs(t, err, ErrBadState, op.String())
		assert.Equal(t, FlagError, c.Flags())
	}

	_, err = e.Perform(c, &Request{Op: OpReset})
	require.NoError(t, err)
	assert.Equal(t, Flags(0), c.Flags())

	tag := make([]byte, 32)
	_, err = e.Perform(c, hmacRequest(OpOneShot, key, []byte("x"), tag))
	require.NoError(t, err)
}

// TestPerform_StateGates rejects steps out of lifecycle order.
func TestPerform_StateGates(t *testing.T) {
	e := newTestEngine(t, nil)
	key := make([]byte, 32)

	t.Run("update before init", func(t *testing.T) {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, hmacRequest(OpUpdate, key, []byte("x"), nil))
		assert.ErrorIs(t, err, ErrBadState)
	})
	t.Run("update before key", func(t *testing.T) {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, hmacRequest(OpInit, key, nil, nil))
		require.NoError(t, err)
		_, err = e.Perform(c, hmacRequest(OpUpdate, key, []byte("x"), nil))
		assert.ErrorIs(t, err, ErrBadState)
		assert.Equal(t, FlagError, c.Flags())
	})
	t.Run("init twice", func(t *testing.T) {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, hmacRequest(OpInit, key, nil, nil))
		require.NoError(t, err)
		_, err = e.Perform(c, hmacRequest(OpInit, key, nil, nil))
		assert.ErrorIs(t, err, ErrBadState)
	})
	t.Run("update after dofinal", func(t *testing.T) {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, hmacRequest(OpInit|OpSetKey|OpDoFinal, key, nil, make([]byte, 32)))
		require.NoError(t, err)
		_, err = e.Perform(c, hmacRequest(OpUpdate, key, []byte("x"), nil))
		assert.ErrorIs(t, err, ErrBadState)
	})
	t.Run("unknown algorithm", func(t *testing.T) {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, &Request{Op: OpInit, Algorithm: types.AlgorithmSHA256, Mode: types.ModeEncrypt})
		assert.ErrorIs(t, err, ErrNotSupported)
		assert.Equal(t, FlagError, c.Flags())
	})
}

// TestPerform_Capabilities rejects steps a class does not support.
func TestPerform_Capabilities(t *testing.T) {
	e := newTestEngine(t, nil)
	digest := &Request{Algorithm: types.AlgorithmSHA256, Mode: types.ModeDigest}

	t.Run("set key alone on keyless class", func(t *testing.T) {
		c := newKernelContext(t, e)
		digest.Op = OpInit
		_, err := e.Perform(c, digest)
		require.NoError(t, err)
		digest.Op = OpSetKey
		_, err = e.Perform(c, digest)
		assert.ErrorIs(t, err, ErrNotSupported)
	})
	t.Run("set key bundled on keyless class", func(t *testing.T) {
		c := newKernelContext(t, e)
		digest.Op = OpInit | OpSetKey
		_, err := e.Perform(c, digest)
		require.NoError(t, err)
		assert.Equal(t, FlagInitialized, c.Flags())
	})
	t.Run("update on signature", func(t *testing.T) {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, &Request{
			Op:        OpInit | OpSetKey,
			Algorithm: types.AlgorithmRSAPSSSHA256,
			Mode:      types.ModeVerify,
			Key:       RSAPublicKey{Key: &testRSAKey(t).PublicKey},
		})
		require.NoError(t, err)
		_, err = e.Perform(c, &Request{Op: OpUpdate})
		assert.ErrorIs(t, err, ErrNotSupported)
	})
	t.Run("async on mac", func(t *testing.T) {
		c := newKernelContext(t, e)
		_, err := e.Perform(c, hmacRequest(OpInit|OpSetKey, make([]byte, 16), nil, nil))
		require.NoError(t, err)
		_, err = e.Perform(c, hmacRequest(OpAsyncUpdateStart, nil, []byte("x"), nil))
		assert.ErrorIs(t, err, ErrNotSupported)
	})
}

// TestPerform_Isolated resolves region references and releases the
// context through the engine.
func TestPerform_Isolated(t *testing.T) {
	e := newTestEngine(t, nil)
	region := make([]byte, 64)
	copy(region, "abc")

	c, err := e.NewContext(DomainIsolated, region)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Live())

	res, err := e.Perform(c, &Request{
		Op:        OpOneShot | OpRelease,
		Algorithm: types.AlgorithmSHA256,
		Mode:      types.ModeDigest,
		Data:      DataArgs{Src: Ref(0, 3), Dst: Ref(32, 32)},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hex.EncodeToString(region[32:]))
	assert.True(t, c.Released())
	assert.Equal(t, 0, e.Live())

	_, err = e.Perform(c, &Request{Op: OpReset})
	assert.ErrorIs(t, err, ErrBadState)
}

// TestPerform_IsolatedFailureReleases releases an isolated context when a
// step fails.
func TestPerform_IsolatedFailureReleases(t *testing.T) {
	e := newTestEngine(t, nil)
	c, err := e.NewContext(DomainIsolated, make([]byte, 16))
	require.NoError(t, err)

	_, err = e.Perform(c, &Request{
		Op:        OpOneShot,
		Algorithm: types.AlgorithmSHA256,
		Mode:      types.ModeDigest,
		Data:      DataArgs{Src: Ref(8, 16), Dst: Ref(0, 8)},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.True(t, c.Released())
	assert.Equal(t, 0, e.Live())
}

// TestPerform_BufferDomainMismatch rejects references from kernel callers
// and direct memory from isolated callers.
func TestPerform_BufferDomainMismatch(t *testing.T) {
	e := newTestEngine(t, nil)
	req := &Request{
		Op:        OpOneShot,
		Algorithm: types.AlgorithmSHA256,
		Mode:      types.ModeDigest,
		Data:      DataArgs{Src: Ref(0, 3), Dst: Ref(0, 32)},
	}

	c := newKernelContext(t, e)
	_, err := e.Perform(c, req)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ic, err := e.NewContext(DomainIsolated, make([]byte, 64))
	require.NoError(t, err)
	req.Data = DataArgs{Src: Bytes([]byte("abc")), Dst: Bytes(make([]byte, 32))}
	_, err = e.Perform(ic, req)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// TestNewContext validates domains and enforces the isolated context limit.
func TestNewContext(t *testing.T) {
	e := newTestEngine(t, &Config{MaxContexts: 2})

	_, err := e.NewContext(DomainKernel, make([]byte, 8))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = e.NewContext(Domain(9), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	a, err := e.NewContext(DomainIsolated, nil)
	require.NoError(t, err)
	b, err := e.NewContext(DomainIsolated, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	_, err = e.NewContext(DomainIsolated, nil)
	assert.ErrorIs(t, err, ErrNoMemory)

	// kernel contexts are not registered
	_, err = e.NewContext(DomainKernel, nil)
	require.NoError(t, err)

	require.NoError(t, e.Close())
	assert.True(t, a.Released())
	assert.True(t, b.Released())
	assert.Equal(t, 0, e.Live())

	_, err = e.NewContext(DomainKernel, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestPerform_ForeignContext rejects contexts created by another engine.
func TestPerform_ForeignContext(t *testing.T) {
	a := newTestEngine(t, nil)
	b := newTestEngine(t, nil)
	c := newKernelContext(t, a)

	_, err := b.Perform(c, &Request{Op: OpReset})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = a.Perform(c, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

// TestPerform_ZeroesKeyMaterial zeroes every released buffer after a
// successful reset and after a failed step.
func TestPerform_ZeroesKeyMaterial(t *testing.T) {
	rec := memorytest.NewRecorder(nil)
	e := newTestEngine(t, &Config{Memory: rec})
	key := []byte("a secret hmac key that is long enough")

	c := newKernelContext(t, e)
	_, err := e.Perform(c, hmacRequest(OpOneShot, key, []byte("msg"), make([]byte, 32)))
	require.NoError(t, err)

	_, err = e.Perform(c, hmacRequest(OpInit|OpSetKey, key, nil, nil))
	require.NoError(t, err)
	_, err = e.Perform(c, hmacRequest(OpDoFinal, nil, []byte("msg"), make([]byte, 8)))
	assert.ErrorIs(t, err, ErrBadLength)
	assert.Equal(t, FlagError, c.Flags())

	assert.Equal(t, 2, rec.Allocated(memory.PurposeKey))
	assert.Equal(t, 0, rec.Live())
	assert.True(t, rec.ReleasedAllZero())
}

// TestPerform_AllocationFailure surfaces provider exhaustion as ErrNoMemory.
func TestPerform_AllocationFailure(t *testing.T) {
	rec := memorytest.NewRecorder(nil)
	rec.FailPurpose(memory.PurposeKey, true)
	e := newTestEngine(t, &Config{Memory: rec})
	c := newKernelContext(t, e)

	_, err := e.Perform(c, hmacRequest(OpOneShot, make([]byte, 32), nil, make([]byte, 32)))
	assert.ErrorIs(t, err, ErrNoMemory)
	assert.Equal(t, FlagError, c.Flags())
}

// TestPerform_Concurrent runs independent contexts in parallel.
func TestPerform_Concurrent(t *testing.T) {
	e := newTestEngine(t, nil)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 16; i++ {
		i := i
		g.Go(func() error {
			c, err := e.NewContext(DomainKernel, nil)
			if err != nil {
				return err
			}
			key := []byte(fmt.Sprintf("key-%02d-0123456789abcdefghijklm", i))
			msg := []byte(fmt.Sprintf("message %d", i))
			for j := 0; j < 20; j++ {
				tag := make([]byte, 32)
				if _, err := e.PerformContext(ctx, c, hmacRequest(OpOneShot, key, msg, tag)); err != nil {
					return err
				}
				m := hmac.New(sha256.New, key)
				m.Write(msg)
				if !hmac.Equal(m.Sum(nil), tag) {
					return fmt.Errorf("context %d iteration %d: tag mismatch", c.ID(), j)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

// TestPerform_CanceledContext fails the step without touching the engine.
func TestPerform_CanceledContext(t *testing.T) {
	e := newTestEngine(t, nil)
	c := newKernelContext(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.PerformContext(ctx, c, &Request{
		Op:        OpOneShot,
		Algorithm: types.AlgorithmSHA256,
		Mode:      types.ModeDigest,
		Data:      DataArgs{Dst: Bytes(make([]byte, 32))},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, FlagError, c.Flags())
}

// TestPerform_FailureLogsCorrelationID tags the failure log with the
// caller's correlation ID.
func TestPerform_FailureLogsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	e := New(&Config{Logger: logging.New(&logging.Options{Format: "json", Output: &buf})})
	t.Cleanup(func() { _ = e.Close() })

	ctx := correlation.WithID(context.Background(), "req-42")
	_, err := e.PerformContext(ctx, newKernelContext(t, e), &Request{
		Op:        OpOneShot,
		Algorithm: types.AlgorithmSHA256,
		Mode:      types.ModeDigest,
		Data:      DataArgs{Dst: Bytes(make([]byte, 8))},
	})
	assert.ErrorIs(t, err, ErrBadLength)
	assert.Contains(t, buf.String(), `"correlation_id":"req-42"`)
}

// TestOp_String names steps.
func TestOp_String(t *testing.T) {
	assert.Equal(t, "none", Op(0).String())
	assert.Equal(t, "init|set_key", (OpInit | OpSetKey).String())
	assert.Equal(t, "init|set_key|dofinal|reset", OpOneShot.expand().String())
	assert.Equal(t, "update|unknown", (OpUpdate | Op(1<<20)).String())
}

// TestErrorType maps errors to metric labels.
func TestErrorType(t *testing.T) {
	assert.Equal(t, "bad_state", errorType(fmt.Errorf("x: %w", ErrBadState)))
	assert.Equal(t, "bad_length", errorType(keyslot.ErrInvalidKeySize))
	assert.Equal(t, "other", errorType(context.Canceled))
}
