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

package cli

import (
	"bytes"
	"context"
	"crypto"
	"crypto/aes"
	crand "crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/correlation"
	"github.com/jeremyhahn/go-keyengine/pkg/crypto/cmac"
	"github.com/jeremyhahn/go-keyengine/pkg/crypto/sp800108"
	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// errMismatch reports a known-answer test producing the wrong value
var errMismatch = errors.New("selftest: output mismatch")

type selftestResult struct {
	name string
	err  error
}

// knownAnswer is one self-test. slot is a scratch keyslot it may overwrite.
type knownAnswer struct {
	name string
	run  func(ctx context.Context, e *engine.Engine, slot int) error
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run known-answer tests against every engine class",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session, p *Printer) error {
			runID := correlation.ID(ctx)
			results := runSelftest(ctx, s)
			if err := p.PrintSelftest(runID, results); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d self-tests failed", failed, len(results))
			}
			return nil
		})
	},
}

// runSelftest runs every known-answer test, using the last keyslot as
// scratch space and clearing it afterwards.
func runSelftest(ctx context.Context, s *session) []selftestResult {
	logger := s.logger.With(correlation.LogKey, correlation.ID(ctx))
	slot := s.bank.Slots() - 1
	sw := s.engine.Switch()

	results := make([]selftestResult, 0, len(knownAnswers))
	for _, kat := range knownAnswers {
		err := kat.run(ctx, s.engine, slot)
		if cerr := sw.ClearSlot(slot); cerr != nil {
			logger.Debug("scratch slot clear failed", "slot", slot, "error", cerr)
		}
		if err != nil {
			logger.Warn("self-test failed", "test", kat.name, "error", err)
		} else {
			logger.Debug("self-test passed", "test", kat.name)
		}
		results = append(results, selftestResult{name: kat.name, err: err})
	}
	return results
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func expect(got, want []byte) error {
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: got %x, want %x", errMismatch, got, want)
	}
	return nil
}

func aesKCV(key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize)
	block.Encrypt(out, out)
	return out, nil
}

var knownAnswers = []knownAnswer{
	{"SHA-256", func(ctx context.Context, e *engine.Engine, _ int) error {
		sum, err := digest(ctx, e, types.AlgorithmSHA256, []byte("abc"))
		if err != nil {
			return err
		}
		return expect(sum, mustHex("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"))
	}},
	{"AES-128-ECB", func(ctx context.Context, e *engine.Engine, _ int) error {
		c, err := e.NewContext(engine.DomainKernel, nil)
		if err != nil {
			return err
		}
		out := make([]byte, 16)
		_, err = e.PerformContext(ctx, c, &engine.Request{
			Op:        engine.OpOneShot,
			Algorithm: types.AlgorithmAESECB,
			Mode:      types.ModeEncrypt,
			Key:       engine.SymmetricKey{Value: mustHex("000102030405060708090a0b0c0d0e0f")},
			Data: engine.DataArgs{
				Src: engine.Bytes(mustHex("00112233445566778899aabbccddeeff")),
				Dst: engine.Bytes(out),
			},
		})
		if err != nil {
			return err
		}
		return expect(out, mustHex("69c4e0d86a7b0430d8cdb78070b4c55a"))
	}},
	{"HMAC-SHA-256", func(ctx context.Context, e *engine.Engine, _ int) error {
		tag, err := mac(ctx, e, types.AlgorithmHMACSHA256, engine.SymmetricKey{Value: []byte("Jefe")},
			[]byte("what do ya want for nothing?"), nil)
		if err != nil {
			return err
		}
		return expect(tag, mustHex("5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"))
	}},
	{"HMAC-SHA-256 (keyslot)", func(ctx context.Context, e *engine.Engine, slot int) error {
		key := bytes.Repeat([]byte{0xaa}, 32)
		msg := []byte("keyslot hmac")
		want, err := mac(ctx, e, types.AlgorithmHMACSHA256, engine.SymmetricKey{Value: key}, msg, nil)
		if err != nil {
			return err
		}
		_, err = mac(ctx, e, types.AlgorithmHMACSHA256, macKey(key, slot), msg, want)
		return err
	}},
	{"CMAC-AES-128", func(ctx context.Context, e *engine.Engine, _ int) error {
		tag, err := mac(ctx, e, types.AlgorithmCMACAES,
			engine.SymmetricKey{Value: mustHex("2b7e151628aed2a6abf7158809cf4f3c")},
			mustHex("6bc1bee22e409f96e93d7e117393172a"), nil)
		if err != nil {
			return err
		}
		return expect(tag, mustHex("070a16b46b4d4144f79bdd9dd04a287c"))
	}},
	{"X25519", func(ctx context.Context, e *engine.Engine, _ int) error {
		shared, err := agree(ctx, e, types.CurveX25519,
			mustHex("77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a"), nil,
			mustHex("de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f"))
		if err != nil {
			return err
		}
		return expect(shared, mustHex("4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742"))
	}},
	{"KDF-HMAC-SHA-256", func(ctx context.Context, e *engine.Engine, slot int) error {
		key := bytes.Repeat([]byte{0x0b}, 32)
		label, kctx := []byte("keyengine selftest"), []byte("kdf-hash")
		want, err := sp800108.Derive(crypto.SHA256, key, label, kctx, 256)
		if err != nil {
			return err
		}
		return expectDerived(ctx, e, types.AlgorithmKDFHash, key, label, kctx, slot, want)
	}},
	{"KDF-CMAC-AES", func(ctx context.Context, e *engine.Engine, slot int) error {
		key := bytes.Repeat([]byte{0x2c}, 16)
		label, kctx := []byte("keyengine selftest"), []byte("kdf-cmac")
		block, err := aes.NewCipher(key)
		if err != nil {
			return err
		}
		var want []byte
		for counter := uint32(1); counter <= 2; counter++ {
			enc, err := sp800108.Encode(counter, label, kctx, 256)
			if err != nil {
				return err
			}
			tag, err := cmac.Sum(block, enc)
			if err != nil {
				return err
			}
			want = append(want, tag...)
		}
		return expectDerived(ctx, e, types.AlgorithmKDFCMAC, key, label, kctx, slot, want)
	}},
	{"RSASSA-PSS-SHA-256", func(ctx context.Context, e *engine.Engine, _ int) error {
		key, err := rsa.GenerateKey(crand.Reader, 2048)
		if err != nil {
			return err
		}
		sum, err := digest(ctx, e, types.AlgorithmSHA256, []byte("keyengine selftest"))
		if err != nil {
			return err
		}
		sig, err := rsa.SignPSS(crand.Reader, key, crypto.SHA256, sum,
			&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		if err != nil {
			return err
		}
		if err := verifySignature(ctx, e, types.AlgorithmRSAPSSSHA256, &key.PublicKey, nil, sum, sig); err != nil {
			return err
		}
		sig[0] ^= 0x01
		if err := verifySignature(ctx, e, types.AlgorithmRSAPSSSHA256, &key.PublicKey, nil, sum, sig); !errors.Is(err, engine.ErrSignatureInvalid) {
			return fmt.Errorf("%w: tampered signature accepted (%v)", errMismatch, err)
		}
		return nil
	}},
	{"RNG", func(ctx context.Context, e *engine.Engine, _ int) error {
		a, err := random(ctx, e, 32)
		if err != nil {
			return err
		}
		b, err := random(ctx, e, 32)
		if err != nil {
			return err
		}
		if bytes.Equal(a, b) || bytes.Equal(a, make([]byte, 32)) {
			return fmt.Errorf("%w: repeated random output", errMismatch)
		}
		return nil
	}},
}

// expectDerived derives a 256-bit key into slot and compares its check
// value with the one of want.
func expectDerived(ctx context.Context, e *engine.Engine, alg types.Algorithm, key, label, kctx []byte, slot int, want []byte) error {
	init := engine.KDFInit{
		Target: engine.SlotTarget{
			Index:    slot,
			Manifest: keyslot.Manifest{Purpose: keyslot.PurposeAny, User: keyslot.UserAny, KeyBits: 256},
		},
		Label:      label,
		Context:    kctx,
		AutoEncode: true,
	}
	got, err := deriveKey(ctx, e, alg, engine.SymmetricKey{Value: key}, init, nil)
	if err != nil {
		return err
	}
	kcv, err := aesKCV(want)
	if err != nil {
		return err
	}
	return expect(got, kcv)
}
