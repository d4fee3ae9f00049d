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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

var kdfAlgorithms = map[string]types.Algorithm{
	"hash": types.AlgorithmKDFHash,
	"aes":  types.AlgorithmKDFAES,
	"cmac": types.AlgorithmKDFCMAC,
}

var kdfCmd = &cobra.Command{
	Use:   "kdf",
	Short: "Derive a key into a keyslot",
	Long: `Derive a key into a keyslot. Derived keys never leave the bank; the
command prints a key check value (AES-ECB of a zero block under the
derived key) so results can be compared.

Derivations:
  - hash: SP 800-108 counter mode with HMAC-SHA-256
  - aes:  AES-ECB, or AES-CTR with --iv, over a 16 or 32 byte input
  - cmac: SP 800-108 counter mode with AES-CMAC, one pass per half`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("alg")
		alg, ok := kdfAlgorithms[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("unknown derivation: %s (must be hash, aes, or cmac)", name)
		}
		keyHex, _ := cmd.Flags().GetString("key")
		key, err := decodeHex("key", keyHex)
		if err != nil {
			return err
		}
		keySlot, _ := cmd.Flags().GetInt("key-slot")
		target, _ := cmd.Flags().GetInt("target")
		bits, _ := cmd.Flags().GetInt("bits")
		label, _ := cmd.Flags().GetString("label")
		kctx, _ := cmd.Flags().GetString("context")
		encoded, _ := cmd.Flags().GetBool("encoded")

		init := engine.KDFInit{
			Target: engine.SlotTarget{
				Index: target,
				Manifest: keyslot.Manifest{
					Purpose: keyslot.PurposeAny,
					User:    keyslot.UserAny,
					KeyBits: bits,
				},
			},
			Label:      []byte(label),
			Context:    []byte(kctx),
			AutoEncode: !encoded,
		}
		if ivHex, _ := cmd.Flags().GetString("iv"); ivHex != "" {
			if init.IV, err = decodeHex("iv", ivHex); err != nil {
				return err
			}
		}
		var src []byte
		if alg == types.AlgorithmKDFAES || encoded {
			if src, err = readInput(cmd); err != nil {
				return err
			}
		}

		source := engine.SymmetricKey{Value: key}
		if keySlot >= 0 {
			source.Slot = keySlot
			source.WriteToSlot = true
			source.Purpose = keyslot.PurposeDerive
		}

		return withSession(cmd, func(ctx context.Context, s *session, p *Printer) error {
			kcv, err := deriveKey(ctx, s.engine, alg, source, init, src)
			if err != nil {
				return err
			}
			return p.PrintFields(
				field{"algorithm", alg.String()},
				field{"slot", target},
				field{"bits", bits},
				field{"kcv", kcv},
			)
		})
	},
}

func init() {
	kdfCmd.Flags().String("alg", "hash", "derivation (hash, aes, cmac)")
	kdfCmd.Flags().String("key", "", "derivation key as hex")
	kdfCmd.Flags().Int("key-slot", -1, "load the derivation key into this keyslot and use it from there")
	kdfCmd.Flags().Int("target", 0, "keyslot receiving the derived key")
	kdfCmd.Flags().Int("bits", 256, "derived key size (128, 192, 256)")
	kdfCmd.Flags().String("label", "", "SP 800-108 label")
	kdfCmd.Flags().String("context", "", "SP 800-108 context")
	kdfCmd.Flags().Bool("encoded", false, "hash derivation input is already SP 800-108 encoded")
	kdfCmd.Flags().String("iv", "", "AES derivation counter block as hex (selects CTR)")
	addInputFlags(kdfCmd)
	_ = kdfCmd.MarkFlagRequired("key")
}

// deriveKey runs a one-shot derivation into init.Target and returns the
// key check value of the result.
func deriveKey(ctx context.Context, e *engine.Engine, alg types.Algorithm, key engine.SymmetricKey, init engine.KDFInit, src []byte) ([]byte, error) {
	c, err := e.NewContext(engine.DomainKernel, nil)
	if err != nil {
		return nil, err
	}
	_, err = e.PerformContext(ctx, c, &engine.Request{
		Op:        engine.OpOneShot,
		Algorithm: alg,
		Mode:      types.ModeDerive,
		Init:      init,
		Key:       key,
		Data:      engine.DataArgs{Src: engine.Bytes(src)},
	})
	if err != nil {
		return nil, err
	}
	return keyCheckValue(ctx, e, init.Target.Index)
}

// keyCheckValue encrypts a zero block under the key held in slot
func keyCheckValue(ctx context.Context, e *engine.Engine, slot int) ([]byte, error) {
	c, err := e.NewContext(engine.DomainKernel, nil)
	if err != nil {
		return nil, err
	}
	zero := make([]byte, 16)
	out := make([]byte, 16)
	_, err = e.PerformContext(ctx, c, &engine.Request{
		Op:        engine.OpOneShot,
		Algorithm: types.AlgorithmAESECB,
		Mode:      types.ModeEncrypt,
		Key:       engine.SymmetricKey{Slot: slot, UseExistingSlot: true},
		Data:      engine.DataArgs{Src: engine.Bytes(zero), Dst: engine.Bytes(out)},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
