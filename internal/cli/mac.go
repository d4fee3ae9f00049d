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
	"crypto"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Hash a message on the digest engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("hash")
		alg, err := digestAlgorithm(name)
		if err != nil {
			return err
		}
		msg, err := readInput(cmd)
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, s *session, p *Printer) error {
			sum, err := digest(ctx, s.engine, alg, msg)
			if err != nil {
				return err
			}
			return p.PrintHex("digest", sum)
		})
	},
}

var hmacCmd = &cobra.Command{
	Use:   "hmac",
	Short: "Compute or verify an HMAC",
	Long: `Compute or verify an HMAC over a message. With --slot the key is first
loaded into that keyslot and the engine computes the MAC from the slot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("hash")
		alg, ok := types.ParseAlgorithm("HMAC-" + strings.ToUpper(name))
		if !ok || !alg.IsHMAC() {
			return fmt.Errorf("unsupported HMAC hash: %s", name)
		}
		return runMACCommand(cmd, alg)
	},
}

var cmacCmd = &cobra.Command{
	Use:   "cmac",
	Short: "Compute or verify an AES-CMAC",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMACCommand(cmd, types.AlgorithmCMACAES)
	},
}

func init() {
	digestCmd.Flags().String("hash", "SHA-256", "hash (SHA-1, SHA-224, SHA-256, SHA-384, SHA-512, MD5)")
	addInputFlags(digestCmd)

	hmacCmd.Flags().String("hash", "SHA-256", "hash (SHA-1, SHA-224, SHA-256, SHA-384, SHA-512, MD5)")
	for _, cmd := range []*cobra.Command{hmacCmd, cmacCmd} {
		cmd.Flags().String("key", "", "key as hex")
		cmd.Flags().Int("slot", -1, "load the key into this keyslot and use it from there")
		cmd.Flags().String("verify", "", "expected tag as hex; verifies instead of printing")
		addInputFlags(cmd)
		_ = cmd.MarkFlagRequired("key")
	}
}

func runMACCommand(cmd *cobra.Command, alg types.Algorithm) error {
	keyHex, _ := cmd.Flags().GetString("key")
	key, err := decodeHex("key", keyHex)
	if err != nil {
		return err
	}
	slot, _ := cmd.Flags().GetInt("slot")
	msg, err := readInput(cmd)
	if err != nil {
		return err
	}
	var expected []byte
	if v, _ := cmd.Flags().GetString("verify"); v != "" {
		if expected, err = decodeHex("verify", v); err != nil {
			return err
		}
	}

	return withSession(cmd, func(ctx context.Context, s *session, p *Printer) error {
		tag, err := mac(ctx, s.engine, alg, macKey(key, slot), msg, expected)
		if err != nil {
			return err
		}
		if expected != nil {
			return p.PrintSuccess(fmt.Sprintf("%s verified", alg))
		}
		return p.PrintHex("mac", tag)
	})
}

// macKey builds the SET_KEY argument. A non-negative slot routes the
// key through the keyslot bank.
func macKey(key []byte, slot int) engine.SymmetricKey {
	k := engine.SymmetricKey{Value: key}
	if slot >= 0 {
		k.Slot = slot
		k.WriteToSlot = true
		k.Purpose = keyslot.PurposeMAC
	}
	return k
}

// digestAlgorithm maps a hash name to its digest algorithm
func digestAlgorithm(name string) (types.Algorithm, error) {
	alg, ok := types.ParseAlgorithm(name)
	if !ok || types.HashName(alg.String()).ToCrypto() == 0 {
		return types.AlgorithmNone, fmt.Errorf("unsupported hash: %s", name)
	}
	return alg, nil
}

// digestFor returns the digest algorithm computing h
func digestFor(h crypto.Hash) (types.Algorithm, error) {
	for _, alg := range []types.Algorithm{
		types.AlgorithmSHA1, types.AlgorithmSHA224, types.AlgorithmSHA256,
		types.AlgorithmSHA384, types.AlgorithmSHA512, types.AlgorithmMD5,
	} {
		if types.HashName(alg.String()).ToCrypto() == h {
			return alg, nil
		}
	}
	return types.AlgorithmNone, fmt.Errorf("no digest engine for %v", h)
}

func digest(ctx context.Context, e *engine.Engine, alg types.Algorithm, msg []byte) ([]byte, error) {
	out := make([]byte, maxOutput)
	res, err := stream(ctx, e,
		&engine.Request{Algorithm: alg, Mode: types.ModeDigest},
		msg,
		&engine.Request{Data: engine.DataArgs{Dst: engine.Bytes(out)}})
	if err != nil {
		return nil, err
	}
	return out[:res.Written], nil
}

// mac computes the tag of msg, or verifies it against expected when
// expected is non-nil.
func mac(ctx context.Context, e *engine.Engine, alg types.Algorithm, key engine.SymmetricKey, msg, expected []byte) ([]byte, error) {
	setup := &engine.Request{Algorithm: alg, Mode: types.ModeMAC, Key: key}
	final := &engine.Request{}
	var out []byte
	if expected != nil {
		setup.Mode = types.ModeMACVerify
		final.Data.MAC = engine.Bytes(expected)
	} else {
		out = make([]byte, maxOutput)
		final.Data.Dst = engine.Bytes(out)
	}
	res, err := stream(ctx, e, setup, msg, final)
	if err != nil {
		return nil, err
	}
	return out[:res.Written], nil
}
