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

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/ecdh"
	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

var ecdhCmd = &cobra.Command{
	Use:   "ecdh",
	Short: "Compute an ECDH shared secret",
	Long: `Compute an ECDH shared secret from a private scalar and a peer point.
Without --private a key pair is generated from the configured random
source and printed. --hkdf-len expands the shared secret with HKDF-SHA-256.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("curve")
		curve, err := parseCurve(name)
		if err != nil {
			return err
		}
		privHex, _ := cmd.Flags().GetString("private")
		peerHex, _ := cmd.Flags().GetString("peer")
		hkdfLen, _ := cmd.Flags().GetInt("hkdf-len")
		saltHex, _ := cmd.Flags().GetString("salt")
		info, _ := cmd.Flags().GetString("info")

		priv, err := decodeHex("private", privHex)
		if err != nil {
			return err
		}
		peer, err := decodeHex("peer", peerHex)
		if err != nil {
			return err
		}
		salt, err := decodeHex("salt", saltHex)
		if err != nil {
			return err
		}
		if len(priv) > 0 && len(peer) == 0 {
			return fmt.Errorf("--peer is required with --private")
		}

		return withSession(cmd, func(ctx context.Context, s *session, p *Printer) error {
			var fields []field
			var pub []byte
			if len(priv) == 0 {
				if priv, pub, err = ecdh.GenerateKey(curve, s.rng); err != nil {
					return err
				}
				fields = append(fields, field{"private", priv}, field{"public", pub})
				if len(peer) == 0 {
					return p.PrintFields(fields...)
				}
			}

			shared, err := agree(ctx, s.engine, curve, priv, pub, peer)
			if err != nil {
				return err
			}
			fields = append(fields, field{"shared", shared})
			if hkdfLen > 0 {
				okm, err := ecdh.DeriveKey(shared, salt, []byte(info), hkdfLen)
				if err != nil {
					return err
				}
				fields = append(fields, field{"hkdf", okm})
			}
			return p.PrintFields(fields...)
		})
	},
}

func init() {
	ecdhCmd.Flags().String("curve", string(types.CurveX25519), "curve (P-256, P-384, P-521, X25519)")
	ecdhCmd.Flags().String("private", "", "private scalar as hex")
	ecdhCmd.Flags().String("peer", "", "peer public point as hex")
	ecdhCmd.Flags().Int("hkdf-len", 0, "expand the shared secret to this many bytes")
	ecdhCmd.Flags().String("salt", "", "HKDF salt as hex")
	ecdhCmd.Flags().String("info", "", "HKDF info")
}

func parseCurve(name string) (types.EllipticCurve, error) {
	for _, curve := range []types.EllipticCurve{
		types.CurveP256, types.CurveP384, types.CurveP521, types.CurveX25519,
	} {
		if curve.Equals(name) {
			return curve, nil
		}
	}
	return "", fmt.Errorf("unsupported curve: %s", name)
}

// agree runs a one-shot ECDH on the derive engine. pub may be empty.
func agree(ctx context.Context, e *engine.Engine, curve types.EllipticCurve, priv, pub, peer []byte) ([]byte, error) {
	c, err := e.NewContext(engine.DomainKernel, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, curve.ScalarSize())
	res, err := e.PerformContext(ctx, c, &engine.Request{
		Op:        engine.OpOneShot,
		Algorithm: types.AlgorithmECDH,
		Mode:      types.ModeDerive,
		Init:      engine.ECDHInit{Curve: curve},
		Key:       engine.ECKey{Private: priv, Public: pub},
		Data:      engine.DataArgs{Src: engine.Bytes(peer), Dst: engine.Bytes(out)},
	})
	if err != nil {
		return nil, err
	}
	return out[:res.Written], nil
}
