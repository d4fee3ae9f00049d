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
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/rsaverify"
	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify an RSA signature",
	Long: `Verify an RSASSA-PSS or RSASSA-PKCS1-v1_5 signature. The digest is taken
from --digest, or computed on the digest engine from the message flags.
PSS salts default to the hash length; --salt -1 accepts any salt length.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("alg")
		alg, ok := types.ParseAlgorithm(name)
		if !ok || !(alg.IsPSS() || alg.IsPKCS1v15()) {
			return fmt.Errorf("unsupported signature algorithm: %s", name)
		}
		keyPath, _ := cmd.Flags().GetString("key")
		pub, err := loadRSAPublicKey(keyPath)
		if err != nil {
			return err
		}
		sig, err := readSignature(cmd)
		if err != nil {
			return err
		}

		var init engine.InitArgs
		if cmd.Flags().Changed("salt") {
			if !alg.IsPSS() {
				return fmt.Errorf("--salt applies to PSS only")
			}
			salt, _ := cmd.Flags().GetInt("salt")
			policy := rsaverify.SaltFixed(salt)
			if salt < 0 {
				policy = rsaverify.SaltDynamic()
			}
			init = engine.SignatureInit{Salt: policy}
		}

		var digestValue []byte
		if d, _ := cmd.Flags().GetString("digest"); d != "" {
			if digestValue, err = decodeHex("digest", d); err != nil {
				return err
			}
		}
		var msg []byte
		if digestValue == nil {
			if msg, err = readInput(cmd); err != nil {
				return err
			}
		}

		return withSession(cmd, func(ctx context.Context, s *session, p *Printer) error {
			if digestValue == nil {
				hashAlg, err := digestFor(alg.Hash())
				if err != nil {
					return err
				}
				if digestValue, err = digest(ctx, s.engine, hashAlg, msg); err != nil {
					return err
				}
				printVerbose("%s digest %x", hashAlg, digestValue)
			}
			if err := verifySignature(ctx, s.engine, alg, pub, init, digestValue, sig); err != nil {
				return err
			}
			return p.PrintSuccess(fmt.Sprintf("%s signature verified", alg))
		})
	},
}

func init() {
	verifyCmd.Flags().String("alg", types.AlgorithmRSAPSSSHA256.String(), "signature algorithm")
	verifyCmd.Flags().String("key", "", "PEM file holding the RSA public key or certificate")
	verifyCmd.Flags().String("sig", "", "signature as hex")
	verifyCmd.Flags().String("sig-file", "", "file holding the raw signature")
	verifyCmd.Flags().String("digest", "", "message digest as hex")
	verifyCmd.Flags().Int("salt", 0, "PSS salt length (-1 for any)")
	addInputFlags(verifyCmd)
	_ = verifyCmd.MarkFlagRequired("key")
}

func readSignature(cmd *cobra.Command) ([]byte, error) {
	sigHex, _ := cmd.Flags().GetString("sig")
	sigFile, _ := cmd.Flags().GetString("sig-file")
	switch {
	case sigHex != "" && sigFile != "":
		return nil, fmt.Errorf("only one of --sig and --sig-file may be given")
	case sigFile != "":
		// #nosec G304 - Signature path is provided by the user
		return os.ReadFile(sigFile)
	case sigHex != "":
		return decodeHex("sig", sigHex)
	default:
		return nil, fmt.Errorf("one of --sig or --sig-file is required")
	}
}

// loadRSAPublicKey reads a PKIX or PKCS#1 public key, or a certificate
func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	// #nosec G304 - Key path is provided by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM data in %s", path)
	}

	var key interface{}
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		key = cert.PublicKey
	case "RSA PUBLIC KEY":
		if key, err = x509.ParsePKCS1PublicKey(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
	default:
		if key, err = x509.ParsePKIXPublicKey(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s does not hold an RSA public key", path)
	}
	return pub, nil
}

// verifySignature runs a one-shot verification. init may be nil.
func verifySignature(ctx context.Context, e *engine.Engine, alg types.Algorithm, pub *rsa.PublicKey, init engine.InitArgs, digest, sig []byte) error {
	c, err := e.NewContext(engine.DomainKernel, nil)
	if err != nil {
		return err
	}
	_, err = e.PerformContext(ctx, c, &engine.Request{
		Op:        engine.OpOneShot,
		Algorithm: alg,
		Mode:      types.ModeVerify,
		Init:      init,
		Key:       engine.RSAPublicKey{Key: pub},
		Data:      engine.DataArgs{Digest: engine.Bytes(digest), Signature: engine.Bytes(sig)},
	})
	return err
}
