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
	"crypto/ecdh"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/internal/config"
	"github.com/jeremyhahn/go-keyengine/pkg/correlation"
	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

func newTestSession(t *testing.T) *session {
	t.Helper()
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	s, err := newSession(cfg, io.Discard)
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func TestNewSession_UnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Keyslots.Backend = "floppy"
	if _, err := newSession(cfg, io.Discard); err == nil {
		t.Error("newSession() error = nil, want unknown backend")
	}
}

func TestDigest_Streaming(t *testing.T) {
	s := newTestSession(t)
	msg := bytes.Repeat([]byte("0123456789"), 1000)

	got, err := digest(context.Background(), s.engine, types.AlgorithmSHA256, msg)
	if err != nil {
		t.Fatalf("digest() error = %v", err)
	}
	want := sha256.Sum256(msg)
	if !bytes.Equal(got, want[:]) {
		t.Errorf("digest() = %x, want %x", got, want)
	}
}

func TestMAC_StreamingAndSlot(t *testing.T) {
	s := newTestSession(t)
	key := bytes.Repeat([]byte{0x42}, 32)
	msg := bytes.Repeat([]byte{0x5a}, 3*streamChunk+17)

	h := hmac.New(sha256.New, key)
	h.Write(msg)
	want := h.Sum(nil)

	got, err := mac(context.Background(), s.engine, types.AlgorithmHMACSHA256, macKey(key, -1), msg, nil)
	if err != nil {
		t.Fatalf("mac() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("mac() = %x, want %x", got, want)
	}

	got, err = mac(context.Background(), s.engine, types.AlgorithmHMACSHA256, macKey(key, 3), msg, nil)
	if err != nil {
		t.Fatalf("mac() with slot error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("mac() with slot = %x, want %x", got, want)
	}
	if _, resident := s.engine.Switch().SlotResident(3); resident {
		t.Error("slot 3 still resident after RESET")
	}
}

func TestMAC_Verify(t *testing.T) {
	s := newTestSession(t)
	key := []byte("Jefe")
	msg := []byte("what do ya want for nothing?")
	tag, _ := hex.DecodeString("5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843")

	if _, err := mac(context.Background(), s.engine, types.AlgorithmHMACSHA256, macKey(key, -1), msg, tag); err != nil {
		t.Errorf("mac() verify error = %v", err)
	}
	_, err := mac(context.Background(), s.engine, types.AlgorithmHMACSHA256, macKey(key, -1), msg, tag[:16])
	if !errors.Is(err, engine.ErrSignatureInvalid) {
		t.Errorf("mac() verify truncated tag error = %v, want ErrSignatureInvalid", err)
	}
	tag[0] ^= 1
	_, err = mac(context.Background(), s.engine, types.AlgorithmHMACSHA256, macKey(key, -1), msg, tag)
	if !errors.Is(err, engine.ErrSignatureInvalid) {
		t.Errorf("mac() verify error = %v, want ErrSignatureInvalid", err)
	}
}

func TestAgree_P256(t *testing.T) {
	s := newTestSession(t)
	a, err := ecdh.P256().GenerateKey(crand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ecdh.P256().GenerateKey(crand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	want, err := a.ECDH(b.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	got, err := agree(context.Background(), s.engine, types.CurveP256, a.Bytes(), nil, b.PublicKey().Bytes())
	if err != nil {
		t.Fatalf("agree() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("agree() = %x, want %x", got, want)
	}
}

func TestDeriveKey_SlotSource(t *testing.T) {
	s := newTestSession(t)
	key := bytes.Repeat([]byte{0x11}, 16)
	init := engine.KDFInit{
		Target: engine.SlotTarget{
			Index:    5,
			Manifest: keyslot.Manifest{Purpose: keyslot.PurposeAny, User: keyslot.UserAny, KeyBits: 192},
		},
		Label:      []byte("label"),
		AutoEncode: true,
	}

	inline, err := deriveKey(context.Background(), s.engine, types.AlgorithmKDFCMAC, engine.SymmetricKey{Value: key}, init, nil)
	if err != nil {
		t.Fatalf("deriveKey() error = %v", err)
	}
	source := engine.SymmetricKey{Value: key, Slot: 6, WriteToSlot: true, Purpose: keyslot.PurposeDerive}
	slotted, err := deriveKey(context.Background(), s.engine, types.AlgorithmKDFCMAC, source, init, nil)
	if err != nil {
		t.Fatalf("deriveKey() with slot source error = %v", err)
	}
	if !bytes.Equal(inline, slotted) {
		t.Errorf("check values differ: %x != %x", inline, slotted)
	}
}

func TestVerifySignature(t *testing.T) {
	s := newTestSession(t)
	key, err := rsa.GenerateKey(crand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte("message"))
	sig, err := rsa.SignPKCS1v15(crand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		t.Fatal(err)
	}

	if err := verifySignature(context.Background(), s.engine, types.AlgorithmRSAPKCS1v15SHA256, &key.PublicKey, nil, sum[:], sig); err != nil {
		t.Errorf("verifySignature() error = %v", err)
	}
	sum[0] ^= 1
	err = verifySignature(context.Background(), s.engine, types.AlgorithmRSAPKCS1v15SHA256, &key.PublicKey, nil, sum[:], sig)
	if !errors.Is(err, engine.ErrSignatureInvalid) {
		t.Errorf("verifySignature() error = %v, want ErrSignatureInvalid", err)
	}
}

func TestLoadRSAPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(crand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		block   *pem.Block
		wantErr bool
	}{
		{"pkix", &pem.Block{Type: "PUBLIC KEY", Bytes: pkix}, false},
		{"pkcs1", &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)}, false},
		{"garbage", &pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1, 2, 3}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "key.pem")
			if err := os.WriteFile(path, pem.EncodeToMemory(tt.block), 0600); err != nil {
				t.Fatal(err)
			}
			pub, err := loadRSAPublicKey(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadRSAPublicKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && !pub.Equal(&key.PublicKey) {
				t.Error("loadRSAPublicKey() returned a different key")
			}
		})
	}
}

func TestRandom(t *testing.T) {
	s := newTestSession(t)
	b, err := random(context.Background(), s.engine, 48)
	if err != nil {
		t.Fatalf("random() error = %v", err)
	}
	if len(b) != 48 {
		t.Errorf("len(random()) = %d, want 48", len(b))
	}
}

func TestRunSelftest(t *testing.T) {
	s := newTestSession(t)
	results := runSelftest(correlation.WithID(context.Background(), "test-run"), s)

	if len(results) != len(knownAnswers) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(knownAnswers))
	}
	for _, r := range results {
		if r.err != nil {
			t.Errorf("%s: %v", r.name, r.err)
		}
	}
	if s.engine.Live() != 0 {
		t.Errorf("Live() = %d after selftest, want 0", s.engine.Live())
	}
	if _, resident := s.engine.Switch().SlotResident(s.bank.Slots() - 1); resident {
		t.Error("scratch slot left resident")
	}
}

func TestReadInput(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		addInputFlags(cmd)
		if err := cmd.Flags().Parse(args); err != nil {
			t.Fatal(err)
		}
		cmd.SetIn(strings.NewReader("from stdin"))
		return cmd
	}

	path := filepath.Join(t.TempDir(), "msg")
	if err := os.WriteFile(path, []byte("from file"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"literal", []string{"--data", "abc"}, "abc", false},
		{"hex", []string{"--hex-data", "616263"}, "abc", false},
		{"file", []string{"--in", path}, "from file", false},
		{"stdin", []string{"--in", "-"}, "from stdin", false},
		{"empty", nil, "", false},
		{"bad hex", []string{"--hex-data", "zz"}, "", true},
		{"two sources", []string{"--data", "a", "--hex-data", "61"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readInput(newCmd(tt.args...))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readInput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("readInput() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCurve(t *testing.T) {
	if c, err := parseCurve("x25519"); err != nil || c != types.CurveX25519 {
		t.Errorf("parseCurve(x25519) = %v, %v", c, err)
	}
	if c, err := parseCurve("p-384"); err != nil || c != types.CurveP384 {
		t.Errorf("parseCurve(p-384) = %v, %v", c, err)
	}
	if _, err := parseCurve("secp256k1"); err == nil {
		t.Error("parseCurve(secp256k1) error = nil")
	}
}

func TestDigestAlgorithm(t *testing.T) {
	if alg, err := digestAlgorithm("sha-512"); err != nil || alg != types.AlgorithmSHA512 {
		t.Errorf("digestAlgorithm(sha-512) = %v, %v", alg, err)
	}
	if _, err := digestAlgorithm("HMAC-SHA-256"); err == nil {
		t.Error("digestAlgorithm(HMAC-SHA-256) error = nil")
	}
	if alg, err := digestFor(crypto.SHA384); err != nil || alg != types.AlgorithmSHA384 {
		t.Errorf("digestFor(SHA384) = %v, %v", alg, err)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter("json", &buf)
	if err := p.PrintFields(field{"slot", 3}, field{"kcv", []byte{0xab, 0xcd}}); err != nil {
		t.Fatal(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if out["kcv"] != "abcd" {
		t.Errorf("kcv = %v, want abcd", out["kcv"])
	}

	buf.Reset()
	p = NewPrinter("text", &buf)
	if err := p.PrintHex("mac", []byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "0102\n" {
		t.Errorf("PrintHex() = %q, want %q", buf.String(), "0102\n")
	}

	buf.Reset()
	results := []selftestResult{{name: "ok"}, {name: "bad", err: errMismatch}}
	if err := p.PrintSelftest("run-1", results); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "FAIL") || !strings.Contains(buf.String(), "run-1") {
		t.Errorf("PrintSelftest() = %q", buf.String())
	}

	if err := NewPrinter("xml", &buf).PrintHex("x", nil); err == nil {
		t.Error("PrintHex() with unknown format error = nil")
	}
}
