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

//go:build !pkcs11

package keyslot

import (
	"fmt"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// PKCS11Config configures a token-backed keyslot bank.
type PKCS11Config struct {
	Module      string
	TokenLabel  string
	SlotID      uint
	PIN         string
	Slots       int
	LabelPrefix string
}

// PKCS11Bank is unavailable without the pkcs11 build tag.
type PKCS11Bank struct {
	*SoftwareBank
}

// NewPKCS11Bank returns ErrNotSupported without the pkcs11 build tag.
func NewPKCS11Bank(config *PKCS11Config) (*PKCS11Bank, error) {
	return nil, fmt.Errorf("keyslot: PKCS#11 support not compiled in (build with -tags pkcs11): %w", types.ErrNotSupported)
}

// Close implements io.Closer.
func (b *PKCS11Bank) Close() error {
	return nil
}

// PKCS11Available reports whether the PKCS#11 bank is compiled in.
func PKCS11Available() bool {
	return false
}
