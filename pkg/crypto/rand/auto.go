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

package rand

// openAuto prefers PKCS#11, then TPM2, then crypto/rand. Hardware sources
// are only tried when configured.
func openAuto(config *Config) (Source, error) {
	if pkcs11Compiled && config.PKCS11 != nil {
		if src, err := newPKCS11Source(config.PKCS11); err == nil {
			return src, nil
		}
	}
	if tpm2Compiled && config.TPM2 != nil {
		if src, err := newTPM2Source(config.TPM2); err == nil {
			return src, nil
		}
	}
	return Software(), nil
}
