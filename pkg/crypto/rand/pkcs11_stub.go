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

package rand

import "fmt"

// Built without the pkcs11 tag. Auto mode never considers a token and an
// explicit pkcs11 mode falls through to the configured fallback.
const pkcs11Compiled = false

func newPKCS11Source(cfg *PKCS11Config) (Source, error) {
	if cfg != nil && cfg.Module != "" {
		return nil, fmt.Errorf("%w: module %s needs a build with -tags pkcs11", ErrUnavailable, cfg.Module)
	}
	return nil, fmt.Errorf("%w: binary built without -tags pkcs11", ErrUnavailable)
}
