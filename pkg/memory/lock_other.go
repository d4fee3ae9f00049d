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

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package memory

import "errors"

var errLockUnsupported = errors.New("memory: locking not supported on this platform")

func lock(_ []byte) error {
	return errLockUnsupported
}

func unlock(_ []byte) error {
	return nil
}
