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

package hwengine

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Capabilities reports which engines have instruction-level acceleration
// on the host.
type Capabilities struct {
	Arch      string
	AES       bool
	SHA256    bool
	SHA512    bool
	CarryLess bool
}

// HostCapabilities inspects the running CPU.
func HostCapabilities() Capabilities {
	c := Capabilities{Arch: runtime.GOARCH}
	switch runtime.GOARCH {
	case "amd64", "386":
		c.AES = cpu.X86.HasAES
		c.CarryLess = cpu.X86.HasPCLMULQDQ
		// AVX2 backs the vectorised SHA-2 block functions.
		c.SHA256 = cpu.X86.HasAVX2
		c.SHA512 = cpu.X86.HasAVX2
	case "arm64":
		c.AES = cpu.ARM64.HasAES
		c.CarryLess = cpu.ARM64.HasPMULL
		c.SHA256 = cpu.ARM64.HasSHA2
		c.SHA512 = cpu.ARM64.HasSHA512
	case "s390x":
		c.AES = cpu.S390X.HasAES
		c.SHA256 = cpu.S390X.HasSHA256
		c.SHA512 = cpu.S390X.HasSHA512
	}
	return c
}
