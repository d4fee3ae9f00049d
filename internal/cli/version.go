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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
)

// Version information (injected at build time via -ldflags)
var (
	Version   = "dev"     // Set via -ldflags "-X github.com/jeremyhahn/go-keyengine/internal/cli.Version=x.y.z"
	GitCommit = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-keyengine/internal/cli.GitCommit=abc123"
	BuildDate = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-keyengine/internal/cli.BuildDate=2025-01-15"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and engine acceleration information",
	Long: `Print the version of the keyengine CLI together with the instruction
set extensions available to the cipher and digest engines on this host.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).PrintFields(versionFields()...)
	},
}

func versionFields() []field {
	caps := hwengine.HostCapabilities()
	return []field{
		{"version", Version},
		{"commit", GitCommit},
		{"build_date", BuildDate},
		{"go_version", runtime.Version()},
		{"os", runtime.GOOS},
		{"arch", caps.Arch},
		{"aes_accel", caps.AES},
		{"sha256_accel", caps.SHA256},
		{"sha512_accel", caps.SHA512},
		{"clmul_accel", caps.CarryLess},
	}
}
