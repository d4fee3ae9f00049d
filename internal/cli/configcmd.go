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
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-keyengine/internal/config"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective engine configuration",
	Long: `Print the engine configuration after defaults, the config file and
KEYENGINE_* environment overrides are applied. PINs are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig().EngineConfig()
		if err != nil {
			return err
		}
		redact(cfg)

		if getConfig().OutputFormat == string(OutputFormatJSON) {
			return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).printJSON(cfg)
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

func redact(cfg *config.Config) {
	if p := cfg.Keyslots.PKCS11; p != nil && p.Pin != "" {
		p.Pin = redacted
	}
	if p := cfg.RNG.PKCS11; p != nil && p.Pin != "" {
		p.Pin = redacted
	}
}
