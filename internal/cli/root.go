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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Global configuration
	globalConfig *Config

	// v resolves persistent flags against KEYENGINE_* environment variables
	v = viper.New()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "keyengine",
	Short: "go-keyengine CLI - Context-based crypto engine tool",
	Long: `go-keyengine CLI drives the crypto operation engine from the command
line. Every command opens an engine context and submits its work through
the same dispatcher used by library callers.

Commands:
  - digest:   SHA-1, SHA-2 and MD5 digests
  - hmac:     HMAC with inline or slot-loaded keys
  - cmac:     AES-CMAC
  - kdf:      SP 800-108 hash, AES and CMAC derivations into keyslots
  - ecdh:     P-256, P-384, P-521 and X25519 key agreement
  - verify:   RSA PSS and PKCS#1 v1.5 signature verification
  - random:   random bytes from the configured entropy source
  - selftest: known-answer tests for every engine class`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return globalConfig.bind(v)
	},
}

// Execute runs the root command and exits with status 1 on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		handleError(err)
	}
}

func init() {
	// Initialize global config
	globalConfig = NewConfig()

	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "engine config file (defaults plus KEYENGINE_* overrides when empty)")
	flags.StringP("output", "o", globalConfig.OutputFormat, "output format (text, json)")
	flags.BoolP("verbose", "v", false, "verbose output")

	for _, name := range []string{"config", "output", "verbose"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	v.SetEnvPrefix("KEYENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(hmacCmd)
	rootCmd.AddCommand(cmacCmd)
	rootCmd.AddCommand(kdfCmd)
	rootCmd.AddCommand(ecdhCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(randomCmd)
	rootCmd.AddCommand(selftestCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	printer := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if globalConfig.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
