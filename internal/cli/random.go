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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/engine"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// maxRandom bounds a single random request
const maxRandom = 1 << 16

var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Read random bytes from the random engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("bytes")
		if n <= 0 || n > maxRandom {
			return fmt.Errorf("--bytes must be between 1 and %d", maxRandom)
		}
		return withSession(cmd, func(ctx context.Context, s *session, p *Printer) error {
			b, err := random(ctx, s.engine, n)
			if err != nil {
				return err
			}
			printVerbose("source %s", s.rng.Mode())
			return p.PrintHex("random", b)
		})
	},
}

func init() {
	randomCmd.Flags().IntP("bytes", "n", 32, "number of bytes")
}

func random(ctx context.Context, e *engine.Engine, n int) ([]byte, error) {
	c, err := e.NewContext(engine.DomainKernel, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := e.PerformContext(ctx, c, &engine.Request{
		Op:        engine.OpOneShot,
		Algorithm: types.AlgorithmRNG,
		Mode:      types.ModeRandom,
		Data:      engine.DataArgs{Dst: engine.Bytes(out)},
	}); err != nil {
		return nil, err
	}
	return out, nil
}
