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
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keyengine/pkg/correlation"
	"github.com/jeremyhahn/go-keyengine/pkg/engine"
)

// streamChunk is the UPDATE size used when feeding messages to a context
const streamChunk = 4096

// maxOutput covers the largest digest or tag any engine produces
const maxOutput = 64

// decodeHex decodes a hex flag value, naming the flag on error
func decodeHex(flag, value string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return b, nil
}

// readInput returns the message named by --data, --hex-data or --in.
// "-" reads stdin.
func readInput(cmd *cobra.Command) ([]byte, error) {
	data, _ := cmd.Flags().GetString("data")
	hexData, _ := cmd.Flags().GetString("hex-data")
	in, _ := cmd.Flags().GetString("in")

	set := 0
	for _, s := range []string{data, hexData, in} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("only one of --data, --hex-data and --in may be given")
	}

	switch {
	case hexData != "":
		return decodeHex("hex-data", hexData)
	case in == "-":
		return io.ReadAll(cmd.InOrStdin())
	case in != "":
		// #nosec G304 - Input path is provided by the user
		return os.ReadFile(in)
	default:
		return []byte(data), nil
	}
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("data", "", "message as a literal string")
	cmd.Flags().String("hex-data", "", "message as hex")
	cmd.Flags().String("in", "", "file holding the message (- for stdin)")
}

// stream runs INIT|SET_KEY from setup, feeds msg through UPDATE in
// streamChunk pieces and passes the last piece to DOFINAL|RESET in final.
func stream(ctx context.Context, e *engine.Engine, setup *engine.Request, msg []byte, final *engine.Request) (*engine.Result, error) {
	c, err := e.NewContext(engine.DomainKernel, nil)
	if err != nil {
		return nil, err
	}
	setup.Op = engine.OpInit | engine.OpSetKey
	if _, err := e.PerformContext(ctx, c, setup); err != nil {
		return nil, err
	}
	for len(msg) > streamChunk {
		update := &engine.Request{
			Op:   engine.OpUpdate,
			Data: engine.DataArgs{Src: engine.Bytes(msg[:streamChunk])},
		}
		if _, err := e.PerformContext(ctx, c, update); err != nil {
			return nil, err
		}
		msg = msg[streamChunk:]
	}
	final.Op = engine.OpDoFinal | engine.OpReset
	final.Data.Src = engine.Bytes(msg)
	return e.PerformContext(ctx, c, final)
}

// withSession opens the configured engine and runs fn with a context
// carrying the command's correlation ID.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session, p *Printer) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			s.logger.Warn("engine close failed", "error", cerr)
		}
	}()
	ctx, id := correlation.Ensure(cmd.Context())
	printVerbose("correlation id %s", id)
	return fn(ctx, s, NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()))
}
