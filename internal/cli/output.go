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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// field is one named value of a command result
type field struct {
	name  string
	value interface{}
}

// PrintHex prints bytes under name as lowercase hex
func (p *Printer) PrintHex(name string, data []byte) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			name: hex.EncodeToString(data),
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, hex.EncodeToString(data))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintFields prints an ordered set of result values. []byte values are
// printed as hex.
func (p *Printer) PrintFields(fields ...field) error {
	switch p.format {
	case OutputFormatJSON:
		out := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			out[f.name] = printable(f.value)
		}
		return p.printJSON(out)
	case OutputFormatText:
		width := 0
		for _, f := range fields {
			width = max(width, len(f.name))
		}
		for _, f := range fields {
			fmt.Fprintf(p.writer, "%-*s  %v\n", width+1, f.name+":", printable(f.value))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSelftest prints the outcome of every known-answer test
func (p *Printer) PrintSelftest(runID string, results []selftestResult) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]interface{}, len(results))
		for i, r := range results {
			entry := map[string]interface{}{
				"name":   r.name,
				"passed": r.err == nil,
			}
			if r.err != nil {
				entry["error"] = r.err.Error()
			}
			list[i] = entry
		}
		return p.printJSON(map[string]interface{}{
			"run":     runID,
			"results": list,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Self-test run %s\n", runID)
		fmt.Fprintf(p.writer, "%-28s %-6s %s\n", "TEST", "RESULT", "DETAIL")
		fmt.Fprintln(p.writer, strings.Repeat("-", 60))
		for _, r := range results {
			status, detail := "PASS", ""
			if r.err != nil {
				status, detail = "FAIL", r.err.Error()
			}
			fmt.Fprintf(p.writer, "%-28s %-6s %s\n", r.name, status, detail)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

func printable(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return hex.EncodeToString(b)
	}
	return v
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
