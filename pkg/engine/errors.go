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

package engine

import (
	"errors"

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Error taxonomy. Every error returned by Perform matches one of these
// with errors.Is.
var (
	ErrInvalidArgument  = types.ErrInvalidArgument
	ErrBadState         = types.ErrBadState
	ErrNotSupported     = types.ErrNotSupported
	ErrNoMemory         = types.ErrNoMemory
	ErrTooBig           = types.ErrTooBig
	ErrBadLength        = types.ErrBadLength
	ErrSignatureInvalid = types.ErrSignatureInvalid
	ErrTimedOut         = types.ErrTimedOut
	ErrFault            = types.ErrFault
)

var taxonomy = []struct {
	err  error
	name string
}{
	{ErrSignatureInvalid, "signature_invalid"},
	{ErrFault, "fault"},
	{ErrTimedOut, "timed_out"},
	{ErrTooBig, "too_big"},
	{ErrBadLength, "bad_length"},
	{ErrNoMemory, "no_memory"},
	{ErrNotSupported, "not_supported"},
	{ErrBadState, "bad_state"},
	{ErrInvalidArgument, "invalid_argument"},
}

// errorType maps an error to its taxonomy name for metrics.
func errorType(err error) string {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.name
		}
	}
	return "other"
}
