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

package types

import "errors"

var (
	// ErrInvalidArgument is returned when a request is malformed: a missing or
	// mistyped argument, a buffer reference outside the caller's region, or an
	// opcode combination that cannot be executed together.
	ErrInvalidArgument = errors.New("engine: invalid argument")

	// ErrBadState is returned when a lifecycle step is issued in a state that
	// does not allow it, e.g. SET_KEY before INIT or a second SET_KEY.
	ErrBadState = errors.New("engine: bad state")

	// ErrNotSupported is returned for well-formed requests naming an
	// unimplemented algorithm/mode pairing, a step the operation class does
	// not support, or an opcode set that consumes nothing.
	ErrNotSupported = errors.New("engine: not supported")

	// ErrNoMemory is returned when the memory provider cannot satisfy a
	// scratch or key buffer allocation.
	ErrNoMemory = errors.New("engine: out of memory")

	// ErrTooBig is returned when an input exceeds a fixed size limit.
	ErrTooBig = errors.New("engine: input too big")

	// ErrBadLength is returned when a size is structurally impossible for the
	// algorithm. It is raised before any data-dependent processing.
	ErrBadLength = errors.New("engine: bad length")

	// ErrSignatureInvalid is the only outcome reported for MAC and signature
	// content mismatches. It carries no detail about which check failed.
	ErrSignatureInvalid = errors.New("engine: signature invalid")

	// ErrTimedOut is returned when a hardware engine poll loop exceeds its bound.
	ErrTimedOut = errors.New("engine: timed out")

	// ErrFault is returned when redundant computations disagree, indicating an
	// internal consistency violation such as an injected fault.
	ErrFault = errors.New("engine: fault detected")
)
