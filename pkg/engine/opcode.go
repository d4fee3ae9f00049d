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

import "strings"

// Op is a set of lifecycle steps requested in one Perform call.
type Op uint32

const (
	OpInit Op = 1 << iota
	OpSetKey
	OpUpdate
	OpDoFinal
	OpReset
	OpRelease
	OpAsyncUpdateStart
	OpAsyncDoFinalStart
	OpAsyncFinish
	OpAsyncCheck

	// OpOneShot expands to OpInit|OpSetKey|OpDoFinal|OpReset. OpRelease
	// may be added alongside it.
	OpOneShot
)

const (
	opAsync     = OpAsyncUpdateStart | OpAsyncDoFinalStart | OpAsyncFinish | OpAsyncCheck
	opKnown     = OpInit | OpSetKey | OpUpdate | OpDoFinal | OpReset | OpRelease | opAsync
	opOneShotTo = OpInit | OpSetKey | OpDoFinal | OpReset
)

// stepOrder is the fixed execution order of the steps.
var stepOrder = []Op{
	OpInit,
	OpSetKey,
	OpAsyncUpdateStart,
	OpAsyncDoFinalStart,
	OpAsyncFinish,
	OpAsyncCheck,
	OpUpdate,
	OpDoFinal,
	OpReset,
	OpRelease,
}

var opNames = map[Op]string{
	OpInit:              "init",
	OpSetKey:            "set_key",
	OpUpdate:            "update",
	OpDoFinal:           "dofinal",
	OpReset:             "reset",
	OpRelease:           "release",
	OpAsyncUpdateStart:  "async_update_start",
	OpAsyncDoFinalStart: "async_dofinal_start",
	OpAsyncFinish:       "async_finish",
	OpAsyncCheck:        "async_check",
	OpOneShot:           "oneshot",
}

// String returns the step names joined with '|'.
func (o Op) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	for bit := Op(1); bit != 0 && bit <= o; bit <<= 1 {
		if o&bit == 0 {
			continue
		}
		if name, ok := opNames[bit]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, "unknown")
		}
	}
	return strings.Join(parts, "|")
}

// expand replaces OpOneShot with the steps it stands for.
func (o Op) expand() Op {
	if o&OpOneShot == 0 {
		return o
	}
	return o&^OpOneShot | opOneShotTo
}
