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
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Capability is a class's set of supported optional steps.
type Capability uint8

const (
	CapSetKey Capability = 1 << iota
	CapUpdate
	CapAsync
)

// Has reports whether all bits of want are present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

type classEntry struct {
	algorithms []types.Algorithm
	modes      []types.Mode
	caps       Capability
}

var classTable = map[types.Class]classEntry{
	types.ClassCipher: {
		algorithms: []types.Algorithm{types.AlgorithmAESECB, types.AlgorithmAESCBC, types.AlgorithmAESCTR},
		modes:      []types.Mode{types.ModeEncrypt, types.ModeDecrypt},
		caps:       CapSetKey | CapUpdate | CapAsync,
	},
	types.ClassDigest: {
		algorithms: []types.Algorithm{
			types.AlgorithmSHA1, types.AlgorithmSHA224, types.AlgorithmSHA256,
			types.AlgorithmSHA384, types.AlgorithmSHA512, types.AlgorithmMD5,
		},
		modes: []types.Mode{types.ModeDigest},
		caps:  CapUpdate | CapAsync,
	},
	types.ClassMAC: {
		algorithms: []types.Algorithm{
			types.AlgorithmHMACSHA1, types.AlgorithmHMACSHA224, types.AlgorithmHMACSHA256,
			types.AlgorithmHMACSHA384, types.AlgorithmHMACSHA512, types.AlgorithmHMACMD5,
			types.AlgorithmCMACAES,
		},
		modes: []types.Mode{types.ModeMAC, types.ModeMACVerify},
		caps:  CapSetKey | CapUpdate,
	},
	types.ClassSignature: {
		algorithms: []types.Algorithm{
			types.AlgorithmRSAPSSSHA1, types.AlgorithmRSAPSSSHA224, types.AlgorithmRSAPSSSHA256,
			types.AlgorithmRSAPSSSHA384, types.AlgorithmRSAPSSSHA512,
			types.AlgorithmRSAPKCS1v15SHA1, types.AlgorithmRSAPKCS1v15SHA224, types.AlgorithmRSAPKCS1v15SHA256,
			types.AlgorithmRSAPKCS1v15SHA384, types.AlgorithmRSAPKCS1v15SHA512,
		},
		modes: []types.Mode{types.ModeVerify},
		caps:  CapSetKey,
	},
	types.ClassDerive: {
		algorithms: []types.Algorithm{types.AlgorithmECDH, types.AlgorithmKDFHash, types.AlgorithmKDFAES, types.AlgorithmKDFCMAC},
		modes:      []types.Mode{types.ModeDerive},
		caps:       CapSetKey,
	},
	types.ClassRandom: {
		algorithms: []types.Algorithm{types.AlgorithmRNG},
		modes:      []types.Mode{types.ModeRandom},
	},
}

type algMode struct {
	alg  types.Algorithm
	mode types.Mode
}

var classIndex = buildClassIndex()

func buildClassIndex() map[algMode]types.Class {
	idx := make(map[algMode]types.Class)
	for class, entry := range classTable {
		for _, a := range entry.algorithms {
			for _, m := range entry.modes {
				key := algMode{a, m}
				if prev, dup := idx[key]; dup {
					panic("engine: " + a.String() + "/" + m.String() + " in classes " + prev.String() + " and " + class.String())
				}
				idx[key] = class
			}
		}
	}
	return idx
}

// ClassOf returns the operation class serving an algorithm and mode.
func ClassOf(alg types.Algorithm, mode types.Mode) (types.Class, error) {
	class, ok := classIndex[algMode{alg, mode}]
	if !ok {
		return types.ClassNone, ErrNotSupported
	}
	return class, nil
}

// CapabilitiesOf returns the capability mask of a class.
func CapabilitiesOf(class types.Class) Capability {
	return classTable[class].caps
}
