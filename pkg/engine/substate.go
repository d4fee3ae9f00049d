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
	"fmt"

	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// subState is the class specific part of a context. The dispatcher has
// already checked lifecycle state and capabilities before calling it.
type subState interface {
	class() types.Class
	setKey(cl *call, key KeyArgs) error
	update(cl *call, data *DataArgs) (int, error)
	doFinal(cl *call, data *DataArgs) (int, error)
	teardown(e *Engine)
}

// asyncState is implemented by classes with CapAsync. start returns the
// job and the location its written count lands in once it completes.
type asyncState interface {
	subState
	start(cl *call, data *DataArgs, final bool) (*hwengine.Op, *int, error)
}

// keyless provides the methods of classes without keys or updates.
type keyless struct{}

func (keyless) setKey(*call, KeyArgs) error {
	return ErrNotSupported
}

func (keyless) update(*call, *DataArgs) (int, error) {
	return 0, ErrNotSupported
}

func newState(cl *call, class types.Class) (subState, error) {
	switch class {
	case types.ClassCipher:
		return newCipherState(cl)
	case types.ClassDigest:
		return newDigestState(cl)
	case types.ClassMAC:
		return newMACState(cl)
	case types.ClassSignature:
		return newSignatureState(cl)
	case types.ClassDerive:
		return newDeriveState(cl)
	case types.ClassRandom:
		return &randomState{}, nil
	default:
		panic(fmt.Sprintf("engine: no handler for class %s", class))
	}
}

// output resolves Dst and checks it holds at least n bytes.
func (c *Context) output(b Buffer, n int) ([]byte, error) {
	dst, err := c.resolve(b)
	if err != nil {
		return nil, err
	}
	if len(dst) < n {
		return nil, fmt.Errorf("%w: output of %d bytes, need %d", ErrBadLength, len(dst), n)
	}
	return dst, nil
}
