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

	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// randomState fills Dst from the random engine at DOFINAL.
type randomState struct {
	keyless
}

func (*randomState) class() types.Class { return types.ClassRandom }

func (*randomState) doFinal(cl *call, data *DataArgs) (int, error) {
	dst, err := cl.c.resolve(data.Dst)
	if err != nil {
		return 0, err
	}
	if len(dst) == 0 {
		return 0, fmt.Errorf("%w: no output buffer", ErrInvalidArgument)
	}
	if err := cl.e.sw.Random(cl.ctx, dst); err != nil {
		return 0, err
	}
	return len(dst), nil
}

func (*randomState) teardown(*Engine) {}
