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
	_ "crypto/md5"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"hash"

	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

type digestState struct {
	keyless
	h hash.Hash
}

func newDigestState(cl *call) (*digestState, error) {
	if cl.req.Init != nil {
		return nil, fmt.Errorf("%w: digests take no init arguments", ErrInvalidArgument)
	}
	h := cl.req.Algorithm.Hash()
	if !h.Available() {
		return nil, fmt.Errorf("engine: %s: %w", cl.req.Algorithm, ErrNotSupported)
	}
	return &digestState{h: h.New()}, nil
}

func (s *digestState) class() types.Class { return types.ClassDigest }

// prepare returns the engine job absorbing Src and, when final, writing
// the digest to Dst.
func (s *digestState) prepare(c *Context, data *DataArgs, final bool) (func() error, *int, error) {
	src, err := c.resolve(data.Src)
	if err != nil {
		return nil, nil, err
	}
	var dst []byte
	if final {
		if dst, err = c.output(data.Dst, s.h.Size()); err != nil {
			return nil, nil, err
		}
	}
	written := new(int)
	return func() error {
		s.h.Write(src)
		if final {
			*written = len(s.h.Sum(dst[:0]))
		}
		return nil
	}, written, nil
}

func (s *digestState) run(cl *call, data *DataArgs, final bool) (int, error) {
	fn, written, err := s.prepare(cl.c, data, final)
	if err != nil {
		return 0, err
	}
	if err := cl.e.sw.Run(cl.ctx, hwengine.KindDigest, fn); err != nil {
		return 0, err
	}
	return *written, nil
}

func (s *digestState) update(cl *call, data *DataArgs) (int, error) {
	return s.run(cl, data, false)
}

func (s *digestState) doFinal(cl *call, data *DataArgs) (int, error) {
	return s.run(cl, data, true)
}

func (s *digestState) start(cl *call, data *DataArgs, final bool) (*hwengine.Op, *int, error) {
	fn, written, err := s.prepare(cl.c, data, final)
	if err != nil {
		return nil, nil, err
	}
	op, err := cl.e.sw.Start(hwengine.KindDigest, fn)
	if err != nil {
		return nil, nil, err
	}
	return op, written, nil
}

func (s *digestState) teardown(*Engine) {
	s.h.Reset()
}
