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
	"crypto/cipher"
	"fmt"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/cmac"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

const aesBlockSize = cmac.BlockSize

// cipherState runs AES in ECB, CBC or CTR mode. Chaining state carries
// across updates. ECB and CBC hold a partial block in carry until the
// next update completes it.
type cipherState struct {
	alg     types.Algorithm
	encrypt bool
	iv      []byte

	block  cipher.Block
	mode   cipher.BlockMode
	stream cipher.Stream

	carry [aesBlockSize]byte
	n     int
}

func newCipherState(cl *call) (*cipherState, error) {
	s := &cipherState{alg: cl.req.Algorithm, encrypt: cl.req.Mode == types.ModeEncrypt}

	var iv []byte
	if cl.req.Init != nil {
		args, ok := cl.req.Init.(CipherInit)
		if !ok {
			return nil, fmt.Errorf("%w: expected cipher init arguments, got %T", ErrInvalidArgument, cl.req.Init)
		}
		iv = args.IV
	}
	switch s.alg {
	case types.AlgorithmAESECB:
		if iv != nil {
			return nil, fmt.Errorf("%w: ECB takes no IV", ErrInvalidArgument)
		}
	default:
		if len(iv) != aesBlockSize {
			return nil, fmt.Errorf("%w: IV of %d bytes", ErrBadLength, len(iv))
		}
		s.iv = append([]byte(nil), iv...)
	}
	return s, nil
}

func (s *cipherState) class() types.Class { return types.ClassCipher }

func (s *cipherState) setKey(cl *call, key KeyArgs) error {
	c := cl.c
	if err := c.loadAESKey(key, keyslot.UsageCipher); err != nil {
		return err
	}
	block, err := cl.e.sw.Block(c.key.ref(), c.access(keyslot.UsageCipher))
	if err != nil {
		return err
	}
	s.block = block
	switch s.alg {
	case types.AlgorithmAESCBC:
		if s.encrypt {
			s.mode = cipher.NewCBCEncrypter(block, s.iv)
		} else {
			s.mode = cipher.NewCBCDecrypter(block, s.iv)
		}
	case types.AlgorithmAESCTR:
		s.stream = cipher.NewCTR(block, s.iv)
	}
	return nil
}

// prepare validates the buffers and returns the engine job. For ECB and
// CBC only whole blocks are processed; the remainder is carried to the
// next update and must be empty at DOFINAL.
func (s *cipherState) prepare(c *Context, data *DataArgs, final bool) (func() error, *int, error) {
	src, err := c.resolve(data.Src)
	if err != nil {
		return nil, nil, err
	}
	written := new(int)
	if s.stream != nil {
		dst, err := c.output(data.Dst, len(src))
		if err != nil {
			return nil, nil, err
		}
		return func() error {
			s.stream.XORKeyStream(dst[:len(src)], src)
			*written = len(src)
			return nil
		}, written, nil
	}

	total := s.n + len(src)
	whole := total - total%aesBlockSize
	if final && whole != total {
		return nil, nil, fmt.Errorf("%w: %d bytes is not a whole number of blocks", ErrBadLength, total)
	}
	dst, err := c.output(data.Dst, whole)
	if err != nil {
		return nil, nil, err
	}
	return func() error {
		in, out := src, dst[:whole]
		if s.n > 0 && whole > 0 {
			k := copy(s.carry[s.n:], in)
			in = in[k:]
			s.crypt(out[:aesBlockSize], s.carry[:])
			out = out[aesBlockSize:]
			clear(s.carry[:])
			s.n = 0
		}
		s.crypt(out, in[:len(out)])
		s.n += copy(s.carry[s.n:], in[len(out):])
		*written = whole
		return nil
	}, written, nil
}

func (s *cipherState) crypt(dst, src []byte) {
	switch {
	case s.mode != nil:
		s.mode.CryptBlocks(dst, src)
	default:
		for i := 0; i < len(src); i += aesBlockSize {
			if s.encrypt {
				s.block.Encrypt(dst[i:i+aesBlockSize], src[i:i+aesBlockSize])
			} else {
				s.block.Decrypt(dst[i:i+aesBlockSize], src[i:i+aesBlockSize])
			}
		}
	}
}

func (s *cipherState) run(cl *call, data *DataArgs, final bool) (int, error) {
	fn, written, err := s.prepare(cl.c, data, final)
	if err != nil {
		return 0, err
	}
	if err := cl.e.sw.Run(cl.ctx, hwengine.KindCipher, fn); err != nil {
		return 0, err
	}
	return *written, nil
}

func (s *cipherState) update(cl *call, data *DataArgs) (int, error) {
	return s.run(cl, data, false)
}

func (s *cipherState) doFinal(cl *call, data *DataArgs) (int, error) {
	return s.run(cl, data, true)
}

func (s *cipherState) start(cl *call, data *DataArgs, final bool) (*hwengine.Op, *int, error) {
	fn, written, err := s.prepare(cl.c, data, final)
	if err != nil {
		return nil, nil, err
	}
	op, err := cl.e.sw.Start(hwengine.KindCipher, fn)
	if err != nil {
		return nil, nil, err
	}
	return op, written, nil
}

func (s *cipherState) teardown(*Engine) {
	clear(s.iv)
	clear(s.carry[:])
	s.n = 0
	s.block, s.mode, s.stream = nil, nil, nil
}
