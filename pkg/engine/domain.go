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

	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
)

// Domain is the origin of a context's caller. It decides how buffers are
// resolved and whether the context may be released.
type Domain uint8

const (
	// DomainKernel callers pass memory directly.
	DomainKernel Domain = iota
	// DomainIsolated callers pass offsets into a region shared with the engine.
	DomainIsolated
)

// String returns the domain name.
func (d Domain) String() string {
	switch d {
	case DomainKernel:
		return "kernel"
	case DomainIsolated:
		return "isolated"
	default:
		return "unknown"
	}
}

func (d Domain) user() keyslot.User {
	if d == DomainIsolated {
		return keyslot.UserIsolated
	}
	return keyslot.UserKernel
}

// Buffer is caller memory: direct bytes from a kernel caller, or an
// offset and length within an isolated caller's region.
type Buffer struct {
	data   []byte
	offset int
	length int
	ref    bool
}

// Bytes wraps memory owned by a kernel caller.
func Bytes(b []byte) Buffer {
	return Buffer{data: b}
}

// Ref names length bytes at offset in an isolated caller's region.
func Ref(offset, length int) Buffer {
	return Buffer{offset: offset, length: length, ref: true}
}

// IsZero reports whether the buffer names nothing.
func (b Buffer) IsZero() bool {
	if b.ref {
		return b.length == 0
	}
	return len(b.data) == 0
}

var errDomain = fmt.Errorf("%w: buffer kind does not match context domain", ErrInvalidArgument)

// resolve returns the memory a buffer names for context c. A zero buffer
// resolves to nil.
func (c *Context) resolve(b Buffer) ([]byte, error) {
	if b.IsZero() {
		return nil, nil
	}
	switch c.domain {
	case DomainKernel:
		if b.ref {
			return nil, errDomain
		}
		return b.data, nil
	case DomainIsolated:
		if !b.ref {
			return nil, errDomain
		}
		if b.offset < 0 || b.length < 0 || b.offset > len(c.region) || b.length > len(c.region)-b.offset {
			return nil, fmt.Errorf("%w: reference [%d,+%d) outside region of %d bytes",
				ErrInvalidArgument, b.offset, b.length, len(c.region))
		}
		return c.region[b.offset : b.offset+b.length : b.offset+b.length], nil
	default:
		return nil, ErrInvalidArgument
	}
}
