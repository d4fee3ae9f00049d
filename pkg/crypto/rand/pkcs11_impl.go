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

//go:build pkcs11

package rand

import (
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"
)

const pkcs11Compiled = true

type pkcs11Source struct {
	mu       sync.Mutex
	ctx      *pkcs11.Ctx
	session  pkcs11.SessionHandle
	loggedIn bool
}

func newPKCS11Source(config *PKCS11Config) (Source, error) {
	if config == nil || config.Module == "" {
		return nil, fmt.Errorf("%w: PKCS#11 module path is required", ErrUnavailable)
	}
	ctx := pkcs11.New(config.Module)
	if ctx == nil {
		return nil, fmt.Errorf("%w: failed to load PKCS#11 module %s", ErrUnavailable, config.Module)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("%w: initialize PKCS#11: %v", ErrUnavailable, err)
	}
	// Some tokens only expose slots after C_GetSlotList.
	if _, err := ctx.GetSlotList(true); err != nil {
		ctx.Finalize()
		ctx.Destroy()
		return nil, fmt.Errorf("%w: PKCS#11 slot list: %v", ErrUnavailable, err)
	}
	session, err := ctx.OpenSession(config.SlotID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		ctx.Finalize()
		ctx.Destroy()
		return nil, fmt.Errorf("%w: PKCS#11 session: %v", ErrUnavailable, err)
	}
	src := &pkcs11Source{ctx: ctx, session: session}
	if config.PIN != "" {
		if err := ctx.Login(session, pkcs11.CKU_USER, config.PIN); err != nil {
			_ = src.Close()
			return nil, fmt.Errorf("%w: PKCS#11 login: %v", ErrUnavailable, err)
		}
		src.loggedIn = true
	}
	return src, nil
}

func (p *pkcs11Source) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return 0, ErrClosed
	}
	data, err := p.ctx.GenerateRandom(p.session, len(b))
	if err != nil {
		return 0, fmt.Errorf("rand: C_GenerateRandom: %w", err)
	}
	return copy(b, data), nil
}

func (p *pkcs11Source) Name() Mode {
	return ModePKCS11
}

func (p *pkcs11Source) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	if p.loggedIn {
		_ = p.ctx.Logout(p.session)
	}
	_ = p.ctx.CloseSession(p.session)
	_ = p.ctx.Finalize()
	p.ctx.Destroy()
	p.ctx = nil
	return nil
}
