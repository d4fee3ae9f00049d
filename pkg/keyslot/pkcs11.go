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

package keyslot

import (
	"crypto"
	"crypto/cipher"
	"errors"
	"fmt"
	"hash"
	"sync"

	"github.com/ThalesGroup/crypto11"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
	"github.com/miekg/pkcs11"
)

var hmacMechanisms = map[crypto.Hash]int{
	crypto.SHA1:   pkcs11.CKM_SHA_1_HMAC,
	crypto.SHA224: pkcs11.CKM_SHA224_HMAC,
	crypto.SHA256: pkcs11.CKM_SHA256_HMAC,
	crypto.SHA384: pkcs11.CKM_SHA384_HMAC,
	crypto.SHA512: pkcs11.CKM_SHA512_HMAC,
}

// PKCS11Config configures a token-backed keyslot bank.
type PKCS11Config struct {
	Module     string
	TokenLabel string
	SlotID     uint
	PIN        string
	Slots      int
	// LabelPrefix names the session objects; slot n is "<prefix><n>".
	LabelPrefix string
}

// PKCS11Bank stores slot values as session secret keys on a PKCS#11
// token. Objects are created with miekg/pkcs11 and used through crypto11.
type PKCS11Bank struct {
	mu       sync.Mutex
	config   *PKCS11Config
	ctx      *pkcs11.Ctx
	session  pkcs11.SessionHandle
	c11      *crypto11.Context
	objects  []pkcs11.ObjectHandle
	manifest []Manifest
	pending  [][]byte
	complete []bool
}

var _ Bank = (*PKCS11Bank)(nil)

// NewPKCS11Bank opens the token and returns an empty bank.
func NewPKCS11Bank(config *PKCS11Config) (*PKCS11Bank, error) {
	if config == nil || config.Module == "" {
		return nil, fmt.Errorf("keyslot: PKCS#11 module path is required: %w", types.ErrInvalidArgument)
	}
	slots := config.Slots
	if slots <= 0 {
		slots = DefaultSlots
	}
	if config.LabelPrefix == "" {
		config.LabelPrefix = "keyengine-slot-"
	}

	c11, err := crypto11.Configure(&crypto11.Config{
		Path:       config.Module,
		TokenLabel: config.TokenLabel,
		Pin:        config.PIN,
	})
	if err != nil {
		return nil, fmt.Errorf("keyslot: configure crypto11: %w", err)
	}

	ctx := pkcs11.New(config.Module)
	if ctx == nil {
		_ = c11.Close()
		return nil, fmt.Errorf("keyslot: failed to load PKCS#11 module: %s", config.Module)
	}
	if err := ctx.Initialize(); err != nil {
		var p11err pkcs11.Error
		if !errors.As(err, &p11err) || p11err != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			_ = c11.Close()
			ctx.Destroy()
			return nil, fmt.Errorf("keyslot: initialize PKCS#11: %w", err)
		}
	}
	session, err := ctx.OpenSession(config.SlotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		_ = c11.Close()
		ctx.Destroy()
		return nil, fmt.Errorf("keyslot: open PKCS#11 session: %w", err)
	}

	return &PKCS11Bank{
		config:   config,
		ctx:      ctx,
		session:  session,
		c11:      c11,
		objects:  make([]pkcs11.ObjectHandle, slots),
		manifest: make([]Manifest, slots),
		pending:  make([][]byte, slots),
		complete: make([]bool, slots),
	}, nil
}

func (b *PKCS11Bank) label(index int) []byte {
	return []byte(fmt.Sprintf("%s%d", b.config.LabelPrefix, index))
}

// Slots implements Bank.
func (b *PKCS11Bank) Slots() int {
	return len(b.objects)
}

func (b *PKCS11Bank) check(index int) error {
	if index < 0 || index >= len(b.objects) {
		return ErrInvalidSlot
	}
	return nil
}

// clearLocked destroys the slot object and any buffered half.
func (b *PKCS11Bank) clearLocked(index int) error {
	clear(b.pending[index])
	b.pending[index] = nil
	b.complete[index] = false
	b.manifest[index] = Manifest{}
	if b.objects[index] == 0 {
		return nil
	}
	err := b.ctx.DestroyObject(b.session, b.objects[index])
	b.objects[index] = 0
	if err != nil {
		return fmt.Errorf("keyslot: destroy object: %w", err)
	}
	return nil
}

func (b *PKCS11Bank) importLocked(index int, key []byte, m Manifest) error {
	keyType := pkcs11.CKK_AES
	if m.Purpose == PurposeMAC {
		keyType = pkcs11.CKK_GENERIC_SECRET
	}
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, keyType),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, b.label(index)),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, key),
	}
	handle, err := b.ctx.CreateObject(b.session, template)
	if err != nil {
		return fmt.Errorf("keyslot: create object: %w", err)
	}
	b.objects[index] = handle
	b.manifest[index] = m
	b.complete[index] = true
	return nil
}

// Load implements Bank.
func (b *PKCS11Bank) Load(index int, key []byte, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(key)*8 != m.KeyBits {
		return ErrInvalidKeySize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(index); err != nil {
		return err
	}
	if err := b.clearLocked(index); err != nil {
		return err
	}
	return b.importLocked(index, key, m)
}

// LoadHalf implements Bank. Tokens cannot assemble a key in place, so
// the lower half of a larger key is buffered until the upper half arrives.
func (b *PKCS11Bank) LoadHalf(index int, half Half, data []byte, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if len(data) != HalfSize {
		return ErrInvalidKeySize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(index); err != nil {
		return err
	}

	switch half {
	case HalfLower:
		if err := b.clearLocked(index); err != nil {
			return err
		}
		if m.KeyBits == KeyBits128 {
			return b.importLocked(index, data, m)
		}
		b.pending[index] = append(make([]byte, 0, MaxKeySize), data...)
		b.manifest[index] = m
		return nil
	case HalfUpper:
		if b.pending[index] == nil || b.manifest[index] != m {
			return ErrHalfOrder
		}
		full := append(b.pending[index], data...)
		defer clear(full)
		b.pending[index] = nil
		return b.importLocked(index, full[:m.KeyBits/8], m)
	default:
		return types.ErrInvalidArgument
	}
}

// Clear implements Bank.
func (b *PKCS11Bank) Clear(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(index); err != nil {
		return err
	}
	return b.clearLocked(index)
}

// Resident implements Bank.
func (b *PKCS11Bank) Resident(index int) (Manifest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.check(index) != nil || !b.complete[index] {
		return Manifest{}, false
	}
	return b.manifest[index], true
}

func (b *PKCS11Bank) find(index int, access Access) (*crypto11.SecretKey, error) {
	b.mu.Lock()
	if err := b.check(index); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if !b.complete[index] {
		b.mu.Unlock()
		return nil, ErrEmpty
	}
	m := b.manifest[index]
	b.mu.Unlock()

	if !m.Purpose.Allows(access.Usage) || !m.User.Allows(access.User) {
		return nil, ErrAccessDenied
	}
	key, err := b.c11.FindKey(nil, b.label(index))
	if err != nil {
		return nil, fmt.Errorf("keyslot: find key: %w", err)
	}
	if key == nil {
		return nil, ErrEmpty
	}
	return key, nil
}

// Block implements Bank. The returned *crypto11.SecretKey performs every
// block operation on the token.
func (b *PKCS11Bank) Block(index int, access Access) (cipher.Block, error) {
	return b.find(index, access)
}

// NewHMAC implements Bank.
func (b *PKCS11Bank) NewHMAC(index int, h crypto.Hash, access Access) (hash.Hash, error) {
	mech, ok := hmacMechanisms[h]
	if !ok {
		return nil, types.ErrNotSupported
	}
	key, err := b.find(index, access)
	if err != nil {
		return nil, err
	}
	return key.NewHMAC(mech, 0)
}

// Close destroys all slot objects and closes the token sessions.
func (b *PKCS11Bank) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for i := range b.objects {
		if err := b.clearLocked(i); err != nil {
			errs = append(errs, err)
		}
	}
	if b.ctx != nil {
		_ = b.ctx.CloseSession(b.session)
		b.ctx.Destroy()
		b.ctx = nil
	}
	if b.c11 != nil {
		errs = append(errs, b.c11.Close())
		b.c11 = nil
	}
	return errors.Join(errs...)
}

// PKCS11Available reports whether the PKCS#11 bank is compiled in.
func PKCS11Available() bool {
	return true
}
