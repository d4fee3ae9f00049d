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
	"crypto/rsa"

	"github.com/jeremyhahn/go-keyengine/pkg/crypto/rsaverify"
	"github.com/jeremyhahn/go-keyengine/pkg/hwengine"
	"github.com/jeremyhahn/go-keyengine/pkg/keyslot"
	"github.com/jeremyhahn/go-keyengine/pkg/types"
)

// Request is one Perform call. Algorithm, Mode and Init are read only
// by the INIT step.
type Request struct {
	Op        Op
	Algorithm types.Algorithm
	Mode      types.Mode
	Init      InitArgs
	Key       KeyArgs
	Data      DataArgs
}

// Result reports the outcome of a Perform call.
type Result struct {
	// Written is the number of bytes written to Dst.
	Written int
	// Async is the status reported by OpAsyncCheck.
	Async hwengine.Status
	// Steps is the number of steps executed.
	Steps int
}

// InitArgs carries algorithm-family parameters for INIT.
type InitArgs interface {
	initArgs()
}

// CipherInit configures AES-CBC and AES-CTR.
type CipherInit struct {
	IV []byte
}

// SlotTarget names a keyslot receiving engine output.
type SlotTarget struct {
	Index    int
	Manifest keyslot.Manifest
}

// MACInit configures a MAC context.
type MACInit struct {
	// Dest writes a CMAC tag into one half of a keyslot instead of Dst.
	Dest *SlotTarget
	Half keyslot.Half
}

// ECDHInit binds the curve of an ECDH context.
type ECDHInit struct {
	Curve types.EllipticCurve
}

// KDFInit configures the hash, AES and CMAC key derivations. The derived
// key always goes to Target.
type KDFInit struct {
	Target SlotTarget

	// Label and Context feed the SP 800-108 encoding when AutoEncode is
	// set, and always for the CMAC derivation.
	Label      []byte
	Context    []byte
	AutoEncode bool

	// IV selects AES-CTR for the AES derivation; nil selects AES-ECB.
	IV []byte
}

// SignatureInit configures RSA verification.
type SignatureInit struct {
	Salt rsaverify.SaltPolicy
}

func (CipherInit) initArgs()    {}
func (MACInit) initArgs()       {}
func (ECDHInit) initArgs()      {}
func (KDFInit) initArgs()       {}
func (SignatureInit) initArgs() {}

// KeyArgs carries key material for SET_KEY.
type KeyArgs interface {
	keyArgs()
}

// SymmetricKey is an AES or HMAC key. UseExistingSlot and WriteToSlot
// are mutually exclusive.
type SymmetricKey struct {
	Value []byte

	// Slot is used with UseExistingSlot or WriteToSlot.
	Slot            int
	UseExistingSlot bool
	WriteToSlot     bool

	// LeaveResident keeps a slot written by WriteToSlot loaded after RESET.
	LeaveResident bool

	// Purpose is recorded in the manifest of a slot written by WriteToSlot.
	Purpose keyslot.Purpose
}

// ECKey is an ECDH key. Private is the scalar; Public is the encoded
// point and is derived from Private when empty.
type ECKey struct {
	Private []byte
	Public  []byte
}

// RSAPublicKey is a verification key.
type RSAPublicKey struct {
	Key *rsa.PublicKey
}

func (SymmetricKey) keyArgs() {}
func (ECKey) keyArgs()        {}
func (RSAPublicKey) keyArgs() {}

// DataArgs carries the buffers of UPDATE and DOFINAL.
type DataArgs struct {
	Src Buffer
	Dst Buffer

	// MAC is the expected tag in ModeMACVerify.
	MAC Buffer

	// Digest and Signature are the inputs of RSA verification.
	Digest    Buffer
	Signature Buffer
}
