// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scwire

import (
	"bytes"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// ObjectKind identifies whether a sidechain object is a transaction or a
// certificate.
type ObjectKind uint8

const (
	// ObjTransaction identifies a sidechain transaction.
	ObjTransaction ObjectKind = iota

	// ObjCertificate identifies a withdrawal certificate.
	ObjCertificate
)

// String returns the kind as a human-readable name.
func (k ObjectKind) String() string {
	switch k {
	case ObjTransaction:
		return "transaction"
	case ObjCertificate:
		return "certificate"
	}
	return fmt.Sprintf("Unknown ObjectKind (%d)", uint8(k))
}

// Object is either a sidechain transaction or a certificate.  Exactly one of
// Tx and Cert is set according to Kind.
type Object struct {
	Kind ObjectKind
	Tx   *MsgScTx
	Cert *MsgCert
}

// TxObject wraps a sidechain transaction.
func TxObject(tx *MsgScTx) *Object {
	return &Object{Kind: ObjTransaction, Tx: tx}
}

// CertObject wraps a certificate.
func CertObject(cert *MsgCert) *Object {
	return &Object{Kind: ObjCertificate, Cert: cert}
}

// Hash returns the identifier of the wrapped object.
func (o *Object) Hash() chainhash.Hash {
	if o.Kind == ObjCertificate {
		return o.Cert.CertHash()
	}
	return o.Tx.TxHash()
}

// Bytes returns the canonical serialization of the wrapped object.
func (o *Object) Bytes() ([]byte, error) {
	if o.Kind == ObjCertificate {
		return o.Cert.Bytes()
	}
	return o.Tx.Bytes()
}

// HasTransparentOutputs returns whether the object creates any main chain
// outputs: regular outputs of its transparent part or, for certificates,
// backward transfers.
func (o *Object) HasTransparentOutputs() bool {
	if o.Kind == ObjCertificate {
		return len(o.Cert.BackwardTransfers) > 0 ||
			(o.Cert.Transparent != nil && len(o.Cert.Transparent.TxOut) > 0)
	}
	return o.Tx.Transparent != nil && len(o.Tx.Transparent.TxOut) > 0
}

// PeekVersion returns the leading version field of a serialized object.
func PeekVersion(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, messageError("PeekVersion", ErrUnknownVersion,
			"object too short to hold a version")
	}
	return int32(byteOrder.Uint32(b)), nil
}

// DecodeObject decodes a serialized sidechain transaction or certificate
// choosing the kind from its leading version field.  It is an error for b to
// hold more bytes than the object consumes.
func DecodeObject(b []byte) (*Object, error) {
	const op = "DecodeObject"

	version, err := PeekVersion(b)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(b)
	var obj *Object
	switch {
	case version == CertVersion:
		var cert MsgCert
		if err := cert.Deserialize(r); err != nil {
			return nil, err
		}
		obj = CertObject(&cert)

	case version > 0:
		var tx MsgScTx
		if err := tx.Deserialize(r); err != nil {
			return nil, err
		}
		obj = TxObject(&tx)

	default:
		str := fmt.Sprintf("unknown object version %d", version)
		return nil, messageError(op, ErrUnknownVersion, str)
	}

	if r.Len() != 0 {
		str := fmt.Sprintf("%d trailing bytes after %s", r.Len(), obj.Kind)
		return nil, messageError(op, ErrTrailingBytes, str)
	}
	return obj, nil
}
