// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// CertRef describes a confirmed certificate that is the best one for its
// epoch.
type CertRef struct {
	Hash    chainhash.Hash
	Epoch   int32
	Quality int64
	BtTotal int64
	Height  int64
}

// Sidechain is the registration record of a sidechain together with its
// confirmed balance, the schedule of its immature value and the best
// confirmed certificate of every certified epoch.
type Sidechain struct {
	ID             chainhash.Hash
	CreationTxHash chainhash.Hash
	CreationHeight int64
	CreationBlock  chainhash.Hash
	EpochLength    uint32
	WCertVk        []byte
	CustomData     []byte
	Constant       []byte
	CreationAmount int64

	// Balance is the confirmed balance available to backward transfers.
	Balance int64

	// Immature holds value that has been received but not matured yet.
	Immature *MaturitySchedule

	// Certs holds the best confirmed certificate of every certified epoch
	// ordered by epoch.
	Certs []CertRef

	// TotalInflow is the sum of the creation amount and every confirmed
	// forward transfer.  TotalWithdrawn is the sum of the backward
	// transfers of the certificates in Certs.
	TotalInflow    int64
	TotalWithdrawn int64
}

// LastCert returns the best certificate of the most recently certified epoch
// or nil when no certificate has been confirmed.
func (sc *Sidechain) LastCert() *CertRef {
	if len(sc.Certs) == 0 {
		return nil
	}
	return &sc.Certs[len(sc.Certs)-1]
}

// NextExpectedEpoch returns the epoch the next new certificate must target.
func (sc *Sidechain) NextExpectedEpoch() int32 {
	if last := sc.LastCert(); last != nil {
		return last.Epoch + 1
	}
	return 0
}

// EpochAt returns the epoch the sidechain is in at height.
func (sc *Sidechain) EpochAt(height int64) (int32, error) {
	return EpochNumberAt(sc.CreationHeight, sc.EpochLength, height)
}

// EpochEnd returns the last height of the provided epoch.
func (sc *Sidechain) EpochEnd(epoch int32) int64 {
	return EpochEndHeight(sc.CreationHeight, sc.EpochLength, epoch)
}

// checkBalance ensures the confirmed balance plus all immature value equals
// the inflows minus the confirmed backward transfers.
func (sc *Sidechain) checkBalance() error {
	if sc.Balance < 0 {
		return AssertError(fmt.Sprintf("sidechain %v has negative balance %d",
			sc.ID, sc.Balance))
	}
	held := sc.Balance + sc.Immature.Total()
	if want := sc.TotalInflow - sc.TotalWithdrawn; held != want {
		return AssertError(fmt.Sprintf("sidechain %v holds %d, expected %d",
			sc.ID, held, want))
	}
	return nil
}

// Clone returns a deep copy of the record.
func (sc *Sidechain) Clone() *Sidechain {
	c := *sc
	c.WCertVk = append([]byte(nil), sc.WCertVk...)
	c.CustomData = append([]byte(nil), sc.CustomData...)
	c.Constant = append([]byte(nil), sc.Constant...)
	c.Immature = sc.Immature.clone()
	c.Certs = append([]CertRef(nil), sc.Certs...)
	return &c
}
