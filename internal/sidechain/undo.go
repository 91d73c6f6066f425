// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/scledger/scwire"
)

// maturedUndo records the entries of a sidechain that matured in a block.
type maturedUndo struct {
	ScID    chainhash.Hash
	Height  int64
	Entries []ImmatureEntry
}

// scheduledUndo records a forward transfer scheduled in a block.
type scheduledUndo struct {
	ScID  chainhash.Hash
	Entry ImmatureEntry
}

// certUndo records a certificate confirmed in a block.
type certUndo struct {
	ScID         chainhash.Hash
	Cert         CertRef
	BalanceDelta int64
}

// blockUndo holds everything needed to disconnect a block from the ledger.
// Modifications are recorded in the order they were applied and are undone
// in reverse.
type blockUndo struct {
	Matured   []maturedUndo
	Created   []chainhash.Hash
	Scheduled []scheduledUndo
	Certs     []certUndo
}

// applyMaturity credits every entry maturing at height to the balance of its
// sidechain.
func applyMaturity(view *registryView, height int64, undo *blockUndo) {
	for _, id := range view.maturingAt(height) {
		id := id
		sc := view.fetchForUpdate(&id)
		if sc == nil {
			continue
		}
		entries := sc.Immature.MaturedAt(height)
		if len(entries) == 0 {
			continue
		}
		for _, entry := range entries {
			sc.Balance += entry.Value
		}
		undo.Matured = append(undo.Matured, maturedUndo{
			ScID:    id,
			Height:  height,
			Entries: entries,
		})
	}
}

// applyTransaction registers the sidechains created by the transaction and
// schedules its forward transfers.
func applyTransaction(view *registryView, tx *scwire.MsgScTx, height, maturityDelay int64,
	blockHash *chainhash.Hash, undo *blockUndo) error {

	if err := CheckScTransactionSanity(tx); err != nil {
		return err
	}

	txHash := tx.TxHash()
	maturityHeight := height + maturityDelay
	for i, out := range tx.ScCreations {
		id := scwire.SidechainID(&txHash, uint32(i))
		if view.lookup(&id) != nil {
			str := fmt.Sprintf("sidechain %v created by %v:%d already exists",
				id, txHash, i)
			return ruleError(ErrDuplicateSidechain, str)
		}
		sc := &Sidechain{
			ID:             id,
			CreationTxHash: txHash,
			CreationHeight: height,
			CreationBlock:  *blockHash,
			EpochLength:    out.WithdrawalEpochLength,
			WCertVk:        append([]byte(nil), out.WCertVk...),
			CustomData:     append([]byte(nil), out.CustomData...),
			Constant:       append([]byte(nil), out.Constant...),
			CreationAmount: out.Value,
			Immature:       NewMaturitySchedule(),
			TotalInflow:    out.Value,
		}
		sc.Immature.Insert(ImmatureEntry{
			Value:          out.Value,
			MaturityHeight: maturityHeight,
			Source:         txHash,
			Kind:           EntryCreation,
		})
		view.add(sc)
		undo.Created = append(undo.Created, id)
	}

	for _, out := range tx.FwdTransfers {
		sc := view.fetchForUpdate(&out.ScID)
		if sc == nil {
			return unknownSidechainError(&out.ScID)
		}
		entry := ImmatureEntry{
			Value:          out.Value,
			MaturityHeight: maturityHeight,
			Source:         txHash,
			Kind:           EntryFwdTransfer,
		}
		sc.Immature.Insert(entry)
		sc.TotalInflow += out.Value
		undo.Scheduled = append(undo.Scheduled, scheduledUndo{
			ScID:  out.ScID,
			Entry: entry,
		})
	}
	return nil
}

// applyCertificate validates the certificate for inclusion at height and
// records it as the best certificate of its epoch.
func applyCertificate(view *registryView, validator *CertValidator, commitments CommitmentSource,
	cert *scwire.MsgCert, height int64, undo *blockUndo) error {

	verdict, err := validator.Validate(cert, view.lookup(&cert.ScID), height,
		commitments, nil)
	if err != nil {
		return err
	}

	sc := view.fetchForUpdate(&cert.ScID)
	ref := CertRef{
		Hash:    cert.CertHash(),
		Epoch:   cert.EpochNumber,
		Quality: cert.Quality,
		BtTotal: verdict.BtTotal,
		Height:  height,
	}
	sc.Certs = append(sc.Certs, ref)
	sc.TotalWithdrawn += verdict.BtTotal
	sc.Balance += verdict.BalanceDelta
	undo.Certs = append(undo.Certs, certUndo{
		ScID:         cert.ScID,
		Cert:         ref,
		BalanceDelta: verdict.BalanceDelta,
	})
	return nil
}

// undoBlock reverses every modification recorded in the undo data of the
// block at height.  Any inconsistency between the undo data and the registry
// is an AssertError since it means the ledger is corrupted.
func undoBlock(view *registryView, height int64, undo *blockUndo) error {
	for i := len(undo.Certs) - 1; i >= 0; i-- {
		cu := &undo.Certs[i]
		sc := view.fetchForUpdate(&cu.ScID)
		if sc == nil {
			return AssertError(fmt.Sprintf("undoing certificate %v of "+
				"missing sidechain %v", cu.Cert.Hash, cu.ScID))
		}
		last := sc.LastCert()
		if last == nil || last.Hash != cu.Cert.Hash {
			return AssertError(fmt.Sprintf("undoing certificate %v which is "+
				"not the last one of sidechain %v", cu.Cert.Hash, cu.ScID))
		}
		sc.Certs = sc.Certs[:len(sc.Certs)-1]
		sc.TotalWithdrawn -= cu.Cert.BtTotal
		sc.Balance -= cu.BalanceDelta
	}

	for i := len(undo.Scheduled) - 1; i >= 0; i-- {
		su := &undo.Scheduled[i]
		sc := view.fetchForUpdate(&su.ScID)
		if sc == nil {
			return AssertError(fmt.Sprintf("undoing forward transfer %v to "+
				"missing sidechain %v", su.Entry.Source, su.ScID))
		}
		err := sc.Immature.Remove(su.Entry.MaturityHeight, &su.Entry.Source,
			su.Entry.Value)
		if err != nil {
			return err
		}
		sc.TotalInflow -= su.Entry.Value
	}

	for i := len(undo.Created) - 1; i >= 0; i-- {
		id := undo.Created[i]
		sc := view.lookup(&id)
		if sc == nil || sc.CreationHeight != height {
			return AssertError(fmt.Sprintf("undoing creation of sidechain "+
				"%v not created at height %d", id, height))
		}
		view.remove(&id)
	}

	for i := len(undo.Matured) - 1; i >= 0; i-- {
		mu := &undo.Matured[i]
		sc := view.fetchForUpdate(&mu.ScID)
		if sc == nil {
			return AssertError(fmt.Sprintf("reversing maturation of "+
				"missing sidechain %v", mu.ScID))
		}
		if err := sc.Immature.ReverseMaturation(mu.Height, mu.Entries); err != nil {
			return err
		}
		for _, entry := range mu.Entries {
			sc.Balance -= entry.Value
		}
	}
	return nil
}
