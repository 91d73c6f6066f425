// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package query

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/decred/base58"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/chaincfg/v3"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
	"github.com/decred/scledger/internal/indexers"
	"github.com/decred/scledger/internal/mempool"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/scwire"
)

// Ledger provides the confirmed sidechain state to the query server.
type Ledger interface {
	BestSnapshot() *sidechain.BestState
	FetchSidechain(id *chainhash.Hash) (*sidechain.Sidechain, error)
	Sidechains() []*sidechain.Sidechain
	CommitmentHashForEpoch(id *chainhash.Hash, epoch int32) (chainhash.Hash, error)
}

// Pool provides the unconfirmed objects to the query server.
type Pool interface {
	FetchObject(hash *chainhash.Hash) (*mempool.ObjectDesc, bool)
	SidechainInfo(id *chainhash.Hash) *mempool.PendingSidechain
	RecentlyMined(hash *chainhash.Hash) bool
	ObjectDescs() []*mempool.ObjectDesc
}

// ObjectIndex provides confirmed objects by hash.  Entry returns nil when the
// object is not indexed.
type ObjectIndex interface {
	Entry(hash *chainhash.Hash) (*indexers.Entry, error)
}

// Config is a descriptor containing the query server configuration.
type Config struct {
	// Ledger is the confirmed sidechain state.
	Ledger Ledger

	// Pool is the pool of unconfirmed objects.
	Pool Pool

	// CoinIndex houses confirmed objects that own main chain coins.
	CoinIndex ObjectIndex

	// TxIndex houses every confirmed object.  It is nil when the full
	// history index is disabled.
	TxIndex ObjectIndex

	// ChainParams identifies the network used to render addresses.
	ChainParams *chaincfg.Params

	// ViewLock, when set, is held for the duration of every query that
	// reads the ledger or the pool.  The owner of both holds the matching
	// write lock while a block is applied to them, so queries never
	// observe a block that only one of them reflects.
	ViewLock sync.Locker
}

// nopLocker is used when no view lock is configured.
type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

// Server answers read only queries about sidechains and their objects.  It
// never mutates the ledger or the pool.
type Server struct {
	cfg  Config
	view sync.Locker
}

// New returns a new query server.
func New(cfg *Config) *Server {
	s := &Server{cfg: *cfg, view: cfg.ViewLock}
	if s.view == nil {
		s.view = nopLocker{}
	}
	return s
}

// amount converts atoms to coins.
func amount(atoms int64) float64 {
	return dcrutil.Amount(atoms).ToCoin()
}

// certificateResult converts a certificate reference to its result form.
func certificateResult(ref *sidechain.CertRef) *CertificateResult {
	if ref == nil {
		return nil
	}
	return &CertificateResult{
		Hash:    ref.Hash.String(),
		Epoch:   ref.Epoch,
		Quality: ref.Quality,
		Amount:  amount(ref.BtTotal),
		Height:  ref.Height,
	}
}

// pendingAmount returns the value pooled transactions send to the sidechain.
func pendingAmount(pending *mempool.PendingSidechain) int64 {
	if pending == nil {
		return 0
	}
	var total int64
	if pending.Creation != nil {
		total += pending.Creation.Value
	}
	for _, fwd := range pending.FwdTransfers {
		total += fwd.Value
	}
	return total
}

// confirmedScInfo returns the info of a registered sidechain.
func (s *Server) confirmedScInfo(sc *sidechain.Sidechain, tipHeight int64) *ScInfoResult {
	result := &ScInfoResult{
		ScID:                  sc.ID.String(),
		CreatingTxHash:        sc.CreationTxHash.String(),
		CreatedAtBlockHeight:  sc.CreationHeight,
		WithdrawalEpochLength: sc.EpochLength,
		Balance:               amount(sc.Balance),
		CreationAmount:        amount(sc.CreationAmount),
		TotalWithdrawn:        amount(sc.TotalWithdrawn),
		LastCertificate:       certificateResult(sc.LastCert()),
		ImmatureAmounts:       make([]ImmatureAmountResult, 0, sc.Immature.Len()),
	}

	// The tip never precedes the creation height of a registered sidechain.
	if epoch, err := sc.EpochAt(tipHeight); err == nil {
		result.Epoch = epoch
		result.EndEpochHeight = sc.EpochEnd(epoch)
	}

	buckets := sc.Immature.Snapshot()
	for _, height := range sc.Immature.Heights() {
		result.ImmatureAmounts = append(result.ImmatureAmounts,
			ImmatureAmountResult{
				MaturityHeight: height,
				Amount:         amount(buckets[height]),
			})
	}

	pending := s.cfg.Pool.SidechainInfo(&sc.ID)
	if pending != nil {
		result.UnconfAmount = amount(pendingAmount(pending))
		result.UnconfCertificate = certificateResult(pending.Certificate)
	}
	return result
}

// unconfirmedScInfo returns the info of a sidechain only created by a pooled
// transaction.
func unconfirmedScInfo(id *chainhash.Hash, pending *mempool.PendingSidechain) *ScInfoResult {
	return &ScInfoResult{
		ScID:                  id.String(),
		UnconfCreatingTxHash:  pending.CreationTxHash.String(),
		WithdrawalEpochLength: pending.Creation.WithdrawalEpochLength,
		CreationAmount:        amount(pending.Creation.Value),
		UnconfAmount:          amount(pendingAmount(pending)),
		ImmatureAmounts:       []ImmatureAmountResult{},
	}
}

// GetScInfo returns the confirmed and pending state of the sidechain.  A
// sidechain only created by a pooled transaction reports its unconfirmed
// creating transaction.  An error with sidechain.ErrUnknownSidechain is
// returned when neither the ledger nor the pool know the sidechain.
//
// This function is safe for concurrent access.
func (s *Server) GetScInfo(id *chainhash.Hash) (*ScInfoResult, error) {
	s.view.Lock()
	defer s.view.Unlock()

	sc, err := s.cfg.Ledger.FetchSidechain(id)
	switch {
	case err == nil:
		best := s.cfg.Ledger.BestSnapshot()
		return s.confirmedScInfo(sc, best.Height), nil

	case !errors.Is(err, sidechain.ErrUnknownSidechain):
		return nil, err
	}

	pending := s.cfg.Pool.SidechainInfo(id)
	if pending == nil || pending.CreationTxHash == nil {
		str := fmt.Sprintf("sidechain %v does not exist", id)
		return nil, queryError(sidechain.ErrUnknownSidechain, str)
	}
	return unconfirmedScInfo(id, pending), nil
}

// ListScInfo returns the info of every registered sidechain ordered by
// creation height followed, when requested, by the sidechains only created
// by pooled transactions in arrival order.
//
// This function is safe for concurrent access.
func (s *Server) ListScInfo(includeUnconfirmed bool) []*ScInfoResult {
	s.view.Lock()
	defer s.view.Unlock()

	best := s.cfg.Ledger.BestSnapshot()
	scs := s.cfg.Ledger.Sidechains()
	results := make([]*ScInfoResult, 0, len(scs))
	for _, sc := range scs {
		results = append(results, s.confirmedScInfo(sc, best.Height))
	}
	if !includeUnconfirmed {
		return results
	}

	for _, desc := range s.cfg.Pool.ObjectDescs() {
		if desc.Object.Kind != scwire.ObjTransaction {
			continue
		}
		for _, id := range desc.Object.Tx.ScCreationIDs() {
			pending := s.cfg.Pool.SidechainInfo(&id)
			if pending == nil || pending.CreationTxHash == nil {
				continue
			}
			results = append(results, unconfirmedScInfo(&id, pending))
		}
	}
	return results
}

// indexes returns the enabled indexes in lookup order.
func (s *Server) indexes() []ObjectIndex {
	idxs := make([]ObjectIndex, 0, 2)
	if s.cfg.CoinIndex != nil {
		idxs = append(idxs, s.cfg.CoinIndex)
	}
	if s.cfg.TxIndex != nil {
		idxs = append(idxs, s.cfg.TxIndex)
	}
	return idxs
}

// fetchObject returns the raw bytes, decoded form and status of the object
// with the provided hash.  The pool is consulted first, then the coin index
// and finally the full history index when it is enabled.
func (s *Server) fetchObject(hash *chainhash.Hash) ([]byte, *scwire.Object, *Status, error) {
	if desc, ok := s.cfg.Pool.FetchObject(hash); ok {
		raw, err := desc.Object.Bytes()
		if err != nil {
			return nil, nil, nil, err
		}
		return raw, desc.Object, &Status{Kind: StatusUnconfirmed}, nil
	}

	for _, idx := range s.indexes() {
		entry, err := idx.Entry(hash)
		if err != nil {
			return nil, nil, nil, err
		}
		if entry == nil {
			continue
		}
		obj, err := entry.Object()
		if err != nil {
			str := fmt.Sprintf("unable to decode indexed object %v: %v",
				hash, err)
			return nil, nil, nil, queryError(ErrDecode, str)
		}
		best := s.cfg.Ledger.BestSnapshot()
		blockHash := entry.BlockHash
		status := &Status{
			Kind:          StatusConfirmed,
			Height:        entry.Height,
			BlockHash:     &blockHash,
			Confirmations: best.Height - entry.Height + 1,
		}
		return entry.Raw, obj, status, nil
	}

	log.Tracef("Object %v is neither pooled nor indexed", hash)
	str := fmt.Sprintf("no information available about object %v", hash)
	if s.cfg.TxIndex == nil && s.cfg.Pool.RecentlyMined(hash) {
		str += " (it was recently mined, use --txindex to query confirmed " +
			"objects without main chain outputs)"
	}
	return nil, nil, nil, queryError(ErrNotFound, str)
}

// ObjectStatus returns the status of the object with the provided hash.
// Unknown objects report StatusNotFound.
//
// This function is safe for concurrent access.
func (s *Server) ObjectStatus(hash *chainhash.Hash) (*Status, error) {
	s.view.Lock()
	defer s.view.Unlock()

	_, _, status, err := s.fetchObject(hash)
	if errors.Is(err, ErrNotFound) {
		return &Status{Kind: StatusNotFound}, nil
	}
	return status, err
}

// rawObject implements GetRawTransaction and GetRawCertificate.
func (s *Server) rawObject(hash *chainhash.Hash, verbose, certOnly bool) (*RawObjectResult, error) {
	s.view.Lock()
	defer s.view.Unlock()

	raw, obj, status, err := s.fetchObject(hash)
	if err != nil {
		return nil, err
	}
	if certOnly && obj.Kind != scwire.ObjCertificate {
		str := fmt.Sprintf("object %v is not a certificate", hash)
		return nil, queryError(ErrInvalidParameter, str)
	}

	result := &RawObjectResult{
		Hex:    hex.EncodeToString(raw),
		Status: *status,
	}
	if verbose {
		result.Decoded = s.decodeObject(obj)
	}
	return result, nil
}

// GetRawTransaction returns the serialized form of the transaction or
// certificate with the provided hash along with its decoded form when
// verbose is set.  The serialized bytes are identical regardless of whether
// the object is pooled or confirmed.  ErrNotFound is returned when the object
// is neither pooled nor indexed.
//
// This function is safe for concurrent access.
func (s *Server) GetRawTransaction(hash *chainhash.Hash, verbose bool) (*RawObjectResult, error) {
	return s.rawObject(hash, verbose, false)
}

// GetRawCertificate is the certificate specific form of GetRawTransaction.
// ErrInvalidParameter is returned when the hash identifies a transaction.
//
// This function is safe for concurrent access.
func (s *Server) GetRawCertificate(hash *chainhash.Hash, verbose bool) (*RawObjectResult, error) {
	return s.rawObject(hash, verbose, true)
}

// decodeHex decodes a hex encoded serialized object.
func decodeHex(hexStr string) (*scwire.Object, error) {
	// Allow an odd number of hex characters.
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		str := fmt.Sprintf("argument must be hexadecimal string: %v", err)
		return nil, queryError(ErrDecode, str)
	}
	obj, err := scwire.DecodeObject(raw)
	if err != nil {
		str := fmt.Sprintf("object decode failed: %v", err)
		return nil, queryError(ErrDecode, str)
	}
	return obj, nil
}

// DecodeRawTransaction decodes a serialized transaction or certificate.
// Certificates decode to the same content as with DecodeRawCertificate.
func (s *Server) DecodeRawTransaction(hexStr string) (*DecodedObject, error) {
	obj, err := decodeHex(hexStr)
	if err != nil {
		return nil, err
	}
	return s.decodeObject(obj), nil
}

// DecodeRawCertificate decodes a serialized certificate.
// ErrInvalidParameter is returned for serialized transactions.
func (s *Server) DecodeRawCertificate(hexStr string) (*DecodedObject, error) {
	obj, err := decodeHex(hexStr)
	if err != nil {
		return nil, err
	}
	if obj.Kind != scwire.ObjCertificate {
		return nil, queryError(ErrInvalidParameter, "object is not a "+
			"certificate")
	}
	return s.decodeObject(obj), nil
}

// decodeTransparent fills in the fields of the transparent part.
func decodeTransparent(result *DecodedObject, mtx *wire.MsgTx) {
	result.Vin = make([]VinResult, 0)
	result.Vout = make([]VoutResult, 0)
	if mtx == nil {
		return
	}
	result.LockTime = mtx.LockTime
	result.Expiry = mtx.Expiry
	for _, txIn := range mtx.TxIn {
		prevOut := &txIn.PreviousOutPoint
		result.Vin = append(result.Vin, VinResult{
			Txid:     prevOut.Hash.String(),
			Vout:     prevOut.Index,
			Tree:     prevOut.Tree,
			Sequence: txIn.Sequence,
			AmountIn: amount(txIn.ValueIn),
		})
	}
	for i, txOut := range mtx.TxOut {
		// Ignore the error here since an error means the script couldn't
		// parse and there is no additional information about it anyways.
		disbuf, _ := txscript.DisasmString(txOut.PkScript)
		result.Vout = append(result.Vout, VoutResult{
			N:       uint32(i),
			Value:   amount(txOut.Value),
			Version: txOut.Version,
			Asm:     disbuf,
			Hex:     hex.EncodeToString(txOut.PkScript),
		})
	}
}

// decodeObject returns the decoded form of the object.
func (s *Server) decodeObject(obj *scwire.Object) *DecodedObject {
	var result DecodedObject
	if obj.Kind == scwire.ObjCertificate {
		cert := obj.Cert
		result.CertID = cert.CertHash().String()
		result.Version = cert.Version
		decodeTransparent(&result, cert.Transparent)
		result.Cert = &CertResult{
			ScID:                  cert.ScID.String(),
			EpochNumber:           cert.EpochNumber,
			Quality:               cert.Quality,
			EndEpochCumCommitment: cert.EndEpochCumCommitment.String(),
			Proof:                 hex.EncodeToString(cert.Proof),
			FtScFee:               amount(cert.FtScFee),
			MbtrScFee:             amount(cert.MbtrScFee),
			TotalAmount:           amount(cert.BackwardTransferTotal()),
		}
		addrID := s.cfg.ChainParams.PubKeyHashAddrID
		for i, bt := range cert.BackwardTransfers {
			result.BackwardTransfers = append(result.BackwardTransfers,
				BackwardTransferResult{
					N:          uint32(i),
					PubKeyHash: hex.EncodeToString(bt.PubKeyHash[:]),
					Address:    base58.CheckEncode(bt.PubKeyHash[:], addrID),
					Value:      amount(bt.Value),
				})
		}
		return &result
	}

	tx := obj.Tx
	txHash := tx.TxHash()
	result.Txid = txHash.String()
	result.Version = tx.Version
	decodeTransparent(&result, tx.Transparent)
	for i, out := range tx.ScCreations {
		scID := scwire.SidechainID(&txHash, uint32(i))
		result.ScCreations = append(result.ScCreations, ScCreationResult{
			N:                     uint32(i),
			ScID:                  scID.String(),
			WithdrawalEpochLength: out.WithdrawalEpochLength,
			Value:                 amount(out.Value),
			Address:               hex.EncodeToString(out.Address[:]),
			WCertVk:               hex.EncodeToString(out.WCertVk),
			CustomData:            hex.EncodeToString(out.CustomData),
			Constant:              hex.EncodeToString(out.Constant),
		})
	}
	for i, out := range tx.FwdTransfers {
		result.FwdTransfers = append(result.FwdTransfers, FwdTransferResult{
			N:       uint32(i),
			ScID:    out.ScID.String(),
			Value:   amount(out.Value),
			Address: hex.EncodeToString(out.Address[:]),
		})
	}
	return &result
}

// GetEpochData returns the epoch a certificate included in the next block may
// target, which is the next expected epoch once it has ended.  Certified
// epochs are final.  An error with sidechain.ErrOutOfRange is returned while
// the next expected epoch has not ended.
//
// This function is safe for concurrent access.
func (s *Server) GetEpochData(id *chainhash.Hash) (*EpochDataResult, error) {
	s.view.Lock()
	defer s.view.Unlock()

	sc, err := s.cfg.Ledger.FetchSidechain(id)
	if err != nil {
		return nil, err
	}
	best := s.cfg.Ledger.BestSnapshot()

	next := sc.NextExpectedEpoch()
	end := sc.EpochEnd(next)
	if end > best.Height {
		str := fmt.Sprintf("epoch %d of sidechain %v ends at height %d",
			next, id, end)
		return nil, queryError(sidechain.ErrOutOfRange, str)
	}

	commitment, err := s.cfg.Ledger.CommitmentHashForEpoch(id, next)
	if err != nil {
		return nil, err
	}
	return &EpochDataResult{
		ScID:                  id.String(),
		Epoch:                 next,
		EndEpochHeight:        end,
		EndEpochCumCommitment: commitment.String(),
	}, nil
}
