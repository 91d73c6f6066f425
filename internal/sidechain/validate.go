// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/scledger/scwire"
)

const (
	// MaxEpochLength is the maximum withdrawal epoch length a sidechain may
	// be created with.
	MaxEpochLength = 4032

	// maxAtoms is the maximum value any single output or fee may carry.
	maxAtoms = 21e6 * dcrutil.AtomsPerCoin

	// DefaultProofCacheSize is the default number of proof verification
	// results remembered by a certificate validator.
	DefaultProofCacheSize = 10000
)

// ProofInputs are the public inputs a certificate proof is verified against.
type ProofInputs struct {
	Epoch                 int32
	Quality               int64
	EndEpochCumCommitment chainhash.Hash
	FtScFee               int64
	MbtrScFee             int64
	Constant              []byte
	BackwardTransfers     []*scwire.BackwardTransferOutput
}

// ProofInputsFromCert returns the public inputs of the provided certificate
// for a sidechain with the provided constant.
func ProofInputsFromCert(cert *scwire.MsgCert, constant []byte) *ProofInputs {
	return &ProofInputs{
		Epoch:                 cert.EpochNumber,
		Quality:               cert.Quality,
		EndEpochCumCommitment: cert.EndEpochCumCommitment,
		FtScFee:               cert.FtScFee,
		MbtrScFee:             cert.MbtrScFee,
		Constant:              constant,
		BackwardTransfers:     cert.BackwardTransfers,
	}
}

// ProofVerifier verifies certificate proofs.  Implementations must be safe
// for concurrent use since proofs of the certificates in a block are verified
// in parallel.
type ProofVerifier interface {
	VerifyProof(vk []byte, inputs *ProofInputs, proof []byte) bool
}

// CommitmentSource provides the cumulative commitment derived from the chain
// at the end of a sidechain epoch.
type CommitmentSource interface {
	EpochCommitment(sc *Sidechain, epoch int32) (chainhash.Hash, error)
}

// CertVerdict is the outcome of an accepted certificate.  BalanceDelta is the
// change to apply to the sidechain balance once the certificate confirms.
type CertVerdict struct {
	BalanceDelta int64
	BtTotal      int64
}

// checkAmount ensures an amount is within the allowed range.
func checkAmount(v int64, kind ErrorKind, field string) error {
	if v < 0 || v > maxAtoms {
		str := fmt.Sprintf("%s of %d is out of range", field, v)
		return ruleError(kind, str)
	}
	return nil
}

// CheckScTransactionSanity performs checks on a sidechain transaction that do
// not depend on chain state.
func CheckScTransactionSanity(tx *scwire.MsgScTx) error {
	if len(tx.ScCreations) == 0 && len(tx.FwdTransfers) == 0 {
		return ruleError(ErrBadScCreation, "transaction carries no sidechain "+
			"outputs")
	}
	for i, out := range tx.ScCreations {
		if out.Value <= 0 {
			str := fmt.Sprintf("creation output %d has non-positive value %d",
				i, out.Value)
			return ruleError(ErrBadScCreation, str)
		}
		if err := checkAmount(out.Value, ErrBadScCreation, "creation amount"); err != nil {
			return err
		}
		if out.WithdrawalEpochLength == 0 ||
			out.WithdrawalEpochLength > MaxEpochLength {

			str := fmt.Sprintf("creation output %d has invalid epoch length "+
				"%d", i, out.WithdrawalEpochLength)
			return ruleError(ErrBadScCreation, str)
		}
		if len(out.WCertVk) == 0 {
			str := fmt.Sprintf("creation output %d has no verification key", i)
			return ruleError(ErrBadScCreation, str)
		}
	}
	for i, out := range tx.FwdTransfers {
		if out.Value <= 0 {
			str := fmt.Sprintf("forward transfer %d has non-positive value %d",
				i, out.Value)
			return ruleError(ErrBadFwdTransfer, str)
		}
		if err := checkAmount(out.Value, ErrBadFwdTransfer, "forward transfer"); err != nil {
			return err
		}
	}
	if err := checkAmount(tx.TotalScValue(), ErrBadFwdTransfer, "total sidechain value"); err != nil {
		return err
	}
	return nil
}

// CheckCertificateSanity performs checks on a certificate that do not depend
// on chain state.
func CheckCertificateSanity(cert *scwire.MsgCert) error {
	if cert.EpochNumber < 0 {
		str := fmt.Sprintf("certificate epoch %d is negative", cert.EpochNumber)
		return ruleError(ErrBadCertificate, str)
	}
	if cert.Quality < 0 {
		str := fmt.Sprintf("certificate quality %d is negative", cert.Quality)
		return ruleError(ErrBadCertificate, str)
	}
	if err := checkAmount(cert.FtScFee, ErrBadCertificate, "forward transfer fee"); err != nil {
		return err
	}
	if err := checkAmount(cert.MbtrScFee, ErrBadCertificate, "mainchain request fee"); err != nil {
		return err
	}
	var total int64
	for i, bt := range cert.BackwardTransfers {
		if bt.Value <= 0 {
			str := fmt.Sprintf("backward transfer %d has non-positive value %d",
				i, bt.Value)
			return ruleError(ErrBadCertificate, str)
		}
		total += bt.Value
		if err := checkAmount(total, ErrBadCertificate, "backward transfer total"); err != nil {
			return err
		}
	}
	return nil
}

// CertValidator validates certificates against the state of their sidechain.
// Proof verification results are remembered by certificate hash.
type CertValidator struct {
	verifier ProofVerifier
	cache    *lru.Map[chainhash.Hash, bool]
}

// NewCertValidator returns a validator delegating proof verification to the
// provided verifier and remembering up to cacheSize verification results.
func NewCertValidator(verifier ProofVerifier, cacheSize uint32) *CertValidator {
	if cacheSize == 0 {
		cacheSize = DefaultProofCacheSize
	}
	return &CertValidator{
		verifier: verifier,
		cache:    lru.NewMap[chainhash.Hash, bool](cacheSize),
	}
}

// verifyProof returns whether the proof of the certificate verifies against
// the sidechain.  Results are cached by certificate hash which commits to
// every public input other than the constant and verification key, and those
// are fixed by the sidechain identifier the certificate also commits to.
func (v *CertValidator) verifyProof(cert *scwire.MsgCert, certHash *chainhash.Hash, sc *Sidechain) bool {
	if ok, found := v.cache.Get(*certHash); found {
		return ok
	}
	inputs := ProofInputsFromCert(cert, sc.Constant)
	ok := v.verifier.VerifyProof(sc.WCertVk, inputs, cert.Proof)
	v.cache.Put(*certHash, ok)
	return ok
}

// Validate runs the ordered certificate checks against sc, the state of the
// certificate's sidechain, for inclusion at height.  Pending is the best
// unconfirmed certificate for the same epoch, if any.
//
// The checks are, in order: the sidechain exists, the epoch is the next one
// expected and has ended, the cumulative commitment matches the chain, the
// proof verifies, the quality strictly improves on the pending certificate
// for the epoch and the balance covers the backward transfers and fees.
//
// A confirmed certificate is final, so epochs that already have one are
// rejected with ErrEpochMismatch.  Only disconnecting its block reopens the
// epoch.
func (v *CertValidator) Validate(cert *scwire.MsgCert, sc *Sidechain, height int64,
	commitments CommitmentSource, pending *CertRef) (*CertVerdict, error) {

	if err := CheckCertificateSanity(cert); err != nil {
		return nil, err
	}

	if sc == nil {
		return nil, unknownSidechainError(&cert.ScID)
	}

	next := sc.NextExpectedEpoch()
	if last := sc.LastCert(); last != nil && cert.EpochNumber <= last.Epoch {
		str := fmt.Sprintf("epoch %d of sidechain %v is already certified "+
			"by confirmed certificate %v", cert.EpochNumber, sc.ID, last.Hash)
		return nil, ruleError(ErrEpochMismatch, str)
	}
	if cert.EpochNumber != next {
		str := fmt.Sprintf("certificate targets epoch %d of sidechain %v, "+
			"expected epoch %d", cert.EpochNumber, sc.ID, next)
		return nil, ruleError(ErrEpochMismatch, str)
	}
	if end := sc.EpochEnd(next); end >= height {
		str := fmt.Sprintf("certificate for epoch %d of sidechain %v "+
			"cannot be included before height %d", next, sc.ID, end+1)
		return nil, ruleError(ErrEpochMismatch, str)
	}

	commitment, err := commitments.EpochCommitment(sc, cert.EpochNumber)
	if err != nil {
		return nil, err
	}
	if commitment != cert.EndEpochCumCommitment {
		str := fmt.Sprintf("certificate claims commitment %v for epoch %d, "+
			"chain has %v", cert.EndEpochCumCommitment, cert.EpochNumber,
			commitment)
		return nil, ruleError(ErrCommitmentMismatch, str)
	}

	certHash := cert.CertHash()
	if !v.verifyProof(cert, &certHash, sc) {
		str := fmt.Sprintf("proof of certificate %v does not verify", certHash)
		return nil, ruleError(ErrProofRejected, str)
	}

	if pending != nil && pending.Epoch == cert.EpochNumber &&
		cert.Quality <= pending.Quality {

		str := fmt.Sprintf("certificate quality %d does not improve on "+
			"pending quality %d for epoch %d", cert.Quality, pending.Quality,
			cert.EpochNumber)
		return nil, ruleError(ErrStaleQuality, str)
	}

	btTotal := cert.BackwardTransferTotal()
	if needed := btTotal + cert.FtScFee + cert.MbtrScFee; needed > sc.Balance {
		str := fmt.Sprintf("certificate needs %v, sidechain %v has %v",
			dcrutil.Amount(needed), sc.ID, dcrutil.Amount(sc.Balance))
		return nil, ruleError(ErrInsufficientFunds, str)
	}

	verdict := &CertVerdict{
		BalanceDelta: -btTotal,
		BtTotal:      btTotal,
	}
	return verdict, nil
}
