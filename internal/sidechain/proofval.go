// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"context"
	"runtime"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/scledger/scwire"
)

// proofValidateItem holds a certificate whose proof is to be verified along
// with the sidechain it targets.
type proofValidateItem struct {
	cert     *scwire.MsgCert
	certHash chainhash.Hash
	sc       *Sidechain
}

// proofValidator provides a type which asynchronously verifies certificate
// proofs ahead of the serial validation of a block.  Outcomes are recorded in
// the proof cache of the certificate validator so the serial pass only looks
// them up.
type proofValidator struct {
	validateChan chan *proofValidateItem
	resultChan   chan bool
	validator    *CertValidator
}

// sendResult sends the result of a proof verification on the internal result
// channel while respecting the context.
func (v *proofValidator) sendResult(ctx context.Context, result bool) {
	select {
	case v.resultChan <- result:
	case <-ctx.Done():
	}
}

// validateHandler consumes items to verify from the internal validate channel
// and returns the result on the internal result channel.  It must be run as a
// goroutine.
func (v *proofValidator) validateHandler(ctx context.Context) {
out:
	for {
		select {
		case <-ctx.Done():
			break out

		case item := <-v.validateChan:
			ok := v.validator.verifyProof(item.cert, &item.certHash, item.sc)
			v.sendResult(ctx, ok)
		}
	}
}

// Validate verifies the proofs of all passed items using multiple goroutines
// and returns the number of proofs that failed to verify.
func (v *proofValidator) Validate(ctx context.Context, items []*proofValidateItem) int {
	if len(items) == 0 {
		return 0
	}

	// Limit the number of goroutines based on the number of processor
	// cores.
	maxGoRoutines := runtime.NumCPU() * 3
	if maxGoRoutines <= 0 {
		maxGoRoutines = 1
	}
	if maxGoRoutines > len(items) {
		maxGoRoutines = len(items)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for i := 0; i < maxGoRoutines; i++ {
		go v.validateHandler(ctx)
	}

	numItems := len(items)
	currentItem := 0
	processedItems := 0
	var failed int
	for processedItems < numItems {
		// Only send items while there are still items that need to be
		// processed.  The select statement will never select a nil
		// channel.
		var validateChan chan *proofValidateItem
		var item *proofValidateItem
		if currentItem < numItems {
			validateChan = v.validateChan
			item = items[currentItem]
		}

		select {
		case validateChan <- item:
			currentItem++

		case ok := <-v.resultChan:
			processedItems++
			if !ok {
				failed++
			}

		case <-ctx.Done():
			return failed
		}
	}
	return failed
}

// newProofValidator returns a new instance of proofValidator recording its
// outcomes in the cache of the provided certificate validator.
func newProofValidator(validator *CertValidator) *proofValidator {
	return &proofValidator{
		validateChan: make(chan *proofValidateItem),
		resultChan:   make(chan bool),
		validator:    validator,
	}
}

// prefetchBlockProofs verifies the proofs of every certificate in the block
// that targets a registered sidechain.  Certificates targeting unknown
// sidechains are left to the serial validation pass which rejects them.
func (v *CertValidator) prefetchBlockProofs(ctx context.Context, block *scwire.MsgBlock,
	lookup func(id *chainhash.Hash) *Sidechain) int {

	items := make([]*proofValidateItem, 0, len(block.Certificates))
	for _, cert := range block.Certificates {
		sc := lookup(&cert.ScID)
		if sc == nil {
			continue
		}
		items = append(items, &proofValidateItem{
			cert:     cert,
			certHash: cert.CertHash(),
			sc:       sc,
		})
	}
	return newProofValidator(v).Validate(ctx, items)
}
