// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/scledger/internal/sidechain"
	"github.com/decred/scledger/scwire"
)

const (
	// DefaultMaxObjects is the default maximum number of objects the pool
	// holds.
	DefaultMaxObjects = 50000

	// DefaultRecentlyMinedFilterSize is the default number of recently mined
	// object hashes remembered by the pool.
	DefaultRecentlyMinedFilterSize = 20000

	// recentlyMinedFPRate is the false positive rate of the recently mined
	// filter.
	recentlyMinedFPRate = 0.000001
)

// ChainView provides the view of the ledger the pool validates objects
// against.
//
// All functions MUST be safe for concurrent access.
type ChainView interface {
	// BestSnapshot returns information about the current ledger tip.
	BestSnapshot() *sidechain.BestState

	// SidechainExists returns whether the sidechain is registered.
	SidechainExists(id *chainhash.Hash) bool

	// CheckCertificate validates the certificate for inclusion in the next
	// block given the best pending certificate for its epoch.
	CheckCertificate(cert *scwire.MsgCert, pending *sidechain.CertRef) (*sidechain.CertVerdict, error)
}

// Policy houses the policy (configuration parameters) which is used to
// control the pool.
type Policy struct {
	// MaxObjects is the maximum number of objects the pool holds.
	MaxObjects int

	// RecentlyMinedFilterSize is the number of recently mined object hashes
	// remembered in order to reject their resubmission.
	RecentlyMinedFilterSize uint32
}

// Config is a descriptor containing the pool configuration.
type Config struct {
	// Policy defines the various pool configuration options related to
	// policy.
	Policy Policy

	// Chain is the ledger the pool validates objects against.
	Chain ChainView

	// OnAccept is invoked, when set, after an object has been added to the
	// pool.
	OnAccept func(desc *ObjectDesc)

	// OnEvict is invoked, when set, after an object has been removed from
	// the pool because it is no longer valid.
	OnEvict func(desc *ObjectDesc, reason error)
}

// ObjectDesc is a descriptor containing an object in the pool along with
// additional metadata.
type ObjectDesc struct {
	// Object is the pooled transaction or certificate.
	Object *scwire.Object

	// Hash is the hash of the object.
	Hash chainhash.Hash

	// Added is the time the object was added to the pool.
	Added time.Time

	// Height is the ledger height when the object was added to the pool.
	Height int64

	// BtTotal is the sum of the backward transfers of a certificate.
	BtTotal int64

	// seq orders objects by arrival.
	seq uint64
}

// PendingFwd is a pooled forward transfer.
type PendingFwd struct {
	TxHash chainhash.Hash
	Value  int64
}

// PendingSidechain describes the unconfirmed state of a sidechain in the pool.
type PendingSidechain struct {
	// CreationTxHash is the hash of the pooled transaction creating the
	// sidechain or nil when its creation is not pending.
	CreationTxHash *chainhash.Hash

	// Creation is the pending creation output.
	Creation *scwire.ScCreationOutput

	// FwdTransfers are the pooled forward transfers to the sidechain.
	FwdTransfers []PendingFwd

	// Certificate is the pending certificate for the sidechain, if any.
	Certificate *sidechain.CertRef
}

// Pool is used as a source of sidechain transactions and certificates that
// need to be mined into blocks.  It is safe for concurrent access.
type Pool struct {
	// The following variables must only be used atomically.
	lastUpdated atomic.Int64

	mtx     sync.RWMutex
	cfg     Config
	pool    map[chainhash.Hash]*ObjectDesc
	nextSeq uint64

	// creations maps the ids of sidechains created by pooled transactions
	// to the hash of the creating transaction.
	creations map[chainhash.Hash]chainhash.Hash

	// fwds maps sidechain ids to the pooled transactions forwarding value to
	// them.
	fwds map[chainhash.Hash]map[chainhash.Hash]struct{}

	// certs maps sidechain ids to their pending certificate.
	certs map[chainhash.Hash]chainhash.Hash

	// recentlyMined houses the hashes of objects in recently connected
	// blocks.
	recentlyMined *apbf.Filter
}

// New returns a new pool for validating and storing sidechain objects until
// they are mined into a block.
func New(cfg *Config) *Pool {
	if cfg.Policy.MaxObjects == 0 {
		cfg.Policy.MaxObjects = DefaultMaxObjects
	}
	if cfg.Policy.RecentlyMinedFilterSize == 0 {
		cfg.Policy.RecentlyMinedFilterSize = DefaultRecentlyMinedFilterSize
	}
	return &Pool{
		cfg:       *cfg,
		pool:      make(map[chainhash.Hash]*ObjectDesc),
		creations: make(map[chainhash.Hash]chainhash.Hash),
		fwds:      make(map[chainhash.Hash]map[chainhash.Hash]struct{}),
		certs:     make(map[chainhash.Hash]chainhash.Hash),
		recentlyMined: apbf.NewFilter(cfg.Policy.RecentlyMinedFilterSize,
			recentlyMinedFPRate),
	}
}

// addObject adds the passed object to the pool.  It should not be called
// directly as it doesn't perform any validation.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *Pool) addObject(obj *scwire.Object, hash *chainhash.Hash) *ObjectDesc {
	desc := &ObjectDesc{
		Object: obj,
		Hash:   *hash,
		Added:  time.Now(),
		Height: mp.cfg.Chain.BestSnapshot().Height,
		seq:    mp.nextSeq,
	}
	mp.nextSeq++
	mp.pool[*hash] = desc

	switch obj.Kind {
	case scwire.ObjTransaction:
		for _, id := range obj.Tx.ScCreationIDs() {
			mp.creations[id] = *hash
		}
		for _, fwd := range obj.Tx.FwdTransfers {
			txs := mp.fwds[fwd.ScID]
			if txs == nil {
				txs = make(map[chainhash.Hash]struct{})
				mp.fwds[fwd.ScID] = txs
			}
			txs[*hash] = struct{}{}
		}

	case scwire.ObjCertificate:
		desc.BtTotal = obj.Cert.BackwardTransferTotal()
		mp.certs[obj.Cert.ScID] = *hash
	}

	mp.lastUpdated.Store(time.Now().Unix())
	return desc
}

// removeObject removes the object from the pool and its indexes.  It returns
// the removed descriptor or nil when the object is not in the pool.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *Pool) removeObject(hash *chainhash.Hash) *ObjectDesc {
	desc, ok := mp.pool[*hash]
	if !ok {
		return nil
	}
	log.Tracef("Removing %v %v", desc.Object.Kind, hash)
	delete(mp.pool, *hash)

	switch obj := desc.Object; obj.Kind {
	case scwire.ObjTransaction:
		for _, id := range obj.Tx.ScCreationIDs() {
			delete(mp.creations, id)
		}
		for _, fwd := range obj.Tx.FwdTransfers {
			if txs := mp.fwds[fwd.ScID]; txs != nil {
				delete(txs, *hash)
				if len(txs) == 0 {
					delete(mp.fwds, fwd.ScID)
				}
			}
		}

	case scwire.ObjCertificate:
		if mp.certs[obj.Cert.ScID] == *hash {
			delete(mp.certs, obj.Cert.ScID)
		}
	}

	mp.lastUpdated.Store(time.Now().Unix())
	return desc
}

// removeTransaction is the internal function which implements the public
// RemoveTransaction.  See the comment for RemoveTransaction for more details.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *Pool) removeTransaction(txHash *chainhash.Hash, removeRedeemers bool) []*ObjectDesc {
	desc := mp.removeObject(txHash)
	if desc == nil || desc.Object.Kind != scwire.ObjTransaction {
		return nil
	}
	removed := []*ObjectDesc{desc}
	if !removeRedeemers {
		return removed
	}

	// Remove any objects which rely on the sidechains the transaction
	// creates.
	for _, id := range desc.Object.Tx.ScCreationIDs() {
		for hash := range mp.fwds[id] {
			hash := hash
			removed = append(removed, mp.removeTransaction(&hash, true)...)
		}
		if certHash, ok := mp.certs[id]; ok {
			if certDesc := mp.removeObject(&certHash); certDesc != nil {
				removed = append(removed, certDesc)
			}
		}
	}
	return removed
}

// RemoveTransaction removes the passed transaction from the pool.  When the
// removeRedeemers flag is set, any objects that depend on the sidechains the
// removed transaction creates will also be removed recursively from the pool,
// as they would otherwise become invalid.
//
// This function is safe for concurrent access.
func (mp *Pool) RemoveTransaction(tx *scwire.MsgScTx, removeRedeemers bool) {
	txHash := tx.TxHash()
	mp.mtx.Lock()
	mp.removeTransaction(&txHash, removeRedeemers)
	mp.mtx.Unlock()
}

// RemoveCertificate removes the passed certificate from the pool.
//
// This function is safe for concurrent access.
func (mp *Pool) RemoveCertificate(cert *scwire.MsgCert) {
	certHash := cert.CertHash()
	mp.mtx.Lock()
	mp.removeObject(&certHash)
	mp.mtx.Unlock()
}

// evict removes the object from the pool, along with its redeemers, and
// reports every removed object to the eviction callback.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *Pool) evict(hash *chainhash.Hash, reason error) {
	var removed []*ObjectDesc
	if desc, ok := mp.pool[*hash]; ok && desc.Object.Kind == scwire.ObjCertificate {
		removed = append(removed, mp.removeObject(hash))
	} else {
		removed = mp.removeTransaction(hash, true)
	}
	for _, desc := range removed {
		log.Debugf("Evicted %v %v: %v", desc.Object.Kind, desc.Hash, reason)
		if mp.cfg.OnEvict != nil {
			mp.cfg.OnEvict(desc, reason)
		}
	}
}

// checkTransaction performs the context dependent checks of a sidechain
// transaction against the ledger and the pool.
//
// This function MUST be called with the pool lock held (for reads).
func (mp *Pool) checkTransaction(tx *scwire.MsgScTx, txHash *chainhash.Hash) error {
	if err := sidechain.CheckScTransactionSanity(tx); err != nil {
		return chainRuleError(err)
	}

	created := make(map[chainhash.Hash]struct{}, len(tx.ScCreations))
	for _, id := range tx.ScCreationIDs() {
		if mp.cfg.Chain.SidechainExists(&id) {
			str := fmt.Sprintf("transaction %v creates sidechain %v which "+
				"is already registered", txHash, id)
			return ruleError(ErrSidechainExists, str)
		}
		if creator, ok := mp.creations[id]; ok && creator != *txHash {
			str := fmt.Sprintf("transaction %v creates sidechain %v which "+
				"is already created by pooled transaction %v", txHash, id,
				creator)
			return ruleError(ErrSidechainExists, str)
		}
		created[id] = struct{}{}
	}

	for i, fwd := range tx.FwdTransfers {
		if _, ok := created[fwd.ScID]; ok {
			continue
		}
		if _, ok := mp.creations[fwd.ScID]; ok {
			continue
		}
		if !mp.cfg.Chain.SidechainExists(&fwd.ScID) {
			str := fmt.Sprintf("forward transfer %d of transaction %v "+
				"targets unknown sidechain %v", i, txHash, fwd.ScID)
			return ruleError(ErrUnknownSidechain, str)
		}
	}
	return nil
}

// checkPoolLimit ensures the pool has room for one more object.
//
// This function MUST be called with the pool lock held (for reads).
func (mp *Pool) checkPoolLimit() error {
	if len(mp.pool) >= mp.cfg.Policy.MaxObjects {
		str := fmt.Sprintf("pool already holds the maximum of %d objects",
			mp.cfg.Policy.MaxObjects)
		return ruleError(ErrPoolFull, str)
	}
	return nil
}

// maybeAcceptTransaction is the internal function which implements the public
// MaybeAcceptTransaction.  Objects of disconnected blocks are accepted again
// without consulting the recently mined filter.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *Pool) maybeAcceptTransaction(tx *scwire.MsgScTx, isNew bool) (*ObjectDesc, error) {
	txHash := tx.TxHash()
	if _, ok := mp.pool[txHash]; ok {
		str := fmt.Sprintf("already have transaction %v", txHash)
		return nil, ruleError(ErrDuplicate, str)
	}
	if isNew && mp.recentlyMined.Contains(txHash[:]) {
		str := fmt.Sprintf("transaction %v was recently mined", txHash)
		return nil, ruleError(ErrDuplicate, str)
	}
	if err := mp.checkPoolLimit(); err != nil {
		return nil, err
	}
	if err := mp.checkTransaction(tx, &txHash); err != nil {
		return nil, err
	}

	desc := mp.addObject(scwire.TxObject(tx), &txHash)
	log.Debugf("Accepted transaction %v (%d creations, %d forward "+
		"transfers, pool size %d)", txHash, len(tx.ScCreations),
		len(tx.FwdTransfers), len(mp.pool))
	return desc, nil
}

// MaybeAcceptTransaction validates the sidechain transaction and adds it to
// the pool.  Creations must introduce sidechains unknown to both the ledger
// and the pool while forward transfers may target registered sidechains as
// well as sidechains created by pooled transactions.
//
// This function is safe for concurrent access.
func (mp *Pool) MaybeAcceptTransaction(tx *scwire.MsgScTx) (*ObjectDesc, error) {
	mp.mtx.Lock()
	desc, err := mp.maybeAcceptTransaction(tx, true)
	mp.mtx.Unlock()
	if err == nil && mp.cfg.OnAccept != nil {
		mp.cfg.OnAccept(desc)
	}
	return desc, err
}

// pendingCertRef returns a reference to the pending certificate of the
// sidechain or nil when there is none.
//
// This function MUST be called with the pool lock held (for reads).
func (mp *Pool) pendingCertRef(id *chainhash.Hash) (*sidechain.CertRef, *ObjectDesc) {
	hash, ok := mp.certs[*id]
	if !ok {
		return nil, nil
	}
	desc := mp.pool[hash]
	cert := desc.Object.Cert
	return &sidechain.CertRef{
		Hash:    hash,
		Epoch:   cert.EpochNumber,
		Quality: cert.Quality,
		BtTotal: desc.BtTotal,
	}, desc
}

// maybeAcceptCertificate is the internal function which implements the public
// MaybeAcceptCertificate.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *Pool) maybeAcceptCertificate(cert *scwire.MsgCert, isNew bool) (*ObjectDesc, *ObjectDesc, error) {
	certHash := cert.CertHash()
	if _, ok := mp.pool[certHash]; ok {
		str := fmt.Sprintf("already have certificate %v", certHash)
		return nil, nil, ruleError(ErrDuplicate, str)
	}
	if isNew && mp.recentlyMined.Contains(certHash[:]) {
		str := fmt.Sprintf("certificate %v was recently mined", certHash)
		return nil, nil, ruleError(ErrDuplicate, str)
	}

	pending, pendingDesc := mp.pendingCertRef(&cert.ScID)
	if pending != nil && pending.Epoch != cert.EpochNumber {
		// The pending certificate gives way when the ledger moved on from
		// its epoch.
		pendingCert := pendingDesc.Object.Cert
		if _, err := mp.cfg.Chain.CheckCertificate(pendingCert, nil); err != nil {
			mp.evict(&pendingDesc.Hash, chainRuleError(err))
			pending, pendingDesc = nil, nil
		} else {
			str := fmt.Sprintf("sidechain %v already has pending "+
				"certificate %v for epoch %d", cert.ScID, pending.Hash,
				pending.Epoch)
			return nil, nil, ruleError(ErrPendingCertificate, str)
		}
	}
	if pending == nil {
		if err := mp.checkPoolLimit(); err != nil {
			return nil, nil, err
		}
	}

	if _, err := mp.cfg.Chain.CheckCertificate(cert, pending); err != nil {
		return nil, nil, chainRuleError(err)
	}

	// A strictly better certificate for the same epoch replaces the pending
	// one.
	var replaced *ObjectDesc
	if pendingDesc != nil {
		replaced = mp.removeObject(&pendingDesc.Hash)
		log.Debugf("Certificate %v (quality %d) replaces pending certificate "+
			"%v (quality %d) for epoch %d of sidechain %v", certHash,
			cert.Quality, pending.Hash, pending.Quality, cert.EpochNumber,
			cert.ScID)
	}

	desc := mp.addObject(scwire.CertObject(cert), &certHash)
	log.Debugf("Accepted certificate %v for epoch %d of sidechain %v "+
		"(quality %d, pool size %d)", certHash, cert.EpochNumber, cert.ScID,
		cert.Quality, len(mp.pool))
	return desc, replaced, nil
}

// MaybeAcceptCertificate validates the certificate against the ledger and the
// best pending certificate of its sidechain and adds it to the pool.  A
// certificate with a strictly higher quality than the pending one for the
// same epoch replaces it while lower or equal qualities are rejected with
// sidechain.ErrStaleQuality.
//
// This function is safe for concurrent access.
func (mp *Pool) MaybeAcceptCertificate(cert *scwire.MsgCert) (*ObjectDesc, error) {
	mp.mtx.Lock()
	desc, replaced, err := mp.maybeAcceptCertificate(cert, true)
	mp.mtx.Unlock()
	if err != nil {
		return nil, err
	}
	if replaced != nil && mp.cfg.OnEvict != nil {
		mp.cfg.OnEvict(replaced, sidechain.ErrStaleQuality)
	}
	if mp.cfg.OnAccept != nil {
		mp.cfg.OnAccept(desc)
	}
	return desc, nil
}

// sortedDescs returns the descriptors of the pool ordered by arrival.
//
// This function MUST be called with the pool lock held (for reads).
func (mp *Pool) sortedDescs() []*ObjectDesc {
	descs := make([]*ObjectDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].seq < descs[j].seq
	})
	return descs
}

// revalidate evicts every pooled object that is no longer valid against the
// ledger.
//
// This function MUST be called with the pool lock held (for writes).
func (mp *Pool) revalidate() {
	for _, desc := range mp.sortedDescs() {
		// Objects may have been evicted as redeemers of earlier ones.
		if _, ok := mp.pool[desc.Hash]; !ok {
			continue
		}

		var err error
		switch obj := desc.Object; obj.Kind {
		case scwire.ObjTransaction:
			err = mp.checkTransaction(obj.Tx, &desc.Hash)
		case scwire.ObjCertificate:
			_, err = mp.cfg.Chain.CheckCertificate(obj.Cert, nil)
			if err != nil {
				err = chainRuleError(err)
			}
		}
		if err != nil {
			mp.evict(&desc.Hash, err)
		}
	}
}

// HandleConnectedBlock removes the objects of a block that has been connected
// to the ledger from the pool, remembers them as recently mined and evicts
// pooled objects the block made invalid, such as certificates for an epoch
// the block certified.
//
// This function is safe for concurrent access.
func (mp *Pool) HandleConnectedBlock(block *scwire.MsgBlock) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	for _, tx := range block.Transactions {
		txHash := tx.TxHash()
		mp.removeTransaction(&txHash, false)
		mp.recentlyMined.Add(txHash[:])
	}
	for _, cert := range block.Certificates {
		certHash := cert.CertHash()
		mp.removeObject(&certHash)
		mp.recentlyMined.Add(certHash[:])
	}
	mp.revalidate()
}

// HandleDisconnectedBlock returns the objects of a block that has been
// disconnected from the ledger to the pool when they are still valid and
// evicts pooled objects the disconnection made invalid.
//
// This function is safe for concurrent access.
func (mp *Pool) HandleDisconnectedBlock(block *scwire.MsgBlock) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	// Transactions creating sidechains go first so forward transfers of the
	// same block to them are accepted as well.
	txs := make([]*scwire.MsgScTx, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if len(tx.ScCreations) > 0 {
			txs = append(txs, tx)
		}
	}
	for _, tx := range block.Transactions {
		if len(tx.ScCreations) == 0 {
			txs = append(txs, tx)
		}
	}
	for _, tx := range txs {
		if _, err := mp.maybeAcceptTransaction(tx, false); err != nil {
			log.Debugf("Discarding transaction %v of disconnected block: %v",
				tx.TxHash(), err)
		}
	}
	for _, cert := range block.Certificates {
		_, replaced, err := mp.maybeAcceptCertificate(cert, false)
		if err != nil {
			log.Debugf("Discarding certificate %v of disconnected block: %v",
				cert.CertHash(), err)
			continue
		}
		if replaced != nil && mp.cfg.OnEvict != nil {
			mp.cfg.OnEvict(replaced, sidechain.ErrStaleQuality)
		}
	}

	// Pooled objects may depend on state the block introduced.
	mp.revalidate()
}

// FetchObject returns the descriptor of the requested object and whether it
// is in the pool.
//
// This function is safe for concurrent access.
func (mp *Pool) FetchObject(hash *chainhash.Hash) (*ObjectDesc, bool) {
	mp.mtx.RLock()
	desc, ok := mp.pool[*hash]
	mp.mtx.RUnlock()
	return desc, ok
}

// FetchTransaction returns the requested transaction from the pool.
//
// This function is safe for concurrent access.
func (mp *Pool) FetchTransaction(txHash *chainhash.Hash) (*scwire.MsgScTx, error) {
	desc, ok := mp.FetchObject(txHash)
	if !ok || desc.Object.Kind != scwire.ObjTransaction {
		return nil, fmt.Errorf("transaction is not in the pool")
	}
	return desc.Object.Tx, nil
}

// FetchCertificate returns the requested certificate from the pool.
//
// This function is safe for concurrent access.
func (mp *Pool) FetchCertificate(certHash *chainhash.Hash) (*scwire.MsgCert, error) {
	desc, ok := mp.FetchObject(certHash)
	if !ok || desc.Object.Kind != scwire.ObjCertificate {
		return nil, fmt.Errorf("certificate is not in the pool")
	}
	return desc.Object.Cert, nil
}

// HaveObject returns whether the object is in the pool.
//
// This function is safe for concurrent access.
func (mp *Pool) HaveObject(hash *chainhash.Hash) bool {
	_, ok := mp.FetchObject(hash)
	return ok
}

// RecentlyMined returns whether the object was probably part of a recently
// connected block.
//
// This function is safe for concurrent access.
func (mp *Pool) RecentlyMined(hash *chainhash.Hash) bool {
	mp.mtx.RLock()
	mined := mp.recentlyMined.Contains(hash[:])
	mp.mtx.RUnlock()
	return mined
}

// SidechainInfo returns the unconfirmed state of the sidechain in the pool or
// nil when the pool holds nothing related to it.
//
// This function is safe for concurrent access.
func (mp *Pool) SidechainInfo(id *chainhash.Hash) *PendingSidechain {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	var info PendingSidechain
	var found bool
	if creator, ok := mp.creations[*id]; ok {
		found = true
		hash := creator
		info.CreationTxHash = &hash
		tx := mp.pool[creator].Object.Tx
		for i, txID := range tx.ScCreationIDs() {
			if txID == *id {
				info.Creation = tx.ScCreations[i]
				break
			}
		}
	}

	var fwdTxs []*ObjectDesc
	for hash := range mp.fwds[*id] {
		fwdTxs = append(fwdTxs, mp.pool[hash])
	}
	sort.Slice(fwdTxs, func(i, j int) bool {
		return fwdTxs[i].seq < fwdTxs[j].seq
	})
	for _, desc := range fwdTxs {
		for _, fwd := range desc.Object.Tx.FwdTransfers {
			if fwd.ScID == *id {
				found = true
				info.FwdTransfers = append(info.FwdTransfers, PendingFwd{
					TxHash: desc.Hash,
					Value:  fwd.Value,
				})
			}
		}
	}

	if ref, _ := mp.pendingCertRef(id); ref != nil {
		found = true
		info.Certificate = ref
	}
	if !found {
		return nil
	}
	return &info
}

// Count returns the number of objects in the pool.
//
// This function is safe for concurrent access.
func (mp *Pool) Count() int {
	mp.mtx.RLock()
	count := len(mp.pool)
	mp.mtx.RUnlock()
	return count
}

// ObjectDescs returns the descriptors of all objects in the pool ordered by
// arrival.  The descriptors must be treated as read only.
//
// This function is safe for concurrent access.
func (mp *Pool) ObjectDescs() []*ObjectDesc {
	mp.mtx.RLock()
	descs := mp.sortedDescs()
	mp.mtx.RUnlock()
	return descs
}

// MiningObjects returns the pooled transactions and certificates in the order
// they can be included in a block.  Transactions creating sidechains precede
// the other transactions and each group keeps arrival order.
//
// This function is safe for concurrent access.
func (mp *Pool) MiningObjects() ([]*scwire.MsgScTx, []*scwire.MsgCert) {
	descs := mp.ObjectDescs()
	var creations, others []*scwire.MsgScTx
	var certs []*scwire.MsgCert
	for _, desc := range descs {
		switch obj := desc.Object; obj.Kind {
		case scwire.ObjTransaction:
			if len(obj.Tx.ScCreations) > 0 {
				creations = append(creations, obj.Tx)
			} else {
				others = append(others, obj.Tx)
			}
		case scwire.ObjCertificate:
			certs = append(certs, obj.Cert)
		}
	}
	return append(creations, others...), certs
}

// LastUpdated returns the last time an object was added to or removed from
// the pool.
//
// This function is safe for concurrent access.
func (mp *Pool) LastUpdated() time.Time {
	return time.Unix(mp.lastUpdated.Load(), 0)
}
