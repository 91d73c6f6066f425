// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/database/v3"
	"github.com/decred/dcrd/wire"
	"github.com/decred/scledger/scwire"
)

const (
	// currentDatabaseVersion indicates the current ledger database version.
	currentDatabaseVersion = 1

	// maxSerializedLen bounds variable length fields read back from the
	// database.
	maxSerializedLen = scwire.MaxVkSize
)

var (
	// byteOrder is the preferred byte order used for serializing numeric
	// fields for storage in the database.
	byteOrder = binary.LittleEndian

	// stateBucketName is the name of the bucket holding the best state.
	stateBucketName = []byte("scledgerstate")

	// bestStateKeyName is the key of the best state in the state bucket.
	bestStateKeyName = []byte("beststate")

	// chainBucketName is the name of the bucket mapping main chain heights
	// to block hashes and cumulative commitments.
	chainBucketName = []byte("scchain")

	// blocksBucketName is the name of the bucket holding serialized blocks
	// keyed by hash.
	blocksBucketName = []byte("scblocks")

	// journalBucketName is the name of the bucket holding the undo data of
	// every connected block keyed by hash.
	journalBucketName = []byte("scjournal")

	// sidechainsBucketName is the name of the bucket holding sidechain
	// records keyed by id.
	sidechainsBucketName = []byte("scsidechains")
)

// errDeserialize signifies that a problem was encountered when deserializing
// data.
type errDeserialize string

// Error implements the error interface.
func (e errDeserialize) Error() string {
	return string(e)
}

// isDeserializeErr returns whether or not the passed error is an errDeserialize
// error.
func isDeserializeErr(err error) bool {
	_, ok := err.(errDeserialize)
	return ok
}

// -----------------------------------------------------------------------------
// The serialization helpers below append fixed size little endian integers,
// hashes and variable length byte slices to a buffer.  The matching reader
// keeps the first error it encounters so callers check it once after reading
// a whole record.
// -----------------------------------------------------------------------------

func putUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	w.Write(b[:])
}

func putInt64(w *bytes.Buffer, v int64) {
	var b [8]byte
	byteOrder.PutUint64(b[:], uint64(v))
	w.Write(b[:])
}

func putCount(w *bytes.Buffer, n int) {
	// Writes to a bytes buffer never fail.
	_ = wire.WriteVarInt(w, 0, uint64(n))
}

func putVarBytes(w *bytes.Buffer, b []byte) {
	_ = wire.WriteVarBytes(w, 0, b)
}

func putHash(w *bytes.Buffer, h *chainhash.Hash) {
	w.Write(h[:])
}

type recordReader struct {
	r   *bytes.Reader
	err error
}

func newRecordReader(b []byte) *recordReader {
	return &recordReader{r: bytes.NewReader(b)}
}

func (rr *recordReader) fail(err error) {
	if rr.err == nil {
		rr.err = errDeserialize(err.Error())
	}
}

func (rr *recordReader) readUint32() uint32 {
	var b [4]byte
	if rr.err != nil {
		return 0
	}
	if _, err := io.ReadFull(rr.r, b[:]); err != nil {
		rr.fail(err)
		return 0
	}
	return byteOrder.Uint32(b[:])
}

func (rr *recordReader) readInt64() int64 {
	var b [8]byte
	if rr.err != nil {
		return 0
	}
	if _, err := io.ReadFull(rr.r, b[:]); err != nil {
		rr.fail(err)
		return 0
	}
	return int64(byteOrder.Uint64(b[:]))
}

func (rr *recordReader) readByte() byte {
	if rr.err != nil {
		return 0
	}
	b, err := rr.r.ReadByte()
	if err != nil {
		rr.fail(err)
	}
	return b
}

func (rr *recordReader) readCount() int {
	if rr.err != nil {
		return 0
	}
	n, err := wire.ReadVarInt(rr.r, 0)
	if err != nil {
		rr.fail(err)
		return 0
	}
	if n > uint64(rr.r.Len()) {
		rr.fail(fmt.Errorf("count %d exceeds remaining %d bytes", n,
			rr.r.Len()))
		return 0
	}
	return int(n)
}

func (rr *recordReader) readVarBytes(field string) []byte {
	if rr.err != nil {
		return nil
	}
	b, err := wire.ReadVarBytes(rr.r, 0, maxSerializedLen, field)
	if err != nil {
		rr.fail(err)
		return nil
	}
	if len(b) == 0 {
		return nil
	}
	return b
}

func (rr *recordReader) readHash(h *chainhash.Hash) {
	if rr.err != nil {
		return
	}
	if _, err := io.ReadFull(rr.r, h[:]); err != nil {
		rr.fail(err)
	}
}

// finish returns the first error encountered or an error when unread bytes
// remain.
func (rr *recordReader) finish() error {
	if rr.err == nil && rr.r.Len() != 0 {
		rr.err = errDeserialize(fmt.Sprintf("%d unexpected trailing bytes",
			rr.r.Len()))
	}
	return rr.err
}

func putEntry(w *bytes.Buffer, e *ImmatureEntry) {
	putInt64(w, e.Value)
	putInt64(w, e.MaturityHeight)
	putHash(w, &e.Source)
	w.WriteByte(byte(e.Kind))
}

func (rr *recordReader) readEntry() ImmatureEntry {
	var e ImmatureEntry
	e.Value = rr.readInt64()
	e.MaturityHeight = rr.readInt64()
	rr.readHash(&e.Source)
	e.Kind = EntryKind(rr.readByte())
	return e
}

func putCertRef(w *bytes.Buffer, c *CertRef) {
	putHash(w, &c.Hash)
	putUint32(w, uint32(c.Epoch))
	putInt64(w, c.Quality)
	putInt64(w, c.BtTotal)
	putInt64(w, c.Height)
}

func (rr *recordReader) readCertRef() CertRef {
	var c CertRef
	rr.readHash(&c.Hash)
	c.Epoch = int32(rr.readUint32())
	c.Quality = rr.readInt64()
	c.BtTotal = rr.readInt64()
	c.Height = rr.readInt64()
	return c
}

// serializeSidechain returns the serialized form of a sidechain record.
//
// The serialized format is:
//
//	<id><creation tx><creation height><creation block><epoch length>
//	<vk><custom data><constant><creation amount><balance><inflow><withdrawn>
//	<num entries><entries...><num certs><certs...>
//
// Entries are written ordered by maturity height and then insertion order so
// equal records always serialize to equal bytes.
func serializeSidechain(sc *Sidechain) []byte {
	var w bytes.Buffer
	putHash(&w, &sc.ID)
	putHash(&w, &sc.CreationTxHash)
	putInt64(&w, sc.CreationHeight)
	putHash(&w, &sc.CreationBlock)
	putUint32(&w, sc.EpochLength)
	putVarBytes(&w, sc.WCertVk)
	putVarBytes(&w, sc.CustomData)
	putVarBytes(&w, sc.Constant)
	putInt64(&w, sc.CreationAmount)
	putInt64(&w, sc.Balance)
	putInt64(&w, sc.TotalInflow)
	putInt64(&w, sc.TotalWithdrawn)
	entries := sc.Immature.Entries()
	putCount(&w, len(entries))
	for i := range entries {
		putEntry(&w, &entries[i])
	}
	putCount(&w, len(sc.Certs))
	for i := range sc.Certs {
		putCertRef(&w, &sc.Certs[i])
	}
	return w.Bytes()
}

// deserializeSidechain decodes a sidechain record serialized with
// serializeSidechain.
func deserializeSidechain(b []byte) (*Sidechain, error) {
	rr := newRecordReader(b)
	sc := &Sidechain{Immature: NewMaturitySchedule()}
	rr.readHash(&sc.ID)
	rr.readHash(&sc.CreationTxHash)
	sc.CreationHeight = rr.readInt64()
	rr.readHash(&sc.CreationBlock)
	sc.EpochLength = rr.readUint32()
	sc.WCertVk = rr.readVarBytes("verification key")
	sc.CustomData = rr.readVarBytes("custom data")
	sc.Constant = rr.readVarBytes("constant")
	sc.CreationAmount = rr.readInt64()
	sc.Balance = rr.readInt64()
	sc.TotalInflow = rr.readInt64()
	sc.TotalWithdrawn = rr.readInt64()
	for n := rr.readCount(); n > 0 && rr.err == nil; n-- {
		sc.Immature.Insert(rr.readEntry())
	}
	for n := rr.readCount(); n > 0 && rr.err == nil; n-- {
		sc.Certs = append(sc.Certs, rr.readCertRef())
	}
	if err := rr.finish(); err != nil {
		return nil, err
	}
	return sc, nil
}

// serializeBlockUndo returns the serialized form of the undo data of a block.
func serializeBlockUndo(undo *blockUndo) []byte {
	var w bytes.Buffer
	putCount(&w, len(undo.Matured))
	for i := range undo.Matured {
		mu := &undo.Matured[i]
		putHash(&w, &mu.ScID)
		putInt64(&w, mu.Height)
		putCount(&w, len(mu.Entries))
		for j := range mu.Entries {
			putEntry(&w, &mu.Entries[j])
		}
	}
	putCount(&w, len(undo.Created))
	for i := range undo.Created {
		putHash(&w, &undo.Created[i])
	}
	putCount(&w, len(undo.Scheduled))
	for i := range undo.Scheduled {
		putHash(&w, &undo.Scheduled[i].ScID)
		putEntry(&w, &undo.Scheduled[i].Entry)
	}
	putCount(&w, len(undo.Certs))
	for i := range undo.Certs {
		cu := &undo.Certs[i]
		putHash(&w, &cu.ScID)
		putCertRef(&w, &cu.Cert)
		putInt64(&w, cu.BalanceDelta)
	}
	return w.Bytes()
}

// deserializeBlockUndo decodes undo data serialized with serializeBlockUndo.
func deserializeBlockUndo(b []byte) (*blockUndo, error) {
	rr := newRecordReader(b)
	var undo blockUndo
	for n := rr.readCount(); n > 0 && rr.err == nil; n-- {
		var mu maturedUndo
		rr.readHash(&mu.ScID)
		mu.Height = rr.readInt64()
		for m := rr.readCount(); m > 0 && rr.err == nil; m-- {
			mu.Entries = append(mu.Entries, rr.readEntry())
		}
		undo.Matured = append(undo.Matured, mu)
	}
	for n := rr.readCount(); n > 0 && rr.err == nil; n-- {
		var id chainhash.Hash
		rr.readHash(&id)
		undo.Created = append(undo.Created, id)
	}
	for n := rr.readCount(); n > 0 && rr.err == nil; n-- {
		var su scheduledUndo
		rr.readHash(&su.ScID)
		su.Entry = rr.readEntry()
		undo.Scheduled = append(undo.Scheduled, su)
	}
	for n := rr.readCount(); n > 0 && rr.err == nil; n-- {
		var cu certUndo
		rr.readHash(&cu.ScID)
		cu.Cert = rr.readCertRef()
		cu.BalanceDelta = rr.readInt64()
		undo.Certs = append(undo.Certs, cu)
	}
	if err := rr.finish(); err != nil {
		return nil, err
	}
	return &undo, nil
}

// dbState is the best state stored in the database.
type dbState struct {
	version     uint32
	startHeight int64
	startHash   chainhash.Hash
	height      int64
	hash        chainhash.Hash
}

// serializeDBState returns the serialized form of the best state.
func serializeDBState(state *dbState) []byte {
	var w bytes.Buffer
	putUint32(&w, state.version)
	putInt64(&w, state.startHeight)
	putHash(&w, &state.startHash)
	putInt64(&w, state.height)
	putHash(&w, &state.hash)
	return w.Bytes()
}

// deserializeDBState decodes a best state serialized with serializeDBState.
func deserializeDBState(b []byte) (*dbState, error) {
	rr := newRecordReader(b)
	var state dbState
	state.version = rr.readUint32()
	state.startHeight = rr.readInt64()
	rr.readHash(&state.startHash)
	state.height = rr.readInt64()
	rr.readHash(&state.hash)
	if err := rr.finish(); err != nil {
		return nil, err
	}
	return &state, nil
}

// heightKey returns the key of the provided height in the chain bucket.
func heightKey(height int64) []byte {
	var key [8]byte
	byteOrder.PutUint64(key[:], uint64(height))
	return key[:]
}

// dbCreateBuckets creates every bucket used by the ledger.
func dbCreateBuckets(dbTx database.Tx) error {
	meta := dbTx.Metadata()
	for _, name := range [][]byte{stateBucketName, chainBucketName,
		blocksBucketName, journalBucketName, sidechainsBucketName} {

		if _, err := meta.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

// dbFetchState loads the best state or returns nil when the ledger has never
// been initialized.
func dbFetchState(dbTx database.Tx) (*dbState, error) {
	bucket := dbTx.Metadata().Bucket(stateBucketName)
	if bucket == nil {
		return nil, nil
	}
	serialized := bucket.Get(bestStateKeyName)
	if serialized == nil {
		return nil, nil
	}
	return deserializeDBState(serialized)
}

// dbPutState stores the best state.
func dbPutState(dbTx database.Tx, state *dbState) error {
	bucket := dbTx.Metadata().Bucket(stateBucketName)
	return bucket.Put(bestStateKeyName, serializeDBState(state))
}

// dbPutChainEntry stores the hash and cumulative commitment of the main chain
// block at height.
func dbPutChainEntry(dbTx database.Tx, height int64, hash, cum *chainhash.Hash) error {
	value := make([]byte, chainhash.HashSize*2)
	copy(value, hash[:])
	copy(value[chainhash.HashSize:], cum[:])
	return dbTx.Metadata().Bucket(chainBucketName).Put(heightKey(height), value)
}

// dbFetchChainEntry loads the hash and cumulative commitment of the main
// chain block at height.
func dbFetchChainEntry(dbTx database.Tx, height int64) (chainhash.Hash, chainhash.Hash, error) {
	var hash, cum chainhash.Hash
	value := dbTx.Metadata().Bucket(chainBucketName).Get(heightKey(height))
	if len(value) != chainhash.HashSize*2 {
		str := fmt.Sprintf("missing or corrupt chain entry at height %d",
			height)
		return hash, cum, AssertError(str)
	}
	copy(hash[:], value)
	copy(cum[:], value[chainhash.HashSize:])
	return hash, cum, nil
}

// dbFetchBlock loads the block with the provided hash.
func dbFetchBlock(dbTx database.Tx, hash *chainhash.Hash) (*scwire.MsgBlock, error) {
	serialized := dbTx.Metadata().Bucket(blocksBucketName).Get(hash[:])
	if serialized == nil {
		return nil, AssertError(fmt.Sprintf("block %v is not stored", hash))
	}
	var block scwire.MsgBlock
	if err := block.FromBytes(serialized); err != nil {
		return nil, errDeserialize(err.Error())
	}
	return &block, nil
}

// dbFetchBlockUndo loads the undo data of the block with the provided hash.
func dbFetchBlockUndo(dbTx database.Tx, hash *chainhash.Hash) (*blockUndo, error) {
	serialized := dbTx.Metadata().Bucket(journalBucketName).Get(hash[:])
	if serialized == nil {
		return nil, AssertError(fmt.Sprintf("no undo data for block %v", hash))
	}
	return deserializeBlockUndo(serialized)
}

// dbPutBlock stores a connected block, its undo data and its chain entry.
func dbPutBlock(dbTx database.Tx, block *scwire.MsgBlock, height int64, hash,
	cum *chainhash.Hash, undo *blockUndo) error {

	serialized, err := block.Bytes()
	if err != nil {
		return err
	}
	meta := dbTx.Metadata()
	if err := meta.Bucket(blocksBucketName).Put(hash[:], serialized); err != nil {
		return err
	}
	err = meta.Bucket(journalBucketName).Put(hash[:], serializeBlockUndo(undo))
	if err != nil {
		return err
	}
	return dbPutChainEntry(dbTx, height, hash, cum)
}

// dbRemoveBlock removes a disconnected block, its undo data and its chain
// entry.
func dbRemoveBlock(dbTx database.Tx, height int64, hash *chainhash.Hash) error {
	meta := dbTx.Metadata()
	if err := meta.Bucket(blocksBucketName).Delete(hash[:]); err != nil {
		return err
	}
	if err := meta.Bucket(journalBucketName).Delete(hash[:]); err != nil {
		return err
	}
	return meta.Bucket(chainBucketName).Delete(heightKey(height))
}

// dbPutSidechains stores every record staged in the view and removes the
// sidechains staged for removal.
func dbPutSidechains(dbTx database.Tx, view *registryView) error {
	bucket := dbTx.Metadata().Bucket(sidechainsBucketName)
	for id, sc := range view.entries {
		id := id
		if sc == nil {
			if err := bucket.Delete(id[:]); err != nil {
				return err
			}
			continue
		}
		if err := bucket.Put(id[:], serializeSidechain(sc)); err != nil {
			return err
		}
	}
	return nil
}

// dbLoadRegistry loads every stored sidechain record into a new registry.
func dbLoadRegistry(dbTx database.Tx) (*Registry, error) {
	registry := NewRegistry()
	bucket := dbTx.Metadata().Bucket(sidechainsBucketName)
	err := bucket.ForEach(func(k, v []byte) error {
		sc, err := deserializeSidechain(v)
		if err != nil {
			return err
		}
		if !bytes.Equal(k, sc.ID[:]) {
			return AssertError(fmt.Sprintf("sidechain %v stored under key %x",
				sc.ID, k))
		}
		registry.put(sc.ID, sc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}
