// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package indexers

import (
	"context"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/database/v3"
	"github.com/decred/scledger/scwire"
)

const (
	// txIndexName is the human-readable name for the transaction index.
	txIndexName = "sidechain transaction index"

	// coinIndexName is the human-readable name for the coin index.
	coinIndexName = "sidechain coin index"

	// objIndexVersion is the current version of both object indexes.
	objIndexVersion = 1

	// entryHeaderSize is the size of a serialized entry without its raw
	// object bytes.
	entryHeaderSize = 8 + chainhash.HashSize + 1
)

var (
	// txIndexKey is the key of the transaction index and the db bucket used
	// to house it.
	txIndexKey = []byte("sctxbyhashidx")

	// coinIndexKey is the key of the coin index and the db bucket used to
	// house it.
	coinIndexKey = []byte("sccoinbyhashidx")
)

// Entry is an indexed confirmed object.
type Entry struct {
	Height    int64
	BlockHash chainhash.Hash
	Kind      scwire.ObjectKind
	Raw       []byte
}

// Object decodes the raw bytes of the entry.
func (e *Entry) Object() (*scwire.Object, error) {
	return scwire.DecodeObject(e.Raw)
}

// serializeEntry returns the serialized form of an index entry.
//
// The serialized format is:
//
//	<block height><block hash><kind><raw object>
func serializeEntry(height int64, blockHash *chainhash.Hash, obj *scwire.Object) ([]byte, error) {
	raw, err := obj.Bytes()
	if err != nil {
		return nil, err
	}
	serialized := make([]byte, entryHeaderSize+len(raw))
	byteOrder.PutUint64(serialized, uint64(height))
	copy(serialized[8:], blockHash[:])
	serialized[8+chainhash.HashSize] = byte(obj.Kind)
	copy(serialized[entryHeaderSize:], raw)
	return serialized, nil
}

// deserializeEntry decodes an entry serialized with serializeEntry.
func deserializeEntry(serialized []byte) (*Entry, error) {
	if len(serialized) < entryHeaderSize {
		str := fmt.Sprintf("index entry of %d bytes is too short",
			len(serialized))
		return nil, indexerError(ErrCorruptEntry, str)
	}
	var entry Entry
	entry.Height = int64(byteOrder.Uint64(serialized))
	copy(entry.BlockHash[:], serialized[8:])
	entry.Kind = scwire.ObjectKind(serialized[8+chainhash.HashSize])
	// The database owns the returned slice, so the raw bytes are copied.
	entry.Raw = append([]byte(nil), serialized[entryHeaderSize:]...)
	return &entry, nil
}

// ObjectIndex maps the hashes of confirmed objects to the block that
// confirmed them along with their raw bytes.  Objects the filter rejects are
// not indexed.
type ObjectIndex struct {
	db     database.DB
	key    []byte
	name   string
	filter func(*scwire.Object) bool
}

// Ensure the ObjectIndex type implements the Indexer interface.
var _ Indexer = (*ObjectIndex)(nil)

// NewTxIndex returns a new index which houses every confirmed object.
func NewTxIndex(db database.DB) *ObjectIndex {
	return &ObjectIndex{db: db, key: txIndexKey, name: txIndexName}
}

// NewCoinIndex returns a new index which houses confirmed objects that own
// main chain coins.
func NewCoinIndex(db database.DB) *ObjectIndex {
	return &ObjectIndex{
		db:     db,
		key:    coinIndexKey,
		name:   coinIndexName,
		filter: (*scwire.Object).HasTransparentOutputs,
	}
}

// Key returns the database key to use for the index as a byte slice.
//
// This is part of the Indexer interface.
func (idx *ObjectIndex) Key() []byte {
	return idx.key
}

// Name returns the human-readable name of the index.
//
// This is part of the Indexer interface.
func (idx *ObjectIndex) Name() string {
	return idx.name
}

// Version returns the current version of the index.
//
// This is part of the Indexer interface.
func (idx *ObjectIndex) Version() uint32 {
	return objIndexVersion
}

// Create is invoked when the index is created for the first time.  It creates
// the bucket for the index.
//
// This is part of the Indexer interface.
func (idx *ObjectIndex) Create(dbTx database.Tx) error {
	_, err := dbTx.Metadata().CreateBucket(idx.key)
	return err
}

// blockObjects returns the indexed objects of the block.
func (idx *ObjectIndex) blockObjects(block *scwire.MsgBlock) []*scwire.Object {
	objs := make([]*scwire.Object, 0, len(block.Transactions)+
		len(block.Certificates))
	for _, tx := range block.Transactions {
		obj := scwire.TxObject(tx)
		if idx.filter == nil || idx.filter(obj) {
			objs = append(objs, obj)
		}
	}
	for _, cert := range block.Certificates {
		obj := scwire.CertObject(cert)
		if idx.filter == nil || idx.filter(obj) {
			objs = append(objs, obj)
		}
	}
	return objs
}

// ConnectBlock adds the objects of the block to the index.
//
// This is part of the Indexer interface.
func (idx *ObjectIndex) ConnectBlock(dbTx database.Tx, block *scwire.MsgBlock, height int64) error {
	bucket := dbTx.Metadata().Bucket(idx.key)
	blockHash := block.BlockHash()
	for _, obj := range idx.blockObjects(block) {
		serialized, err := serializeEntry(height, &blockHash, obj)
		if err != nil {
			return err
		}
		hash := obj.Hash()
		if err := bucket.Put(hash[:], serialized); err != nil {
			return err
		}
	}
	return nil
}

// DisconnectBlock removes the objects of the block from the index.
//
// This is part of the Indexer interface.
func (idx *ObjectIndex) DisconnectBlock(dbTx database.Tx, block *scwire.MsgBlock, height int64) error {
	bucket := dbTx.Metadata().Bucket(idx.key)
	for _, obj := range idx.blockObjects(block) {
		hash := obj.Hash()
		if err := bucket.Delete(hash[:]); err != nil {
			return err
		}
	}
	return nil
}

// Entry returns the index entry of the object with the provided hash.  It
// returns nil when the object is not indexed.
//
// This function is safe for concurrent access.
func (idx *ObjectIndex) Entry(hash *chainhash.Hash) (*Entry, error) {
	var entry *Entry
	err := idx.db.View(func(dbTx database.Tx) error {
		bucket := dbTx.Metadata().Bucket(idx.key)
		if bucket == nil {
			return nil
		}
		serialized := bucket.Get(hash[:])
		if serialized == nil {
			return nil
		}
		var err error
		entry, err = deserializeEntry(serialized)
		return err
	})
	return entry, err
}

// DropTxIndex drops the transaction index from the provided database if it
// exists.
func DropTxIndex(ctx context.Context, db database.DB) error {
	return dropFlatIndex(ctx, db, txIndexKey, txIndexName)
}
