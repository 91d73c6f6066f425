// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// TestSidechainSerialization ensures sidechain records survive a round trip
// through their database serialization and corrupt data is detected.
func TestSidechainSerialization(t *testing.T) {
	t.Parallel()

	sc := &Sidechain{
		ID:             chainhash.Hash{0x01},
		CreationTxHash: chainhash.Hash{0x02},
		CreationHeight: 220,
		CreationBlock:  chainhash.Hash{0x03},
		EpochLength:    5,
		WCertVk:        []byte{0xaa, 0xbb},
		Constant:       []byte{0xcc},
		CreationAmount: 5e7,
		Balance:        1e7,
		Immature:       NewMaturitySchedule(),
		TotalInflow:    8e7,
		TotalWithdrawn: 1e7,
		Certs: []CertRef{{
			Hash:    chainhash.Hash{0x04},
			Epoch:   0,
			Quality: 3,
			BtTotal: 1e7,
			Height:  226,
		}},
	}
	sc.Immature.Insert(ImmatureEntry{Value: 4e7, MaturityHeight: 230,
		Source: chainhash.Hash{0x05}, Kind: EntryFwdTransfer})
	sc.Immature.Insert(ImmatureEntry{Value: 2e7, MaturityHeight: 230,
		Source: chainhash.Hash{0x06}, Kind: EntryFwdTransfer})

	serialized := serializeSidechain(sc)
	got, err := deserializeSidechain(serialized)
	if err != nil {
		t.Fatalf("unexpected deserialize error: %v", err)
	}
	if !reflect.DeepEqual(got, sc) {
		t.Fatalf("mismatched record\ngot: %s\nwant: %s", spew.Sdump(got),
			spew.Sdump(sc))
	}
	if !bytes.Equal(serializeSidechain(got), serialized) {
		t.Fatal("re-serialized record differs")
	}

	for _, b := range [][]byte{
		serialized[:len(serialized)-1],
		append(append([]byte(nil), serialized...), 0x00),
		nil,
	} {
		_, err := deserializeSidechain(b)
		if !isDeserializeErr(err) {
			t.Errorf("expected deserialize error for %d bytes, got %v",
				len(b), err)
		}
	}
}

// TestBlockUndoSerialization ensures undo data survives a round trip through
// its database serialization.
func TestBlockUndoSerialization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		undo *blockUndo
	}{{
		name: "empty",
		undo: &blockUndo{},
	}, {
		name: "everything",
		undo: &blockUndo{
			Matured: []maturedUndo{{
				ScID:   chainhash.Hash{0x01},
				Height: 10,
				Entries: []ImmatureEntry{
					{Value: 1, MaturityHeight: 10, Source: chainhash.Hash{0x02}},
					{Value: 2, MaturityHeight: 10, Source: chainhash.Hash{0x03},
						Kind: EntryFwdTransfer},
				},
			}},
			Created: []chainhash.Hash{{0x04}, {0x05}},
			Scheduled: []scheduledUndo{{
				ScID: chainhash.Hash{0x01},
				Entry: ImmatureEntry{Value: 7, MaturityHeight: 12,
					Source: chainhash.Hash{0x06}, Kind: EntryFwdTransfer},
			}},
			Certs: []certUndo{{
				ScID:         chainhash.Hash{0x01},
				Cert:         CertRef{Hash: chainhash.Hash{0x07}, Quality: 2, BtTotal: 5, Height: 10},
				BalanceDelta: -5,
			}, {
				ScID:         chainhash.Hash{0x02},
				Cert:         CertRef{Hash: chainhash.Hash{0x08}, Epoch: 1, Quality: 3, BtTotal: 6, Height: 10},
				BalanceDelta: -6,
			}},
		},
	}}

	for _, test := range tests {
		got, err := deserializeBlockUndo(serializeBlockUndo(test.undo))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", test.name, err)
			continue
		}
		if !reflect.DeepEqual(got, test.undo) {
			t.Errorf("%s: mismatched undo data\ngot: %s\nwant: %s", test.name,
				spew.Sdump(got), spew.Sdump(test.undo))
		}
	}
}
