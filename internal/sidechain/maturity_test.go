// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

// TestMaturitySchedule exercises insertion, maturation, reversal and removal
// of immature entries.
func TestMaturitySchedule(t *testing.T) {
	t.Parallel()

	srcA := chainhash.Hash{0x0a}
	srcB := chainhash.Hash{0x0b}
	s := NewMaturitySchedule()
	s.Insert(ImmatureEntry{Value: 50, MaturityHeight: 10, Source: srcA})
	s.Insert(ImmatureEntry{Value: 20, MaturityHeight: 10, Source: srcB,
		Kind: EntryFwdTransfer})
	s.Insert(ImmatureEntry{Value: 30, MaturityHeight: 12, Source: srcB,
		Kind: EntryFwdTransfer})

	wantSnap := map[int64]int64{10: 70, 12: 30}
	if snap := s.Snapshot(); !reflect.DeepEqual(snap, wantSnap) {
		t.Fatalf("mismatched snapshot -- got %v, want %v", snap, wantSnap)
	}
	if s.Total() != 100 || s.Len() != 3 {
		t.Fatalf("unexpected total %d or len %d", s.Total(), s.Len())
	}
	if heights := s.Heights(); !reflect.DeepEqual(heights, []int64{10, 12}) {
		t.Fatalf("unexpected heights %v", heights)
	}

	// Nothing matures at a height without entries.
	if matured := s.MaturedAt(11); len(matured) != 0 {
		t.Fatalf("unexpected matured entries %s", spew.Sdump(matured))
	}

	matured := s.MaturedAt(10)
	if len(matured) != 2 || matured[0].Source != srcA || matured[1].Source != srcB {
		t.Fatalf("unexpected matured entries %s", spew.Sdump(matured))
	}
	if s.Total() != 30 {
		t.Fatalf("unexpected total after maturation %d", s.Total())
	}
	if len(s.Peek(10)) != 0 {
		t.Fatal("matured bucket still pending")
	}

	// Reversal restores the bucket in the original order.
	if err := s.ReverseMaturation(10, matured); err != nil {
		t.Fatalf("unexpected reversal error: %v", err)
	}
	if got := s.Peek(10); !reflect.DeepEqual(got, matured) {
		t.Fatalf("mismatched restored bucket -- got %s, want %s",
			spew.Sdump(got), spew.Sdump(matured))
	}
	if s.Total() != 100 {
		t.Fatalf("unexpected total after reversal %d", s.Total())
	}

	// Reversing over a pending bucket is an internal inconsistency.
	err := s.ReverseMaturation(10, matured)
	var assertErr AssertError
	if !errors.As(err, &assertErr) {
		t.Fatalf("expected assertion error, got %v", err)
	}

	// Removing a single entry of an aggregated bucket keeps the rest.
	if err := s.Remove(10, &srcB, 20); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	wantSnap = map[int64]int64{10: 50, 12: 30}
	if snap := s.Snapshot(); !reflect.DeepEqual(snap, wantSnap) {
		t.Fatalf("mismatched snapshot -- got %v, want %v", snap, wantSnap)
	}
	if err := s.Remove(10, &srcB, 20); !errors.As(err, &assertErr) {
		t.Fatalf("expected assertion error removing twice, got %v", err)
	}

	// Clones are independent.
	c := s.clone()
	c.MaturedAt(12)
	if s.Total() != 80 || c.Total() != 50 {
		t.Fatalf("clone shares state: totals %d and %d", s.Total(), c.Total())
	}
}
