// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"fmt"
	"sort"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// EntryKind identifies the kind of output that produced an immature entry.
type EntryKind uint8

const (
	// EntryCreation identifies the creation amount of a sidechain.
	EntryCreation EntryKind = iota

	// EntryFwdTransfer identifies a forward transfer.
	EntryFwdTransfer
)

// String returns the kind as a human-readable name.
func (k EntryKind) String() string {
	switch k {
	case EntryCreation:
		return "creation"
	case EntryFwdTransfer:
		return "forward transfer"
	}
	return fmt.Sprintf("Unknown EntryKind (%d)", uint8(k))
}

// ImmatureEntry is value received by a sidechain that does not count towards
// its balance until the chain reaches MaturityHeight.  Source is the hash of
// the transaction that carried the value.
type ImmatureEntry struct {
	Value          int64
	MaturityHeight int64
	Source         chainhash.Hash
	Kind           EntryKind
}

// MaturitySchedule tracks the immature entries of a single sidechain keyed by
// maturity height.  Entries with the same maturity height are reported as one
// aggregated bucket but kept individually, in insertion order, so a single
// entry can be removed again when the block that scheduled it is
// disconnected.
//
// The schedule is not safe for concurrent mutation.
type MaturitySchedule struct {
	buckets map[int64][]ImmatureEntry
	total   int64
}

// NewMaturitySchedule returns an empty maturity schedule.
func NewMaturitySchedule() *MaturitySchedule {
	return &MaturitySchedule{buckets: make(map[int64][]ImmatureEntry)}
}

// Insert adds an entry to the schedule.
func (s *MaturitySchedule) Insert(entry ImmatureEntry) {
	s.buckets[entry.MaturityHeight] = append(s.buckets[entry.MaturityHeight],
		entry)
	s.total += entry.Value
}

// Peek returns the entries maturing at height without removing them.
func (s *MaturitySchedule) Peek(height int64) []ImmatureEntry {
	bucket := s.buckets[height]
	if len(bucket) == 0 {
		return nil
	}
	entries := make([]ImmatureEntry, len(bucket))
	copy(entries, bucket)
	return entries
}

// MaturedAt removes and returns the entries maturing at height in insertion
// order.  An empty result is not an error.
func (s *MaturitySchedule) MaturedAt(height int64) []ImmatureEntry {
	entries := s.buckets[height]
	delete(s.buckets, height)
	for _, entry := range entries {
		s.total -= entry.Value
	}
	return entries
}

// ReverseMaturation restores entries previously returned by MaturedAt for
// height.  The bucket at height must be empty since nothing can be scheduled
// to mature at a height that has already been reached.
func (s *MaturitySchedule) ReverseMaturation(height int64, entries []ImmatureEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if len(s.buckets[height]) != 0 {
		return AssertError(fmt.Sprintf("reversing maturation at height %d "+
			"over %d pending entries", height, len(s.buckets[height])))
	}
	bucket := make([]ImmatureEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.MaturityHeight != height {
			return AssertError(fmt.Sprintf("reversing maturation at height "+
				"%d of entry maturing at %d", height, entry.MaturityHeight))
		}
		bucket = append(bucket, entry)
		s.total += entry.Value
	}
	s.buckets[height] = bucket
	return nil
}

// Remove removes the most recently inserted entry at height produced by the
// provided source with the provided value.
func (s *MaturitySchedule) Remove(height int64, source *chainhash.Hash, value int64) error {
	bucket := s.buckets[height]
	for i := len(bucket) - 1; i >= 0; i-- {
		if bucket[i].Source != *source || bucket[i].Value != value {
			continue
		}
		bucket = append(bucket[:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(s.buckets, height)
		} else {
			s.buckets[height] = bucket
		}
		s.total -= value
		return nil
	}
	return AssertError(fmt.Sprintf("no immature entry of %d from %v at "+
		"height %d", value, source, height))
}

// Snapshot returns the aggregated value of every bucket keyed by maturity
// height.
func (s *MaturitySchedule) Snapshot() map[int64]int64 {
	snapshot := make(map[int64]int64, len(s.buckets))
	for height, bucket := range s.buckets {
		var sum int64
		for _, entry := range bucket {
			sum += entry.Value
		}
		snapshot[height] = sum
	}
	return snapshot
}

// Heights returns the maturity heights with pending entries in ascending
// order.
func (s *MaturitySchedule) Heights() []int64 {
	heights := make([]int64, 0, len(s.buckets))
	for height := range s.buckets {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}

// Entries returns every pending entry ordered by maturity height and then
// insertion order.
func (s *MaturitySchedule) Entries() []ImmatureEntry {
	var entries []ImmatureEntry
	for _, height := range s.Heights() {
		entries = append(entries, s.buckets[height]...)
	}
	return entries
}

// Total returns the sum of all pending entries.
func (s *MaturitySchedule) Total() int64 {
	return s.total
}

// Len returns the number of pending entries.
func (s *MaturitySchedule) Len() int {
	var n int
	for _, bucket := range s.buckets {
		n += len(bucket)
	}
	return n
}

// clone returns a deep copy of the schedule.
func (s *MaturitySchedule) clone() *MaturitySchedule {
	c := &MaturitySchedule{
		buckets: make(map[int64][]ImmatureEntry, len(s.buckets)),
		total:   s.total,
	}
	for height, bucket := range s.buckets {
		c.buckets[height] = append([]ImmatureEntry(nil), bucket...)
	}
	return c
}
