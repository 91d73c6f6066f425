// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sidechain

import (
	"bytes"
	"sort"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// Registry maps sidechain identifiers to their records.  It also indexes the
// maturity heights of every sidechain so connecting a block only visits the
// sidechains with value maturing at its height.
//
// The registry is not safe for concurrent mutation.  The ledger only mutates
// it by committing a registryView while holding its chain lock.
type Registry struct {
	sidechains map[chainhash.Hash]*Sidechain
	maturing   map[int64]map[chainhash.Hash]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sidechains: make(map[chainhash.Hash]*Sidechain),
		maturing:   make(map[int64]map[chainhash.Hash]struct{}),
	}
}

// Lookup returns the record of the sidechain with the provided id or nil.
// The returned record MUST NOT be modified.
func (r *Registry) Lookup(id *chainhash.Hash) *Sidechain {
	return r.sidechains[*id]
}

// Len returns the number of registered sidechains.
func (r *Registry) Len() int {
	return len(r.sidechains)
}

// Sidechains returns the records of all registered sidechains ordered by
// creation height and then identifier.  The returned records MUST NOT be
// modified.
func (r *Registry) Sidechains() []*Sidechain {
	scs := make([]*Sidechain, 0, len(r.sidechains))
	for _, sc := range r.sidechains {
		scs = append(scs, sc)
	}
	sort.Slice(scs, func(i, j int) bool {
		if scs[i].CreationHeight != scs[j].CreationHeight {
			return scs[i].CreationHeight < scs[j].CreationHeight
		}
		return bytes.Compare(scs[i].ID[:], scs[j].ID[:]) < 0
	})
	return scs
}

// maturingAt returns the ids of the sidechains with value maturing at height.
func (r *Registry) maturingAt(height int64) []chainhash.Hash {
	set := r.maturing[height]
	ids := make([]chainhash.Hash, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// unindex removes the maturity heights of the provided record.
func (r *Registry) unindex(sc *Sidechain) {
	for _, height := range sc.Immature.Heights() {
		set := r.maturing[height]
		delete(set, sc.ID)
		if len(set) == 0 {
			delete(r.maturing, height)
		}
	}
}

// index adds the maturity heights of the provided record.
func (r *Registry) index(sc *Sidechain) {
	for _, height := range sc.Immature.Heights() {
		set := r.maturing[height]
		if set == nil {
			set = make(map[chainhash.Hash]struct{})
			r.maturing[height] = set
		}
		set[sc.ID] = struct{}{}
	}
}

// put replaces the record of a sidechain keeping the maturity index in sync.
// A nil record removes the sidechain.
func (r *Registry) put(id chainhash.Hash, sc *Sidechain) {
	if old := r.sidechains[id]; old != nil {
		r.unindex(old)
	}
	if sc == nil {
		delete(r.sidechains, id)
		return
	}
	r.sidechains[id] = sc
	r.index(sc)
}

// commit applies every record staged in the view.
func (r *Registry) commit(view *registryView) {
	for id, sc := range view.entries {
		r.put(id, sc)
	}
}

// registryView stages modifications to the registry while a block is
// connected or disconnected.  Records are cloned the first time they are
// fetched for update so the registry itself is untouched until the view is
// committed, which keeps partially applied blocks unobservable.
type registryView struct {
	base    *Registry
	entries map[chainhash.Hash]*Sidechain
}

// newRegistryView returns an empty view over the provided registry.
func newRegistryView(base *Registry) *registryView {
	return &registryView{
		base:    base,
		entries: make(map[chainhash.Hash]*Sidechain),
	}
}

// lookup returns the current record of the sidechain with the provided id as
// seen through the view or nil.  The returned record MUST NOT be modified.
func (v *registryView) lookup(id *chainhash.Hash) *Sidechain {
	if sc, ok := v.entries[*id]; ok {
		return sc
	}
	return v.base.Lookup(id)
}

// fetchForUpdate returns a modifiable record of the sidechain with the
// provided id or nil.
func (v *registryView) fetchForUpdate(id *chainhash.Hash) *Sidechain {
	if sc, ok := v.entries[*id]; ok {
		return sc
	}
	sc := v.base.Lookup(id)
	if sc == nil {
		return nil
	}
	sc = sc.Clone()
	v.entries[*id] = sc
	return sc
}

// add stages a newly created sidechain.
func (v *registryView) add(sc *Sidechain) {
	v.entries[sc.ID] = sc
}

// remove stages the removal of a sidechain.
func (v *registryView) remove(id *chainhash.Hash) {
	v.entries[*id] = nil
}

// maturingAt returns the ids of the sidechains with value maturing at height
// as seen through the view.
func (v *registryView) maturingAt(height int64) []chainhash.Hash {
	ids := v.base.maturingAt(height)
	seen := make(map[chainhash.Hash]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for id, sc := range v.entries {
		if _, ok := seen[id]; ok || sc == nil {
			continue
		}
		if len(sc.Immature.Peek(height)) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
