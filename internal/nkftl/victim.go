package nkftl

import (
	"sort"

	"github.com/flashlab/nkftlsim/internal/flashconfig"
)

// VictimIterator yields candidate PBNs to clean, highest priority first
// (spec.md §4.7). The full priority order is computed once at
// construction time (a snapshot); cleaning each victim may suspend (it
// issues flash I/O) but the iterator itself never does, so re-entering it
// across suspensions is always safe — merges only ever remove blocks,
// never reorder what's left (spec.md §9, Cooperative suspension inside
// iterators).
type VictimIterator struct {
	items []PBN
	pos   int
}

// Next returns the next candidate PBN, or (0, false) when exhausted —
// the Go analogue of original_source's StopIteration.
func (v *VictimIterator) Next() (PBN, bool) {
	if v.pos >= len(v.items) {
		return 0, false
	}
	pbn := v.items[v.pos]
	v.pos++
	return pbn, true
}

// NewVictimDataBlocks yields every Data-tagged PBN with zero valid pages
// (spec.md §4.7) — these are reclaimable with a pure erase, no copies, so
// they are always cheaper than any log-block victim and are drained
// first by Chain. Order among them is arbitrary; PBN order keeps it
// deterministic for tests.
func NewVictimDataBlocks(pool *BlockPool, oob *OOB, geom flashconfig.Geometry) *VictimIterator {
	var items []PBN
	for _, pbn := range pool.AllBlocksWithTag(TagData) {
		if !oob.IsAnyPageValid(geom, pbn) {
			items = append(items, pbn)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return &VictimIterator{items: items}
}

// NewVictimLogBlocks yields every current block of every log group,
// ordered by last-used time ascending (lower = colder = higher priority
// to reclaim), per spec.md §4.7. This ordering is approximate by design —
// any stable total order is conformant as long as no group starves; ties
// break by PBN for determinism.
func NewVictimLogBlocks(logMap *LogMappingTable) *VictimIterator {
	type cand struct {
		pbn     PBN
		lastUse int
	}
	var cands []cand
	for _, g := range logMap.AllGroups() {
		for _, pbn := range g.CurrentBlocks() {
			cands = append(cands, cand{pbn: pbn, lastUse: g.LastUse(pbn)})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].lastUse != cands[j].lastUse {
			return cands[i].lastUse < cands[j].lastUse
		}
		return cands[i].pbn < cands[j].pbn
	})
	items := make([]PBN, len(cands))
	for i, c := range cands {
		items[i] = c.pbn
	}
	return &VictimIterator{items: items}
}

// Chain concatenates iterators in order, draining each before moving to
// the next — the Go analogue of itertools.chain(VictimDataBlocks(),
// VictimLogBlocks()) in original_source's try_gc.
func Chain(iters ...*VictimIterator) *VictimIterator {
	var items []PBN
	for _, it := range iters {
		items = append(items, it.items[it.pos:]...)
	}
	return &VictimIterator{items: items}
}
