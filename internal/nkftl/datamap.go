package nkftl

// DataBlockMap is the partial bijection LBN<->PBN for in-place data
// blocks (spec.md §3.3, §4.3). Design note §9 calls for a pair of
// mutually consistent hash maps with atomic paired updates rather than a
// single directional map with linear reverse search — grounded on the
// teacher's Catalog (internal/storage/pager/catalog.go), generalized from
// its one-directional name->root lookup into a true bidirectional table.
type DataBlockMap struct {
	fwd map[LBN]PBN
	rev map[PBN]LBN
}

// NewDataBlockMap returns an empty mapping table.
func NewDataBlockMap() *DataBlockMap {
	return &DataBlockMap{fwd: make(map[LBN]PBN), rev: make(map[PBN]LBN)}
}

// LbnToPbn looks up the PBN currently holding lbn.
func (m *DataBlockMap) LbnToPbn(lbn LBN) (PBN, bool) {
	pbn, ok := m.fwd[lbn]
	return pbn, ok
}

// PbnToLbn looks up the LBN a PBN is the data block for.
func (m *DataBlockMap) PbnToLbn(pbn PBN) (LBN, bool) {
	lbn, ok := m.rev[pbn]
	return lbn, ok
}

// Add installs lbn->pbn, overriding any existing mapping for lbn. The
// caller is responsible for reclaiming the PBN that was displaced
// (spec.md §4.3) — Add only reports it back.
func (m *DataBlockMap) Add(lbn LBN, pbn PBN) (displaced PBN, hadDisplaced bool) {
	if old, ok := m.fwd[lbn]; ok {
		delete(m.rev, old)
		displaced, hadDisplaced = old, true
	}
	m.fwd[lbn] = pbn
	m.rev[pbn] = lbn
	return displaced, hadDisplaced
}

// RemoveByLbn deletes the mapping for lbn, if any.
func (m *DataBlockMap) RemoveByLbn(lbn LBN) {
	if pbn, ok := m.fwd[lbn]; ok {
		delete(m.fwd, lbn)
		delete(m.rev, pbn)
	}
}

// RemoveByPbn deletes the mapping for pbn, if any.
func (m *DataBlockMap) RemoveByPbn(pbn PBN) {
	if lbn, ok := m.rev[pbn]; ok {
		delete(m.rev, pbn)
		delete(m.fwd, lbn)
	}
}

// Len returns the number of mapped logical blocks (the "data-block map
// image" size used by the quiescent-state invariant in spec.md §8).
func (m *DataBlockMap) Len() int { return len(m.fwd) }

// All returns a copy of the LBN->PBN mapping, for the invariant self-check
// (spec.md §8). Callers must not mutate it.
func (m *DataBlockMap) All() map[LBN]PBN {
	out := make(map[LBN]PBN, len(m.fwd))
	for k, v := range m.fwd {
		out[k] = v
	}
	return out
}
