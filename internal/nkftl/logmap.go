package nkftl

// LogMappingTable is a container of LogGroups keyed by data-group number,
// created lazily (spec.md §3.5). Grounded on the teacher's Catalog
// lazy-create-on-first-use shape (OpenCatalog creates the tree only when
// the superblock has no root yet).
type LogMappingTable struct {
	addr      Addressing
	maxBlocks int
	pool      *BlockPool
	groups    map[DGN]*LogGroup
}

// NewLogMappingTable creates an empty table.
func NewLogMappingTable(addr Addressing, maxBlocks int, pool *BlockPool) *LogMappingTable {
	return &LogMappingTable{addr: addr, maxBlocks: maxBlocks, pool: pool, groups: make(map[DGN]*LogGroup)}
}

// GroupFor returns the LogGroup for dgn, creating it on first access.
func (t *LogMappingTable) GroupFor(dgn DGN) *LogGroup {
	g, ok := t.groups[dgn]
	if !ok {
		g = NewLogGroup(dgn, t.addr, t.maxBlocks, t.pool)
		t.groups[dgn] = g
	}
	return g
}

// Peek returns the LogGroup for dgn without creating it.
func (t *LogMappingTable) Peek(dgn DGN) (*LogGroup, bool) {
	g, ok := t.groups[dgn]
	return g, ok
}

// LpnToPpn looks up lpn across whichever group owns its data group.
func (t *LogMappingTable) LpnToPpn(lpn LPN) (PPN, bool) {
	dgn := t.addr.DGNOfLPN(lpn)
	g, ok := t.groups[dgn]
	if !ok {
		return 0, false
	}
	return g.LpnToPpn(lpn)
}

// AllGroups returns every LogGroup currently created, for the victim
// iterator and invariant checks (spec.md §4.7, §8).
func (t *LogMappingTable) AllGroups() []*LogGroup {
	out := make([]*LogGroup, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, g)
	}
	return out
}

// GroupOwning returns the LogGroup that currently lists pbn as one of its
// current blocks, if any — used by the garbage collector to update the
// right group when a block is reclaimed (spec.md §4.8).
func (t *LogMappingTable) GroupOwning(pbn PBN) (*LogGroup, bool) {
	for _, g := range t.groups {
		if _, ok := g.byPBN[pbn]; ok {
			return g, true
		}
	}
	return nil, false
}
