package nkftl

// Location identifies which mapping table resolved an LPN (spec.md §4.5).
type Location uint8

const (
	NotFound Location = iota
	InLogBlock
	InDataBlock
)

// Translator provides the unified lpn_to_ppn lookup over the Log Mapping
// Table and the Data-Block Mapping Table (spec.md §4.5). It consults the
// log mapping first, since a log-block write always shadows the logical
// block's data-block copy until a merge reconciles them. Callers must
// additionally check OOB validity — a "found" result here only means a
// mapping exists, not that the page is live.
type Translator struct {
	addr    Addressing
	logMap  *LogMappingTable
	dataMap *DataBlockMap
}

// NewTranslator builds a Translator over the given mapping tables.
func NewTranslator(addr Addressing, logMap *LogMappingTable, dataMap *DataBlockMap) *Translator {
	return &Translator{addr: addr, logMap: logMap, dataMap: dataMap}
}

// LpnToPpn resolves lpn to a physical page and the table that produced
// it, or (0, NotFound, false) on a miss in both tables.
func (tr *Translator) LpnToPpn(lpn LPN) (ppn PPN, loc Location, found bool) {
	if ppn, ok := tr.logMap.LpnToPpn(lpn); ok {
		return ppn, InLogBlock, true
	}
	lbn := tr.addr.LBNOfLPN(lpn)
	if pbn, ok := tr.dataMap.LbnToPbn(lbn); ok {
		off := tr.addr.OffsetInBlock(lpn)
		return tr.addr.BlockOffToPage(pbn, off), InDataBlock, true
	}
	return 0, NotFound, false
}
