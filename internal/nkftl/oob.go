package nkftl

import "github.com/flashlab/nkftlsim/internal/flashconfig"

// PageState is the OOB state bitmap value for one physical page
// (spec.md §3.1, §4.1). There is deliberately no checksum field here —
// spec.md's Non-goals exclude data checksumming.
type PageState uint8

const (
	Erased PageState = iota
	Valid
	Invalid
)

func (s PageState) String() string {
	switch s {
	case Erased:
		return "Erased"
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// NoLPN is the 'NA' sentinel spec.md §4.1 asks LpnsOfBlock to return for
// pages that have never been written since their last erase.
const NoLPN LPN = -1

// OOB is the out-of-band area: a per-page state bitmap plus the PPN->LPN
// reverse map (spec.md §3.1, §4.1). It holds no locks of its own — all
// mutation happens inside a region-lock critical section (spec.md §5).
type OOB struct {
	geom   flashconfig.Geometry
	states []PageState
	rev    map[PPN]LPN // defined iff the page has been written since erase
}

// NewOOB allocates an OOB area for a device with the given geometry. All
// pages start Erased.
func NewOOB(geom flashconfig.Geometry) *OOB {
	return &OOB{
		geom:   geom,
		states: make([]PageState, geom.PagesPerDev()),
		rev:    make(map[PPN]LPN),
	}
}

// Remap marks newPPN Valid, records its reverse mapping to lpn, and — if
// hasOld is set — marks oldPPN Invalid. The reverse entry for
// oldPPN is left in place; it is only removed at erase_block (spec.md
// §4.1).
func (o *OOB) Remap(lpn LPN, oldPPN PPN, hasOld bool, newPPN PPN) {
	o.states[newPPN] = Valid
	o.rev[newPPN] = lpn
	if hasOld {
		o.states[oldPPN] = Invalid
	}
}

// WipePPN marks ppn Invalid without touching the reverse map, used by
// discard (spec.md §4.1).
func (o *OOB) WipePPN(ppn PPN) {
	o.states[ppn] = Invalid
}

// EraseBlock marks every page of pbn Erased and deletes their reverse
// entries (spec.md §4.1, §3 Lifecycles).
func (o *OOB) EraseBlock(geom flashconfig.Geometry, pbn PBN) {
	start := geom.BlockOffToPage(int(pbn), 0)
	for off := 0; off < geom.PagesPerBlock; off++ {
		ppn := PPN(start + off)
		o.states[ppn] = Erased
		delete(o.rev, ppn)
	}
}

// IsPageErased, IsPageValid, IsPageInvalid are the OOB queries from
// spec.md §4.1.
func (o *OOB) IsPageErased(ppn PPN) bool  { return o.states[ppn] == Erased }
func (o *OOB) IsPageValid(ppn PPN) bool   { return o.states[ppn] == Valid }
func (o *OOB) IsPageInvalid(ppn PPN) bool { return o.states[ppn] == Invalid }

// State returns the raw OOB state of ppn.
func (o *OOB) State(ppn PPN) PageState { return o.states[ppn] }

// LpnOf returns the reverse-mapped LPN for ppn, or (NoLPN, false) if the
// page has never been written since its last erase.
func (o *OOB) LpnOf(ppn PPN) (LPN, bool) {
	lpn, ok := o.rev[ppn]
	if !ok {
		return NoLPN, false
	}
	return lpn, true
}

// IsAnyPageValid reports whether any page in pbn's range is Valid
// (spec.md §4.1; used by merge classification and empty-block detection).
func (o *OOB) IsAnyPageValid(geom flashconfig.Geometry, pbn PBN) bool {
	start := geom.BlockOffToPage(int(pbn), 0)
	for off := 0; off < geom.PagesPerBlock; off++ {
		if o.states[PPN(start+off)] == Valid {
			return true
		}
	}
	return false
}

// BlockValidRatio returns the fraction of pbn's pages that are Valid
// (spec.md §4.1). The victim iterators do not use it; they test
// IsAnyPageValid instead.
func (o *OOB) BlockValidRatio(geom flashconfig.Geometry, pbn PBN) float64 {
	start := geom.BlockOffToPage(int(pbn), 0)
	valid := 0
	for off := 0; off < geom.PagesPerBlock; off++ {
		if o.states[PPN(start+off)] == Valid {
			valid++
		}
	}
	return float64(valid) / float64(geom.PagesPerBlock)
}

// LpnsOfBlock returns, for every page in pbn, either its reverse-mapped
// LPN or NoLPN if no reverse entry exists (spec.md §4.1's 'NA' sentinel).
func (o *OOB) LpnsOfBlock(geom flashconfig.Geometry, pbn PBN) []LPN {
	start := geom.BlockOffToPage(int(pbn), 0)
	out := make([]LPN, geom.PagesPerBlock)
	for off := 0; off < geom.PagesPerBlock; off++ {
		ppn := PPN(start + off)
		if lpn, ok := o.rev[ppn]; ok {
			out[off] = lpn
		} else {
			out[off] = NoLPN
		}
	}
	return out
}
