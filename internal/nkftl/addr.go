// Package nkftl implements the N+K Flash Translation Layer core described
// in spec.md: OOB tracking, block-pool accounting, the two mapping
// tables, the translator, the watermark-driven GC decider, victim
// iterators, the three merge algorithms, region locking, and the FTL
// facade itself. The package mirrors the file-per-concern layout of the
// teacher's pager package (pager.go, freelist.go, gc.go, catalog.go, ...)
// but none of the on-disk framing survives: flash storage lives behind
// the flash.Device interface (internal/flash), so nkftl only ever
// manipulates in-memory bookkeeping structures.
package nkftl

import "github.com/flashlab/nkftlsim/internal/flashconfig"

// LPN, PPN, LBN, PBN are the four address spaces from spec.md §3.
type (
	LPN int
	PPN int
	LBN int
	PBN int
)

// DGN is a data-group number.
type DGN int

// RegionID identifies a span of NPagesPerRegion logical pages, the unit
// the region lock pool (regionlock.go) keys on.
type RegionID int

// Addressing mirrors spec.md §3's address functions and original_source's
// Config.nkftl_data_group_number_of_lpn / region_id_of_lpn derivations.
type Addressing struct {
	Geom            flashconfig.Geometry
	NBlocksInGroup  int // N
	NPagesPerRegion int // R
}

// DGNOfLPN returns the data group number containing lpn.
func (a Addressing) DGNOfLPN(lpn LPN) DGN {
	return DGN((int(lpn) / a.Geom.PagesPerBlock) / a.NBlocksInGroup)
}

// DGNOfLBN returns the data group number containing a logical block.
func (a Addressing) DGNOfLBN(lbn LBN) DGN {
	return DGN(int(lbn) / a.NBlocksInGroup)
}

// RegionOfLPN returns the region containing lpn.
func (a Addressing) RegionOfLPN(lpn LPN) RegionID {
	return RegionID(int(lpn) / a.NPagesPerRegion)
}

// LBNOfLPN returns the logical block number containing lpn.
func (a Addressing) LBNOfLPN(lpn LPN) LBN {
	return LBN(int(lpn) / a.Geom.PagesPerBlock)
}

// FirstLPNOfLBN returns lbn*P, the first LPN of logical block lbn.
func (a Addressing) FirstLPNOfLBN(lbn LBN) LPN {
	return LPN(int(lbn) * a.Geom.PagesPerBlock)
}

// OffsetInBlock returns lpn's offset within its logical block.
func (a Addressing) OffsetInBlock(lpn LPN) int {
	return int(lpn) % a.Geom.PagesPerBlock
}

// PageToBlockOff splits a PPN into its PBN and in-block offset.
func (a Addressing) PageToBlockOff(ppn PPN) (PBN, int) {
	b, o := a.Geom.PageToBlockOff(int(ppn))
	return PBN(b), o
}

// BlockOffToPage is the inverse of PageToBlockOff.
func (a Addressing) BlockOffToPage(pbn PBN, off int) PPN {
	return PPN(a.Geom.BlockOffToPage(int(pbn), off))
}

// MaxLogPagesInGroup is K*P, the most log pages a single data group's log
// blocks can hold at once (original_source's
// nkftl_max_n_log_pages_in_data_group).
func (a Addressing) MaxLogPagesInGroup(maxBlocksInLogGroup int) int {
	return maxBlocksInLogGroup * a.Geom.PagesPerBlock
}

// Extent is a contiguous span of logical pages, as used by read_ext,
// write_ext and discard_ext (spec.md §6).
type Extent struct {
	LPNStart LPN
	LPNCount int
}

// LPNs returns the extent expanded into individual LPNs.
func (e Extent) LPNs() []LPN {
	out := make([]LPN, e.LPNCount)
	for i := range out {
		out[i] = e.LPNStart + LPN(i)
	}
	return out
}

// SplitByRegion splits an extent into one sub-extent per region it spans,
// as required by write_ext/read_ext/discard_ext (spec.md §4.10).
func (a Addressing) SplitByRegion(e Extent) []Extent {
	if e.LPNCount <= 0 {
		return nil
	}
	var out []Extent
	start := e.LPNStart
	remaining := e.LPNCount
	for remaining > 0 {
		region := a.RegionOfLPN(start)
		regionEndLPN := LPN((int(region) + 1) * a.NPagesPerRegion)
		n := int(regionEndLPN - start)
		if n > remaining {
			n = remaining
		}
		out = append(out, Extent{LPNStart: start, LPNCount: n})
		start += LPN(n)
		remaining -= n
	}
	return out
}
