package nkftl

import (
	"context"

	"github.com/flashlab/nkftlsim/internal/flash"
	"github.com/flashlab/nkftlsim/internal/telemetry"
)

// cleanBlock dispatches a log block to the merge its current classification
// calls for (spec.md §4.8). It is safe to call repeatedly: every merge path
// re-checks its classification after acquiring the region lock and is a
// no-op if a concurrent pass already reclaimed the block.
func (f *FTL) cleanBlock(ctx context.Context, pbn PBN, tag string) error {
	if f.Pool.TagOf(pbn) != TagLog {
		return nil // already reclaimed by a prior pass
	}
	cls := classifyLogBlock(f.addr, f.OOB, pbn)
	switch cls.kind {
	case mergeEmpty:
		if group, ok := f.LogMap.GroupOwning(pbn); ok {
			group.RemoveLogBlock(pbn)
		}
		return f.eraseAndFreeLog(ctx, pbn, tag)
	case mergeSwitch:
		return f.switchMerge(ctx, pbn, cls, tag)
	case mergePartial:
		return f.partialMerge(ctx, pbn, cls, tag)
	default:
		return f.fullMerge(ctx, pbn, tag)
	}
}

// switchMerge handles the cheapest case: a log block that is a verbatim,
// aligned copy of a whole logical block. The block is simply promoted from
// Log to Data in place, no copies required (spec.md §4.8).
func (f *FTL) switchMerge(ctx context.Context, pbn PBN, cls classification, tag string) error {
	region := f.addr.RegionOfLPN(f.addr.FirstLPNOfLBN(cls.lbn))
	release, err := f.Locks.Acquire(ctx, region)
	if err != nil {
		return err
	}
	defer release()

	recheck := classifyLogBlock(f.addr, f.OOB, pbn)
	if recheck.kind != mergeSwitch || recheck.lbn != cls.lbn {
		return nil // a concurrent pass already handled this block
	}
	lbn := cls.lbn
	dgn := f.addr.DGNOfLBN(lbn)
	group := f.LogMap.GroupFor(dgn)

	if oldPbn, ok := f.DataMap.LbnToPbn(lbn); ok {
		if err := f.eraseAndFreeData(ctx, oldPbn, tag); err != nil {
			return err
		}
	}
	group.RemoveLogBlock(pbn)
	f.Pool.LogToData(pbn)
	f.DataMap.Add(lbn, pbn)
	f.rec.CountMe(telemetry.CategoryGC, telemetry.EventSwitchMerge)
	return nil
}

// mergeCopyPlan describes, for one destination offset of a merge target,
// where its live source page (if any) currently is. Built once per merge so
// the read and write halves of the copy can each go through flash.Device's
// batched RWPpns in a single suspension instead of a page at a time
// (spec.md §5's rw_ppns suspension point).
type mergeCopyPlan struct {
	lpn     LPN
	destPpn PPN
	srcPpn  PPN
	loc     Location
	hasSrc  bool
}

// buildMergeCopyPlan resolves the live source (if any) for every lpn in
// lpns against its matching destPpn in destPpns.
func (f *FTL) buildMergeCopyPlan(lpns []LPN, destPpns []PPN) []mergeCopyPlan {
	plan := make([]mergeCopyPlan, len(lpns))
	for i, lpn := range lpns {
		ppn, loc, found := f.Tr.LpnToPpn(lpn)
		hasSrc := found && f.OOB.IsPageValid(ppn)
		plan[i] = mergeCopyPlan{lpn: lpn, destPpn: destPpns[i], srcPpn: ppn, loc: loc, hasSrc: hasSrc}
	}
	return plan
}

// runMergeCopyPlan executes plan's reads and writes as two batched RWPpns
// calls — one gathering every live source page, one programming every
// destination offset in ascending order (holes included, satisfying NAND's
// sequential-program constraint per spec.md §9) — without a suspension
// between each page. It touches no OOB or mapping-table state; the calling
// merge applies that bookkeeping once the copy has landed.
func (f *FTL) runMergeCopyPlan(ctx context.Context, plan []mergeCopyPlan, tag string) error {
	var srcPpns []int
	for _, c := range plan {
		if c.hasSrc {
			srcPpns = append(srcPpns, int(c.srcPpn))
		}
	}
	var bufs [][]byte
	if len(srcPpns) > 0 {
		var err error
		bufs, err = f.device.RWPpns(ctx, srcPpns, flash.OpRead, nil, tag)
		if err != nil {
			return &FlashError{Op: "rw_ppns_read", Err: err}
		}
	}

	destPpns := make([]int, len(plan))
	destData := make([][]byte, len(plan))
	bi := 0
	for i, c := range plan {
		destPpns[i] = int(c.destPpn)
		if c.hasSrc {
			destData[i] = bufs[bi]
			bi++
		}
	}
	if _, err := f.device.RWPpns(ctx, destPpns, flash.OpWrite, destData, tag); err != nil {
		return &FlashError{Op: "rw_ppns_write", Err: err}
	}
	return nil
}

// partialMerge completes a log block that holds the first k pages of a
// logical block, copying the remaining P-k pages in from wherever they
// currently live (another log block, or the logical block's old data
// block) so the block can be promoted to Data (spec.md §4.8).
func (f *FTL) partialMerge(ctx context.Context, pbn PBN, cls classification, tag string) error {
	region := f.addr.RegionOfLPN(f.addr.FirstLPNOfLBN(cls.lbn))
	release, err := f.Locks.Acquire(ctx, region)
	if err != nil {
		return err
	}
	defer release()

	recheck := classifyLogBlock(f.addr, f.OOB, pbn)
	if recheck.kind != mergePartial || recheck.lbn != cls.lbn || recheck.k != cls.k {
		return nil
	}
	lbn, k := cls.lbn, cls.k
	dgn := f.addr.DGNOfLBN(lbn)
	group := f.LogMap.GroupFor(dgn)
	P := f.Addr.PagesPerBlock

	var lpns []LPN
	var destPpns []PPN
	for off := k; off < P; off++ {
		lpns = append(lpns, f.addr.FirstLPNOfLBN(lbn)+LPN(off))
		destPpns = append(destPpns, f.addr.BlockOffToPage(pbn, off))
	}
	plan := f.buildMergeCopyPlan(lpns, destPpns)
	if err := f.runMergeCopyPlan(ctx, plan, tag); err != nil {
		return err
	}

	for _, c := range plan {
		if !c.hasSrc {
			// No live copy anywhere: this page of lbn was never written, or
			// was discarded. The hole write already landed; just mark it.
			f.OOB.WipePPN(c.destPpn)
			continue
		}
		f.OOB.Remap(c.lpn, c.srcPpn, true, c.destPpn)
		srcPbn, _ := f.addr.PageToBlockOff(c.srcPpn)
		if c.loc == InLogBlock {
			group.RemoveLpn(c.lpn)
			if srcPbn != pbn && !f.OOB.IsAnyPageValid(f.Addr, srcPbn) {
				group.RemoveLogBlock(srcPbn)
				if err := f.eraseAndFreeLog(ctx, srcPbn, tag); err != nil {
					return err
				}
			}
		} else if !f.OOB.IsAnyPageValid(f.Addr, srcPbn) {
			f.DataMap.RemoveByPbn(srcPbn)
			if err := f.eraseAndFreeData(ctx, srcPbn, tag); err != nil {
				return err
			}
		}
	}

	if oldPbn, ok := f.DataMap.LbnToPbn(lbn); ok {
		if err := f.eraseAndFreeData(ctx, oldPbn, tag); err != nil {
			return err
		}
	}
	group.RemoveLogBlock(pbn)
	f.Pool.LogToData(pbn)
	f.DataMap.Add(lbn, pbn)
	f.rec.CountMe(telemetry.CategoryGC, telemetry.EventPartialMerge)
	return nil
}

// fullMerge reclaims a log block that doesn't fit the switch or partial
// shape by aggregating every logical block it holds a live page for
// (spec.md §4.8's aggregate_logical_block, run once per distinct LBN
// touched).
func (f *FTL) fullMerge(ctx context.Context, pbn PBN, tag string) error {
	lpns := f.OOB.LpnsOfBlock(f.Addr, pbn)
	start := f.addr.BlockOffToPage(pbn, 0)
	touched := make(map[LBN]bool)
	for off, lpn := range lpns {
		if lpn == NoLPN {
			continue
		}
		if !f.OOB.IsPageValid(PPN(int(start) + off)) {
			continue
		}
		touched[f.addr.LBNOfLPN(lpn)] = true
	}
	for lbn := range touched {
		if err := f.aggregateLogicalBlock(ctx, lbn, tag); err != nil {
			return err
		}
	}

	// aggregateLogicalBlock reclaims any source block that becomes fully
	// invalid along the way, which may already include pbn itself.
	if f.Pool.TagOf(pbn) == TagLog && !f.OOB.IsAnyPageValid(f.Addr, pbn) {
		if group, ok := f.LogMap.GroupOwning(pbn); ok {
			group.RemoveLogBlock(pbn)
		}
		if err := f.eraseAndFreeLog(ctx, pbn, tag); err != nil {
			return err
		}
	}
	f.rec.CountMe(telemetry.CategoryGC, telemetry.EventFullMerge)
	return nil
}

// aggregateLogicalBlock rewrites lbn's full P pages into a fresh data
// block, pulling each page from whichever table currently holds its live
// copy (spec.md §4.8). It is idempotent: if lbn no longer has any
// log-resident page by the time the region lock is acquired, it's a no-op.
func (f *FTL) aggregateLogicalBlock(ctx context.Context, lbn LBN, tag string) error {
	region := f.addr.RegionOfLPN(f.addr.FirstLPNOfLBN(lbn))
	release, err := f.Locks.Acquire(ctx, region)
	if err != nil {
		return err
	}
	defer release()

	P := f.Addr.PagesPerBlock
	stillHasLog := false
	for off := 0; off < P; off++ {
		lpn := f.addr.FirstLPNOfLBN(lbn) + LPN(off)
		if _, ok := f.LogMap.LpnToPpn(lpn); ok {
			stillHasLog = true
			break
		}
	}
	if !stillHasLog {
		return nil
	}

	dgn := f.addr.DGNOfLBN(lbn)
	group := f.LogMap.GroupFor(dgn)

	oldPbn, hadOld := f.DataMap.LbnToPbn(lbn)
	preferredChannel := 0
	if hadOld {
		preferredChannel = f.Addr.ChannelOfBlock(int(oldPbn))
	}
	dst, ok := f.popFreeDataAnyChannel(preferredChannel)
	if !ok {
		return &OutOfSpaceError{Op: "aggregate_logical_block"}
	}

	var lpns []LPN
	var destPpns []PPN
	for off := 0; off < P; off++ {
		lpns = append(lpns, f.addr.FirstLPNOfLBN(lbn)+LPN(off))
		destPpns = append(destPpns, f.addr.BlockOffToPage(dst, off))
	}
	plan := f.buildMergeCopyPlan(lpns, destPpns)
	if err := f.runMergeCopyPlan(ctx, plan, tag); err != nil {
		return err
	}

	for _, c := range plan {
		if !c.hasSrc {
			f.OOB.WipePPN(c.destPpn)
			continue
		}
		f.OOB.Remap(c.lpn, c.srcPpn, true, c.destPpn)
		if c.loc == InLogBlock {
			group.RemoveLpn(c.lpn)
			srcPbn, _ := f.addr.PageToBlockOff(c.srcPpn)
			if !f.OOB.IsAnyPageValid(f.Addr, srcPbn) {
				group.RemoveLogBlock(srcPbn)
				if err := f.eraseAndFreeLog(ctx, srcPbn, tag); err != nil {
					return err
				}
			}
		}
	}

	if hadOld {
		if err := f.eraseAndFreeData(ctx, oldPbn, tag); err != nil {
			return err
		}
	}
	f.DataMap.Add(lbn, dst)
	return nil
}

// cleanDataGroup forcibly reclaims every current log block of dgn's log
// group, used as next_ppns's fallback when a group can't allocate enough
// fresh pages on its own (spec.md §4.4, §4.8). It runs over a snapshot of
// the group's current blocks taken before any merge starts, since merging
// one block can change what's current for the rest.
func (f *FTL) cleanDataGroup(ctx context.Context, dgn DGN, tag string) error {
	group := f.LogMap.GroupFor(dgn)
	snapshot := group.CurrentBlocks()
	for _, pbn := range snapshot {
		if err := f.cleanBlock(ctx, pbn, tag); err != nil {
			return err
		}
	}
	return nil
}

// tryGC runs the background sweep from spec.md §4.8/§4.6: if used blocks
// are over the high watermark, drain empty data blocks first (pure erases,
// no copies) then log-block victims, oldest first, until usage falls below
// the low watermark or the victim iterator runs dry.
func (f *FTL) tryGC(ctx context.Context, tag string) error {
	f.Decider.ResetFreezeDetector()
	if !f.Decider.ShouldStart() {
		return nil
	}
	it := Chain(NewVictimDataBlocks(f.Pool, f.OOB, f.Addr), NewVictimLogBlocks(f.LogMap))
	for !f.Decider.ShouldStop() {
		pbn, ok := it.Next()
		if !ok {
			f.rec.CountMe(telemetry.CategoryIt, telemetry.EventStopIteration)
			break
		}
		if f.Pool.TagOf(pbn) == TagData {
			f.DataMap.RemoveByPbn(pbn)
			if err := f.eraseAndFreeData(ctx, pbn, tag); err != nil {
				return err
			}
			continue
		}
		if err := f.cleanBlock(ctx, pbn, tag); err != nil {
			return err
		}
	}
	return nil
}
