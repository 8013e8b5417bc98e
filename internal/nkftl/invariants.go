package nkftl

import "fmt"

// CheckInvariants is the self-check boundary spec.md §7 describes:
// scanning the FTL's current tables for a violation of I1-I7 (spec.md §3)
// and returning an *InvariantViolationError naming the first one found.
// It is O(device size) and is not on any hot path — callers that want
// self-checks at this level of confidence call it themselves, typically
// between operations in a test, at a point where no merge or write is
// in flight. Invariant identifiers are as in spec.md §3:
//
//	I1  at most one Valid PPN per LPN across the whole device
//	I2  a Valid PPN's owning LPN translates back to exactly that PPN
//	I3  |Free|+|Log|+|Data| == blocks_per_dev
//	I4  every PBN in the data-block map's image is tagged Data, and its
//	    Valid pages belong to the mapped LBN at the same offset
//	I5  every PPN in a log group's page map lies within one of its
//	    current blocks
//	I6  every log group's current-block count is <= K
//	I7  every log group's current block is tagged Log
func (f *FTL) CheckInvariants() error {
	if err := f.checkI1I2(); err != nil {
		return err
	}
	if err := f.checkI3(); err != nil {
		return err
	}
	if err := f.checkI4(); err != nil {
		return err
	}
	return f.checkI5I6I7()
}

func (f *FTL) checkI1I2() error {
	seen := make(map[LPN]PPN)
	for i := 0; i < f.Addr.PagesPerDev(); i++ {
		ppn := PPN(i)
		if !f.OOB.IsPageValid(ppn) {
			continue
		}
		lpn, ok := f.OOB.LpnOf(ppn)
		if !ok {
			return &InvariantViolationError{Invariant: "I2",
				Detail: fmt.Sprintf("ppn %d is Valid but has no reverse mapping", ppn)}
		}
		if prior, dup := seen[lpn]; dup {
			return &InvariantViolationError{Invariant: "I1",
				Detail: fmt.Sprintf("lpn %d has two Valid ppns: %d and %d", lpn, prior, ppn)}
		}
		seen[lpn] = ppn
		gotPpn, _, found := f.Tr.LpnToPpn(lpn)
		if !found || gotPpn != ppn {
			return &InvariantViolationError{Invariant: "I2",
				Detail: fmt.Sprintf("lpn %d is Valid at ppn %d but the translator resolves it to ppn %d (found=%v)", lpn, ppn, gotPpn, found)}
		}
	}
	return nil
}

func (f *FTL) checkI3() error {
	total := f.Pool.CountBlocks(TagFree, nil) + f.Pool.CountBlocks(TagLog, nil) + f.Pool.CountBlocks(TagData, nil)
	if total != f.Addr.BlocksPerDev() {
		return &InvariantViolationError{Invariant: "I3",
			Detail: fmt.Sprintf("free+log+data = %d, want blocks_per_dev = %d", total, f.Addr.BlocksPerDev())}
	}
	return nil
}

func (f *FTL) checkI4() error {
	for lbn, pbn := range f.DataMap.All() {
		if f.Pool.TagOf(pbn) != TagData {
			return &InvariantViolationError{Invariant: "I4",
				Detail: fmt.Sprintf("data map has lbn %d -> pbn %d, but pbn is tagged %v", lbn, pbn, f.Pool.TagOf(pbn))}
		}
		for off := 0; off < f.Addr.PagesPerBlock; off++ {
			ppn := f.addr.BlockOffToPage(pbn, off)
			if !f.OOB.IsPageValid(ppn) {
				continue
			}
			wantLpn := f.addr.FirstLPNOfLBN(lbn) + LPN(off)
			gotLpn, ok := f.OOB.LpnOf(ppn)
			if !ok || gotLpn != wantLpn {
				return &InvariantViolationError{Invariant: "I4",
					Detail: fmt.Sprintf("pbn %d offset %d is Valid but reverse-maps to lpn %v, want %d (lbn %d)", pbn, off, gotLpn, wantLpn, lbn)}
			}
		}
	}
	return nil
}

func (f *FTL) checkI5I6I7() error {
	for _, g := range f.LogMap.AllGroups() {
		current := g.CurrentBlocks()
		if len(current) > f.cfg.MaxBlocksInLogGroup {
			return &InvariantViolationError{Invariant: "I6",
				Detail: fmt.Sprintf("dgn %d has %d current blocks, K = %d", g.dgn, len(current), f.cfg.MaxBlocksInLogGroup)}
		}
		currentSet := make(map[PBN]bool, len(current))
		for _, pbn := range current {
			if f.Pool.TagOf(pbn) != TagLog {
				return &InvariantViolationError{Invariant: "I7",
					Detail: fmt.Sprintf("dgn %d current block %d is tagged %v, not Log", g.dgn, pbn, f.Pool.TagOf(pbn))}
			}
			currentSet[pbn] = true
		}
		for lpn, ppn := range g.PageMap() {
			pbn, _ := f.addr.PageToBlockOff(ppn)
			if !currentSet[pbn] {
				return &InvariantViolationError{Invariant: "I5",
					Detail: fmt.Sprintf("dgn %d page map has lpn %d -> ppn %d, whose block %d is not a current block", g.dgn, lpn, ppn, pbn)}
			}
		}
	}
	return nil
}
