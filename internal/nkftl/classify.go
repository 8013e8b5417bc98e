package nkftl

// mergeKind is the classification of a log block before cleaning
// (spec.md §4.8).
type mergeKind uint8

const (
	mergeEmpty mergeKind = iota
	mergeSwitch
	mergePartial
	mergeFull
)

// classification is the cached result of classifying a log block, used
// both to choose which merge to run and, for partial merge, to re-check
// the same (lbn, k) pair still holds after the region lock is acquired
// (spec.md §4.8's re-check discipline).
type classification struct {
	kind mergeKind
	lbn  LBN // meaningful for mergeSwitch/mergePartial
	k    int // meaningful for mergePartial: first k offsets are valid
}

// classifyLogBlock implements spec.md §4.8's merge classification:
//
//   - Empty: no Valid pages.
//   - Switch-mergable: every page Valid and the LPN sequence is exactly
//     (lbn*P, ..., lbn*P+P-1) for some lbn.
//   - Partial-mergable: the first k pages (1<=k<P) are Valid with the
//     aligned sequence (lbn*P, ..., lbn*P+k-1) and pages k..P-1 are all
//     Erased.
//   - Full merge: anything else.
func classifyLogBlock(addr Addressing, oob *OOB, pbn PBN) classification {
	P := addr.Geom.PagesPerBlock
	start := addr.BlockOffToPage(pbn, 0)

	if !oob.IsAnyPageValid(addr.Geom, pbn) {
		return classification{kind: mergeEmpty}
	}

	firstLpn, ok := oob.LpnOf(start)
	if !ok || !oob.IsPageValid(start) {
		// First page isn't a live, aligned page: cannot be switch- or
		// partial-mergable (both require offset 0 to be Valid and
		// aligned), so whatever validity exists elsewhere makes this a
		// full merge.
		return classification{kind: mergeFull}
	}
	lbn := LBN(int(firstLpn) / P)
	if firstLpn != addr.FirstLPNOfLBN(lbn) {
		return classification{kind: mergeFull}
	}

	// Try switch: every offset Valid and aligned.
	isSwitch := true
	for off := 0; off < P; off++ {
		ppn := PPN(int(start) + off)
		lpn, has := oob.LpnOf(ppn)
		if !oob.IsPageValid(ppn) || !has || lpn != addr.FirstLPNOfLBN(lbn)+LPN(off) {
			isSwitch = false
			break
		}
	}
	if isSwitch {
		return classification{kind: mergeSwitch, lbn: lbn, k: P}
	}

	// Try partial: leading k Valid+aligned offsets, the rest Erased.
	k := 0
	for off := 0; off < P; off++ {
		ppn := PPN(int(start) + off)
		lpn, has := oob.LpnOf(ppn)
		if oob.IsPageValid(ppn) && has && lpn == addr.FirstLPNOfLBN(lbn)+LPN(off) {
			k++
			continue
		}
		break
	}
	if k >= 1 && k < P {
		rest := true
		for off := k; off < P; off++ {
			if !oob.IsPageErased(PPN(int(start) + off)) {
				rest = false
				break
			}
		}
		if rest {
			return classification{kind: mergePartial, lbn: lbn, k: k}
		}
	}

	return classification{kind: mergeFull}
}
