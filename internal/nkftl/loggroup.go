package nkftl

import "github.com/flashlab/nkftlsim/internal/nkftlconfig"

// logCurrentBlock is one of a LogGroup's current blocks: a log-tagged PBN
// with a next-free-offset cursor (spec.md §3.4, §4.4).
type logCurrentBlock struct {
	pbn     PBN
	channel int
	nextOff int // next page offset to program; NAND requires ascending order
	lastUse int // logical op counter, resolves spec.md §9's ordering question
}

// LogGroup holds one data group's current log blocks and its LPN->PPN
// page map (spec.md §3.4, §4.4). Allocation style — round-robin across
// channels, promote a free block when a channel's current blocks are
// exhausted — is the nkftl2.py next_ppns algorithm expressed the way the
// teacher's Pager.AllocPage/FreePage (internal/storage/pager/pager.go)
// expresses allocation: a small mutex-free struct mutated synchronously,
// with allocation failure signaled by a short return rather than an error
// (the caller decides whether that means "trigger GC").
type LogGroup struct {
	dgn       DGN
	addr      Addressing
	maxBlocks int
	pool      *BlockPool

	current    []*logCurrentBlock
	byPBN      map[PBN]*logCurrentBlock
	pageMap    map[LPN]PPN
	nextChanIx int // round-robin cursor over geom.Channels
}

// NewLogGroup creates an empty log group for data group dgn.
func NewLogGroup(dgn DGN, addr Addressing, maxBlocks int, pool *BlockPool) *LogGroup {
	return &LogGroup{
		dgn:       dgn,
		addr:      addr,
		maxBlocks: maxBlocks,
		pool:      pool,
		byPBN:     make(map[PBN]*logCurrentBlock),
		pageMap:   make(map[LPN]PPN),
	}
}

// CurrentBlocks returns the PBNs of this group's current log blocks, in
// allocation order.
func (lg *LogGroup) CurrentBlocks() []PBN {
	out := make([]PBN, len(lg.current))
	for i, cb := range lg.current {
		out[i] = cb.pbn
	}
	return out
}

// NCurrentBlocks returns |current blocks|, checked against K by invariant
// I6.
func (lg *LogGroup) NCurrentBlocks() int { return len(lg.current) }

// LpnToPpn looks up lpn in this group's page map (spec.md §4.4).
func (lg *LogGroup) LpnToPpn(lpn LPN) (PPN, bool) {
	ppn, ok := lg.pageMap[lpn]
	return ppn, ok
}

// AddMapping installs lpn->ppn, overwriting any prior mapping. ppn's PBN
// must be one of this group's current blocks (spec.md §4.4's
// precondition on add_mapping); violating it is a caller bug.
func (lg *LogGroup) AddMapping(lpn LPN, ppn PPN) {
	pbn, _ := lg.addr.PageToBlockOff(ppn)
	if _, ok := lg.byPBN[pbn]; !ok {
		panic("nkftl: AddMapping ppn not in a current log block of this group")
	}
	lg.pageMap[lpn] = ppn
}

// RemoveLpn deletes lpn's page-map entry, if any (used by discard and by
// merge cleanup).
func (lg *LogGroup) RemoveLpn(lpn LPN) {
	delete(lg.pageMap, lpn)
}

// RemoveLogBlock removes every LPN whose PPN lies in pbn's page range
// from the page map and drops pbn from the current-blocks list (spec.md
// §4.4).
func (lg *LogGroup) RemoveLogBlock(pbn PBN) {
	cb, ok := lg.byPBN[pbn]
	if !ok {
		return
	}
	start := lg.addr.BlockOffToPage(pbn, 0)
	for off := 0; off < lg.addr.Geom.PagesPerBlock; off++ {
		ppn := PPN(int(start) + off)
		for lpn, mapped := range lg.pageMap {
			if mapped == ppn {
				delete(lg.pageMap, lpn)
			}
		}
	}
	delete(lg.byPBN, pbn)
	for i, c := range lg.current {
		if c == cb {
			lg.current = append(lg.current[:i], lg.current[i+1:]...)
			break
		}
	}
}

// touch updates a current block's last-used marker, resolving spec.md
// §9's open question in favor of the FTL's logical op counter rather
// than wall-clock time.
func (lg *LogGroup) touch(pbn PBN, opCounter int) {
	if cb, ok := lg.byPBN[pbn]; ok {
		cb.lastUse = opCounter
	}
}

// LastUse returns a current block's last-used marker (for VictimLogBlocks
// ordering, spec.md §4.7).
func (lg *LogGroup) LastUse(pbn PBN) int {
	if cb, ok := lg.byPBN[pbn]; ok {
		return cb.lastUse
	}
	return 0
}

// PageMap returns a copy of this group's LPN->PPN page map, for the
// invariant self-check (spec.md §4.4, §8).
func (lg *LogGroup) PageMap() map[LPN]PPN {
	out := make(map[LPN]PPN, len(lg.pageMap))
	for k, v := range lg.pageMap {
		out[k] = v
	}
	return out
}

// NextPpns implements spec.md §4.4's allocation algorithm: round-robin
// over channels, requesting min(remaining, stripeUnit) pages per step
// (stripeUnit == nkftlconfig.StripeInfinity means "take as much as this
// channel can give before moving on"); within a channel, consume free
// offsets of existing current blocks in order, promoting a fresh free
// block when exhausted and under the K cap. Stops early once every
// channel is exhausted ("dead"); a short return is the caller's signal to
// fall back to clean_data_group or OutOfSpace.
func (lg *LogGroup) NextPpns(n int, stripeUnit int, channels int, opCounter int) []PPN {
	if n <= 0 {
		return nil
	}
	var result []PPN
	remaining := n
	dead := make(map[int]bool, channels)
	attempts := 0
	maxAttempts := channels*2 + n // generous bound; dead-set check is the real stop condition
	for remaining > 0 && len(dead) < channels && attempts < maxAttempts {
		ch := lg.nextChanIx
		lg.nextChanIx = (lg.nextChanIx + 1) % channels
		attempts++
		if dead[ch] {
			continue
		}
		request := remaining
		if stripeUnit != nkftlconfig.StripeInfinity && stripeUnit < request {
			request = stripeUnit
		}
		got := lg.allocFromChannel(ch, request, opCounter)
		result = append(result, got...)
		remaining -= len(got)
		if len(got) < request {
			dead[ch] = true
		}
	}
	return result
}

// allocFromChannel satisfies up to `want` pages from channel ch, first
// from existing current blocks' free offsets, then by promoting fresh
// free blocks (up to the group's K cap). Returns fewer than `want` pages
// if the channel cannot supply more.
func (lg *LogGroup) allocFromChannel(ch int, want int, opCounter int) []PPN {
	var out []PPN
	for want > 0 {
		cb := lg.channelCurrentBlockWithRoom(ch)
		if cb == nil {
			if len(lg.current) >= lg.maxBlocks {
				break
			}
			pbn, ok := lg.pool.PopFreeToLog(ch)
			if !ok {
				break
			}
			cb = &logCurrentBlock{pbn: pbn, channel: ch, lastUse: opCounter}
			lg.current = append(lg.current, cb)
			lg.byPBN[pbn] = cb
		}
		for want > 0 && cb.nextOff < lg.addr.Geom.PagesPerBlock {
			ppn := lg.addr.BlockOffToPage(cb.pbn, cb.nextOff)
			cb.nextOff++
			cb.lastUse = opCounter
			out = append(out, ppn)
			want--
		}
	}
	return out
}

func (lg *LogGroup) channelCurrentBlockWithRoom(ch int) *logCurrentBlock {
	for _, cb := range lg.current {
		if cb.channel == ch && cb.nextOff < lg.addr.Geom.PagesPerBlock {
			return cb
		}
	}
	return nil
}
