package nkftl

import "github.com/flashlab/nkftlsim/internal/flashconfig"

// Tag is the block-pool partition a PBN currently belongs to (spec.md
// §3.2, §4.2).
type Tag uint8

const (
	TagFree Tag = iota
	TagLog
	TagData
)

func (t Tag) String() string {
	switch t {
	case TagFree:
		return "Free"
	case TagLog:
		return "Log"
	case TagData:
		return "Data"
	default:
		return "Unknown"
	}
}

// BlockPool partitions every device block into {Free, Log, Data}, tracked
// per channel. It is the generalization of the teacher's single-tag
// FreeManager (internal/storage/pager/freelist.go) to three tags and a
// channel dimension — allocation policy is otherwise the same idea: an
// in-memory set per (channel, tag), FIFO-acceptable pop.
type BlockPool struct {
	geom flashconfig.Geometry
	tag  []Tag            // tag[pbn]
	sets [][3]map[PBN]struct{} // sets[channel][tag] = set of pbns
}

// NewBlockPool creates a pool where every block starts Free.
func NewBlockPool(geom flashconfig.Geometry) *BlockPool {
	bp := &BlockPool{
		geom: geom,
		tag:  make([]Tag, geom.BlocksPerDev()),
		sets: make([][3]map[PBN]struct{}, geom.Channels),
	}
	for ch := 0; ch < geom.Channels; ch++ {
		for t := 0; t < 3; t++ {
			bp.sets[ch][t] = make(map[PBN]struct{})
		}
		base := ch * geom.BlocksPerChannel
		for i := 0; i < geom.BlocksPerChannel; i++ {
			pbn := PBN(base + i)
			bp.sets[ch][TagFree][pbn] = struct{}{}
		}
	}
	return bp
}

// TagOf returns the current tag of pbn.
func (bp *BlockPool) TagOf(pbn PBN) Tag { return bp.tag[pbn] }

// Pick returns one PBN tagged tag on the given channel (implementation-
// defined choice among the set, spec.md §4.2's "any free block" policy),
// or false if the channel has none.
func (bp *BlockPool) Pick(tag Tag, channel int) (PBN, bool) {
	for pbn := range bp.sets[channel][tag] {
		return pbn, true
	}
	return 0, false
}

// ChangeTag moves pbn from src to dst. It panics if pbn is not currently
// tagged src — callers are expected to know a block's tag before moving
// it (spec.md §4.2 invariants I3/I4/I7 depend on this never being wrong).
func (bp *BlockPool) ChangeTag(pbn PBN, src, dst Tag) {
	ch := bp.geom.ChannelOfBlock(int(pbn))
	if bp.tag[pbn] != src {
		panic("nkftl: block pool ChangeTag src mismatch")
	}
	delete(bp.sets[ch][src], pbn)
	bp.sets[ch][dst][pbn] = struct{}{}
	bp.tag[pbn] = dst
}

// PopFreeToLog pops a free block on channel and tags it Log, for use as a
// fresh log-group current block (spec.md §4.4's allocation algorithm).
func (bp *BlockPool) PopFreeToLog(channel int) (PBN, bool) {
	pbn, ok := bp.Pick(TagFree, channel)
	if !ok {
		return 0, false
	}
	bp.ChangeTag(pbn, TagFree, TagLog)
	return pbn, true
}

// PopFreeToData pops a free block on channel and tags it Data, used by
// full-merge destination allocation (spec.md §4.8).
func (bp *BlockPool) PopFreeToData(channel int) (PBN, bool) {
	pbn, ok := bp.Pick(TagFree, channel)
	if !ok {
		return 0, false
	}
	bp.ChangeTag(pbn, TagFree, TagData)
	return pbn, true
}

// FreeLog returns an emptied log block to Free (spec.md §3 Lifecycles).
func (bp *BlockPool) FreeLog(pbn PBN) { bp.ChangeTag(pbn, TagLog, TagFree) }

// FreeData returns an emptied data block to Free.
func (bp *BlockPool) FreeData(pbn PBN) { bp.ChangeTag(pbn, TagData, TagFree) }

// LogToData promotes a log block to Data, used by switch/partial merge
// (spec.md §4.8).
func (bp *BlockPool) LogToData(pbn PBN) { bp.ChangeTag(pbn, TagLog, TagData) }

// CountBlocks returns how many blocks carry tag, optionally restricted to
// a subset of channels (nil means all channels).
func (bp *BlockPool) CountBlocks(tag Tag, channels []int) int {
	if channels == nil {
		n := 0
		for ch := 0; ch < bp.geom.Channels; ch++ {
			n += len(bp.sets[ch][tag])
		}
		return n
	}
	n := 0
	for _, ch := range channels {
		n += len(bp.sets[ch][tag])
	}
	return n
}

// TotalUsedBlocks returns |Log|+|Data| across the whole device, the
// quantity the GC decider watermarks are computed against (spec.md §4.6).
func (bp *BlockPool) TotalUsedBlocks() int {
	return bp.CountBlocks(TagLog, nil) + bp.CountBlocks(TagData, nil)
}

// UsedRatio is TotalUsedBlocks / BlocksPerDev.
func (bp *BlockPool) UsedRatio() float64 {
	return float64(bp.TotalUsedBlocks()) / float64(bp.geom.BlocksPerDev())
}

// AllBlocksWithTag returns every PBN currently carrying tag, across all
// channels, for use by the victim iterators (spec.md §4.7).
func (bp *BlockPool) AllBlocksWithTag(tag Tag) []PBN {
	var out []PBN
	for ch := 0; ch < bp.geom.Channels; ch++ {
		for pbn := range bp.sets[ch][tag] {
			out = append(out, pbn)
		}
	}
	return out
}
