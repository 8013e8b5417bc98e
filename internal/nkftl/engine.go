package nkftl

import (
	"context"

	"github.com/flashlab/nkftlsim/internal/flash"
	"github.com/flashlab/nkftlsim/internal/flashconfig"
	"github.com/flashlab/nkftlsim/internal/nkftlconfig"
	"github.com/flashlab/nkftlsim/internal/telemetry"
)

// FTL is the facade spec.md §4.10/§4.11 describes: it owns every table
// (OOB, BlockPool, DataBlockMap, LogMappingTable), the translator, the GC
// decider, and the region lock pool, and is the only thing foreground I/O
// and the background garbage collector ever touch directly. Grounded on
// the teacher's PageBackend (internal/storage/pager/backend.go), which
// plays the same "owns every subordinate table, wraps them behind a small
// request surface" role for a B+Tree pager.
type FTL struct {
	Addr flashconfig.Geometry
	addr Addressing
	cfg  nkftlconfig.Config

	OOB     *OOB
	Pool    *BlockPool
	DataMap *DataBlockMap
	LogMap  *LogMappingTable
	Tr      *Translator
	Decider *GCDecider
	Locks   *RegionLockPool

	device flash.Device
	rec    telemetry.Recorder

	opCounter int // spec.md §9's logical clock, resolves VictimLogBlocks ordering
}

// New builds an FTL over a freshly erased device of the given geometry.
// device and rec are the external collaborators from spec.md §6.
func New(geom flashconfig.Geometry, cfg nkftlconfig.Config, device flash.Device, rec telemetry.Recorder) (*FTL, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	resolved, err := nkftlconfig.NewConfig(cfg, geom.PagesPerBlock)
	if err != nil {
		return nil, err
	}
	addr := Addressing{
		Geom:            geom,
		NBlocksInGroup:  resolved.NBlocksInDataGroup,
		NPagesPerRegion: resolved.NPagesPerRegion,
	}
	pool := NewBlockPool(geom)
	f := &FTL{
		Addr:    geom,
		addr:    addr,
		cfg:     resolved,
		OOB:     NewOOB(geom),
		Pool:    pool,
		DataMap: NewDataBlockMap(),
		LogMap:  NewLogMappingTable(addr, resolved.MaxBlocksInLogGroup, pool),
		Locks:   NewRegionLockPool(),
		device:  device,
		rec:     rec,
	}
	f.Tr = NewTranslator(addr, f.LogMap, f.DataMap)
	f.Decider = NewGCDecider(pool, geom.BlocksPerDev(), resolved.GCThresholdRatio, resolved.GCLowThresholdRatio,
		resolved.FreezeDetectorEnabled, 2*geom.PagesPerBlock)
	return f, nil
}

// nextOp advances and returns the logical operation counter used to stamp
// log-block "last used" markers (spec.md §9).
func (f *FTL) nextOp() int {
	f.opCounter++
	return f.opCounter
}

// eraseAndFreeLog erases pbn via the suspending erase_pbn_extent (spec.md
// §5, §6) and returns it to Free from the Log tag.
func (f *FTL) eraseAndFreeLog(ctx context.Context, pbn PBN, tag string) error {
	if err := f.device.EraseExtent(ctx, int(pbn), 1, tag); err != nil {
		return &FlashError{Op: "erase_pbn_extent", Err: err}
	}
	f.OOB.EraseBlock(f.Addr, pbn)
	f.Pool.FreeLog(pbn)
	return nil
}

// eraseAndFreeData erases pbn via the suspending erase_pbn_extent and
// returns it to Free from the Data tag.
func (f *FTL) eraseAndFreeData(ctx context.Context, pbn PBN, tag string) error {
	if err := f.device.EraseExtent(ctx, int(pbn), 1, tag); err != nil {
		return &FlashError{Op: "erase_pbn_extent", Err: err}
	}
	f.OOB.EraseBlock(f.Addr, pbn)
	f.Pool.FreeData(pbn)
	return nil
}

// popFreeDataAnyChannel tries every channel, preferring preferredChannel
// first, returning the first Free->Data block it can tag. Full merge
// needs this because its destination isn't pinned to one channel the way
// a log group's current blocks are (spec.md §4.8).
func (f *FTL) popFreeDataAnyChannel(preferredChannel int) (PBN, bool) {
	if pbn, ok := f.Pool.PopFreeToData(preferredChannel); ok {
		return pbn, true
	}
	for ch := 0; ch < f.Addr.Channels; ch++ {
		if ch == preferredChannel {
			continue
		}
		if pbn, ok := f.Pool.PopFreeToData(ch); ok {
			return pbn, true
		}
	}
	return 0, false
}
