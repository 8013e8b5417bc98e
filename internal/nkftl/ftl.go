package nkftl

import (
	"context"
	"fmt"
)

// ReadExt implements read_ext (spec.md §4.10/§4.11): resolve every LPN in
// ext through the translator and OOB validity, a region at a time. A
// logical page that was never written, or was discarded, reads back as a
// nil slice — matching original_source's "return None for holes" rather
// than inventing zero-fill.
func (f *FTL) ReadExt(ctx context.Context, ext Extent, tag string) ([][]byte, error) {
	out := make([][]byte, 0, ext.LPNCount)
	for _, sub := range f.addr.SplitByRegion(ext) {
		region := f.addr.RegionOfLPN(sub.LPNStart)
		release, err := f.Locks.Acquire(ctx, region)
		if err != nil {
			return nil, err
		}
		err = func() error {
			defer release()
			for i := 0; i < sub.LPNCount; i++ {
				lpn := sub.LPNStart + LPN(i)
				ppn, _, found := f.Tr.LpnToPpn(lpn)
				if !found || !f.OOB.IsPageValid(ppn) {
					out = append(out, nil)
					continue
				}
				buf, err := f.device.PageRead(int(ppn), tag)
				if err != nil {
					return &FlashError{Op: "page_read", Err: err}
				}
				out = append(out, buf)
			}
			return nil
		}()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WriteExt implements write_ext (spec.md §4.10/§4.11): allocate fresh log
// pages for every LPN in ext (falling back to clean_data_group once per
// region if a data group's log group can't supply enough on its own),
// program them, and shadow whatever previously held each LPN. Background
// GC (try_gc) runs once after the whole extent lands, outside any region
// lock, so it can take the region locks it needs for its own merges.
func (f *FTL) WriteExt(ctx context.Context, ext Extent, data [][]byte, tag string) error {
	if len(data) != ext.LPNCount {
		return fmt.Errorf("nkftl: write_ext got %d buffers for %d pages", len(data), ext.LPNCount)
	}
	idx := 0
	for _, sub := range f.addr.SplitByRegion(ext) {
		region := f.addr.RegionOfLPN(sub.LPNStart)
		release, err := f.Locks.Acquire(ctx, region)
		if err != nil {
			return err
		}
		bufs := data[idx : idx+sub.LPNCount]
		dgn := f.addr.DGNOfLPN(sub.LPNStart)
		group := f.LogMap.GroupFor(dgn)
		ppns, release, err := f.allocLogPages(ctx, group, dgn, sub.LPNCount, tag, region, release)
		if err != nil {
			release()
			return err
		}
		err = func() error {
			defer release()
			for i := 0; i < sub.LPNCount; i++ {
				lpn := sub.LPNStart + LPN(i)
				ppn := ppns[i]
				if err := f.device.PageWrite(int(ppn), tag, bufs[i]); err != nil {
					return &FlashError{Op: "page_write", Err: err}
				}
				prevPpn, _, hadOld := f.Tr.LpnToPpn(lpn)
				f.OOB.Remap(lpn, prevPpn, hadOld, ppn)
				group.AddMapping(lpn, ppn)
			}
			return nil
		}()
		if err != nil {
			return err
		}
		idx += sub.LPNCount
	}
	return f.tryGC(ctx, tag)
}

// DiscardExt implements discard_ext (spec.md §4.10/§4.11): invalidate
// every live page in ext without allocating anything. A discarded LPN that
// was log-resident also drops out of its log group's page map so later
// merge classification sees the hole it left behind.
func (f *FTL) DiscardExt(ctx context.Context, ext Extent, tag string) error {
	for _, sub := range f.addr.SplitByRegion(ext) {
		region := f.addr.RegionOfLPN(sub.LPNStart)
		release, err := f.Locks.Acquire(ctx, region)
		if err != nil {
			return err
		}
		for i := 0; i < sub.LPNCount; i++ {
			lpn := sub.LPNStart + LPN(i)
			ppn, loc, found := f.Tr.LpnToPpn(lpn)
			if !found || !f.OOB.IsPageValid(ppn) {
				continue
			}
			f.OOB.WipePPN(ppn)
			if loc == InLogBlock {
				dgn := f.addr.DGNOfLPN(lpn)
				f.LogMap.GroupFor(dgn).RemoveLpn(lpn)
			}
		}
		release()
	}
	return nil
}

// LBARead, LBAWrite and LBADiscard are the single-page convenience forms
// of read_ext/write_ext/discard_ext (spec.md §4.11's lba_read/lba_write/
// lba_discard).
func (f *FTL) LBARead(ctx context.Context, lpn LPN, tag string) ([]byte, error) {
	bufs, err := f.ReadExt(ctx, Extent{LPNStart: lpn, LPNCount: 1}, tag)
	if err != nil {
		return nil, err
	}
	return bufs[0], nil
}

func (f *FTL) LBAWrite(ctx context.Context, lpn LPN, data []byte, tag string) error {
	return f.WriteExt(ctx, Extent{LPNStart: lpn, LPNCount: 1}, [][]byte{data}, tag)
}

func (f *FTL) LBADiscard(ctx context.Context, lpn LPN, tag string) error {
	return f.DiscardExt(ctx, Extent{LPNStart: lpn, LPNCount: 1}, tag)
}

// TryGC runs one background collection sweep (spec.md §4.8). It is safe to
// call from a periodic heartbeat (internal/sched) as well as after every
// WriteExt; ShouldStart() makes most calls an immediate no-op.
func (f *FTL) TryGC(ctx context.Context, tag string) error {
	return f.tryGC(ctx, tag)
}

// allocLogPages satisfies an n-page allocation request from group,
// forcing a clean_data_group pass and retrying once if the group can't
// supply enough pages on the first attempt (spec.md §4.4, §4.8). Per
// spec.md §4.10/§4.11's write_ext sequencing, a clean_data_group pass
// never runs while the caller's own region lock is held: cleaning this
// group's current blocks very often means merging pages that belong to
// the region already locked for this write, which would deadlock against
// itself. So on under-delivery allocLogPages releases the lock it was
// handed, runs clean_data_group, and reacquires before retrying —
// returning the (possibly new) release function the caller must still
// call exactly once.
func (f *FTL) allocLogPages(ctx context.Context, group *LogGroup, dgn DGN, n int, tag string, region RegionID, release func()) ([]PPN, func(), error) {
	ppns := group.NextPpns(n, f.cfg.StripeSize, f.Addr.Channels, f.nextOp())
	if len(ppns) >= n {
		return ppns[:n], release, nil
	}

	release()
	cleanErr := f.cleanDataGroup(ctx, dgn, tag)
	newRelease, acqErr := f.Locks.Acquire(ctx, region)
	if acqErr != nil {
		return nil, func() {}, acqErr
	}
	if cleanErr != nil {
		return nil, newRelease, cleanErr
	}

	more := group.NextPpns(n-len(ppns), f.cfg.StripeSize, f.Addr.Channels, f.nextOp())
	ppns = append(ppns, more...)
	if len(ppns) < n {
		return nil, newRelease, &OutOfSpaceError{Op: "write_ext"}
	}
	return ppns, newRelease, nil
}
