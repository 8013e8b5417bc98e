// Package flashsim is an in-memory flash.Device (spec.md §6): one page
// array for the whole device, with access serialized per channel by one
// lock per channel, the way the teacher's
// ConcurrencyManager serializes writers per resource
// (internal/storage/concurrency.go) rather than behind one global lock,
// so concurrent FTL operations against different channels don't contend.
package flashsim

import (
	"context"
	"fmt"
	"sync"

	"github.com/flashlab/nkftlsim/internal/flash"
	"github.com/flashlab/nkftlsim/internal/flashconfig"
)

// Device is an in-memory flash simulator. It tracks nothing about timing
// or wear — spec.md §1 explicitly leaves device realism out of the FTL
// core's scope — only enough bookkeeping (page size, per-channel
// serialization) to exercise the nkftl package's suspension points.
type Device struct {
	geom     flashconfig.Geometry
	pageSize int

	chMu  []sync.Mutex // one serializing lock per channel
	pages [][]byte     // pages[ppn]
}

// New creates a Device with every page initialized to pageSize zero bytes.
func New(geom flashconfig.Geometry, pageSize int) *Device {
	d := &Device{
		geom:     geom,
		pageSize: pageSize,
		chMu:     make([]sync.Mutex, geom.Channels),
		pages:    make([][]byte, geom.PagesPerDev()),
	}
	for i := range d.pages {
		d.pages[i] = make([]byte, pageSize)
	}
	return d
}

func (d *Device) channelOfPage(ppn int) int {
	block, _ := d.geom.PageToBlockOff(ppn)
	return d.geom.ChannelOfBlock(block)
}

// PageRead returns a copy of ppn's current contents.
func (d *Device) PageRead(ppn int, tag string) ([]byte, error) {
	ch := d.channelOfPage(ppn)
	d.chMu[ch].Lock()
	defer d.chMu[ch].Unlock()
	if ppn < 0 || ppn >= len(d.pages) {
		return nil, fmt.Errorf("flashsim: page %d out of range", ppn)
	}
	out := make([]byte, len(d.pages[ppn]))
	copy(out, d.pages[ppn])
	return out, nil
}

// PageWrite programs ppn with data, zero-padded or truncated to pageSize.
// A nil data is a valid "hole" write — partial/full merge use it to
// satisfy NAND's sequential-program rule for pages with nothing live to
// copy.
func (d *Device) PageWrite(ppn int, tag string, data []byte) error {
	ch := d.channelOfPage(ppn)
	d.chMu[ch].Lock()
	defer d.chMu[ch].Unlock()
	if ppn < 0 || ppn >= len(d.pages) {
		return fmt.Errorf("flashsim: page %d out of range", ppn)
	}
	buf := make([]byte, d.pageSize)
	copy(buf, data)
	d.pages[ppn] = buf
	return nil
}

// BlockErase zeroes every page in pbn's range.
func (d *Device) BlockErase(pbn int, tag string) error {
	ch := d.geom.ChannelOfBlock(pbn)
	d.chMu[ch].Lock()
	defer d.chMu[ch].Unlock()
	start := d.geom.BlockOffToPage(pbn, 0)
	for off := 0; off < d.geom.PagesPerBlock; off++ {
		d.pages[start+off] = make([]byte, d.pageSize)
	}
	return nil
}

// RWPpns performs a batched read or write, one page at a time, honoring
// ctx cancellation between pages — the suspension point spec.md §5
// expects the device to offer callers that want to bound a merge's
// flash-I/O latency. For op == OpWrite, data[i] (nil allowed) is what
// gets programmed into ppns[i]; for op == OpRead, data is ignored.
func (d *Device) RWPpns(ctx context.Context, ppns []int, op flash.Op, data [][]byte, tag string) ([][]byte, error) {
	out := make([][]byte, len(ppns))
	for i, ppn := range ppns {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		switch op {
		case flash.OpRead:
			buf, err := d.PageRead(ppn, tag)
			if err != nil {
				return nil, err
			}
			out[i] = buf
		case flash.OpWrite:
			var buf []byte
			if data != nil {
				buf = data[i]
			}
			if err := d.PageWrite(ppn, tag, buf); err != nil {
				return nil, err
			}
		}
	}
	if op == flash.OpWrite {
		return nil, nil
	}
	return out, nil
}

// EraseExtent erases n consecutive blocks starting at pbn.
func (d *Device) EraseExtent(ctx context.Context, pbn int, n int, tag string) error {
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.BlockErase(pbn+i, tag); err != nil {
			return err
		}
	}
	return nil
}

var _ flash.Device = (*Device)(nil)
