package nkftl

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/flashlab/nkftlsim/internal/flashconfig"
	"github.com/flashlab/nkftlsim/internal/flashsim"
	"github.com/flashlab/nkftlsim/internal/nkftlconfig"
	"github.com/flashlab/nkftlsim/internal/telemetry"
)

func newTestFTL(t *testing.T) (*FTL, flashconfig.Geometry) {
	t.Helper()
	geom := flashconfig.Geometry{PagesPerBlock: 4, BlocksPerChannel: 32, Channels: 2}
	cfg := nkftlconfig.Config{
		NBlocksInDataGroup:  2,
		MaxBlocksInLogGroup: 2,
		GCThresholdRatio:    0.8,
		GCLowThresholdRatio: 0.4,
		StripeSize:          nkftlconfig.StripeInfinity,
	}
	device := flashsim.New(geom, 32)
	rec := telemetry.NewLogRecorder(false)
	f, err := New(geom, cfg, device, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f, geom
}

func TestFTL_WriteThenReadRoundTrips(t *testing.T) {
	f, _ := newTestFTL(t)
	ctx := context.Background()

	if err := f.LBAWrite(ctx, LPN(3), []byte("hello"), "test"); err != nil {
		t.Fatalf("LBAWrite: %v", err)
	}
	buf, err := f.LBARead(ctx, LPN(3), "test")
	if err != nil {
		t.Fatalf("LBARead: %v", err)
	}
	if string(buf[:5]) != "hello" {
		t.Fatalf("read back %q, want %q", buf[:5], "hello")
	}
}

func TestFTL_UnwrittenPageReadsNil(t *testing.T) {
	f, _ := newTestFTL(t)
	buf, err := f.LBARead(context.Background(), LPN(0), "test")
	if err != nil {
		t.Fatalf("LBARead: %v", err)
	}
	if buf != nil {
		t.Fatalf("expected nil for an unwritten page, got %v", buf)
	}
}

func TestFTL_DiscardInvalidatesPage(t *testing.T) {
	f, _ := newTestFTL(t)
	ctx := context.Background()
	if err := f.LBAWrite(ctx, LPN(1), []byte("x"), "test"); err != nil {
		t.Fatalf("LBAWrite: %v", err)
	}
	if err := f.LBADiscard(ctx, LPN(1), "test"); err != nil {
		t.Fatalf("LBADiscard: %v", err)
	}
	buf, err := f.LBARead(ctx, LPN(1), "test")
	if err != nil {
		t.Fatalf("LBARead: %v", err)
	}
	if buf != nil {
		t.Fatalf("expected nil after discard, got %v", buf)
	}
}

// TestFTL_SwitchMergeReclaimsWholeLogicalBlock writes every page of one
// logical block in order with a single WriteExt call, so the whole block
// lands in one log block (separate single-page writes would round-robin
// across the two channels), which classify_test.go's own logic recognizes
// as switch-mergable, and confirms the logical block gets a data block and
// its data survives being promoted from Log to Data.
func TestFTL_SwitchMergeReclaimsWholeLogicalBlock(t *testing.T) {
	f, geom := newTestFTL(t)
	ctx := context.Background()
	lbn := LBN(0)
	base := f.addr.FirstLPNOfLBN(lbn)

	bufs := make([][]byte, geom.PagesPerBlock)
	for off := range bufs {
		bufs[off] = []byte(fmt.Sprintf("p%d", off))
	}
	if err := f.WriteExt(ctx, Extent{LPNStart: base, LPNCount: geom.PagesPerBlock}, bufs, "test"); err != nil {
		t.Fatalf("WriteExt: %v", err)
	}

	// Force the classification/merge path directly rather than waiting on
	// watermarks, the way a targeted unit test should.
	dgn := f.addr.DGNOfLBN(lbn)
	group := f.LogMap.GroupFor(dgn)
	for _, pbn := range group.CurrentBlocks() {
		cls := classifyLogBlock(f.addr, f.OOB, pbn)
		if cls.kind == mergeSwitch && cls.lbn == lbn {
			if err := f.cleanBlock(ctx, pbn, "test"); err != nil {
				t.Fatalf("cleanBlock: %v", err)
			}
		}
	}

	if _, ok := f.DataMap.LbnToPbn(lbn); !ok {
		t.Fatal("expected lbn to have a data block after switch merge")
	}
	for off := 0; off < geom.PagesPerBlock; off++ {
		want := fmt.Sprintf("p%d", off)
		buf, err := f.LBARead(ctx, base+LPN(off), "test")
		if err != nil {
			t.Fatalf("read offset %d: %v", off, err)
		}
		if string(buf[:len(want)]) != want {
			t.Fatalf("offset %d = %q, want %q", off, buf[:len(want)], want)
		}
	}
}

// TestFTL_RandomizedIntegrity runs 2000 random writes, reads and discards
// over 32 LPNs, so the write path keeps filling its data groups' log
// blocks and falls back to data-group cleaning (merges) many times; at
// this occupancy the background try_gc sweep never passes its high
// watermark. It checks every read against a shadow map — the integrity property spec.md §8
// describes. It also runs CheckInvariants at intervals between operations,
// the I1-I7 self-check boundary spec.md §7/§8 calls for, never mid-write
// (WriteExt's region lock is released again before LBAWrite returns, so
// the check always sees a quiescent table state).
func TestFTL_RandomizedIntegrity(t *testing.T) {
	f, _ := newTestFTL(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	const numLPNs = 32
	shadow := make(map[LPN]string)

	for i := 0; i < 2000; i++ {
		lpn := LPN(rng.Intn(numLPNs))
		switch rng.Intn(10) {
		case 0, 1:
			if err := f.LBADiscard(ctx, lpn, "fuzz"); err != nil {
				t.Fatalf("op %d: discard %d: %v", i, lpn, err)
			}
			delete(shadow, lpn)
		case 2, 3, 4:
			buf, err := f.LBARead(ctx, lpn, "fuzz")
			if err != nil {
				t.Fatalf("op %d: read %d: %v", i, lpn, err)
			}
			if want, ok := shadow[lpn]; ok {
				if string(buf[:len(want)]) != want {
					t.Fatalf("op %d: integrity violation at lpn %d: got %q want %q", i, lpn, buf, want)
				}
			}
		default:
			data := fmt.Sprintf("v%d.%d", lpn, i)
			if err := f.LBAWrite(ctx, lpn, []byte(data), "fuzz"); err != nil {
				t.Fatalf("op %d: write %d: %v", i, lpn, err)
			}
			shadow[lpn] = data
		}
		if i%97 == 0 {
			if err := f.CheckInvariants(); err != nil {
				t.Fatalf("op %d: %v", i, err)
			}
		}
	}
	if err := f.CheckInvariants(); err != nil {
		t.Fatalf("final: %v", err)
	}
}
