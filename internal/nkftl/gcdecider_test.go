package nkftl

import (
	"testing"

	"github.com/flashlab/nkftlsim/internal/flashconfig"
)

func newTestPool(t *testing.T, blocksPerChannel, channels int) (*BlockPool, int) {
	t.Helper()
	geom := flashconfig.Geometry{PagesPerBlock: 4, BlocksPerChannel: blocksPerChannel, Channels: channels}
	return NewBlockPool(geom), geom.BlocksPerDev()
}

// TestGCDecider_WatermarkThresholds is spec.md §8 boundary scenario 6: with
// high=0.8/low=0.7, allocating log blocks until used exceeds the high
// watermark must flip ShouldStart, and freeing blocks back (standing in for
// what a merge's reclamation would do) until ShouldStop must land used
// blocks back under the low watermark.
func TestGCDecider_WatermarkThresholds(t *testing.T) {
	pool, total := newTestPool(t, 16, 1)
	decider := NewGCDecider(pool, total, 0.8, 0.7, false, 0)

	if decider.ShouldStart() {
		t.Fatal("fresh pool: ShouldStart must be false")
	}

	high := 0.8 * float64(total)
	var allocated []PBN
	for float64(pool.TotalUsedBlocks()) <= high {
		pbn, ok := pool.PopFreeToLog(0)
		if !ok {
			t.Fatal("pool ran out of free blocks before crossing the high watermark")
		}
		allocated = append(allocated, pbn)
	}
	if !decider.ShouldStart() {
		t.Fatalf("used %d of %d blocks (> %.1f): expected ShouldStart true", pool.TotalUsedBlocks(), total, high)
	}

	low := 0.7 * float64(total)
	for !decider.ShouldStop() {
		if len(allocated) == 0 {
			t.Fatal("ran out of allocated blocks to free before ShouldStop became true")
		}
		pbn := allocated[len(allocated)-1]
		allocated = allocated[:len(allocated)-1]
		pool.FreeLog(pbn)
	}
	if float64(pool.TotalUsedBlocks()) >= low {
		t.Fatalf("after ShouldStop, used blocks = %d, want < %.1f", pool.TotalUsedBlocks(), low)
	}
}

// TestGCDecider_FreezeDetectorDisabledByDefault resolves spec.md §9's open
// question in code: with the freeze detector off, ShouldStop must never
// flip true from stalled usage alone, only from crossing the low watermark.
func TestGCDecider_FreezeDetectorDisabledByDefault(t *testing.T) {
	pool, total := newTestPool(t, 16, 1)
	decider := NewGCDecider(pool, total, 0.8, 0.7, false, 2)

	for float64(pool.TotalUsedBlocks()) <= 0.8*float64(total) {
		if _, ok := pool.PopFreeToLog(0); !ok {
			t.Fatal("ran out of free blocks")
		}
	}
	for i := 0; i < 10; i++ {
		if decider.ShouldStop() {
			t.Fatalf("iteration %d: ShouldStop flipped true with no progress despite the freeze detector being disabled", i)
		}
	}
}

// TestGCDecider_FreezeDetectorStopsStalledSweep exercises the freeze
// detector when explicitly enabled: usage held constant for more than
// freezeThreshold consecutive checks must force ShouldStop, independent of
// the low watermark.
func TestGCDecider_FreezeDetectorStopsStalledSweep(t *testing.T) {
	pool, total := newTestPool(t, 16, 1)
	decider := NewGCDecider(pool, total, 0.8, 0.7, true, 2)

	for float64(pool.TotalUsedBlocks()) <= 0.8*float64(total) {
		if _, ok := pool.PopFreeToLog(0); !ok {
			t.Fatal("ran out of free blocks")
		}
	}
	decider.ResetFreezeDetector()

	stopped := false
	for i := 0; i < 6; i++ {
		if decider.ShouldStop() {
			stopped = true
			break
		}
	}
	if !stopped {
		t.Fatal("expected the freeze detector to force ShouldStop after repeated no-progress checks")
	}
}

// TestGCDecider_HighMustExceedLow documents the config invariant NewGCDecider
// enforces with a panic rather than an error, since nkftlconfig.NewConfig is
// supposed to have already rejected this (spec.md §6).
func TestGCDecider_HighMustExceedLow(t *testing.T) {
	pool, total := newTestPool(t, 16, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when the high watermark does not exceed the low watermark")
		}
	}()
	NewGCDecider(pool, total, 0.5, 0.5, false, 0)
}
