package nkftl

import "testing"

func TestBlockPool_EveryBlockStartsFree(t *testing.T) {
	geom := testGeom()
	bp := NewBlockPool(geom)
	if got := bp.CountBlocks(TagFree, nil); got != geom.BlocksPerDev() {
		t.Fatalf("CountBlocks(Free) = %d, want %d", got, geom.BlocksPerDev())
	}
	if got := bp.TotalUsedBlocks(); got != 0 {
		t.Fatalf("TotalUsedBlocks = %d, want 0", got)
	}
}

func TestBlockPool_PopFreeToLogThenFreeLog(t *testing.T) {
	geom := testGeom()
	bp := NewBlockPool(geom)

	pbn, ok := bp.PopFreeToLog(0)
	if !ok {
		t.Fatal("expected a free block on channel 0")
	}
	if bp.TagOf(pbn) != TagLog {
		t.Fatalf("TagOf(%d) = %v, want TagLog", pbn, bp.TagOf(pbn))
	}
	bp.FreeLog(pbn)
	if bp.TagOf(pbn) != TagFree {
		t.Fatalf("TagOf(%d) = %v, want TagFree after FreeLog", pbn, bp.TagOf(pbn))
	}
}

func TestBlockPool_ChangeTagPanicsOnTagMismatch(t *testing.T) {
	geom := testGeom()
	bp := NewBlockPool(geom)
	pbn, _ := bp.PopFreeToLog(0)

	defer func() {
		if recover() == nil {
			t.Fatal("expected ChangeTag to panic on tag mismatch")
		}
	}()
	bp.ChangeTag(pbn, TagData, TagFree) // pbn is actually TagLog
}

func TestBlockPool_LogToDataPromotion(t *testing.T) {
	geom := testGeom()
	bp := NewBlockPool(geom)
	pbn, _ := bp.PopFreeToLog(0)
	bp.LogToData(pbn)
	if bp.TagOf(pbn) != TagData {
		t.Fatalf("TagOf(%d) = %v, want TagData", pbn, bp.TagOf(pbn))
	}
}
