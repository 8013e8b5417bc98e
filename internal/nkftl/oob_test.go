package nkftl

import (
	"testing"

	"github.com/flashlab/nkftlsim/internal/flashconfig"
)

func testGeom() flashconfig.Geometry {
	return flashconfig.Geometry{PagesPerBlock: 4, BlocksPerChannel: 8, Channels: 2}
}

func TestOOB_RemapInvalidatesOld(t *testing.T) {
	geom := testGeom()
	oob := NewOOB(geom)

	oob.Remap(LPN(10), 0, false, PPN(0))
	if !oob.IsPageValid(0) {
		t.Fatal("expected page 0 valid after first write")
	}

	oob.Remap(LPN(10), PPN(0), true, PPN(1))
	if !oob.IsPageInvalid(0) {
		t.Fatal("expected old page invalidated on remap")
	}
	if !oob.IsPageValid(1) {
		t.Fatal("expected new page valid after remap")
	}
	lpn, ok := oob.LpnOf(1)
	if !ok || lpn != 10 {
		t.Fatalf("LpnOf(1) = %v, %v; want 10, true", lpn, ok)
	}
}

func TestOOB_EraseBlockClearsReverseMap(t *testing.T) {
	geom := testGeom()
	oob := NewOOB(geom)
	oob.Remap(LPN(0), 0, false, PPN(0))
	oob.Remap(LPN(1), 0, false, PPN(1))

	oob.EraseBlock(geom, PBN(0))
	for off := 0; off < geom.PagesPerBlock; off++ {
		ppn := PPN(off)
		if !oob.IsPageErased(ppn) {
			t.Errorf("page %d not Erased after EraseBlock", ppn)
		}
		if _, ok := oob.LpnOf(ppn); ok {
			t.Errorf("page %d still has a reverse entry after EraseBlock", ppn)
		}
	}
}

func TestOOB_LpnsOfBlockReportsNoLPNForUnwritten(t *testing.T) {
	geom := testGeom()
	oob := NewOOB(geom)
	oob.Remap(LPN(5), 0, false, PPN(0))

	lpns := oob.LpnsOfBlock(geom, PBN(0))
	if lpns[0] != 5 {
		t.Errorf("lpns[0] = %d, want 5", lpns[0])
	}
	for off := 1; off < geom.PagesPerBlock; off++ {
		if lpns[off] != NoLPN {
			t.Errorf("lpns[%d] = %d, want NoLPN", off, lpns[off])
		}
	}
}

func TestOOB_WipePPNLeavesReverseMapIntact(t *testing.T) {
	geom := testGeom()
	oob := NewOOB(geom)
	oob.Remap(LPN(3), 0, false, PPN(0))
	oob.WipePPN(PPN(0))

	if !oob.IsPageInvalid(0) {
		t.Fatal("expected page Invalid after WipePPN")
	}
	if lpn, ok := oob.LpnOf(0); !ok || lpn != 3 {
		t.Fatalf("WipePPN must not clear the reverse entry; got %v, %v", lpn, ok)
	}
}
