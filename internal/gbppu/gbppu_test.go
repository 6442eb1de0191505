package gbppu

import "testing"

// mockVRAM is a flat 8KiB video RAM store, addressed the same way gbbus
// addresses it ($8000-$9FFF).
type mockVRAM struct {
	data [0x2000]uint8
}

func (v *mockVRAM) ReadVRAM(address uint16) uint8 { return v.data[address-0x8000] }

func (v *mockVRAM) setTile(tileIndex uint16, rows ...[2]uint8) {
	base := tileIndex * 16
	for i, row := range rows {
		v.data[base+uint16(i)*2] = row[0]
		v.data[base+uint16(i)*2+1] = row[1]
	}
}

func newTestPPU() (*PPU, *mockVRAM) {
	vram := &mockVRAM{}
	ppu := New(vram)
	ppu.Reset()
	ppu.lcdc = 0x91 // LCD on, BG on, tile data at $8000, tilemap at $9800
	return ppu, vram
}

func stepDots(p *PPU, dots int) {
	for i := 0; i < dots*4; i++ {
		p.Step()
	}
}

func TestResetRegisterValues(t *testing.T) {
	ppu, _ := newTestPPU()
	if ppu.mode != ModeOAMScan {
		t.Fatalf("mode after reset = %v, want OAMScan", ppu.mode)
	}
	if ppu.ly != 0 {
		t.Fatalf("LY after reset = %d, want 0", ppu.ly)
	}
}

func TestModeTransitionsAcrossOneLine(t *testing.T) {
	ppu, _ := newTestPPU()
	stepDots(ppu, oamScanDots)
	if ppu.mode != ModeTransfer {
		t.Fatalf("mode after %d dots = %v, want Transfer", oamScanDots, ppu.mode)
	}
	stepDots(ppu, 172)
	if ppu.mode != ModeHBlank {
		t.Fatalf("mode after transfer window = %v, want HBlank", ppu.mode)
	}
	stepDots(ppu, dotsPerLine-oamScanDots-172)
	if ppu.ly != 1 {
		t.Fatalf("LY after one full line = %d, want 1", ppu.ly)
	}
}

func TestVBlankEntryAtLine144(t *testing.T) {
	ppu, _ := newTestPPU()
	vblanks := 0
	ppu.SetVBlankCallback(func() { vblanks++ })
	for line := 0; line < 144; line++ {
		stepDots(ppu, dotsPerLine)
	}
	if ppu.mode != ModeVBlank {
		t.Fatalf("mode at LY=144 = %v, want VBlank", ppu.mode)
	}
	if vblanks != 1 {
		t.Fatalf("VBlank callback fired %d times, want 1", vblanks)
	}
}

func TestFrameWrapsAfterLine153(t *testing.T) {
	ppu, _ := newTestPPU()
	frames := 0
	ppu.SetFrameCompleteCallback(func() { frames++ })
	for line := 0; line < 154; line++ {
		stepDots(ppu, dotsPerLine)
	}
	if ppu.ly != 0 {
		t.Fatalf("LY after full frame = %d, want 0", ppu.ly)
	}
	if frames != 1 {
		t.Fatalf("frame-complete callback fired %d times, want 1", frames)
	}
}

func TestLycStatInterrupt(t *testing.T) {
	ppu, _ := newTestPPU()
	ppu.stat |= 0x40 // enable LYC=LY STAT interrupt
	fired := false
	ppu.SetSTATCallback(func() { fired = true })
	ppu.WriteRegister(0xFF45, 0) // LYC=0, matches LY=0 immediately
	if !fired {
		t.Fatalf("STAT callback should fire when LYC write matches current LY")
	}
	if ppu.stat&0x04 == 0 {
		t.Fatalf("STAT coincidence bit should be set")
	}
}

func TestBackgroundPixelDecodesTile(t *testing.T) {
	ppu, vram := newTestPPU()
	// Tile 0's first row: low plane 0xFF, high plane 0x00 -> all color index 1.
	vram.setTile(0, [2]uint8{0xFF, 0x00})
	if got := ppu.backgroundPixel(0); got != 1 {
		t.Fatalf("backgroundPixel(0) = %d, want 1", got)
	}
}

func TestShadeToRGBAMapping(t *testing.T) {
	cases := map[uint8]uint32{0: 0xFFFFFFFF, 3: 0xFF000000}
	for shade, want := range cases {
		if got := shadeToRGBA(shade); got != want {
			t.Fatalf("shadeToRGBA(%d) = %08X, want %08X", shade, got, want)
		}
	}
}

func TestOAMReadWriteRoundTrip(t *testing.T) {
	ppu, _ := newTestPPU()
	ppu.WriteOAM(4, 0x55)
	if got := ppu.ReadOAM(4); got != 0x55 {
		t.Fatalf("OAM[4] = %02X, want 55", got)
	}
}

func TestScanOAMCollectsOverlappingSprites(t *testing.T) {
	ppu, _ := newTestPPU()
	ppu.ly = 20
	ppu.WriteOAM(0, 36) // y=36 -> spriteTop = 20, covers LY 20-27
	ppu.WriteOAM(1, 10)
	ppu.WriteOAM(2, 0)
	ppu.WriteOAM(3, 0)
	ppu.scanOAM()
	if len(ppu.scanlineSprites) != 1 {
		t.Fatalf("scanlineSprites = %d, want 1", len(ppu.scanlineSprites))
	}
}
