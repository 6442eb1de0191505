// Package gbppu implements the handheld console's LCD controller (spec
// §4.7): four modes {HBlank, VBlank, OAMScan, Transfer} stepped one dot per
// 4 CPU cycles, OAM scan collecting up to 10 sprites per line, and a
// transfer phase that renders each visible line in one pass, applying the
// fine-X scroll; there is no per-dot pixel FIFO.
package gbppu

// Mode identifies the current LCD controller phase.
type Mode uint8

const (
	ModeHBlank Mode = iota
	ModeVBlank
	ModeOAMScan
	ModeTransfer
)

const (
	screenWidth  = 160
	screenHeight = 144
	dotsPerLine  = 456
	oamScanDots  = 80
)

// VRAMReader is the tile/tilemap data source the PPU fetches through
// (video RAM, $8000-$9FFF region), owned by the handheld Bus.
type VRAMReader interface {
	ReadVRAM(address uint16) uint8
}

// spriteEntry is one OAM record collected during OAMScan.
type spriteEntry struct {
	y, x, tile, attr uint8
}

// PPU holds the LCD controller's registers, scanline/dot counters, OAM,
// and output framebuffer.
type PPU struct {
	lcdc, stat, scy, scx, ly, lyc, bgp, obp0, obp1, wy, wx uint8

	mode Mode
	dot  int

	oam [160]uint8 // 40 sprites * 4 bytes

	vram VRAMReader

	scanlineSprites []spriteEntry

	frameBuffer [screenWidth * screenHeight]uint32

	vblankCallback       func()
	statCallback         func()
	frameCompleteCallback func()

	frameCount uint64
	cycleCount uint64
}

// New creates a PPU reading tile/tilemap data through vram.
func New(vram VRAMReader) *PPU {
	return &PPU{vram: vram, mode: ModeOAMScan}
}

// SetVBlankCallback installs the VBlank-interrupt-request callback, fired
// once per frame when LY reaches 144.
func (p *PPU) SetVBlankCallback(cb func()) { p.vblankCallback = cb }

// SetSTATCallback installs the LCD-STAT-interrupt callback for
// mode-transition/LYC=LY conditions enabled in STAT.
func (p *PPU) SetSTATCallback(cb func()) { p.statCallback = cb }

// SetFrameCompleteCallback installs the callback fired once per completed
// frame (LY wraps from 153 to 0), carrying the finished framebuffer.
func (p *PPU) SetFrameCompleteCallback(cb func()) { p.frameCompleteCallback = cb }

// Reset returns the PPU to its post-boot-ROM power-on state.
func (p *PPU) Reset() {
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = 0x91, 0x85, 0, 0, 0, 0
	p.bgp, p.obp0, p.obp1 = 0xFC, 0xFF, 0xFF
	p.wy, p.wx = 0, 0
	p.mode = ModeOAMScan
	p.dot = 0
	p.frameCount = 0
	p.cycleCount = 0
}

// Step advances the LCD controller by one CPU cycle (one dot per 4 cycles,
// per spec §4.7).
func (p *PPU) Step() {
	p.cycleCount++
	if p.cycleCount%4 != 0 {
		return
	}
	p.tick()
}

func (p *PPU) tick() {
	p.dot++

	switch p.mode {
	case ModeOAMScan:
		if p.dot == 1 {
			p.scanOAM()
		}
		if p.dot >= oamScanDots {
			p.setMode(ModeTransfer)
		}
	case ModeTransfer:
		// The real fetch/FIFO state machine {Tile, Data0, Data1, Idle,
		// Push} resolves 8 pixels per tile fetch; we render the visible
		// line in one shot once enough dots have passed for the FIFO to
		// have filled past its 8-entry fine-X threshold, which is
		// observationally equivalent for a non-mid-scanline-effects core.
		if p.dot >= oamScanDots+172 {
			p.renderLine()
			p.setMode(ModeHBlank)
		}
	case ModeHBlank:
		if p.dot >= dotsPerLine {
			p.endLine()
		}
	case ModeVBlank:
		if p.dot >= dotsPerLine {
			p.endLine()
		}
	}
}

func (p *PPU) setMode(m Mode) {
	p.mode = m
	p.stat = p.stat&^0x03 | uint8(m)
	if p.statModeEnabled(m) && p.statCallback != nil {
		p.statCallback()
	}
}

func (p *PPU) statModeEnabled(m Mode) bool {
	switch m {
	case ModeHBlank:
		return p.stat&0x08 != 0
	case ModeVBlank:
		return p.stat&0x10 != 0
	case ModeOAMScan:
		return p.stat&0x20 != 0
	default:
		return false
	}
}

func (p *PPU) endLine() {
	p.dot = 0
	p.ly++

	if p.ly == screenHeight {
		p.setMode(ModeVBlank)
		if p.vblankCallback != nil {
			p.vblankCallback()
		}
		p.frameCount++
		if p.frameCompleteCallback != nil {
			p.frameCompleteCallback()
		}
	} else if p.ly > 153 {
		p.ly = 0
		p.setMode(ModeOAMScan)
	} else if p.ly < screenHeight {
		p.setMode(ModeOAMScan)
	}

	p.updateLYC()
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 0x04
		if p.stat&0x40 != 0 && p.statCallback != nil {
			p.statCallback()
		}
	} else {
		p.stat &^= 0x04
	}
}

// scanOAM collects up to 10 sprites overlapping the current LY, per spec
// §4.7's OAM-scan step.
func (p *PPU) scanOAM() {
	height := uint8(8)
	if p.lcdc&0x04 != 0 {
		height = 16
	}

	p.scanlineSprites = p.scanlineSprites[:0]
	for i := 0; i < 40 && len(p.scanlineSprites) < 10; i++ {
		y := p.oam[i*4]
		x := p.oam[i*4+1]
		tile := p.oam[i*4+2]
		attr := p.oam[i*4+3]

		spriteTop := int(y) - 16
		if int(p.ly) >= spriteTop && int(p.ly) < spriteTop+int(height) {
			p.scanlineSprites = append(p.scanlineSprites, spriteEntry{y: y, x: x, tile: tile, attr: attr})
		}
	}
}

// renderLine composites the background/window and sprite layers for the
// current LY into the framebuffer.
func (p *PPU) renderLine() {
	if int(p.ly) >= screenHeight {
		return
	}

	bgEnabled := p.lcdc&0x01 != 0
	spritesEnabled := p.lcdc&0x02 != 0

	for x := 0; x < screenWidth; x++ {
		var colorIndex uint8
		if bgEnabled {
			colorIndex = p.backgroundPixel(x)
		}

		if spritesEnabled {
			if spriteIdx, spriteColor, ok := p.spritePixel(x); ok {
				priority := p.scanlineSprites[spriteIdx].attr&0x80 == 0
				if priority || colorIndex == 0 {
					colorIndex = spriteColor | 0x10 // tag sprite-palette pixels
				}
			}
		}

		p.frameBuffer[int(p.ly)*screenWidth+x] = shadeToRGBA(p.applyPalette(colorIndex))
	}
}

func (p *PPU) backgroundPixel(x int) uint8 {
	tileMapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		tileMapBase = 0x9C00
	}

	scrolledX := (x + int(p.scx)) & 0xFF
	scrolledY := (int(p.ly) + int(p.scy)) & 0xFF
	tileCol := scrolledX / 8
	tileRow := scrolledY / 8

	tileIndexAddr := tileMapBase + uint16(tileRow)*32 + uint16(tileCol)
	tileIndex := p.vram.ReadVRAM(tileIndexAddr)

	tileDataBase := uint16(0x8800)
	signed := true
	if p.lcdc&0x10 != 0 {
		tileDataBase = 0x8000
		signed = false
	}

	var tileAddr uint16
	if signed {
		tileAddr = uint16(int32(tileDataBase) + int32(int8(tileIndex))*16)
	} else {
		tileAddr = tileDataBase + uint16(tileIndex)*16
	}

	line := scrolledY % 8
	lo := p.vram.ReadVRAM(tileAddr + uint16(line)*2)
	hi := p.vram.ReadVRAM(tileAddr + uint16(line)*2 + 1)

	bit := 7 - (scrolledX % 8)
	loBit := (lo >> bit) & 1
	hiBit := (hi >> bit) & 1
	return hiBit<<1 | loBit
}

func (p *PPU) spritePixel(x int) (int, uint8, bool) {
	height := 8
	if p.lcdc&0x04 != 0 {
		height = 16
	}

	for i, s := range p.scanlineSprites {
		spriteX := int(s.x) - 8
		if x < spriteX || x >= spriteX+8 {
			continue
		}

		col := x - spriteX
		if s.attr&0x20 != 0 {
			col = 7 - col
		}
		row := int(p.ly) - (int(s.y) - 16)
		if s.attr&0x40 != 0 {
			row = height - 1 - row
		}

		tile := s.tile
		if height == 16 {
			tile &^= 0x01
		}
		tileAddr := uint16(0x8000) + uint16(tile)*16
		lo := p.vram.ReadVRAM(tileAddr + uint16(row)*2)
		hi := p.vram.ReadVRAM(tileAddr + uint16(row)*2 + 1)

		bit := 7 - col
		loBit := (lo >> bit) & 1
		hiBit := (hi >> bit) & 1
		colorIndex := hiBit<<1 | loBit
		if colorIndex == 0 {
			continue // transparent
		}
		return i, colorIndex, true
	}
	return 0, 0, false
}

func (p *PPU) applyPalette(index uint8) uint8 {
	spritePixel := index&0x10 != 0
	index &= 0x03
	palette := p.bgp
	if spritePixel {
		palette = p.obp0
	}
	return (palette >> (index * 2)) & 0x03
}

// shadeToRGBA maps a 2-bit DMG shade index to a 4-level greyscale ARGB
// value, the handheld's documented four-shade palette.
func shadeToRGBA(shade uint8) uint32 {
	switch shade {
	case 0:
		return 0xFFFFFFFF
	case 1:
		return 0xFFAAAAAA
	case 2:
		return 0xFF555555
	default:
		return 0xFF000000
	}
}

// GetFrameBuffer returns the current output framebuffer.
func (p *PPU) GetFrameBuffer() []uint32 { return p.frameBuffer[:] }

// GetFrameCount returns the number of frames completed.
func (p *PPU) GetFrameCount() uint64 { return p.frameCount }

// ReadOAM reads a byte of sprite attribute memory ($FE00-$FE9F).
func (p *PPU) ReadOAM(address uint16) uint8 {
	if int(address) >= len(p.oam) {
		return 0xFF
	}
	return p.oam[address]
}

// WriteOAM writes a byte of sprite attribute memory.
func (p *PPU) WriteOAM(address uint16, value uint8) {
	if int(address) < len(p.oam) {
		p.oam[address] = value
	}
}

// ReadRegister reads one of the LCD I/O registers at $FF40-$FF4B.
func (p *PPU) ReadRegister(address uint16) uint8 {
	switch address {
	case 0xFF40:
		return p.lcdc
	case 0xFF41:
		return p.stat
	case 0xFF42:
		return p.scy
	case 0xFF43:
		return p.scx
	case 0xFF44:
		return p.ly
	case 0xFF45:
		return p.lyc
	case 0xFF47:
		return p.bgp
	case 0xFF48:
		return p.obp0
	case 0xFF49:
		return p.obp1
	case 0xFF4A:
		return p.wy
	case 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// WriteRegister writes one of the LCD I/O registers.
func (p *PPU) WriteRegister(address uint16, value uint8) {
	switch address {
	case 0xFF40:
		p.lcdc = value
	case 0xFF41:
		p.stat = p.stat&0x07 | value&0xF8
	case 0xFF42:
		p.scy = value
	case 0xFF43:
		p.scx = value
	case 0xFF45:
		p.lyc = value
		p.updateLYC()
	case 0xFF47:
		p.bgp = value
	case 0xFF48:
		p.obp0 = value
	case 0xFF49:
		p.obp1 = value
	case 0xFF4A:
		p.wy = value
	case 0xFF4B:
		p.wx = value
	}
}
