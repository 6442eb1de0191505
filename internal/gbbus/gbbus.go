// Package gbbus implements the handheld console's address-map dispatch
// table, wiring gbcpu, gbppu, gbcartridge, the timer, and the joypad
// together the way internal/bus does for the 6502 console.
package gbbus

import (
	"log"
	"os"

	"gones/internal/driver"
	"gones/internal/gbcartridge"
	"gones/internal/gbcpu"
	"gones/internal/gbppu"
)

var logger = log.New(os.Stderr, "[gbbus] ", log.LstdFlags)

// Button is one of the eight handheld controller inputs, latched into the
// joypad register's two 4-bit nibbles.
type Button uint8

const (
	ButtonA Button = iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonRight
	ButtonLeft
	ButtonUp
	ButtonDown
)

// Bus connects the handheld CPU, PPU, timer, joypad, and cartridge.
type Bus struct {
	CPU *gbcpu.CPU
	PPU *gbppu.PPU

	cart *gbcartridge.Cartridge

	wram [0x2000]uint8 // $C000-$DFFF (+ echo at $E000-$FDFF)
	hram [0x7F]uint8   // $FF80-$FFFE
	vram [0x2000]uint8 // $8000-$9FFF

	div  uint16 // free-running 16-bit counter; DIV register is its high byte
	tima uint8
	tma  uint8
	tac  uint8

	buttons    uint8 // bit=1 means pressed
	joypadSel  uint8 // $FF00 bits 4-5 select button/dpad row

	totalCycles uint64
}

// New creates a Bus with no cartridge loaded; call LoadCartridge before
// stepping.
func New() *Bus {
	b := &Bus{}
	b.PPU = gbppu.New(b)
	b.CPU = gbcpu.New(b)
	b.PPU.SetVBlankCallback(func() { b.CPU.RequestInterrupt(gbcpu.IntVBlank) })
	b.PPU.SetSTATCallback(func() { b.CPU.RequestInterrupt(gbcpu.IntLCD) })
	return b
}

// LoadCartridge installs cart as the currently running cartridge.
func (b *Bus) LoadCartridge(cart *gbcartridge.Cartridge) {
	b.cart = cart
}

// ReadVRAM implements gbppu.VRAMReader.
func (b *Bus) ReadVRAM(address uint16) uint8 {
	if address < 0x8000 || address >= 0xA000 {
		return 0xFF
	}
	return b.vram[address-0x8000]
}

// Read implements gbcpu.Bus: the full $0000-$FFFF address decode.
func (b *Bus) Read(address uint16) uint8 {
	switch {
	case address < 0x8000:
		if b.cart == nil {
			return 0xFF
		}
		return b.cart.ReadROM(address)
	case address < 0xA000:
		return b.vram[address-0x8000]
	case address < 0xC000:
		if b.cart == nil {
			return 0xFF
		}
		return b.cart.ReadRAM(address - 0xA000)
	case address < 0xE000:
		return b.wram[address-0xC000]
	case address < 0xFE00:
		return b.wram[address-0xE000] // echo RAM
	case address < 0xFEA0:
		return b.PPU.ReadOAM(address - 0xFE00)
	case address < 0xFF00:
		return 0xFF // unusable region
	case address == 0xFF00:
		return b.readJoypad()
	case address == 0xFF04:
		return uint8(b.div >> 8)
	case address == 0xFF05:
		return b.tima
	case address == 0xFF06:
		return b.tma
	case address == 0xFF07:
		return b.tac
	case address == 0xFF0F:
		return b.CPU.IF
	case address >= 0xFF40 && address <= 0xFF4B:
		return b.PPU.ReadRegister(address)
	case address == 0xFFFF:
		return b.CPU.IE
	case address >= 0xFF80 && address < 0xFFFF:
		return b.hram[address-0xFF80]
	default:
		return 0xFF
	}
}

// Write implements gbcpu.Bus.
func (b *Bus) Write(address uint16, value uint8) {
	switch {
	case address < 0x8000:
		if b.cart != nil {
			b.cart.WriteROM(address, value)
		}
	case address < 0xA000:
		b.vram[address-0x8000] = value
	case address < 0xC000:
		if b.cart != nil {
			b.cart.WriteRAM(address-0xA000, value)
		}
	case address < 0xE000:
		b.wram[address-0xC000] = value
	case address < 0xFE00:
		b.wram[address-0xE000] = value
	case address < 0xFEA0:
		b.PPU.WriteOAM(address-0xFE00, value)
	case address == 0xFF00:
		b.joypadSel = value & 0x30
	case address == 0xFF04:
		b.div = 0
	case address == 0xFF05:
		b.tima = value
	case address == 0xFF06:
		b.tma = value
	case address == 0xFF07:
		b.tac = value & 0x07
	case address == 0xFF0F:
		b.CPU.IF = value & 0x1F
	case address >= 0xFF40 && address <= 0xFF4B:
		b.PPU.WriteRegister(address, value)
	case address == 0xFFFF:
		b.CPU.IE = value & 0x1F
	case address >= 0xFF80 && address < 0xFFFF:
		b.hram[address-0xFF80] = value
	default:
		logger.Printf("ignored write to $%04X = $%02X", address, value)
	}
}

func (b *Bus) readJoypad() uint8 {
	result := b.joypadSel | 0x0F
	if b.joypadSel&0x20 == 0 { // button keys selected
		if b.buttons&(1<<ButtonA) != 0 {
			result &^= 0x01
		}
		if b.buttons&(1<<ButtonB) != 0 {
			result &^= 0x02
		}
		if b.buttons&(1<<ButtonSelect) != 0 {
			result &^= 0x04
		}
		if b.buttons&(1<<ButtonStart) != 0 {
			result &^= 0x08
		}
	}
	if b.joypadSel&0x10 == 0 { // direction keys selected
		if b.buttons&(1<<ButtonRight) != 0 {
			result &^= 0x01
		}
		if b.buttons&(1<<ButtonLeft) != 0 {
			result &^= 0x02
		}
		if b.buttons&(1<<ButtonUp) != 0 {
			result &^= 0x04
		}
		if b.buttons&(1<<ButtonDown) != 0 {
			result &^= 0x08
		}
	}
	return result
}

// SetButton latches the host's current state for one controller button.
func (b *Bus) SetButton(button Button, pressed bool) {
	wasPressed := b.buttons&(1<<button) != 0
	if pressed {
		b.buttons |= 1 << button
	} else {
		b.buttons &^= 1 << button
	}
	if pressed && !wasPressed {
		b.CPU.RequestInterrupt(gbcpu.IntJoypad)
	}
}

// stepTimer advances the DIV/TIMA timer by cycles CPU cycles, per the
// documented TAC-selected tick rate, requesting a Timer interrupt on
// TIMA overflow.
func (b *Bus) stepTimer(cycles uint64) {
	for i := uint64(0); i < cycles; i++ {
		oldDiv := b.div
		b.div++
		if b.tac&0x04 == 0 {
			continue
		}
		if timerBitFell(oldDiv, b.div, b.tac&0x03) {
			b.tima++
			if b.tima == 0 {
				b.tima = b.tma
				b.CPU.RequestInterrupt(gbcpu.IntTimer)
			}
		}
	}
}

// timerBitFell reports whether the DIV bit selected by the TAC clock-select
// field fell from 1 to 0 between oldDiv and newDiv (the real hardware's
// falling-edge-detector increment trigger).
func timerBitFell(oldDiv, newDiv uint16, clockSelect uint8) bool {
	bit := divBit(clockSelect)
	return oldDiv&(1<<bit) != 0 && newDiv&(1<<bit) == 0
}

func divBit(clockSelect uint8) uint8 {
	switch clockSelect {
	case 0:
		return 9 // 4096 Hz
	case 1:
		return 3 // 262144 Hz
	case 2:
		return 5 // 65536 Hz
	default:
		return 7 // 16384 Hz
	}
}

// Step executes one CPU instruction and advances the PPU and timer in
// lockstep (4 dots and 4 timer ticks per CPU cycle, per spec §4.8).
func (b *Bus) Step() {
	cycles := b.CPU.Step()
	for i := uint64(0); i < cycles; i++ {
		b.PPU.Step()
	}
	b.stepTimer(cycles)
	b.totalCycles += cycles
}

// GetCycleCount implements driver.Console.
func (b *Bus) GetCycleCount() uint64 { return b.totalCycles }

// GetFrameBuffer implements driver.Console.
func (b *Bus) GetFrameBuffer() []uint32 { return b.PPU.GetFrameBuffer() }

// GetAudioSamples implements driver.Console. The handheld's audio
// processing unit is out of this pass's scope (see DESIGN.md); the sink
// receives no samples rather than a fabricated silent buffer.
func (b *Bus) GetAudioSamples() []float32 { return nil }

// Reset implements driver.Console.
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.div, b.tima, b.tac = 0, 0, 0
	b.totalCycles = 0
}

// DeliverInterrupt implements driver.Console.
func (b *Bus) DeliverInterrupt(kind driver.InterruptKind) {
	switch kind {
	case driver.InterruptIRQ:
		b.CPU.RequestInterrupt(gbcpu.IntLCD)
	case driver.InterruptNMI:
		b.CPU.RequestInterrupt(gbcpu.IntVBlank)
	}
}
