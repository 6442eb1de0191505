package gbbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gones/internal/driver"
	"gones/internal/gbcartridge"
	"gones/internal/gbcpu"
)

func romOnlyCartridge(t *testing.T) *gbcartridge.Cartridge {
	t.Helper()
	data := make([]uint8, 2*0x4000)
	data[0x0147] = 0x00
	data[0x0148] = 0
	data[0x0149] = 0
	cart, err := gbcartridge.Load(data)
	require.NoError(t, err)
	return cart
}

func TestWramReadWrite(t *testing.T) {
	b := New()
	b.Write(0xC000, 0x42)
	require.Equal(t, uint8(0x42), b.Read(0xC000))
}

func TestEchoRAMMirrorsWRAM(t *testing.T) {
	b := New()
	b.Write(0xC010, 0x7E)
	require.Equal(t, uint8(0x7E), b.Read(0xE010))
}

func TestHRAMReadWrite(t *testing.T) {
	b := New()
	b.Write(0xFF80, 0x11)
	require.Equal(t, uint8(0x11), b.Read(0xFF80))
}

func TestInterruptEnableRegister(t *testing.T) {
	b := New()
	b.Write(0xFFFF, 0x1F)
	require.Equal(t, uint8(0x1F), b.Read(0xFFFF))
	require.Equal(t, uint8(0x1F), b.CPU.IE)
}

func TestCartridgeROMReadThroughBus(t *testing.T) {
	b := New()
	cart := romOnlyCartridge(t)
	b.LoadCartridge(cart)
	require.Equal(t, uint8(0x00), b.Read(0x0100))
}

func TestJoypadButtonSelectsRowAndRequestsInterrupt(t *testing.T) {
	b := New()
	b.Reset()
	b.CPU.IE = 0x1F
	b.Write(0xFF00, 0x10) // clear P15 (bit5)=0 selects the button-keys row
	b.SetButton(ButtonA, true)
	require.Equal(t, uint8(0), b.Read(0xFF00)&0x01, "A should read as pressed (bit cleared)")
	require.NotZero(t, b.CPU.IF&0x10, "pressing a button should request the joypad interrupt")
}

func TestTimerOverflowRequestsInterrupt(t *testing.T) {
	b := New()
	b.Reset()
	b.CPU.IE = 0x1F
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x05) // enable timer, fastest clock select
	b.Write(0xFF05, 0xFF) // TIMA about to overflow
	b.stepTimer(16)       // enough ticks to cross the fastest bit's falling edge
	require.NotZero(t, b.CPU.IF&0x04, "TIMA overflow should request the Timer interrupt")
}

func TestBusImplementsDriverConsole(t *testing.T) {
	var _ driver.Console = New()
}

func TestStepAdvancesCycleCount(t *testing.T) {
	b := New()
	cart := romOnlyCartridge(t)
	b.LoadCartridge(cart)
	b.Reset()
	before := b.GetCycleCount()
	b.Step()
	require.Greater(t, b.GetCycleCount(), before)
}

func TestDeliverInterruptRoutesToCPU(t *testing.T) {
	b := New()
	b.CPU.IE = gbcpu.IntLCD | gbcpu.IntVBlank
	b.DeliverInterrupt(driver.InterruptIRQ)
	require.NotZero(t, b.CPU.IF)
}
