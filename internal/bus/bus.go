// Package bus implements the system bus for communication between NES components.
package bus

import (
	"fmt"
	"log"
	"os"

	"gones/internal/apu"
	"gones/internal/cartridge"
	"gones/internal/cpu"
	"gones/internal/driver"
	"gones/internal/input"
	"gones/internal/memory"
	"gones/internal/ppu"
)

var logger = log.New(os.Stderr, "[bus] ", log.LstdFlags)

// Bus connects all NES components together
type Bus struct {
	// Core components
	CPU    *cpu.CPU
	PPU    *ppu.PPU
	APU    *apu.APU
	Memory *memory.Memory
	Input  *input.InputState

	// ppuMemory and cart are kept so mapper callbacks (mirroring change,
	// scanline IRQ) can be rewired whenever a cartridge is (re)loaded.
	ppuMemory *memory.PPUMemory
	cart      *cartridge.Cartridge

	// System state
	totalCycles uint64
	cpuCycles   uint64
	ppuCycles   uint64
	frameCount  uint64

	// Timing coordination
	dmaSuspendCycles  uint64
	dmaInProgress     bool
	nmiPending        bool
	mapperIRQAsserted bool

	// Frame timing (NTSC: 262 scanlines, 341 PPU cycles/scanline)
	cyclesPerFrame uint64 // 89342 PPU cycles = 29780.67 CPU cycles
	oddFrame       bool

	// Execution logging for testing
	executionLog   []BusExecutionEvent
	loggingEnabled bool

	// Memory monitoring for debugging
	memoryWatchpoints map[uint16]uint8 // Address -> previous value
	watchpointLogging bool
}

// New creates a new system bus with all components
func New() *Bus {
	bus := &Bus{
		PPU:   ppu.New(),
		APU:   apu.New(),
		Input: input.NewInputState(),

		// NTSC timing: 89342 PPU cycles per frame
		cyclesPerFrame: 89342,

		// Initialize memory monitoring
		memoryWatchpoints: make(map[uint16]uint8),
		watchpointLogging: false,
	}

	// Memory needs references to PPU and APU
	bus.Memory = memory.New(bus.PPU, bus.APU, nil) // Cartridge will be set later

	// Set up input system in memory
	bus.Memory.SetInputSystem(bus.Input)

	// CPU needs memory interface
	bus.CPU = cpu.New(bus.Memory)

	// Set up callbacks
	bus.PPU.SetNMICallback(bus.triggerNMI)
	bus.PPU.SetFrameCompleteCallback(bus.handleFrameComplete)
	bus.Memory.SetDMACallback(bus.TriggerOAMDMA)
	bus.APU.SetDMCReadCallback(bus.Memory.Read)
	bus.APU.SetDMCStallCallback(bus.CPU.AddStallCycles)

	// Reset all components to proper initial state
	bus.Reset()

	return bus
}

// Reset resets all components to their initial state
func (b *Bus) Reset() {
	b.CPU.Reset()
	b.PPU.Reset()
	b.APU.Reset()
	b.Input.Reset()

	// Reset timing state
	b.totalCycles = 0
	b.cpuCycles = 0
	b.ppuCycles = 0
	b.frameCount = 0
	b.dmaSuspendCycles = 0
	b.dmaInProgress = false
	b.nmiPending = false
	b.mapperIRQAsserted = false
	b.oddFrame = false

	// Synchronize PPU frame count with bus
	b.PPU.SetFrameCount(0)

	// Clear execution log
	b.executionLog = make([]BusExecutionEvent, 0)
	b.loggingEnabled = false

	// Initialize memory monitoring
	b.memoryWatchpoints = make(map[uint16]uint8)
	b.watchpointLogging = false
}

// triggerNMI is called by the PPU when an NMI should be triggered
func (b *Bus) triggerNMI() {
	b.nmiPending = true
}

// handleFrameComplete is called by the PPU when a frame is naturally completed
func (b *Bus) handleFrameComplete() {
	// Synchronize bus frame counter with PPU's frame counter
	b.frameCount = b.PPU.GetFrameCount()
	
	// Frame-synchronized input update (like ChibiNES/Fogleman NES)
	// This ensures input states are refreshed every frame for proper game sync
	if b.Input != nil {
		// The input states are maintained but this gives games a consistent
		// point to poll controller states, similar to real NES VBlank timing
		b.synchronizeInputStates()
	}
	
	// The PPU manages its own timing internally, we just track frame completion
	// Do NOT reset any cycle counters - they should be cumulative for timing accuracy
	// The PPU handles odd/even frame timing internally with proper cycle skipping
}

// synchronizeInputStates provides frame-synchronized input refreshing.
// Input states are maintained continuously; this is a hook for games that
// expect a consistent per-frame poll point, mirroring real VBlank timing.
func (b *Bus) synchronizeInputStates() {
}

// Step executes one CPU instruction and advances other components accordingly
func (b *Bus) Step() {
	var cpuCycles uint64

	// Capture pre-step state for logging
	preFrameCount := b.frameCount
	prePC := b.CPU.PC
	var preOpcode uint8
	if b.Memory != nil {
		preOpcode = b.Memory.Read(prePC)
	}

	// Check if CPU is suspended for DMA
	if b.dmaSuspendCycles > 0 {
		// CPU is suspended, consume DMA cycles
		cpuCycles = 1
		b.dmaSuspendCycles--
		if b.dmaSuspendCycles == 0 {
			b.dmaInProgress = false
		}
	} else {
		// Handle pending NMI before executing instruction
		if b.nmiPending {
			b.CPU.TriggerNMI()
			b.nmiPending = false
		}

		// Execute one CPU instruction
		cpuCycles = b.CPU.Step()
	}

	// PPU runs at exactly 3x CPU speed (cycle-accurate)
	ppuCyclesToRun := cpuCycles * 3
	for i := uint64(0); i < ppuCyclesToRun; i++ {
		b.PPU.Step()
		b.ppuCycles++
	}

	// APU runs at CPU speed
	for i := uint64(0); i < cpuCycles; i++ {
		b.APU.Step()
	}

	// Combine the APU's frame-sequencer and DMC IRQ flags with any mapper
	// scanline IRQ (MMC3) onto the CPU's single IRQ line.
	if b.mapperIRQAsserted || b.APU.GetFrameIRQ() || b.APU.GetDMCIRQ() {
		b.mapperIRQAsserted = false
		b.CPU.SetIRQ(true)
	}

	// Update counters
	b.cpuCycles += cpuCycles
	b.totalCycles += cpuCycles

	// Frame completion is now handled by PPU callback for precise timing

	// Check memory watchpoints for changes (reduced frequency for better performance)
	if b.watchpointLogging && b.frameCount%300 == 0 { // Check every 5 seconds at 60fps
		b.CheckMemoryWatchpoints()
	}

	// Log execution if enabled
	if b.loggingEnabled {
		event := BusExecutionEvent{
			StepNumber:    len(b.executionLog) + 1,
			CPUCycles:     b.cpuCycles,
			PPUCycles:     b.cpuCycles * 3, // PPU runs at 3x CPU speed
			FrameCount:    b.frameCount,
			DMAActive:     b.dmaInProgress,
			NMIProcessed:  b.frameCount > preFrameCount, // Frame count increased
			PCValue:       prePC,
			InstructionOp: preOpcode,
		}
		b.executionLog = append(b.executionLog, event)
	}
}

// TriggerOAMDMA initiates an OAM DMA transfer
func (b *Bus) TriggerOAMDMA(sourcePage uint8) {
	if b.dmaInProgress {
		return // DMA already in progress
	}

	// Calculate DMA duration: 513 cycles if starting on even CPU cycle, 514 if odd
	dmaCycles := uint64(513)
	if b.cpuCycles%2 == 1 {
		dmaCycles = 514
	}

	b.dmaInProgress = true
	b.dmaSuspendCycles = dmaCycles

	// Perform the actual OAM transfer
	sourceAddress := uint16(sourcePage) << 8
	for i := 0; i < 256; i++ {
		data := b.Memory.Read(sourceAddress + uint16(i))
		b.PPU.WriteOAM(uint8(i), data)
	}
}

// LoadCartridge loads a cartridge into the system
func (b *Bus) LoadCartridge(cart memory.CartridgeInterface) {
	// Update memory with cartridge
	b.Memory = memory.New(b.PPU, b.APU, cart)

	// Re-establish input system connection
	b.Memory.SetInputSystem(b.Input)

	b.CPU = cpu.New(b.Memory)

	// Convert the cartridge's mirror mode to memory's mirror mode
	mirrorMode := memory.MirrorHorizontal
	realCart, isRealCart := cart.(*cartridge.Cartridge)
	if isRealCart {
		mirrorMode = convertMirrorMode(realCart.GetMirrorMode())
	}

	// Create and set PPU memory
	b.ppuMemory = memory.NewPPUMemory(cart, mirrorMode)
	b.PPU.SetMemory(b.ppuMemory)

	// Re-establish callbacks after recreating memory and CPU
	b.PPU.SetNMICallback(b.triggerNMI)
	b.PPU.SetFrameCompleteCallback(b.handleFrameComplete)
	b.Memory.SetDMACallback(b.TriggerOAMDMA)
	b.APU.SetDMCReadCallback(b.Memory.Read)
	b.APU.SetDMCStallCallback(b.CPU.AddStallCycles)

	// Wire mapper-driven mirroring changes and scanline IRQs (MMC1, MMC3).
	b.cart = nil
	if isRealCart {
		b.cart = realCart
		realCart.SetCallbacks(b.onMirrorChanged, b.onMapperIRQ)
		b.PPU.SetScanlineIRQCallback(realCart.ScanlineIRQ)
	} else {
		b.PPU.SetScanlineIRQCallback(nil)
	}

	// Reset the CPU to properly initialize PC from reset vector
	b.CPU.Reset()
}

// convertMirrorMode translates a cartridge.MirrorMode into the equivalent
// memory.MirrorMode; both share the same ordinal layout.
func convertMirrorMode(mode cartridge.MirrorMode) memory.MirrorMode {
	switch mode {
	case cartridge.MirrorHorizontal:
		return memory.MirrorHorizontal
	case cartridge.MirrorVertical:
		return memory.MirrorVertical
	case cartridge.MirrorSingleScreen0:
		return memory.MirrorSingleScreen0
	case cartridge.MirrorSingleScreen1:
		return memory.MirrorSingleScreen1
	case cartridge.MirrorFourScreen:
		return memory.MirrorFourScreen
	default:
		return memory.MirrorHorizontal
	}
}

// onMirrorChanged is invoked by a mapper (MMC1, MMC3) when it changes
// nametable mirroring at runtime.
func (b *Bus) onMirrorChanged(mode cartridge.MirrorMode) {
	if b.ppuMemory != nil {
		b.ppuMemory.SetMirroring(convertMirrorMode(mode))
	}
}

// onMapperIRQ is invoked by a mapper (MMC3) when its scanline IRQ counter
// reaches zero with IRQs enabled. The flag is drained onto the CPU's IRQ
// line on the next Step.
func (b *Bus) onMapperIRQ() {
	b.mapperIRQAsserted = true
}

// Run runs the emulator for a specified number of frames
func (b *Bus) Run(frames int) {
	targetFrames := b.frameCount + uint64(frames)

	// Run until we complete the target number of frames
	for b.frameCount < targetFrames {
		b.Step()
	}
}

// RunCycles runs the emulator for a specified number of CPU cycles
func (b *Bus) RunCycles(cycles uint64) {
	targetCycles := b.cpuCycles + cycles

	for b.cpuCycles < targetCycles {
		b.Step()
	}
}

// GetFrameRate returns the current frame rate based on NTSC timing
func (b *Bus) GetFrameRate() float64 {
	// NTSC: CPU frequency ~1.789773 MHz, 29780.67 CPU cycles per frame
	cpuFrequency := 1789773.0
	cpuCyclesPerFrame := cpuFrequency / 60.098803 // NTSC frame rate
	return cpuFrequency / cpuCyclesPerFrame
}

// GetFrameBuffer returns the current PPU frame buffer
func (b *Bus) GetFrameBuffer() []uint32 {
	frameBuffer := b.PPU.GetFrameBuffer()
	return frameBuffer[:]
}

// GetAudioSamples returns the current audio samples from the APU
func (b *Bus) GetAudioSamples() []float32 {
	return b.APU.GetSamples()
}

// SetAudioSampleRate sets the target audio sample rate for the APU
func (b *Bus) SetAudioSampleRate(rate int) {
	b.APU.SetSampleRate(rate)
}

// GetCycleCount returns the current CPU cycle count
func (b *Bus) GetCycleCount() uint64 {
	return b.cpuCycles
}

// GetFrameCount returns the current frame count
func (b *Bus) GetFrameCount() uint64 {
	return b.frameCount
}

// IsDMAInProgress returns whether DMA is currently in progress
func (b *Bus) IsDMAInProgress() bool {
	return b.dmaInProgress
}

// DeliverInterrupt implements driver.Console: it lets a driver.Instance
// deliver an interrupt drained from its message channel without reaching
// into CPU internals.
func (b *Bus) DeliverInterrupt(kind driver.InterruptKind) {
	switch kind {
	case driver.InterruptNMI:
		b.CPU.TriggerNMI()
	case driver.InterruptIRQ:
		b.CPU.SetIRQ(true)
	}
}

// State is the bijective snapshot of everything the Bus owns directly: the
// coprocessor states are captured separately by their own CaptureState
// methods, since internal/snapshot composes all of them into a single
// concatenated blob per spec §6.
type State struct {
	TotalCycles       uint64
	CPUCycles         uint64
	PPUCycles         uint64
	FrameCount        uint64
	DMASuspendCycles  uint64
	DMAInProgress     bool
	NMIPending        bool
	MapperIRQAsserted bool
	CyclesPerFrame    uint64
	OddFrame          bool
	WorkRAM           [0x800]uint8
	VRAM              [0x1000]uint8
	PaletteRAM        [32]uint8
	MapperID          uint8
	MapperBlob        []byte
	SRAM              [0x2000]uint8
}

// CaptureState returns a snapshot of Bus-owned timing/DMA state together
// with the work RAM, PPU VRAM/palette RAM, and cartridge mapper/SRAM state
// that spec §6 groups under "Bus state".
func (b *Bus) CaptureState() State {
	return State{
		TotalCycles: b.totalCycles, CPUCycles: b.cpuCycles, PPUCycles: b.ppuCycles,
		FrameCount: b.frameCount, DMASuspendCycles: b.dmaSuspendCycles,
		DMAInProgress: b.dmaInProgress, NMIPending: b.nmiPending,
		MapperIRQAsserted: b.mapperIRQAsserted, CyclesPerFrame: b.cyclesPerFrame,
		OddFrame:   b.oddFrame,
		WorkRAM:    b.Memory.GetRAM(),
		VRAM:       b.ppuMemory.GetVRAM(),
		PaletteRAM: b.ppuMemory.GetPaletteRAM(),
		MapperID:   b.cart.MapperID(),
		MapperBlob: b.cart.SerializeMapperState(),
		SRAM:       b.cart.GetSRAM(),
	}
}

// RestoreState rebuilds Bus-owned state from a snapshot captured by
// CaptureState. It does not reload the cartridge image itself: the caller
// must have the same ROM already loaded, since only mutable bank-switching
// state round-trips through a snapshot, not PRG/CHR ROM contents.
func (b *Bus) RestoreState(s State) error {
	b.totalCycles, b.cpuCycles, b.ppuCycles = s.TotalCycles, s.CPUCycles, s.PPUCycles
	b.frameCount, b.dmaSuspendCycles = s.FrameCount, s.DMASuspendCycles
	b.dmaInProgress, b.nmiPending = s.DMAInProgress, s.NMIPending
	b.mapperIRQAsserted, b.cyclesPerFrame = s.MapperIRQAsserted, s.CyclesPerFrame
	b.oddFrame = s.OddFrame
	b.Memory.SetRAM(s.WorkRAM)
	b.ppuMemory.SetVRAM(s.VRAM)
	b.ppuMemory.SetPaletteRAM(s.PaletteRAM)
	b.cart.SetSRAM(s.SRAM)
	if s.MapperID != b.cart.MapperID() {
		return fmt.Errorf("bus: snapshot mapper ID %d does not match loaded cartridge mapper %d", s.MapperID, b.cart.MapperID())
	}
	return b.cart.DeserializeMapperState(s.MapperBlob)
}

// isRenderingEnabled checks if PPU rendering is enabled
func (b *Bus) isRenderingEnabled() bool {
	// Read PPUMASK register to check if background or sprites are enabled
	mask := b.PPU.ReadRegister(0x2001)
	return (mask & 0x18) != 0 // Check bits 3 and 4 (show background/sprites)
}

// SetControllerButton sets the state of a controller button
func (b *Bus) SetControllerButton(controller int, button input.Button, pressed bool) {
	switch controller {
	case 0, 1: // Support both 0-based and 1-based indexing
		b.Input.Controller1.SetButton(button, pressed)
	case 2:
		b.Input.Controller2.SetButton(button, pressed)
	}
}

// SetControllerButtons sets all button states for a controller in one call
func (b *Bus) SetControllerButtons(controller int, buttons [8]bool) {
	switch controller {
	case 0, 1: // Controller 1
		b.Input.SetButtons1(buttons)
	case 2: // Controller 2
		b.Input.SetButtons2(buttons)
	}
}

// EnableInputDebug enables debug logging for input system
func (b *Bus) EnableInputDebug(enable bool) {
	b.Input.EnableDebug(enable)
}

// GetInputState returns the input state for direct access
func (b *Bus) GetInputState() *input.InputState {
	return b.Input
}

// Frame executes one complete frame worth of cycles
func (b *Bus) Frame() {
	// NTSC: 29,781 CPU cycles per frame (89,342 PPU cycles / 3)
	targetCycles := b.cpuCycles + 29781

	for b.cpuCycles < targetCycles {
		b.Step()
	}
}

// GetExecutionLog returns execution log for integration testing
func (b *Bus) GetExecutionLog() []BusExecutionEvent {
	return b.executionLog
}

// EnableExecutionLogging enables execution logging for testing
func (b *Bus) EnableExecutionLogging() {
	b.loggingEnabled = true
}

// DisableExecutionLogging disables execution logging
func (b *Bus) DisableExecutionLogging() {
	b.loggingEnabled = false
}

// ClearExecutionLog clears the execution log
func (b *Bus) ClearExecutionLog() {
	b.executionLog = make([]BusExecutionEvent, 0)
}

// BusExecutionEvent represents a single execution step for testing
type BusExecutionEvent struct {
	StepNumber    int
	CPUCycles     uint64
	PPUCycles     uint64
	FrameCount    uint64
	DMAActive     bool
	NMIProcessed  bool
	PCValue       uint16
	InstructionOp uint8
}

// GetCPUState returns the current CPU state for testing
func (b *Bus) GetCPUState() CPUState {
	return CPUState{
		PC:     b.CPU.PC,
		A:      b.CPU.A,
		X:      b.CPU.X,
		Y:      b.CPU.Y,
		SP:     b.CPU.SP,
		Cycles: b.cpuCycles,
		Flags: CPUFlags{
			N: b.CPU.N,
			V: b.CPU.V,
			B: b.CPU.B,
			D: b.CPU.D,
			I: b.CPU.I,
			Z: b.CPU.Z,
			C: b.CPU.C,
		},
	}
}

// CPUState represents CPU state snapshot for testing
type CPUState struct {
	PC      uint16
	A, X, Y uint8
	SP      uint8
	Cycles  uint64
	Flags   CPUFlags
}

// CPUFlags represents CPU status flags for testing
type CPUFlags struct {
	N, V, B, D, I, Z, C bool
}

// GetPPUState returns the current PPU state for testing
func (b *Bus) GetPPUState() PPUState {
	// Simplified PPU state for testing
	scanline := int((b.ppuCycles % b.cyclesPerFrame) / 341)
	cycle := int((b.ppuCycles % b.cyclesPerFrame) % 341)

	return PPUState{
		Scanline:    scanline,
		Cycle:       cycle,
		FrameCount:  b.frameCount,
		VBlankFlag:  (b.PPU.ReadRegister(0x2002) & 0x80) != 0,
		RenderingOn: b.isRenderingEnabled(),
		NMIEnabled:  true, // Would need to expose this from PPU
	}
}

// PPUState represents PPU state snapshot for testing
type PPUState struct {
	Scanline    int
	Cycle       int
	FrameCount  uint64
	VBlankFlag  bool
	RenderingOn bool
	NMIEnabled  bool
}

// AddMemoryWatchpoint adds a memory address to monitor for changes
func (b *Bus) AddMemoryWatchpoint(address uint16) {
	if b.Memory != nil {
		b.memoryWatchpoints[address] = b.Memory.Read(address)
	}
}

// EnableWatchpointLogging enables/disables memory watchpoint logging
func (b *Bus) EnableWatchpointLogging(enabled bool) {
	b.watchpointLogging = enabled
}

// CheckMemoryWatchpoints checks all watchpoints for changes and logs them
func (b *Bus) CheckMemoryWatchpoints() {
	if !b.watchpointLogging || b.Memory == nil {
		return
	}

	for address, previousValue := range b.memoryWatchpoints {
		currentValue := b.Memory.Read(address)
		if currentValue != previousValue {
			logger.Printf("frame %d: $%04X changed from $%02X to $%02X",
				b.frameCount, address, previousValue, currentValue)
			b.memoryWatchpoints[address] = currentValue
		}
	}
}

// CPU Debug Control Methods

// EnableCPUDebug enables/disables CPU debug logging and loop detection
func (b *Bus) EnableCPUDebug(enable bool) {
	if b.CPU != nil {
		b.CPU.EnableDebugLogging(enable)
		b.CPU.EnableLoopDetection(enable)
	}
}
