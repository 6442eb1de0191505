// Package snapshot implements save/load state for a running console: a
// byte-for-byte concatenation of CPU, APU, PPU, and Bus state (spec §6),
// with the property that save(load(save(x))) == save(x) (spec §8).
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"gones/internal/apu"
	"gones/internal/bus"
	"gones/internal/cpu"
	"gones/internal/ppu"
)

// magic identifies the snapshot format and lets Load reject data produced
// by an incompatible build before it corrupts console state.
const magic uint32 = 0x474e4553 // "GNES"

// version increments whenever a section's byte layout changes in a
// non-backward-compatible way.
const version uint32 = 1

// Console is the subset of *bus.Bus a snapshot operates on.
type Console interface {
	CaptureState() bus.State
	RestoreState(bus.State) error
}

// Save captures CPU, APU, PPU, and Bus state from the given components and
// concatenates them into a single binary blob, in that fixed order.
func Save(c *cpu.CPU, a *apu.APU, p *ppu.PPU, b Console) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, magic); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, version); err != nil {
		return nil, err
	}

	cpuState := c.CaptureState()
	if err := binary.Write(buf, binary.LittleEndian, cpuState); err != nil {
		return nil, fmt.Errorf("snapshot: encode cpu state: %w", err)
	}

	apuState := a.CaptureState()
	if err := binary.Write(buf, binary.LittleEndian, apuState); err != nil {
		return nil, fmt.Errorf("snapshot: encode apu state: %w", err)
	}

	ppuState := p.CaptureState()
	if err := binary.Write(buf, binary.LittleEndian, ppuState); err != nil {
		return nil, fmt.Errorf("snapshot: encode ppu state: %w", err)
	}

	if err := writeBusState(buf, b.CaptureState()); err != nil {
		return nil, fmt.Errorf("snapshot: encode bus state: %w", err)
	}

	return buf.Bytes(), nil
}

// Load parses a blob produced by Save and restores it into the given
// components, in the same CPU/APU/PPU/Bus order it was written.
func Load(data []byte, c *cpu.CPU, a *apu.APU, p *ppu.PPU, b Console) error {
	r := bytes.NewReader(data)

	var gotMagic, gotVersion uint32
	if err := binary.Read(r, binary.LittleEndian, &gotMagic); err != nil {
		return fmt.Errorf("snapshot: read magic: %w", err)
	}
	if gotMagic != magic {
		return fmt.Errorf("snapshot: bad magic %#x, want %#x", gotMagic, magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &gotVersion); err != nil {
		return fmt.Errorf("snapshot: read version: %w", err)
	}
	if gotVersion != version {
		return fmt.Errorf("snapshot: unsupported version %d, want %d", gotVersion, version)
	}

	var cpuState cpu.State
	if err := binary.Read(r, binary.LittleEndian, &cpuState); err != nil {
		return fmt.Errorf("snapshot: decode cpu state: %w", err)
	}

	var apuState apu.State
	if err := binary.Read(r, binary.LittleEndian, &apuState); err != nil {
		return fmt.Errorf("snapshot: decode apu state: %w", err)
	}

	var ppuState ppu.State
	if err := binary.Read(r, binary.LittleEndian, &ppuState); err != nil {
		return fmt.Errorf("snapshot: decode ppu state: %w", err)
	}

	busState, err := readBusState(r)
	if err != nil {
		return fmt.Errorf("snapshot: decode bus state: %w", err)
	}

	c.RestoreState(cpuState)
	a.RestoreState(apuState)
	p.RestoreState(ppuState)
	return b.RestoreState(busState)
}

// busFixed mirrors bus.State minus its one variable-length field
// (MapperBlob), so it can round-trip through binary.Write/Read directly;
// MapperBlob is written separately with a length prefix.
type busFixed struct {
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
	SRAM              [0x2000]uint8
}

func writeBusState(buf *bytes.Buffer, s bus.State) error {
	fixed := busFixed{
		TotalCycles: s.TotalCycles, CPUCycles: s.CPUCycles, PPUCycles: s.PPUCycles,
		FrameCount: s.FrameCount, DMASuspendCycles: s.DMASuspendCycles,
		DMAInProgress: s.DMAInProgress, NMIPending: s.NMIPending,
		MapperIRQAsserted: s.MapperIRQAsserted, CyclesPerFrame: s.CyclesPerFrame,
		OddFrame: s.OddFrame, WorkRAM: s.WorkRAM, VRAM: s.VRAM,
		PaletteRAM: s.PaletteRAM, MapperID: s.MapperID, SRAM: s.SRAM,
	}
	if err := binary.Write(buf, binary.LittleEndian, fixed); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s.MapperBlob))); err != nil {
		return err
	}
	_, err := buf.Write(s.MapperBlob)
	return err
}

func readBusState(r *bytes.Reader) (bus.State, error) {
	var fixed busFixed
	if err := binary.Read(r, binary.LittleEndian, &fixed); err != nil {
		return bus.State{}, err
	}
	var blobLen uint32
	if err := binary.Read(r, binary.LittleEndian, &blobLen); err != nil {
		return bus.State{}, err
	}
	blob := make([]byte, blobLen)
	if blobLen > 0 {
		if _, err := r.Read(blob); err != nil {
			return bus.State{}, err
		}
	}
	return bus.State{
		TotalCycles: fixed.TotalCycles, CPUCycles: fixed.CPUCycles, PPUCycles: fixed.PPUCycles,
		FrameCount: fixed.FrameCount, DMASuspendCycles: fixed.DMASuspendCycles,
		DMAInProgress: fixed.DMAInProgress, NMIPending: fixed.NMIPending,
		MapperIRQAsserted: fixed.MapperIRQAsserted, CyclesPerFrame: fixed.CyclesPerFrame,
		OddFrame: fixed.OddFrame, WorkRAM: fixed.WorkRAM, VRAM: fixed.VRAM,
		PaletteRAM: fixed.PaletteRAM, MapperID: fixed.MapperID, SRAM: fixed.SRAM,
		MapperBlob: blob,
	}, nil
}
