// Package gbcartridge implements ROM loading and parsing for handheld
// cartridges, mirroring internal/cartridge's structure for the Z80-derived
// console (spec §6 "Cartridge format (handheld)").
package gbcartridge

import (
	"fmt"
)

// Cartridge represents a handheld cartridge: header-derived metadata plus
// the mapper that virtualizes ROM/RAM banking.
type Cartridge struct {
	rom []uint8

	title      string
	mapperID   uint8
	romBanks   int
	ramSize    int
	hasBattery bool

	mapper Mapper

	ramChanged func([]uint8)
}

// Mapper is the capability set every handheld bank-switcher implements
// (spec §4.5: ROM-only, MBC1).
type Mapper interface {
	ReadROM(address uint16) uint8
	WriteROM(address uint16, value uint8)
	ReadRAM(address uint16) uint8
	WriteRAM(address uint16, value uint8)
}

// ramSizeTable maps header byte $0149 to cartridge RAM size in bytes, per
// spec §6's handheld header table.
var ramSizeTable = map[uint8]int{
	0: 0,
	1: 0, // unofficial 2KiB variant, treated as unsupported/absent
	2: 8 * 1024,
	3: 32 * 1024,
	4: 128 * 1024,
	5: 64 * 1024,
}

// Load parses a handheld ROM image and constructs its Cartridge, selecting
// and constructing the appropriate Mapper from the cartridge-type byte at
// $0147.
func Load(data []uint8) (*Cartridge, error) {
	if len(data) < 0x150 {
		return nil, fmt.Errorf("gbcartridge: image too short for header (%d bytes)", len(data))
	}

	romSizeCode := data[0x0148]
	if romSizeCode > 8 {
		return nil, fmt.Errorf("gbcartridge: unsupported ROM size code 0x%02X", romSizeCode)
	}
	romBanks := 2 << romSizeCode
	expectedLen := romBanks * 0x4000
	if len(data) < expectedLen {
		return nil, fmt.Errorf("gbcartridge: image truncated: want %d bytes for %d banks, got %d", expectedLen, romBanks, len(data))
	}

	ramSize, ok := ramSizeTable[data[0x0149]]
	if !ok {
		return nil, fmt.Errorf("gbcartridge: unsupported RAM size code 0x%02X", data[0x0149])
	}

	cartType := data[0x0147]

	c := &Cartridge{
		rom:      append([]uint8(nil), data[:expectedLen]...),
		title:    parseTitle(data),
		mapperID: cartType,
		romBanks: romBanks,
		ramSize:  ramSize,
	}

	mapper, err := newMapper(cartType, c.rom, ramSize)
	if err != nil {
		return nil, err
	}
	c.mapper = mapper
	c.hasBattery = hasBattery(cartType)

	return c, nil
}

func parseTitle(data []uint8) string {
	raw := data[0x0134:0x0144]
	end := len(raw)
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
	}
	return string(raw[:end])
}

// hasBattery reports whether cartType is one of the battery-backed variants
// this module supports (MBC1+RAM+BATTERY).
func hasBattery(cartType uint8) bool {
	return cartType == 0x03
}

func newMapper(cartType uint8, rom []uint8, ramSize int) (Mapper, error) {
	switch cartType {
	case 0x00:
		return newROMOnly(rom), nil
	case 0x01, 0x02, 0x03:
		return newMBC1(rom, ramSize), nil
	default:
		return nil, fmt.Errorf("gbcartridge: unsupported cartridge type 0x%02X", cartType)
	}
}

// Title returns the cartridge's header title (spec §6, $0134-$0143).
func (c *Cartridge) Title() string { return c.title }

// MapperID returns the header's cartridge-type byte.
func (c *Cartridge) MapperID() uint8 { return c.mapperID }

// ROMBanks returns the number of 16KiB ROM banks this cartridge was built
// with, derived from header byte $0148.
func (c *Cartridge) ROMBanks() int { return c.romBanks }

// HasBattery reports whether this cartridge's RAM should be persisted.
func (c *Cartridge) HasBattery() bool { return c.hasBattery }

// ReadROM reads through the cartridge-type mapper ($0000-$7FFF).
func (c *Cartridge) ReadROM(address uint16) uint8 { return c.mapper.ReadROM(address) }

// WriteROM forwards a write in the ROM address space to the mapper, which
// interprets it as a bank-switching/RAM-enable control write.
func (c *Cartridge) WriteROM(address uint16, value uint8) { c.mapper.WriteROM(address, value) }

// ReadRAM reads cartridge RAM ($A000-$BFFF) through the mapper.
func (c *Cartridge) ReadRAM(address uint16) uint8 { return c.mapper.ReadRAM(address) }

// WriteRAM writes cartridge RAM through the mapper.
func (c *Cartridge) WriteRAM(address uint16, value uint8) { c.mapper.WriteRAM(address, value) }

// SetRAMChanged installs a callback invoked after every cartridge-RAM write,
// for battery-backed-save persistence hooks (spec §4.5's "battery-backed
// save hook").
func (c *Cartridge) SetRAMChanged(cb func([]uint8)) { c.ramChanged = cb }

// SnapshotMapper is implemented by mappers with bank-switching state that
// must survive a save/load round trip, mirroring internal/cartridge's
// SnapshotMapper capability.
type SnapshotMapper interface {
	SerializeState() []byte
	DeserializeState(data []byte) error
}

// SerializeMapperState returns the mapper's bank-switching state blob.
func (c *Cartridge) SerializeMapperState() []byte {
	if sm, ok := c.mapper.(SnapshotMapper); ok {
		return sm.SerializeState()
	}
	return nil
}

// DeserializeMapperState restores the mapper's bank-switching state.
func (c *Cartridge) DeserializeMapperState(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	sm, ok := c.mapper.(SnapshotMapper)
	if !ok {
		return fmt.Errorf("gbcartridge: mapper 0x%02X does not support snapshot state but blob has %d bytes", c.mapperID, len(data))
	}
	return sm.DeserializeState(data)
}
