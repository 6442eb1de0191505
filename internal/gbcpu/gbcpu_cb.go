package gbcpu

// executeCB decodes the 256-entry CB-prefixed table: rotates/shifts (x=0),
// BIT (x=1), RES (x=2), SET (x=3), each operating on the 3-bit register
// code z and, for x=0, the 3-bit sub-operation y.
func (cpu *CPU) executeCB(opcode uint8) uint64 {
	x := opcode >> 6
	y := (opcode >> 3) & 0x07
	z := opcode & 0x07

	base := uint64(2)
	if z == 6 {
		base = 4
	}

	switch x {
	case 0:
		v := cpu.readReg8(z)
		cpu.writeReg8(z, cpu.shiftOp(y, v))
		return base
	case 1: // BIT y,r
		v := cpu.readReg8(z)
		cpu.setFlag(flagZ, v&(1<<y) == 0)
		cpu.setFlag(flagN, false)
		cpu.setFlag(flagH, true)
		if z == 6 {
			return 3
		}
		return 2
	case 2: // RES y,r
		v := cpu.readReg8(z)
		cpu.writeReg8(z, v&^(1<<y))
		return base
	default: // SET y,r
		v := cpu.readReg8(z)
		cpu.writeReg8(z, v|(1<<y))
		return base
	}
}

// shiftOp applies the eight CB x=0 sub-operations {RLC, RRC, RL, RR, SLA,
// SRA, SWAP, SRL} selected by y.
func (cpu *CPU) shiftOp(y uint8, v uint8) uint8 {
	switch y {
	case 0:
		return cpu.cbRotateLeft(v, false)
	case 1:
		return cpu.cbRotateRight(v, false)
	case 2:
		return cpu.cbRotateLeft(v, true)
	case 3:
		return cpu.cbRotateRight(v, true)
	case 4:
		return cpu.sla(v)
	case 5:
		return cpu.sra(v)
	case 6:
		return cpu.swap(v)
	default:
		return cpu.srl(v)
	}
}

// cbRotateLeft/cbRotateRight mirror rotateLeft/rotateRight but set Z from
// the result (the accumulator-only RLCA/RLA/etc. family always clears Z).
func (cpu *CPU) cbRotateLeft(v uint8, throughCarry bool) uint8 {
	result := cpu.rotateLeft(v, throughCarry)
	cpu.setFlag(flagZ, result == 0)
	return result
}

func (cpu *CPU) cbRotateRight(v uint8, throughCarry bool) uint8 {
	result := cpu.rotateRight(v, throughCarry)
	cpu.setFlag(flagZ, result == 0)
	return result
}

func (cpu *CPU) sla(v uint8) uint8 {
	carry := v&0x80 != 0
	result := v << 1
	cpu.setFlag(flagZ, result == 0)
	cpu.setFlag(flagN, false)
	cpu.setFlag(flagH, false)
	cpu.setFlag(flagC, carry)
	return result
}

func (cpu *CPU) sra(v uint8) uint8 {
	carry := v&0x01 != 0
	result := v>>1 | v&0x80
	cpu.setFlag(flagZ, result == 0)
	cpu.setFlag(flagN, false)
	cpu.setFlag(flagH, false)
	cpu.setFlag(flagC, carry)
	return result
}

func (cpu *CPU) srl(v uint8) uint8 {
	carry := v&0x01 != 0
	result := v >> 1
	cpu.setFlag(flagZ, result == 0)
	cpu.setFlag(flagN, false)
	cpu.setFlag(flagH, false)
	cpu.setFlag(flagC, carry)
	return result
}

func (cpu *CPU) swap(v uint8) uint8 {
	result := v<<4 | v>>4
	cpu.setFlag(flagZ, result == 0)
	cpu.setFlag(flagN, false)
	cpu.setFlag(flagH, false)
	cpu.setFlag(flagC, false)
	return result
}
