package gbcpu

import "testing"

// mockBus is a flat 64KB address space, mirroring cpu.MockMemory's role in
// the NES CPU test suite.
type mockBus struct {
	data [0x10000]uint8
}

func (m *mockBus) Read(address uint16) uint8  { return m.data[address] }
func (m *mockBus) Write(address uint16, value uint8) { m.data[address] = value }

func (m *mockBus) load(address uint16, program ...uint8) {
	copy(m.data[address:], program)
}

func newTestCPU(program ...uint8) (*CPU, *mockBus) {
	bus := &mockBus{}
	bus.load(0x0100, program...)
	cpu := New(bus)
	cpu.PC = 0x0100
	return cpu, bus
}

func TestResetRegisters(t *testing.T) {
	cpu, _ := newTestCPU()
	if cpu.A != 0x01 || cpu.F != 0xB0 {
		t.Fatalf("AF after reset = %02X%02X, want 01B0", cpu.A, cpu.F)
	}
	if cpu.SP != 0xFFFE || cpu.PC != 0x0100 {
		t.Fatalf("SP/PC after reset = %04X/%04X, want FFFE/0100", cpu.SP, cpu.PC)
	}
}

func TestLdRR(t *testing.T) {
	cpu, _ := newTestCPU(0x41) // LD B,C
	cpu.C = 0x42
	cpu.Step()
	if cpu.B != 0x42 {
		t.Fatalf("B = %02X, want 42", cpu.B)
	}
}

func TestLdRD8(t *testing.T) {
	cpu, _ := newTestCPU(0x06, 0x99) // LD B,d8
	cpu.Step()
	if cpu.B != 0x99 {
		t.Fatalf("B = %02X, want 99", cpu.B)
	}
	if cpu.PC != 0x0102 {
		t.Fatalf("PC = %04X, want 0102", cpu.PC)
	}
}

func TestAddA(t *testing.T) {
	cpu, _ := newTestCPU(0x80) // ADD A,B
	cpu.A, cpu.B = 0x0F, 0x01
	cpu.Step()
	if cpu.A != 0x10 {
		t.Fatalf("A = %02X, want 10", cpu.A)
	}
	if !cpu.flag(flagH) {
		t.Fatalf("half-carry flag not set after 0x0F+0x01")
	}
}

func TestIncDecZeroFlag(t *testing.T) {
	cpu, _ := newTestCPU(0x04) // INC B
	cpu.B = 0xFF
	cpu.Step()
	if cpu.B != 0x00 || !cpu.flag(flagZ) {
		t.Fatalf("INC B from FF = %02X (Z=%v), want 00 (Z=true)", cpu.B, cpu.flag(flagZ))
	}
}

func TestJrUnconditional(t *testing.T) {
	cpu, _ := newTestCPU(0x18, 0x05) // JR +5
	cpu.Step()
	if cpu.PC != 0x0107 {
		t.Fatalf("PC after JR +5 = %04X, want 0107", cpu.PC)
	}
}

func TestJrNegativeOffset(t *testing.T) {
	cpu, _ := newTestCPU(0x18, 0xFE) // JR -2 (infinite loop back to itself)
	cpu.Step()
	if cpu.PC != 0x0100 {
		t.Fatalf("PC after JR -2 = %04X, want 0100", cpu.PC)
	}
}

func TestJrConditionalNotTaken(t *testing.T) {
	cpu, _ := newTestCPU(0x20, 0x05) // JR NZ,+5
	cpu.setFlag(flagZ, true)
	cpu.Step()
	if cpu.PC != 0x0102 {
		t.Fatalf("PC after untaken JR NZ = %04X, want 0102", cpu.PC)
	}
}

func TestCallAndRet(t *testing.T) {
	cpu, _ := newTestCPU(0xCD, 0x00, 0x02) // CALL $0200
	cpu.Step()
	if cpu.PC != 0x0200 {
		t.Fatalf("PC after CALL = %04X, want 0200", cpu.PC)
	}
	if cpu.SP != 0xFFFC {
		t.Fatalf("SP after CALL = %04X, want FFFC", cpu.SP)
	}
}

func TestPushPop(t *testing.T) {
	cpu, _ := newTestCPU(0xC5, 0xD1) // PUSH BC; POP DE
	cpu.setBC(0x1234)
	cpu.Step()
	cpu.Step()
	if cpu.de() != 0x1234 {
		t.Fatalf("DE after PUSH BC/POP DE = %04X, want 1234", cpu.de())
	}
}

func TestInterruptServiceRoutine(t *testing.T) {
	cpu, _ := newTestCPU(0x00) // NOP, never reached
	cpu.IME = true
	cpu.IE = IntVBlank
	cpu.RequestInterrupt(IntVBlank)
	cycles := cpu.Step()
	if cpu.PC != 0x0040 {
		t.Fatalf("PC after VBlank interrupt = %04X, want 0040", cpu.PC)
	}
	if cpu.IME {
		t.Fatalf("IME should be cleared after entering the handler")
	}
	if cycles != 5 {
		t.Fatalf("interrupt service cost %d cycles, want 5", cycles)
	}
}

func TestHaltWakesOnPendingInterrupt(t *testing.T) {
	cpu, _ := newTestCPU(0x76) // HALT
	cpu.IME = false
	cpu.Step()
	if !cpu.halted {
		t.Fatalf("CPU should be halted after executing HALT")
	}
	cpu.IE = IntTimer
	cpu.RequestInterrupt(IntTimer)
	if cpu.halted {
		t.Fatalf("RequestInterrupt should wake a halted CPU")
	}
}

func TestEiDelayedEnable(t *testing.T) {
	cpu, _ := newTestCPU(0xFB, 0x00, 0x00) // EI; NOP; NOP
	cpu.Step() // EI
	if cpu.IME {
		t.Fatalf("IME should not take effect until after the instruction following EI")
	}
	cpu.Step() // NOP
	if !cpu.IME {
		t.Fatalf("IME should be set after the instruction following EI")
	}
}

func TestCbBitInstruction(t *testing.T) {
	cpu, _ := newTestCPU(0xCB, 0x7F) // BIT 7,A
	cpu.A = 0x7F
	cpu.Step()
	if !cpu.flag(flagZ) {
		t.Fatalf("BIT 7,A with A=0x7F should set Z")
	}
}

func TestDaaAfterBcdAdd(t *testing.T) {
	cpu, _ := newTestCPU(0x27) // DAA
	cpu.A = 0x0F + 0x01
	cpu.setFlag(flagH, true)
	cpu.setFlag(flagC, false) // reset leaves C set; 0x0F+0x01 produces no carry
	cpu.Step()
	if cpu.A != 0x16 {
		t.Fatalf("DAA result = %02X, want 16", cpu.A)
	}
}
