package lane

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// Instruction encoders for test programs. Immediates are taken pre-masked.
func encodeR(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(opcode, rd, funct3, rs1, imm uint32) uint32 {
	return imm&0xFFF<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(opcode, funct3, rs1, rs2, imm uint32) uint32 {
	return imm&0xFE0<<20 | rs2<<20 | rs1<<15 | funct3<<12 | imm&0x1F<<7 | opcode
}

func encodeB(funct3, rs1, rs2, imm uint32) uint32 {
	return imm&0x1000<<19 | imm&0x7E0<<20 | rs2<<20 | rs1<<15 | funct3<<12 |
		imm&0x1E<<7 | imm&0x800>>4 | 0x63
}

func encodeJ(rd, imm uint32) uint32 {
	return imm&0x100000<<11 | imm&0x7FE<<20 | imm&0x800<<9 | imm&0xFF000 | rd<<7 | 0x6F
}

func addi(rd, rs1, imm uint32) uint32 { return encodeI(0x13, rd, 0, rs1, imm) }
func add(rd, rs1, rs2 uint32) uint32  { return encodeR(0x33, rd, 0, rs1, rs2, 0) }
func sw(rs1, rs2, imm uint32) uint32  { return encodeS(0x23, 2, rs1, rs2, imm) }
func lw(rd, rs1, imm uint32) uint32   { return encodeI(0x03, rd, 2, rs1, imm) }
func lb(rd, rs1, imm uint32) uint32   { return encodeI(0x03, rd, 0, rs1, imm) }
func sb(rs1, rs2, imm uint32) uint32  { return encodeS(0x23, 0, rs1, rs2, imm) }
func csrrw(rd, rs1, csr uint32) uint32 {
	return encodeI(0x73, rd, 1, rs1, csr)
}
func csrrs(rd, rs1, csr uint32) uint32 {
	return encodeI(0x73, rd, 2, rs1, csr)
}
func csrrc(rd, rs1, csr uint32) uint32 {
	return encodeI(0x73, rd, 3, rs1, csr)
}

const (
	ecall  = 0x00000073
	ebreak = 0x00100073
)

func runProgram(t *testing.T, prog []uint32, maxSteps int) (*State, *Memory) {
	t.Helper()
	st := NewState(prog)
	mem := NewMemory(1 << 16)
	_, err := st.Run(mem, maxSteps)
	require.NoError(t, err)
	return st, mem
}

func TestArithmeticScenario(t *testing.T) {
	st, _ := runProgram(t, []uint32{
		addi(1, 0, 10), // x1 = 10
		addi(2, 0, 32), // x2 = 32
		add(3, 1, 2),   // x3 = x1 + x2
		ebreak,
	}, 100)
	require.True(t, st.Halted)
	require.Equal(t, uint32(10), st.Registers[1])
	require.Equal(t, uint32(32), st.Registers[2])
	require.Equal(t, uint32(42), st.Registers[3])
}

func TestZeroRegisterInvariant(t *testing.T) {
	prog := []uint32{
		addi(0, 0, 123),         // write to x0 must be discarded
		encodeI(0x13, 0, 6, 0, 0xFF), // ori x0
		0x000FF037,              // lui x0, 0xFF
		add(0, 1, 2),
		ebreak,
	}
	st := NewState(prog)
	mem := NewMemory(1 << 12)
	st.Registers[1] = 7
	st.Registers[2] = 9
	for i := 0; i < len(prog); i++ {
		require.NoError(t, st.Step(mem))
		require.Zero(t, st.Registers[0], "step %d", i)
	}
	require.True(t, st.Halted)
}

func TestHaltIdempotence(t *testing.T) {
	st, mem := runProgram(t, []uint32{addi(1, 0, 5), ebreak}, 100)
	require.True(t, st.Halted)
	pc := st.PC
	regs := st.Registers
	for i := 0; i < 10; i++ {
		require.NoError(t, st.Step(mem))
	}
	require.Equal(t, pc, st.PC)
	require.Equal(t, regs, st.Registers)
}

func TestHaltLeavesPCUntouched(t *testing.T) {
	st, _ := runProgram(t, []uint32{addi(1, 0, 1), ebreak}, 100)
	// EBREAK at byte offset 4 does not advance the program counter.
	require.Equal(t, uint32(4), st.PC)
}

func TestUnknownOpcodeAdvancesPC(t *testing.T) {
	st, _ := runProgram(t, []uint32{
		0x0000007B, // opcode 0x7B: not in the supported subset
		addi(1, 0, 3),
		ebreak,
	}, 100)
	require.True(t, st.Halted)
	require.Equal(t, uint32(3), st.Registers[1])
}

func TestUnknownOpcodeFaultMode(t *testing.T) {
	st := NewState([]uint32{0x0000007B})
	st.FaultOnUnknown = true
	err := st.Step(NewMemory(64))
	require.ErrorIs(t, err, ErrUnknownOpcode)
	require.Zero(t, st.PC)
}

func TestRunBudgetBoundsInfiniteLoop(t *testing.T) {
	st := NewState([]uint32{encodeJ(0, 0)}) // jal x0, 0: jump to self
	steps, err := st.Run(NewMemory(64), 100)
	require.NoError(t, err)
	require.Equal(t, 100, steps)
	require.False(t, st.Halted)
}

func TestRunningOffProgramEndHalts(t *testing.T) {
	st, _ := runProgram(t, []uint32{addi(1, 0, 1)}, 100)
	require.True(t, st.Halted)
	require.Equal(t, uint32(1), st.Registers[1])
}

func TestBranches(t *testing.T) {
	// x1 = 4; loop: x2 += 1; x1 -= 1; bne x1, x0, loop; ebreak
	st, _ := runProgram(t, []uint32{
		addi(1, 0, 4),
		addi(2, 2, 1),
		addi(1, 1, 0xFFF),         // x1 -= 1
		encodeB(1, 1, 0, 0x1FF8), // bne x1, x0, -8
		ebreak,
	}, 100)
	require.True(t, st.Halted)
	require.Equal(t, uint32(4), st.Registers[2])
	require.Zero(t, st.Registers[1])
}

func TestSignedBranchComparison(t *testing.T) {
	// x1 = -1; blt x1, x0 taken -> skip the x2 marker write
	st, _ := runProgram(t, []uint32{
		addi(1, 0, 0xFFF),     // x1 = -1
		encodeB(4, 1, 0, 8),  // blt x1, x0, +8
		addi(2, 0, 1),        // skipped
		ebreak,
	}, 100)
	require.True(t, st.Halted)
	require.Zero(t, st.Registers[2])
}

func TestLoadStoreRoundTrip(t *testing.T) {
	st, mem := runProgram(t, []uint32{
		addi(1, 0, 0x100),   // base address
		addi(2, 0, 0x2A),    // value
		sw(1, 2, 0),         // [x1] = x2
		lw(3, 1, 0),         // x3 = [x1]
		ebreak,
	}, 100)
	require.True(t, st.Halted)
	require.Equal(t, uint32(0x2A), st.Registers[3])
	require.Equal(t, uint32(0x2A), mem.Word(0x100))
}

func TestLoadByteSignExtension(t *testing.T) {
	st, _ := runProgram(t, []uint32{
		addi(1, 0, 0x200),
		addi(2, 0, 0xF80), // x2 = -128; low byte 0x80
		sb(1, 2, 0),
		lb(3, 1, 0),                 // sign-extended
		encodeI(0x03, 4, 4, 1, 0),   // lbu x4
		ebreak,
	}, 100)
	require.Equal(t, uint32(0xFFFFFF80), st.Registers[3])
	require.Equal(t, uint32(0x80), st.Registers[4])
}

func TestCSRInstructions(t *testing.T) {
	st, _ := runProgram(t, []uint32{
		addi(1, 0, 0x155),
		csrrw(2, 1, CSRSatp), // satp = 0x155, x2 = old (0)
		addi(3, 0, 0x022),
		csrrs(4, 3, CSRSatp), // satp |= 0x022, x4 = 0x155
		csrrc(5, 1, CSRSatp), // satp &^= 0x155, x5 = 0x177
		csrrs(6, 0, CSRSatp), // read-only, x6 = 0x022
		ebreak,
	}, 100)
	require.True(t, st.Halted)
	require.Zero(t, st.Registers[2])
	require.Equal(t, uint32(0x155), st.Registers[4])
	require.Equal(t, uint32(0x177), st.Registers[5])
	require.Equal(t, uint32(0x022), st.Registers[6])
	require.Equal(t, uint32(0x022), st.Satp())
}

func TestModeCSRBootsMachine(t *testing.T) {
	st := NewState([]uint32{ebreak})
	require.Equal(t, uint32(ModeMachine), st.Mode())
	require.Zero(t, st.Satp())
}

func TestECallRaisesPendingCall(t *testing.T) {
	st := NewState([]uint32{
		addi(17, 0, 1),    // a7 = console event
		addi(16, 0, 0),    // a6 = put char
		addi(10, 0, 0x41), // a0 = 'A'
		ecall,
		ebreak,
	})
	mem := NewMemory(64)
	steps, err := st.Run(mem, 100)
	require.NoError(t, err)
	// Run stops right after the ecall so the burst never buries the call.
	require.Equal(t, 4, steps)
	require.False(t, st.Halted)
	require.NotNil(t, st.Call)
	require.Equal(t, uint32(1), st.Call.EventID)
	require.Equal(t, uint32(0), st.Call.FunctionID)
	require.Equal(t, uint32(0x41), st.Call.Args[0])
	require.Equal(t, uint32(16), st.PC) // ecall advanced the pc

	// Clearing the side channel lets the next burst reach the halt.
	st.Call = nil
	_, err = st.Run(mem, 100)
	require.NoError(t, err)
	require.True(t, st.Halted)
}

func TestJalLinksReturnAddress(t *testing.T) {
	st, _ := runProgram(t, []uint32{
		encodeJ(1, 8),  // jal x1, +8
		addi(2, 0, 1),  // skipped
		ebreak,
	}, 100)
	require.True(t, st.Halted)
	require.Equal(t, uint32(4), st.Registers[1])
	require.Zero(t, st.Registers[2])
}

func TestJalrClearsLowBit(t *testing.T) {
	st, _ := runProgram(t, []uint32{
		addi(1, 0, 9),              // odd target
		encodeI(0x67, 2, 0, 1, 0), // jalr x2, 0(x1) -> pc = 8
		ebreak,                     // at pc 8
	}, 100)
	require.True(t, st.Halted)
	require.Equal(t, uint32(8), st.PC)
	require.Equal(t, uint32(8), st.Registers[2])
}

func TestMulDiv(t *testing.T) {
	st, _ := runProgram(t, []uint32{
		addi(1, 0, 7),
		addi(2, 0, 0xFFD),       // x2 = -3
		encodeR(0x33, 3, 0, 1, 2, 1), // mul
		encodeR(0x33, 4, 4, 1, 2, 1), // div
		encodeR(0x33, 5, 6, 1, 2, 1), // rem
		encodeR(0x33, 6, 4, 1, 0, 1), // div by zero
		ebreak,
	}, 100)
	require.Equal(t, uint32(0xFFFFFFEB), st.Registers[3]) // -21
	require.Equal(t, uint32(0xFFFFFFFE), st.Registers[4]) // -2
	require.Equal(t, uint32(1), st.Registers[5])
	require.Equal(t, ^uint32(0), st.Registers[6])
}

func TestDecodeTaggedVariant(t *testing.T) {
	d, err := Decode(addi(1, 0, 10))
	require.NoError(t, err)
	require.Equal(t, uint32(0x13), d.Opcode)
	require.Equal(t, uint32(1), d.Rd)

	_, err = Decode(0x0000007B)
	require.True(t, errors.Is(err, ErrUnknownOpcode))
}
