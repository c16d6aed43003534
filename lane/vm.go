package lane

import (
	"errors"
	"fmt"
)

// ErrUnknownOpcode tags encodings outside the supported subset. Step treats
// them as pc-advancing no-ops unless State.FaultOnUnknown is set; decode
// itself never panics on malformed input.
var ErrUnknownOpcode = errors.New("unknown instruction opcode")

// Decoded holds the field values shared by every instruction type. Fields
// that do not apply to a given opcode are simply ignored by the executor.
type Decoded struct {
	Raw    uint32
	Opcode uint32
	Rd     uint32
	Funct3 uint32
	Rs1    uint32
	Rs2    uint32
	Funct7 uint32
}

// Decode splits an instruction word into its fields, rejecting opcodes
// outside the supported subset.
func Decode(instr uint32) (Decoded, error) {
	d := Decoded{
		Raw:    instr,
		Opcode: parseOpcode(instr),
		Rd:     parseRd(instr),
		Funct3: parseFunct3(instr),
		Rs1:    parseRs1(instr),
		Rs2:    parseRs2(instr),
		Funct7: parseFunct7(instr),
	}
	switch d.Opcode {
	case 0x03, 0x23, 0x63, 0x13, 0x33, 0x37, 0x17, 0x6F, 0x67, 0x73, 0x0F:
		return d, nil
	default:
		return d, fmt.Errorf("%w: %#02x", ErrUnknownOpcode, d.Opcode)
	}
}

// Step fetches, decodes and executes a single instruction against mem.
// Running off the end of the instruction buffer halts the lane.
func (s *State) Step(mem *Memory) error {
	if s.Halted {
		return nil
	}

	pc := s.PC
	instr, ok := s.fetch()
	if !ok {
		s.Halted = true
		return nil
	}

	d, err := Decode(instr)
	if err != nil {
		if s.FaultOnUnknown {
			return fmt.Errorf("pc %#08x: %w", pc, err)
		}
		// Forward progress over precise trapping: unknown encodings are
		// no-ops that advance the program counter.
		s.PC = pc + 4
		return nil
	}

	switch d.Opcode {
	case 0x03: // 000_0011: memory loading
		// LB, LH, LW, LBU, LHU
		imm := parseImmTypeI(instr)
		signed := d.Funct3&4 == 0
		size := uint32(1) << (d.Funct3 & 3)
		addr := s.loadRegister(d.Rs1) + imm
		var rdValue uint32
		if phys, ok := s.translate(addr, mem); ok {
			rdValue = mem.load(phys, size, signed)
		}
		s.writeRegister(d.Rd, rdValue)
		s.PC = pc + 4
	case 0x23: // 010_0011: memory storing
		// SB, SH, SW
		imm := parseImmTypeS(instr)
		size := uint32(1) << (d.Funct3 & 3)
		addr := s.loadRegister(d.Rs1) + imm
		if phys, ok := s.translate(addr, mem); ok {
			mem.store(phys, size, s.loadRegister(d.Rs2))
		}
		s.PC = pc + 4
	case 0x63: // 110_0011: branching
		rs1Value := s.loadRegister(d.Rs1)
		rs2Value := s.loadRegister(d.Rs2)
		var branchHit bool
		switch d.Funct3 {
		case 0: // 000 = BEQ
			branchHit = rs1Value == rs2Value
		case 1: // 001 = BNE
			branchHit = rs1Value != rs2Value
		case 4: // 100 = BLT
			branchHit = int32(rs1Value) < int32(rs2Value)
		case 5: // 101 = BGE
			branchHit = int32(rs1Value) >= int32(rs2Value)
		case 6: // 110 = BLTU
			branchHit = rs1Value < rs2Value
		case 7: // 111 = BGEU
			branchHit = rs1Value >= rs2Value
		}
		if branchHit {
			s.PC = pc + parseImmTypeB(instr)
		} else {
			s.PC = pc + 4
		}
	case 0x13: // 001_0011: immediate arithmetic and logic
		rs1Value := s.loadRegister(d.Rs1)
		imm := parseImmTypeI(instr)
		var rdValue uint32
		switch d.Funct3 {
		case 0: // 000 = ADDI
			rdValue = rs1Value + imm
		case 1: // 001 = SLLI
			rdValue = rs1Value << (imm & 0x1F)
		case 2: // 010 = SLTI
			rdValue = b2i(int32(rs1Value) < int32(imm))
		case 3: // 011 = SLTIU
			rdValue = b2i(rs1Value < imm)
		case 4: // 100 = XORI
			rdValue = rs1Value ^ imm
		case 5: // 101 = SR~
			switch imm >> 5 { // the top 7 bits select the shift type
			case 0x00: // 0000000 = SRLI
				rdValue = rs1Value >> (imm & 0x1F)
			case 0x20: // 0100000 = SRAI
				rdValue = uint32(int32(rs1Value) >> (imm & 0x1F))
			}
		case 6: // 110 = ORI
			rdValue = rs1Value | imm
		case 7: // 111 = ANDI
			rdValue = rs1Value & imm
		}
		s.writeRegister(d.Rd, rdValue)
		s.PC = pc + 4
	case 0x33: // 011_0011: register arithmetic and logic
		rs1Value := s.loadRegister(d.Rs1)
		rs2Value := s.loadRegister(d.Rs2)
		var rdValue uint32
		switch d.Funct7 {
		case 1: // RV M extension
			switch d.Funct3 {
			case 0: // 000 = MUL
				rdValue = rs1Value * rs2Value
			case 1: // 001 = MULH: upper bits of signed x signed
				rdValue = uint32(int64(int32(rs1Value)) * int64(int32(rs2Value)) >> 32)
			case 2: // 010 = MULHSU: upper bits of signed x unsigned
				rdValue = uint32(int64(int32(rs1Value)) * int64(rs2Value) >> 32)
			case 3: // 011 = MULHU: upper bits of unsigned x unsigned
				rdValue = uint32(uint64(rs1Value) * uint64(rs2Value) >> 32)
			case 4: // 100 = DIV
				switch {
				case rs2Value == 0:
					rdValue = ^uint32(0)
				case rs1Value == 1<<31 && rs2Value == ^uint32(0): // overflow
					rdValue = rs1Value
				default:
					rdValue = uint32(int32(rs1Value) / int32(rs2Value))
				}
			case 5: // 101 = DIVU
				if rs2Value == 0 {
					rdValue = ^uint32(0)
				} else {
					rdValue = rs1Value / rs2Value
				}
			case 6: // 110 = REM
				switch {
				case rs2Value == 0:
					rdValue = rs1Value
				case rs1Value == 1<<31 && rs2Value == ^uint32(0): // overflow
					rdValue = 0
				default:
					rdValue = uint32(int32(rs1Value) % int32(rs2Value))
				}
			case 7: // 111 = REMU
				if rs2Value == 0 {
					rdValue = rs1Value
				} else {
					rdValue = rs1Value % rs2Value
				}
			}
		default:
			switch d.Funct3 {
			case 0: // 000 = ADD/SUB
				switch d.Funct7 {
				case 0x00: // 0000000 = ADD
					rdValue = rs1Value + rs2Value
				case 0x20: // 0100000 = SUB
					rdValue = rs1Value - rs2Value
				}
			case 1: // 001 = SLL
				rdValue = rs1Value << (rs2Value & 0x1F)
			case 2: // 010 = SLT
				rdValue = b2i(int32(rs1Value) < int32(rs2Value))
			case 3: // 011 = SLTU
				rdValue = b2i(rs1Value < rs2Value)
			case 4: // 100 = XOR
				rdValue = rs1Value ^ rs2Value
			case 5: // 101 = SR~
				switch d.Funct7 {
				case 0x00: // 0000000 = SRL: fill with zeroes
					rdValue = rs1Value >> (rs2Value & 0x1F)
				case 0x20: // 0100000 = SRA: sign bit is extended
					rdValue = uint32(int32(rs1Value) >> (rs2Value & 0x1F))
				}
			case 6: // 110 = OR
				rdValue = rs1Value | rs2Value
			case 7: // 111 = AND
				rdValue = rs1Value & rs2Value
			}
		}
		s.writeRegister(d.Rd, rdValue)
		s.PC = pc + 4
	case 0x37: // 011_0111: LUI = Load upper immediate
		s.writeRegister(d.Rd, parseImmTypeU(instr))
		s.PC = pc + 4
	case 0x17: // 001_0111: AUIPC = Add upper immediate to PC
		s.writeRegister(d.Rd, pc+parseImmTypeU(instr))
		s.PC = pc + 4
	case 0x6F: // 110_1111: JAL = Jump and link
		s.writeRegister(d.Rd, pc+4)
		s.PC = pc + parseImmTypeJ(instr)
	case 0x67: // 110_0111: JALR = Jump and link register
		rs1Value := s.loadRegister(d.Rs1)
		s.writeRegister(d.Rd, pc+4)
		s.PC = (rs1Value + parseImmTypeI(instr)) &^ 1 // least significant bit is set to 0
	case 0x73: // 111_0011: environment things
		switch d.Funct3 {
		case 0: // 000 = ECALL/EBREAK
			switch instr >> 20 { // I-type, top 12 bits
			case 0: // imm12 = 000000000000 ECALL
				s.raiseCall()
				s.PC = pc + 4
			default: // imm12 = 000000000001 EBREAK: the halt encoding.
				// PC and registers stay untouched so state is inspectable.
				s.Halted = true
			}
		default: // CSR instructions
			num := parseCSR(instr)
			value := d.Rs1 // zimm for the immediate variants
			if d.Funct3&4 == 0 {
				value = s.loadRegister(d.Rs1)
			}
			rdValue := s.updateCSR(num, value, d.Funct3&3)
			s.writeRegister(d.Rd, rdValue)
			s.PC = pc + 4
		}
	case 0x0F: // 000_1111: fence
		// No mem-op pipeline and no inter-lane ordering to flush; no-op.
		s.PC = pc + 4
	}
	return nil
}

// Run executes up to maxSteps instructions, stopping early on halt or on a
// raised supervisor call so a burst never buries a pending call. Returns the
// number of steps actually executed. The bound is the only cooperative
// mechanism keeping a guest loop from starving the dispatch slot.
func (s *State) Run(mem *Memory, maxSteps int) (int, error) {
	steps := 0
	for steps < maxSteps && !s.Halted && s.Call == nil {
		if err := s.Step(mem); err != nil {
			return steps, err
		}
		steps++
	}
	return steps, nil
}

// raiseCall latches the supervisor call side-channel from the SBI register
// convention: a7 = event id, a6 = function id, a0..a2 = arguments.
func (s *State) raiseCall() {
	s.Call = &PendingCall{
		EventID:    s.loadRegister(17),
		FunctionID: s.loadRegister(16),
		Args: [3]uint32{
			s.loadRegister(10),
			s.loadRegister(11),
			s.loadRegister(12),
		},
	}
}

func (s *State) updateCSR(num uint32, v uint32, mode uint32) (out uint32) {
	out = s.ReadCSR(num)
	switch mode {
	case 1: // ?01 = CSRRW(I)
	case 2: // ?10 = CSRRS(I)
		v = out | v
	case 3: // ?11 = CSRRC(I)
		v = out &^ v
	}
	s.WriteCSR(num, v)
	return
}

func b2i(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
