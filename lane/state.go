package lane

// Distinguished CSR slots. Mode mirrors the privilege word of the device
// execution state; satp follows the rv32 layout: bit 31 enables translation,
// the low 22 bits hold the root page-table frame number.
const (
	CSRMode = 0x000
	CSRSatp = 0x180

	ModeUser       = 0
	ModeSupervisor = 1
	ModeMachine    = 3

	SatpEnable    = 1 << 31
	SatpFrameMask = 1<<22 - 1
)

// PendingCall is the side-channel record a guest raises via ECALL. Consumed
// exactly once by the host bridge between bursts; never persisted.
type PendingCall struct {
	EventID    uint32    `json:"event_id"`
	FunctionID uint32    `json:"function_id"`
	Args       [3]uint32 `json:"args"`
}

// State is one logical core. Every lane gets its own State; lanes share
// nothing but (optionally) the data memory region.
type State struct {
	Registers [32]uint32        `json:"registers"`
	PC        uint32            `json:"pc"`
	CSR       map[uint32]uint32 `json:"csr"`
	Halted    bool              `json:"halted"`

	// FaultOnUnknown makes Step return ErrUnknownOpcode instead of treating
	// unknown encodings as pc-advancing no-ops.
	FaultOnUnknown bool `json:"-"`

	// Call is set when the guest raised a supervisor call; the bridge clears
	// it after servicing.
	Call *PendingCall `json:"-"`

	// Output accumulates console bytes written on this lane's behalf.
	Output []byte `json:"-"`

	prog []uint32 // device-resident instruction buffer, fetched bare
}

// NewState zero-initializes a lane over the given instruction buffer.
// Lanes boot in machine mode with translation off.
func NewState(prog []uint32) *State {
	return &State{
		CSR:  map[uint32]uint32{CSRMode: ModeMachine},
		prog: prog,
	}
}

func (s *State) loadRegister(i uint32) uint32 {
	if i == 0 {
		return 0
	}
	return s.Registers[i&31]
}

// writeRegister discards writes to x0; the zero register is enforced here,
// not assumed by callers.
func (s *State) writeRegister(i uint32, v uint32) {
	if i == 0 {
		return
	}
	s.Registers[i&31] = v
}

func (s *State) ReadCSR(num uint32) uint32 {
	return s.CSR[num]
}

func (s *State) WriteCSR(num uint32, v uint32) {
	s.CSR[num] = v
}

// Mode returns the current privilege level.
func (s *State) Mode() uint32 {
	return s.CSR[CSRMode]
}

// Satp returns the address-translation control word.
func (s *State) Satp() uint32 {
	return s.CSR[CSRSatp]
}

// fetch reads the instruction word at PC from the instruction buffer.
// Instruction fetch is always bare: the buffer is device-resident, not part
// of the translated data memory.
func (s *State) fetch() (uint32, bool) {
	idx := uint64(s.PC) >> 2
	if s.PC&3 != 0 || idx >= uint64(len(s.prog)) {
		return 0, false
	}
	return s.prog[idx], true
}

// translate resolves a data address against mem. With satp bit 31 clear the
// address is used verbatim. With it set, a single-level walk runs through the
// page table rooted at the satp frame number; an invalid PTE yields ok=false,
// which callers turn into zero reads and dropped writes rather than a fault.
func (s *State) translate(addr uint32, mem *Memory) (uint32, bool) {
	satp := s.CSR[CSRSatp]
	if satp&SatpEnable == 0 {
		return addr, true
	}
	root := (satp & SatpFrameMask) << 12
	pteAddr := root + (addr>>12)*4
	pte := mem.Word(pteAddr)
	if pte&1 == 0 {
		return 0, false
	}
	return (pte>>10)<<12 | addr&0xFFF, true
}
