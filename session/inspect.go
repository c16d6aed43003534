package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

func modeName(mode uint32) string {
	switch mode {
	case 0:
		return "user"
	case 1:
		return "supervisor"
	case 3:
		return "machine"
	default:
		return fmt.Sprintf("mode(%d)", mode)
	}
}

// DumpState formats one lane's inspection surface: registers, pc, privilege
// mode, address-translation control and the halted flag.
func (s *Session) DumpState(i int) string {
	if i < 0 || i >= len(s.lanes) {
		return fmt.Sprintf("lane %d: not provisioned", i)
	}
	st := s.lanes[i]
	var sb strings.Builder
	fmt.Fprintf(&sb, "lane %d: pc=0x%08x mode=%s satp=0x%08x halted=%v\n",
		i, st.PC, modeName(st.Mode()), st.Satp(), st.Halted)
	for r := 0; r < 32; r += 4 {
		fmt.Fprintf(&sb, "  x%02d=0x%08x x%02d=0x%08x x%02d=0x%08x x%02d=0x%08x\n",
			r, st.Registers[r], r+1, st.Registers[r+1],
			r+2, st.Registers[r+2], r+3, st.Registers[r+3])
	}
	return sb.String()
}

// MarshalLane snapshots one lane's state as JSON, for external debuggers.
func (s *Session) MarshalLane(i int) ([]byte, error) {
	if i < 0 || i >= len(s.lanes) {
		return nil, fmt.Errorf("lane %d not provisioned", i)
	}
	return json.MarshalIndent(s.lanes[i], "", "  ")
}
