package lane

import (
	"encoding/binary"
	"fmt"
)

// Memory is a single flat byte-addressable region. Accesses beyond the bounds
// are clamped rather than trapped: reads zero-fill and writes are discarded,
// so inspection stays usable even when a guest has produced garbage
// addresses.
type Memory struct {
	data []byte
}

func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

func (m *Memory) Size() int {
	return len(m.data)
}

// load reads size bytes (1, 2 or 4) little-endian, sign-extending when asked.
func (m *Memory) load(addr uint32, size uint32, signed bool) uint32 {
	var buf [4]byte
	for i := uint32(0); i < size; i++ {
		a := uint64(addr) + uint64(i)
		if a < uint64(len(m.data)) {
			buf[i] = m.data[a]
		}
	}
	v := binary.LittleEndian.Uint32(buf[:])
	if signed && size < 4 {
		v = signExtend(v, size*8-1)
	}
	return v
}

// store writes size bytes (1, 2 or 4) little-endian. Out-of-bounds bytes are
// dropped.
func (m *Memory) store(addr uint32, size uint32, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	for i := uint32(0); i < size; i++ {
		a := uint64(addr) + uint64(i)
		if a < uint64(len(m.data)) {
			m.data[a] = buf[i]
		}
	}
}

// Word reads the aligned 32-bit word at addr, for page-table walks and
// inspection.
func (m *Memory) Word(addr uint32) uint32 {
	return m.load(addr, 4, false)
}

// SetWord writes a 32-bit word, clamped like every other access.
func (m *Memory) SetWord(addr uint32, v uint32) {
	m.store(addr, 4, v)
}

// Range copies out [addr, addr+length), clamped to the buffer bounds. The
// returned slice may be shorter than requested.
func (m *Memory) Range(addr uint32, length uint32) []byte {
	if uint64(addr) >= uint64(len(m.data)) {
		return []byte{}
	}
	end := uint64(addr) + uint64(length)
	if end > uint64(len(m.data)) {
		end = uint64(len(m.data))
	}
	out := make([]byte, end-uint64(addr))
	copy(out, m.data[addr:end])
	return out
}

// SetRange copies data into memory at addr, dropping whatever does not fit.
func (m *Memory) SetRange(addr uint32, data []byte) {
	if uint64(addr) >= uint64(len(m.data)) {
		return
	}
	copy(m.data[addr:], data)
}

// Clear zeroes the whole region.
func (m *Memory) Clear() {
	for i := range m.data {
		m.data[i] = 0
	}
}

func (m *Memory) Usage() string {
	total := uint64(len(m.data))
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}
