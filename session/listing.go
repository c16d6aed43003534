package session

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseListing reads a raw program: one 32-bit instruction word per line as a
// hex literal, with optional 0x prefixes, blank lines and # comments. A
// human-authoring convenience, not a binary format.
func ParseListing(r io.Reader) ([]uint32, error) {
	var words []uint32
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		for _, field := range strings.Fields(text) {
			field = strings.TrimPrefix(field, "0x")
			v, err := strconv.ParseUint(field, 16, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad instruction word %q: %w", line, field, err)
			}
			words = append(words, uint32(v))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return words, nil
}
