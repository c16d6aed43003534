package codebook

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

const (
	// MaxTokenID bounds token ids to 24 bits, matching the per-pixel id
	// channel of the on-disk encoding.
	MaxTokenID = 1<<24 - 1

	DefaultComplexity = 0.5
	DefaultStability  = 0.5
)

// Category labels a group of tokens for authoring tools.
type Category struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// UnknownCategory is substituted when a token references a category id that
// the codebook has no entry for. Never an error: category metadata is
// best-effort.
var UnknownCategory = Category{Name: "unknown", Color: "#808080"}

// Token is a compressed unit that expands to zero or more 32-bit machine
// instructions. Immutable once registered, except Frequency which the
// consuming runtime bumps via Touch.
type Token struct {
	ID           uint32   `json:"token_id"`
	Name         string   `json:"name"`
	Category     uint32   `json:"category"`
	Complexity   float32  `json:"complexity"`
	Stability    float32  `json:"stability"`
	Instructions []uint32 `json:"instructions"`
	Frequency    uint32   `json:"frequency"`
}

// Codebook is the registry of all known tokens plus category metadata.
// It is an authoring-time data store: registration never fails, partial or
// invalid entries degrade instead of blocking unrelated tokens.
type Codebook struct {
	Version   string
	CreatedAt time.Time

	tokens     map[uint32]*Token
	order      []uint32 // registration order, drives flatten determinism
	categories map[uint32]Category

	image *Image // cached flattened image, nil when invalidated

	log log.Logger
}

func New(logger log.Logger) *Codebook {
	if logger == nil {
		logger = log.Root()
	}
	return &Codebook{
		Version:    "1",
		CreatedAt:  time.Now().UTC(),
		tokens:     make(map[uint32]*Token),
		categories: make(map[uint32]Category),
		log:        logger,
	}
}

// Register inserts or replaces a token by id. Ids are masked to 24 bits.
// Replacement swaps the whole record; tokens are never partially mutated.
// Any previously flattened image is invalidated.
func (b *Codebook) Register(t Token) {
	t.ID &= MaxTokenID
	if t.Instructions == nil {
		t.Instructions = []uint32{}
	}
	if _, ok := b.tokens[t.ID]; !ok {
		b.order = append(b.order, t.ID)
	}
	cp := t
	b.tokens[t.ID] = &cp
	b.image = nil
}

// SetCategory registers or replaces category metadata.
func (b *Codebook) SetCategory(id uint32, c Category) {
	b.categories[id] = c
}

// Lookup returns a copy of the token, so callers cannot alias the registry.
func (b *Codebook) Lookup(id uint32) (Token, bool) {
	t, ok := b.tokens[id&MaxTokenID]
	if !ok {
		return Token{}, false
	}
	cp := *t
	cp.Instructions = append([]uint32(nil), t.Instructions...)
	return cp, true
}

// ByCategory returns all tokens of a category, in registration order.
func (b *Codebook) ByCategory(category uint32) []Token {
	var out []Token
	for _, id := range b.order {
		if b.tokens[id].Category == category {
			t, _ := b.Lookup(id)
			out = append(out, t)
		}
	}
	return out
}

// CategoryOf resolves a token's category metadata, substituting
// UnknownCategory for missing entries.
func (b *Codebook) CategoryOf(t Token) Category {
	if c, ok := b.categories[t.Category]; ok {
		return c
	}
	return UnknownCategory
}

// Touch bumps a token's usage counter. The runtime calls this when a token is
// expanded for execution; the codebook itself never mutates frequency.
func (b *Codebook) Touch(id uint32) {
	if t, ok := b.tokens[id&MaxTokenID]; ok {
		t.Frequency++
	}
}

// Len returns the number of registered tokens.
func (b *Codebook) Len() int {
	return len(b.tokens)
}

// IDs returns all token ids in registration order.
func (b *Codebook) IDs() []uint32 {
	return append([]uint32(nil), b.order...)
}

// DecodeCode decodes a hex instruction payload into little-endian packed
// 32-bit words. Odd-length input is left-padded with a zero nibble, and the
// byte sequence is zero-padded up to a whole number of words.
func DecodeCode(s string) ([]uint32, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid code payload: %w", err)
	}
	for len(raw)%4 != 0 {
		raw = append(raw, 0)
	}
	words := make([]uint32, 0, len(raw)/4)
	for i := 0; i < len(raw); i += 4 {
		words = append(words, binary.LittleEndian.Uint32(raw[i:i+4]))
	}
	return words, nil
}

// packCode packs instruction words into their little-endian byte form, the
// canonical payload for hashing and export.
func packCode(words []uint32) []byte {
	raw := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[4*i:], w)
	}
	return raw
}

// EncodeCode is the inverse of DecodeCode, used on manifest export.
func EncodeCode(words []uint32) string {
	return hex.EncodeToString(packCode(words))
}

// DeriveID mints a content-addressed token id: the low 24 bits of the
// Keccak256 digest of the instruction payload. Equal payloads always derive
// equal ids.
func DeriveID(code []byte) uint32 {
	h := crypto.Keccak256Hash(code)
	v := new(uint256.Int).SetBytes32(h[:])
	return uint32(v.Uint64()) & MaxTokenID
}
