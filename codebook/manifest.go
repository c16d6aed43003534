package codebook

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Manifest is the persisted interchange form of a codebook.
type Manifest struct {
	Version    string              `json:"version"`
	CreatedAt  time.Time           `json:"created_at"`
	Tokens     []ManifestToken     `json:"tokens"`
	Categories map[string]Category `json:"categories"`
}

// ManifestToken mirrors one token record. Complexity, stability and frequency
// are optional; absent fields take the documented defaults on import. A zero
// or absent token_id marks the id as unassigned: Import mints a
// content-addressed one from the instruction payload.
type ManifestToken struct {
	TokenID    uint32      `json:"token_id"`
	Name       string      `json:"name"`
	Category   CategoryRef `json:"category"`
	Complexity *float32    `json:"complexity,omitempty"`
	Stability  *float32    `json:"stability,omitempty"`
	CodeBytes  string      `json:"code_bytes"`
	Frequency  uint32      `json:"frequency,omitempty"`
}

// CategoryRef tolerates both JSON number and string forms of a category id.
// Non-numeric strings are resolved by category name at import time, to the
// lowest matching id when several entries share a name; export always
// normalizes to the numeric form.
type CategoryRef struct {
	id   uint32
	name string
}

func CategoryID(id uint32) CategoryRef { return CategoryRef{id: id} }

func (c CategoryRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.id)
}

func (c *CategoryRef) UnmarshalJSON(b []byte) error {
	var n uint32
	if err := json.Unmarshal(b, &n); err == nil {
		c.id = n
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("category must be a string or number, got %s", string(b))
	}
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		c.id = uint32(n)
		return nil
	}
	c.name = s
	return nil
}

// resolve maps a by-name reference onto the manifest's category table, picking
// the lowest id when several entries carry the same name so the result does
// not depend on map iteration order. Unresolvable names land in category 0,
// which reads back as "unknown".
func (c CategoryRef) resolve(categories map[string]Category) uint32 {
	if c.name == "" {
		return c.id
	}
	best, found := uint32(0), false
	for key, cat := range categories {
		if cat.Name != c.name {
			continue
		}
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			continue
		}
		if !found || uint32(id) < best {
			best, found = uint32(id), true
		}
	}
	return best
}

// Import replaces the codebook contents with the manifest's. Tokens with
// malformed code payloads are still registered, with zero instructions, so a
// single bad entry never blocks the rest of an authored manifest.
func (b *Codebook) Import(m Manifest) {
	b.Version = m.Version
	if !m.CreatedAt.IsZero() {
		b.CreatedAt = m.CreatedAt
	}
	b.tokens = make(map[uint32]*Token, len(m.Tokens))
	b.order = b.order[:0]
	b.categories = make(map[uint32]Category, len(m.Categories))
	b.image = nil

	for key, cat := range m.Categories {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			b.log.Warn("skipping category with non-numeric id", "id", key, "name", cat.Name)
			continue
		}
		b.categories[uint32(id)] = cat
	}

	for _, mt := range m.Tokens {
		words, err := DecodeCode(mt.CodeBytes)
		if err != nil {
			b.log.Warn("token has malformed code payload, registering empty",
				"token", mt.TokenID, "name", mt.Name, "err", err)
			words = []uint32{}
		}
		id := mt.TokenID
		if id == 0 {
			id = DeriveID(packCode(words))
			b.log.Debug("minted content-addressed token id",
				"token", id, "name", mt.Name)
		}
		t := Token{
			ID:           id,
			Name:         mt.Name,
			Category:     mt.Category.resolve(m.Categories),
			Complexity:   DefaultComplexity,
			Stability:    DefaultStability,
			Instructions: words,
			Frequency:    mt.Frequency,
		}
		if mt.Complexity != nil {
			t.Complexity = *mt.Complexity
		}
		if mt.Stability != nil {
			t.Stability = *mt.Stability
		}
		b.Register(t)
	}
}

// Export produces a manifest that Import reproduces the codebook from.
func (b *Codebook) Export() Manifest {
	m := Manifest{
		Version:    b.Version,
		CreatedAt:  b.CreatedAt,
		Tokens:     make([]ManifestToken, 0, len(b.order)),
		Categories: make(map[string]Category, len(b.categories)),
	}
	for id, cat := range b.categories {
		m.Categories[strconv.FormatUint(uint64(id), 10)] = cat
	}
	for _, id := range b.order {
		t := b.tokens[id]
		complexity, stability := t.Complexity, t.Stability
		m.Tokens = append(m.Tokens, ManifestToken{
			TokenID:    t.ID,
			Name:       t.Name,
			Category:   CategoryID(t.Category),
			Complexity: &complexity,
			Stability:  &stability,
			CodeBytes:  EncodeCode(t.Instructions),
			Frequency:  t.Frequency,
		})
	}
	return m
}

// ReadManifest decodes a JSON manifest stream.
func ReadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return m, nil
}

// WriteManifest encodes a manifest as indented JSON.
func WriteManifest(w io.Writer, m Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return nil
}
