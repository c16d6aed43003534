package codebook

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Span locates one token's instruction sequence inside a flattened image.
// Offset and Length are in 32-bit words.
type Span struct {
	Offset uint32 `json:"offset"`
	Length uint32 `json:"length"`
}

// Image is the device-consumable form of a codebook: every token's
// instructions concatenated into one flat buffer, with per-token offsets.
// Derived, never persisted; regenerated whenever the codebook changes.
type Image struct {
	Instructions []uint32
	Offsets      map[uint32]Span
}

// Flatten builds the execution image in a single linear pass over the tokens
// in registration order. The result is cached until the next Register call,
// and is deterministic for an unmodified codebook.
func (b *Codebook) Flatten() *Image {
	if b.image != nil {
		return b.image
	}
	img := &Image{
		Offsets: make(map[uint32]Span, len(b.order)),
	}
	for _, id := range b.order {
		t := b.tokens[id]
		img.Offsets[id] = Span{
			Offset: uint32(len(img.Instructions)),
			Length: uint32(len(t.Instructions)),
		}
		img.Instructions = append(img.Instructions, t.Instructions...)
	}
	b.image = img
	return img
}

// Digest hashes the little-endian packed instruction buffer. Two flattenings
// of the same token set produce the same digest.
func (img *Image) Digest() common.Hash {
	return crypto.Keccak256Hash(packCode(img.Instructions))
}

// Expand resolves a token id to its instruction words within the image.
func (img *Image) Expand(id uint32) ([]uint32, bool) {
	span, ok := img.Offsets[id&MaxTokenID]
	if !ok {
		return nil, false
	}
	return img.Instructions[span.Offset : span.Offset+span.Length], true
}
