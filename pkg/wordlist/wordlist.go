// Package wordlist implements the canonical device-ready encoding of
// stop-word and bad-word token constraints.
//
// The canonical form is two int32 rows of equal length: Tokens holds the
// token ids of every word back to back, Offsets holds the inclusive end
// offset of each word in ascending order, padded with -1 up to the row
// length. The nested lists [[1,2],[3]] encode as Tokens [1 2 3] and
// Offsets [2 3 -1].
package wordlist

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrRowMismatch = errors.New("token and offset rows differ in length")
	ErrEmptyWord   = errors.New("empty word")
	ErrBadOffsets  = errors.New("malformed offsets row")
	ErrOddLength   = errors.New("flat form must contain two equal rows")
)

// Array is the canonical two-row word-list representation consumed by the
// generation subsystem. Both rows always have equal length.
type Array struct {
	Tokens  []int32
	Offsets []int32
}

// Encode flattens per-word token-id lists into the canonical form.
// Words must be non-empty; an empty outer list encodes to an empty Array.
func Encode(words [][]int32) (*Array, error) {
	total := 0
	for i, w := range words {
		if len(w) == 0 {
			return nil, fmt.Errorf("%w: word %d", ErrEmptyWord, i)
		}
		total += len(w)
	}

	a := &Array{
		Tokens:  make([]int32, 0, total),
		Offsets: make([]int32, 0, total),
	}
	end := int32(0)
	for _, w := range words {
		a.Tokens = append(a.Tokens, w...)
		end += int32(len(w))
		a.Offsets = append(a.Offsets, end)
	}
	for len(a.Offsets) < total {
		a.Offsets = append(a.Offsets, -1)
	}
	return a, nil
}

// FromFlat reinterprets a flat buffer holding the two canonical rows back to
// back. The conversion copies the rows but never reinterprets values.
func FromFlat(flat []int32) (*Array, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrOddLength, len(flat))
	}
	n := len(flat) / 2
	a := &Array{
		Tokens:  slices.Clone(flat[:n]),
		Offsets: slices.Clone(flat[n:]),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the canonical-form invariants: equal row lengths, strictly
// ascending offsets bounded by the token row, and -1 padding only at the tail.
func (a *Array) Validate() error {
	if len(a.Tokens) != len(a.Offsets) {
		return fmt.Errorf("%w: %d tokens, %d offsets", ErrRowMismatch, len(a.Tokens), len(a.Offsets))
	}
	prev := int32(0)
	padded := false
	for i, off := range a.Offsets {
		if off == -1 {
			padded = true
			continue
		}
		if padded {
			return fmt.Errorf("%w: offset %d after padding", ErrBadOffsets, i)
		}
		if off <= prev {
			return fmt.Errorf("%w: offset %d not ascending", ErrBadOffsets, i)
		}
		if int(off) > len(a.Tokens) {
			return fmt.Errorf("%w: offset %d exceeds token row", ErrBadOffsets, i)
		}
		prev = off
	}
	return nil
}

// Len reports the row length (column count).
func (a *Array) Len() int {
	return len(a.Tokens)
}

// Words reports how many words the array encodes.
func (a *Array) Words() int {
	n := 0
	for _, off := range a.Offsets {
		if off == -1 {
			break
		}
		n++
	}
	return n
}

// Word returns the token ids of the i-th encoded word as a view into Tokens.
func (a *Array) Word(i int) []int32 {
	start := int32(0)
	if i > 0 {
		start = a.Offsets[i-1]
	}
	return a.Tokens[start:a.Offsets[i]]
}

// Decode expands the array back into per-word token-id lists.
func (a *Array) Decode() [][]int32 {
	words := make([][]int32, 0, a.Words())
	for i := 0; i < a.Words(); i++ {
		words = append(words, slices.Clone(a.Word(i)))
	}
	return words
}

// Flat returns the two rows back to back, the inverse of FromFlat.
func (a *Array) Flat() []int32 {
	flat := make([]int32, 0, 2*len(a.Tokens))
	flat = append(flat, a.Tokens...)
	flat = append(flat, a.Offsets...)
	return flat
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		Tokens:  slices.Clone(a.Tokens),
		Offsets: slices.Clone(a.Offsets),
	}
}

// Equal reports whether two arrays encode identical rows.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	return slices.Equal(a.Tokens, b.Tokens) && slices.Equal(a.Offsets, b.Offsets)
}
