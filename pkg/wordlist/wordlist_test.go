package wordlist

import (
	"errors"
	"slices"
	"testing"
)

func TestEncodeShape(t *testing.T) {
	t.Parallel()

	a, err := Encode([][]int32{{1, 2}, {3}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !slices.Equal(a.Tokens, []int32{1, 2, 3}) {
		t.Fatalf("tokens mismatch: got %v", a.Tokens)
	}
	if !slices.Equal(a.Offsets, []int32{2, 3, -1}) {
		t.Fatalf("offsets mismatch: got %v", a.Offsets)
	}
	if a.Words() != 2 {
		t.Fatalf("words: got %d want 2", a.Words())
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEncodeSingleTokenWordsNeedNoPadding(t *testing.T) {
	t.Parallel()

	a, err := Encode([][]int32{{7}, {8}, {9}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !slices.Equal(a.Offsets, []int32{1, 2, 3}) {
		t.Fatalf("offsets mismatch: got %v", a.Offsets)
	}
	if a.Len() != 3 {
		t.Fatalf("len: got %d want 3", a.Len())
	}
}

func TestEncodeEmptyOuterList(t *testing.T) {
	t.Parallel()

	a, err := Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if a.Len() != 0 || a.Words() != 0 {
		t.Fatalf("expected empty array, got len %d words %d", a.Len(), a.Words())
	}
}

func TestEncodeRejectsEmptyWord(t *testing.T) {
	t.Parallel()

	if _, err := Encode([][]int32{{1}, {}}); !errors.Is(err, ErrEmptyWord) {
		t.Fatalf("expected ErrEmptyWord, got %v", err)
	}
}

func TestDecodeInvertsEncode(t *testing.T) {
	t.Parallel()

	words := [][]int32{{10, 11, 12}, {13}, {14, 15}}
	a, err := Encode(words)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := a.Decode()
	if len(got) != len(words) {
		t.Fatalf("word count: got %d want %d", len(got), len(words))
	}
	for i := range words {
		if !slices.Equal(got[i], words[i]) {
			t.Fatalf("word %d mismatch: got %v want %v", i, got[i], words[i])
		}
	}
}

func TestFlatRoundTrip(t *testing.T) {
	t.Parallel()

	a, err := Encode([][]int32{{1, 2}, {3}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := FromFlat(a.Flat())
	if err != nil {
		t.Fatalf("from flat: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("flat round trip mismatch: %v vs %v", a, b)
	}
}

func TestFromFlatRejectsOddLength(t *testing.T) {
	t.Parallel()

	if _, err := FromFlat([]int32{1, 2, 3}); !errors.Is(err, ErrOddLength) {
		t.Fatalf("expected ErrOddLength, got %v", err)
	}
}

func TestValidateRejectsMalformedOffsets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		arr  Array
		want error
	}{
		{
			name: "rows differ",
			arr:  Array{Tokens: []int32{1, 2}, Offsets: []int32{2}},
			want: ErrRowMismatch,
		},
		{
			name: "descending offsets",
			arr:  Array{Tokens: []int32{1, 2, 3}, Offsets: []int32{3, 2, -1}},
			want: ErrBadOffsets,
		},
		{
			name: "offset past token row",
			arr:  Array{Tokens: []int32{1, 2}, Offsets: []int32{2, 5}},
			want: ErrBadOffsets,
		},
		{
			name: "data after padding",
			arr:  Array{Tokens: []int32{1, 2, 3}, Offsets: []int32{2, -1, 3}},
			want: ErrBadOffsets,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if err := tc.arr.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	a, err := Encode([][]int32{{1, 2}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := a.Clone()
	b.Tokens[0] = 99
	if a.Tokens[0] == 99 {
		t.Fatalf("clone shares token storage")
	}
	if !a.Equal(a) || a.Equal(b) {
		t.Fatalf("equality misbehaves after clone mutation")
	}
}
