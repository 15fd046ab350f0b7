package runtime

import (
	"fmt"

	"github.com/trellisml/trellis/internal/metrics"
	"github.com/trellisml/trellis/pkg/wordlist"
)

// WordListEncoder turns nested token-id lists into the canonical two-row
// array. wordlist.Encode is the reference implementation; sessions use it
// unless WithEncoder supplies another.
type WordListEncoder interface {
	Encode(words [][]int32) (*wordlist.Array, error)
}

// EncoderFunc adapts a function to the WordListEncoder interface.
type EncoderFunc func(words [][]int32) (*wordlist.Array, error)

func (f EncoderFunc) Encode(words [][]int32) (*wordlist.Array, error) {
	return f(words)
}

// Word-list field names as they appear on the wire.
const (
	fieldStopWords = "stop_words_list"
	fieldBadWords  = "bad_words_list"
)

// SamplingConfig carries per-request generation parameters.
//
// StopWords and BadWords each accept one of a closed variant set: nil,
// *wordlist.Array (canonical), wordlist.Array, []int32 (flat two-row
// buffer), or [][]int32 (token-id lists, encoded via a WordListEncoder).
// Normalized resolves them; everything else is rejected with an
// *UnsupportedWordListError.
//
// A SamplingConfig is not safe for concurrent use; give each caller its own.
type SamplingConfig struct {
	MaxNewTokens int
	EndID        int32
	PadID        int32

	Temperature       float32
	TopK              int32
	TopP              float32
	RepetitionPenalty float32
	Seed              uint64
	BeamWidth         int32

	StopWords any
	BadWords  any
}

// Normalized returns a copy whose word-list fields hold the canonical
// *wordlist.Array, or nil when absent. Already-canonical values pass through
// untouched, no re-encode, so running this before every generation is cheap
// and idempotent. A nil enc falls back to wordlist.Encode.
func (c SamplingConfig) Normalized(enc WordListEncoder) (SamplingConfig, error) {
	if enc == nil {
		enc = EncoderFunc(wordlist.Encode)
	}
	stop, err := normalizeWordList(fieldStopWords, c.StopWords, enc)
	if err != nil {
		return SamplingConfig{}, err
	}
	bad, err := normalizeWordList(fieldBadWords, c.BadWords, enc)
	if err != nil {
		return SamplingConfig{}, err
	}

	out := c
	out.StopWords = nil
	if stop != nil {
		out.StopWords = stop
	}
	out.BadWords = nil
	if bad != nil {
		out.BadWords = bad
	}
	return out, nil
}

func normalizeWordList(field string, v any, enc WordListEncoder) (*wordlist.Array, error) {
	switch w := v.(type) {
	case nil:
		return nil, nil
	case *wordlist.Array:
		// Identity: same pointer out, no re-encode.
		metrics.RecordNormalization(field, "canonical")
		return w, nil
	case wordlist.Array:
		metrics.RecordNormalization(field, "canonical")
		return &w, nil
	case []int32:
		a, err := wordlist.FromFlat(w)
		if err != nil {
			metrics.RecordRejection(field)
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		metrics.RecordNormalization(field, "flat")
		return a, nil
	case [][]int32:
		a, err := enc.Encode(w)
		if err != nil {
			metrics.RecordRejection(field)
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		metrics.RecordNormalization(field, "nested")
		return a, nil
	default:
		metrics.RecordRejection(field)
		return nil, &UnsupportedWordListError{Field: field, Value: v}
	}
}
