package api

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/trellisml/trellis/pkg/runtime"
)

// GenerateRequest is the POST /v1/generate body. Sampling knobs are
// pointers so absent and zero stay distinguishable.
type GenerateRequest struct {
	InputIDs          [][]int32      `json:"input_ids"`
	MaxNewTokens      *int           `json:"max_new_tokens,omitempty"`
	EndID             *int32         `json:"end_id,omitempty"`
	PadID             *int32         `json:"pad_id,omitempty"`
	Temperature       *float32       `json:"temperature,omitempty"`
	TopK              *int32         `json:"top_k,omitempty"`
	TopP              *float32       `json:"top_p,omitempty"`
	RepetitionPenalty *float32       `json:"repetition_penalty,omitempty"`
	Seed              *uint64        `json:"seed,omitempty"`
	BeamWidth         *int32         `json:"beam_width,omitempty"`
	StopWords         *WordListValue `json:"stop_words_list,omitempty"`
	BadWords          *WordListValue `json:"bad_words_list,omitempty"`
}

func (r GenerateRequest) toGeneration() (runtime.GenerationRequest, error) {
	if len(r.InputIDs) == 0 {
		return runtime.GenerationRequest{}, newInvalidRequest("input_ids is required")
	}
	for i, seq := range r.InputIDs {
		if len(seq) == 0 {
			return runtime.GenerationRequest{}, newInvalidRequest(fmt.Sprintf("input_ids[%d] is empty", i))
		}
	}

	var sc runtime.SamplingConfig
	if r.MaxNewTokens != nil {
		sc.MaxNewTokens = *r.MaxNewTokens
	}
	if r.EndID != nil {
		sc.EndID = *r.EndID
	}
	if r.PadID != nil {
		sc.PadID = *r.PadID
	}
	if r.Temperature != nil {
		sc.Temperature = *r.Temperature
	}
	if r.TopK != nil {
		sc.TopK = *r.TopK
	}
	if r.TopP != nil {
		sc.TopP = *r.TopP
	}
	if r.RepetitionPenalty != nil {
		sc.RepetitionPenalty = *r.RepetitionPenalty
	}
	if r.Seed != nil {
		sc.Seed = *r.Seed
	}
	if r.BeamWidth != nil {
		sc.BeamWidth = *r.BeamWidth
	}
	sc.StopWords = r.StopWords.Value()
	sc.BadWords = r.BadWords.Value()

	return runtime.GenerationRequest{InputIDs: r.InputIDs, Sampling: sc}, nil
}

// WordListValue carries a word-list field in whatever shape it arrived:
// nested token-id lists ([[1,2],[3]]) or a flat two-row buffer
// ([1,2,3,2,3,-1]). Anything else is kept raw so the session normalizer,
// the sole dispatch point for word-list variants, can reject it by type.
type WordListValue struct {
	Nested [][]int32
	Flat   []int32
	Raw    any
}

func (v *WordListValue) UnmarshalJSON(b []byte) error {
	if v == nil {
		return fmt.Errorf("word list: nil receiver")
	}
	*v = WordListValue{}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		if firstElementIsArray(b) {
			return json.Unmarshal(b, &v.Nested)
		}
		return json.Unmarshal(b, &v.Flat)
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v.Raw = raw
	return nil
}

func (v WordListValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Nested != nil:
		return json.Marshal(v.Nested)
	case v.Flat != nil:
		return json.Marshal(v.Flat)
	case v.Raw != nil:
		return json.Marshal(v.Raw)
	default:
		return []byte("null"), nil
	}
}

// Value returns the payload untyped for SamplingConfig. A nil receiver
// means the field was absent.
func (v *WordListValue) Value() any {
	if v == nil {
		return nil
	}
	switch {
	case v.Nested != nil:
		return v.Nested
	case v.Flat != nil:
		return v.Flat
	default:
		return v.Raw
	}
}

// firstElementIsArray peeks past the opening bracket to see whether the
// array nests.
func firstElementIsArray(b []byte) bool {
	for _, c := range b[1:] {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

type GenerateResponse struct {
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	Created   int64     `json:"created"`
	OutputIDs [][]int32 `json:"output_ids"`
	Usage     Usage     `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type EngineInfoResponse struct {
	Architecture string `json:"architecture"`
	DType        string `json:"dtype,omitempty"`
	Version      string `json:"version"`
	Rank         int    `json:"rank"`
	Device       int    `json:"device"`
	Mode         string `json:"mode"`
	WorldSize    int    `json:"world_size"`
	TPSize       int    `json:"tp_size,omitempty"`
	PPSize       int    `json:"pp_size,omitempty"`
	MaxInputLen  int    `json:"max_input_len"`
	MaxSeqLen    int    `json:"max_seq_len"`
	MaxBatchSize int    `json:"max_batch_size"`
	MaxBeamWidth int    `json:"max_beam_width"`
}

type HealthResponse struct {
	Status        string  `json:"status"`
	Rank          int     `json:"rank"`
	Device        int     `json:"device"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
