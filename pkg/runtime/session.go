// Package runtime assembles a bound, ready-to-generate session from an
// engine, a device binder, and a cluster mapping. A session binds its device
// exactly once at construction; there is no rebind, a new topology means a
// new session.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trellisml/trellis/internal/logger"
	"github.com/trellisml/trellis/internal/metrics"
	"github.com/trellisml/trellis/pkg/device"
	"github.com/trellisml/trellis/pkg/engine"
	"github.com/trellisml/trellis/pkg/wordlist"
)

// Defaults applied by Generate when the caller leaves the field zero.
const (
	DefaultMaxNewTokens = 16
	DefaultBeamWidth    = 1
)

// Session is one rank's generation endpoint: a bound device, a deserialized
// executable, and an execution stream. Not safe for concurrent Generate
// calls; work on the stream is FIFO.
type Session struct {
	binder  *device.Binder
	engine  *engine.Engine
	mapping Mapping

	dev        device.Device
	exec       device.Executable
	stream     device.Stream
	ownsStream bool

	enc    WordListEncoder
	log    logger.Logger
	closed bool
}

type sessionOptions struct {
	stream device.Stream
	enc    WordListEncoder
	log    logger.Logger
}

type Option func(*sessionOptions)

// WithStream adopts an externally owned stream. The session launches on it
// but never closes it; the caller keeps its lifetime, which is what lets a
// decoding subsystem observe the same queue.
func WithStream(st device.Stream) Option {
	return func(o *sessionOptions) { o.stream = st }
}

// WithEncoder overrides the word-list encoder used during sampling
// normalization.
func WithEncoder(enc WordListEncoder) Option {
	return func(o *sessionOptions) { o.enc = enc }
}

func WithLogger(log logger.Logger) Option {
	return func(o *sessionOptions) { o.log = log }
}

// NewSession binds, deserializes, and acquires a stream, in that order:
//
//  1. m.Validate()
//  2. b.Bind(m.Rank, m.GPUsPerNode) selects the session's device
//  3. the engine buffer is deserialized against the bound device
//  4. a stream is created on that device, unless WithStream supplied one
//
// The ordering is load-bearing: deserialization targets whatever device is
// active, so binding must come first.
func NewSession(b *device.Binder, eng *engine.Engine, m Mapping, opts ...Option) (*Session, error) {
	if b == nil {
		return nil, errors.New("runtime: nil binder")
	}
	if eng == nil {
		return nil, errors.New("runtime: nil engine")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.enc == nil {
		o.enc = EncoderFunc(wordlist.Encode)
	}
	if o.log == nil {
		o.log = logger.Default()
	}
	log := o.log.With("component", "session", "rank", m.Rank)

	dev, err := b.Bind(m.Rank, m.GPUsPerNode)
	if err != nil {
		return nil, err
	}

	if eng.Config != nil {
		switch r := eng.Config.Pretrained.Rank; {
		case r == 0 && m.Rank != 0:
			eng.Config.SetRank(m.Rank)
		case r != m.Rank:
			log.Warn("engine rank differs from mapping rank", "engine_rank", r, "mapping_rank", m.Rank)
		}
	}

	start := time.Now()
	exec, err := b.Runtime().Deserialize(eng.Buffer(), dev)
	if err != nil {
		return nil, fmt.Errorf("deserialize engine: %w", err)
	}
	metrics.RecordDeserialize(time.Since(start))

	stream := o.stream
	owns := false
	if stream == nil {
		stream, err = b.Runtime().NewStream(dev)
		if err != nil {
			_ = exec.Close()
			return nil, fmt.Errorf("acquire stream: %w", err)
		}
		owns = true
	}

	metrics.SessionsActive.Inc()
	log.Debug("session ready", "device", int(dev), "owns_stream", owns)

	return &Session{
		binder:     b,
		engine:     eng,
		mapping:    m,
		dev:        dev,
		exec:       exec,
		stream:     stream,
		ownsStream: owns,
		enc:        o.enc,
		log:        log,
	}, nil
}

// GenerationRequest is one batched generate call.
type GenerationRequest struct {
	InputIDs [][]int32
	Sampling SamplingConfig
}

// GenerationResult carries generated ids per input sequence, prompt
// excluded.
type GenerationResult struct {
	OutputIDs        [][]int32
	PromptTokens     int
	CompletionTokens int
}

// Generate normalizes the request's sampling config, then launches one
// generation on the session stream. Normalization runs on every call
// because callers may hand the same SamplingConfig a differently-typed word
// list between calls; word lists reach the executable in canonical form
// only.
func (s *Session) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(req.InputIDs) == 0 {
		return nil, errors.New("runtime: empty input batch")
	}

	norm, err := req.Sampling.Normalized(s.enc)
	if err != nil {
		return nil, err
	}
	if norm.MaxNewTokens <= 0 {
		norm.MaxNewTokens = DefaultMaxNewTokens
	}
	if norm.BeamWidth <= 0 {
		norm.BeamWidth = DefaultBeamWidth
	}

	stop, _ := norm.StopWords.(*wordlist.Array)
	bad, _ := norm.BadWords.(*wordlist.Array)

	start := time.Now()
	res, err := s.exec.Execute(ctx, s.stream, device.ExecRequest{
		InputIDs:          req.InputIDs,
		MaxNewTokens:      norm.MaxNewTokens,
		EndID:             norm.EndID,
		PadID:             norm.PadID,
		Temperature:       norm.Temperature,
		TopK:              norm.TopK,
		TopP:              norm.TopP,
		RepetitionPenalty: norm.RepetitionPenalty,
		Seed:              norm.Seed,
		BeamWidth:         norm.BeamWidth,
		StopWords:         stop,
		BadWords:          bad,
	})
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}

	out := &GenerationResult{OutputIDs: res.OutputIDs}
	for _, seq := range req.InputIDs {
		out.PromptTokens += len(seq)
	}
	for _, seq := range res.OutputIDs {
		out.CompletionTokens += len(seq)
	}
	metrics.RecordGenerate(out.CompletionTokens, time.Since(start))
	s.log.Debug("generate complete", "sequences", len(res.OutputIDs), "completion_tokens", out.CompletionTokens)
	return out, nil
}

// Device is the device bound at construction.
func (s *Session) Device() device.Device { return s.dev }

// Mode reports the binder's management mode.
func (s *Session) Mode() device.Mode { return s.binder.Mode() }

func (s *Session) Mapping() Mapping { return s.mapping }

func (s *Session) Engine() *engine.Engine { return s.engine }

// Close releases the executable and, when the session created it, the
// stream. An adopted stream is left open for its owner. Safe to call twice.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	metrics.SessionsActive.Dec()

	err := s.exec.Close()
	if s.ownsStream {
		err = errors.Join(err, s.stream.Close())
	}
	return err
}
