// Package decoder drives a single job's acoustic-model decode: whole-buffer
// or VAD-gated, with offset rebasing and UTF-8 continuation-byte token
// stitching. It is grounded on WhisperImpl::operator() and getSegment() in
// original_source/src/whisper.cpp.
package decoder

import (
	"strings"

	"github.com/antoniostano/whisperpool/internal/model"
	"github.com/antoniostano/whisperpool/internal/vad"
)

// OutcomeKind distinguishes decode results by kind, not by numeric code.
type OutcomeKind string

const (
	Ok          OutcomeKind = "ok"
	Aborted     OutcomeKind = "aborted"
	ModelError  OutcomeKind = "model_error"
	BadInput    OutcomeKind = "bad_input"
)

// Outcome is the result of one Model.Decode call.
type Outcome struct {
	Kind              OutcomeKind
	Err               error
	DetectedLanguage  string // set when opts.Language was "auto"/empty
}

// DecodeOptions configures one acoustic-model decode invocation.
type DecodeOptions struct {
	Language     string
	Translate    bool
	ResetContext bool
	Threads      int
	DTWPreset    string
}

// RawSegment is a segment as produced directly by the acoustic model,
// before offset rebasing or UTF-8 token stitching.
type RawSegment struct {
	T0       int64
	T1       int64
	Lang     string
	TurnNext bool
	Tokens   []model.Token
}

// Model is the opaque acoustic-model capability provider. onSegment is
// invoked for each newly produced segment (in order); returning true from
// it requests early stop. shouldAbort is polled between segments.
type Model interface {
	Decode(samples []float32, opts DecodeOptions, onSegment func(RawSegment) bool, shouldAbort func() bool) Outcome
}

// Driver runs one job's decode, choosing whole-buffer or VAD-gated mode and
// applying offset rebasing + token stitching before forwarding segments to
// the caller.
type Driver struct {
	Model Model
	VAD   *vad.Segmenter // nil or inert -> whole-buffer fallback
}

// Run decodes samples per cfg, invoking onSegment for each finished,
// rebased, stitched segment. onSegment's bool return requests early stop
// (cooperative abort from the consumer side). shouldAbort is polled by the
// acoustic layer; Run also checks it between VAD ranges.
func (d *Driver) Run(samples []float32, cfg model.DecodeConfig, onSegment func(model.Segment) bool, shouldAbort func() bool) Outcome {
	if len(samples) == 0 {
		return Outcome{Kind: BadInput, Err: errEmptySamples}
	}

	useVAD := cfg.UseVAD && d.VAD != nil && d.VAD.Ok()
	if !useVAD {
		return d.runWholeBuffer(samples, cfg, onSegment, shouldAbort)
	}
	return d.runVADGated(samples, cfg, onSegment, shouldAbort)
}

func (d *Driver) runWholeBuffer(samples []float32, cfg model.DecodeConfig, onSegment func(model.Segment) bool, shouldAbort func() bool) Outcome {
	opts := DecodeOptions{
		Language:     cfg.Language,
		Translate:    cfg.Translate,
		ResetContext: cfg.Reset,
		Threads:      cfg.Threads,
		DTWPreset:    cfg.DTWPreset,
	}
	merger := &tokenMerger{}
	stopped := false
	outcome := d.Model.Decode(samples, opts, func(raw RawSegment) bool {
		seg := stitchSegment(raw, merger)
		if onSegment(seg) {
			stopped = true
			return true
		}
		return false
	}, shouldAbort)
	if stopped && outcome.Kind == Ok {
		return Outcome{Kind: Aborted}
	}
	return outcome
}

func (d *Driver) runVADGated(samples []float32, cfg model.DecodeConfig, onSegment func(model.Segment) bool, shouldAbort func() bool) Outcome {
	sampleRate := cfg.VAD.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	language := cfg.Language
	detecting := language == "" || language == "auto"

	it := d.VAD.Iter(samples)

	var (
		havePrevEnd bool
		prevEnd     int
		noSpeechMs  int
		stopped     bool
	)

	for {
		if shouldAbort() {
			return Outcome{Kind: Aborted}
		}
		rng, ok := it.Next()
		if !ok {
			if it.Err() != nil {
				return Outcome{Kind: ModelError, Err: it.Err()}
			}
			break
		}

		resetThisCall := cfg.Reset
		if havePrevEnd {
			gapMs := (rng.Start - prevEnd) * 1000 / sampleRate
			noSpeechMs += gapMs
			if noSpeechMs >= cfg.ResetMinNoSpeechMs {
				resetThisCall = true
				noSpeechMs = 0
			}
		}
		havePrevEnd = true
		prevEnd = rng.End

		offsetMs := rng.Start * 1000 / sampleRate
		offsetUnits := int64(offsetMs / 10)

		opts := DecodeOptions{
			Language:     language,
			Translate:    cfg.Translate,
			ResetContext: resetThisCall,
			Threads:      cfg.Threads,
			DTWPreset:    cfg.DTWPreset,
		}

		merger := &tokenMerger{}
		outcome := d.Model.Decode(samples[rng.Start:rng.End], opts, func(raw RawSegment) bool {
			rebaseSegment(&raw, offsetUnits)
			seg := stitchSegment(raw, merger)
			if onSegment(seg) {
				stopped = true
				return true
			}
			return false
		}, shouldAbort)

		if outcome.Kind == Aborted || stopped {
			return Outcome{Kind: Aborted}
		}
		if outcome.Kind != Ok {
			return outcome
		}
		if detecting && outcome.DetectedLanguage != "" {
			language = outcome.DetectedLanguage
			detecting = false
		}
	}

	return Outcome{Kind: Ok, DetectedLanguage: language}
}

func rebaseSegment(raw *RawSegment, offsetUnits int64) {
	raw.T0 += offsetUnits
	raw.T1 += offsetUnits
	for i := range raw.Tokens {
		raw.Tokens[i].T0 += offsetUnits
		raw.Tokens[i].T1 += offsetUnits
		raw.Tokens[i].TDTW += offsetUnits
	}
}

func stitchSegment(raw RawSegment, merger *tokenMerger) model.Segment {
	tokens := make([]model.Token, 0, len(raw.Tokens))
	for _, t := range raw.Tokens {
		tokens = append(tokens, merger.push(t)...)
	}
	tokens = append(tokens, merger.flush()...)

	var sb strings.Builder
	for _, t := range tokens {
		if !t.Special {
			sb.WriteString(t.Text)
		}
	}

	return model.Segment{
		T0:       raw.T0,
		T1:       raw.T1,
		Text:     sb.String(),
		Lang:     raw.Lang,
		TurnNext: raw.TurnNext,
		Tokens:   tokens,
	}
}
