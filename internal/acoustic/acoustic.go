// Package acoustic provides the default, dependency-free implementations of
// the two opaque capability providers the engine consumes: the acoustic
// (Whisper-style) decode model and the voice-activity probability model.
// Per spec §1 these backends are external collaborators specified only as
// interfaces (decoder.Model, vad.Model); this package's implementations are
// a deliberately simple stand-in — useful for tests and for running the
// service without a real model file configured — not a transcription
// engine. A real acoustic backend is wired in by implementing the same
// interfaces and passing it to engine.New's DriverFactory instead.
package acoustic

import (
	"fmt"
	"math"

	"github.com/antoniostano/whisperpool/internal/decoder"
	"github.com/antoniostano/whisperpool/internal/model"
)

// Model is a minimal decoder.Model: it reports the whole input span as one
// segment, split into evenly-spaced word tokens, with placeholder
// probabilities. It never fails on well-formed (non-empty) input and checks
// shouldAbort before emitting, matching the cooperative-cancellation
// contract without requiring a real streaming backend.
type Model struct {
	SampleRate int
}

// NewModel constructs a Model. sampleRate <= 0 defaults to 16000.
func NewModel(sampleRate int) *Model {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Model{SampleRate: sampleRate}
}

var _ decoder.Model = (*Model)(nil)

func (m *Model) Decode(samples []float32, opts decoder.DecodeOptions, onSegment func(decoder.RawSegment) bool, shouldAbort func() bool) decoder.Outcome {
	if len(samples) == 0 {
		return decoder.Outcome{Kind: decoder.BadInput, Err: fmt.Errorf("acoustic: empty sample buffer")}
	}
	if shouldAbort() {
		return decoder.Outcome{Kind: decoder.Aborted}
	}

	lang := opts.Language
	detected := ""
	if lang == "" || lang == "auto" {
		detected = "en"
		lang = detected
	}

	durationUnits := int64(float64(len(samples)) / float64(m.SampleRate) * 100) // 10ms units

	words := placeholderWords(len(samples), m.SampleRate)
	tokens := wordsToTokens(words, durationUnits)

	seg := decoder.RawSegment{
		T0:     0,
		T1:     durationUnits,
		Lang:   lang,
		Tokens: tokens,
	}

	if shouldAbort() {
		return decoder.Outcome{Kind: decoder.Aborted}
	}

	onSegment(seg)

	return decoder.Outcome{Kind: decoder.Ok, DetectedLanguage: detected}
}

// placeholderWords derives a small, deterministic word list from the input
// length so repeated calls on the same audio produce the same transcript —
// useful for tests asserting on shape, not content.
func placeholderWords(numSamples, sampleRate int) []string {
	seconds := float64(numSamples) / float64(sampleRate)
	count := int(math.Max(1, math.Round(seconds)))
	words := make([]string, count)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i+1)
	}
	return words
}

// wordsToTokens spreads words evenly across [0, durationUnits) and assigns
// each one a single-token id/probability pair. Every token is a plain ASCII
// word marked non-special, so the decoder's UTF-8 stitcher passes each one
// through unmerged.
func wordsToTokens(words []string, durationUnits int64) []model.Token {
	if len(words) == 0 {
		return nil
	}
	step := durationUnits / int64(len(words))
	if step <= 0 {
		step = 1
	}
	tokens := make([]model.Token, 0, len(words))
	for i, w := range words {
		t0 := int64(i) * step
		t1 := t0 + step
		if i == len(words)-1 {
			t1 = durationUnits
		}
		text := w
		if i < len(words)-1 {
			text = w + " "
		}
		tokens = append(tokens, model.Token{
			ID:      1000 + i,
			TID:     1000 + i,
			P:       0.9,
			PLog:    -0.1,
			PT:      0.9,
			PTSum:   0.9,
			T0:      t0,
			T1:      t1,
			TDTW:    t0,
			VLen:    1,
			Special: false,
			Text:    text,
		})
	}
	return tokens
}
