// Package vad implements the voice-activity segmenter: a lazy, forward-only
// iterator over speech ranges in a PCM buffer, driven by a neural model
// that scores fixed-size windows.
//
// The decision state machine is ported from the reference Silero-style
// detector (original_source/src/vad/vad.cpp): triggered/temp_end/
// next_start/current_speech tracking over a sliding window.
package vad

import "github.com/antoniostano/whisperpool/internal/model"

// Model is the opaque neural voice-activity backend: given one window of
// float32 PCM samples it returns the probability that the window contains
// speech. Implementations may carry recurrent state (cleared by Reset) and
// are not required to be safe for concurrent use by multiple segmenters
// (each Segmenter should own its own Model instance, one per worker,
// exactly like the acoustic decoder).
type Model interface {
	// Predict scores one window and returns a speech probability in [0,1].
	Predict(window []float32) (float32, error)
	// Reset zeroes any recurrent state (LSTM hidden/cell state in the
	// reference implementation) so the next Predict call starts clean.
	Reset()
}

// Range is a half-open [Start, End) span of sample indices identified as
// speech.
type Range struct {
	Start int
	End   int
}

// Segmenter produces a lazy sequence of speech Ranges over a PCM buffer. A
// Segmenter is not safe for concurrent use; construct one per decode.
type Segmenter struct {
	model Model
	cfg   model.VADConfig
	ok    bool
}

// New constructs a Segmenter. If m is nil the segmenter is permanently
// inert (Ok() returns false) — this mirrors the reference implementation's
// "model load failure -> segmenter is inert" rule, letting the decoder
// driver fall back to whole-buffer decoding without a special case.
func New(m Model, cfg model.VADConfig) *Segmenter {
	if cfg.SampleRate <= 0 {
		cfg = model.DefaultVADConfig()
	}
	return &Segmenter{model: m, cfg: cfg, ok: m != nil}
}

// Ok reports whether the underlying model is usable.
func (s *Segmenter) Ok() bool { return s.ok }

func (s *Segmenter) windowSize() int {
	return s.cfg.SampleRate * s.cfg.WindowSizeMs / 1000
}

func (s *Segmenter) samplesPerMs() float64 {
	return float64(s.cfg.SampleRate) / 1000.0
}

func (s *Segmenter) minSilenceSamples() int {
	return int(float64(s.cfg.MinSilenceMs) * s.samplesPerMs())
}

func (s *Segmenter) minSpeechSamples() int {
	return int(float64(s.cfg.MinSpeechMs) * s.samplesPerMs())
}

func (s *Segmenter) maxSpeechSamples() int {
	if s.cfg.MaxSpeechSeconds <= 0 {
		return int(^uint(0) >> 1) // effectively infinite
	}
	return int(s.cfg.MaxSpeechSeconds * float64(s.cfg.SampleRate))
}

// minSilenceSamplesAtMaxSpeech is a hardcoded constant carried from the
// reference implementation, used only in the force-close-on-max-speech
// branch.
func (s *Segmenter) minSilenceSamplesAtMaxSpeech() int {
	return int(s.samplesPerMs() * 98)
}

// Iterator walks speech ranges over buf, advancing the model one window at
// a time. It is single-pass and forward-only: pulling one range advances
// the model only enough to emit it.
type Iterator struct {
	s   *Segmenter
	buf []float32

	pos int // next window start sample

	triggered    bool
	currentStart int
	tempEnd      int
	nextStart    int
	prevEnd      int

	err error
}

// Reset rewinds the segmenter's recurrent state. Call once per job before
// taking an Iterator.
func (s *Segmenter) Reset() {
	if s.model != nil {
		s.model.Reset()
	}
}

// Iter returns a fresh Iterator over buf. The segmenter's model state is
// reset first.
func (s *Segmenter) Iter(buf []float32) *Iterator {
	s.Reset()
	return &Iterator{s: s, buf: buf}
}

// Err returns the last model error encountered, if any.
func (it *Iterator) Err() error { return it.err }

// Next advances the iterator and returns the next speech range. ok is false
// once the buffer is exhausted (or on model error, check Err()).
func (it *Iterator) Next() (Range, bool) {
	s := it.s
	win := s.windowSize()
	if win <= 0 {
		return Range{}, false
	}

	for it.pos+win <= len(it.buf) {
		window := it.buf[it.pos : it.pos+win]
		current := it.pos + win
		it.pos += win

		p, err := s.model.Predict(window)
		if err != nil {
			it.err = err
			return Range{}, false
		}

		// Branches are mutually exclusive and checked in this order, matching
		// the reference implementation's sequential if/return chain
		// (original_source/src/vad/vad.cpp): a window scoring >= threshold is
		// handled and nothing else runs against it; the max-speech force-close
		// is only ever reached for a window that did *not* just (re)trigger.
		switch {
		case p >= s.cfg.Threshold:
			if !it.triggered {
				it.triggered = true
				it.currentStart = current - win
			}
			it.tempEnd = 0
			if it.nextStart < it.prevEnd {
				it.nextStart = current - win
			}

		case it.triggered && current-it.currentStart >= s.maxSpeechSamples():
			end := it.prevEnd
			if end == 0 || end <= it.currentStart {
				end = current
			}
			start := it.currentStart
			it.triggered = false
			it.tempEnd = 0
			it.prevEnd = end
			// restart immediately if silence was not established at max speech
			if current-end < s.minSilenceSamplesAtMaxSpeech() {
				it.triggered = true
				it.currentStart = end
			}
			if end-start >= s.minSpeechSamples() {
				return Range{Start: start, End: end}, true
			}

		case float32(p) < s.cfg.Threshold-0.15:
			if it.triggered {
				if it.tempEnd == 0 {
					it.tempEnd = current
				}
				if current-it.tempEnd >= s.minSilenceSamples() {
					end := it.tempEnd
					start := it.currentStart
					it.triggered = false
					it.tempEnd = 0
					it.prevEnd = end
					if end-start >= s.minSpeechSamples() {
						return Range{Start: start, End: end}, true
					}
				}
			}

		default:
			// soft region: threshold-0.15 <= p < threshold; no transition
		}
	}

	if it.triggered {
		it.triggered = false
		start, end := it.currentStart, len(it.buf)
		if end-start >= s.minSpeechSamples() {
			return Range{Start: start, End: end}, true
		}
	}

	return Range{}, false
}
