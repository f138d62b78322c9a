// Package model holds the core data types shared across the transcription
// job engine: job status, decode configuration, and the segment/token
// result shapes produced by the acoustic model.
package model

import "time"

// Status is the job lifecycle state. Transitions are strictly forward:
// Waiting -> Running -> {Done, Failed, Aborted}.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// Terminal reports whether status is one the job never leaves.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// VADConfig holds the voice-activity-detector tuning parameters. Units
// follow the original Silero-style detector: sample rate in Hz, durations
// in milliseconds except MaxSpeechSeconds.
type VADConfig struct {
	SampleRate        int     `json:"sample_rate"`
	WindowSizeMs      int     `json:"window_size_ms"`
	Threshold         float32 `json:"threshold"`
	MinSilenceMs      int     `json:"min_silence_ms"`
	MinSpeechMs       int     `json:"min_speech_ms"`
	PadMs             int     `json:"pad_ms"`
	MaxSpeechSeconds  float64 `json:"max_speech_seconds"`
}

// DefaultVADConfig mirrors the reference detector's constructor defaults.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SampleRate:       16000,
		WindowSizeMs:     64,
		Threshold:        0.5,
		MinSilenceMs:     98,
		MinSpeechMs:      64,
		PadMs:            64,
		MaxSpeechSeconds: 0, // 0 means "infinite" (no forced split)
	}
}

// DecodeConfig is the immutable per-job decoding configuration.
type DecodeConfig struct {
	Language           string    `json:"lang"`
	Translate          bool      `json:"translate"`
	Reset              bool      `json:"reset"`
	UseVAD             bool      `json:"use_vad"`
	Threads            int       `json:"n_threads"`
	OffsetMs           int       `json:"offset_ms"`
	DurationMs         int       `json:"duration_ms"`
	ResetMinNoSpeechMs int       `json:"reset_min_nospeech_ms"`
	DTWPreset          string    `json:"dtw_preset,omitempty"`
	VAD                VADConfig `json:"vad"`
}

// DefaultDecodeConfig mirrors WhisperJobConfig's defaults in the reference
// implementation.
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{
		Language:           "auto",
		ResetMinNoSpeechMs: 10000,
		VAD:                DefaultVADConfig(),
	}
}

// Token is the acoustic model's smallest output unit.
type Token struct {
	ID      int     `json:"id"`
	TID     int     `json:"tid"`
	P       float32 `json:"p"`
	PLog    float32 `json:"plog"`
	PT      float32 `json:"pt"`
	PTSum   float32 `json:"ptsum"`
	T0      int64   `json:"t0"`
	T1      int64   `json:"t1"`
	TDTW    int64   `json:"t_dtw"`
	VLen    float32 `json:"vlen"`
	Special bool    `json:"special"`
	Text    string  `json:"text"`

	// merged counts how many raw tokens have been folded into this one via
	// UTF-8 continuation stitching (1 for an unmerged token).
	merged int
}

// Merged returns how many raw tokens have been folded into this one.
// Zero-value tokens report 1 (themselves, unmerged).
func (t Token) Merged() int {
	if t.merged == 0 {
		return 1
	}
	return t.merged
}

// SetMerged sets the merge count explicitly (used by the decoder's UTF-8
// continuation-byte stitcher).
func (t *Token) SetMerged(n int) { t.merged = n }

// Segment is a contiguous block of transcribed text with timing metadata.
// T0/T1 are in 10ms units, matching the reference implementation.
type Segment struct {
	T0       int64   `json:"t0"`
	T1       int64   `json:"t1"`
	Text     string  `json:"text"`
	Lang     string  `json:"lang"`
	TurnNext bool    `json:"turn_next"`
	Tokens   []Token `json:"tokens"`
}

// Result is the full output of a completed job, matching the synchronous
// HTTP response shape.
type Result struct {
	Segments []Segment `json:"segments"`
	Lang     string    `json:"lang"`
}

// JobView is a read-only snapshot of a job's externally visible state,
// returned by the registry without exposing internal synchronization
// handles.
type JobView struct {
	ID        string
	Status    Status
	Segments  []Segment
	CreatedAt time.Time
}
