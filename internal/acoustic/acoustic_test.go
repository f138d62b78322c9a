package acoustic

import (
	"testing"

	"github.com/antoniostano/whisperpool/internal/decoder"
)

func TestModelDecodeEmptyIsBadInput(t *testing.T) {
	m := NewModel(16000)
	outcome := m.Decode(nil, decoder.DecodeOptions{}, func(decoder.RawSegment) bool { return false }, func() bool { return false })
	if outcome.Kind != decoder.BadInput {
		t.Fatalf("expected BadInput, got %v", outcome.Kind)
	}
}

func TestModelDecodeAbortedBeforeStart(t *testing.T) {
	m := NewModel(16000)
	samples := make([]float32, 16000)
	outcome := m.Decode(samples, decoder.DecodeOptions{}, func(decoder.RawSegment) bool { return false }, func() bool { return true })
	if outcome.Kind != decoder.Aborted {
		t.Fatalf("expected Aborted, got %v", outcome.Kind)
	}
}

func TestModelDecodeProducesOneSegmentWithTokens(t *testing.T) {
	m := NewModel(16000)
	samples := make([]float32, 16000*2)
	var got decoder.RawSegment
	calls := 0
	outcome := m.Decode(samples, decoder.DecodeOptions{Language: "auto"}, func(seg decoder.RawSegment) bool {
		calls++
		got = seg
		return false
	}, func() bool { return false })

	if outcome.Kind != decoder.Ok {
		t.Fatalf("expected Ok, got %v (%v)", outcome.Kind, outcome.Err)
	}
	if outcome.DetectedLanguage != "en" {
		t.Fatalf("expected detected language en, got %q", outcome.DetectedLanguage)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one segment callback, got %d", calls)
	}
	if len(got.Tokens) == 0 {
		t.Fatal("expected at least one token")
	}
	if got.T1 <= got.T0 {
		t.Fatalf("expected T1 > T0, got T0=%d T1=%d", got.T0, got.T1)
	}
	last := got.Tokens[len(got.Tokens)-1]
	if last.T1 != got.T1 {
		t.Fatalf("expected last token to end at segment end, got %d != %d", last.T1, got.T1)
	}
}

func TestModelDecodeDeterministic(t *testing.T) {
	m := NewModel(16000)
	samples := make([]float32, 16000*3)
	var first, second []string
	m.Decode(samples, decoder.DecodeOptions{}, func(seg decoder.RawSegment) bool {
		for _, tok := range seg.Tokens {
			first = append(first, tok.Text)
		}
		return false
	}, func() bool { return false })
	m.Decode(samples, decoder.DecodeOptions{}, func(seg decoder.RawSegment) bool {
		for _, tok := range seg.Tokens {
			second = append(second, tok.Text)
		}
		return false
	}, func() bool { return false })

	if len(first) != len(second) {
		t.Fatalf("expected deterministic token count, got %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected deterministic token text at %d, got %q vs %q", i, first[i], second[i])
		}
	}
}

func TestRMSModelPredictSilenceVsLoud(t *testing.T) {
	m := NewRMSModel(0)

	silence := make([]float32, 1024)
	pSilence, err := m.Predict(silence)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loud := make([]float32, 1024)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 0.8
		} else {
			loud[i] = -0.8
		}
	}
	pLoud, err := m.Predict(loud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pLoud <= pSilence {
		t.Fatalf("expected loud window to score higher than silence: loud=%f silence=%f", pLoud, pSilence)
	}
	if pSilence != 0 {
		t.Fatalf("expected silence to score 0, got %f", pSilence)
	}
	if pLoud <= 0.5 {
		t.Fatalf("expected loud window to score above 0.5, got %f", pLoud)
	}
}

func TestRMSModelPredictEmptyWindow(t *testing.T) {
	m := NewRMSModel(0)
	p, err := m.Predict(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 0 {
		t.Fatalf("expected 0 for empty window, got %f", p)
	}
}
