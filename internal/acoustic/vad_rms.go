package acoustic

import (
	"math"

	"github.com/antoniostano/whisperpool/internal/vad"
)

// defaultRMSThreshold is the energy level (on a 0..1 normalized PCM scale)
// above which a window is scored as likely speech. Grounded on the
// computeRMS/defaultRMSThreshold energy-gate pattern used as a lightweight
// stand-in for a neural VAD in the wider pack's whisper provider.
const defaultRMSThreshold = 0.015

// RMSModel is a dependency-free vad.Model: it scores a window by its root-
// mean-square energy, mapped onto [0,1] by a soft knee around
// defaultRMSThreshold. It carries no recurrent state, so Reset is a no-op.
type RMSModel struct {
	Threshold float64
}

// NewRMSModel constructs an RMSModel. threshold <= 0 uses defaultRMSThreshold.
func NewRMSModel(threshold float64) *RMSModel {
	if threshold <= 0 {
		threshold = defaultRMSThreshold
	}
	return &RMSModel{Threshold: threshold}
}

var _ vad.Model = (*RMSModel)(nil)

func (m *RMSModel) Predict(window []float32) (float32, error) {
	if len(window) == 0 {
		return 0, nil
	}
	rms := computeRMS(window)
	// Soft knee: probability climbs smoothly through the threshold rather
	// than stepping, so the segmenter's hysteresis (threshold vs
	// threshold-0.15) has room to operate.
	ratio := rms / m.Threshold
	p := ratio / (1 + ratio)
	if p > 1 {
		p = 1
	}
	return float32(p), nil
}

func (m *RMSModel) Reset() {}

// computeRMS returns the root-mean-square amplitude of window, samples
// assumed normalized to [-1, 1].
func computeRMS(window []float32) float64 {
	var sumSquares float64
	for _, s := range window {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(window)))
}
