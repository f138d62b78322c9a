package audio

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1, 0.25, -0.25}
	pcm := Float32ToPCM16LE(samples)

	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	info, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Fatalf("expected mono, got %d channels", info.Channels)
	}
	if len(info.Samples) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(info.Samples))
	}
	for i := range samples {
		// allow 1 LSB of quantization error (~1/32768)
		diff := float64(samples[i]) - float64(info.Samples[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/32768.0+1e-6 {
			t.Fatalf("sample %d: expected ~%f, got %f", i, samples[i], info.Samples[i])
		}
	}
}

func TestDecodeWAVRejectsBadMagic(t *testing.T) {
	if _, err := DecodeWAV([]byte("not a wav file at all")); err == nil {
		t.Fatal("expected error for invalid RIFF header")
	}
}

func TestDecodeWAVRejectsEmptyData(t *testing.T) {
	wav, err := EncodeWAVPCM16LE(nil, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeWAV(wav); err == nil {
		t.Fatal("expected error for zero-sample PCM")
	}
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	// interleaved stereo: L=1.0, R=-1.0 repeated -> mono average ~0
	samples := []float32{1, -1, 1, -1}
	pcm := Float32ToPCM16LE(samples)

	var buf []byte
	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, 0, 0, 0, 0) // size placeholder, unused by reader beyond header
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	fmtChunk := make([]byte, 16)
	fmtChunk[0] = 1 // PCM
	fmtChunk[2] = 2 // channels = 2
	// sample rate 16000
	fmtChunk[4] = 0x80
	fmtChunk[5] = 0x3e
	fmtChunk[14] = 16 // bits per sample
	buf = append(buf, le32(uint32(len(fmtChunk)))...)
	buf = append(buf, fmtChunk...)
	buf = append(buf, []byte("data")...)
	buf = append(buf, le32(uint32(len(pcm)))...)
	buf = append(buf, pcm...)

	info, err := DecodeWAV(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Channels != 2 {
		t.Fatalf("expected 2 channels reported, got %d", info.Channels)
	}
	if len(info.Samples) != 2 {
		t.Fatalf("expected 2 mono frames, got %d", len(info.Samples))
	}
	for i, s := range info.Samples {
		if s < -0.01 || s > 0.01 {
			t.Fatalf("expected downmixed frame %d near 0, got %f", i, s)
		}
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
