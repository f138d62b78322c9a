// Package audio provides WAV encode/decode and PCM16LE<->float32 conversion
// helpers. Pure functions, grounded on the spec's invariant that WAV
// encode-then-decode is the identity on normalized PCM (float32 mono 16kHz)
// up to bit exactness.
package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ErrUnsupportedFormat is returned by DecodeWAV when the container is not a
// PCM16LE WAV file (mono or multi-channel).
var ErrUnsupportedFormat = errors.New("audio: unsupported WAV format")

// WAVInfo describes a decoded WAV file's format metadata alongside its
// normalized samples.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Samples    []float32 // normalized to [-1, 1], downmixed to mono if Channels > 1
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LEFile writes raw PCM16LE mono audio bytes as a WAV file.
func WriteWAVPCM16LEFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAVPCM16LETo(f, pcm, sampleRate)
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(audioFormat)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(numChannels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// DecodeWAV parses a RIFF/WAVE container holding PCM16LE audio (mono or
// multi-channel) and returns it downmixed to mono float32 samples. It
// rejects non-PCM formats and bit depths other than 16.
func DecodeWAV(data []byte) (WAVInfo, error) {
	r := bytes.NewReader(data)

	var riffTag [4]byte
	if _, err := io.ReadFull(r, riffTag[:]); err != nil {
		return WAVInfo{}, fmt.Errorf("audio: read RIFF tag: %w", err)
	}
	if string(riffTag[:]) != "RIFF" {
		return WAVInfo{}, ErrUnsupportedFormat
	}
	var riffSize uint32
	if err := binary.Read(r, binary.LittleEndian, &riffSize); err != nil {
		return WAVInfo{}, fmt.Errorf("audio: read RIFF size: %w", err)
	}
	var waveTag [4]byte
	if _, err := io.ReadFull(r, waveTag[:]); err != nil {
		return WAVInfo{}, fmt.Errorf("audio: read WAVE tag: %w", err)
	}
	if string(waveTag[:]) != "WAVE" {
		return WAVInfo{}, ErrUnsupportedFormat
	}

	var (
		sampleRate    int
		numChannels   int
		bitsPerSample int
		audioFormat   uint16
		pcm           []byte
		haveFmt       bool
	)

	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return WAVInfo{}, fmt.Errorf("audio: read chunk id: %w", err)
		}
		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return WAVInfo{}, fmt.Errorf("audio: read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAVInfo{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return WAVInfo{}, ErrUnsupportedFormat
			}
			audioFormat = binary.LittleEndian.Uint16(body[0:2])
			numChannels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			pcm = make([]byte, chunkSize)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return WAVInfo{}, fmt.Errorf("audio: read data chunk: %w", err)
			}
		default:
			if _, err := r.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return WAVInfo{}, fmt.Errorf("audio: skip chunk %q: %w", chunkID, err)
			}
		}
		if chunkSize%2 == 1 {
			// chunks are word-aligned; skip the pad byte
			if _, err := r.Seek(1, io.SeekCurrent); err != nil {
				break
			}
		}
	}

	if !haveFmt || pcm == nil {
		return WAVInfo{}, ErrUnsupportedFormat
	}
	if audioFormat != 1 || bitsPerSample != 16 || numChannels < 1 {
		return WAVInfo{}, ErrUnsupportedFormat
	}
	if len(pcm) == 0 {
		return WAVInfo{}, fmt.Errorf("audio: zero-sample PCM")
	}

	samples := PCM16LEToFloat32(pcm)
	if numChannels > 1 {
		samples = downmixToMono(samples, numChannels)
	}

	return WAVInfo{SampleRate: sampleRate, Channels: numChannels, Samples: samples}, nil
}

// PCM16LEToFloat32 converts little-endian signed 16-bit PCM bytes to
// normalized float32 samples in [-1, 1]. Trailing odd bytes are ignored.
func PCM16LEToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// Float32ToPCM16LE converts normalized float32 samples in [-1, 1] to
// little-endian signed 16-bit PCM bytes, clamping out-of-range values.
func Float32ToPCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		q := math.Round(v * 32768.0)
		if q > 32767 {
			q = 32767
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(q)))
	}
	return out
}

func downmixToMono(samples []float32, channels int) []float32 {
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
