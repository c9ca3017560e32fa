package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/youpy/go-wav"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header written by
// [EncodeWAV]: RIFF descriptor, a 16-byte fmt chunk and the data chunk header.
const WAVHeaderSize = 44

// EncodeWAV wraps mono 16-bit samples in a canonical RIFF/WAVE container:
// one "fmt " chunk (PCM, 1 channel, 16 bits) followed by one "data" chunk.
// The RIFF size field is 36 + data size.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: invalid sample rate %d", sampleRate)
	}
	var buf bytes.Buffer
	buf.Grow(WAVHeaderSize + len(samples)*2)

	ws := make([]wav.Sample, len(samples))
	for i, s := range samples {
		ws[i] = wav.Sample{Values: [2]int{int(s), 0}}
	}
	w := wav.NewWriter(&buf, uint32(len(ws)), 1, uint32(sampleRate), 16)
	if err := w.WriteSamples(ws); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeFramesWAV encodes frames in order. The sample rate is taken from the
// first frame, or fallbackRate when frames is empty.
func EncodeFramesWAV(frames []Frame, fallbackRate int) ([]byte, error) {
	rate := fallbackRate
	if len(frames) > 0 && frames[0].SampleRate > 0 {
		rate = frames[0].SampleRate
	}
	return EncodeWAV(Concat(frames), rate)
}

// DecodeWAV parses a 16-bit PCM WAV file. Stereo input is averaged to mono.
func DecodeWAV(data []byte) (samples []int16, sampleRate int, err error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode wav: format: %w", err)
	}
	if format.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("audio: decode wav: unsupported bit depth %d", format.BitsPerSample)
	}
	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		return nil, 0, fmt.Errorf("audio: decode wav: unsupported channel count %d", channels)
	}

	for {
		batch, err := r.ReadSamples()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("audio: decode wav: samples: %w", err)
		}
		for _, s := range batch {
			v := s.Values[0]
			if channels == 2 {
				v = (s.Values[0] + s.Values[1]) / 2
			}
			samples = append(samples, int16(v))
		}
	}
	return samples, int(format.SampleRate), nil
}
