// Package audio defines the frame type and the capture/playback abstractions
// shared by the acoustic front end, the endpointer and the speech output path.
//
// All audio inside nanobot is mono, signed 16-bit PCM. Capture runs at a
// fixed rate (16 kHz by default) and is cut into fixed-size [Frame] values by
// a [Source]. Playback accepts little-endian PCM byte chunks through a [Sink].
//
// This package lives under pkg/ because device adapters and detection
// backends outside this module are expected to produce and consume [Frame].
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// DefaultSampleRate is the capture rate expected by the VAD and wake-word
	// models.
	DefaultSampleRate = 16000

	// DefaultFrameSamples is the number of samples per frame (32 ms at 16 kHz).
	DefaultFrameSamples = 512
)

// Frame is one fixed-length block of mono 16-bit samples. A frame is
// immutable once produced by a [Source] and is consumed exactly once by the
// detection pipeline.
type Frame struct {
	// Samples holds the PCM samples in arrival order.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int

	// Seq is the arrival sequence number assigned by the producing source,
	// starting at 1. Zero means the frame was not produced by a source.
	Seq uint64
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Peak returns the largest absolute sample value in the frame.
func (f Frame) Peak() int {
	peak := 0
	for _, s := range f.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// RMS returns the root-mean-square energy of the frame in sample units
// (0-32767). Empty frames return 0.
func (f Frame) RMS() float64 {
	if len(f.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.Samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(f.Samples)))
}

// Bytes returns the frame as little-endian PCM.
func (f Frame) Bytes() []byte {
	return SamplesToBytes(f.Samples)
}

// Float32 returns the samples normalised to [-1, 1).
func (f Frame) Float32() []float32 {
	out := make([]float32, len(f.Samples))
	for i, s := range f.Samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// FrameFromBytes builds a frame from little-endian PCM. A trailing odd byte
// is ignored.
func FrameFromBytes(pcm []byte, sampleRate int) Frame {
	return Frame{Samples: BytesToSamples(pcm), SampleRate: sampleRate}
}

// SamplesToBytes encodes samples as little-endian PCM.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToSamples decodes little-endian PCM into samples.
func BytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// Concat joins the samples of frames in order.
func Concat(frames []Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}

// TotalDuration sums the durations of frames.
func TotalDuration(frames []Frame) time.Duration {
	var d time.Duration
	for _, f := range frames {
		d += f.Duration()
	}
	return d
}
