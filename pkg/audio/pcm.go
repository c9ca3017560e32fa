package audio

// MaxVolume is the top of the playback volume scale.
const MaxVolume = 10

// Resample converts little-endian mono PCM from srcRate to dstRate using
// linear interpolation. The input is returned unchanged when the rates match
// or either rate is invalid.
func Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := BytesToSamples(pcm)
	n := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return SamplesToBytes(out)
}

// ScaleVolume applies a 0-[MaxVolume] volume level to little-endian PCM.
// Level MaxVolume returns pcm unchanged; level 0 returns silence of the same
// length. Levels outside the range are clamped.
func ScaleVolume(pcm []byte, level int) []byte {
	switch {
	case level >= MaxVolume:
		return pcm
	case level < 0:
		level = 0
	}
	samples := BytesToSamples(pcm)
	gain := float64(level) / MaxVolume
	for i, s := range samples {
		samples[i] = clamp16(float64(s) * gain)
	}
	return SamplesToBytes(samples)
}

func clamp16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
