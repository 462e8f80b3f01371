package audioio

// Resample converts audio from one sample rate to another using linear interpolation.
// Speech survives this well enough; music would want a polyphase filter.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate {
		return samples
	}

	if len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)

	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			// Linear interpolation
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = int16(s1 + frac*(s2-s1))
		}
	}

	return result
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// StereoToMono averages stereo samples to mono.
func StereoToMono(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := range mono {
		left := int32(samples[i*2])
		right := int32(samples[i*2+1])
		mono[i] = int16((left + right) / 2)
	}
	return mono
}

// MonoToStereo duplicates mono samples to stereo.
func MonoToStereo(samples []int16) []int16 {
	stereo := make([]int16, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}
	return stereo
}

// Convert returns chunk in the requested rate and channel count. Voice
// audio is folded to mono first, so stereo separation is not preserved.
func Convert(chunk AudioChunk, sampleRate, channels int) AudioChunk {
	if chunk.SampleRate == sampleRate && chunk.Channels == channels {
		return chunk
	}
	samples := chunk.Samples
	if chunk.Channels == 2 {
		samples = StereoToMono(samples)
	}
	if chunk.SampleRate > 0 && chunk.SampleRate != sampleRate {
		samples = Resample(samples, chunk.SampleRate, sampleRate)
	}
	if channels == 2 {
		samples = MonoToStereo(samples)
	}
	return AudioChunk{Samples: samples, SampleRate: sampleRate, Channels: channels}
}
