package audioio

import "fmt"

// Encoder compresses one frame of interleaved PCM16.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Decoder expands one compressed packet into interleaved PCM16.
type Decoder interface {
	Decode(packet []byte) ([]int16, error)
}

// Codec creates encoders and decoders for a sample format.
type Codec interface {
	Name() string
	NewEncoder(sampleRate, channels int) (Encoder, error)
	NewDecoder(sampleRate, channels int) (Decoder, error)
}

// PCMCodec carries raw little-endian PCM16. It stands in for Opus in
// tests so that the payload on the wire is inspectable.
type PCMCodec struct{}

var _ Codec = PCMCodec{}

func (PCMCodec) Name() string { return "pcm16" }

func (PCMCodec) NewEncoder(sampleRate, channels int) (Encoder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audioio: invalid pcm format %d/%d", sampleRate, channels)
	}
	return pcmCoder{}, nil
}

func (PCMCodec) NewDecoder(sampleRate, channels int) (Decoder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audioio: invalid pcm format %d/%d", sampleRate, channels)
	}
	return pcmCoder{}, nil
}

type pcmCoder struct{}

func (pcmCoder) Encode(pcm []int16) ([]byte, error) { return SamplesToBytes(pcm), nil }

func (pcmCoder) Decode(packet []byte) ([]int16, error) {
	if len(packet)%2 != 0 {
		return nil, fmt.Errorf("audioio: odd pcm16 packet length %d", len(packet))
	}
	return BytesToSamples(packet), nil
}
