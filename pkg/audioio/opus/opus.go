// Package opus adapts libopus (via gopkg.in/hraban/opus.v2) to the
// audioio codec interfaces. It needs cgo and libopus at build time.
package opus

import (
	"fmt"

	hopus "gopkg.in/hraban/opus.v2"

	"github.com/teslashibe/go-concierge/pkg/audioio"
)

// maxPacket bounds a single encoded Opus packet.
const maxPacket = 4000

// maxFrame is 120ms of 48kHz stereo, the largest frame Opus can emit.
const maxFrame = 5760 * 2

// Codec creates Opus encoders tuned for speech.
type Codec struct{}

var _ audioio.Codec = Codec{}

func (Codec) Name() string { return "opus" }

func (Codec) NewEncoder(sampleRate, channels int) (audioio.Encoder, error) {
	enc, err := hopus.NewEncoder(sampleRate, channels, hopus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus: new encoder: %w", err)
	}
	return &encoder{enc: enc, buf: make([]byte, maxPacket)}, nil
}

func (Codec) NewDecoder(sampleRate, channels int) (audioio.Decoder, error) {
	dec, err := hopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: new decoder: %w", err)
	}
	return &decoder{dec: dec, channels: channels, pcm: make([]int16, maxFrame)}, nil
}

type encoder struct {
	enc *hopus.Encoder
	buf []byte
}

// Encode expects exactly one Opus frame worth of samples.
func (e *encoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.buf[:n])
	return out, nil
}

type decoder struct {
	dec      *hopus.Decoder
	channels int
	pcm      []int16
}

func (d *decoder) Decode(packet []byte) ([]int16, error) {
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	out := make([]int16, n*d.channels)
	copy(out, d.pcm[:n*d.channels])
	return out, nil
}
