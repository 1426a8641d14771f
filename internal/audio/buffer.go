// Package audio holds decoded mono PCM buffers and the duration reconciler
// that fits synthesized speech to the length of the source video.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInvalidBuffer is returned for buffers without a usable sample rate.
var ErrInvalidBuffer = errors.New("invalid audio buffer")

// Buffer is mono signed 16-bit PCM. Duration is always len(Samples)/SampleRate;
// nothing in this package resamples a buffer after it is created.
type Buffer struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Period returns the length of one sample frame in seconds.
func (b Buffer) Period() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return 1 / float64(b.SampleRate)
}

// Validate checks that the buffer can be measured.
func (b Buffer) Validate() error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidBuffer, b.SampleRate)
	}
	return nil
}

// PCMBytes returns the samples as little-endian LINEAR16.
func PCMBytes(b Buffer) []byte {
	out := make([]byte, len(b.Samples)*2)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
