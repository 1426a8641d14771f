// Package speech is the boundary to the external recognition and synthesis
// services. Clients arrive pre-authenticated; nothing here acquires credentials.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-revoicer/internal/audio"
	"media-revoicer/internal/domain"
)

// EncodingLinear16 is little-endian signed 16-bit PCM.
const EncodingLinear16 = "LINEAR16"

var (
	// ErrEmptyTranscript is returned when recognition yields no usable text.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrEmptyText is returned when synthesis is asked to speak nothing.
	ErrEmptyText = errors.New("synthesis text is empty")
)

// RecognitionRequest is one speech-to-text call.
type RecognitionRequest struct {
	Encoding   string
	SampleRate int
	Language   string
	Audio      []byte
}

// Segment is one recognized chunk, in the order the service returned it.
type Segment struct {
	Text       string
	Confidence float64
}

// Recognizer converts PCM audio to ordered text segments.
type Recognizer interface {
	// Encoding reports the audio encoding the service accepts.
	Encoding() string
	Recognize(ctx context.Context, req RecognitionRequest) ([]Segment, error)
}

// SynthesisRequest is one text-to-speech call.
type SynthesisRequest struct {
	Text      string
	VoiceName string
	Language  string
	Encoding  string
}

// Synthesizer converts text to a WAV payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

// TranscribeOptions tunes one Transcribe call.
type TranscribeOptions struct {
	Language   string
	Now        func() time.Time
	OnProgress func(fraction float64)
}

// Transcribe sends buf to rec and flattens the segments into one transcript.
// Segment order is kept exactly; texts are trimmed and joined by one space.
// Zero non-blank segments yields ErrEmptyTranscript.
func Transcribe(ctx context.Context, rec Recognizer, buf audio.Buffer, opts TranscribeOptions) (domain.Transcript, error) {
	if err := buf.Validate(); err != nil {
		return domain.Transcript{}, err
	}
	if enc := rec.Encoding(); enc != EncodingLinear16 {
		return domain.Transcript{}, fmt.Errorf("recognizer expects %s audio, have %s", enc, EncodingLinear16)
	}

	segments, err := rec.Recognize(ctx, RecognitionRequest{
		Encoding:   EncodingLinear16,
		SampleRate: buf.SampleRate,
		Language:   opts.Language,
		Audio:      audio.PCMBytes(buf),
	})
	if err != nil {
		return domain.Transcript{}, err
	}

	parts := make([]string, 0, len(segments))
	for i, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(float64(i+1) / float64(len(segments)))
		}
	}
	if len(parts) == 0 {
		return domain.Transcript{}, ErrEmptyTranscript
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	return domain.Transcript{
		Text:      strings.Join(parts, " "),
		CreatedAt: now().UTC(),
	}, nil
}

// SynthesizeOptions selects the voice for one Synthesize call.
type SynthesizeOptions struct {
	VoiceName string
	Language  string
}

// Synthesize speaks text through syn and decodes the returned WAV.
func Synthesize(ctx context.Context, syn Synthesizer, text string, opts SynthesizeOptions) (audio.Buffer, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Buffer{}, ErrEmptyText
	}

	payload, err := syn.Synthesize(ctx, SynthesisRequest{
		Text:      text,
		VoiceName: opts.VoiceName,
		Language:  opts.Language,
		Encoding:  EncodingLinear16,
	})
	if err != nil {
		return audio.Buffer{}, err
	}

	buf, err := audio.DecodeWAVBytes(payload)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("decode synthesized audio: %w", err)
	}
	return buf, nil
}
