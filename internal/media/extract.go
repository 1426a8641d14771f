package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"media-revoicer/internal/audio"
	"media-revoicer/internal/domain"
)

// ErrNoAudioStream is returned when the input video carries no audio track.
var ErrNoAudioStream = errors.New("no audio stream")

// DefaultExtractSampleRate is the rate used when none is configured.
const DefaultExtractSampleRate = 16000

// ExtractRequest describes one audio extraction.
type ExtractRequest struct {
	Video      domain.MediaAsset
	OutputPath string
	SampleRate int
	OnLog      func(CommandLog)
}

// ExtractResult is the decoded track plus the WAV file it was read from.
// The caller owns Asset.Path.
type ExtractResult struct {
	Asset  domain.MediaAsset
	Buffer audio.Buffer
}

// Extractor demuxes a video's audio into mono 16-bit PCM.
type Extractor struct {
	tools Tools
	stat  func(name string) (os.FileInfo, error)
}

// NewExtractor constructs an extractor around the given tools.
func NewExtractor(tools Tools) *Extractor {
	return &Extractor{tools: tools, stat: os.Stat}
}

// Extract probes the video, converts its first audio stream to a mono WAV at
// OutputPath and decodes it. The sample rate is taken from the written file.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	probe, err := e.tools.Probe(ctx, req.Video.Path, req.OnLog)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("probe input: %w", err)
	}
	if !probe.HasAudio() {
		return ExtractResult{}, fmt.Errorf("%w in %s", ErrNoAudioStream, req.Video.Path)
	}

	rate := req.SampleRate
	if rate <= 0 {
		rate = DefaultExtractSampleRate
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return ExtractResult{}, err
	}

	args := buildExtractArgs(req.Video.Path, req.OutputPath, rate)
	if _, err := e.tools.run(ctx, req.OnLog, e.tools.FFmpegPath, args...); err != nil {
		return ExtractResult{}, err
	}
	if _, err := e.stat(req.OutputPath); err != nil {
		return ExtractResult{}, fmt.Errorf("ffmpeg completed but output file is missing: %w", err)
	}

	buf, err := audio.ReadWAVFile(req.OutputPath)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("decode extracted audio: %w", err)
	}

	return ExtractResult{
		Asset: domain.MediaAsset{
			Path:            req.OutputPath,
			Kind:            domain.MediaKindAudio,
			DurationSeconds: buf.Duration(),
			SampleRate:      buf.SampleRate,
			Channels:        1,
		},
		Buffer: buf,
	}, nil
}

// buildExtractArgs builds ffmpeg args for mono PCM WAV output.
func buildExtractArgs(inputPath, outPath string, sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-map", "0:a:0",
		"-ac", "1",
		"-ar", fmt.Sprint(sampleRate),
		"-c:a", "pcm_s16le",
		outPath,
	}
}
