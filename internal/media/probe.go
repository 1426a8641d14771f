package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"media-revoicer/internal/domain"
)

// ProbeStream is the subset of ffprobe stream fields the pipeline reads.
type ProbeStream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Duration   string `json:"duration"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// ProbeResult is the parsed output of ffprobe -show_streams -show_format.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// HasAudio reports whether any audio stream is present.
func (p ProbeResult) HasAudio() bool {
	_, ok := p.firstStream("audio")
	return ok
}

// HasVideo reports whether any video stream is present.
func (p ProbeResult) HasVideo() bool {
	_, ok := p.firstStream("video")
	return ok
}

// VideoDuration prefers the first video stream duration and falls back to the container.
func (p ProbeResult) VideoDuration() (float64, error) {
	if s, ok := p.firstStream("video"); ok {
		if d, err := parseSeconds(s.Duration); err == nil && d > 0 {
			return d, nil
		}
	}
	return p.ContainerDuration()
}

// ContainerDuration returns the format-level duration.
func (p ProbeResult) ContainerDuration() (float64, error) {
	d, err := parseSeconds(p.Format.Duration)
	if err != nil {
		return 0, fmt.Errorf("container duration: %w", err)
	}
	return d, nil
}

func (p ProbeResult) firstStream(kind string) (ProbeStream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == kind {
			return s, true
		}
	}
	return ProbeStream{}, false
}

func parseSeconds(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return 0, fmt.Errorf("duration not reported")
	}
	return strconv.ParseFloat(raw, 64)
}

// buildProbeArgs builds ffprobe args for JSON stream and format output.
func buildProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	}
}

// Probe runs ffprobe against path.
func (t Tools) Probe(ctx context.Context, path string, onLog func(CommandLog)) (ProbeResult, error) {
	log, err := t.run(ctx, onLog, t.FFprobePath, buildProbeArgs(path)...)
	if err != nil {
		return ProbeResult{}, err
	}

	var result ProbeResult
	if err := json.Unmarshal([]byte(log.Stdout), &result); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return result, nil
}

// OpenVideo probes path and returns it as a video asset with measured duration.
func (t Tools) OpenVideo(ctx context.Context, path string, onLog func(CommandLog)) (domain.MediaAsset, ProbeResult, error) {
	result, err := t.Probe(ctx, path, onLog)
	if err != nil {
		return domain.MediaAsset{}, ProbeResult{}, err
	}
	if !result.HasVideo() {
		return domain.MediaAsset{}, result, fmt.Errorf("%s has no video stream", path)
	}

	duration, err := result.VideoDuration()
	if err != nil {
		return domain.MediaAsset{}, result, err
	}
	return domain.MediaAsset{
		Path:            path,
		Kind:            domain.MediaKindVideo,
		DurationSeconds: duration,
	}, result, nil
}
