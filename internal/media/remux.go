package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"media-revoicer/internal/domain"
)

// RemuxProfile is the fixed output encoding. The video stream is always
// copied; only the replacement audio is encoded.
type RemuxProfile struct {
	AudioCodec   string
	AudioBitrate string
}

// DefaultRemuxProfile writes AAC audio into an MP4 container.
var DefaultRemuxProfile = RemuxProfile{
	AudioCodec:   "aac",
	AudioBitrate: "192k",
}

// RemuxRequest describes one audio replacement.
type RemuxRequest struct {
	Video      domain.MediaAsset
	AudioPath  string
	OutputPath string
	OnLog      func(CommandLog)
}

// Remuxer replaces a video's audio stream with a reconciled track.
type Remuxer struct {
	tools   Tools
	profile RemuxProfile
}

// NewRemuxer constructs a remuxer with the default profile.
func NewRemuxer(tools Tools) *Remuxer {
	return &Remuxer{tools: tools, profile: DefaultRemuxProfile}
}

// Remux writes OutputPath with the first video stream of Video copied as is
// and AudioPath as the only audio stream, then probes the result.
// AAC encoding is not bit-for-bit reproducible, so two remuxes of the same
// pair agree on duration but not necessarily on bytes.
func (r *Remuxer) Remux(ctx context.Context, req RemuxRequest) (domain.MediaAsset, error) {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return domain.MediaAsset{}, err
	}

	args := buildRemuxArgs(req.Video.Path, req.AudioPath, req.OutputPath, r.profile)
	if _, err := r.tools.run(ctx, req.OnLog, r.tools.FFmpegPath, args...); err != nil {
		return domain.MediaAsset{}, err
	}

	out, _, err := r.tools.OpenVideo(ctx, req.OutputPath, req.OnLog)
	if err != nil {
		return domain.MediaAsset{}, fmt.Errorf("probe remuxed output: %w", err)
	}
	return out, nil
}

// buildRemuxArgs builds ffmpeg args that copy video and encode the new audio.
func buildRemuxArgs(videoPath, audioPath, outPath string, profile RemuxProfile) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", profile.AudioCodec,
		"-b:a", profile.AudioBitrate,
		"-movflags", "+faststart",
		outPath,
	}
}
