package domain

import "time"

// MediaKind distinguishes video containers from audio-only files.
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// MediaAsset references a media file owned by the stage currently holding it.
// SampleRate and Channels are only set for audio assets.
type MediaAsset struct {
	Path            string    `json:"path"`
	Kind            MediaKind `json:"kind"`
	DurationSeconds float64   `json:"durationSeconds"`
	SampleRate      int       `json:"sampleRate,omitempty"`
	Channels        int       `json:"channels,omitempty"`
}

// Transcript is the flattened recognition result.
type Transcript struct {
	Text      string    `json:"transcript"`
	CreatedAt time.Time `json:"timestamp"`
}
