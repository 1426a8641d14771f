package config

import (
	"os"
	"path/filepath"

	"media-revoicer/internal/domain"
	"media-revoicer/internal/media"
	"media-revoicer/internal/speech"
)

const (
	DefaultLanguage             = speech.DefaultLanguage
	DefaultVoiceName            = speech.DefaultVoiceName
	DefaultSampleRate           = media.DefaultExtractSampleRate
	DefaultMaxParallelRuns      = 2
	DefaultSpeechEndpoint       = speech.DefaultSpeechEndpoint
	DefaultTextToSpeechEndpoint = speech.DefaultTextToSpeechEndpoint
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		FFmpegPath:           "ffmpeg",
		FFprobePath:          "ffprobe",
		OutputDir:            filepath.Join(homeDir, "Documents", "Revoiced"),
		Language:             DefaultLanguage,
		VoiceName:            DefaultVoiceName,
		SampleRate:           DefaultSampleRate,
		MaxParallelRuns:      DefaultMaxParallelRuns,
		SpeechEndpoint:       DefaultSpeechEndpoint,
		TextToSpeechEndpoint: DefaultTextToSpeechEndpoint,
	}
}

// Normalize trims user input and fills every empty field from the defaults.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.FFmpegPath = orDefault(settings.FFmpegPath, defaults.FFmpegPath)
	settings.FFprobePath = orDefault(settings.FFprobePath, defaults.FFprobePath)
	settings.OutputDir = orDefault(settings.OutputDir, defaults.OutputDir)
	settings.Language = orDefault(settings.Language, defaults.Language)
	settings.VoiceName = orDefault(settings.VoiceName, defaults.VoiceName)
	settings.SpeechEndpoint = orDefault(settings.SpeechEndpoint, defaults.SpeechEndpoint)
	settings.TextToSpeechEndpoint = orDefault(settings.TextToSpeechEndpoint, defaults.TextToSpeechEndpoint)
	if settings.SampleRate <= 0 {
		settings.SampleRate = defaults.SampleRate
	}
	if settings.MaxParallelRuns <= 0 {
		settings.MaxParallelRuns = defaults.MaxParallelRuns
	}
	return settings
}
