package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"media-revoicer/internal/domain"
	"media-revoicer/internal/speech"
)

// Environment variables that override persisted settings.
const (
	EnvOutputDir   = "REVOICE_OUTPUT_DIR"
	EnvLanguage    = "REVOICE_LANGUAGE"
	EnvVoice       = "REVOICE_VOICE"
	EnvMaxParallel = "REVOICE_MAX_PARALLEL"
	EnvFFmpegPath  = "FFMPEG_PATH"
	EnvFFprobePath = "FFPROBE_PATH"
	EnvAPIKey      = "GOOGLE_API_KEY"
	EnvAccessToken = "GOOGLE_ACCESS_TOKEN"
	EnvAppEnv      = "APP_ENV"
)

// LoadDotEnv reads .env files when present. Missing files are not an error
// and variables already set in the process win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// ApplyEnv overlays environment overrides on settings.
func ApplyEnv(settings domain.Settings) (domain.Settings, error) {
	if v := getenv(EnvOutputDir); v != "" {
		settings.OutputDir = v
	}
	if v := getenv(EnvLanguage); v != "" {
		settings.Language = v
	}
	if v := getenv(EnvVoice); v != "" {
		settings.VoiceName = v
	}
	if v := getenv(EnvFFmpegPath); v != "" {
		settings.FFmpegPath = v
	}
	if v := getenv(EnvFFprobePath); v != "" {
		settings.FFprobePath = v
	}
	if v := getenv(EnvMaxParallel); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return domain.Settings{}, fmt.Errorf("%s must be a positive integer, got %q", EnvMaxParallel, v)
		}
		settings.MaxParallelRuns = n
	}
	return settings, nil
}

// LoadCredentials reads the Google credentials from the environment. An API
// key takes precedence over an access token.
func LoadCredentials() speech.Credentials {
	return speech.Credentials{
		APIKey:      getenv(EnvAPIKey),
		AccessToken: getenv(EnvAccessToken),
	}
}

// AppEnv returns the deployment environment name, defaulting to production.
func AppEnv() string {
	if v := getenv(EnvAppEnv); v != "" {
		return v
	}
	return "production"
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
