package config

import (
	"os"
	"path/filepath"
	"testing"

	"media-revoicer/internal/domain"
)

// TestApplyEnvOverrides checks each environment override.
func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvOutputDir, "/env/out")
	t.Setenv(EnvLanguage, "fr-FR")
	t.Setenv(EnvVoice, "fr-FR-Neural2-A")
	t.Setenv(EnvMaxParallel, "3")
	t.Setenv(EnvFFmpegPath, "/bin/ffmpeg7")
	t.Setenv(EnvFFprobePath, "")

	got, err := ApplyEnv(DefaultSettings())
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if got.OutputDir != "/env/out" || got.Language != "fr-FR" || got.VoiceName != "fr-FR-Neural2-A" {
		t.Fatalf("settings = %+v", got)
	}
	if got.MaxParallelRuns != 3 || got.FFmpegPath != "/bin/ffmpeg7" {
		t.Fatalf("settings = %+v", got)
	}
	if got.FFprobePath != "ffprobe" {
		t.Fatalf("ffprobe = %q, want unchanged default", got.FFprobePath)
	}
}

// TestApplyEnvRejectsBadParallelism checks numeric validation.
func TestApplyEnvRejectsBadParallelism(t *testing.T) {
	for _, v := range []string{"zero", "0", "-2"} {
		t.Setenv(EnvMaxParallel, v)
		if _, err := ApplyEnv(DefaultSettings()); err == nil {
			t.Fatalf("ApplyEnv(%q) error = nil, want error", v)
		}
	}
}

// TestLoadDotEnvKeepsProcessValues checks .env never overrides the process.
func TestLoadDotEnvKeepsProcessValues(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := EnvAPIKey + "=from-file\n" + EnvVoice + "=file-voice\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv(EnvVoice, "process-voice")
	t.Setenv(EnvAPIKey, "")
	os.Unsetenv(EnvAPIKey)

	LoadDotEnv(envFile, filepath.Join(dir, "missing.env"))
	t.Cleanup(func() { os.Unsetenv(EnvAPIKey) })

	if got := os.Getenv(EnvVoice); got != "process-voice" {
		t.Fatalf("voice = %q, want process-voice", got)
	}
	creds := LoadCredentials()
	if creds.APIKey != "from-file" {
		t.Fatalf("api key = %q, want from-file", creds.APIKey)
	}
}

// TestNormalizeFillsZeroValues checks defaults for an empty settings value.
func TestNormalizeFillsZeroValues(t *testing.T) {
	if got := Normalize(domain.Settings{}); got != DefaultSettings() {
		t.Fatalf("Normalize(empty) = %+v, want defaults", got)
	}

	custom := DefaultSettings()
	custom.SampleRate = -1
	custom.Language = "  ja-JP "
	got := Normalize(custom)
	if got.SampleRate != DefaultSampleRate || got.Language != "ja-JP" {
		t.Fatalf("Normalize = %+v", got)
	}
}
