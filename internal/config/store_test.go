package config

import (
	"os"
	"path/filepath"
	"testing"

	"media-revoicer/internal/domain"
)

// TestDefaultSettings verifies baseline defaults are present.
func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()
	if cfg.Language != "en-US" {
		t.Fatalf("language = %q, want en-US", cfg.Language)
	}
	if cfg.VoiceName != "en-US-Journey-F" {
		t.Fatalf("voice = %q, want en-US-Journey-F", cfg.VoiceName)
	}
	if cfg.SampleRate != 16000 || cfg.MaxParallelRuns != 2 {
		t.Fatalf("rate/parallel = %d/%d, want 16000/2", cfg.SampleRate, cfg.MaxParallelRuns)
	}
	if cfg.OutputDir == "" {
		t.Fatal("expected non-empty output dir")
	}
}

// TestJSONStoreLoadMissingReturnsDefaults checks first-run behavior.
func TestJSONStoreLoadMissingReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "settings.json")
	store := NewJSONStore(path)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults", got)
	}
}

// TestJSONStoreSaveAndLoadRoundTrip checks persisted settings fidelity.
func TestJSONStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	store := NewJSONStore(path)
	want := domain.Settings{
		FFmpegPath:           "/opt/ffmpeg",
		FFprobePath:          "/opt/ffprobe",
		OutputDir:            "/out",
		Language:             "de-DE",
		VoiceName:            "de-DE-Wavenet-B",
		SampleRate:           24000,
		MaxParallelRuns:      4,
		SpeechEndpoint:       "http://speech.local",
		TextToSpeechEndpoint: "http://tts.local",
	}

	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

// TestJSONStoreLoadFillsMissingFields checks older files gain new defaults.
func TestJSONStoreLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"outputDir": " /videos "}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := NewJSONStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.OutputDir != "/videos" {
		t.Fatalf("output dir = %q, want /videos", got.OutputDir)
	}
	if got.VoiceName != DefaultVoiceName || got.SampleRate != DefaultSampleRate {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

// TestJSONStoreLoadInvalidJSON checks parse error handling.
func TestJSONStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "settings.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not-json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewJSONStore(path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected json parse error")
	}
}
