package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"media-revoicer/internal/config"
	"media-revoicer/internal/domain"
)

const installCommandTimeout = 45 * time.Minute

// installOption is one package manager and the commands that install ffmpeg with it.
type installOption struct {
	manager  string
	commands [][]string
}

// ffmpegInstallPlans lists package managers per OS in preference order.
var ffmpegInstallPlans = map[string][]installOption{
	"windows": {
		{manager: "winget", commands: [][]string{{"winget", "install", "--id", "Gyan.FFmpeg", "--exact", "--accept-source-agreements", "--accept-package-agreements"}}},
		{manager: "choco", commands: [][]string{{"choco", "install", "ffmpeg", "-y"}}},
		{manager: "scoop", commands: [][]string{{"scoop", "install", "ffmpeg"}}},
	},
	"darwin": {
		{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
	},
	"linux": {
		{manager: "apt-get", commands: [][]string{{"apt-get", "update"}, {"apt-get", "install", "-y", "ffmpeg"}}},
		{manager: "dnf", commands: [][]string{{"dnf", "install", "-y", "ffmpeg"}}},
		{manager: "pacman", commands: [][]string{{"pacman", "-Sy", "--noconfirm", "ffmpeg"}}},
		{manager: "zypper", commands: [][]string{{"zypper", "install", "-y", "ffmpeg"}}},
		{manager: "brew", commands: [][]string{{"brew", "install", "ffmpeg"}}},
	},
}

// FixDiagnostics applies a remediation for every failed check, persists any
// settings it changed and reruns the checks. Checks that cannot be fixed
// automatically are reported in the returned error.
func (a *App) FixDiagnostics(ctx context.Context) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	a.mu.Lock()
	settings := a.Settings
	failures := a.Diagnostics.Failures()
	a.mu.Unlock()

	var (
		errs            []error
		settingsChanged bool
		toolsAttempted  bool
	)
	for _, item := range failures {
		var (
			changed bool
			err     error
		)
		switch item.ID {
		case "tool_ffmpeg", "tool_ffprobe":
			if toolsAttempted {
				continue
			}
			toolsAttempted = true
			if a.installTools == nil {
				err = fmt.Errorf("%s: automatic install is not available", item.ID)
				break
			}
			err = a.installTools(ctx)
		case "output_dir":
			settings, changed, err = installOrFixOutputDir(settings)
		case "speech_endpoint", "tts_endpoint":
			settings, changed = resetEndpoints(settings)
		case "credentials":
			err = fmt.Errorf("%s: set %s or %s", item.ID, config.EnvAPIKey, config.EnvAccessToken)
		default:
			err = fmt.Errorf("unsupported diagnostic item id: %s", item.ID)
		}
		settingsChanged = settingsChanged || changed
		if err != nil {
			a.Logger.Warn().Str("check", item.ID).Err(err).Msg("diagnostic fix failed")
			errs = append(errs, err)
		}
	}

	if settingsChanged {
		if err := a.Store.Save(settings); err != nil {
			errs = append(errs, fmt.Errorf("save settings after fix: %w", err))
		}
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()
	if settingsChanged {
		if err := a.rebuildJobs(); err != nil {
			errs = append(errs, fmt.Errorf("rebuild job manager after fix: %w", err))
		}
	}
	return a.RefreshDiagnostics(), errors.Join(errs...)
}

func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	outputDir := strings.TrimSpace(settings.OutputDir)
	changed := false
	if outputDir == "" {
		outputDir = config.DefaultSettings().OutputDir
		settings.OutputDir = outputDir
		changed = true
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	return settings, changed, nil
}

func resetEndpoints(settings domain.Settings) (domain.Settings, bool) {
	defaults := config.DefaultSettings()
	changed := settings.SpeechEndpoint != defaults.SpeechEndpoint ||
		settings.TextToSpeechEndpoint != defaults.TextToSpeechEndpoint
	settings.SpeechEndpoint = defaults.SpeechEndpoint
	settings.TextToSpeechEndpoint = defaults.TextToSpeechEndpoint
	return settings, changed
}

// ensureLocalBinOnPATH prepends ~/.media-revoicer/bin so user-installed
// tools are found without touching the shell profile.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := filepath.Join(homeDir, ".media-revoicer", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func installFFmpegForCurrentOS(ctx context.Context) error {
	plans, ok := ffmpegInstallPlans[goruntime.GOOS]
	if !ok {
		plans = ffmpegInstallPlans["linux"]
	}

	if err := runFirstSuccessfulInstall(ctx, plans, commandAvailable, runCommand); err != nil {
		return fmt.Errorf("install ffmpeg/ffprobe: %w", err)
	}
	if err := requireToolsOnPath("ffmpeg", "ffprobe"); err != nil {
		return fmt.Errorf("verify ffmpeg/ffprobe on PATH: %w", err)
	}
	return nil
}

// runFirstSuccessfulInstall tries each available package manager in order
// until one completes all of its commands.
func runFirstSuccessfulInstall(
	ctx context.Context,
	options []installOption,
	available func(string) bool,
	run func(ctx context.Context, name string, args ...string) error,
) error {
	if len(options) == 0 {
		return fmt.Errorf("no install commands configured for OS %s", goruntime.GOOS)
	}

	var errs []error
	for _, option := range options {
		if !available(option.manager) {
			continue
		}
		err := runInstallCommands(ctx, option.commands, available, run)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", option.manager, err))
	}

	if len(errs) == 0 {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.Join(errs...)
}

func runInstallCommands(
	ctx context.Context,
	commands [][]string,
	available func(string) bool,
	run func(ctx context.Context, name string, args ...string) error,
) error {
	for _, command := range commands {
		if len(command) == 0 {
			return fmt.Errorf("empty command")
		}
		candidates := [][]string{command}
		if goruntime.GOOS == "linux" && requiresElevation(command[0]) {
			if available("pkexec") {
				candidates = append(candidates, append([]string{"pkexec"}, command...))
			}
			if available("sudo") {
				candidates = append(candidates, append([]string{"sudo", "-n"}, command...))
			}
		}

		var attemptErrs []error
		for _, candidate := range candidates {
			err := run(ctx, candidate[0], candidate[1:]...)
			if err == nil {
				attemptErrs = nil
				break
			}
			attemptErrs = append(attemptErrs, err)
		}
		if len(attemptErrs) > 0 {
			return errors.Join(attemptErrs...)
		}
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, installCommandTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err == nil {
		return nil
	}

	command := strings.Join(append([]string{name}, args...), " ")
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", command, installCommandTimeout)
	}

	trimmed := strings.TrimSpace(string(output))
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	if trimmed == "" {
		return fmt.Errorf("%s failed: %w", command, err)
	}
	return fmt.Errorf("%s failed: %w (%s)", command, err, trimmed)
}

func requiresElevation(manager string) bool {
	switch manager {
	case "apt-get", "dnf", "pacman", "zypper":
		return true
	default:
		return false
	}
}

func commandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func requireToolsOnPath(names ...string) error {
	var missing []string
	for _, name := range names {
		if !commandAvailable(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
