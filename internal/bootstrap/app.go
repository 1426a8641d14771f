package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"media-revoicer/internal/config"
	"media-revoicer/internal/diagnostics"
	"media-revoicer/internal/domain"
	"media-revoicer/internal/jobs"
	"media-revoicer/internal/pipeline"
	"media-revoicer/internal/speech"
)

// ErrNoInputs is returned when Run is called without input videos.
var ErrNoInputs = errors.New("no input videos given")

// ErrDiagnosticsFailed is returned when startup checks block running.
var ErrDiagnosticsFailed = errors.New("startup diagnostics failed")

// Options tunes application construction.
type Options struct {
	// ConfigPath overrides ~/.media-revoicer/settings.json.
	ConfigPath string
	// OutputDir overrides the configured output directory for this process.
	OutputDir string
	LogOutput io.Writer
}

// Outcome is the final state of one input video.
type Outcome struct {
	Input  string
	RunID  string
	Result pipeline.Result
	Err    error
}

// App wires configuration, diagnostics, gateways, pipeline and job manager.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	Logger      zerolog.Logger

	checker      diagnosticsRunner
	creds        speech.Credentials
	installTools func(ctx context.Context) error
	buildJobs    func(domain.Settings, speech.Credentials, zerolog.Logger) (*jobs.Manager, error)
	pollEvery    time.Duration

	mu sync.Mutex
}

// diagnosticsRunner isolates startup checks behind an interface.
type diagnosticsRunner interface {
	Run(settings domain.Settings, creds speech.Credentials) domain.DiagnosticReport
}

// New builds the application with persisted settings, environment
// overrides and startup diagnostics.
func New(opts Options) (*App, error) {
	config.LoadDotEnv()

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(config.AppEnv(), out)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}
	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local tool path: %w", err)
	}

	storePath := opts.ConfigPath
	if storePath == "" {
		if storePath, err = config.DefaultStorePath(); err != nil {
			return nil, err
		}
	}
	store := config.NewJSONStore(storePath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings, err = config.ApplyEnv(settings); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	if dir := strings.TrimSpace(opts.OutputDir); dir != "" {
		settings.OutputDir = dir
	}
	settings = config.Normalize(settings)

	app := &App{
		Settings:     settings,
		Store:        store,
		Logger:       logger,
		checker:      diagnostics.NewChecker(),
		creds:        config.LoadCredentials(),
		installTools: installFFmpegForCurrentOS,
		buildJobs:    buildManager,
	}
	app.Diagnostics = app.checker.Run(settings, app.creds)

	if err := app.rebuildJobs(); err != nil {
		return nil, err
	}
	return app, nil
}

// rebuildJobs wires a fresh job manager from the current settings so the
// gateways and tools it holds match them. Callers must not have runs in flight.
func (a *App) rebuildJobs() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buildJobs == nil || a.creds.Empty() {
		return nil
	}
	manager, err := a.buildJobs(a.Settings, a.creds, a.Logger)
	if err != nil {
		return err
	}
	a.Jobs = manager
	return nil
}

// Run starts one run per input, waits for all of them and reports each
// outcome. Cancelling ctx cancels every run; Run still waits for their
// cleanup before returning. The error joins every failed run's error.
func (a *App) Run(ctx context.Context, inputs []string) ([]Outcome, error) {
	inputs = lo.Compact(lo.Map(inputs, func(in string, _ int) string { return strings.TrimSpace(in) }))
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	a.mu.Lock()
	report := a.Diagnostics
	outputDir := a.Settings.OutputDir
	manager := a.Jobs
	a.mu.Unlock()

	if report.HasFailures {
		failures := report.Failures()
		for _, item := range failures {
			a.Logger.Error().Str("check", item.ID).Str("hint", item.Hint).Msg(item.Message)
		}
		ids := lo.Map(failures, func(item domain.DiagnosticItem, _ int) string { return item.ID })
		return nil, fmt.Errorf("%w: %s", ErrDiagnosticsFailed, strings.Join(ids, ", "))
	}
	if manager == nil {
		return nil, fmt.Errorf("job manager is not configured")
	}

	outcomes := make([]Outcome, len(inputs))
	for i, input := range inputs {
		outcomes[i].Input = input
		id, err := manager.Start(ctx, input, outputDir)
		if err != nil {
			outcomes[i].Err = fmt.Errorf("start %s: %w", input, err)
			continue
		}
		outcomes[i].RunID = id
	}

	stop := a.followEvents(manager)
	waitCtx := context.WithoutCancel(ctx)
	for i := range outcomes {
		if outcomes[i].RunID == "" {
			continue
		}
		outcomes[i].Result, outcomes[i].Err = manager.Wait(waitCtx, outcomes[i].RunID)
		_ = manager.Forget(outcomes[i].RunID)
	}
	stop()

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			a.Logger.Error().Str("input", o.Input).Str("run_id", o.RunID).Err(o.Err).Msg("revoicing failed")
			errs = append(errs, o.Err)
			continue
		}
		if o.Result.LeftoverScratch != "" {
			a.Logger.Error().Str("run_id", o.RunID).Str("dir", o.Result.LeftoverScratch).Msg("remove leftover scratch directory manually")
		}
		a.Logger.Info().
			Str("input", o.Input).
			Str("run_id", o.RunID).
			Str("video", o.Result.VideoPath).
			Str("audio", o.Result.AudioPath).
			Str("transcript", o.Result.TranscriptPath).
			Msg("revoicing completed")
	}
	return outcomes, errors.Join(errs...)
}

// RefreshDiagnostics reruns dependency checks against current settings.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(a.Settings, a.creds)
	}
	return a.Diagnostics
}

// followEvents logs job events until the returned stop func is called.
func (a *App) followEvents(manager *jobs.Manager) (stop func()) {
	every := a.pollEvery
	if every <= 0 {
		every = 250 * time.Millisecond
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		var since int64
		for {
			since = a.logEvents(manager, since)
			select {
			case <-done:
				a.logEvents(manager, since)
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

// logEvents writes events after since to the logger and returns the last seq.
func (a *App) logEvents(manager *jobs.Manager, since int64) int64 {
	for _, event := range manager.Events(since) {
		since = event.Seq
		var entry *zerolog.Event
		switch event.Type {
		case jobs.EventTypeError:
			entry = a.Logger.Warn().Str("kind", string(event.Kind))
		case jobs.EventTypeLog:
			entry = a.Logger.Debug().Str("command", event.Command).Int("exit_code", event.ExitCode)
		case jobs.EventTypeProgress:
			entry = a.Logger.Debug().Float64("progress", event.Progress)
		default:
			entry = a.Logger.Info()
		}
		entry.Str("run_id", event.RunID).Str("stage", string(event.Stage)).Msg(event.Message)
	}
	return since
}
