package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"media-revoicer/internal/domain"
	"media-revoicer/internal/media"
	"media-revoicer/internal/pipeline"
)

// ErrUnknownRun is returned for run IDs the manager never started.
var ErrUnknownRun = errors.New("unknown run")

// ErrRunFinished is returned when cancel is requested for a terminal run.
var ErrRunFinished = errors.New("run already finished")

// ErrRunActive is returned when a live run is asked to be forgotten.
var ErrRunActive = errors.New("run still active")

// runner isolates the revoicing pipeline behind an interface.
type runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type entry struct {
	run    domain.Run
	cancel context.CancelFunc
	done   chan struct{}
	result pipeline.Result
	err    error
}

// Manager starts independent runs, at most maxParallel at a time, and keeps
// their latest state for snapshots.
type Manager struct {
	pipeline runner
	events   *EventBus
	sem      *semaphore.Weighted
	newID    func() string
	logger   zerolog.Logger

	mu   sync.RWMutex
	runs map[string]*entry
}

// NewManager creates a manager backed by p.
func NewManager(p runner, events *EventBus, maxParallel int, logger zerolog.Logger) *Manager {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	if events == nil {
		events = NewEventBus(0)
	}
	return &Manager{
		pipeline: p,
		events:   events,
		sem:      semaphore.NewWeighted(int64(maxParallel)),
		newID:    uuid.NewString,
		logger:   logger,
		runs:     make(map[string]*entry),
	}
}

// NewManagerForTests constructs a manager with deterministic run IDs.
func NewManagerForTests(p runner, events *EventBus, maxParallel int, newID func() string) *Manager {
	m := NewManager(p, events, maxParallel, zerolog.Nop())
	m.newID = newID
	return m
}

// Start queues one run and returns its ID immediately. Cancelling ctx
// cancels the run.
func (m *Manager) Start(ctx context.Context, inputPath, outputDir string) (string, error) {
	if m.pipeline == nil {
		return "", fmt.Errorf("pipeline is not configured")
	}

	id := m.newID()
	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{run: domain.NewRun(id), cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, exists := m.runs[id]; exists {
		m.mu.Unlock()
		cancel()
		return "", fmt.Errorf("duplicate run id %q", id)
	}
	m.runs[id] = e
	m.mu.Unlock()

	m.events.Publish(Event{RunID: id, Type: EventTypeStatus, Stage: domain.RunStageIdle, Message: "Run queued"})
	m.logger.Info().Str("run_id", id).Str("input", inputPath).Msg("run queued")

	go m.execute(runCtx, e, pipeline.Request{
		RunID:     id,
		InputPath: inputPath,
		OutputDir: outputDir,
		Observer:  trackingObserver{next: m.events.Observer(id), m: m},
	})
	return id, nil
}

func (m *Manager) execute(ctx context.Context, e *entry, req pipeline.Request) {
	defer close(e.done)
	defer e.cancel()

	var (
		result pipeline.Result
		err    error
	)
	if acquireErr := m.sem.Acquire(ctx, 1); acquireErr != nil {
		run := domain.NewRun(req.RunID)
		_ = run.Advance(domain.RunStageFailed)
		result = pipeline.Result{Run: run}
		err = &pipeline.StageError{
			Kind:    pipeline.KindCancelled,
			Stage:   domain.RunStageIdle,
			RunID:   req.RunID,
			Message: "run cancelled before start",
			Err:     acquireErr,
		}
	} else {
		result, err = m.pipeline.Run(ctx, req)
		m.sem.Release(1)
	}

	m.mu.Lock()
	e.result = result
	e.err = err
	e.run = result.Run
	m.mu.Unlock()

	if err != nil {
		m.publishFailure(req.RunID, err)
		return
	}
	m.events.Publish(Event{
		RunID:     req.RunID,
		Type:      EventTypeResult,
		Stage:     domain.RunStageCompleted,
		Message:   "Revoiced video exported",
		VideoPath: result.VideoPath,
	})
}

// publishFailure maps a run error to error and command log events.
func (m *Manager) publishFailure(runID string, err error) {
	event := Event{RunID: runID, Type: EventTypeError, Stage: domain.RunStageFailed, Message: err.Error()}

	var stageErr *pipeline.StageError
	isStageErr := errors.As(err, &stageErr)
	if isStageErr {
		event.Kind = stageErr.Kind
	}
	m.events.Publish(event)
	if isStageErr && stageErr.CommandLog.Command != "" {
		m.events.Publish(commandEvent(runID, "Failed command", stageErr.CommandLog))
	}
	m.logger.Warn().Str("run_id", runID).Err(err).Msg("run failed")
}

// Cancel requests cancellation of a live run.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownRun
	}

	select {
	case <-e.done:
		return ErrRunFinished
	default:
	}
	e.cancel()
	m.events.Publish(Event{RunID: id, Type: EventTypeStatus, Message: "Cancellation requested"})
	return nil
}

// Wait blocks until the run is terminal or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (pipeline.Result, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return pipeline.Result{}, ErrUnknownRun
	}

	select {
	case <-e.done:
	case <-ctx.Done():
		return pipeline.Result{}, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return e.result, e.err
}

// Forget drops a finished run's record once the caller has its result.
func (m *Manager) Forget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[id]
	if !ok {
		return ErrUnknownRun
	}
	select {
	case <-e.done:
	default:
		return ErrRunActive
	}
	delete(m.runs, id)
	return nil
}

// Snapshot returns the latest known state of one run.
func (m *Manager) Snapshot(id string) (domain.Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.runs[id]
	if !ok {
		return domain.Run{}, false
	}
	return e.run, true
}

// Runs returns snapshots of every run, sorted by ID.
func (m *Manager) Runs() []domain.Run {
	m.mu.RLock()
	runs := lo.MapToSlice(m.runs, func(_ string, e *entry) domain.Run { return e.run })
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs
}

// Events returns all events with sequence greater than sinceSeq.
func (m *Manager) Events(sinceSeq int64) []Event {
	return m.events.Since(sinceSeq)
}

// trackingObserver mirrors stage changes into the manager's snapshots
// before forwarding them.
type trackingObserver struct {
	next pipeline.Observer
	m    *Manager
}

func (o trackingObserver) StageStarted(runID string, stage domain.RunStage) {
	o.m.mu.Lock()
	if e, ok := o.m.runs[runID]; ok {
		_ = e.run.Advance(stage)
	}
	o.m.mu.Unlock()
	o.next.StageStarted(runID, stage)
}

func (o trackingObserver) Progress(runID string, stage domain.RunStage, fraction float64) {
	o.next.Progress(runID, stage, fraction)
}

func (o trackingObserver) StageCompleted(runID string, stage domain.RunStage) {
	o.next.StageCompleted(runID, stage)
}

func (o trackingObserver) CommandCompleted(runID string, log media.CommandLog) {
	o.next.CommandCompleted(runID, log)
}
