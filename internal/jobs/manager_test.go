package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-revoicer/internal/domain"
	"media-revoicer/internal/media"
	"media-revoicer/internal/pipeline"
)

// fakePipeline simulates pipeline runs.
type fakePipeline struct {
	run func(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Run delegates to injected behavior.
func (f *fakePipeline) Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	return f.run(ctx, req)
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("run-%d", n.Add(1)) }
}

func completedRun(t *testing.T, id string) domain.Run {
	t.Helper()
	run := domain.NewRun(id)
	for _, stage := range []domain.RunStage{
		domain.RunStageExtractingAudio,
		domain.RunStageTranscribing,
		domain.RunStageSynthesizing,
		domain.RunStageReconciling,
		domain.RunStageRemuxing,
		domain.RunStageCompleted,
	} {
		if err := run.Advance(stage); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	return run
}

func failedRun(id string) domain.Run {
	run := domain.NewRun(id)
	_ = run.Advance(domain.RunStageFailed)
	return run
}

func waitFor(t *testing.T, m *Manager, id string) (pipeline.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := m.Wait(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run %s did not finish", id)
	}
	return result, err
}

// TestManagerRunsToCompletion checks the happy path and published events.
func TestManagerRunsToCompletion(t *testing.T) {
	fake := &fakePipeline{run: func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		req.Observer.StageStarted(req.RunID, domain.RunStageExtractingAudio)
		return pipeline.Result{Run: completedRun(t, req.RunID), VideoPath: "/out/clip.revoiced.mp4"}, nil
	}}
	m := NewManagerForTests(fake, NewEventBus(50), 2, sequentialIDs())

	id, err := m.Start(context.Background(), "/in/clip.mp4", "/out")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if id != "run-1" {
		t.Fatalf("id = %q, want run-1", id)
	}

	result, err := waitFor(t, m, id)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if result.VideoPath != "/out/clip.revoiced.mp4" {
		t.Fatalf("video path = %q", result.VideoPath)
	}

	snap, ok := m.Snapshot(id)
	if !ok || snap.Stage != domain.RunStageCompleted {
		t.Fatalf("snapshot = %+v, %v", snap, ok)
	}

	events := m.Events(0)
	last := events[len(events)-1]
	if last.Type != EventTypeResult || last.VideoPath != "/out/clip.revoiced.mp4" {
		t.Fatalf("last event = %+v", last)
	}
	if events[0].Message != "Run queued" {
		t.Fatalf("first event = %+v", events[0])
	}
}

// TestManagerPublishesFailureDetails checks error kind and failed command events.
func TestManagerPublishesFailureDetails(t *testing.T) {
	fake := &fakePipeline{run: func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		return pipeline.Result{Run: failedRun(req.RunID)}, &pipeline.StageError{
			Kind:       pipeline.KindRemux,
			Stage:      domain.RunStageRemuxing,
			RunID:      req.RunID,
			Message:    "ffmpeg remux failed",
			CommandLog: media.CommandLog{Command: "ffmpeg", ExitCode: 1, Stderr: "bad"},
		}
	}}
	m := NewManagerForTests(fake, NewEventBus(50), 1, sequentialIDs())

	id, err := m.Start(context.Background(), "/in/clip.mp4", "/out")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := waitFor(t, m, id); !errors.Is(err, pipeline.ErrRemux) {
		t.Fatalf("Wait() error = %v, want ErrRemux", err)
	}

	events := m.Events(0)
	if len(events) < 3 {
		t.Fatalf("events = %+v", events)
	}
	errEvent := events[len(events)-2]
	if errEvent.Type != EventTypeError || errEvent.Kind != pipeline.KindRemux {
		t.Fatalf("error event = %+v", errEvent)
	}
	logEvent := events[len(events)-1]
	if logEvent.Type != EventTypeLog || logEvent.Command != "ffmpeg" || logEvent.Stderr != "bad" {
		t.Fatalf("log event = %+v", logEvent)
	}
	if snap, _ := m.Snapshot(id); snap.Stage != domain.RunStageFailed {
		t.Fatalf("snapshot stage = %s, want failed", snap.Stage)
	}
}

// TestManagerCancel verifies cancel behavior and repeated cancel handling.
func TestManagerCancel(t *testing.T) {
	started := make(chan struct{})
	fake := &fakePipeline{run: func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return pipeline.Result{Run: failedRun(req.RunID)}, &pipeline.StageError{
			Kind:  pipeline.KindCancelled,
			RunID: req.RunID,
			Err:   ctx.Err(),
		}
	}}
	m := NewManagerForTests(fake, nil, 1, sequentialIDs())

	id, err := m.Start(context.Background(), "/in/clip.mp4", "/out")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	<-started

	if err := m.Cancel(id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := waitFor(t, m, id); !errors.Is(err, pipeline.ErrCancelled) {
		t.Fatalf("Wait() error = %v, want ErrCancelled", err)
	}
	if err := m.Cancel(id); !errors.Is(err, ErrRunFinished) {
		t.Fatalf("second cancel error = %v, want %v", err, ErrRunFinished)
	}
}

// TestManagerForget checks records are dropped only after the run finished.
func TestManagerForget(t *testing.T) {
	release := make(chan struct{})
	fake := &fakePipeline{run: func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		<-release
		return pipeline.Result{Run: completedRun(t, req.RunID)}, nil
	}}
	m := NewManagerForTests(fake, nil, 1, sequentialIDs())

	id, err := m.Start(context.Background(), "/in/clip.mp4", "/out")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := m.Forget(id); !errors.Is(err, ErrRunActive) {
		t.Fatalf("Forget() on live run error = %v, want %v", err, ErrRunActive)
	}

	close(release)
	if _, err := waitFor(t, m, id); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := m.Forget(id); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if _, ok := m.Snapshot(id); ok {
		t.Fatal("Snapshot() ok = true after Forget")
	}
	if len(m.Runs()) != 0 {
		t.Fatalf("runs = %+v, want none", m.Runs())
	}
	if err := m.Forget(id); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("second Forget() error = %v, want %v", err, ErrUnknownRun)
	}
}

// TestManagerUnknownRun checks lookups for IDs never started.
func TestManagerUnknownRun(t *testing.T) {
	m := NewManagerForTests(&fakePipeline{}, nil, 1, sequentialIDs())

	if err := m.Cancel("missing"); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("Cancel() error = %v, want %v", err, ErrUnknownRun)
	}
	if _, err := m.Wait(context.Background(), "missing"); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("Wait() error = %v, want %v", err, ErrUnknownRun)
	}
	if _, ok := m.Snapshot("missing"); ok {
		t.Fatal("Snapshot() ok = true, want false")
	}
}

// TestManagerBoundsParallelRuns checks the semaphore limit.
func TestManagerBoundsParallelRuns(t *testing.T) {
	for _, limit := range []int{1, 2} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			var (
				mu      sync.Mutex
				active  int
				peak    int
				entered = make(chan struct{}, 3)
				gate    = make(chan struct{})
			)
			fake := &fakePipeline{run: func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()
				entered <- struct{}{}
				<-gate
				mu.Lock()
				active--
				mu.Unlock()
				return pipeline.Result{Run: completedRun(t, req.RunID)}, nil
			}}
			m := NewManagerForTests(fake, nil, limit, sequentialIDs())

			ids := make([]string, 0, 3)
			for i := 0; i < 3; i++ {
				id, err := m.Start(context.Background(), fmt.Sprintf("/in/%d.mp4", i), "/out")
				if err != nil {
					t.Fatalf("Start() error = %v", err)
				}
				ids = append(ids, id)
			}
			for i := 0; i < limit; i++ {
				<-entered
			}
			close(gate)

			for _, id := range ids {
				if _, err := waitFor(t, m, id); err != nil {
					t.Fatalf("Wait(%s) error = %v", id, err)
				}
			}
			if peak != limit {
				t.Fatalf("peak parallel runs = %d, want %d", peak, limit)
			}
			if runs := m.Runs(); len(runs) != 3 || runs[0].ID != "run-1" {
				t.Fatalf("runs = %+v", runs)
			}
		})
	}
}

// TestManagerCancelWhileQueued checks a run waiting for a slot fails as cancelled.
func TestManagerCancelWhileQueued(t *testing.T) {
	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	fake := &fakePipeline{run: func(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
		entered <- struct{}{}
		<-gate
		return pipeline.Result{Run: completedRun(t, req.RunID)}, nil
	}}
	m := NewManagerForTests(fake, nil, 1, sequentialIDs())

	first, _ := m.Start(context.Background(), "/in/a.mp4", "/out")
	<-entered
	queued, _ := m.Start(context.Background(), "/in/b.mp4", "/out")

	if err := m.Cancel(queued); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	result, err := waitFor(t, m, queued)
	if !errors.Is(err, pipeline.ErrCancelled) {
		t.Fatalf("Wait() error = %v, want ErrCancelled", err)
	}
	if result.Run.Stage != domain.RunStageFailed {
		t.Fatalf("queued run stage = %s, want failed", result.Run.Stage)
	}

	close(gate)
	if _, err := waitFor(t, m, first); err != nil {
		t.Fatalf("first run error = %v", err)
	}
}
