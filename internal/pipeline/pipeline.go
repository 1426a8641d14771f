// Package pipeline sequences one revoicing run: extract the audio track,
// transcribe it, synthesize new speech, fit that speech to the video length
// and mux it back over the untouched video stream.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"media-revoicer/internal/audio"
	"media-revoicer/internal/domain"
	"media-revoicer/internal/media"
	"media-revoicer/internal/speech"
)

const (
	extractedName  = "extracted.wav"
	reconciledName = "reconciled.wav"
	remuxedName    = "final.mp4"
	transcriptName = "transcript.json"

	// maxNameAttempts bounds the -N suffixes tried when output names are taken.
	maxNameAttempts = 1000
)

// VideoOpener probes an input video.
type VideoOpener interface {
	OpenVideo(ctx context.Context, path string, onLog func(media.CommandLog)) (domain.MediaAsset, media.ProbeResult, error)
}

// AudioExtractor demuxes a video's audio track into PCM.
type AudioExtractor interface {
	Extract(ctx context.Context, req media.ExtractRequest) (media.ExtractResult, error)
}

// VideoRemuxer replaces a video's audio stream.
type VideoRemuxer interface {
	Remux(ctx context.Context, req media.RemuxRequest) (domain.MediaAsset, error)
}

// Deps are the collaborators a pipeline is built from. Gateways arrive
// ready to use.
type Deps struct {
	Opener      VideoOpener
	Extractor   AudioExtractor
	Remuxer     VideoRemuxer
	Recognizer  speech.Recognizer
	Synthesizer speech.Synthesizer
	Logger      zerolog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Opener == nil:
		return errors.New("video opener is required")
	case d.Extractor == nil:
		return errors.New("audio extractor is required")
	case d.Remuxer == nil:
		return errors.New("video remuxer is required")
	case d.Recognizer == nil:
		return errors.New("speech recognizer is required")
	case d.Synthesizer == nil:
		return errors.New("speech synthesizer is required")
	}
	return nil
}

// Config is the fixed per-process pipeline configuration.
type Config struct {
	Language   string
	VoiceName  string
	SampleRate int
}

// Request identifies one run.
type Request struct {
	RunID     string
	InputPath string
	OutputDir string
	Observer  Observer
}

// Result is what a completed run hands to the caller. The three artifact
// files are caller-owned and are not deleted by the pipeline.
type Result struct {
	Run             domain.Run
	Video           domain.MediaAsset
	FinalVideo      domain.MediaAsset
	Transcript      domain.Transcript
	TranscriptPath  string
	AudioPath       string
	VideoPath       string
	Reconcile       audio.Action
	// LeftoverScratch is set when the scratch directory could not be removed
	// after a successful run.
	LeftoverScratch string
}

// Pipeline runs the stages strictly in order. It holds no per-run state, so
// one Pipeline can serve many concurrent runs.
type Pipeline struct {
	deps      Deps
	cfg       Config
	now       func() time.Time
	mkdirTemp func(dir, pattern string) (string, error)
	mkdirAll  func(path string, perm os.FileMode) error
	removeAll func(path string) error
	link      func(oldname, newname string) error
	writeFile func(name string, data []byte, perm os.FileMode) error
	retry     func() backoff.BackOff
}

// New constructs the production pipeline with OS dependencies.
func New(deps Deps, cfg Config) *Pipeline {
	return &Pipeline{
		deps:      deps,
		cfg:       cfg,
		now:       time.Now,
		mkdirTemp: os.MkdirTemp,
		mkdirAll:  os.MkdirAll,
		removeAll: os.RemoveAll,
		link:      linkNoClobber,
		writeFile: os.WriteFile,
		retry:     defaultCleanupBackOff,
	}
}

// NewForTests constructs a pipeline with injectable filesystem hooks and clock.
func NewForTests(
	deps Deps,
	cfg Config,
	now func() time.Time,
	mkdirTemp func(dir, pattern string) (string, error),
	removeAll func(path string) error,
	link func(oldname, newname string) error,
) *Pipeline {
	p := New(deps, cfg)
	p.now = now
	p.mkdirTemp = mkdirTemp
	p.removeAll = removeAll
	p.link = link
	p.retry = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}
	return p
}

// runState is the per-run bookkeeping threaded through the stages.
type runState struct {
	run    domain.Run
	req    Request
	obs    Observer
	ws     *workspace
	logger zerolog.Logger
	onLog  func(media.CommandLog)
}

// Run executes every stage. On any failure, including cancellation, the
// scratch workspace and anything already published are removed before the
// single *StageError is returned; the returned Result then carries only the
// failed run record.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	obs := req.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	st := &runState{
		run:    domain.NewRun(req.RunID),
		req:    req,
		obs:    obs,
		logger: p.deps.Logger.With().Str("run_id", req.RunID).Logger(),
	}
	st.run.StartedAt = p.now().UTC()
	st.onLog = func(log media.CommandLog) { obs.CommandCompleted(req.RunID, log) }

	result, err := p.execute(ctx, st)
	if err != nil {
		return p.fail(ctx, st, err)
	}

	if err := st.ws.release(); err != nil {
		result.LeftoverScratch = st.ws.dir
		st.logger.Error().Err(err).Str("dir", st.ws.dir).Msg("scratch workspace left behind")
	}
	if err := st.run.Advance(domain.RunStageCompleted); err != nil {
		return p.fail(ctx, st, err)
	}
	st.run.FinishedAt = p.now().UTC()
	result.Run = st.run

	st.logger.Info().
		Str("video", result.VideoPath).
		Str("audio", result.AudioPath).
		Str("transcript", result.TranscriptPath).
		Msg("run completed")
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, st *runState) (Result, error) {
	if err := p.deps.validate(); err != nil {
		return Result{}, newStageError(KindExtraction, st.run.Stage, "pipeline is not configured", err)
	}
	if strings.TrimSpace(st.req.OutputDir) == "" {
		return Result{}, newStageError(KindPublish, st.run.Stage, "output directory is required", nil)
	}
	if err := p.mkdirAll(st.req.OutputDir, 0o755); err != nil {
		return Result{}, newStageError(KindPublish, st.run.Stage,
			fmt.Sprintf("cannot create output directory: %s", st.req.OutputDir), err)
	}

	// Scratch lives under the output dir so publishing is a same-volume link.
	dir, err := p.mkdirTemp(st.req.OutputDir, ".revoice-*")
	if err != nil {
		return Result{}, newStageError(KindExtraction, st.run.Stage, "failed to create scratch workspace", err)
	}
	st.ws = &workspace{dir: dir, removeAll: p.removeAll, link: p.link, retry: p.retry}

	// Extracting audio.
	if err := p.enter(ctx, st, domain.RunStageExtractingAudio); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(st.req.InputPath) == "" {
		return Result{}, newStageError(KindExtraction, st.run.Stage, "input video path is required", nil)
	}
	video, _, err := p.deps.Opener.OpenVideo(ctx, st.req.InputPath, st.onLog)
	if err != nil {
		return Result{}, newStageError(KindExtraction, st.run.Stage,
			fmt.Sprintf("cannot open input video: %s", st.req.InputPath), err)
	}
	extracted, err := p.deps.Extractor.Extract(ctx, media.ExtractRequest{
		Video:      video,
		OutputPath: st.ws.path(extractedName),
		SampleRate: p.cfg.SampleRate,
		OnLog:      st.onLog,
	})
	if err != nil {
		if errors.Is(err, media.ErrNoAudioStream) {
			return Result{}, newStageError(KindNoAudioStream, st.run.Stage, "input video has no audio stream", err)
		}
		return Result{}, newStageError(KindExtraction, st.run.Stage, "ffmpeg audio extraction failed", err)
	}
	st.run.Artifacts.AudioPath = extracted.Asset.Path
	p.complete(st)

	// Transcribing.
	if err := p.enter(ctx, st, domain.RunStageTranscribing); err != nil {
		return Result{}, err
	}
	transcript, err := speech.Transcribe(ctx, p.deps.Recognizer, extracted.Buffer, speech.TranscribeOptions{
		Language: p.cfg.Language,
		Now:      p.now,
		OnProgress: func(fraction float64) {
			st.obs.Progress(st.run.ID, domain.RunStageTranscribing, fraction)
		},
	})
	if err != nil {
		if errors.Is(err, speech.ErrEmptyTranscript) {
			return Result{}, newStageError(KindEmptyTranscript, st.run.Stage, "recognition returned no speech", err)
		}
		return Result{}, newStageError(KindTranscription, st.run.Stage, "speech recognition failed", err)
	}
	st.run.Artifacts.Transcript = transcript.Text
	p.complete(st)

	// Synthesizing.
	if err := p.enter(ctx, st, domain.RunStageSynthesizing); err != nil {
		return Result{}, err
	}
	synth, err := speech.Synthesize(ctx, p.deps.Synthesizer, transcript.Text, speech.SynthesizeOptions{
		VoiceName: p.cfg.VoiceName,
		Language:  p.cfg.Language,
	})
	if err != nil {
		return Result{}, newStageError(KindSynthesis, st.run.Stage, "speech synthesis failed", err)
	}
	p.complete(st)

	// Reconciling.
	if err := p.enter(ctx, st, domain.RunStageReconciling); err != nil {
		return Result{}, err
	}
	reconciled, err := audio.Reconcile(synth, video.DurationSeconds)
	if err != nil {
		return Result{}, newStageError(KindReconcile, st.run.Stage, "cannot fit synthesized audio to video", err)
	}
	if reconciled.Action != audio.ActionUnchanged {
		st.logger.Warn().
			Float64("synth_seconds", synth.Duration()).
			Float64("target_seconds", video.DurationSeconds).
			Str("action", string(reconciled.Action)).
			Msg("synthesized audio duration differs from video, adjusting")
	}
	if err := audio.WriteWAVFile(st.ws.path(reconciledName), reconciled.Buffer); err != nil {
		return Result{}, newStageError(KindReconcile, st.run.Stage, "cannot write reconciled audio", err)
	}
	st.run.Artifacts.SynthesizedAudioPath = st.ws.path(reconciledName)
	p.complete(st)

	// Remuxing.
	if err := p.enter(ctx, st, domain.RunStageRemuxing); err != nil {
		return Result{}, err
	}
	final, err := p.deps.Remuxer.Remux(ctx, media.RemuxRequest{
		Video:      video,
		AudioPath:  st.ws.path(reconciledName),
		OutputPath: st.ws.path(remuxedName),
		OnLog:      st.onLog,
	})
	if err != nil {
		return Result{}, newStageError(KindRemux, st.run.Stage, "ffmpeg remux failed", err)
	}
	if drift := math.Abs(final.DurationSeconds - video.DurationSeconds); drift > 0.05 {
		st.logger.Warn().
			Float64("video_seconds", video.DurationSeconds).
			Float64("output_seconds", final.DurationSeconds).
			Msg("remuxed duration drifts from source video")
	}

	result, err := p.publish(st, transcript, reconciled.Action)
	if err != nil {
		return Result{}, err
	}
	result.Video = video
	result.FinalVideo = final
	result.FinalVideo.Path = result.VideoPath
	p.complete(st)
	return result, nil
}

// enter advances the run to stage, refusing to start work on a cancelled context.
func (p *Pipeline) enter(ctx context.Context, st *runState, stage domain.RunStage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.run.Advance(stage); err != nil {
		return err
	}
	st.logger.Info().Str("stage", string(stage)).Msg("stage started")
	st.obs.StageStarted(st.run.ID, stage)
	st.obs.Progress(st.run.ID, stage, 0)
	return nil
}

func (p *Pipeline) complete(st *runState) {
	st.obs.Progress(st.run.ID, st.run.Stage, 1)
	st.obs.StageCompleted(st.run.ID, st.run.Stage)
	st.logger.Debug().Str("stage", string(st.run.Stage)).Msg("stage completed")
}

type transcriptFile struct {
	Transcript string `json:"transcript"`
	Timestamp  string `json:"timestamp"`
}

// publish writes the transcript file and places the three caller artifacts
// in the output directory. Existing files are never replaced: when a name is
// taken the stem gets a -N suffix.
func (p *Pipeline) publish(st *runState, transcript domain.Transcript, action audio.Action) (Result, error) {
	data, err := json.MarshalIndent(transcriptFile{
		Transcript: transcript.Text,
		Timestamp:  transcript.CreatedAt.Format(time.RFC3339),
	}, "", "    ")
	if err != nil {
		return Result{}, newStageError(KindPublish, st.run.Stage, "cannot encode transcript", err)
	}
	if err := p.writeFile(st.ws.path(transcriptName), data, 0o644); err != nil {
		return Result{}, newStageError(KindPublish, st.run.Stage, "cannot write transcript", err)
	}

	base := artifactBase(st.req.InputPath)
	result := Result{Transcript: transcript, Reconcile: action}
	for n := 0; ; n++ {
		if n == maxNameAttempts {
			return Result{}, newStageError(KindPublish, st.run.Stage,
				fmt.Sprintf("no free output name for %s in %s", base, st.req.OutputDir), os.ErrExist)
		}
		stem := base
		if n > 0 {
			stem = fmt.Sprintf("%s-%d", base, n)
		}
		result.TranscriptPath = filepath.Join(st.req.OutputDir, stem+".transcript.json")
		result.AudioPath = filepath.Join(st.req.OutputDir, stem+".revoiced.wav")
		result.VideoPath = filepath.Join(st.req.OutputDir, stem+".revoiced.mp4")

		err := st.ws.publish([]handoff{
			{scratchName: transcriptName, dst: result.TranscriptPath},
			{scratchName: reconciledName, dst: result.AudioPath},
			{scratchName: remuxedName, dst: result.VideoPath},
		})
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return Result{}, newStageError(KindPublish, st.run.Stage, "cannot publish artifacts", err)
		}
		st.logger.Debug().Str("stem", stem).Msg("output name taken, trying next")
	}

	// The extracted track stays in scratch and is gone once the run ends.
	st.run.Artifacts = domain.Artifacts{
		Transcript:           transcript.Text,
		SynthesizedAudioPath: result.AudioPath,
		FinalVideoPath:       result.VideoPath,
	}
	return result, nil
}

// fail converts err into a *StageError, removes every file the run created
// and marks the run failed.
func (p *Pipeline) fail(ctx context.Context, st *runState, err error) (Result, error) {
	cancelled := ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)

	var stageErr *StageError
	switch {
	case errors.As(err, &stageErr):
		if cancelled {
			stageErr.Kind = KindCancelled
		}
	case cancelled:
		stageErr = newStageError(KindCancelled, st.run.Stage, "run cancelled", err)
	default:
		stageErr = newStageError(KindExtraction, st.run.Stage, "run aborted", err)
	}
	stageErr.RunID = st.run.ID

	if st.ws != nil {
		if rbErr := st.ws.rollback(); rbErr != nil {
			st.logger.Error().Err(rbErr).Msg("remove published artifacts")
		}
		dir := st.ws.dir
		if relErr := st.ws.release(); relErr != nil {
			st.logger.Error().Err(relErr).Str("dir", dir).Msg("release scratch workspace")
		}
	}

	if !st.run.Terminal() {
		_ = st.run.Advance(domain.RunStageFailed)
	}
	st.run.Artifacts = domain.Artifacts{}
	st.run.FinishedAt = p.now().UTC()

	st.logger.Error().
		Str("kind", string(stageErr.Kind)).
		Str("stage", string(stageErr.Stage)).
		Err(stageErr.Err).
		Msg(stageErr.Message)
	return Result{Run: st.run}, stageErr
}

// artifactBase builds the output file stem from the input name.
func artifactBase(inputPath string) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "video"
	}
	return name
}
