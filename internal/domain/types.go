package domain

import (
	"fmt"
	"time"
)

// RunStage tracks which pipeline stage a single revoicing run is in.
type RunStage string

const (
	RunStageIdle            RunStage = "idle"
	RunStageExtractingAudio RunStage = "extracting_audio"
	RunStageTranscribing    RunStage = "transcribing"
	RunStageSynthesizing    RunStage = "synthesizing"
	RunStageReconciling     RunStage = "reconciling"
	RunStageRemuxing        RunStage = "remuxing"
	RunStageCompleted       RunStage = "completed"
	RunStageFailed          RunStage = "failed"
)

// RunStatus is the coarse lifecycle status of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	FFmpegPath           string `json:"ffmpegPath"`
	FFprobePath          string `json:"ffprobePath"`
	OutputDir            string `json:"outputDir"`
	Language             string `json:"language"`
	VoiceName            string `json:"voiceName"`
	SampleRate           int    `json:"sampleRate"`
	MaxParallelRuns      int    `json:"maxParallelRuns"`
	SpeechEndpoint       string `json:"speechEndpoint"`
	TextToSpeechEndpoint string `json:"textToSpeechEndpoint"`
}

// Artifacts holds the files and text a run has produced so far.
type Artifacts struct {
	AudioPath            string `json:"audioPath,omitempty"`
	Transcript           string `json:"transcript,omitempty"`
	SynthesizedAudioPath string `json:"synthesizedAudioPath,omitempty"`
	FinalVideoPath       string `json:"finalVideoPath,omitempty"`
}

// Run is the orchestration record of one pipeline execution.
type Run struct {
	ID         string    `json:"id"`
	Stage      RunStage  `json:"stage"`
	Status     RunStatus `json:"status"`
	Artifacts  Artifacts `json:"artifacts"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// NewRun creates a pending run in idle stage.
func NewRun(id string) Run {
	return Run{
		ID:     id,
		Stage:  RunStageIdle,
		Status: RunStatusPending,
	}
}

// Advance moves the run to the next stage, enforcing the strict sequence.
func (r *Run) Advance(next RunStage) error {
	if !isValidTransition(r.Stage, next) {
		return fmt.Errorf("invalid transition: %s -> %s", r.Stage, next)
	}

	r.Stage = next
	switch next {
	case RunStageCompleted:
		r.Status = RunStatusSucceeded
	case RunStageFailed:
		r.Status = RunStatusFailed
	default:
		r.Status = RunStatusRunning
	}
	return nil
}

// Terminal reports whether the run can no longer change stage.
func (r Run) Terminal() bool {
	return r.Stage == RunStageCompleted || r.Stage == RunStageFailed
}

var stageOrder = []RunStage{
	RunStageIdle,
	RunStageExtractingAudio,
	RunStageTranscribing,
	RunStageSynthesizing,
	RunStageReconciling,
	RunStageRemuxing,
	RunStageCompleted,
}

// isValidTransition allows one step forward, or failure from any non-terminal stage.
func isValidTransition(from, to RunStage) bool {
	if from == RunStageCompleted || from == RunStageFailed {
		return false
	}
	if to == RunStageFailed {
		return true
	}

	for i := 0; i < len(stageOrder)-1; i++ {
		if stageOrder[i] == from {
			return stageOrder[i+1] == to
		}
	}
	return false
}
