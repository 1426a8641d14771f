package pipeline

import (
	"media-revoicer/internal/domain"
	"media-revoicer/internal/media"
)

// Observer receives progress notifications. The pipeline never depends on
// an observer for correctness; implementations must not block.
type Observer interface {
	StageStarted(runID string, stage domain.RunStage)
	Progress(runID string, stage domain.RunStage, fraction float64)
	StageCompleted(runID string, stage domain.RunStage)
	CommandCompleted(runID string, log media.CommandLog)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) StageStarted(string, domain.RunStage) {}
func (NopObserver) Progress(string, domain.RunStage, float64) {}
func (NopObserver) StageCompleted(string, domain.RunStage) {}
func (NopObserver) CommandCompleted(string, media.CommandLog) {}
