package pipeline

import (
	"errors"
	"fmt"

	"media-revoicer/internal/domain"
	"media-revoicer/internal/media"
)

// ErrorKind classifies why a run failed.
type ErrorKind string

const (
	KindNoAudioStream   ErrorKind = "no_audio_stream"
	KindExtraction      ErrorKind = "extraction"
	KindTranscription   ErrorKind = "transcription"
	KindEmptyTranscript ErrorKind = "empty_transcript"
	KindSynthesis       ErrorKind = "synthesis"
	KindReconcile       ErrorKind = "reconcile"
	KindRemux           ErrorKind = "remux"
	KindPublish         ErrorKind = "publish"
	KindCancelled       ErrorKind = "cancelled"
)

// Sentinels matched by errors.Is against a *StageError of the same kind.
var (
	ErrNoAudioStream   = errors.New("no audio stream")
	ErrExtraction      = errors.New("audio extraction failed")
	ErrTranscription   = errors.New("transcription failed")
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrSynthesis       = errors.New("speech synthesis failed")
	ErrReconcile       = errors.New("duration reconciliation failed")
	ErrRemux           = errors.New("remux failed")
	ErrPublish         = errors.New("publishing artifacts failed")
	ErrCancelled       = errors.New("run cancelled")
)

var kindSentinels = map[ErrorKind]error{
	KindNoAudioStream:   ErrNoAudioStream,
	KindExtraction:      ErrExtraction,
	KindTranscription:   ErrTranscription,
	KindEmptyTranscript: ErrEmptyTranscript,
	KindSynthesis:       ErrSynthesis,
	KindReconcile:       ErrReconcile,
	KindRemux:           ErrRemux,
	KindPublish:         ErrPublish,
	KindCancelled:       ErrCancelled,
}

// StageError is the single error surfaced for a failed run.
type StageError struct {
	Kind       ErrorKind        `json:"kind"`
	Stage      domain.RunStage  `json:"stage"`
	RunID      string           `json:"runId"`
	Message    string           `json:"message"`
	CommandLog media.CommandLog `json:"commandLog"`
	Err        error            `json:"-"`
}

// Error formats pipeline failures for logs and callers.
func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s [%s]: %s", e.Stage, e.Kind, e.Message)
	if e.CommandLog.Command != "" {
		msg = fmt.Sprintf("%s (cmd=%s exit=%d)", msg, e.CommandLog.Command, e.CommandLog.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel of this error's kind.
func (e *StageError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// newStageError attaches the failing command, when there is one.
func newStageError(kind ErrorKind, stage domain.RunStage, message string, err error) *StageError {
	se := &StageError{Kind: kind, Stage: stage, Message: message, Err: err}
	var cmdErr *media.CommandError
	if errors.As(err, &cmdErr) {
		se.CommandLog = cmdErr.Log
	}
	return se
}
