// Package media drives ffmpeg and ffprobe: probing inputs, extracting a mono
// PCM track and muxing a replacement audio track back over the video.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string        `json:"command"`
	Args     []string      `json:"args"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Elapsed  time.Duration `json:"elapsed"`
}

// CommandError wraps a failed invocation together with its log.
type CommandError struct {
	Log CommandLog
	Err error
}

// Error formats the command name and exit code.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited with %d: %v", e.Log.Command, e.Log.ExitCode, e.Err)
}

// Unwrap exposes the process error for errors.Is / errors.As.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// CommandResult is one process execution response.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Tools bundles the binaries, runner and logger shared by the media stages.
type Tools struct {
	FFmpegPath  string
	FFprobePath string
	Runner      Runner
	Logger      zerolog.Logger
}

// DefaultTools uses ffmpeg/ffprobe from PATH and a silent logger.
func DefaultTools() Tools {
	return Tools{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		Runner:      ExecRunner{},
		Logger:      zerolog.Nop(),
	}
}

// run executes one command, reports its log and converts failures to *CommandError.
// A cancelled context wins over the process error so callers can detect it.
func (t Tools) run(ctx context.Context, onLog func(CommandLog), name string, args ...string) (CommandLog, error) {
	start := time.Now()
	res, err := t.Runner.Run(ctx, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Elapsed:  time.Since(start),
	}

	t.Logger.Debug().
		Str("command", name).
		Strs("args", args).
		Int("exit_code", log.ExitCode).
		Dur("elapsed", log.Elapsed).
		Msg("command completed")
	if onLog != nil {
		onLog(log)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return log, ctxErr
	}
	if err != nil {
		return log, &CommandError{Log: log, Err: err}
	}
	return log, nil
}
