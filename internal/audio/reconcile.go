package audio

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidTarget is returned when the target duration is not a positive finite number.
var ErrInvalidTarget = errors.New("invalid target duration")

// Action records which branch of the reconcile policy was taken.
type Action string

const (
	ActionUnchanged Action = "unchanged"
	ActionTrimmed   Action = "trimmed"
	ActionPadded    Action = "padded"
)

// Reconciled is a buffer whose duration equals Target within one sample period.
type Reconciled struct {
	Buffer
	Target float64
	Action Action
}

// Reconcile fits b to target seconds. Longer audio keeps its prefix and the
// tail is dropped, so speech may be cut mid-sentence. Shorter audio gets
// trailing silence. Nothing is time-stretched. When the lengths already agree
// b is returned as is, sharing its samples.
func Reconcile(b Buffer, target float64) (Reconciled, error) {
	if err := b.Validate(); err != nil {
		return Reconciled{}, err
	}
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return Reconciled{}, fmt.Errorf("%w: %v", ErrInvalidTarget, target)
	}

	want := TargetSamples(target, b.SampleRate)
	have := len(b.Samples)

	switch {
	case have == want:
		return Reconciled{Buffer: b, Target: target, Action: ActionUnchanged}, nil
	case have > want:
		out := make([]int16, want)
		copy(out, b.Samples[:want])
		return Reconciled{
			Buffer: Buffer{Samples: out, SampleRate: b.SampleRate},
			Target: target,
			Action: ActionTrimmed,
		}, nil
	default:
		// make zero-fills the tail.
		out := make([]int16, want)
		copy(out, b.Samples)
		return Reconciled{
			Buffer: Buffer{Samples: out, SampleRate: b.SampleRate},
			Target: target,
			Action: ActionPadded,
		}, nil
	}
}

// TargetSamples is the sample count closest to seconds at rate.
func TargetSamples(seconds float64, rate int) int {
	return int(math.Round(seconds * float64(rate)))
}
