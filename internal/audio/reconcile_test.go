package audio

import (
	"errors"
	"math"
	"testing"
)

const testRate = 16000

// ramp builds a buffer whose samples are non-zero and position dependent.
func ramp(seconds float64, rate int) Buffer {
	n := TargetSamples(seconds, rate)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i%32000 + 1)
	}
	return Buffer{Samples: samples, SampleRate: rate}
}

// TestReconcileTrimKeepsPrefix checks 10s synthesized into a 6s video.
func TestReconcileTrimKeepsPrefix(t *testing.T) {
	synth := ramp(10, testRate)

	got, err := Reconcile(synth, 6)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Action != ActionTrimmed {
		t.Fatalf("action = %s, want trimmed", got.Action)
	}
	if len(got.Samples) != 6*testRate {
		t.Fatalf("samples = %d, want %d", len(got.Samples), 6*testRate)
	}
	for i := range got.Samples {
		if got.Samples[i] != synth.Samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got.Samples[i], synth.Samples[i])
		}
	}
	if string(PCMBytes(got.Buffer)) != string(PCMBytes(Buffer{Samples: synth.Samples[:6*testRate], SampleRate: testRate})) {
		t.Fatal("trimmed bytes differ from source prefix")
	}
}

// TestReconcilePadAppendsSilence checks 4s synthesized into a 6s video.
func TestReconcilePadAppendsSilence(t *testing.T) {
	synth := ramp(4, testRate)

	got, err := Reconcile(synth, 6)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Action != ActionPadded {
		t.Fatalf("action = %s, want padded", got.Action)
	}
	if got.SampleRate != testRate {
		t.Fatalf("sample rate = %d, want %d", got.SampleRate, testRate)
	}
	if len(got.Samples) != 6*testRate {
		t.Fatalf("samples = %d, want %d", len(got.Samples), 6*testRate)
	}
	for i := 0; i < 4*testRate; i++ {
		if got.Samples[i] != synth.Samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got.Samples[i], synth.Samples[i])
		}
	}
	for i := 4 * testRate; i < len(got.Samples); i++ {
		if got.Samples[i] != 0 {
			t.Fatalf("padding sample %d = %d, want 0", i, got.Samples[i])
		}
	}
}

// TestReconcileEqualIsIdentity checks no copy is made when lengths agree.
func TestReconcileEqualIsIdentity(t *testing.T) {
	synth := ramp(3, testRate)

	got, err := Reconcile(synth, 3)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Action != ActionUnchanged {
		t.Fatalf("action = %s, want unchanged", got.Action)
	}
	if &got.Samples[0] != &synth.Samples[0] {
		t.Fatal("expected the input samples to be returned as is")
	}
}

// TestReconcileDoesNotAliasInput checks trimmed output is independent of input.
func TestReconcileDoesNotAliasInput(t *testing.T) {
	synth := ramp(2, testRate)

	got, err := Reconcile(synth, 1)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	got.Samples[0] = -1
	if synth.Samples[0] == -1 {
		t.Fatal("trimmed buffer shares storage with input")
	}
}

// TestReconcileStaysWithinOneSample sweeps synthesized and target lengths.
func TestReconcileStaysWithinOneSample(t *testing.T) {
	rates := []int{8000, 16000, 22050, 24000, 44100}
	durations := []float64{0.01, 0.5, 1, 2.345, 6, 29.97, 30, 34.0001}

	for _, rate := range rates {
		for _, ds := range durations {
			for _, dt := range durations {
				synth := ramp(ds, rate)
				got, err := Reconcile(synth, dt)
				if err != nil {
					t.Fatalf("rate=%d ds=%v dt=%v: error = %v", rate, ds, dt, err)
				}
				eps := 1 / float64(rate)
				if diff := math.Abs(got.Duration() - dt); diff >= eps {
					t.Fatalf("rate=%d ds=%v dt=%v: |%v - %v| = %v, want < %v", rate, ds, dt, got.Duration(), dt, diff, eps)
				}
				if got.SampleRate != rate {
					t.Fatalf("rate=%d: result rate = %d", rate, got.SampleRate)
				}
			}
		}
	}
}

// TestReconcileThirtySecondScenario mirrors a 34s synthesis over a 30s video.
func TestReconcileThirtySecondScenario(t *testing.T) {
	got, err := Reconcile(ramp(34, 24000), 30)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got.Action != ActionTrimmed {
		t.Fatalf("action = %s, want trimmed", got.Action)
	}
	if got.Duration() != 30 {
		t.Fatalf("duration = %v, want 30", got.Duration())
	}
}

// TestReconcileRejectsInvalidInput checks target and buffer validation.
func TestReconcileRejectsInvalidInput(t *testing.T) {
	for _, target := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := Reconcile(ramp(1, testRate), target); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("target %v: error = %v, want %v", target, err, ErrInvalidTarget)
		}
	}

	if _, err := Reconcile(Buffer{Samples: []int16{1}}, 1); !errors.Is(err, ErrInvalidBuffer) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidBuffer)
	}
}
