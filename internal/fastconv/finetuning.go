package fastconv

import (
	"math"
	"math/cmplx"

	"github.com/sdrcore/fastconv/internal/oscillator"
)

// FineTuner realizes spec §4.2's fine-tuning and block-rotation
// correction: the output filter only selects whole FFT bins, so an
// oscillator running at the sub-bin remainder frequency supplies the
// rest, and a per-block phase correction keeps that oscillator's phase
// reference continuous whenever the bin shift changes or isn't a
// multiple of the overlap factor V = N/(M-1).
type FineTuner struct {
	osc       oscillator.Oscillator
	v         int
	lastShift int
	primed    bool
}

// NewFineTuner builds a tuner for an overlap factor V (N/(M-1)).
func NewFineTuner(overlapFactor int) *FineTuner {
	t := &FineTuner{v: overlapFactor}
	t.osc.SetPhasor(1)
	return t
}

// Retune updates the remainder frequency and applies the block
// rotation correction for a new (shift, remainderHz) pair. It must be
// called once per block before Apply.
func (t *FineTuner) Retune(shift int, remainderHz, sampleRate float64) {
	t.osc.SetFrequency(remainderHz, sampleRate)

	mod := wrapMod(shift, t.v)
	blockCorrection := cmplx.Exp(complex(0, -2*math.Pi*float64(mod)/float64(t.v)))

	correction := blockCorrection
	if t.primed && shift != t.lastShift && t.v > 1 {
		delta := shift - t.lastShift
		oneShot := cmplx.Exp(complex(0, math.Pi*float64(delta)/float64(t.v-1)))
		correction *= oneShot
	}
	t.lastShift = shift
	t.primed = true

	t.osc.SetPhasor(t.osc.Phasor() * correction)
}

// Apply multiplies samples in place by the running fine-tuning
// phasor, stepping it sample-by-sample (spec §4.5 step 6).
func (t *FineTuner) Apply(samples []complex128) {
	for i := range samples {
		samples[i] *= t.osc.Phasor()
		t.osc.Step()
	}
}
