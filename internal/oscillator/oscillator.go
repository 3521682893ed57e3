// Package oscillator implements the complex phasor stepping and
// periodic renormalization described in spec §2 ("Oscillator/PLL")
// and §9 ("Renormalizing complex phasors"), plus the second-order PLL
// used by the linear demodulator (§4.6).
package oscillator

import "math"

// RenormRate is the number of steps between magnitude renormalizations.
// Matches original_source/osc.c's Renorm_rate constant exactly.
const RenormRate = 16384

// Oscillator is a complex phasor that advances by a fixed per-sample
// rotation. Repeated multiplication drifts in magnitude over time;
// every RenormRate steps the phasor is divided by its own magnitude to
// pull it back to the unit circle.
type Oscillator struct {
	phasor complex128 // current unit vector
	step   complex128 // per-sample rotation
	steps  int         // steps since last renormalization
}

// NewFromFrequency builds an oscillator stepping at freqHz relative to
// sampleRate, starting at phase zero.
func NewFromFrequency(freqHz, sampleRate float64) *Oscillator {
	o := &Oscillator{phasor: 1}
	o.SetFrequency(freqHz, sampleRate)
	return o
}

// SetFrequency changes the per-sample rotation without touching the
// current phase, so retuning doesn't introduce a phase discontinuity.
func (o *Oscillator) SetFrequency(freqHz, sampleRate float64) {
	theta := 2 * math.Pi * freqHz / sampleRate
	s, c := math.Sincos(theta)
	o.step = complex(c, s)
}

// Step advances the oscillator one sample and returns the new phasor.
func (o *Oscillator) Step() complex128 {
	o.phasor *= o.step
	o.steps++
	if o.steps >= RenormRate {
		o.renormalize()
		o.steps = 0
	}
	return o.phasor
}

// Phasor returns the current value without advancing.
func (o *Oscillator) Phasor() complex128 { return o.phasor }

// SetPhasor forces the current value, e.g. to apply the one-shot block
// rotation correction of spec §4.2 when the bin shift changes.
func (o *Oscillator) SetPhasor(p complex128) { o.phasor = p }

func (o *Oscillator) renormalize() {
	mag := math.Hypot(real(o.phasor), imag(o.phasor))
	if mag == 0 {
		o.phasor = 1
		return
	}
	o.phasor = complex(real(o.phasor)/mag, imag(o.phasor)/mag)
}

// PLL is the second-order carrier-tracking loop of spec §4.6: natural
// frequency = loop_bw Hz, damping default sqrt(2)/2, integrator
// clamped to +-sampleRate/2.
type PLL struct {
	SampleRate float64
	LoopBW     float64
	Damping    float64

	alpha, beta float64 // proportional/integral loop gains, derived from LoopBW/Damping
	freq        float64 // current estimated carrier frequency (integrator output), Hz
	osc         Oscillator

	cycleSlips int
}

// DefaultDamping is sqrt(2)/2, "critical" damping, matching
// original_source/linear.c's DEFAULT_PLL_DAMPING.
const DefaultDamping = math.Sqrt2 / 2

// NewPLL builds a PLL with the given loop bandwidth (Hz) and damping
// factor at the given baseband sample rate.
func NewPLL(sampleRate, loopBW, damping float64) *PLL {
	p := &PLL{SampleRate: sampleRate, LoopBW: loopBW, Damping: damping}
	p.osc.phasor = 1
	p.recomputeGains()
	return p
}

// SetLoopParams lets the loop bandwidth/damping be changed live, e.g.
// on a command that reconfigures the channel (spec §4.10).
func (p *PLL) SetLoopParams(loopBW, damping float64) {
	p.LoopBW = loopBW
	p.Damping = damping
	p.recomputeGains()
}

func (p *PLL) recomputeGains() {
	wn := 2 * math.Pi * p.LoopBW
	ts := 1 / p.SampleRate
	p.alpha = 2 * p.Damping * wn * ts
	p.beta = wn * wn * ts * ts
}

// Phasor returns the PLL's current locally-generated carrier estimate.
func (p *PLL) Phasor() complex128 { return p.osc.Phasor() }

// Run advances the loop by one sample given a phase-detector error in
// radians (arg(z) normally, arg(z^2) in squared/BPSK mode per §4.6).
// It updates the integrator (clamped to +-samplerate/2) and steps the
// internal oscillator, tracking cycle slips (phase wraps past +-pi).
func (p *PLL) Run(phaseError float64) {
	// Wrap to (-pi, pi]; a wrap here is a cycle slip.
	wrapped := math.Mod(phaseError+math.Pi, 2*math.Pi) - math.Pi
	if wrapped <= -math.Pi {
		wrapped += 2 * math.Pi
	}
	if math.Abs(wrapped-phaseError) > 1e-9 && math.Abs(phaseError) > math.Pi {
		p.cycleSlips++
	}

	p.freq += p.beta * wrapped
	limit := p.SampleRate / 2
	if p.freq > limit {
		p.freq = limit
	} else if p.freq < -limit {
		p.freq = -limit
	}

	instFreq := p.freq + p.alpha*wrapped*p.SampleRate/(2*math.Pi)
	p.osc.SetFrequency(instFreq, p.SampleRate)
	p.osc.Step()
}

// CycleSlips returns the running count of +-pi phase wraps.
func (p *PLL) CycleSlips() int { return p.cycleSlips }

// Frequency returns the PLL's current carrier frequency estimate (Hz).
func (p *PLL) Frequency() float64 { return p.freq }
