// Package iir implements the small IIR building blocks spec §2 groups
// under "IIR utilities": a Goertzel tone detector, a single-pole
// notch, a single-pole lowpass, and a DC-blocker. These are the
// per-sample primitives the demodulators in internal/demod compose
// (PL-tone squelch, de-emphasis, DC removal).
package iir

import "math"

// Goertzel is a single-bin DFT detector, used for PL-tone (CTCSS)
// squelch (spec §4.7) integrated over a fixed window.
type Goertzel struct {
	coeff  float64
	s1, s2 float64
	n      int
}

// NewGoertzel builds a detector for toneHz at the given sample rate.
func NewGoertzel(toneHz, sampleRate float64) *Goertzel {
	omega := 2 * math.Pi * toneHz / sampleRate
	return &Goertzel{coeff: 2 * math.Cos(omega)}
}

// Reset clears accumulated state, starting a new integration window.
func (g *Goertzel) Reset() {
	g.s1, g.s2, g.n = 0, 0, 0
}

// Add feeds one sample into the running DFT.
func (g *Goertzel) Add(x float64) {
	s0 := x + g.coeff*g.s1 - g.s2
	g.s2 = g.s1
	g.s1 = s0
	g.n++
}

// Energy returns the squared magnitude of the detected tone over the
// samples seen since the last Reset.
func (g *Goertzel) Energy() float64 {
	return g.s1*g.s1 + g.s2*g.s2 - g.coeff*g.s1*g.s2
}

// Count returns the number of samples accumulated since Reset.
func (g *Goertzel) Count() int { return g.n }

// OnePole is a single-pole IIR low-pass/notch/DC-block primitive of
// the form y += rate*(x - y), the same recurrence spec §4.7 uses for
// de-emphasis and §4.5/§4.6 use for noise-density smoothing and DC
// removal; which behavior it realizes depends only on the rate and
// what's fed to Step.
type OnePole struct {
	Rate  float64
	state float64
}

// NewOnePoleFromTimeConstant derives the per-sample rate from a time
// constant in seconds, using rate = 1 - exp(-1/(tc*sampleRate)) — the
// exact form used by original_source/fm.c for de-emphasis and DC
// removal, not the small-rate approximation 1/(tc*sampleRate).
func NewOnePoleFromTimeConstant(tcSeconds, sampleRate float64) *OnePole {
	return &OnePole{Rate: -math.Expm1(-1 / (tcSeconds * sampleRate))}
}

// Step advances the filter by one sample and returns the new state.
func (f *OnePole) Step(x float64) float64 {
	f.state += f.Rate * (x - f.state)
	return f.state
}

// State returns the current filter output without advancing.
func (f *OnePole) State() float64 { return f.state }

// DCBlock removes slowly drifting DC bias: y = x - lowpass(x). It is
// the single-pole DC-block mentioned in spec §4.6 envelope-mode output
// and §4.7 after de-emphasis.
type DCBlock struct {
	lp OnePole
}

// NewDCBlock builds a blocker whose lowpass time constant is tcSeconds.
func NewDCBlock(tcSeconds, sampleRate float64) *DCBlock {
	return &DCBlock{lp: *NewOnePoleFromTimeConstant(tcSeconds, sampleRate)}
}

// Step removes the estimated DC component from x.
func (d *DCBlock) Step(x float64) float64 {
	return x - d.lp.Step(x)
}

// Notch is an adaptive single-bin notch used by the optional
// frequency-domain notch list of spec §3 ("Notch filter list"): it
// tracks a smoothed spur estimate and can be queried for the current
// estimate so the caller can subtract it from a bin.
type Notch struct {
	AdaptRate float64
	estimate  complex128
}

// NewNotch builds a notch with the given smoothing/adaptation rate
// (spec §3 "smoothed spur estimate, adaptation rate").
func NewNotch(adaptRate float64) *Notch {
	return &Notch{AdaptRate: adaptRate}
}

// Update feeds the current complex bin value and returns the bin with
// the tracked spur removed.
func (n *Notch) Update(bin complex128) complex128 {
	n.estimate += complex(n.AdaptRate, 0) * (bin - n.estimate)
	return bin - n.estimate
}

// Estimate returns the current tracked spur value.
func (n *Notch) Estimate() complex128 { return n.estimate }
