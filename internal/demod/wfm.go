package demod

import (
	"math"
	"math/cmplx"

	"github.com/sdrcore/fastconv/internal/iir"
)

// WFMConfig configures the broadcast wideband FM demodulator (spec
// §4.8). The channel down-convert loop calls Process, which passes no
// pilot or subcarrier and so decodes mono only; the stereo decode,
// matrixing and de-emphasis run in ProcessComposite when a caller
// supplies the pilot and subcarrier baseband blocks. Nothing in this
// module builds those two filters.
type WFMConfig struct {
	DeEmphasisTCs  float64 // seconds, broadcast FM standard is 75us (US) or 50us (EU)
	Gain           float64
	PilotThreshold float64 // mean-squared pilot amplitude, default 1e-6
}

// WFM implements spec §4.8.
type WFM struct {
	cfg WFMConfig

	monoDeEmph *iir.OnePole
	leftDeEmph *iir.OnePole
	rightDeEmph *iir.OnePole

	monoDisc fmDiscriminator
	diffDisc fmDiscriminator

	stereo bool
}

// NewWFM builds a wideband FM demodulator. sampleRate is the mono
// channel's output rate (48 kHz per spec §4.8).
func NewWFM(cfg WFMConfig, sampleRate float64) *WFM {
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	if cfg.PilotThreshold == 0 {
		cfg.PilotThreshold = 1e-6
	}
	if cfg.DeEmphasisTCs == 0 {
		cfg.DeEmphasisTCs = 75e-6
	}
	w := &WFM{cfg: cfg, stereo: true}
	w.monoDeEmph = iir.NewOnePoleFromTimeConstant(cfg.DeEmphasisTCs, sampleRate)
	w.leftDeEmph = iir.NewOnePoleFromTimeConstant(cfg.DeEmphasisTCs, sampleRate)
	w.rightDeEmph = iir.NewOnePoleFromTimeConstant(cfg.DeEmphasisTCs, sampleRate)
	return w
}

func (w *WFM) Kind() Kind { return KindWFM }

// Process satisfies the Demodulator interface for callers that only
// have a single baseband stream (e.g. generic test harnesses); it
// treats baseband as mono-only composite with no pilot or subcarrier.
func (w *WFM) Process(baseband []complex128, sampleRate float64) Frame {
	return w.ProcessComposite(baseband, nil, nil, sampleRate)
}

// ProcessComposite runs the full stereo decode of spec §4.8: FM-
// demodulates mono and subcarrier, squares the pilot to derive a 38
// kHz reference, mixes the subcarrier down to baseband L−R, matrixes
// into L/R, de-emphasizes each channel and applies gain.
func (w *WFM) ProcessComposite(mono, pilot, subcarrier []complex128, sampleRate float64) Frame {
	if len(mono) == 0 {
		return Frame{Mute: true}
	}

	monoAudio := w.monoDisc.discriminate(mono)

	pilotPresent := w.pilotDetected(pilot)
	w.stereo = pilotPresent

	if !pilotPresent || len(pilot) == 0 || len(subcarrier) == 0 {
		for i, s := range monoAudio {
			monoAudio[i] = w.monoDeEmph.Step(s)
		}
		return Frame{PCM: pcmFromReal(monoAudio, w.cfg.Gain), Channels: 1, PowerDB: powerDBOfReal(monoAudio)}
	}

	// Stereo decode: double the pilot's phase (19 -> 38 kHz) by
	// squaring and normalizing, then demodulate the subcarrier coherently
	// against that reference (spec §4.8 "square the pilot phasor...
	// multiply by conjugate into the L-R channel").
	n := len(subcarrier)
	if len(pilot) < n {
		n = len(pilot)
	}
	lrDiff := make([]complex128, n)
	for i := 0; i < n; i++ {
		ref := pilot[i] * pilot[i]
		mag := cmplx.Abs(ref)
		if mag > 1e-20 {
			ref /= complex(mag, 0)
		}
		lrDiff[i] = subcarrier[i] * cmplx.Conj(ref)
	}

	diffAudio := w.diffDisc.discriminate(lrDiff)

	m := len(monoAudio)
	if len(diffAudio) < m {
		m = len(diffAudio)
	}
	left := make([]float64, m)
	right := make([]float64, m)
	for i := 0; i < m; i++ {
		left[i] = w.leftDeEmph.Step(monoAudio[i] + diffAudio[i])
		right[i] = w.rightDeEmph.Step(monoAudio[i] - diffAudio[i])
	}

	return Frame{
		PCM:      pcmFromStereo(left, right, w.cfg.Gain),
		Channels: 2,
		PowerDB:  powerDBOfReal(monoAudio),
	}
}

// pilotDetected implements spec §4.8's "mean squared pilot amplitude >
// epsilon" test.
func (w *WFM) pilotDetected(pilot []complex128) bool {
	if len(pilot) == 0 {
		return false
	}
	var sum float64
	for _, z := range pilot {
		m := cmplx.Abs(z)
		sum += m * m
	}
	return sum/float64(len(pilot)) > w.cfg.PilotThreshold
}

// Stereo reports whether the most recent block was decoded as stereo.
func (w *WFM) Stereo() bool { return w.stereo }

// fmDiscriminator runs the same phase-difference discriminator as
// NBFM (spec §4.7's math, reused for the mono and L-R channels of
// spec §4.8), carrying its previous sample across calls the same way
// NBFM's lastSample/haveLast do, so the first sample of a new block is
// measured against the last sample of the previous one instead of
// against itself.
type fmDiscriminator struct {
	last complex128
	have bool
}

func (d *fmDiscriminator) discriminate(z []complex128) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		prev := d.last
		if !d.have {
			prev = v
			d.have = true
		}
		out[i] = cmplx.Phase(v*cmplx.Conj(prev)) / math.Pi
		d.last = v
	}
	return out
}

func powerDBOfReal(s []float64) float64 {
	var p float64
	for _, v := range s {
		p += v * v
	}
	if len(s) > 0 {
		p /= float64(len(s))
	}
	return 10 * math.Log10(math.Max(p, 1e-20))
}
