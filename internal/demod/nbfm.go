package demod

import (
	"math"
	"math/cmplx"

	"github.com/sdrcore/fastconv/internal/iir"
)

// NBFMConfig configures the narrowband FM demodulator (spec §4.7).
type NBFMConfig struct {
	DevMaxHz     float64 // peak deviation, default 5000
	BandwidthHz  float64 // modulation bandwidth, default 3000
	MinIF, MaxIF float64

	SquelchOpenDB, SquelchCloseDB float64
	SquelchTailBlocks            int

	ThresholdExtension bool

	PLToneHz              float64 // 0 disables PL-tone squelch
	ExperimentalToneRatio bool    // spec §9 open question: gated, off by default

	DeEmphasisTCs float64 // seconds; 0 disables
	DCBlockTCs    float64

	N0 float64 // noise-density estimate; fixed at construction, nothing in this module updates it
}

// NBFM implements spec §4.7.
type NBFM struct {
	cfg NBFMConfig

	lastSample complex128
	haveLast   bool

	squelchState int // 0 = fully closed/no output, 1-3 = tail fade, open state holds at tail+4

	tone          *iir.Goertzel
	toneLPF       *iir.OnePole
	toneWindowLen int
	toneLPFEnergy float64
	toneMuted     bool

	deEmph *iir.OnePole
	dc     *iir.DCBlock
}

// NewNBFM builds an NBFM demodulator at the given channel sample rate.
func NewNBFM(cfg NBFMConfig, sampleRate float64) *NBFM {
	if cfg.DevMaxHz == 0 {
		cfg.DevMaxHz = 5000
	}
	if cfg.BandwidthHz == 0 {
		cfg.BandwidthHz = 3000
	}
	n := &NBFM{cfg: cfg}
	if cfg.DeEmphasisTCs > 0 {
		n.deEmph = iir.NewOnePoleFromTimeConstant(cfg.DeEmphasisTCs, sampleRate)
	}
	if cfg.DCBlockTCs > 0 {
		n.dc = iir.NewDCBlock(cfg.DCBlockTCs, sampleRate)
	}
	if cfg.PLToneHz > 0 {
		n.tone = iir.NewGoertzel(cfg.PLToneHz, sampleRate)
		n.toneLPF = iir.NewOnePoleFromTimeConstant(1/(2*math.Pi*300), sampleRate) // 300 Hz lowpass
		n.toneWindowLen = int(0.240 * sampleRate)                                // spec §4.7: 240 ms, just under 250 ms CTCSS
		n.toneMuted = true                                                       // muted until the first full window evaluates
	}
	return n
}

func (n *NBFM) Kind() Kind { return KindNBFM }

func (n *NBFM) Process(baseband []complex128, sampleRate float64) Frame {
	if len(baseband) == 0 {
		return Frame{Mute: true}
	}

	var bbPower float64
	deviated := make([]float64, len(baseband))
	clampRad := n.cfg.DevMaxHz / sampleRate * math.Pi

	for i, z := range baseband {
		bbPower += real(z)*real(z) + imag(z)*imag(z)
		prev := n.lastSample
		if !n.haveLast {
			prev = z
			n.haveLast = true
		}
		dphi := cmplx.Phase(z*cmplx.Conj(prev)) / math.Pi // wrapped to +-1

		if n.cfg.ThresholdExtension {
			rad := dphi * math.Pi
			if rad > clampRad {
				rad = clampRad
			} else if rad < -clampRad {
				rad = -clampRad
			}
			mag2 := real(z)*real(z) + imag(z)*imag(z)
			weight := mag2 / (mag2 + 0.5*n.cfg.N0*n.cfg.BandwidthHz)
			dphi = (rad / math.Pi) * weight
		}

		deviated[i] = dphi
		n.lastSample = z
	}
	bbPower /= float64(len(baseband))

	snr := bbPower/(n.cfg.N0*n.cfg.BandwidthHz) - 1
	open := 10*math.Log10(math.Max(snr, 1e-20)) >= n.cfg.SquelchOpenDB
	n.advanceSquelch(open)

	for i, d := range deviated {
		s := d
		if n.deEmph != nil {
			s = n.deEmph.Step(s)
		}
		if n.dc != nil {
			s = n.dc.Step(s)
		}
		deviated[i] = s
	}

	if n.tone != nil {
		n.updateToneDetector(deviated)
	}

	outputGain := 2 * sampleRate / math.Max(n.cfg.MaxIF-n.cfg.MinIF, 1)

	mute := n.squelchState == 0 || n.toneMuted
	var pcm []int16
	switch {
	case n.squelchState == 0:
		pcm = nil
	case n.squelchState <= 3:
		// States 1-3: exactly one block of zeroes (tail fade), per
		// spec §4.7.
		pcm = make([]int16, len(deviated))
	default:
		if !mute {
			pcm = pcmFromReal(deviated, outputGain)
		}
	}

	return Frame{PCM: pcm, Channels: 1, Mute: mute || pcm == nil, PowerDB: 10 * math.Log10(math.Max(bbPower, 1e-20))}
}

// advanceSquelch implements the hysteresis countdown of spec §4.7:
// "Hysteresis with a countdown: open state holds at squelch_tail + 4
// blocks, decrements to 0."
func (n *NBFM) advanceSquelch(open bool) {
	if open {
		n.squelchState = n.cfg.SquelchTailBlocks + 4
		return
	}
	if n.squelchState > 0 {
		n.squelchState--
	}
}

// updateToneDetector accumulates the Goertzel tone detector and a 300
// Hz lowpass across blocks until a full 240 ms window has landed, then
// compares their energies to decide PL-tone presence (spec §4.7).
func (n *NBFM) updateToneDetector(baseband []float64) {
	for _, s := range baseband {
		n.tone.Add(s)
		f := n.toneLPF.Step(s)
		n.toneLPFEnergy += f * f

		if n.tone.Count() >= n.toneWindowLen {
			n.toneMuted = n.tone.Energy() <= n.toneLPFEnergy
			n.tone.Reset()
			n.toneLPFEnergy = 0
		}
	}
}
