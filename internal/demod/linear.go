package demod

import (
	"math"
	"math/cmplx"

	"github.com/sdrcore/fastconv/internal/iir"
	"github.com/sdrcore/fastconv/internal/oscillator"
)

// LinearMode selects the output mode of the linear demodulator (spec
// §4.6 "Supports: IQ (stereo), SSB (I only), envelope AM, coherent AM
// and DSB/PSK via PLL").
type LinearMode int

const (
	ModeSSB LinearMode = iota
	ModeEnvelope
	ModeIQ
	ModeCoherentAM
	ModeSquaredPLL // BPSK/DSB: phase detector uses arg(z^2)
)

// LinearConfig configures one linear demodulator instance.
type LinearConfig struct {
	Mode LinearMode

	PLLEnable  bool
	LoopBWHz   float64
	Damping    float64
	LockTimeS  float64
	SquelchOpenDB, SquelchCloseDB float64
	SquelchEnable bool

	AGCEnable     bool
	Headroom      float64 // linear, default 1
	HangTimeS     float64
	RecoveryDBPerS float64
	ThresholdDB   float64

	DCBlockTCs float64 // envelope-mode DC removal time constant, seconds; 0 disables
	Gain       float64
}

// Linear implements spec §4.6.
type Linear struct {
	cfg LinearConfig

	pll        *oscillator.PLL
	lockCounter int
	locked     bool
	cycleSlipsAtLock int

	agcGain    float64
	hangBlocks int

	dc *iir.DCBlock
}

// NewLinear builds a linear demodulator at the given channel sample
// rate.
func NewLinear(cfg LinearConfig, sampleRate float64) *Linear {
	if cfg.Headroom == 0 {
		cfg.Headroom = 1
	}
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	if cfg.Damping == 0 {
		cfg.Damping = oscillator.DefaultDamping
	}
	l := &Linear{cfg: cfg, agcGain: 1}
	if cfg.PLLEnable {
		l.pll = oscillator.NewPLL(sampleRate, cfg.LoopBWHz, cfg.Damping)
	}
	if cfg.DCBlockTCs > 0 {
		l.dc = iir.NewDCBlock(cfg.DCBlockTCs, sampleRate)
	}
	return l
}

func (l *Linear) Kind() Kind { return KindLinear }

// Process runs the PLL (if enabled), AGC, and output-mode math over
// one block of complex baseband.
func (l *Linear) Process(baseband []complex128, sampleRate float64) Frame {
	n := len(baseband)
	if n == 0 {
		return Frame{Mute: true}
	}

	var snrAccum float64
	out := make([]complex128, n)
	for i, z := range baseband {
		if l.cfg.PLLEnable {
			phaseErr := cmplx.Phase(z)
			if l.cfg.Mode == ModeSquaredPLL {
				phaseErr = cmplx.Phase(z * z)
			}
			l.pll.Run(phaseErr)
			corr := l.pll.Phasor()
			z *= cmplx.Conj(corr)
			snrAccum += real(z)*real(z) - imag(z)*imag(z)
		}
		out[i] = z
	}

	var bbPower float64
	for _, z := range out {
		bbPower += real(z)*real(z) + imag(z)*imag(z)
	}
	bbPower /= float64(n)
	powerDB := 10 * math.Log10(math.Max(bbPower, 1e-20))

	if l.cfg.PLLEnable {
		l.updateLock(snrAccum/float64(n), sampleRate, n)
	}

	l.runAGC(out, sampleRate)

	samples, channels := l.renderOutput(out)

	mute := bbPower == 0 || (l.cfg.SquelchEnable && !l.squelchOpen(powerDB))
	return Frame{
		PCM:      pcmFromSamples(samples, channels, l.cfg.Gain),
		Channels: channels,
		Mute:     mute,
		PowerDB:  powerDB,
	}
}

func (l *Linear) squelchOpen(powerDB float64) bool {
	if l.cfg.PLLEnable {
		return l.locked
	}
	return powerDB >= l.cfg.SquelchOpenDB
}

func (l *Linear) updateLock(snr float64, sampleRate float64, blockLen int) {
	blockTime := float64(blockLen) / sampleRate
	snrDB := 10 * math.Log10(math.Max(snr, 1e-20))
	if snrDB >= l.cfg.SquelchOpenDB {
		l.lockCounter++
		if float64(l.lockCounter)*blockTime >= l.cfg.LockTimeS {
			l.locked = true
		}
	} else if snrDB < l.cfg.SquelchCloseDB {
		l.lockCounter = 0
		l.locked = false
	}
}

// runAGC implements spec §4.6's AGC state machine: an instantaneous
// peak-limiting branch, an exponential gain-reduction branch with a
// hang timer, and an exponential recovery branch.
func (l *Linear) runAGC(samples []complex128, sampleRate float64) {
	if !l.cfg.AGCEnable || len(samples) == 0 {
		return
	}
	n := len(samples)

	var peak, rms float64
	sub := int(0.002 * sampleRate) // 2 ms sub-slices
	if sub < 1 {
		sub = 1
	}
	for start := 0; start < n; start += sub {
		end := start + sub
		if end > n {
			end = n
		}
		var slicePeak float64
		for _, z := range samples[start:end] {
			m := cmplx.Abs(z)
			if m > slicePeak {
				slicePeak = m
			}
			rms += m * m
		}
		if slicePeak > peak {
			peak = slicePeak
		}
	}
	rms = math.Sqrt(rms / float64(n))

	old := l.agcGain
	target := old
	instant := false
	limit := math.Sqrt2 * l.cfg.Headroom
	switch {
	case peak*old > limit:
		target = limit / math.Max(peak, 1e-20)
		l.hangBlocks = int(0.080 * sampleRate / float64(n))
		instant = true
	case rms*old > l.cfg.Headroom:
		target = l.cfg.Headroom / math.Max(rms, 1e-20)
		l.hangBlocks = int(l.cfg.HangTimeS * sampleRate / float64(n))
	case rms*old > l.cfg.ThresholdDB*l.cfg.Headroom && l.cfg.ThresholdDB > 0:
		target = l.cfg.ThresholdDB * l.cfg.Headroom / math.Max(rms, 1e-20)
	case l.hangBlocks > 0:
		l.hangBlocks--
	default:
		target = old * math.Pow(10, l.cfg.RecoveryDBPerS/20*float64(n)/sampleRate)
	}

	if instant {
		old = target
	}
	l.agcGain = applyGainRamp(samples, old, target)
}

// applyGainRamp multiplies each sample by a per-sample gain that steps
// geometrically from old to target across the block (spec §4.6:
// "appl[ied] exponentially over the block, per-sample gain =
// (new/old)^(1/N)"), so the cumulative gain after N samples is exactly
// target rather than jumping there at the block boundary. Returns
// target, the gain state to carry into the next block.
func applyGainRamp(samples []complex128, old, target float64) float64 {
	if old <= 0 {
		old = 1e-20
	}
	step := math.Pow(target/old, 1/float64(len(samples)))
	gain := old
	for i := range samples {
		gain *= step
		samples[i] *= complex(gain, 0)
	}
	return target
}

func (l *Linear) renderOutput(z []complex128) (samples [][2]float64, channels int) {
	switch l.cfg.Mode {
	case ModeIQ:
		out := make([][2]float64, len(z))
		for i, v := range z {
			out[i] = [2]float64{real(v), imag(v)}
		}
		return out, 2
	case ModeEnvelope:
		out := make([][2]float64, len(z))
		for i, v := range z {
			s := cmplx.Abs(v) / math.Sqrt2
			if l.cfg.DCBlockTCs > 0 {
				s = l.dc.Step(s)
			}
			out[i] = [2]float64{s, 0}
		}
		return out, 1
	default: // SSB, coherent AM, squared-PLL: real part
		out := make([][2]float64, len(z))
		for i, v := range z {
			out[i] = [2]float64{real(v), 0}
		}
		return out, 1
	}
}

func pcmFromSamples(samples [][2]float64, channels int, gain float64) []int16 {
	if channels == 2 {
		l := make([]float64, len(samples))
		r := make([]float64, len(samples))
		for i, s := range samples {
			l[i], r[i] = s[0], s[1]
		}
		return pcmFromStereo(l, r, gain)
	}
	mono := make([]float64, len(samples))
	for i, s := range samples {
		mono[i] = s[0]
	}
	return pcmFromReal(mono, gain)
}
