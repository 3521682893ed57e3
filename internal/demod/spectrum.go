package demod

import (
	"math"
	"math/cmplx"

	"github.com/sdrcore/fastconv/internal/fftcache"
	"github.com/sdrcore/fastconv/internal/winfilter"
)

// SpectrumConfig configures the pseudo-demodulator of spec §4.9. Mode
// selection compares the requested per-bin bandwidth to Crossover
// (default 5 kHz): coarse bins use wide-bin (direct master-bin
// summing), fine bins use the synthesized-channel windowed-FFT path.
type SpectrumConfig struct {
	CrossoverHz float64 // default 5000

	// Fine-bin mode only.
	FFTLen     int // length of the second, windowed complex FFT
	KaiserBeta float64
	Alpha      float64 // exponential averaging factor, default 0.5
	Cache      *fftcache.Cache
	Level      fftcache.Level
}

// Spectrum implements spec §4.9. Wide-bin mode is driven through
// SumMasterBins, which reads an input filter's published snapshot
// directly with no channel output filter or IFFT involved; fine-bin
// mode is driven through Process, which treats its baseband argument
// as the synthesized channel's complex output samples.
type Spectrum struct {
	cfg SpectrumConfig

	fftLen     int
	window     []float64
	hopLen     int // 50% overlap: fftLen/2
	pending    []complex128
	pendingLen int
	avg        []float64
	primed     bool
}

// NewSpectrum builds a spectrum pseudo-demodulator from cfg. A zero
// cfg.CrossoverHz defaults to 5000 Hz.
func NewSpectrum(cfg SpectrumConfig) *Spectrum {
	if cfg.CrossoverHz == 0 {
		cfg.CrossoverHz = 5000
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = 0.5
	}
	if cfg.KaiserBeta == 0 {
		cfg.KaiserBeta = 5
	}
	s := &Spectrum{cfg: cfg}
	if cfg.FFTLen > 0 {
		s.fftLen = cfg.FFTLen
		s.hopLen = cfg.FFTLen / 2
		s.window = make([]float64, cfg.FFTLen)
		winfilter.Kaiser(s.window, cfg.KaiserBeta)
		normalizeUnityGain(s.window)
		s.pending = make([]complex128, 0, cfg.FFTLen)
		s.avg = make([]float64, cfg.FFTLen)
	}
	return s
}

func (s *Spectrum) Kind() Kind { return KindSpectrum }

// UseWideBin reports whether a channel configured with the given
// per-bin bandwidth should use wide-bin (direct summing) mode rather
// than fine-bin (synthesized-channel FFT) mode.
func (s *Spectrum) UseWideBin(requestedBinBWHz float64) bool {
	return requestedBinBWHz >= s.cfg.CrossoverHz
}

// SumMasterBins implements wide-bin mode: each output bin is the sum
// of binsPerBin adjacent master bins, with non-integer ratios handled
// by assigning each master bin fractionally based on its centre. real
// and n describe the master FFT's layout (complex or real-input
// upright/inverted is handled identically here since masterBins is
// always presented as the forward-FFT's complex output in natural
// order — the caller is responsible for conjugate-folding an inverted
// real layout before calling, matching fastconv's selection helpers).
func SumMasterBins(masterBins []complex128, real bool, n int, startBin float64, binsPerBin float64, outLen int) []float64 {
	out := make([]float64, outLen)
	scale := 1.0 / float64(n) / float64(n)
	if real {
		scale *= 2
	}
	for j := 0; j < outLen; j++ {
		lo := startBin + float64(j)*binsPerBin
		hi := lo + binsPerBin
		out[j] = sumFractionalRange(masterBins, lo, hi) * scale
	}
	return out
}

// sumFractionalRange sums |bin|^2 over [lo,hi), weighting the
// boundary bins by the fraction of their width actually covered.
func sumFractionalRange(bins []complex128, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	n := len(bins)
	loIdx := int(math.Floor(lo))
	hiIdx := int(math.Floor(hi))

	var sum float64
	for idx := loIdx; idx <= hiIdx; idx++ {
		weight := 1.0
		switch {
		case idx == loIdx && idx == hiIdx:
			weight = hi - lo
		case idx == loIdx:
			weight = float64(idx+1) - lo
		case idx == hiIdx:
			weight = hi - float64(idx)
		}
		if weight <= 0 || idx < 0 || idx >= n {
			continue
		}
		m := cmplx.Abs(bins[idx])
		sum += weight * m * m
	}
	return sum
}

// Process implements fine-bin mode: accumulates the synthesized
// channel's baseband into two 50%-overlapping windows sharing one
// plan, runs the windowed complex FFT once a window fills, and
// exponentially averages the magnitude-squared result into the
// running bin array (spec §4.9 "exponentially averaged ... with
// alpha=0.5").
func (s *Spectrum) Process(baseband []complex128, sampleRate float64) Frame {
	if s.fftLen == 0 {
		return Frame{Mute: true}
	}
	s.pending = append(s.pending, baseband...)

	for len(s.pending) >= s.fftLen {
		block := make([]complex128, s.fftLen)
		copy(block, s.pending[:s.fftLen])
		for i := range block {
			block[i] *= complex(s.window[i], 0)
		}

		plan := s.cfg.Cache.ComplexForward(s.fftLen, s.cfg.Level)
		bins := make([]complex128, s.fftLen)
		plan.Coefficients(bins, block)

		for i, b := range bins {
			mag2 := real(b)*real(b) + imag(b)*imag(b)
			if !s.primed {
				s.avg[i] = mag2
			} else {
				s.avg[i] += s.cfg.Alpha * (mag2 - s.avg[i])
			}
		}
		s.primed = true

		// Advance by the hop, retaining the overlap tail for the next
		// window.
		s.pending = s.pending[s.hopLen:]
	}

	return Frame{Mute: true, PowerDB: s.totalPowerDB()}
}

// Bins returns the current exponentially-averaged magnitude-squared
// spectrum, valid after at least one window has landed.
func (s *Spectrum) Bins() []float64 { return s.avg }

func (s *Spectrum) totalPowerDB() float64 {
	var sum float64
	for _, v := range s.avg {
		sum += v
	}
	return 10 * math.Log10(math.Max(sum, 1e-20))
}

// normalizeUnityGain scales window so its samples sum to its own
// length, i.e. unity average gain — spec §4.9 "normalized to unit
// gain" for the fine-bin Kaiser window.
func normalizeUnityGain(window []float64) {
	var sum float64
	for _, v := range window {
		sum += v
	}
	if sum == 0 {
		return
	}
	scale := float64(len(window)) / sum
	for i := range window {
		window[i] *= scale
	}
}
