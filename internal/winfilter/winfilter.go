// Package winfilter synthesizes the frequency-domain filter responses
// used by output filters (spec §4.4 "Kaiser-windowed filter-response
// synthesis"). It generalizes the teacher's window()/gen_lowpass()/
// gen_bandpass() family (originally Hamming/Blackman/Cosine/Flattop,
// time-domain FIR taps for an AFSK demodulator) to the Kaiser window
// used directly in the frequency domain by an overlap-save channel
// filter, plus the window-gain normalization and 3 dB real-input
// correction spec §4.9 references.
package winfilter

import "math"

// besselI0 is the zeroth-order modified Bessel function of the first
// kind, needed by the Kaiser window. Series expansion, matching the
// precision original_source/filter.c's i0() achieves with a handful of
// terms for the beta range used here (0..20).
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	halfX := x / 2
	for k := 1; k < 40; k++ {
		term *= (halfX / float64(k)) * (halfX / float64(k))
		sum += term
		if term < sum*1e-16 {
			break
		}
	}
	return sum
}

// KaiserBetaForAttenuation picks a Kaiser beta for a desired stopband
// attenuation in dB, using Kaiser's own empirical formula (the same
// one original_source/filter.c references in its comments):
//
//	beta = 0.1102*(A-8.7)                      A > 50
//	beta = 0.5842*(A-21)^0.4 + 0.07886*(A-21)   21 <= A <= 50
//	beta = 0                                    A < 21
func KaiserBetaForAttenuation(attenuationDB float64) float64 {
	switch {
	case attenuationDB > 50:
		return 0.1102 * (attenuationDB - 8.7)
	case attenuationDB >= 21:
		return 0.5842*math.Pow(attenuationDB-21, 0.4) + 0.07886*(attenuationDB-21)
	default:
		return 0
	}
}

// Kaiser fills window with the Kaiser taper of the given beta, a
// direct generalization of the teacher's window() switch (which only
// covered cosine/Hamming/Blackman/flattop/truncated) to add the Kaiser
// case the filter-response synthesis component needs.
func Kaiser(window []float64, beta float64) {
	m := len(window)
	if m == 1 {
		window[0] = 1
		return
	}
	denom := besselI0(beta)
	center := float64(m-1) / 2
	for n := 0; n < m; n++ {
		p := (float64(n) - center) / center
		window[n] = besselI0(beta*math.Sqrt(1-p*p)) / denom
	}
}

// LowpassSinc synthesizes an unwindowed lowpass sinc kernel of the
// given length, cutoff fc expressed as a fraction of the sample rate
// — the teacher's gen_lowpass() sinc term, kept verbatim in shape,
// generalized to return the raw kernel so the caller applies whichever
// window (here, always Kaiser) it wants.
func LowpassSinc(kernel []float64, fc float64) {
	size := len(kernel)
	center := 0.5 * float64(size-1)
	for j := 0; j < size; j++ {
		d := float64(j) - center
		if d == 0 {
			kernel[j] = 2 * fc
		} else {
			kernel[j] = math.Sin(2*math.Pi*fc*d) / (math.Pi * d)
		}
	}
}

// BandpassSinc synthesizes an unwindowed bandpass sinc kernel between
// f1 and f2 (fractions of sample rate), the teacher's gen_bandpass()
// sinc term.
func BandpassSinc(kernel []float64, f1, f2 float64) {
	size := len(kernel)
	center := 0.5 * float64(size-1)
	for j := 0; j < size; j++ {
		d := float64(j) - center
		if d == 0 {
			kernel[j] = 2 * (f2 - f1)
		} else {
			kernel[j] = math.Sin(2*math.Pi*f2*d)/(math.Pi*d) - math.Sin(2*math.Pi*f1*d)/(math.Pi*d)
		}
	}
}

// NormalizeDC scales kernel for unity gain at DC, the teacher's
// gen_lowpass() normalization step.
func NormalizeDC(kernel []float64) {
	var sum float64
	for _, v := range kernel {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range kernel {
		kernel[i] /= sum
	}
}

// NormalizeBandCenter scales kernel for unity gain in the middle of
// the passband (f1,f2), the teacher's gen_bandpass() normalization —
// can't reuse the DC technique because the passband isn't centered on
// DC.
func NormalizeBandCenter(kernel []float64, f1, f2 float64) {
	size := len(kernel)
	center := 0.5 * float64(size-1)
	w := 2 * math.Pi * (f1 + f2) / 2
	var gain float64
	for j, v := range kernel {
		gain += v * math.Cos((float64(j)-center)*w)
	}
	if gain == 0 {
		return
	}
	for i := range kernel {
		kernel[i] /= gain
	}
}

// RealInputGainCorrection is the 3 dB correction applied when an
// output channel's input is real-valued (one-sided spectrum): spec §8
// "the 3 dB real-input correction" round-trip law, and §4.9's wide-bin
// scale factors (2/N^2 for real input vs 1/N^2 for complex). Returns
// the linear-amplitude multiplier (sqrt(2)) to apply after folding a
// one-sided real spectrum into a complex channel response.
const RealInputGainCorrection = math.Sqrt2
