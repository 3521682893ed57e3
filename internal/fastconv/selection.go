package fastconv

import "math/cmplx"

// wrapMod folds i into [0, n).
func wrapMod(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// signedIndex converts an FFT array index j (0 <= j < total) into the
// signed frequency index FFT order implies: 0..total/2 are themselves,
// total/2+1..total-1 represent negative frequencies -total+j.
func signedIndex(j, total int) int {
	if j <= total/2 {
		return j
	}
	return j - total
}

// selectComplexComplex maps each output bin j (in FFT order) to the
// input bin at the same signed frequency index plus shift, so an
// input tone at bin k, viewed through a filter with shift=k, lands at
// output bin 0 (spec §8's round-trip law). Both spectra are full and
// circular, so every mapping wraps modulo the input's bin count and no
// zero-padding is needed (spec §4.2 "complex input + complex output").
func selectComplexComplex(dst, src, response []complex128, shift int) {
	npOut := len(dst)
	nIn := len(src)
	for j := range dst {
		srcIdx := wrapMod(signedIndex(j, npOut)+shift, nIn)
		dst[j] = src[srcIdx] * response[j]
	}
}

// selectRealComplex reconstructs the two-sided spectrum implied by a
// one-sided (Hermitian) real-input spectrum on the fly: a signed
// source index that falls within the occupied positive range is read
// forward, one that falls within the occupied negative range reads
// the conjugate of the mirrored positive bin, and anything else is
// zero-padded (spec §4.2 "real input + complex output").
func selectRealComplex(dst, src, response []complex128, shift int) {
	npOut := len(dst)
	inputBins := len(src)
	for j := range dst {
		k := signedIndex(j, npOut) + shift
		var v complex128
		switch {
		case k >= 0 && k < inputBins:
			v = src[k]
		case k < 0 && -k < inputBins:
			v = cmplx.Conj(src[-k])
		}
		dst[j] = v * response[j]
	}
}

// selectComplexReal folds a full complex spectrum down to a one-sided
// real-output spectrum by adding each positive bin to the conjugate of
// its negative-frequency mirror (spec §4.2 "complex input + real
// output (rare)").
func selectComplexReal(dst, src, response []complex128, shift int) {
	n := len(src)
	for j := range dst {
		pos := wrapMod(shift+j, n)
		neg := wrapMod(-(shift+j), n)
		v := src[pos] + cmplx.Conj(src[neg])
		dst[j] = v * response[j]
	}
}

// selectRealReal is a direct, non-wrapping copy of the positive half
// of a one-sided spectrum (spec §4.2 "real input + real output").
func selectRealReal(dst, src, response []complex128, shift int) {
	for j := range dst {
		k := shift + j
		var v complex128
		if k >= 0 && k < len(src) {
			v = src[k]
		}
		dst[j] = v * response[j]
	}
}

// BeamWeights holds the per-channel complex weights for the
// beam-forming selection variant (complex input only): real and
// imaginary parts of each input bin are treated as two independent
// antennas and combined as Alpha*Re(bin) + Beta*Im(bin) (spec §4.2).
type BeamWeights struct {
	Alpha, Beta complex128
}

func selectBeamform(dst, src, response []complex128, shift int, w BeamWeights) {
	npOut := len(dst)
	nIn := len(src)
	for j := range dst {
		srcIdx := wrapMod(signedIndex(j, npOut)+shift, nIn)
		b := src[srcIdx]
		v := w.Alpha*complex(real(b), 0) + w.Beta*complex(imag(b), 0)
		dst[j] = v * response[j]
	}
}

// zeroNyquist zeros the bin at Np/2, the Nyquist bin in both one- and
// two-sided layouts (spec §4.2 "Zero the Nyquist bin").
func zeroNyquist(dst []complex128, np int) {
	idx := np / 2
	if idx < len(dst) {
		dst[idx] = 0
	}
}
