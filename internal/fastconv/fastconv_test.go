package fastconv

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdrcore/fastconv/internal/fftcache"
)

func newTestCache() *fftcache.Cache { return fftcache.New("", nil) }

func TestBinsFormula(t *testing.T) {
	for _, tc := range []struct{ l, m int }{{960, 481}, {480, 241}, {1, 1}, {100, 1}} {
		n := tc.l + tc.m - 1

		complexF, err := NewInputFilter(InputFilterConfig{Real: false, L: tc.l, M: tc.m, Cache: newTestCache()})
		require.NoError(t, err)
		require.Equal(t, n, complexF.Bins())

		realF, err := NewInputFilter(InputFilterConfig{Real: true, L: tc.l, M: tc.m, Cache: newTestCache()})
		require.NoError(t, err)
		require.Equal(t, n/2+1, realF.Bins())
	}
}

func TestOutputFilterCreationInvariant(t *testing.T) {
	in, err := NewInputFilter(InputFilterConfig{Real: false, L: 960, M: 481, Cache: newTestCache()})
	require.NoError(t, err)

	// N = 1440, L = 960; L' = 480 gives N' = 1440*480/960 = 720, an
	// exact ratio, so creation must succeed.
	out, err := NewOutputFilter(OutputFilterConfig{Input: in, Lp: 480, Complex: true, Cache: newTestCache()})
	require.NoError(t, err)
	require.Equal(t, 720, out.Np)

	// L'=7 does not divide N*L'=10080 by L=960 exactly.
	_, err = NewOutputFilter(OutputFilterConfig{Input: in, Lp: 7, Complex: true, Cache: newTestCache()})
	require.Error(t, err)
}

func TestShiftZeroReturnsLpSamples(t *testing.T) {
	in, err := NewInputFilter(InputFilterConfig{Real: false, L: 64, M: 33, Cache: newTestCache(), Workers: 0})
	require.NoError(t, err)
	out, err := NewOutputFilter(OutputFilterConfig{Input: in, Lp: 64, Complex: true, Cache: newTestCache()})
	require.NoError(t, err)
	require.Equal(t, in.N_(), out.Np)

	samples := make([]complex128, in.L_())
	for i := range samples {
		samples[i] = complex(math.Sin(float64(i)), 0)
	}
	require.NoError(t, in.ExecuteInput(samples))

	result, err := out.ExecuteOutput(0, 0, 1000)
	require.NoError(t, err)
	require.Len(t, result, out.Lp)
}

func TestToneRoundTripAllPass(t *testing.T) {
	const l, m = 256, 129
	in, err := NewInputFilter(InputFilterConfig{Real: false, L: l, M: m, Cache: newTestCache()})
	require.NoError(t, err)
	out, err := NewOutputFilter(OutputFilterConfig{Input: in, Lp: l, Complex: true, Cache: newTestCache()})
	require.NoError(t, err)

	const bin = 5
	n := in.N_()
	var last []complex128
	for block := 0; block < 6; block++ {
		samples := make([]complex128, l)
		for i := range samples {
			t := float64(block*l + i)
			phase := 2 * math.Pi * float64(bin) * t / float64(n)
			samples[i] = cmplx.Exp(complex(0, phase))
		}
		require.NoError(t, in.ExecuteInput(samples))
		last, err = out.ExecuteOutput(bin, 0, 1000)
		require.NoError(t, err)
	}

	var power float64
	for _, v := range last {
		power += real(v)*real(v) + imag(v)*imag(v)
	}
	power /= float64(len(last))
	require.InDelta(t, 1.0, power, 0.2)
}

func TestSelectionBoundsNeverEscapeZeroedTails(t *testing.T) {
	src := make([]complex128, 50)
	for i := range src {
		src[i] = complex(float64(i+1), 0)
	}
	response := make([]complex128, 20)
	for i := range response {
		response[i] = 1
	}
	for _, shift := range []int{-1000, -50, 0, 25, 1000} {
		dst := make([]complex128, 20)
		selectComplexComplex(dst, src, response, shift)
		require.Len(t, dst, 20)
		dst2 := make([]complex128, 20)
		selectRealComplex(dst2, src, response, shift)
		require.Len(t, dst2, 20)
	}
}

func TestShiftExceedingOccupiedRangeZerosOneSidedOutput(t *testing.T) {
	src := make([]complex128, 10)
	for i := range src {
		src[i] = complex(1, 0)
	}
	response := make([]complex128, 6)
	for i := range response {
		response[i] = 1
	}
	dst := make([]complex128, 6)
	selectRealReal(dst, src, response, 1000)
	for _, v := range dst {
		require.Equal(t, complex(0, 0), v)
	}
}

func TestBlockRotationCyclesToUnityOverVBlocks(t *testing.T) {
	const v = 4
	tuner := NewFineTuner(v)
	shift := 1 // shift mod v != 0
	var product complex128 = 1
	for i := 0; i < v; i++ {
		before := tuner.osc.Phasor()
		tuner.Retune(shift, 0, 1000)
		after := tuner.osc.Phasor()
		if before != 0 {
			product *= after / before
		} else {
			product *= after
		}
	}
	require.InDelta(t, 1.0, cmplx.Abs(product), 1e-6)
}
