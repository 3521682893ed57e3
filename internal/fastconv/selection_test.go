package fastconv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func flatResponse(n int) []complex128 {
	r := make([]complex128, n)
	for i := range r {
		r[i] = 1
	}
	return r
}

func TestShiftZeroEqualsElementwiseProduct(t *testing.T) {
	src := make([]complex128, 16)
	for i := range src {
		src[i] = complex(float64(i+1), float64(-i))
	}
	response := make([]complex128, 16)
	for i := range response {
		response[i] = complex(0, float64(i+1))
	}
	dst := make([]complex128, 16)
	selectComplexComplex(dst, src, response, 0)
	for i := range dst {
		require.Equal(t, src[i]*response[i], dst[i])
	}
}

func TestToneAtBinKMapsToOutputBinZero(t *testing.T) {
	const nIn, nOut = 32, 16
	src := make([]complex128, nIn)
	const k = 7
	src[k] = complex(3, 4)

	dst := make([]complex128, nOut)
	selectComplexComplex(dst, src, flatResponse(nOut), k)
	require.Equal(t, src[k], dst[0])
	for j := 1; j < nOut; j++ {
		require.Equal(t, complex(0, 0), dst[j])
	}
}

func TestOutOfRangeShiftZerosOneSidedOutput(t *testing.T) {
	src := make([]complex128, 10)
	for i := range src {
		src[i] = complex(1, 0)
	}
	dst := make([]complex128, 6)
	selectRealReal(dst, src, flatResponse(6), 1000)
	for _, v := range dst {
		require.Equal(t, complex(0, 0), v)
	}
}

func TestBinSelectionNeverReadsOutOfBounds(t *testing.T) {
	src := make([]complex128, 50)
	response := flatResponse(20)
	for _, shift := range []int{-10_000, -50, 0, 25, 10_000} {
		dst := make([]complex128, 20)
		require.NotPanics(t, func() { selectComplexComplex(dst, src, response, shift) })
		require.NotPanics(t, func() { selectRealComplex(dst, src, response, shift) })
		require.NotPanics(t, func() { selectComplexReal(dst, src, response, shift) })
		require.NotPanics(t, func() { selectRealReal(dst, src, response, shift) })
	}
}

// TestSelectComplexRealFoldsSingleBinAtNonzeroShift places one nonzero
// input bin and hand-derives (independent of selection.go's own
// formula) which two output bins should carry it: the ground truth
// (original_source/filter.c's complex-input/real-output branch) reads
// the positive contribution from src[shift+j] and the conjugate
// mirror from src[-(shift+j)], both modulo n. A single bin at index 5
// with shift=1 and n=16 then lands at dst[4] (direct) and dst[10]
// (conjugated), and nowhere else.
func TestSelectComplexRealFoldsSingleBinAtNonzeroShift(t *testing.T) {
	const n = 16
	const shift = 1
	src := make([]complex128, n)
	src[5] = complex(2, 3)
	response := flatResponse(n)

	dst := make([]complex128, n)
	selectComplexReal(dst, src, response, shift)

	for j, v := range dst {
		switch j {
		case 4:
			require.Equal(t, complex(2, 3), v)
		case 10:
			require.Equal(t, complex(2, -3), v)
		default:
			require.Equal(t, complex(0, 0), v, "unexpected energy at dst[%d]", j)
		}
	}
}

func TestZeroNyquist(t *testing.T) {
	dst := make([]complex128, 8)
	for i := range dst {
		dst[i] = complex(1, 1)
	}
	zeroNyquist(dst, 8)
	require.Equal(t, complex(0, 0), dst[4])
	require.NotEqual(t, complex(0, 0), dst[3])
}
