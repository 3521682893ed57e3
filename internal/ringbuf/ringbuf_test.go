package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapRoundTrip(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)
	require.Equal(t, 16, b.Size())

	samples := make([]complex128, 16)
	for i := range samples {
		samples[i] = complex(float64(i), -float64(i))
	}
	b.Put(0, samples)

	got := b.View(0, 16)
	require.Equal(t, samples, got)
}

func TestMirroredViewCrossesBoundary(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)

	samples := make([]complex128, 8)
	for i := range samples {
		samples[i] = complex(float64(i+1), 0)
	}
	b.Put(0, samples)

	// A view starting near the end and running past Size() should
	// read the beginning of the buffer without the caller needing to
	// split the read.
	v := b.View(6, 4)
	require.Equal(t, []complex128{7, 8, 1, 2}, v)
}

func TestWrapNegativeAndOverflow(t *testing.T) {
	b, err := New(10)
	require.NoError(t, err)

	require.Equal(t, 0, b.Wrap(0))
	require.Equal(t, 5, b.Wrap(5))
	require.Equal(t, 5, b.Wrap(15))
	require.Equal(t, 9, b.Wrap(-1))
}

func TestInvalidSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-3)
	require.Error(t, err)
}
