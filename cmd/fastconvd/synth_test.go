package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sdrcore/fastconv/internal/fastconv"
	"github.com/sdrcore/fastconv/internal/fftcache"
	"github.com/sdrcore/fastconv/internal/frontend"
)

func TestSyntheticDriverTuneUpdatesFrequency(t *testing.T) {
	d := newSyntheticDriver(8000, 1000, 0)
	actual, err := d.Tune(2500)
	require.NoError(t, err)
	require.Equal(t, 2500.0, actual)
}

func TestSyntheticDriverGenerateProducesUnitMagnitudeTone(t *testing.T) {
	d := newSyntheticDriver(8000, 1000, 0)
	buf := make([]complex128, 16)
	d.generate(buf, 0)
	for _, z := range buf {
		mag := real(z)*real(z) + imag(z)*imag(z)
		require.InDelta(t, 1.0, mag, 1e-6)
	}
}

func TestSyntheticDriverGenerateAddsNoiseWhenRequested(t *testing.T) {
	d := newSyntheticDriver(8000, 1000, 0.5)
	buf := make([]complex128, 16)
	d.generate(buf, 0)

	quiet := newSyntheticDriver(8000, 1000, 0)
	quietBuf := make([]complex128, 16)
	quiet.generate(quietBuf, 0)

	var differs bool
	for i := range buf {
		if buf[i] != quietBuf[i] {
			differs = true
			break
		}
	}
	require.True(t, differs)
}

func TestFeedLoopDrivesInputFilter(t *testing.T) {
	cache := fftcache.New("", nil)
	const l, m = 64, 33
	in, err := fastconv.NewInputFilter(fastconv.InputFilterConfig{Real: false, L: l, M: m, Cache: cache})
	require.NoError(t, err)

	front := frontend.NewSource(frontend.Snapshot{SampleRateHz: 8000, MinIF: -4000, MaxIF: 4000, Complex: true})
	driver := newSyntheticDriver(8000, 1000, 0.1)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		feedLoop(stop, driver, in, front, time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done
}
