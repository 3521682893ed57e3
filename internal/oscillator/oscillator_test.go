package oscillator

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRenormalizationInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		freq := rapid.Float64Range(-20000, 20000).Draw(t, "freq")
		rate := rapid.Float64Range(8000, 192000).Draw(t, "rate")
		if rate == 0 {
			t.Skip("zero sample rate")
		}
		o := NewFromFrequency(freq, rate)

		for n := 0; n < RenormRate; n++ {
			o.Step()
		}
		mag := cmplx.Abs(o.Phasor())
		require.InDelta(t, 1.0, mag, 1e-6)
	})
}

func TestStepMatchesExpectedRotation(t *testing.T) {
	o := NewFromFrequency(1000, 48000)
	p1 := o.Step()
	theta := 2 * math.Pi * 1000 / 48000
	require.InDelta(t, math.Cos(theta), real(p1), 1e-9)
	require.InDelta(t, math.Sin(theta), imag(p1), 1e-9)
}

func TestPLLLocksOntoStaticPhaseError(t *testing.T) {
	pll := NewPLL(8000, 50, DefaultDamping)
	for i := 0; i < 20000; i++ {
		pll.Run(0.01)
	}
	require.Greater(t, pll.Frequency(), 0.0)
}
