package iir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoertzelDetectsTone(t *testing.T) {
	const rate = 8000.0
	const tone = 100.0
	g := NewGoertzel(tone, rate)
	off := NewGoertzel(440.0, rate)

	n := int(rate * 0.24) // 240ms window, matching the PL-tone squelch window of spec §4.7
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * tone * float64(i) / rate)
		g.Add(x)
		off.Add(x)
	}
	require.Greater(t, g.Energy(), off.Energy()*10)
}

func TestOnePoleConverges(t *testing.T) {
	f := NewOnePoleFromTimeConstant(0.01, 8000)
	for i := 0; i < 10000; i++ {
		f.Step(1.0)
	}
	require.InDelta(t, 1.0, f.State(), 1e-3)
}

func TestDCBlockRemovesBias(t *testing.T) {
	d := NewDCBlock(0.01, 8000)
	var last float64
	for i := 0; i < 20000; i++ {
		last = d.Step(5.0 + math.Sin(float64(i)))
	}
	require.InDelta(t, 0.0, last, 1.5)
}

func TestNotchTracksSpur(t *testing.T) {
	n := NewNotch(0.05)
	spur := complex(3, -1)
	var out complex128
	for i := 0; i < 2000; i++ {
		out = n.Update(spur)
	}
	require.InDelta(t, 0, real(out), 1e-3)
	require.InDelta(t, 0, imag(out), 1e-3)
}
