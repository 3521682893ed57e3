package demod

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSampleRate = 8000.0

func toneBlock(freqHz float64, n int, amp float64) []complex128 {
	out := make([]complex128, n)
	for i := range out {
		theta := 2 * math.Pi * freqHz * float64(i) / testSampleRate
		out[i] = complex(amp*math.Cos(theta), amp*math.Sin(theta))
	}
	return out
}

func TestLinearIQModePassesBasebandThrough(t *testing.T) {
	l := NewLinear(LinearConfig{Mode: ModeIQ, Gain: 1}, testSampleRate)
	baseband := toneBlock(0, 256, 0.5)
	frame := l.Process(baseband, testSampleRate)
	require.Equal(t, 2, frame.Channels)
	require.False(t, frame.Mute)
	require.Len(t, frame.PCM, 2*256)
}

func TestLinearPLLLocksOnSteadyCarrierWithinLockTime(t *testing.T) {
	cfg := LinearConfig{
		Mode:          ModeCoherentAM,
		PLLEnable:     true,
		LoopBWHz:      50,
		LockTimeS:     0.05,
		SquelchOpenDB: -10,
		SquelchCloseDB: -20,
	}
	l := NewLinear(cfg, testSampleRate)

	// Feed several blocks of a steady carrier at the loop's center
	// frequency (0 Hz baseband) until the lock-time hysteresis trips.
	for i := 0; i < 20; i++ {
		baseband := toneBlock(0, 400, 1.0)
		l.Process(baseband, testSampleRate)
	}
	require.True(t, l.locked, "PLL should lock onto a steady in-band carrier")
}

func TestLinearPLLUnlocksWhenCarrierDisappears(t *testing.T) {
	cfg := LinearConfig{
		Mode:          ModeCoherentAM,
		PLLEnable:     true,
		LoopBWHz:      50,
		LockTimeS:     0.02,
		SquelchOpenDB: -10,
		SquelchCloseDB: -20,
	}
	l := NewLinear(cfg, testSampleRate)
	for i := 0; i < 10; i++ {
		l.Process(toneBlock(0, 400, 1.0), testSampleRate)
	}
	require.True(t, l.locked)

	// Replace the carrier with silence; SNR collapses below SquelchCloseDB.
	silence := make([]complex128, 400)
	for i := 0; i < 10; i++ {
		l.Process(silence, testSampleRate)
	}
	require.False(t, l.locked, "PLL should drop lock once the carrier vanishes")
}

func TestLinearAGCReducesGainOnLoudBlockAndRecoversOnQuiet(t *testing.T) {
	cfg := LinearConfig{
		Mode:           ModeIQ,
		AGCEnable:      true,
		Headroom:       1,
		HangTimeS:      0.01,
		RecoveryDBPerS: 20,
		Gain:           1,
	}
	l := NewLinear(cfg, testSampleRate)

	loud := toneBlock(100, 800, 5.0) // well above headroom
	l.Process(loud, testSampleRate)
	require.Less(t, l.agcGain, 1.0, "AGC should reduce gain in response to a loud block")

	reducedGain := l.agcGain
	quiet := make([]complex128, 800)
	for i := range quiet {
		quiet[i] = complex(1e-6, 0)
	}
	for i := 0; i < 50; i++ {
		l.Process(quiet, testSampleRate)
	}
	require.Greater(t, l.agcGain, reducedGain, "AGC should recover gain once the signal quiets down")
}

func TestLinearEnvelopeModeDCBlockRemovesBias(t *testing.T) {
	cfg := LinearConfig{Mode: ModeEnvelope, DCBlockTCs: 0.01, Gain: 1}
	l := NewLinear(cfg, testSampleRate)
	baseband := toneBlock(50, 4000, 0.7)
	var lastFrame Frame
	for i := 0; i < 5; i++ {
		lastFrame = l.Process(baseband, testSampleRate)
	}
	require.NotNil(t, lastFrame.PCM)

	// Envelope magnitude is constant (0.7/sqrt2); after the DC blocker
	// settles the steady component should be driven toward zero, so the
	// final samples should be small relative to full scale.
	tailMean := 0.0
	tail := lastFrame.PCM[len(lastFrame.PCM)-100:]
	for _, s := range tail {
		tailMean += math.Abs(float64(s))
	}
	tailMean /= float64(len(tail))
	require.Less(t, tailMean, 3000.0, "DC-blocked envelope output should settle near zero for a constant-envelope tone")
}

func TestLinearSquaredPLLPhaseErrorUsesDoubledArgument(t *testing.T) {
	// Confirms the squared-PLL mode's phase detector wraps based on
	// arg(z^2): feeding a BPSK-like half-cycle tone shouldn't panic or
	// diverge; loop should track the underlying carrier at 2x rate.
	cfg := LinearConfig{
		Mode:      ModeSquaredPLL,
		PLLEnable: true,
		LoopBWHz:  20,
	}
	l := NewLinear(cfg, testSampleRate)
	for i := 0; i < 30; i++ {
		baseband := toneBlock(10, 400, 1.0)
		// Randomly flip sign (BPSK) every block to simulate data.
		if i%2 == 1 {
			for j := range baseband {
				baseband[j] = -baseband[j]
			}
		}
		l.Process(baseband, testSampleRate)
	}
	require.False(t, math.IsNaN(real(l.pll.Phasor())))
	require.InDelta(t, 1.0, cmplx.Abs(l.pll.Phasor()), 1e-6)
}
