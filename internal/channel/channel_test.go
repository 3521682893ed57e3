package channel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdrcore/fastconv/internal/demod"
	"github.com/sdrcore/fastconv/internal/fastconv"
	"github.com/sdrcore/fastconv/internal/fftcache"
	"github.com/sdrcore/fastconv/internal/frontend"
)

type stubDemod struct {
	kind  demod.Kind
	calls int
	last  []complex128
}

func (s *stubDemod) Kind() demod.Kind { return s.kind }
func (s *stubDemod) Process(baseband []complex128, sampleRate float64) demod.Frame {
	s.calls++
	s.last = baseband
	return demod.Frame{PCM: make([]int16, len(baseband)), Channels: 1}
}

type stubSink struct {
	frames int
	muted  bool
}

func (s *stubSink) WriteFrame(streamID string, pcm []int16, channels int, mute bool) error {
	s.frames++
	s.muted = mute
	return nil
}

func newWiredChannel(t *testing.T, lifetime int) (*Channel, *fastconv.InputFilter, *stubDemod, *stubSink, *frontend.Source) {
	t.Helper()
	cache := fftcache.New("", nil)
	const l, m = 64, 33
	in, err := fastconv.NewInputFilter(fastconv.InputFilterConfig{Real: false, L: l, M: m, Cache: cache})
	require.NoError(t, err)
	out, err := fastconv.NewOutputFilter(fastconv.OutputFilterConfig{Input: in, Lp: l, Complex: true, Cache: cache})
	require.NoError(t, err)

	front := frontend.NewSource(frontend.Snapshot{
		FrequencyHz:  0,
		SampleRateHz: 8000,
		MinIF:        -4000,
		MaxIF:        4000,
		Complex:      true,
	})

	dem := &stubDemod{kind: demod.KindLinear}
	sink := &stubSink{}

	ch := New(Config{
		StreamID:       "test",
		Front:          front,
		Output:         out,
		Demod:          dem,
		Sink:           sink,
		SampleRate:     8000,
		LifetimeBlocks: lifetime,
	})
	return ch, in, dem, sink, front
}

func feedBlock(t *testing.T, in *fastconv.InputFilter, l int) {
	t.Helper()
	samples := make([]complex128, l)
	for i := range samples {
		samples[i] = complex(math.Sin(float64(i)), 0)
	}
	require.NoError(t, in.ExecuteInput(samples))
}

func TestRunIterationAtZeroFrequencyCountsDownLifetime(t *testing.T) {
	ch, in, dem, sink, _ := newWiredChannel(t, 2)
	feedBlock(t, in, 64)

	_, running, err := ch.RunIteration()
	require.NoError(t, err)
	require.True(t, running)
	require.Equal(t, 1, dem.calls)
	require.Equal(t, 1, sink.frames)

	feedBlock(t, in, 64)
	_, running, err = ch.RunIteration()
	require.NoError(t, err)
	require.False(t, running)
}

func TestRunIterationStopsImmediatelyAfterTerminate(t *testing.T) {
	ch, _, _, _, _ := newWiredChannel(t, -1)
	ch.Terminate()
	_, running, err := ch.RunIteration()
	require.NoError(t, err)
	require.False(t, running)
}

func TestRunIterationAppliesFreqCommandAndProducesBaseband(t *testing.T) {
	ch, in, dem, sink, _ := newWiredChannel(t, -1)
	freq := 500.0
	ch.Submit(Command{FreqHz: &freq})

	feedBlock(t, in, 64)
	restart, running, err := ch.RunIteration()
	require.NoError(t, err)
	require.False(t, restart)
	require.True(t, running)
	require.Equal(t, 1, dem.calls)
	require.Len(t, dem.last, 64)
	require.Equal(t, 1, sink.frames)
}

func TestRunIterationSignalsRestartOnKindChange(t *testing.T) {
	ch, in, _, _, _ := newWiredChannel(t, -1)
	newKind := demod.KindNBFM
	ch.Submit(Command{Kind: &newKind})

	feedBlock(t, in, 64)
	restart, running, err := ch.RunIteration()
	require.NoError(t, err)
	require.True(t, restart)
	require.True(t, running)
}

func TestRunIterationOutOfIFRangeWaitsAndResetsN0(t *testing.T) {
	ch, _, dem, _, _ := newWiredChannel(t, -1)
	farFreq := 2_000_000.0 // way outside MinIF/MaxIF once combined with front-end frequency
	ch.Submit(Command{FreqHz: &farFreq})

	_, running, err := ch.RunIteration()
	require.NoError(t, err)
	require.True(t, running)
	require.Equal(t, 0, dem.calls) // demodulator never invoked when out of range
	require.Equal(t, 0.0, ch.N0())
}

func TestUpdateN0TracksMinimumAcrossBinsAndSmooths(t *testing.T) {
	ch := &Channel{}
	bins := []complex128{complex(1, 0), complex(0.1, 0), complex(2, 0)}
	ch.updateN0(bins)
	require.Greater(t, ch.n0, 0.0)
	first := ch.n0

	// Feeding the same bins again should smooth toward the same energy,
	// moving the estimate closer to the unbiased value.
	ch.updateN0(bins)
	require.NotEqual(t, first, ch.n0)
}

func TestBlockDropsDelegatesToOutputFilter(t *testing.T) {
	ch, _, _, _, _ := newWiredChannel(t, -1)
	require.Equal(t, uint64(0), ch.BlockDrops())
}
