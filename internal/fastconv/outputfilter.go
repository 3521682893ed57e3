package fastconv

import (
	"fmt"
	"sync"

	"github.com/sdrcore/fastconv/internal/coreerr"
	"github.com/sdrcore/fastconv/internal/fftcache"
)

// Selection picks which of spec §4.2's five bin-selection rules an
// output filter uses. Beam is only valid with a complex input.
type Selection int

const (
	SelectAuto Selection = iota // chosen from the input filter's domain and Complex
	SelectBeam
)

// OutputFilterConfig describes one channel's slave half of the engine.
type OutputFilterConfig struct {
	Input     *InputFilter
	Lp        int // output time-domain block length (L')
	Complex   bool // output spectrum/time domain is complex, not real
	Selection Selection
	Beam      BeamWeights
	Cache     *fftcache.Cache
	Level     fftcache.Level
}

// OutputFilter is the per-channel slave half: references its input
// filter, owns its response array, scratch, and time-domain output
// buffer (spec §3 "Output filter (one per channel)").
type OutputFilter struct {
	input   *InputFilter
	complex bool
	sel     Selection
	beam    BeamWeights

	Lp, Np, binsP int

	responseMu sync.RWMutex

	response []complex128
	scratch  []complex128

	outputBuf []complex128 // time domain, length Np

	expectedJob uint64
	blockDrops  uint64

	cache *fftcache.Cache
	level fftcache.Level

	tuner *FineTuner
}

// NewOutputFilter validates N'/L' = N/L and bins'*L = L'*bins (spec
// §3's creation invariant) and allocates the channel's private
// frequency-domain and time-domain state. The response array starts
// all-pass (unit gain, zero phase) until the caller installs a real
// filter response.
func NewOutputFilter(cfg OutputFilterConfig) (*OutputFilter, error) {
	in := cfg.Input
	if in == nil {
		return nil, fmt.Errorf("fastconv: nil input filter: %w", coreerr.ErrInvalidConfig)
	}
	if cfg.Lp <= 0 {
		return nil, fmt.Errorf("fastconv: L'=%d: %w", cfg.Lp, coreerr.ErrInvalidConfig)
	}
	if (cfg.Lp*in.N)%in.L != 0 {
		return nil, fmt.Errorf("fastconv: N'/L' must equal N/L exactly (L'=%d, N=%d, L=%d): %w", cfg.Lp, in.N, in.L, coreerr.ErrInvalidConfig)
	}
	np := cfg.Lp * in.N / in.L

	binsP := np
	if !cfg.Complex {
		binsP = np/2 + 1
	}
	if binsP*in.L != cfg.Lp*in.bins {
		return nil, fmt.Errorf("fastconv: bins'*L != L'*bins (%d*%d != %d*%d): %w", binsP, in.L, cfg.Lp, in.bins, coreerr.ErrInvalidConfig)
	}
	if cfg.Selection == SelectBeam && in.real {
		return nil, fmt.Errorf("fastconv: beam-forming selection requires complex input: %w", coreerr.ErrInvalidConfig)
	}

	overlap := 1
	if in.M > 1 {
		overlap = in.N / (in.M - 1)
	}

	response := make([]complex128, binsP)
	for i := range response {
		response[i] = 1
	}

	return &OutputFilter{
		input:       in,
		complex:     cfg.Complex,
		sel:         cfg.Selection,
		beam:        cfg.Beam,
		Lp:          cfg.Lp,
		Np:          np,
		binsP:       binsP,
		response:    response,
		scratch:     make([]complex128, binsP),
		outputBuf:   make([]complex128, np),
		expectedJob: 0,
		cache:       cfg.Cache,
		level:       cfg.Level,
		tuner:       NewFineTuner(overlap),
	}, nil
}

// SetResponse hot-swaps the per-channel frequency response, e.g. after
// a filter-edge or Kaiser-beta reconfiguration command.
func (o *OutputFilter) SetResponse(response []complex128) error {
	if len(response) != o.binsP {
		return fmt.Errorf("fastconv: response len=%d want %d: %w", len(response), o.binsP, coreerr.ErrInvalidConfig)
	}
	o.responseMu.Lock()
	copy(o.response, response)
	o.responseMu.Unlock()
	return nil
}

// BlockDrops reports the cumulative count of snapshots skipped due to
// overrun recovery (spec §8 scenario 4).
func (o *OutputFilter) BlockDrops() uint64 { return o.blockDrops }

// LastBins returns a copy of the frequency-domain bins selected by the
// most recent ExecuteOutput, before the inverse FFT. The channel loop
// uses this to update its per-bin noise-density estimate (spec §4.5
// step 9); safe to call only from the same goroutine driving
// ExecuteOutput, since scratch has no independent synchronization.
func (o *OutputFilter) LastBins() []complex128 {
	out := make([]complex128, len(o.scratch))
	copy(out, o.scratch)
	return out
}

// ExecuteOutput waits for the next frequency-domain snapshot, performs
// bin selection centred at shift, zeros the Nyquist bin, runs the
// inverse FFT, applies the block-rotation correction and fine-tuning
// phasor for remainderHz (spec §4.2 "Fine tuning", §4.5 steps 4-6),
// and returns the usable L' samples (the final L' samples of the N'
// discarded-overlap buffer). If the snapshot the channel expects has
// already been overwritten (more than ND-1 blocks behind), it jumps to
// the oldest still-available snapshot and counts the gap as drops
// (spec §4.2, §7 "filter-overrun").
func (o *OutputFilter) ExecuteOutput(shift int, remainderHz, sampleRate float64) ([]complex128, error) {
	in := o.input

	in.mu.Lock()
	in.awaitJob(o.expectedJob)
	if in.nextJob-o.expectedJob > ND {
		oldest := in.nextJob - ND
		o.blockDrops += oldest - o.expectedJob
		o.expectedJob = oldest
	}
	snapshot := make([]complex128, in.bins)
	in.snapshotLocked(o.expectedJob, snapshot)
	in.mu.Unlock()

	o.responseMu.RLock()
	response := o.response
	switch {
	case o.sel == SelectBeam:
		selectBeamform(o.scratch, snapshot, response, shift, o.beam)
	case in.real && o.complex:
		selectRealComplex(o.scratch, snapshot, response, shift)
	case in.real && !o.complex:
		selectRealReal(o.scratch, snapshot, response, shift)
	case !in.real && o.complex:
		selectComplexComplex(o.scratch, snapshot, response, shift)
	default: // !in.real && !o.complex
		selectComplexReal(o.scratch, snapshot, response, shift)
	}
	o.responseMu.RUnlock()

	zeroNyquist(o.scratch, o.Np)

	if o.complex {
		plan := o.cache.ComplexBackward(o.Np, o.level)
		plan.Sequence(o.outputBuf, o.scratch)
	} else {
		realOut := make([]float64, o.Np)
		plan := o.cache.RealBackward(o.Np, o.level)
		plan.Sequence(realOut, o.scratch)
		for i, v := range realOut {
			o.outputBuf[i] = complex(v, 0)
		}
	}

	o.expectedJob++

	discard := o.Np - o.Lp
	usable := make([]complex128, o.Lp)
	copy(usable, o.outputBuf[discard:])

	o.tuner.Retune(shift, remainderHz, sampleRate)
	o.tuner.Apply(usable)
	return usable, nil
}
