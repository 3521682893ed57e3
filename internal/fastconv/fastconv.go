// Package fastconv implements the overlap-save fast-convolution engine:
// one shared input filter running the forward FFT on newly arrived
// front-end samples, and one output filter per channel performing
// frequency-domain bin selection, response multiply, and the inverse
// FFT that yields that channel's time-domain baseband.
//
// Grounded on the teacher's rrbb.go ownership shape (a buffer handle
// exclusively owned by its creator, borrowed by consumers via
// pointer) generalized from a bit buffer to a ring of frequency-domain
// snapshots, and on tq.go's mutex+condition completion signalling
// generalized from packet queueing to job-number completion.
package fastconv

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/sdrcore/fastconv/internal/coreerr"
	"github.com/sdrcore/fastconv/internal/fftcache"
	"github.com/sdrcore/fastconv/internal/ringbuf"
	"github.com/sdrcore/fastconv/internal/workerpool"
)

// ND is the frequency-domain snapshot ring depth: the jitter buffer
// between the shared forward FFT and the slowest channel consuming it.
const ND = 4

// friendlyFactors are the radix set a fast FFT length should factor
// into; at most one factor of 11 or 13 is tolerated. Lengths outside
// this set still work (gonum has no radix restriction) but are slower,
// so a mismatch is only ever diagnosed, never rejected — spec §4.2:
// "a diagnostic is emitted but operation continues."
var friendlyFactors = []int{2, 3, 5, 7, 11, 13}

func isFriendlyLength(n int) bool {
	big := 0
	for _, p := range friendlyFactors {
		for n%p == 0 {
			if p == 11 || p == 13 {
				big++
				if big > 1 {
					return false
				}
			}
			n /= p
		}
	}
	return n == 1
}

// InputFilterConfig describes the shared forward-convolution filter.
type InputFilterConfig struct {
	Real     bool // samples arriving from the front end are real-valued
	L        int  // input block length
	M        int  // impulse-response length
	Workers  int  // worker pool size; 0 runs the forward FFT inline
	Cache    *fftcache.Cache
	Level    fftcache.Level
	WisdomDir string // unused placeholder for process-local wisdom path wiring
	Logger   *log.Logger
}

// InputFilter is the single shared master half of the engine: owns the
// mirrored ring buffer, the forward FFT plan, and the ring of ND
// frequency-domain snapshots that every channel's output filter reads
// from (data model §3 "Input filter (one per process, shared)").
type InputFilter struct {
	real bool
	L, M, N, bins int

	ring        *ringbuf.Buffer
	writeCursor int

	mu            sync.Mutex
	cond          *sync.Cond
	snapshots     [ND][]complex128
	completionJob [ND]uint64
	nextJob       uint64

	pool   *workerpool.Pool
	cache  *fftcache.Cache
	level  fftcache.Level
	logger *log.Logger

	notches *NotchList

	scratchReal []float64 // reused per block when real==true
}

// NewInputFilter validates L, M and builds the shared engine state.
// N is not rejected for being an unfriendly length (see
// isFriendlyLength) — only logged — matching spec §4.2.
func NewInputFilter(cfg InputFilterConfig) (*InputFilter, error) {
	if cfg.L <= 0 || cfg.M <= 0 {
		return nil, fmt.Errorf("fastconv: L=%d M=%d: %w", cfg.L, cfg.M, coreerr.ErrInvalidConfig)
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("fastconv: nil plan cache: %w", coreerr.ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	n := cfg.L + cfg.M - 1
	bins := n
	if cfg.Real {
		bins = n/2 + 1
	}
	if !isFriendlyLength(n) {
		logger.Warn("FFT length does not factor into small primes, expect degraded performance", "n", n)
	}

	ring, err := ringbuf.New(ND * n)
	if err != nil {
		return nil, fmt.Errorf("fastconv: mirrored ring: %w", err)
	}

	f := &InputFilter{
		real:   cfg.Real,
		L:      cfg.L,
		M:      cfg.M,
		N:      n,
		bins:   bins,
		ring:   ring,
		pool:   workerpool.New(cfg.Workers, logger),
		cache:  cfg.Cache,
		level:  cfg.Level,
		logger: logger,
	}
	f.cond = sync.NewCond(&f.mu)
	for i := range f.snapshots {
		f.snapshots[i] = make([]complex128, bins)
	}
	if cfg.Real {
		f.scratchReal = make([]float64, n)
	}
	return f, nil
}

// SetNotches installs (or clears, with nil) the notch filter list
// applied to every forward-FFT output before any channel sees it.
func (f *InputFilter) SetNotches(n *NotchList) {
	f.mu.Lock()
	f.notches = n
	f.mu.Unlock()
}

func (f *InputFilter) L_() int    { return f.L }
func (f *InputFilter) M_() int    { return f.M }
func (f *InputFilter) N_() int    { return f.N }
func (f *InputFilter) Bins() int  { return f.bins }
func (f *InputFilter) Real() bool { return f.real }

// ExecuteInput consumes L new samples: writes them at the ring's write
// cursor, runs (or enqueues) the forward FFT over the L new samples
// plus the M-1 sample overlap, applies notches, publishes the result
// as the next snapshot, and wakes every waiting output filter. Fails
// with invalid-config only if len(samples) != L.
func (f *InputFilter) ExecuteInput(samples []complex128) error {
	if len(samples) != f.L {
		return fmt.Errorf("fastconv: execute-input len=%d want %d: %w", len(samples), f.L, coreerr.ErrInvalidConfig)
	}
	f.pool.Submit(func() { f.runBlock(samples) })
	return nil
}

func (f *InputFilter) runBlock(samples []complex128) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ring.Put(f.writeCursor, samples)
	f.writeCursor = f.ring.Wrap(f.writeCursor + f.L)
	windowStart := f.ring.Wrap(f.writeCursor - f.N)
	window := f.ring.View(windowStart, f.N)

	slot := int(f.nextJob % ND)
	dst := f.snapshots[slot]

	if f.real {
		for i, s := range window {
			f.scratchReal[i] = real(s)
		}
		plan := f.cache.RealForward(f.N, f.level)
		plan.Coefficients(dst, f.scratchReal)
	} else {
		plan := f.cache.ComplexForward(f.N, f.level)
		plan.Coefficients(dst, window)
	}

	if f.notches != nil {
		f.notches.Apply(dst)
	}

	f.completionJob[slot] = f.nextJob
	f.nextJob++
	f.cond.Broadcast()
}

// awaitJob blocks until job jobNumber has landed in its slot. Must be
// called with f.mu held; returns with f.mu held. Unbounded by design:
// the ground truth (original_source/filter.c's execute_filter_output)
// waits on its condition variable with no timeout, and a channel
// correctly tuned within the front end's coverage always eventually
// gets a forward-FFT block — there is no sound "it's been too long"
// threshold divorced from the real block cadence, so this never times
// out a healthy channel.
func (f *InputFilter) awaitJob(jobNumber uint64) (newestInSlot uint64) {
	slot := int(jobNumber % ND)
	for f.nextJob <= jobNumber {
		f.cond.Wait()
	}
	return f.completionJob[slot]
}

// snapshotLocked copies the snapshot for jobNumber's slot into dst.
// Must be called with f.mu held.
func (f *InputFilter) snapshotLocked(jobNumber uint64, dst []complex128) {
	slot := int(jobNumber % ND)
	copy(dst, f.snapshots[slot])
}
