// synth.go implements a synthetic stand-in for frontend.Driver, since
// this module owns no hardware binding (spec §6 "Front-end contract
// (consumed)" is implemented by an external driver in production; a
// generator is enough to exercise the engine end to end here).
//
// Grounded on the teacher's audio.go SDR-over-UDP front end: a
// goroutine that manufactures one block's worth of samples per tick
// and feeds them into the shared input filter, the same shape as
// audio.go's UDP receive loop feeding Dire Wolf's demodulator chain.
package main

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sdrcore/fastconv/internal/fastconv"
	"github.com/sdrcore/fastconv/internal/frontend"
)

// syntheticDriver generates a single complex tone plus white noise in
// place of a real tuner, implementing frontend.Driver well enough to
// drive the engine.
type syntheticDriver struct {
	sampleRateHz float64
	toneHz       float64
	noiseAmpl    float64

	freqHz atomic.Uint64 // math.Float64bits of the current tuned frequency
}

func newSyntheticDriver(sampleRateHz, toneHz, noiseAmpl float64) *syntheticDriver {
	d := &syntheticDriver{sampleRateHz: sampleRateHz, toneHz: toneHz, noiseAmpl: noiseAmpl}
	d.freqHz.Store(math.Float64bits(0))
	return d
}

func (d *syntheticDriver) Setup(config any) error { return nil }
func (d *syntheticDriver) Start() error            { return nil }

func (d *syntheticDriver) Tune(hz float64) (float64, error) {
	d.freqHz.Store(math.Float64bits(hz))
	return hz, nil
}

func (d *syntheticDriver) Gain(db float64) (float64, error)  { return db, nil }
func (d *syntheticDriver) Atten(db float64) (float64, error) { return db, nil }

// generate fills buf with one block of complex samples: a tone at
// toneHz relative to the driver's current tuned frequency, plus a
// small amount of deterministic pseudo-noise so the per-channel N0
// estimator has something to track.
func (d *syntheticDriver) generate(buf []complex128, blockIndex uint64) {
	phaseStep := 2 * math.Pi * d.toneHz / d.sampleRateHz
	var seed uint64 = blockIndex*2654435761 + 1
	for i := range buf {
		angle := phaseStep * float64(i)
		seed = seed*6364136223846793005 + 1442695040888963407
		noise := (float64(seed>>40)/float64(1<<24) - 0.5) * d.noiseAmpl
		buf[i] = complex(math.Cos(angle)+noise, math.Sin(angle)+noise)
	}
}

// feedLoop repeatedly generates one block every blockPeriod and pushes
// it through in, publishing the front-end's (fixed, in this synthetic
// case) geometry to front on every tick so channels observing a
// retune would see it if one ever happened.
func feedLoop(stop <-chan struct{}, d *syntheticDriver, in *fastconv.InputFilter, front *frontend.Source, blockPeriod time.Duration) {
	buf := make([]complex128, in.L_())
	ticker := time.NewTicker(blockPeriod)
	defer ticker.Stop()

	var blockIndex uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.generate(buf, blockIndex)
			blockIndex++
			if err := in.ExecuteInput(buf); err != nil {
				continue
			}
			snap := front.Get()
			snap.FrequencyHz = math.Float64frombits(d.freqHz.Load())
			front.Update(snap)
		}
	}
}
