// Command wisdomgen precomputes FFT plans and writes them to a wisdom
// file an fastconv-core process can load at startup, so the first
// real-time block of a new plan length never pays the "missing wisdom"
// fallback cost (spec §4.4, §6 "CLI surface").
package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/charmbracelet/log"

	"github.com/sdrcore/fastconv/internal/fftcache"
	"github.com/sdrcore/fastconv/internal/workerpool"
)

var descriptorRE = regexp.MustCompile(`^([rc])o([fb])(\d+)$`)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("wisdomgen", pflag.ContinueOnError)

	level := flags.String("level", "estimate", "planning level: estimate|measure|patient|exhaustive")
	threads := flags.Int("threads", 1, "worker threads to use while planning")
	timelimit := flags.Float64("timelimit", 0, "abort after this many seconds (0 = no limit)")
	force := flags.Bool("force", false, "rebuild a plan even if it is already present in the output wisdom file")
	output := flags.String("output", "wisdom", "path to write the generated wisdom file")
	help := flags.Bool("help", false, "display help text")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s generate - precompute FFT wisdom for fastconv-core\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s generate [options] <descriptor...>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Each descriptor is {r|c}o{f|b}<LEN>, e.g. cof5000 for a complex\n")
		fmt.Fprintf(os.Stderr, "out-of-place forward FFT of length 5000.\n\n")
		flags.PrintDefaults()
	}

	if len(args) == 0 || args[0] != "generate" {
		flags.Usage()
		return 2
	}
	if err := flags.Parse(args[1:]); err != nil {
		return 2
	}
	if *help {
		flags.Usage()
		return 0
	}

	planLevel, err := parseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wisdomgen:", err)
		return 1
	}

	descriptors := flags.Args()
	if len(descriptors) == 0 {
		fmt.Fprintln(os.Stderr, "wisdomgen: at least one plan descriptor is required")
		return 2
	}

	logger := log.Default()
	logger.Infof("generating wisdom at level %s, %d thread(s) requested", planLevel, *threads)

	cache := fftcache.New("", logger)
	if !*force {
		if err := cache.ImportWisdom(*output); err != nil {
			logger.Warnf("could not import existing wisdom from %s: %v", *output, err)
		}
	}

	deadline := time.Time{}
	if *timelimit > 0 {
		deadline = time.Now().Add(time.Duration(*timelimit * float64(time.Second)))
	}

	if err := planAll(cache, descriptors, planLevel, *threads, deadline, logger); err != nil {
		fmt.Fprintln(os.Stderr, "wisdomgen:", err)
		return 1
	}

	if err := cache.ExportWisdom(*output); err != nil {
		fmt.Fprintln(os.Stderr, "wisdomgen: export:", err)
		return 1
	}
	logger.Infof("wrote %s", *output)
	return 0
}

// planAll builds every descriptor's plan, distributing the work across
// a workerpool.Pool sized by threads (spec §6's --threads flag), and
// aborts once deadline (if set) has passed.
func planAll(cache *fftcache.Cache, descriptors []string, level fftcache.Level, threads int, deadline time.Time, logger *log.Logger) error {
	pool := workerpool.New(threads-1, logger)
	defer pool.Close()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, d := range descriptors {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("time limit exceeded before %q", d)
		}
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(func() {
				if err := buildPlan(cache, d, level); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				logger.Infof("planned %s", d)
			})
		}()
	}
	wg.Wait()
	return firstErr
}

func parseLevel(s string) (fftcache.Level, error) {
	switch s {
	case "estimate":
		return fftcache.LevelEstimate, nil
	case "measure":
		return fftcache.LevelMeasure, nil
	case "patient":
		return fftcache.LevelPatient, nil
	case "exhaustive":
		return fftcache.LevelExhaustive, nil
	default:
		return 0, fmt.Errorf("unknown planning level %q", s)
	}
}

// buildPlan parses a {r|c}o{f|b}<LEN> descriptor and forces the cache
// to construct (and thus remember) the matching plan.
func buildPlan(cache *fftcache.Cache, descriptor string, level fftcache.Level) error {
	m := descriptorRE.FindStringSubmatch(descriptor)
	if m == nil {
		return fmt.Errorf("malformed plan descriptor %q, want {r|c}o{f|b}<LEN>", descriptor)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return fmt.Errorf("malformed plan length in %q", descriptor)
	}
	real := m[1] == "r"
	backward := m[2] == "b"

	switch {
	case real && !backward:
		cache.RealForward(n, level)
	case real && backward:
		cache.RealBackward(n, level)
	case !real && !backward:
		cache.ComplexForward(n, level)
	default:
		cache.ComplexBackward(n, level)
	}
	return nil
}
