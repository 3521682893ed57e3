// Command fastconvd wires the fast-convolution engine, channel table,
// command dispatch, and service discovery into one running process
// (spec §6 "CLI surface", §3 "System overview"). It owns no hardware
// driver: a synthetic front end stands in for one, so the whole engine
// can be exercised without SDR hardware present.
//
// Grounded on the teacher's cmd/direwolf/main.go as the top-level
// orchestrator shape (parse flags, build the subsystems, install a
// signal handler, block until shutdown) — direwolf.go's body is
// cgo-bound to Dire Wolf's native audio/TNC stack and isn't reusable
// logic, only its flag/lifecycle conventions are.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/charmbracelet/log"

	"github.com/sdrcore/fastconv/internal/channel"
	"github.com/sdrcore/fastconv/internal/demod"
	"github.com/sdrcore/fastconv/internal/discovery"
	"github.com/sdrcore/fastconv/internal/fastconv"
	"github.com/sdrcore/fastconv/internal/fftcache"
	"github.com/sdrcore/fastconv/internal/frontend"
	"github.com/sdrcore/fastconv/internal/presets"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

type options struct {
	listenAddr   string
	sampleRate   float64
	toneHz       float64
	noiseAmpl    float64
	wisdomPath   string
	presetsPath  string
	discoverName string
	noDiscover   bool
	maxChannels  int
}

func parseArgs(args []string) (options, int, error) {
	var opts options
	flags := pflag.NewFlagSet("fastconvd", pflag.ContinueOnError)

	flags.StringVar(&opts.listenAddr, "listen", ":5006", "UDP address to receive command packets on")
	flags.Float64Var(&opts.sampleRate, "rate", 8000, "front-end sample rate, Hz")
	flags.Float64Var(&opts.toneHz, "tone", 1000, "synthetic front-end tone offset, Hz")
	flags.Float64Var(&opts.noiseAmpl, "noise", 0.05, "synthetic front-end noise amplitude")
	flags.StringVar(&opts.wisdomPath, "wisdom", "wisdom", "FFT wisdom file to import at startup and export at shutdown")
	flags.StringVar(&opts.presetsPath, "presets", "", "optional YAML mode-preset table")
	flags.StringVar(&opts.discoverName, "name", "", "service-discovery instance name (default hostname-derived)")
	flags.BoolVar(&opts.noDiscover, "no-discover", false, "disable mDNS service advertisement")
	flags.IntVar(&opts.maxChannels, "max-channels", channel.DefaultMaxChannels, "channel table bound")
	help := flags.Bool("help", false, "display help text")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return opts, 2, err
	}
	if *help {
		flags.Usage()
		return opts, 0, flagHelpRequested
	}
	return opts, 0, nil
}

// flagHelpRequested is a sentinel distinguishing "help was printed,
// exit 0" from "parsing succeeded, keep going".
var flagHelpRequested = fmt.Errorf("help requested")

func run(args []string) int {
	opts, code, err := parseArgs(args)
	if err != nil {
		if err == flagHelpRequested {
			return 0
		}
		return code
	}

	logger := log.Default()

	const (
		inputL = 4096
		inputM = 513
	)

	cache := fftcache.New("", logger)
	if err := cache.ImportWisdom(opts.wisdomPath); err != nil {
		logger.Warnf("fastconvd: no wisdom imported from %s: %v", opts.wisdomPath, err)
	}

	in, err := fastconv.NewInputFilter(fastconv.InputFilterConfig{
		Real:    false,
		L:       inputL,
		M:       inputM,
		Workers: 2,
		Cache:   cache,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fastconvd:", err)
		return 1
	}

	front := frontend.NewSource(frontend.Snapshot{
		FrequencyHz:  0,
		SampleRateHz: opts.sampleRate,
		MinIF:        -opts.sampleRate / 2,
		MaxIF:        opts.sampleRate / 2,
		Complex:      true,
	})

	var presetTable *presets.Table
	if opts.presetsPath != "" {
		presetTable, err = presets.Load(opts.presetsPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fastconvd:", err)
			return 1
		}
	}

	table := channel.NewTable(opts.maxChannels)
	sink := &logSink{logger: logger}

	createChannel := func(streamID string) (*channel.Channel, error) {
		out, err := fastconv.NewOutputFilter(fastconv.OutputFilterConfig{
			Input:   in,
			Lp:      inputL,
			Complex: true,
			Cache:   cache,
		})
		if err != nil {
			return nil, err
		}
		dem := demod.NewLinear(demod.LinearConfig{Mode: demod.ModeIQ, Gain: 1}, opts.sampleRate)
		return channel.New(channel.Config{
			StreamID:       streamID,
			Front:          front,
			Output:         out,
			Demod:          dem,
			Sink:           sink,
			SampleRate:     opts.sampleRate,
			LifetimeBlocks: -1,
		}), nil
	}

	dispatcher := channel.NewDispatcher(table, 5*time.Millisecond)

	udpConn, err := listenCommands(opts.listenAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fastconvd:", err)
		return 1
	}
	defer udpConn.Close()

	var statusAddr atomic.Pointer[net.UDPAddr]
	dispatcher.Emit = func(ch *channel.Channel) {
		addr := statusAddr.Load()
		if addr == nil {
			return
		}
		data := channel.EncodeStatus(ch, 0)
		if _, err := udpConn.WriteToUDP(data, addr); err != nil {
			logger.Warnf("fastconvd: status send: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopFeed := make(chan struct{})
	driver := newSyntheticDriver(opts.sampleRate, opts.toneHz, opts.noiseAmpl)
	blockPeriod := time.Duration(float64(inputL) / opts.sampleRate * float64(time.Second))
	go feedLoop(stopFeed, driver, in, front, blockPeriod)

	go commandLoop(udpConn, dispatcher, createChannel, logger, func(from *net.UDPAddr) { statusAddr.Store(from) })
	go channelRunLoop(table, logger, blockPeriod)

	var advertiser *discovery.Advertiser
	if !opts.noDiscover {
		_, portStr, splitErr := net.SplitHostPort(udpConn.LocalAddr().String())
		port := 0
		if splitErr == nil {
			fmt.Sscanf(portStr, "%d", &port)
		}
		advertiser, err = discovery.Start(ctx, discovery.Config{
			Name:       opts.discoverName,
			StatusPort: port,
			Logger:     logger,
		})
		if err != nil {
			logger.Warnf("fastconvd: discovery not started: %v", err)
		}
	}

	logger.Infof("fastconvd: listening on %s, %d presets loaded", opts.listenAddr, presetCount(presetTable))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("fastconvd: shutting down")
	close(stopFeed)
	if advertiser != nil {
		advertiser.Stop()
	}
	cancel()
	for _, id := range table.StreamIDs() {
		table.Destroy(id)
	}
	if err := cache.ExportWisdom(opts.wisdomPath); err != nil {
		logger.Warnf("fastconvd: wisdom export: %v", err)
	}
	return 0
}

func presetCount(t *presets.Table) int {
	if t == nil {
		return 0
	}
	return len(t.Names())
}

// listenCommands opens the UDP socket command packets arrive on,
// grounded on the teacher's audio.go SDR-UDP input socket pattern
// (net.ResolveUDPAddr + net.ListenUDP).
func listenCommands(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("fastconvd: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("fastconvd: listen %s: %w", addr, err)
	}
	return conn, nil
}

// commandLoop reads command packets off conn and hands each to the
// dispatcher, recording the sender as the status destination so
// dispatcher.Emit can reply.
func commandLoop(conn *net.UDPConn, d *channel.Dispatcher, create func(string) (*channel.Channel, error), logger *log.Logger, onSender func(*net.UDPAddr)) {
	buf := make([]byte, 4096)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		onSender(from)
		packet := make([]byte, n)
		copy(packet, buf[:n])
		if err := d.HandlePacket(packet, create); err != nil {
			logger.Warnf("fastconvd: malformed command from %s: %v", from, err)
		}
	}
}

// channelRunLoop drives every channel's RunIteration once per
// blockPeriod and drops a channel from the table once it
// self-terminates. The restart result of RunIteration is discarded:
// the channel keeps its current demodulator.
func channelRunLoop(table *channel.Table, logger *log.Logger, blockPeriod time.Duration) {
	ticker := time.NewTicker(blockPeriod)
	defer ticker.Stop()
	for range ticker.C {
		for _, id := range table.StreamIDs() {
			ch, ok := table.Lookup(id)
			if !ok {
				continue
			}
			_, running, err := ch.RunIteration()
			if err != nil {
				logger.Warnf("fastconvd: channel %s: %v", id, err)
			}
			if !running {
				table.Destroy(id)
			}
		}
	}
}

// logSink is a minimal frontend.AudioSink that reports PCM delivery
// through the logger instead of an external audio transport, since
// this demonstration binary has no real output consumer.
type logSink struct {
	logger *log.Logger
	frames uint64
}

func (s *logSink) WriteFrame(streamID string, pcm []int16, channelsN int, mute bool) error {
	s.frames++
	if s.frames%200 == 0 {
		s.logger.Debugf("fastconvd: %s delivered frame #%d (%d samples, mute=%v)", streamID, s.frames, len(pcm), mute)
	}
	return nil
}
