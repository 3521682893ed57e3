// Package discovery advertises a running core instance's status
// multicast endpoint via mDNS/DNS-SD, so monitor clients on the local
// network can find it without a pre-shared address (spec §6 "Service
// discovery").
//
// Grounded on the teacher's dns_sd.go, which advertises Dire Wolf's
// KISS-over-TCP service the same way; generalized here to advertise
// the status-channel multicast group instead of a TCP port.
package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type this package advertises.
const ServiceType = "_fastconv-core._udp"

// Config describes the instance to advertise.
type Config struct {
	// Name is the service instance name; defaults to
	// "fastconv on <hostname>" when empty.
	Name string

	// StatusHost/StatusPort identify the status multicast endpoint
	// (spec §6's "External interfaces" status channel) that monitor
	// clients should join.
	StatusHost string
	StatusPort int

	Logger *log.Logger
}

// Advertiser owns one running DNS-SD responder.
type Advertiser struct {
	responder dnssd.Responder
	service   dnssd.Service
	logger    *log.Logger
	cancel    context.CancelFunc
}

// Start registers cfg's service with a new responder and begins
// answering mDNS queries for it in the background. Callers should
// defer Stop.
func Start(ctx context.Context, cfg Config) (*Advertiser, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	name := cfg.Name
	if name == "" {
		name = defaultServiceName()
	}

	svcCfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: cfg.StatusPort,
		Text: map[string]string{"host": cfg.StatusHost},
	}
	svc, err := dnssd.NewService(svcCfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: create responder: %w", err)
	}

	if _, err := responder.Add(svc); err != nil {
		return nil, fmt.Errorf("discovery: register service: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a := &Advertiser{
		responder: responder,
		service:   svc,
		logger:    logger,
		cancel:    cancel,
	}

	logger.Infof("discovery: announcing %q (%s) port %d", name, ServiceType, cfg.StatusPort)

	go func() {
		if respondErr := responder.Respond(runCtx); respondErr != nil && runCtx.Err() == nil {
			logger.Errorf("discovery: responder stopped: %v", respondErr)
		}
	}()

	return a, nil
}

// Stop withdraws the advertisement and stops answering queries.
func (a *Advertiser) Stop() {
	if a == nil {
		return
	}
	a.cancel()
}

// defaultServiceName mirrors the teacher's "<app> on <hostname>"
// convention, stripping any domain suffix from the hostname.
func defaultServiceName() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "fastconv"
	}
	hostname, _, _ = strings.Cut(hostname, ".")
	return "fastconv on " + hostname
}
