// Package discovery advertises the control API on the local network via
// multicast DNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/ManuGH/audiostream/internal/log"
)

// Config describes the advertised service.
type Config struct {
	// Instance is the service instance name. Empty uses the host name.
	Instance string
	Service  string
	Domain   string
	Port     int
	// TXT records, "key=value".
	TXT []string
	// IPs to advertise. Empty uses every up, non-loopback interface address.
	IPs []net.IP
}

// Advertiser answers mDNS queries for one service until stopped.
type Advertiser struct {
	cfg    Config
	zone   *mdns.MDNSService
	logger zerolog.Logger
}

// NewAdvertiser builds the service zone without touching the network.
func NewAdvertiser(cfg Config) (*Advertiser, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("discovery: invalid port %d", cfg.Port)
	}
	if cfg.Instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("discovery: host name: %w", err)
		}
		cfg.Instance = strings.SplitN(host, ".", 2)[0]
	}
	if len(cfg.IPs) == 0 {
		ips, err := localIPs()
		if err != nil {
			return nil, err
		}
		cfg.IPs = ips
	}
	if len(cfg.IPs) == 0 {
		return nil, fmt.Errorf("discovery: no usable interface addresses")
	}
	zone, err := mdns.NewMDNSService(cfg.Instance, cfg.Service, cfg.Domain, "", cfg.Port, cfg.IPs, cfg.TXT)
	if err != nil {
		return nil, fmt.Errorf("discovery: build service: %w", err)
	}
	return &Advertiser{
		cfg:  cfg,
		zone: zone,
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "discovery").Str("service", cfg.Service)
		}),
	}, nil
}

// Zone exposes the records served.
func (a *Advertiser) Zone() *mdns.MDNSService { return a.zone }

// Run serves the zone until ctx is done.
func (a *Advertiser) Run(ctx context.Context) error {
	server, err := mdns.NewServer(&mdns.Config{Zone: a.zone})
	if err != nil {
		return fmt.Errorf("discovery: start responder: %w", err)
	}
	a.logger.Info().
		Str(log.FieldEvent, "discovery.advertising").
		Str("instance", a.cfg.Instance).
		Int("port", a.cfg.Port).
		Strs("txt", a.cfg.TXT).
		Msg("advertising control API via mDNS")

	<-ctx.Done()
	if err := server.Shutdown(); err != nil {
		a.logger.Warn().Err(err).Msg("mDNS responder shutdown failed")
	}
	return nil
}

func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("discovery: list interfaces: %w", err)
	}
	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLinkLocalUnicast() {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
