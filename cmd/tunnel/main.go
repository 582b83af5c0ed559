package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"go.tunnelbridge/internal/config"
	"go.tunnelbridge/internal/discovery"
	"go.tunnelbridge/internal/localbus/simulated"
	"go.tunnelbridge/internal/logging"
	"go.tunnelbridge/internal/servicekey"
	"go.tunnelbridge/internal/tunnel"
	"go.tunnelbridge/internal/wire"
)

func main() {
	logger := logging.FromEnv("[tunnel]")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"nats_url", cfg.NatsURL,
		"discovery_topic", cfg.DiscoveryTopic,
		"max_drain_per_cycle", cfg.MaxDrainPerCycle,
		"poll_interval_ms", cfg.PollIntervalMS,
		"advertise", cfg.Advertise,
		"instance", cfg.Instance,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := simulated.New()

	wireConn, err := wire.Connect(ctx, wire.Config{
		URL:         cfg.NatsURL,
		InstanceID:  uuid.New(),
		ConnectName: cfg.Instance,
	}, servicekey.DetailsKVBucket)
	if err != nil {
		logger.Error("failed to connect to wire", "error", err)
		os.Exit(1)
	}

	var localDiscovery discovery.Port
	var mdnsRelay *discovery.MDNSRelay
	if cfg.DiscoveryTopic != "" {
		daemon, err := discovery.NewDaemon(bus, cfg.DiscoveryTopic)
		if err != nil {
			logger.Error("failed to start discovery daemon source", "error", err)
			os.Exit(1)
		}
		localDiscovery = daemon
		defer daemon.Close()
	} else {
		localDiscovery = discovery.NewTracker(bus)
	}

	if cfg.Advertise {
		topic := cfg.DiscoveryTopic
		if topic == "" {
			topic = discovery.WellKnownTopic
		}
		mdnsRelay = discovery.NewMDNSRelay(bus, topic)
		if err := mdnsRelay.Start(ctx); err != nil {
			logger.Warn("failed to start mdns relay", "error", err)
			mdnsRelay = nil
		} else {
			defer mdnsRelay.Stop()
		}
	}

	t, err := tunnel.New(bus, wireConn, localDiscovery, tunnel.Config{
		MaxDrainPerCycle: cfg.MaxDrainPerCycle,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to construct tunnel", "error", err)
		os.Exit(1)
	}
	defer t.Close()

	logger.Info("tunnel running", "poll_interval_ms", cfg.PollIntervalMS)
	runLoop(ctx, logger, t, time.Duration(cfg.PollIntervalMS)*time.Millisecond)
	logger.Info("tunnel stopped")
}

func runLoop(ctx context.Context, logger *log.Logger, t *tunnel.Tunnel, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	summary := time.NewTicker(30 * time.Second)
	defer summary.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Discover(ctx, tunnel.ScopeBoth); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("discovery cycle error", "error", err)
				}
			}
			t.Propagate()
		case <-summary.C:
			logger.Info("tunnel heartbeat",
				"tunneled_services", len(t.TunneledServices()),
				"propagation_failures", t.FailureCount(),
				"discovery_failures", t.DiscoveryFailureCount(),
			)
		}
	}
}
