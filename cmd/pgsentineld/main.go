// Command pgsentineld runs one failover-coordinator instance. It loads
// per-cluster configuration from a Consul-backed KV store, starts a
// HealthProbe and Elector per cluster, and exits with a code that
// distinguishes a bad configuration from a task that died mid-run.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/WillPlatnick/pgsentinel/pkg/config"
	"github.com/WillPlatnick/pgsentinel/pkg/elector"
	"github.com/WillPlatnick/pgsentinel/pkg/healthprobe"
	"github.com/WillPlatnick/pgsentinel/pkg/kv"
	"github.com/WillPlatnick/pgsentinel/pkg/logging"
	"github.com/WillPlatnick/pgsentinel/pkg/supervisor"
)

// exit codes:
//
//	0 clean shutdown (signal received, or a task ended cleanly, e.g. an
//	  Elector after +NEWMASTER)
//	1 the daemon never reached a monitored state (a required setting
//	  missing, KV store unreachable or unlistable, no clusters configured,
//	  a cluster's config or IPs invalid); an unknown or unparsable flag
//	  makes flag.Parse exit 2 instead
//	3 a running HealthProbe or Elector task exited unexpectedly
//	4 healthprobe.ErrNoBaseline: SDOWN threshold reached with no WAL baseline
//	5 elector.ErrMalformedStandbyWAL: standby answered with a garbled WAL position

const (
	exitOK               = 0
	exitConfigError      = 1
	exitChildExited      = 3
	exitNoBaseline       = 4
	exitMalformedStandby = 5
)

func main() {
	cfg := &config.Config{}
	var kvEndpointsStr string

	flag.StringVar(&kvEndpointsStr, "kv-endpoints", "127.0.0.1:8500", "Comma-separated Consul KV endpoints")
	flag.StringVar(&cfg.KVToken, "kv-token", os.Getenv("PGSENTINEL_CONSUL_TOKEN"), "Consul ACL token (or use PGSENTINEL_CONSUL_TOKEN env)")
	flag.StringVar(&cfg.Prefix, "prefix", kv.DefaultPrefix, "KV subtree clusters are configured under")
	flag.StringVar(&cfg.LocalHost, "local-host", "", "This instance's voting identity (usually its hostname)")
	flag.StringVar(&cfg.BusPassword, "bus-password", os.Getenv("PGSENTINEL_BUS_PASSWORD"), "Password for the Redis pub/sub bus (or use PGSENTINEL_BUS_PASSWORD env)")
	flag.StringVar(&cfg.StatusAddr, "status-addr", ":8090", "Address the status HTTP server listens on")
	flag.StringVar(&cfg.SharedSecret, "shared-secret", os.Getenv("PGSENTINEL_SHARED_SECRET"), "Shared secret protecting the status endpoint")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", 30*time.Second, "How often to re-scan the KV store for new clusters")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg.KVEndpoints = strings.Split(kvEndpointsStr, ",")

	log := logging.New(cfg.Debug)
	defer log.Sync()

	if cfg.LocalHost == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.LocalHost = h
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Errorw("invalid configuration", "error", err)
		os.Exit(exitConfigError)
	}

	log.Infow("starting pgsentineld",
		"localHost", cfg.LocalHost,
		"prefix", cfg.Prefix,
		"kvEndpoints", cfg.KVEndpoints)

	store, err := kv.New(cfg.KVEndpoints, cfg.KVToken)
	if err != nil {
		log.Errorw("failed to connect to KV store", "error", err)
		os.Exit(exitConfigError)
	}

	sup := supervisor.New(supervisor.Config{
		Prefix:       cfg.Prefix,
		LocalHost:    cfg.LocalHost,
		BusPassword:  cfg.BusPassword,
		SharedSecret: cfg.SharedSecret,
		StatusAddr:   cfg.StatusAddr,
		PollInterval: cfg.PollInterval,
		Debug:        cfg.Debug,
	}, store, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Infow("received signal, shutting down", "signal", sig)
		cancel()
	}()

	err = sup.Run(ctx)
	switch {
	case err == nil:
		log.Info("shutdown complete")
		os.Exit(exitOK)
	case errors.Is(err, healthprobe.ErrNoBaseline):
		os.Exit(exitNoBaseline)
	case errors.Is(err, elector.ErrMalformedStandbyWAL):
		os.Exit(exitMalformedStandby)
	case errors.Is(err, supervisor.ErrConfig):
		log.Errorw("supervisor failed to start", "error", err)
		os.Exit(exitConfigError)
	default:
		log.Errorw("supervisor exited", "error", err)
		os.Exit(exitChildExited)
	}
}
