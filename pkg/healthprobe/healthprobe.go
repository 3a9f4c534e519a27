// Package healthprobe runs a perpetual loop that opens a fresh connection
// to a cluster's primary, reads its WAL position, and publishes
// +SDOWN/-SDOWN transitions on the cluster's bus channel.
package healthprobe

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/WillPlatnick/pgsentinel/pkg/bus"
	"github.com/WillPlatnick/pgsentinel/pkg/cluster"
	"github.com/WillPlatnick/pgsentinel/pkg/pgprobe"
	"github.com/WillPlatnick/pgsentinel/pkg/walpos"
)

// probeFunc matches pgprobe.Probe's signature; tests substitute a fake.
type probeFunc func(ctx context.Context, host string, port int, dbname string, role pgprobe.Role) (walpos.Position, error)

// HealthProbe runs the probe loop for a single cluster.
type HealthProbe struct {
	cluster   *cluster.Cluster
	bus       bus.Bus
	localHost string
	log       *zap.SugaredLogger
	probe     probeFunc

	lastKnownXlog  walpos.Position
	failures       int
	sdownPublished bool
}

// New builds a HealthProbe for c, publishing on bus as localHost.
func New(c *cluster.Cluster, b bus.Bus, localHost string, log *zap.SugaredLogger) *HealthProbe {
	return &HealthProbe{
		cluster:   c,
		bus:       b,
		localHost: localHost,
		log:       log,
		probe:     pgprobe.Probe,
	}
}

// Run executes the perpetual probe loop until ctx is cancelled or a fatal
// condition (ErrNoBaseline) is reached.
func (h *HealthProbe) Run(ctx context.Context) error {
	channel := bus.ChannelName(h.cluster.Name)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		pos, err := h.probe(ctx, h.cluster.Primary.IP, h.cluster.Primary.Port, h.cluster.Config.DBName, pgprobe.Primary)
		if err != nil {
			if fatalErr := h.onFailure(ctx, channel); fatalErr != nil {
				return fatalErr
			}
			if !sleep(ctx, h.cluster.Config.IntervalFail) {
				return nil
			}
			continue
		}

		h.lastKnownXlog = walpos.Max(h.lastKnownXlog, pos)
		h.failures = 0

		if h.sdownPublished {
			h.sdownPublished = false
			if err := h.bus.Publish(ctx, channel, bus.Message{
				Kind:        bus.KindSDownMinus,
				PrimaryFqdn: h.cluster.Primary.Fqdn,
				VoterHost:   h.localHost,
			}); err != nil {
				h.log.Errorw("failed to publish -SDOWN", "cluster", h.cluster.Name, "error", err)
			}
		}

		if !sleep(ctx, h.cluster.Config.IntervalGood) {
			return nil
		}
	}
}

// onFailure accounts a failed probe attempt and publishes +SDOWN once
// retries is reached. It returns ErrNoBaseline if SDOWN would otherwise be
// published without ever having observed a valid WAL position.
func (h *HealthProbe) onFailure(ctx context.Context, channel string) error {
	h.failures++
	h.log.Debugw("primary probe failed", "cluster", h.cluster.Name, "failures", h.failures)

	if h.failures < h.cluster.Config.Retries || h.sdownPublished {
		return nil
	}

	if !h.lastKnownXlog.Valid() {
		h.log.Errorw("sdown threshold reached without any observed WAL position",
			"cluster", h.cluster.Name)
		return ErrNoBaseline
	}

	h.sdownPublished = true
	msg := bus.Message{
		Kind:        bus.KindSDownPlus,
		PrimaryFqdn: h.cluster.Primary.Fqdn,
		VoterHost:   h.localHost,
		WalPos:      h.lastKnownXlog.String(),
	}
	if err := h.bus.Publish(ctx, channel, msg); err != nil {
		h.log.Errorw("failed to publish +SDOWN", "cluster", h.cluster.Name, "error", err)
	}
	return nil
}

// sleep waits for d or ctx cancellation, returning false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
