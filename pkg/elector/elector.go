// Package elector consumes a cluster's bus channel, aggregates peer votes,
// enforces quorum, validates standby viability, and drives promotion.
package elector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/WillPlatnick/pgsentinel/pkg/bus"
	"github.com/WillPlatnick/pgsentinel/pkg/cluster"
	"github.com/WillPlatnick/pgsentinel/pkg/kv"
	"github.com/WillPlatnick/pgsentinel/pkg/pgprobe"
	"github.com/WillPlatnick/pgsentinel/pkg/walpos"
)

// errDone signals a clean +NEWMASTER termination internally; Run turns it
// into a nil error.
var errDone = errors.New("elector: done")

// Elector drives the promotion protocol for a single cluster.
type Elector struct {
	cluster   *cluster.Cluster
	store     kv.Store
	bus       bus.Bus
	prefix    string
	localHost string
	log       *zap.SugaredLogger

	stateMu       sync.Mutex
	state         cluster.ElectorState
	votedSdown    *cluster.VoteSet
	votedSelect   *cluster.VoteSet
	lastKnownXlog walpos.Position

	publishedODown  bool
	publishedSelect bool
	promoting       bool

	standbyProbe  func(ctx context.Context, ep cluster.Endpoint, dbname string) (walpos.Position, error)
	createTrigger func(path string) error
}

// New builds an Elector for c, voting and publishing as localHost.
func New(c *cluster.Cluster, store kv.Store, b bus.Bus, prefix, localHost string, log *zap.SugaredLogger) *Elector {
	e := &Elector{
		cluster:     c,
		store:       store,
		bus:         b,
		prefix:      prefix,
		localHost:   localHost,
		log:         log,
		state:       cluster.Watching,
		votedSdown:  cluster.NewVoteSet(),
		votedSelect: cluster.NewVoteSet(),
	}
	e.standbyProbe = e.probeStandby
	e.createTrigger = createTriggerFile
	return e
}

// State returns the Elector's current tagged state. Safe to call
// concurrently with Run, which is what the status HTTP handler does.
func (e *Elector) State() cluster.ElectorState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// advanceState moves the Elector to next if that respects the state
// machine's strictly-forward ordering, and reports whether it did.
func (e *Elector) advanceState(next cluster.ElectorState) bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if !e.state.CanAdvanceTo(next) {
		return false
	}
	e.state = next
	return true
}

// Run subscribes to the cluster's channel and processes messages strictly
// in received order until +NEWMASTER is observed or ctx is cancelled.
func (e *Elector) Run(ctx context.Context) error {
	channel := bus.ChannelName(e.cluster.Name)
	sub, err := e.bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("elector: subscribe %s: %w", channel, err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			if err := e.handle(ctx, channel, msg); err != nil {
				if errors.Is(err, errDone) {
					return nil
				}
				return err
			}
		}
	}
}

func (e *Elector) handle(ctx context.Context, channel string, msg bus.Message) error {
	switch msg.Kind {
	case bus.KindSDownPlus:
		return e.handleSDownPlus(ctx, channel, msg)
	case bus.KindSDownMinus:
		e.votedSdown.Remove(msg.VoterHost)
		return nil
	case bus.KindODown:
		return e.handleODown(ctx, channel)
	case bus.KindSelect:
		return e.handleSelect(ctx, channel, msg)
	case bus.KindNewMaster:
		e.log.Infow("promotion complete, terminating", "cluster", e.cluster.Name)
		e.advanceState(cluster.Done)
		return errDone
	}
	return nil
}

// handleSDownPlus tallies a peer's +SDOWN vote and publishes +ODOWN once
// quorum is reached. publishedODown latches so at most one +ODOWN is ever
// published by this Elector, and votedSdown is never decremented for
// quorum purposes once that latch is set.
func (e *Elector) handleSDownPlus(ctx context.Context, channel string, msg bus.Message) error {
	e.votedSdown.Add(msg.VoterHost)

	if pos, err := walpos.Parse(msg.WalPos); err == nil {
		e.lastKnownXlog = walpos.Max(e.lastKnownXlog, pos)
	}

	if e.publishedODown || e.votedSdown.Len() < e.cluster.Config.Quorum {
		return nil
	}

	e.publishedODown = true
	if !e.advanceState(cluster.DeclaredODown) {
		return nil
	}

	return e.publish(ctx, channel, bus.Message{
		Kind:        bus.KindODown,
		PrimaryFqdn: e.cluster.Primary.Fqdn,
		VoterHost:   e.localHost,
	})
}

// handleODown fetches the standby, validates its viability, and publishes
// +SELECT on success. A failed viability check either stalls (lag too
// high) or exits fatally (malformed WAL).
func (e *Elector) handleODown(ctx context.Context, channel string) error {
	if e.publishedSelect {
		return nil
	}

	standby, err := kv.GetStandbyEndpoint(ctx, e.store, e.prefix, e.cluster.Name)
	if err != nil {
		return fmt.Errorf("elector: fetch standby for %s: %w", e.cluster.Name, err)
	}

	standbyWal, err := e.standbyProbe(ctx, standby, e.cluster.Config.DBName)
	if err != nil {
		if errors.Is(err, pgprobe.ErrMalformedPosition) {
			e.log.Errorw("standby returned malformed WAL position, exiting", "cluster", e.cluster.Name)
			return ErrMalformedStandbyWAL
		}
		return fmt.Errorf("elector: standby viability probe for %s: %w", e.cluster.Name, err)
	}

	lag := e.lastKnownXlog.Diff(standbyWal)
	if lag > e.cluster.Config.LocationLag {
		e.log.Warnw("standby lag exceeds threshold, stalling promotion",
			"cluster", e.cluster.Name, "lag", lag, "threshold", e.cluster.Config.LocationLag)
		return nil
	}

	e.publishedSelect = true
	e.advanceState(cluster.SelectedSelf)

	return e.publish(ctx, channel, bus.Message{
		Kind:          bus.KindSelect,
		CandidateFqdn: standby.Fqdn,
		VoterHost:     e.localHost,
	})
}

// handleSelect tallies a +SELECT vote naming this host as candidate.
// Promotion side-effects run only after quorum distinct +SELECT votes
// naming the local host, and only the standby's own Elector ever enters
// Promoting.
func (e *Elector) handleSelect(ctx context.Context, channel string, msg bus.Message) error {
	if msg.CandidateFqdn != e.localHost {
		return nil
	}
	e.votedSelect.Add(msg.VoterHost)

	if e.promoting || e.votedSelect.Len() < e.cluster.Config.Quorum {
		return nil
	}
	if e.localHost != e.cluster.Standby.Fqdn {
		return nil
	}
	e.promoting = true
	e.advanceState(cluster.Promoting)

	return e.promote(ctx, channel)
}

// promote runs the three promotion side-effects. Once Promoting is
// entered every step is attempted and failures are logged, not recovered;
// there is no rollback.
func (e *Elector) promote(ctx context.Context, channel string) error {
	e.log.Infow("promoting local host to primary", "cluster", e.cluster.Name)

	if err := e.createTrigger(e.cluster.Config.Trigger); err != nil {
		e.log.Errorw("failed to create trigger file", "cluster", e.cluster.Name, "error", err)
	}

	if err := kv.WriteMasterEndpoint(ctx, e.store, e.prefix, e.cluster.Name, e.cluster.Standby); err != nil {
		e.log.Errorw("failed to rewrite KV master endpoint", "cluster", e.cluster.Name, "error", err)
	} else {
		e.cluster.Promote()
	}

	if err := e.publish(ctx, channel, bus.Message{Kind: bus.KindNewMaster}); err != nil {
		e.log.Errorw("failed to publish +NEWMASTER", "cluster", e.cluster.Name, "error", err)
	}

	return nil
}

func (e *Elector) publish(ctx context.Context, channel string, msg bus.Message) error {
	if err := e.bus.Publish(ctx, channel, msg); err != nil {
		return fmt.Errorf("elector: publish %s on %s: %w", msg.Kind, channel, err)
	}
	return nil
}

func (e *Elector) probeStandby(ctx context.Context, ep cluster.Endpoint, dbname string) (walpos.Position, error) {
	return pgprobe.Probe(ctx, ep.IP, ep.Port, dbname, pgprobe.Standby)
}

func createTriggerFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
