// Package supervisor loads per-cluster config from the KV store, starts
// one (HealthProbe, Elector) pair per cluster as independent goroutines,
// and reports the first task exit so the daemon can shut down uniformly.
//
// Each cluster's tasks run as goroutines rather than child processes; the
// Supervisor learns of a task's exit through a fan-in completion channel
// fed by every task via defer, rather than by polling a child table.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/WillPlatnick/pgsentinel/pkg/auth"
	"github.com/WillPlatnick/pgsentinel/pkg/bus"
	"github.com/WillPlatnick/pgsentinel/pkg/cluster"
	"github.com/WillPlatnick/pgsentinel/pkg/elector"
	"github.com/WillPlatnick/pgsentinel/pkg/healthprobe"
	"github.com/WillPlatnick/pgsentinel/pkg/kv"
)

// ErrConfig wraps a failure that prevented the daemon from ever reaching
// a monitored state: the cluster list couldn't be read, no clusters
// configured, a cluster's KV config couldn't be loaded, its bus endpoint
// couldn't be reached, or its primary and standby coincide. Run only
// returns an ErrConfig-wrapped error for failures discovered during
// startup, before its monitoring loop; the same failure surfacing later
// through discoverNewClusters is logged and skipped instead, since other
// clusters are already running fine.
var ErrConfig = errors.New("supervisor: configuration error")

// Config carries the operational settings a Supervisor needs beyond the
// per-cluster tunables it reads out of the KV store.
type Config struct {
	Prefix       string
	LocalHost    string
	BusPassword  string
	SharedSecret string
	StatusAddr   string
	// PollInterval controls how often Run re-scans the KV store for
	// clusters configured after startup. Existing clusters are never
	// restarted by a rescan; only newly discovered names are started.
	PollInterval time.Duration
	Debug        bool
}

// TaskExit reports which task ended and why. A nil Err means the task's
// context was cancelled, not that it failed.
type TaskExit struct {
	Name string
	Err  error
}

// Supervisor owns one KV connection and fans out per-cluster tasks.
type Supervisor struct {
	cfg   Config
	store kv.Store
	log   *zap.SugaredLogger
	authn *auth.Authenticator

	mu       sync.RWMutex
	clusters map[string]*cluster.Cluster
	electors map[string]*elector.Elector

	httpServer *http.Server
}

// New builds a Supervisor over an already-connected KV store.
func New(cfg Config, store kv.Store, log *zap.SugaredLogger) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		store:    store,
		log:      log,
		authn:    auth.New(cfg.SharedSecret),
		clusters: make(map[string]*cluster.Cluster),
		electors: make(map[string]*elector.Elector),
	}
	s.setupHTTPServer()
	return s
}

// Run enumerates clusters, starts their tasks, and blocks until ctx is
// cancelled or any task exits, whichever comes first. On any task exit it
// cancels the remaining tasks and returns that task's error: if one task
// goes down, the whole daemon instance shuts down rather than running
// half-monitored.
func (s *Supervisor) Run(ctx context.Context) error {
	names, err := kv.ListClusters(ctx, s.store, s.cfg.Prefix)
	if err != nil {
		return fmt.Errorf("%w: list clusters: %v", ErrConfig, err)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: no clusters configured under %s", ErrConfig, s.cfg.Prefix)
	}

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitCh := make(chan TaskExit, len(names)*2)

	for _, name := range names {
		if err := s.startCluster(childCtx, name, exitCh); err != nil {
			return fmt.Errorf("%w: start cluster %s: %v", ErrConfig, name, err)
		}
	}

	go func() {
		s.log.Infow("status server listening", "addr", s.cfg.StatusAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("status server error", "error", err)
		}
	}()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	if s.cfg.PollInterval > 0 {
		ticker = time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case exit := <-exitCh:
			s.log.Errorw("task exited, shutting down all clusters", "task", exit.Name, "error", exit.Err)
			cancel()
			s.shutdown()
			return exit.Err
		case <-tickC:
			s.discoverNewClusters(childCtx, exitCh)
		}
	}
}

// discoverNewClusters re-lists the KV store and starts tasks for any
// cluster name not already running. Errors starting a newly discovered
// cluster are logged, not fatal, since existing clusters are unaffected.
func (s *Supervisor) discoverNewClusters(ctx context.Context, exitCh chan<- TaskExit) {
	names, err := kv.ListClusters(ctx, s.store, s.cfg.Prefix)
	if err != nil {
		s.log.Errorw("failed to re-list clusters", "error", err)
		return
	}

	for _, name := range names {
		s.mu.RLock()
		_, running := s.clusters[name]
		s.mu.RUnlock()
		if running {
			continue
		}
		if err := s.startCluster(ctx, name, exitCh); err != nil {
			s.log.Errorw("failed to start newly discovered cluster", "cluster", name, "error", err)
		}
	}
}

func (s *Supervisor) startCluster(ctx context.Context, name string, exitCh chan<- TaskExit) error {
	c, err := kv.LoadCluster(ctx, s.store, s.cfg.Prefix, name)
	if err != nil {
		return err
	}
	if c.Primary.IP == c.Standby.IP {
		return fmt.Errorf("primary and standby IPs coincide (%s)", c.Primary.IP)
	}

	b, err := bus.NewRedisBus(c.Config.SentinelName, s.cfg.BusPassword)
	if err != nil {
		return err
	}

	hp := healthprobe.New(c, b, s.cfg.LocalHost, s.log)
	el := elector.New(c, s.store, b, s.cfg.Prefix, s.cfg.LocalHost, s.log)

	s.mu.Lock()
	s.clusters[name] = c
	s.electors[name] = el
	s.mu.Unlock()

	s.log.Infow("cluster started", "cluster", name, "primary", c.Primary.Fqdn, "standby", c.Standby.Fqdn)

	go s.runTask(ctx, "healthprobe:"+name, hp.Run, exitCh)
	go s.runTask(ctx, "elector:"+name, el.Run, exitCh)

	return nil
}

func (s *Supervisor) runTask(ctx context.Context, name string, run func(context.Context) error, exitCh chan<- TaskExit) {
	err := run(ctx)
	exitCh <- TaskExit{Name: name, Err: err}
}

func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Errorw("failed to shut down status server", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.log.Errorw("failed to close KV store", "error", err)
	}
}

func (s *Supervisor) setupHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.authn.Middleware(s.handleStatus))

	s.httpServer = &http.Server{
		Addr:    s.cfg.StatusAddr,
		Handler: mux,
	}
}

func (s *Supervisor) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// clusterStatus is the JSON shape returned by /status: enough for an
// operator to see, per cluster, which Elector phase each local instance
// has reached.
type clusterStatus struct {
	Cluster string `json:"cluster"`
	Primary string `json:"primary"`
	Standby string `json:"standby"`
	State   string `json:"elector_state"`
}

func (s *Supervisor) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	statuses := make([]clusterStatus, 0, len(s.clusters))
	for name, c := range s.clusters {
		el := s.electors[name]
		statuses = append(statuses, clusterStatus{
			Cluster: name,
			Primary: c.Primary.Fqdn,
			Standby: c.Standby.Fqdn,
			State:   el.State().String(),
		})
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}
