package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/WillPlatnick/pgsentinel/pkg/cluster"
)

// DefaultPrefix is the KV subtree pgsentinel reads and writes under when
// no other prefix is configured.
const DefaultPrefix = "key/prod/postgres"

// rawConfig mirrors the JSON object stored at <prefix>/<cluster>/config.
// bus_endpoint is a legacy field name; it decodes into SentinelName when
// sentinel_name itself is absent.
type rawConfig struct {
	DBName       string `json:"dbname"`
	Quorum       int    `json:"quorum"`
	Retries      int    `json:"retries"`
	IntervalGood int    `json:"interval_good"`
	IntervalFail int    `json:"interval_fail"`
	LocationLag  uint64 `json:"location_lag"`
	Trigger      string `json:"trigger"`
	SentinelName string `json:"sentinel_name"`
	BusEndpoint  string `json:"bus_endpoint"`
}

// ListClusters returns every cluster name found under prefix, recovered
// from the 4th path segment of each key.
func ListClusters(ctx context.Context, store Store, prefix string) ([]string, error) {
	pairs, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, p := range pairs {
		segs := strings.Split(strings.Trim(p.Key, "/"), "/")
		if len(segs) < 4 {
			continue
		}
		name := segs[3]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// LoadCluster fetches Config and both endpoints for name and assembles a
// cluster.Cluster ready for the HealthProbe and Elector.
func LoadCluster(ctx context.Context, store Store, prefix, name string) (*cluster.Cluster, error) {
	cfg, err := loadConfig(ctx, store, prefix, name)
	if err != nil {
		return nil, err
	}

	primary, err := loadEndpoint(ctx, store, prefix, name, "master")
	if err != nil {
		return nil, err
	}
	standby, err := loadEndpoint(ctx, store, prefix, name, "slave")
	if err != nil {
		return nil, err
	}

	return &cluster.Cluster{
		Name:    name,
		Primary: primary,
		Standby: standby,
		Config:  cfg,
	}, nil
}

func loadConfig(ctx context.Context, store Store, prefix, name string) (cluster.Config, error) {
	key := path.Join(prefix, name, "config")
	pair, err := store.Get(ctx, key)
	if err != nil {
		return cluster.Config{}, fmt.Errorf("kv: load config for %s: %w", name, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(pair.Value, &raw); err != nil {
		return cluster.Config{}, fmt.Errorf("kv: decode config for %s: %w", name, err)
	}

	sentinelName := raw.SentinelName
	if sentinelName == "" {
		sentinelName = raw.BusEndpoint
	}

	cfg := cluster.Config{
		DBName:       raw.DBName,
		Quorum:       raw.Quorum,
		Retries:      raw.Retries,
		IntervalGood: secondsToDuration(raw.IntervalGood),
		IntervalFail: secondsToDuration(raw.IntervalFail),
		LocationLag:  raw.LocationLag,
		Trigger:      raw.Trigger,
		SentinelName: sentinelName,
	}
	if err := cfg.Validate(); err != nil {
		return cluster.Config{}, fmt.Errorf("kv: config for %s: %w", name, err)
	}
	return cfg, nil
}

func loadEndpoint(ctx context.Context, store Store, prefix, name, role string) (cluster.Endpoint, error) {
	base := path.Join(prefix, name, role)

	fqdn, err := getString(ctx, store, path.Join(base, "fqdn"))
	if err != nil {
		return cluster.Endpoint{}, err
	}
	ip, err := getString(ctx, store, path.Join(base, "ip"))
	if err != nil {
		return cluster.Endpoint{}, err
	}
	portStr, err := getString(ctx, store, path.Join(base, "port"))
	if err != nil {
		return cluster.Endpoint{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return cluster.Endpoint{}, fmt.Errorf("kv: %s port %q: %w", base, portStr, err)
	}

	return cluster.Endpoint{Fqdn: fqdn, IP: ip, Port: port}, nil
}

func getString(ctx context.Context, store Store, key string) (string, error) {
	pair, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("kv: get %s: %w", key, err)
	}
	return string(pair.Value), nil
}

// GetStandbyEndpoint re-reads <prefix>/<cluster>/slave, used by the
// Elector's +ODOWN handler to fetch the current standby fresh rather than
// relying on a cached Cluster value.
func GetStandbyEndpoint(ctx context.Context, store Store, prefix, name string) (cluster.Endpoint, error) {
	return loadEndpoint(ctx, store, prefix, name, "slave")
}

// WriteMasterEndpoint rewrites <prefix>/<cluster>/master to ep, the
// KV-side effect of a completed promotion.
func WriteMasterEndpoint(ctx context.Context, store Store, prefix, name string, ep cluster.Endpoint) error {
	base := path.Join(prefix, name, "master")
	if err := store.Put(ctx, path.Join(base, "fqdn"), []byte(ep.Fqdn)); err != nil {
		return err
	}
	if err := store.Put(ctx, path.Join(base, "ip"), []byte(ep.IP)); err != nil {
		return err
	}
	return store.Put(ctx, path.Join(base, "port"), []byte(strconv.Itoa(ep.Port)))
}

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
