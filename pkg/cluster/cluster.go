// Package cluster holds the data model shared by the HealthProbe, Elector
// and Supervisor: the monitored Cluster, its per-cluster Config, and the
// small state types the Elector's protocol advances through.
package cluster

import "time"

// Endpoint is a single reachable database instance.
type Endpoint struct {
	Fqdn string
	IP   string
	Port int
}

// Config holds the per-cluster tunables loaded from the KV store. The KV
// loader (kv.LoadCluster) fails a cluster's startup if Validate rejects
// it. Validate checks every field except LocationLag: a missing
// location_lag decodes to zero and is accepted as a zero-byte tolerance.
type Config struct {
	DBName       string
	Quorum       int
	Retries      int
	IntervalGood time.Duration
	IntervalFail time.Duration
	LocationLag  uint64
	Trigger      string
	SentinelName string
}

// Validate checks that every required field of Config carries a usable
// value.
func (c *Config) Validate() error {
	switch {
	case c.DBName == "":
		return errRequired("dbname")
	case c.Quorum < 1:
		return errRequired("quorum")
	case c.Retries < 1:
		return errRequired("retries")
	case c.IntervalGood <= 0:
		return errRequired("interval_good")
	case c.IntervalFail <= 0:
		return errRequired("interval_fail")
	case c.Trigger == "":
		return errRequired("trigger")
	case c.SentinelName == "":
		return errRequired("sentinel_name")
	}
	return nil
}

func errRequired(field string) error {
	return &ConfigError{Field: field}
}

// ConfigError names the missing or invalid Config field.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return "cluster: config field " + e.Field + " is required"
}

// Cluster is the unit of monitoring: a stable name, both endpoints, and
// the Config governing detection and promotion for it.
type Cluster struct {
	Name    string
	Primary Endpoint
	Standby Endpoint
	Config  Config
}

// Promote mutates the Cluster in place to reflect a completed promotion:
// the old standby becomes the primary. This is the only mutation a
// Cluster ever undergoes after creation.
func (c *Cluster) Promote() {
	c.Primary = c.Standby
}
