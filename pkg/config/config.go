// Package config holds the daemon-level settings pgsentineld needs before
// it can even reach the KV store: where the store lives, which host
// identity to vote and publish under, and where to serve status. Per-
// cluster tunables (quorum, retries, intervals, ...) live in
// pkg/cluster.Config and are loaded from the KV store itself, not from
// flags.
package config

import "time"

// Config is populated by cmd/pgsentineld's flag parsing, mirroring the
// flag-first, env-fallback-for-secrets style of the daemon this package
// was adapted from.
type Config struct {
	// KVEndpoints addresses the Consul cluster backing the KV store.
	KVEndpoints []string
	// KVToken authenticates against the KV store, if required.
	KVToken string
	// Prefix is the KV subtree clusters are configured under.
	Prefix string

	// LocalHost is this instance's voting identity; it must equal a
	// cluster's standby fqdn for that instance to ever promote.
	LocalHost string

	// BusPassword authenticates against the Redis pub/sub endpoint(s)
	// named by each cluster's sentinel_name/bus_endpoint.
	BusPassword string

	// StatusAddr is the address the operator-facing HTTP status server
	// listens on.
	StatusAddr string
	// SharedSecret authenticates requests to the status server's
	// protected endpoints. Empty disables authentication.
	SharedSecret string

	// PollInterval bounds how often the Supervisor re-scans the KV
	// store for newly configured clusters after startup.
	PollInterval time.Duration

	Debug bool
}

// Validate reports whether cfg has enough information to start.
func (c *Config) Validate() error {
	switch {
	case len(c.KVEndpoints) == 0:
		return errField("kv-endpoints")
	case c.Prefix == "":
		return errField("prefix")
	case c.LocalHost == "":
		return errField("local-host")
	case c.StatusAddr == "":
		return errField("status-addr")
	}
	return nil
}

func errField(name string) error {
	return &FieldError{Field: name}
}

// FieldError names a missing required config field.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return "config: " + e.Field + " is required"
}
