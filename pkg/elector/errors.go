package elector

import "errors"

// ErrMalformedStandbyWAL is returned when the standby-viability check
// reads a WAL position that doesn't match the "<hex>/<hex>" grammar.
var ErrMalformedStandbyWAL = errors.New("elector: standby returned a malformed WAL position")
