// Package pgprobe opens a fresh PostgreSQL connection per call and reads
// a single WAL position, using the same fresh-connection, context-bounded
// pattern against lib/pq that the rest of this daemon uses for one-shot
// database reads.
package pgprobe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/WillPlatnick/pgsentinel/pkg/walpos"
)

// ErrMalformedPosition wraps a walpos parse failure so callers can
// distinguish "the peer answered with garbage" from a connection or query
// failure.
var ErrMalformedPosition = errors.New("pgprobe: WAL position did not match <hex>/<hex>")

// Deadline is the hard per-attempt bound placed on every probe: connect,
// query, and read must all complete within it.
const Deadline = 5 * time.Second

// Role selects which WAL function to query.
type Role int

const (
	Primary Role = iota
	Standby
)

func (r Role) query() string {
	if r == Primary {
		return "select pg_current_wal_lsn()"
	}
	return "select pg_last_wal_receive_lsn()"
}

// Probe opens dbname on host:port, runs the WAL-position query for role,
// and parses the result. The connection is closed before Probe returns.
func Probe(ctx context.Context, host string, port int, dbname string, role Role) (walpos.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, Deadline)
	defer cancel()

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=disable connect_timeout=5", host, port, dbname)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return walpos.Position{}, fmt.Errorf("pgprobe: open %s:%d: %w", host, port, err)
	}
	defer db.Close()

	var raw string
	row := db.QueryRowContext(ctx, role.query())
	if err := row.Scan(&raw); err != nil {
		return walpos.Position{}, fmt.Errorf("pgprobe: query %s:%d: %w", host, port, err)
	}

	pos, err := walpos.Parse(raw)
	if err != nil {
		return walpos.Position{}, fmt.Errorf("%w: %q", ErrMalformedPosition, raw)
	}
	return pos, nil
}
