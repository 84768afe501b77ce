package probe

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/quota"
)

// Terminal failure kinds a probe may report. Probes return a snapshot or an
// error, never a sentinel-filled snapshot.
var (
	// ErrSourceMissing means the backing resource could not be located at
	// all, for example a CLI binary that is not installed.
	ErrSourceMissing = errors.New("probe: source missing")
	// ErrUnavailable means the resource exists but the fetch did not
	// complete, for example a timeout or a non-zero exit.
	ErrUnavailable = errors.New("probe: source unavailable")
	// ErrParseFailed means the resource responded but its payload could not
	// be interpreted into a snapshot.
	ErrParseFailed = errors.New("probe: parse failed")
)

// Probe adapts one external data source into the monitoring runtime.
//
// Available reports whether the underlying source can currently be reached.
// It must not fail; on internal uncertainty implementations return false.
// Collect performs the actual fetch and parse. Both calls may block on I/O
// and honour context cancellation; callers supply their own timeout policy.
// Implementations are stateless per call unless documented otherwise.
type Probe interface {
	Available(ctx context.Context) bool
	Collect(ctx context.Context) (quota.Snapshot, error)
}

// Dependencies are handed to probe factories at construction time.
//
// Runner and HTTPClient default to real implementations when nil; tests
// substitute stubs and assert on resulting state only.
type Dependencies struct {
	Logger     zerolog.Logger
	Runner     Runner
	HTTPClient *http.Client
}

// Factory constructs a Probe from its source configuration. Factories allow
// different transport implementations to be wired into the monitor without
// coupling it to concrete types.
type Factory func(cfg config.SourceConfig, deps Dependencies) (Probe, error)
