package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/monitor"
	"github.com/avishj/quotamon/probe"
	"github.com/avishj/quotamon/quota"
	"github.com/avishj/quotamon/usage"
)

type stubProbe struct {
	snap quota.Snapshot
}

func (s *stubProbe) Available(ctx context.Context) bool { return true }

func (s *stubProbe) Collect(ctx context.Context) (quota.Snapshot, error) {
	return s.snap, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{ID: "claude-session", Driver: "stub", Interval: config.Duration{Duration: time.Minute}},
		},
	}
	factory := func(cfg config.SourceConfig, deps probe.Dependencies) (probe.Probe, error) {
		return &stubProbe{snap: quota.NewMeasured(cfg.ID, quota.UnitPercent, 65, time.Now())}, nil
	}
	mon, err := monitor.New(cfg, zerolog.Nop(), monitor.WithProbeFactory("stub", factory))
	require.NoError(t, err)
	require.NoError(t, mon.Refresh(context.Background(), "claude-session"))

	dir := t.TempDir()
	line := `{"timestamp":"2026-08-27T10:00:00Z","model":"opus","usage":{"input_tokens":1000000}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte(line+"\n"), 0o600))
	scanner, err := usage.NewScanner(config.UsageConfig{
		LogDir:  dir,
		Pricing: map[string]config.PricingConfig{"opus": {InputPerMTok: "15"}},
	})
	require.NoError(t, err)

	srv, err := New("127.0.0.1:0", mon, scanner, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/status", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Sources, 1)
	source := payload.Sources[0]
	require.Equal(t, "claude-session", source.ID)
	require.Equal(t, "healthy", source.Band)
	require.NotNil(t, source.Remaining)
	require.Equal(t, 65, *source.Remaining)
	require.Equal(t, "65% left", source.DisplayText)
}

func TestRefreshEndpointRejectsUnknownSource(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(fmt.Sprintf("http://%s/refresh?source=nope", srv.Addr()), "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRefreshEndpointAcceptsKnownSource(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(fmt.Sprintf("http://%s/refresh?source=claude-session", srv.Addr()), "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestUsageEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/usage", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload usageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, 1, payload.Records)
	require.Equal(t, "15.0000", payload.TotalCost)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
