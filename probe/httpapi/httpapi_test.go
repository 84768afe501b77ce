package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/avishj/quotamon/config"
	"github.com/avishj/quotamon/probe"
	"github.com/avishj/quotamon/quota"
)

func newProbe(t *testing.T, cfg config.SourceConfig) probe.Probe {
	t.Helper()
	p, err := NewFactory()(cfg, probe.Dependencies{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return p
}

func TestCollectSelectsConfiguredWindow(t *testing.T) {
	var seenAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"five_hour":{"utilization":0.35},"seven_day":{"utilization":0.8}}`))
	}))
	defer srv.Close()

	p := newProbe(t, config.SourceConfig{
		ID:     "claude-api",
		Driver: config.DriverHTTP,
		URL:    srv.URL,
		Token:  "secret",
		Window: "seven_day",
	})

	snap, err := p.Collect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer secret", seenAuth)
	remaining, ok := snap.Remaining()
	require.True(t, ok)
	require.Equal(t, 20, remaining)
}

func TestCollectDefaultsToFiveHourWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"five_hour":{"utilization":0.35},"seven_day":{"utilization":0.8}}`))
	}))
	defer srv.Close()

	p := newProbe(t, config.SourceConfig{ID: "claude-api", Driver: config.DriverHTTP, URL: srv.URL})

	snap, err := p.Collect(context.Background())
	require.NoError(t, err)
	remaining, _ := snap.Remaining()
	require.Equal(t, 65, remaining)
}

func TestCollectReportsOverQuotaWindowAsDepleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"five_hour":{"utilization":1.1},"seven_day":{"utilization":0.2}}`))
	}))
	defer srv.Close()

	p := newProbe(t, config.SourceConfig{ID: "claude-api", Driver: config.DriverHTTP, URL: srv.URL})

	snap, err := p.Collect(context.Background())
	require.NoError(t, err)
	remaining, ok := snap.Remaining()
	require.True(t, ok)
	require.Equal(t, 0, remaining)
	require.Equal(t, quota.BandDepleted, snap.Band())
}

func TestCollectReportsServerErrorsAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newProbe(t, config.SourceConfig{ID: "claude-api", Driver: config.DriverHTTP, URL: srv.URL})

	_, err := p.Collect(context.Background())
	require.ErrorIs(t, err, probe.ErrUnavailable)
}

func TestCollectReportsBadPayloadAsParseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p := newProbe(t, config.SourceConfig{ID: "claude-api", Driver: config.DriverHTTP, URL: srv.URL})

	_, err := p.Collect(context.Background())
	require.ErrorIs(t, err, probe.ErrParseFailed)
}

func TestAvailableDependsOnTokenFile(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")

	p := newProbe(t, config.SourceConfig{
		ID:        "claude-api",
		Driver:    config.DriverHTTP,
		URL:       "https://api.example.com/usage",
		TokenFile: tokenPath,
	})
	require.False(t, p.Available(context.Background()))

	require.NoError(t, os.WriteFile(tokenPath, []byte("tok\n"), 0o600))
	require.True(t, p.Available(context.Background()))
}

func TestRemainingPercentClampsAndRounds(t *testing.T) {
	cases := []struct {
		utilization float64
		remaining   int
	}{
		{0, 100},
		{0.351, 65},
		{0.999, 0},
		{1, 0},
		{1.1, 0}, // over-quota reads as depleted, never as available
		{250, 0},
		{-0.5, 100},
	}
	for _, tc := range cases {
		require.Equal(t, tc.remaining, remainingPercent(tc.utilization), "utilization %v", tc.utilization)
	}
}
