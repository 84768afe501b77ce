package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewMeasuredClampsNegativeValues(t *testing.T) {
	now := time.Now()

	snap := NewMeasured("claude-session", UnitPercent, -5, now)
	remaining, ok := snap.Remaining()
	require.True(t, ok)
	require.Equal(t, 0, remaining)

	snap = NewMeasured("claude-session", UnitPercent, 73, now)
	remaining, ok = snap.Remaining()
	require.True(t, ok)
	require.Equal(t, 73, remaining)
}

func TestNewUnknownHasNoMeasurement(t *testing.T) {
	snap := NewUnknown("claude-session", UnitPercent, time.Now())
	_, ok := snap.Remaining()
	require.False(t, ok)
	require.Equal(t, BandUnknown, snap.Band())
}

func TestClassifyCoversEveryBoundary(t *testing.T) {
	cases := []struct {
		remaining int
		band      Band
	}{
		{0, BandDepleted},
		{1, BandCritical},
		{20, BandCritical},
		{21, BandWarning},
		{50, BandWarning},
		{51, BandHealthy},
		{100, BandHealthy},
	}
	for _, tc := range cases {
		require.Equal(t, tc.band, Classify(tc.remaining), "remaining %d", tc.remaining)
	}
}

func TestClassifyIsExhaustiveOverPercentRange(t *testing.T) {
	for p := 0; p <= 100; p++ {
		band := Classify(p)
		require.Contains(t, []Band{BandDepleted, BandCritical, BandWarning, BandHealthy}, band)
	}
}

func TestDisplayTextForPasses(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		snap Snapshot
		text string
	}{
		{"absent", NewUnknown("passes", UnitPasses, now), "Share a guest pass"},
		{"zero", NewMeasured("passes", UnitPasses, 0, now), "No passes left"},
		{"one", NewMeasured("passes", UnitPasses, 1, now), "1 pass left"},
		{"two", NewMeasured("passes", UnitPasses, 2, now), "2 passes left"},
		{"many", NewMeasured("passes", UnitPasses, 5, now), "5 passes left"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.text, tc.snap.DisplayText())
		})
	}
}

func TestDisplayTextForPercent(t *testing.T) {
	now := time.Now()
	require.Equal(t, "65% left", NewMeasured("s", UnitPercent, 65, now).DisplayText())
	require.Equal(t, "Available", NewUnknown("s", UnitPercent, now).DisplayText())
}

func TestEqualIsStructural(t *testing.T) {
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := NewMeasured("s", UnitPercent, 42, at)
	b := NewMeasured("s", UnitPercent, 42, at)
	require.True(t, a.Equal(b))

	require.False(t, a.Equal(NewMeasured("s", UnitPercent, 43, at)))
	require.False(t, a.Equal(NewMeasured("other", UnitPercent, 42, at)))
	require.False(t, a.Equal(a.WithShareURL("https://example.com/share")))
	require.False(t, a.Equal(NewUnknown("s", UnitPercent, at)))
}
