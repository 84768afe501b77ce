package probe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseQuotaReportExtractsAllWindows(t *testing.T) {
	raw := "Session: 65% remaining\nWeekly: 35% remaining\nResets: 11am"

	windows, err := ParseQuotaReport(raw)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"Session": 65, "Weekly": 35}, windows)
}

func TestParseQuotaReportToleratesPartialPayloads(t *testing.T) {
	raw := "garbage line\nSession: 12% remaining\nanother: thing"

	windows, err := ParseQuotaReport(raw)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"Session": 12}, windows)
}

func TestParseQuotaReportFailsWithoutRecognisedLabels(t *testing.T) {
	_, err := ParseQuotaReport("Invalid output")
	require.ErrorIs(t, err, ErrParseFailed)

	_, err = ParseQuotaReport("")
	require.ErrorIs(t, err, ErrParseFailed)
}

func TestParseQuotaReportIgnoresMalformedPercentages(t *testing.T) {
	cases := []string{
		"Session: -5% remaining",
		"Session: sixty% remaining",
		"Session: 65%",
		"Session 65% remaining",
		": 65% remaining",
	}
	for _, raw := range cases {
		_, err := ParseQuotaReport(raw)
		require.ErrorIs(t, err, ErrParseFailed, "payload %q", raw)
	}
}
