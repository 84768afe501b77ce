package usage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/avishj/quotamon/config"
)

func TestScanRecordsSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`{"timestamp":"2026-08-27T10:00:00Z","model":"opus","usage":{"input_tokens":1000,"output_tokens":500}}`,
		`{"broken`,
		``,
		`{"timestamp":"2026-08-27T11:00:00Z","model":"sonnet","usage":{"input_tokens":2000}}`,
	}, "\n")

	records, err := ScanRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "opus", records[0].Model)
	require.Equal(t, int64(500), records[0].Usage.OutputTokens)
}

func TestParsePricing(t *testing.T) {
	pricing, err := ParsePricing(config.PricingConfig{
		InputPerMTok:  "15",
		OutputPerMTok: "75",
	})
	require.NoError(t, err)
	require.True(t, pricing.Input.Equal(decimal.NewFromInt(15)))
	require.True(t, pricing.CacheRead.IsZero())

	_, err = ParsePricing(config.PricingConfig{InputPerMTok: "cheap"})
	require.Error(t, err)

	_, err = ParsePricing(config.PricingConfig{InputPerMTok: "-3"})
	require.Error(t, err)
}

func TestCostIsExact(t *testing.T) {
	pricing, err := ParsePricing(config.PricingConfig{
		InputPerMTok:  "3",
		OutputPerMTok: "15",
	})
	require.NoError(t, err)

	cost := pricing.Cost(TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000})
	// 3 + 1.5
	require.True(t, cost.Equal(decimal.RequireFromString("4.5")), "got %s", cost)
}

func TestSummarizeAggregatesByModel(t *testing.T) {
	pricing := map[string]Pricing{
		"opus": mustPricing(t, "15", "75"),
	}
	records := []Record{
		{Model: "opus", Usage: TokenUsage{InputTokens: 1_000_000}},
		{Model: "opus", Usage: TokenUsage{OutputTokens: 1_000_000}},
		{Model: "unpriced", Usage: TokenUsage{InputTokens: 1_000_000}},
	}

	summary := Summarize(records, pricing)
	require.Equal(t, 3, summary.Records)
	require.True(t, summary.TotalCost.Equal(decimal.NewFromInt(90)), "got %s", summary.TotalCost)
	require.True(t, summary.ByModel["opus"].Equal(decimal.NewFromInt(90)))
	_, priced := summary.ByModel["unpriced"]
	require.False(t, priced)
}

func TestScannerWalksDirectory(t *testing.T) {
	dir := t.TempDir()
	line := `{"timestamp":"2026-08-27T10:00:00Z","model":"opus","usage":{"input_tokens":1000000}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte(line+"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(line+"\n"), 0o600))

	scanner, err := NewScanner(config.UsageConfig{
		LogDir: dir,
		Pricing: map[string]config.PricingConfig{
			"opus": {InputPerMTok: "15"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, scanner)

	summary, err := scanner.Summarize()
	require.NoError(t, err)
	require.Equal(t, 1, summary.Records)
	require.True(t, summary.TotalCost.Equal(decimal.NewFromInt(15)), "got %s", summary.TotalCost)
}

func TestNewScannerWithoutLogDir(t *testing.T) {
	scanner, err := NewScanner(config.UsageConfig{})
	require.NoError(t, err)
	require.Nil(t, scanner)
}

func mustPricing(t *testing.T, input, output string) Pricing {
	t.Helper()
	pricing, err := ParsePricing(config.PricingConfig{InputPerMTok: input, OutputPerMTok: output})
	require.NoError(t, err)
	return pricing
}
