// Package usage reads locally recorded usage logs and computes exact spend
// figures from a per-model pricing table.
package usage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avishj/quotamon/config"
)

// TokenUsage carries the token counts of one recorded request.
type TokenUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// Record is a single usage entry from a JSONL log line.
type Record struct {
	Timestamp time.Time  `json:"timestamp"`
	Model     string     `json:"model"`
	Usage     TokenUsage `json:"usage"`
}

// Pricing holds per-million-token prices. Decimal arithmetic keeps the cost
// exact; float rounding would drift over thousands of records.
type Pricing struct {
	Input      decimal.Decimal
	Output     decimal.Decimal
	CacheRead  decimal.Decimal
	CacheWrite decimal.Decimal
}

var million = decimal.NewFromInt(1_000_000)

// ParsePricing converts the configured price strings into decimals. Empty
// fields price at zero.
func ParsePricing(cfg config.PricingConfig) (Pricing, error) {
	var pricing Pricing
	var err error
	if pricing.Input, err = parsePrice(cfg.InputPerMTok); err != nil {
		return Pricing{}, fmt.Errorf("input price: %w", err)
	}
	if pricing.Output, err = parsePrice(cfg.OutputPerMTok); err != nil {
		return Pricing{}, fmt.Errorf("output price: %w", err)
	}
	if pricing.CacheRead, err = parsePrice(cfg.CacheReadPerMTok); err != nil {
		return Pricing{}, fmt.Errorf("cache read price: %w", err)
	}
	if pricing.CacheWrite, err = parsePrice(cfg.CacheWritePerMTok); err != nil {
		return Pricing{}, fmt.Errorf("cache write price: %w", err)
	}
	return pricing, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if price.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("price %s must not be negative", raw)
	}
	return price, nil
}

// Cost computes the exact cost of the given token counts.
func (p Pricing) Cost(u TokenUsage) decimal.Decimal {
	cost := p.Input.Mul(decimal.NewFromInt(u.InputTokens))
	cost = cost.Add(p.Output.Mul(decimal.NewFromInt(u.OutputTokens)))
	cost = cost.Add(p.CacheRead.Mul(decimal.NewFromInt(u.CacheReadInputTokens)))
	cost = cost.Add(p.CacheWrite.Mul(decimal.NewFromInt(u.CacheCreationInputTokens)))
	return cost.Div(million)
}

// ScanRecords decodes JSONL usage records from the reader. Malformed lines
// are skipped so a log file being appended to mid-line still scans.
func ScanRecords(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			continue
		}
		if record.Model == "" {
			continue
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan usage records: %w", err)
	}
	return records, nil
}

// Summary aggregates cost over a set of records.
type Summary struct {
	Records   int
	TotalCost decimal.Decimal
	ByModel   map[string]decimal.Decimal
}

// Summarize prices every record. Models without a pricing entry contribute
// zero cost but still count.
func Summarize(records []Record, pricing map[string]Pricing) Summary {
	summary := Summary{
		TotalCost: decimal.Zero,
		ByModel:   make(map[string]decimal.Decimal),
	}
	for _, record := range records {
		summary.Records++
		price, ok := pricing[record.Model]
		if !ok {
			continue
		}
		cost := price.Cost(record.Usage)
		summary.TotalCost = summary.TotalCost.Add(cost)
		existing, ok := summary.ByModel[record.Model]
		if !ok {
			existing = decimal.Zero
		}
		summary.ByModel[record.Model] = existing.Add(cost)
	}
	return summary
}

// Scanner walks a log directory and summarises all JSONL files in it.
type Scanner struct {
	dir     string
	pricing map[string]Pricing
}

// NewScanner builds a scanner from the usage configuration. A scanner is only
// available when a log directory is configured.
func NewScanner(cfg config.UsageConfig) (*Scanner, error) {
	if cfg.LogDir == "" {
		return nil, nil
	}
	pricing := make(map[string]Pricing, len(cfg.Pricing))
	for model, priceCfg := range cfg.Pricing {
		price, err := ParsePricing(priceCfg)
		if err != nil {
			return nil, fmt.Errorf("pricing for %s: %w", model, err)
		}
		pricing[model] = price
	}
	return &Scanner{dir: cfg.LogDir, pricing: pricing}, nil
}

// Summarize scans every .jsonl file below the log directory.
func (s *Scanner) Summarize() (Summary, error) {
	var records []Record
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		fileRecords, err := ScanRecords(file)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		records = append(records, fileRecords...)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return Summarize(records, s.pricing), nil
}
