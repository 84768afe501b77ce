package probe

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseQuotaReport extracts labelled percentages from line oriented CLI
// output of the form "Session: 65% remaining". Lines that do not match are
// skipped, so a payload mixing quota windows with other information (reset
// times, headers) still parses. At least one recognised label is required;
// otherwise the report fails with ErrParseFailed.
func ParseQuotaReport(raw string) (map[string]int, error) {
	windows := make(map[string]int)
	for _, line := range strings.Split(raw, "\n") {
		label, percent, ok := parseQuotaLine(line)
		if !ok {
			continue
		}
		windows[label] = percent
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: no quota lines in output", ErrParseFailed)
	}
	return windows, nil
}

func parseQuotaLine(line string) (string, int, bool) {
	label, rest, found := strings.Cut(line, ":")
	if !found {
		return "", 0, false
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return "", 0, false
	}
	fields := strings.Fields(rest)
	for i, field := range fields {
		if !strings.HasSuffix(field, "%") {
			continue
		}
		if i+1 >= len(fields) || !strings.EqualFold(fields[i+1], "remaining") {
			continue
		}
		percent, err := strconv.Atoi(strings.TrimSuffix(field, "%"))
		if err != nil || percent < 0 {
			continue
		}
		return label, percent, true
	}
	return "", 0, false
}
