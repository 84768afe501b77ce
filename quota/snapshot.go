package quota

import (
	"fmt"
	"time"
)

// Unit describes what kind of quantity a snapshot measures.
type Unit string

const (
	// UnitPercent represents a percentage of quota remaining.
	UnitPercent Unit = "percent"
	// UnitPasses represents a count of remaining guest passes.
	UnitPasses Unit = "passes"
)

// Band is a classification bucket derived from a remaining measurement.
type Band string

const (
	// BandUnknown is reported when no measurement is available. Missing data
	// is treated as "assume available" rather than as depletion.
	BandUnknown Band = "unknown"
	// BandDepleted means nothing is left.
	BandDepleted Band = "depleted"
	// BandCritical covers measurements in (0,20].
	BandCritical Band = "critical"
	// BandWarning covers measurements in (20,50].
	BandWarning Band = "warning"
	// BandHealthy covers measurements above 50.
	BandHealthy Band = "healthy"
)

// Snapshot is an immutable record of a measured quantity for one source at a
// point in time. All derived properties are pure functions of the stored
// fields; a snapshot never performs I/O and is never mutated after
// construction.
type Snapshot struct {
	source     string
	unit       Unit
	remaining  int
	measured   bool
	shareURL   string
	capturedAt time.Time
}

// NewUnknown constructs a snapshot without a measurement. Readers classify it
// as BandUnknown.
func NewUnknown(source string, unit Unit, capturedAt time.Time) Snapshot {
	return Snapshot{source: source, unit: unit, capturedAt: capturedAt}
}

// NewMeasured constructs a snapshot with a concrete measurement. Negative
// values are clamped to zero; no upper bound is applied.
func NewMeasured(source string, unit Unit, remaining int, capturedAt time.Time) Snapshot {
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		source:     source,
		unit:       unit,
		remaining:  remaining,
		measured:   true,
		capturedAt: capturedAt,
	}
}

// WithShareURL returns a copy of the snapshot carrying the given reference
// URL.
func (s Snapshot) WithShareURL(url string) Snapshot {
	s.shareURL = url
	return s
}

// Source returns the identifier of the source the snapshot belongs to.
func (s Snapshot) Source() string { return s.source }

// Unit returns the measured quantity kind.
func (s Snapshot) Unit() Unit { return s.unit }

// Remaining returns the stored measurement. The boolean reports whether a
// measurement is present at all.
func (s Snapshot) Remaining() (int, bool) { return s.remaining, s.measured }

// ShareURL returns the fixed reference URL attached to the snapshot, if any.
func (s Snapshot) ShareURL() string { return s.shareURL }

// CapturedAt returns the time the measurement was taken.
func (s Snapshot) CapturedAt() time.Time { return s.capturedAt }

// Band classifies the measurement into an ordered set of bands. An absent
// measurement maps to BandUnknown, never to BandDepleted.
func (s Snapshot) Band() Band {
	if !s.measured {
		return BandUnknown
	}
	return Classify(s.remaining)
}

// Classify maps a non-negative measurement to its band. Values are expected
// to be pre-clamped; anything below zero is treated as depleted.
func Classify(remaining int) Band {
	switch {
	case remaining <= 0:
		return BandDepleted
	case remaining <= 20:
		return BandCritical
	case remaining <= 50:
		return BandWarning
	default:
		return BandHealthy
	}
}

// DisplayText renders a short human readable description of the snapshot.
//
// For pass counts the 0/1/many phrasing is significant: zero reads "No passes
// left", exactly one reads "1 pass left" and anything above uses the plural
// form. An absent count falls back to the generic share prompt.
func (s Snapshot) DisplayText() string {
	switch s.unit {
	case UnitPasses:
		if !s.measured {
			return "Share a guest pass"
		}
		switch s.remaining {
		case 0:
			return "No passes left"
		case 1:
			return "1 pass left"
		default:
			return fmt.Sprintf("%d passes left", s.remaining)
		}
	default:
		if !s.measured {
			return "Available"
		}
		return fmt.Sprintf("%d%% left", s.remaining)
	}
}

// Equal reports structural equality: every stored field must match.
func (s Snapshot) Equal(other Snapshot) bool {
	return s == other
}
