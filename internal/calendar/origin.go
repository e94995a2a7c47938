package calendar

import (
	"regexp"
	"strings"

	"github.com/stayledger/backend/internal/storage/models"
)

// OriginStrategy holds the provider-specific heuristics of one origin:
// where its booking code hides in the free text and how it marks blocks.
// Extraction is best effort; the normalizer falls back to the feed UID.
type OriginStrategy interface {
	// ReservationID extracts the booking code from the entry, if any.
	ReservationID(entry RawEntry) (string, bool)
	// Status classifies the entry as reserved or blocked.
	Status(entry RawEntry) models.EventStatus
}

// BlockedKeywords mark an entry as blocked when found (case-insensitive)
// in its summary or description.
var BlockedKeywords = []string{
	"blocked",
	"unavailable",
	"not available",
	"maintenance",
	"closed",
}

// PatternStrategy matches a booking code with a regular expression and
// classifies status by keyword. When the pattern has a capture group the
// first group is the code, otherwise the whole match is.
type PatternStrategy struct {
	Pattern  *regexp.Regexp
	Keywords []string
}

// ReservationID implements OriginStrategy.
func (s PatternStrategy) ReservationID(entry RawEntry) (string, bool) {
	if s.Pattern == nil {
		return "", false
	}
	for _, text := range []string{entry.Summary, entry.Description} {
		m := s.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 && m[1] != "" {
			return m[1], true
		}
		return m[0], true
	}
	return "", false
}

// Status implements OriginStrategy.
func (s PatternStrategy) Status(entry RawEntry) models.EventStatus {
	keywords := s.Keywords
	if keywords == nil {
		keywords = BlockedKeywords
	}

	text := strings.ToLower(entry.Text())
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return models.EventStatusBlocked
		}
	}
	return models.EventStatusReserved
}

// Strategies registers the strategy of each feed origin. Origins missing
// here use GenericStrategy.
var Strategies = map[models.Origin]OriginStrategy{
	// Confirmation codes such as HMABCD1234, usually inside the
	// reservation URL of the description.
	models.OriginAirbnb: PatternStrategy{Pattern: regexp.MustCompile(`\bHM[A-Z0-9]{8}\b`)},
	// Reservation ids such as HA-7KX2QP.
	models.OriginVrbo: PatternStrategy{Pattern: regexp.MustCompile(`\bHA-[A-Z0-9]{6,}\b`)},
	// Numeric reservation numbers, only present when the feed was
	// exported with guest details.
	models.OriginBooking: PatternStrategy{Pattern: regexp.MustCompile(`(?i)reservation(?:\s+(?:number|id))?[:#\s]+(\d{9,10})\b`)},
}

// GenericStrategy extracts nothing and classifies by keyword only.
var GenericStrategy OriginStrategy = PatternStrategy{}

// StrategyFor returns the strategy registered for origin.
func StrategyFor(strategies map[models.Origin]OriginStrategy, origin models.Origin) OriginStrategy {
	if s, ok := strategies[origin]; ok && s != nil {
		return s
	}
	return GenericStrategy
}
