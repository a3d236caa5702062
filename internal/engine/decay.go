package engine

import (
	"fmt"
	"math"
	"time"
)

// Categories in this set never decay, whatever the record's age.
var permanentCategories = map[string]bool{
	"fact":         true,
	"preference":   true,
	"relationship": true,
	"routine":      true,
	"event":        true,
}

// categoryHalfLives gives the decay half-life in days for non-permanent
// categories. Slow-decay facets persist for a season, situational context
// fades within two weeks.
var categoryHalfLives = map[string]float64{
	"goal":      90,
	"topic":     90,
	"milestone": 90,
	"emotion":   30,
	"concern":   30,
	"context":   14,
}

const (
	defaultHalfLifeDays = 30.0

	// Auto-detected casual mentions fade faster than explicit requests.
	autoDecayMultiplier = 0.7
)

// DecayWeight maps a record's age onto a recency weight in (0, 1].
// Permanent records and records carrying a permanent category always
// weigh 1.0. Multi-category records use the longest half-life among
// their categories, so a record persists as long as its most durable
// facet warrants.
func DecayWeight(categories []string, isPermanent bool, tags []string, ageDays float64) float64 {
	if ageDays <= 0 {
		return 1.0
	}
	if isPermanent {
		return 1.0
	}
	for _, c := range categories {
		if permanentCategories[c] {
			return 1.0
		}
	}

	halfLife := 0.0
	for _, c := range categories {
		hl, ok := categoryHalfLives[c]
		if !ok {
			hl = defaultHalfLifeDays
		}
		if hl > halfLife {
			halfLife = hl
		}
	}
	if halfLife == 0 {
		halfLife = defaultHalfLifeDays
	}

	if hasTag(tags, "auto") && !hasTag(tags, "explicit") {
		halfLife *= autoDecayMultiplier
	}

	return math.Pow(0.5, ageDays/halfLife)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AgeDays returns the record age in days given a unix-millisecond
// creation timestamp.
func AgeDays(createdAtMillis int64, now time.Time) float64 {
	age := now.Sub(time.UnixMilli(createdAtMillis))
	if age < 0 {
		return 0
	}
	return age.Hours() / 24
}

// TimeAgo renders a coarse human label for a creation timestamp.
func TimeAgo(createdAtMillis int64, now time.Time) string {
	days := int(now.Sub(time.UnixMilli(createdAtMillis)).Hours() / 24)
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 14:
		return "about a week ago"
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days < 60:
		return "about a month ago"
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		years := days / 365
		if years == 1 {
			return "over a year ago"
		}
		return fmt.Sprintf("over %d years ago", years)
	}
}
