// Package numeric maps a bucketed numeric market onto the multi-outcome
// machinery: it partitions the market's range into answer buckets, expands a
// trader's threshold intent ("less than", "more than", "about right") into
// the set of answer ids to buy, and summarizes a contract's answer
// probabilities into an expected value.
package numeric

import (
	"math"

	"github.com/marketfold/venue/internal/domain"
)

// Mode is a trader's stance toward a threshold value.
type Mode string

const (
	ModeLessThan   Mode = "less than"
	ModeMoreThan   Mode = "more than"
	ModeAboutRight Mode = "about right"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeLessThan || m == ModeMoreThan || m == ModeAboutRight
}

// BucketRanges partitions [min, max] into count equal-width contiguous
// ranges. Adjacent buckets share their boundary; containment treats the
// boundary as belonging to the upper bucket.
func BucketRanges(min, max float64, count int) ([]domain.NumericRange, error) {
	if math.IsNaN(min) || math.IsInf(min, 0) || math.IsNaN(max) || math.IsInf(max, 0) {
		return nil, domain.Validation("range", min, "bounds must be finite")
	}
	if max <= min {
		return nil, domain.Validation("range", max, "max must exceed min")
	}
	if count < 2 {
		return nil, domain.Validation("buckets", float64(count), "need at least two buckets")
	}

	width := (max - min) / float64(count)
	ranges := make([]domain.NumericRange, count)
	for i := range ranges {
		ranges[i] = domain.NumericRange{
			Lo: min + float64(i)*width,
			Hi: min + float64(i+1)*width,
		}
	}
	// Pin the outer bounds against accumulated rounding.
	ranges[0].Lo = min
	ranges[count-1].Hi = max
	return ranges, nil
}

// AnswerIDs expands a threshold stance into the answer ids to buy YES on.
// For ModeAboutRight the value is first snapped to a bucket-aligned window
// via AboutRightWindow. An empty result means the stance selects nothing.
func AnswerIDs(answers []domain.Answer, mode Mode, value float64) ([]string, error) {
	if !mode.Valid() {
		return nil, domain.Validation("mode", 0, "unknown mode "+string(mode))
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, domain.Validation("value", value, "must be finite")
	}

	var lo, hi float64
	if mode == ModeAboutRight {
		lo, hi = AboutRightWindow(answers, value)
	}

	var ids []string
	for _, a := range answers {
		include := false
		switch mode {
		case ModeLessThan:
			include = a.Range.Lo <= value
		case ModeMoreThan:
			include = a.Range.Hi >= value
		case ModeAboutRight:
			include = a.Range.Lo >= lo && a.Range.Hi <= hi
		}
		if include {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

// AboutRightWindow snaps a value to a bucket-aligned window: the containing
// bucket when the value falls inside one, otherwise the span from the
// nearest bucket entirely below to the nearest bucket entirely above.
func AboutRightWindow(answers []domain.Answer, value float64) (lo, hi float64) {
	if len(answers) == 0 {
		return value, value
	}
	for _, a := range answers {
		if value >= a.Range.Lo && value <= a.Range.Hi {
			return a.Range.Lo, a.Range.Hi
		}
	}

	lo = answers[0].Range.Lo
	hi = answers[len(answers)-1].Range.Hi
	for _, a := range answers {
		if value > a.Range.Hi {
			lo = a.Range.Lo
		}
	}
	for i := len(answers) - 1; i >= 0; i-- {
		if value < answers[i].Range.Lo {
			hi = answers[i].Range.Hi
		}
	}
	return lo, hi
}

// ExpectedValue is the probability-weighted midpoint of the answer buckets,
// normalized so that drift in the summed probabilities does not bias the
// estimate. Zero total probability yields the range midpoint.
func ExpectedValue(answers []domain.Answer) float64 {
	if len(answers) == 0 {
		return 0
	}
	var total, weighted float64
	for _, a := range answers {
		p := a.Probability
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			continue
		}
		total += p
		weighted += p * a.Range.Mid()
	}
	if total == 0 {
		return (answers[0].Range.Lo + answers[len(answers)-1].Range.Hi) / 2
	}
	return weighted / total
}
