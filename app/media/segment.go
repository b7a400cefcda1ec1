package media

import (
	"math"
)

// Segment is one time-bounded slice of the source file.
type Segment struct {
	Index int
	Start float64
	End   float64
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Plan derives the ordered, contiguous, non-overlapping segment plan for a
// video of the given duration. Every emitted segment is at least MinDuration
// and at most PartDuration long; a too-short tail is dropped rather than
// emitted.
func (p Policy) Plan(duration float64) []Segment {
	if duration < p.MinDuration {
		return nil
	}

	// Ceiling division so a tail longer than MinDuration still gets its
	// own segment
	maxPossibleParts := int(math.Ceil(duration / p.PartDuration))
	actualParts := min(p.PartCount, maxPossibleParts)
	if actualParts < 1 {
		actualParts = 1
	}

	var segments []Segment
	for i := 0; i < actualParts; i++ {
		start := float64(i) * p.PartDuration
		if start >= duration {
			break
		}
		end := min(start+p.PartDuration, duration)
		if end-start < p.MinDuration {
			continue
		}
		segments = append(segments, Segment{Index: i, Start: start, End: end})
	}

	return segments
}
