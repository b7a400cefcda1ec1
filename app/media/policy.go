package media

import (
	"fmt"
)

// Policy holds the destination platform duration rules. All values are
// seconds.
type Policy struct {
	MinDuration     float64
	MaxDuration     float64
	ExtendThreshold float64
	ExtendTarget    float64
	PartDuration    float64
	PartCount       int
}

type Decision int

const (
	// DecisionReject: the item violates a hard duration bound, never
	// retried.
	DecisionReject Decision = iota
	// DecisionExtend: the item is accepted but must be lengthened to
	// ExtendTarget before segmentation.
	DecisionExtend
	// DecisionPass: the item proceeds unchanged.
	DecisionPass
)

// Evaluate applies the hard floor and ceiling, then decides whether the
// video needs extension.
func (p Policy) Evaluate(duration float64) (Decision, string) {
	switch {
	case duration <= 0:
		return DecisionReject, "failed to determine duration"
	case duration < p.MinDuration:
		return DecisionReject, fmt.Sprintf("video too short (%.1fs < %.0fs minimum)", duration, p.MinDuration)
	case duration > p.MaxDuration:
		return DecisionReject, fmt.Sprintf("video too long (%.1fs > %.0fs limit)", duration, p.MaxDuration)
	case duration < p.ExtendThreshold:
		return DecisionExtend, fmt.Sprintf("video duration %.1fs below %.0fs, extending to %.0fs", duration, p.ExtendThreshold, p.ExtendTarget)
	default:
		return DecisionPass, fmt.Sprintf("video duration ok (%.1fs)", duration)
	}
}

// LoopDuration returns how many seconds of the original to append when
// extending: the remaining gap to the target, capped at the original
// duration so the loop source never runs past the end.
func (p Policy) LoopDuration(duration float64) float64 {
	remaining := p.ExtendTarget - duration
	if remaining <= 0 {
		return 0
	}
	if remaining > duration {
		return duration
	}
	return remaining
}
