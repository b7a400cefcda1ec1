package media

import (
	"testing"
)

func TestPlanSingleSegment(t *testing.T) {
	p := testPolicy()

	segments := p.Plan(63)
	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment for 63s, got %d", len(segments))
	}
	if segments[0].Start != 0 || segments[0].End != 63 {
		t.Errorf("Expected segment [0, 63], got [%.0f, %.0f]", segments[0].Start, segments[0].End)
	}
}

func TestPlanMultipleSegments(t *testing.T) {
	p := testPolicy()
	p.MaxDuration = 600

	segments := p.Plan(300)
	if len(segments) != 3 {
		t.Fatalf("Expected 3 segments for 300s, got %d", len(segments))
	}

	expected := []Segment{
		{Index: 0, Start: 0, End: 113},
		{Index: 1, Start: 113, End: 226},
		{Index: 2, Start: 226, End: 300},
	}
	for i, seg := range segments {
		if seg != expected[i] {
			t.Errorf("Segment %d: expected %+v, got %+v", i, expected[i], seg)
		}
	}
}

func TestPlanCapsAtPartCount(t *testing.T) {
	p := testPolicy()
	p.MaxDuration = 1000

	// 900s would need 8 parts; only the first PartCount are planned
	segments := p.Plan(900)
	if len(segments) != p.PartCount {
		t.Fatalf("Expected %d segments, got %d", p.PartCount, len(segments))
	}
	if segments[len(segments)-1].End != 339 {
		t.Errorf("Expected last segment to end at 339, got %.0f", segments[len(segments)-1].End)
	}
}

func TestPlanDropsShortTail(t *testing.T) {
	p := testPolicy()
	p.MaxDuration = 600

	// 115s leaves a 2s tail below the minimum; it is dropped
	segments := p.Plan(115)
	if len(segments) != 1 {
		t.Fatalf("Expected 1 segment for 115s, got %d", len(segments))
	}
	if segments[0].End != 113 {
		t.Errorf("Expected segment to end at 113, got %.0f", segments[0].End)
	}
}

func TestPlanBelowMinimum(t *testing.T) {
	p := testPolicy()

	if segments := p.Plan(2); segments != nil {
		t.Errorf("Expected no segments below the minimum, got %d", len(segments))
	}
}

func TestPlanProperties(t *testing.T) {
	p := testPolicy()
	p.MaxDuration = 1000

	for _, duration := range []float64{3, 30, 63, 113, 113.5, 200, 300, 500, 900} {
		segments := p.Plan(duration)

		if len(segments) == 0 {
			t.Errorf("Expected at least one segment for %.1fs", duration)
			continue
		}
		if len(segments) > p.PartCount {
			t.Errorf("Plan(%.1f) produced %d segments, cap is %d", duration, len(segments), p.PartCount)
		}

		prevEnd := 0.0
		for _, seg := range segments {
			if seg.Start != prevEnd {
				t.Errorf("Plan(%.1f): segment %d starts at %.1f, expected %.1f", duration, seg.Index, seg.Start, prevEnd)
			}
			if seg.Duration() < p.MinDuration {
				t.Errorf("Plan(%.1f): segment %d shorter than minimum (%.1fs)", duration, seg.Index, seg.Duration())
			}
			if seg.Duration() > p.PartDuration {
				t.Errorf("Plan(%.1f): segment %d longer than part limit (%.1fs)", duration, seg.Index, seg.Duration())
			}
			if seg.End > duration {
				t.Errorf("Plan(%.1f): segment %d ends past the source (%.1f)", duration, seg.Index, seg.End)
			}
			prevEnd = seg.End
		}
	}
}
