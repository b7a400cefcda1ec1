package media

import (
	"testing"
)

func testPolicy() Policy {
	return Policy{
		MinDuration:     3,
		MaxDuration:     120,
		ExtendThreshold: 60,
		ExtendTarget:    63,
		PartDuration:    113,
		PartCount:       3,
	}
}

func TestEvaluateRejectsOutOfBounds(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name     string
		duration float64
	}{
		{"zero duration", 0},
		{"negative duration", -1},
		{"below minimum", 2.5},
		{"above maximum", 121},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, msg := p.Evaluate(tt.duration)
			if decision != DecisionReject {
				t.Errorf("Expected DecisionReject for %.1fs, got %v (%s)", tt.duration, decision, msg)
			}
			if msg == "" {
				t.Error("Expected a rejection reason")
			}
		})
	}
}

func TestEvaluateExtendBelowThreshold(t *testing.T) {
	p := testPolicy()

	decision, _ := p.Evaluate(45)
	if decision != DecisionExtend {
		t.Errorf("Expected DecisionExtend for 45s, got %v", decision)
	}

	// The boundary itself passes unchanged
	decision, _ = p.Evaluate(60)
	if decision != DecisionPass {
		t.Errorf("Expected DecisionPass for 60s, got %v", decision)
	}
}

func TestEvaluatePassWithinBounds(t *testing.T) {
	p := testPolicy()

	for _, duration := range []float64{60, 90, 120} {
		decision, _ := p.Evaluate(duration)
		if decision != DecisionPass {
			t.Errorf("Expected DecisionPass for %.1fs, got %v", duration, decision)
		}
	}

	// Exactly the minimum is accepted but extended
	decision, _ := p.Evaluate(3)
	if decision != DecisionExtend {
		t.Errorf("Expected DecisionExtend for 3s, got %v", decision)
	}
}

func TestLoopDuration(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		duration float64
		expected float64
	}{
		{45, 18}, // gap to target
		{20, 20}, // gap larger than the source, capped at source length
		{63, 0},  // already at target
		{90, 0},  // past target
	}

	for _, tt := range tests {
		if got := p.LoopDuration(tt.duration); got != tt.expected {
			t.Errorf("LoopDuration(%.0f): expected %.0f, got %.0f", tt.duration, tt.expected, got)
		}
	}
}
