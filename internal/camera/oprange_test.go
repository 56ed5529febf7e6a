package camera

import (
	"math"
	"testing"
)

func TestOpRange(t *testing.T) {
	r := OpRange{Min: -64, Max: 64, Step: 1}

	tests := []struct {
		value float64
		ratio float64
	}{
		{-64, 0},
		{0, 0.5},
		{64, 1},
	}

	for _, tt := range tests {
		if got := r.ToRatio(tt.value); math.Abs(got-tt.ratio) > 1e-9 {
			t.Errorf("ToRatio(%v) = %v, want %v", tt.value, got, tt.ratio)
		}
		if got := r.ToValue(tt.ratio); math.Abs(got-tt.value) > 1e-9 {
			t.Errorf("ToValue(%v) = %v, want %v", tt.ratio, got, tt.value)
		}
	}
}

func TestOpRange_StepAndClamp(t *testing.T) {
	r := OpRange{Min: 0, Max: 100, Step: 10}

	if got := r.ToValue(0.34); got != 30 {
		t.Errorf("Expected value snapped to 30, got %v", got)
	}
	if got := r.ToValue(1.5); got != 100 {
		t.Errorf("Expected clamp to max, got %v", got)
	}
	if got := r.ToRatio(-10); got != 0 {
		t.Errorf("Expected clamp to 0, got %v", got)
	}

	// 値域が空の場合は0を返す
	if got := (OpRange{Min: 5, Max: 5}).ToRatio(5); got != 0 {
		t.Errorf("Expected 0 for empty range, got %v", got)
	}
}
