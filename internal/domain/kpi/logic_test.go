package kpi

import (
	"testing"
	"time"
)

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		name    string
		current float64
		target  float64
		want    int
	}{
		{"zero current", 0, 100, 0},
		{"halfway", 50, 100, 50},
		{"exact", 100, 100, 100},
		{"overshoot clamps", 150, 100, 100},
		{"zero target", 50, 0, 0},
		{"negative target", 50, -10, 0},
		{"negative current", -5, 100, 0},
		{"rounding", 1, 3, 33},
		{"rounds half up", 1, 2, 50},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ProgressPercent(tc.current, tc.target); got != tc.want {
				t.Fatalf("ProgressPercent(%v, %v) = %d, want %d", tc.current, tc.target, got, tc.want)
			}
		})
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	if !IsOverdue(&past, 50, StatusActive, now) {
		t.Fatal("incomplete KPI past its end date should be overdue")
	}
	if IsOverdue(&past, 100, StatusActive, now) {
		t.Fatal("fully progressed KPI should not be overdue")
	}
	if IsOverdue(&past, 50, StatusCompleted, now) {
		t.Fatal("completed KPI should not be overdue")
	}
	if IsOverdue(&future, 0, StatusActive, now) {
		t.Fatal("KPI before its end date should not be overdue")
	}
	if IsOverdue(nil, 0, StatusActive, now) {
		t.Fatal("KPI without an end date should never be overdue")
	}
}

func TestDeriveFillsMetrics(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	k := KPI{
		CurrentValue: 30,
		TargetValue:  60,
		Status:       StatusActive,
		EndDate:      &end,
		Metrics: []Metric{
			{CurrentValue: 10, TargetValue: 10},
			{CurrentValue: 5, TargetValue: 0},
		},
	}

	Derive(&k, now)

	if k.Progress != 50 {
		t.Fatalf("expected progress 50, got %d", k.Progress)
	}
	if !k.IsOverdue {
		t.Fatal("expected KPI to be overdue")
	}
	if k.Metrics[0].Progress != 100 || k.Metrics[1].Progress != 0 {
		t.Fatalf("unexpected metric progress: %d, %d", k.Metrics[0].Progress, k.Metrics[1].Progress)
	}
}

func TestValidWeight(t *testing.T) {
	for _, w := range []float64{0, 2.5, 5} {
		if !ValidWeight(w) {
			t.Fatalf("weight %v should be valid", w)
		}
	}
	for _, w := range []float64{-0.1, 5.1} {
		if ValidWeight(w) {
			t.Fatalf("weight %v should be rejected", w)
		}
	}
}
