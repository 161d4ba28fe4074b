package rtt

import (
	"testing"
	"time"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return now.AddDate(0, 0, -n) }

func TestTargetDate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	want := time.Date(2025, 5, 7, 0, 0, 0, 0, time.UTC)
	if got := TargetDate(start); !got.Equal(want) {
		t.Errorf("TargetDate = %v, want %v", got, want)
	}
}

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		remaining int
		want      BreachRisk
	}{
		{29, RiskLow},
		{28, RiskMedium},
		{15, RiskMedium},
		{14, RiskHigh},
		{1, RiskHigh},
		{0, RiskHigh},
		{-1, RiskBreached},
	}
	for _, tc := range cases {
		if got := Classify(tc.remaining); got != tc.want {
			t.Errorf("Classify(%d) = %s, want %s", tc.remaining, got, tc.want)
		}
	}
}

func TestEvaluate_Scenarios(t *testing.T) {
	cases := []struct {
		name          string
		daysAgo       int
		wantRemaining int
		wantOverdue   int
		wantRisk      BreachRisk
	}{
		{"breached", 130, 0, 4, RiskBreached},
		{"high", 115, 11, 0, RiskHigh},
		{"medium", 100, 26, 0, RiskMedium},
		{"low", 10, 116, 0, RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Evaluate(daysAgo(tc.daysAgo), now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.DaysRemaining != tc.wantRemaining {
				t.Errorf("DaysRemaining = %d, want %d", p.DaysRemaining, tc.wantRemaining)
			}
			if p.DaysOverdue != tc.wantOverdue {
				t.Errorf("DaysOverdue = %d, want %d", p.DaysOverdue, tc.wantOverdue)
			}
			if p.Risk != tc.wantRisk {
				t.Errorf("Risk = %s, want %s", p.Risk, tc.wantRisk)
			}
			if p.Status != StatusIncomplete {
				t.Errorf("Status = %s, want incomplete", p.Status)
			}
		})
	}
}

func TestEvaluate_Monotonic(t *testing.T) {
	rank := map[BreachRisk]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2, RiskBreached: 3}
	prev := RiskLow
	for d := 0; d <= 140; d++ {
		p, err := Evaluate(daysAgo(d), now)
		if err != nil {
			t.Fatalf("day %d: %v", d, err)
		}
		if rank[p.Risk] < rank[prev] {
			t.Fatalf("risk regressed from %s to %s at %d days elapsed", prev, p.Risk, d)
		}
		prev = p.Risk
	}
}

func TestEvaluate_ZeroClockStart(t *testing.T) {
	if _, err := Evaluate(time.Time{}, now); err == nil {
		t.Error("expected error for zero clock start")
	}
}

func TestEvaluateParsed(t *testing.T) {
	p, err := EvaluateParsed(daysAgo(10).Format(time.RFC3339), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Risk != RiskLow {
		t.Errorf("Risk = %s, want low", p.Risk)
	}

	if _, err := EvaluateParsed("not-a-date", now); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestPathway_Stop(t *testing.T) {
	p, _ := Evaluate(daysAgo(5), now)
	p.Stop(true)
	if p.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", p.Status)
	}
	p.Stop(false)
	if p.Status != StatusStopped {
		t.Errorf("Status = %s, want stopped", p.Status)
	}
}
